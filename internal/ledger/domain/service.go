// Package domain defines the read side of the attribution ledger: listing
// entries and aggregating per-partner summaries.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"

	attrdomain "github.com/dylan3796/attribution-mvp/internal/attribution/domain"
	"github.com/dylan3796/attribution-mvp/pkg/db/pagination"
)

// EntryFilter narrows a ledger listing. Zero values match everything.
type EntryFilter struct {
	TargetID  snowflake.ID `form:"target_id"`
	PartnerID string       `form:"partner_id"`
	RunID     string       `form:"run_id"`
	// IncludeSuperseded includes corrected entries; by default only the
	// live ledger is returned.
	IncludeSuperseded bool `form:"include_superseded"`
}

// PartnerSummary aggregates a partner's live ledger position.
type PartnerSummary struct {
	PartnerID        string          `json:"partner_id"`
	TotalAttributed  decimal.Decimal `json:"total_attributed"`
	EntryCount       int64           `json:"entry_count"`
	TargetCount      int64           `json:"target_count"`
	LastCalculatedAt *time.Time      `json:"last_calculated_at,omitempty"`
}

// ErrInvalidPageToken rejects page tokens that do not decode to a cursor.
var ErrInvalidPageToken = errors.New("invalid_page_token")

// Service is the ledger read surface.
type Service interface {
	ListEntries(ctx context.Context, filter EntryFilter, page pagination.Pagination) ([]attrdomain.LedgerEntry, *pagination.PageInfo, error)
	// TargetLedger returns a target's live entries.
	TargetLedger(ctx context.Context, targetID snowflake.ID) ([]attrdomain.LedgerEntry, error)
	// PartnerSummaries aggregates live entries per partner, sorted by
	// total attributed value descending.
	PartnerSummaries(ctx context.Context) ([]PartnerSummary, error)
}
