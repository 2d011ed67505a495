package service

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	attrdomain "github.com/dylan3796/attribution-mvp/internal/attribution/domain"
	"github.com/dylan3796/attribution-mvp/internal/ledger/domain"
	"github.com/dylan3796/attribution-mvp/pkg/db/option"
	"github.com/dylan3796/attribution-mvp/pkg/db/pagination"
	"github.com/dylan3796/attribution-mvp/pkg/repository"
)

// liveEntriesCond excludes entries that a later entry supersedes.
const liveEntriesCond = `id NOT IN (
	SELECT supersedes FROM attribution_ledger_entries WHERE supersedes IS NOT NULL
)`

type Service struct {
	db   *gorm.DB
	log  *zap.Logger
	repo repository.Repository[attrdomain.LedgerEntry]
}

type ServiceParam struct {
	fx.In

	DB  *gorm.DB
	Log *zap.Logger
}

func NewService(p ServiceParam) domain.Service {
	return &Service{
		db:   p.DB,
		log:  p.Log.Named("ledger.service"),
		repo: repository.ProvideStore[attrdomain.LedgerEntry](p.DB),
	}
}

func (s *Service) ListEntries(
	ctx context.Context,
	filter domain.EntryFilter,
	page pagination.Pagination,
) ([]attrdomain.LedgerEntry, *pagination.PageInfo, error) {
	limit := page.Limit()

	query := &attrdomain.LedgerEntry{
		TargetID:  filter.TargetID,
		PartnerID: filter.PartnerID,
		RunID:     filter.RunID,
	}

	opts := []option.QueryOption{
		option.WithOrder("id ASC"),
		option.WithLimit(limit + 1),
	}
	if !filter.IncludeSuperseded {
		opts = append(opts, option.WithCondition(liveEntriesCond))
	}
	if page.PageToken != "" {
		cursor, err := pagination.DecodeCursor(page.PageToken)
		if err != nil {
			return nil, nil, domain.ErrInvalidPageToken
		}
		afterID, err := strconv.ParseInt(cursor.ID, 10, 64)
		if err != nil {
			return nil, nil, domain.ErrInvalidPageToken
		}
		opts = append(opts, option.WithCondition("id > ?", afterID))
	}

	rows, err := s.repo.Find(ctx, query, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("list ledger entries: %w", err)
	}

	rows, info, err := pagination.BuildPage(rows, limit, func(e *attrdomain.LedgerEntry) string {
		return strconv.FormatInt(int64(e.ID), 10)
	})
	if err != nil {
		return nil, nil, err
	}

	entries := make([]attrdomain.LedgerEntry, len(rows))
	for i, r := range rows {
		entries[i] = *r
	}
	return entries, info, nil
}

func (s *Service) TargetLedger(ctx context.Context, targetID snowflake.ID) ([]attrdomain.LedgerEntry, error) {
	var entries []attrdomain.LedgerEntry
	err := s.db.WithContext(ctx).
		Where("target_id = ?", targetID).
		Where(liveEntriesCond).
		Order("id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("load target ledger: %w", err)
	}
	return entries, nil
}

// PartnerSummaries aggregates in memory with decimal arithmetic. SQL SUM
// would coerce the attributed values through driver floats on some dialects.
func (s *Service) PartnerSummaries(ctx context.Context) ([]domain.PartnerSummary, error) {
	var entries []attrdomain.LedgerEntry
	err := s.db.WithContext(ctx).
		Select("partner_id", "attributed_value", "target_id", "calculated_at").
		Where(liveEntriesCond).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("load live ledger entries: %w", err)
	}

	byPartner := make(map[string]*domain.PartnerSummary)
	targets := make(map[string]map[snowflake.ID]struct{})
	for _, e := range entries {
		sum, ok := byPartner[e.PartnerID]
		if !ok {
			sum = &domain.PartnerSummary{PartnerID: e.PartnerID}
			byPartner[e.PartnerID] = sum
			targets[e.PartnerID] = make(map[snowflake.ID]struct{})
		}
		sum.TotalAttributed = sum.TotalAttributed.Add(e.AttributedValue)
		sum.EntryCount++
		targets[e.PartnerID][e.TargetID] = struct{}{}
		if sum.LastCalculatedAt == nil || e.CalculatedAt.After(*sum.LastCalculatedAt) {
			at := e.CalculatedAt
			sum.LastCalculatedAt = &at
		}
	}

	summaries := make([]domain.PartnerSummary, 0, len(byPartner))
	for partner, sum := range byPartner {
		sum.TargetCount = int64(len(targets[partner]))
		summaries = append(summaries, *sum)
	}
	sort.Slice(summaries, func(i, j int) bool {
		if c := summaries[i].TotalAttributed.Cmp(summaries[j].TotalAttributed); c != 0 {
			return c > 0
		}
		return summaries[i].PartnerID < summaries[j].PartnerID
	})
	return summaries, nil
}
