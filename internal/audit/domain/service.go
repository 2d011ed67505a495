// Package domain defines the append-only operational audit log: who changed
// which rule, who triggered which run.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"

	"github.com/dylan3796/attribution-mvp/pkg/db/pagination"
)

// AuditLog is one recorded operator action. Rows are never updated.
type AuditLog struct {
	ID         snowflake.ID      `gorm:"primaryKey" json:"id"`
	ActorID    string            `gorm:"type:text;not null;index" json:"actor_id"`
	Action     string            `gorm:"type:text;not null;index" json:"action"`
	TargetType string            `gorm:"type:text;not null" json:"target_type"`
	TargetID   *string           `gorm:"type:text;index" json:"target_id,omitempty"`
	Metadata   datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt  time.Time         `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (AuditLog) TableName() string { return "audit_logs" }

// Recorded actions.
const (
	ActionRuleCreate     = "rule.create"
	ActionRuleVersion    = "rule.version"
	ActionRuleDeactivate = "rule.deactivate"
	ActionRunTarget      = "run.target"
	ActionRunBatch       = "run.batch"
	ActionStageChange    = "target.stage_transition"
)

type ListRequest struct {
	pagination.Pagination
	Action     string `form:"action"`
	TargetType string `form:"target_type"`
	ActorID    string `form:"actor_id"`
}

type Service interface {
	// Record appends one audit row. Failures are returned but callers
	// treat them as non-fatal to the action being audited.
	Record(ctx context.Context, actorID, action, targetType string, targetID *string, metadata map[string]any) error
	List(ctx context.Context, req ListRequest) ([]AuditLog, *pagination.PageInfo, error)
}

var (
	ErrInvalidAction    = errors.New("invalid_action")
	ErrInvalidPageToken = errors.New("invalid_page_token")
)
