// Package domain contains the core attribution data model: targets,
// touchpoints, rules and the append-only attribution ledger.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// TargetType classifies what is being attributed.
type TargetType string

const (
	TargetTypeOpportunity TargetType = "opportunity"
	TargetTypeConsumption TargetType = "consumption"
	TargetTypeAccount     TargetType = "account"
	TargetTypeCustom      TargetType = "custom"
)

// TargetStage is the ordered lifecycle stage of a target. Stage transitions
// trigger re-attribution; everything else on a target is immutable once
// attribution has run.
type TargetStage string

const (
	StageDiscovery  TargetStage = "discovery"
	StageEvaluation TargetStage = "evaluation"
	StageCommit     TargetStage = "commit"
	StageLive       TargetStage = "live"
)

var stageOrder = map[TargetStage]int{
	StageDiscovery:  0,
	StageEvaluation: 1,
	StageCommit:     2,
	StageLive:       3,
}

// Order returns the stage's position in the lifecycle, or -1 for an unknown
// stage.
func (s TargetStage) Order() int {
	if v, ok := stageOrder[s]; ok {
		return v
	}
	return -1
}

// TouchpointType records how partner involvement is evidenced.
type TouchpointType string

const (
	TouchpointExplicitTag      TouchpointType = "explicit_tag"
	TouchpointInferred         TouchpointType = "inferred"
	TouchpointSelfReported     TouchpointType = "self_reported"
	TouchpointDealRegistration TouchpointType = "deal_registration"
)

// Partner roles are an open enum: these are the defaults, users may add more.
const (
	RoleSourcing  = "sourcing"
	RoleTechnical = "technical"
	RoleReferral  = "referral"
	RoleInfluence = "influence"
)

// AttributionTarget is the unit of value being attributed.
type AttributionTarget struct {
	ID         snowflake.ID    `gorm:"primaryKey" json:"id"`
	ExternalID string          `gorm:"type:text;not null;uniqueIndex" json:"external_id"`
	Type       TargetType      `gorm:"type:text;not null;index" json:"type"`
	Name       string          `gorm:"type:text" json:"name"`
	Value      decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"value"`
	Stage      TargetStage     `gorm:"type:text;not null" json:"stage"`
	// ReferenceAt is the close/reference timestamp used by time-based
	// models. It may be absent; models treat that as neutral, not fatal.
	ReferenceAt *time.Time     `gorm:"index" json:"reference_at,omitempty"`
	AccountName string         `gorm:"type:text" json:"account_name"`
	Metadata    datatypes.JSON `json:"metadata,omitempty"`
	CreatedAt   time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (AttributionTarget) TableName() string { return "attribution_targets" }

// PartnerTouchpoint is evidence of partner involvement with a target.
// Touchpoints are never mutated: corrections are new touchpoints superseding
// old ones by timestamp.
type PartnerTouchpoint struct {
	ID        snowflake.ID   `gorm:"primaryKey" json:"id"`
	TargetID  snowflake.ID   `gorm:"not null;index" json:"target_id"`
	PartnerID string         `gorm:"type:text;not null;index" json:"partner_id"`
	Type      TouchpointType `gorm:"type:text;not null" json:"type"`
	Role      string         `gorm:"type:text;not null" json:"role"`
	// Weight semantics depend on the model (activity count for
	// activity_weighted). Non-negative.
	Weight float64 `gorm:"not null;default:1" json:"weight"`
	// OccurredAt may be missing; models handle absence explicitly.
	OccurredAt *time.Time `gorm:"index" json:"occurred_at,omitempty"`
	// Confidence is 1.0 for explicit tags, computed for inferred
	// touchpoints. Always within [0,1].
	Confidence float64        `gorm:"not null;default:1" json:"confidence"`
	Provenance datatypes.JSON `json:"provenance,omitempty"`
	CreatedAt  time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (PartnerTouchpoint) TableName() string { return "partner_touchpoints" }

// Countable reports whether the touchpoint may appear in a model's
// denominator. A touchpoint with zero weight and zero confidence carries no
// signal and would only invite division by zero.
func (tp PartnerTouchpoint) Countable() bool {
	return tp.Weight > 0 || tp.Confidence > 0
}

// LedgerEntry is one partner's immutable attributed share of one target.
// The ledger is append-only: corrections are new entries whose Supersedes
// field points at the entry they replace.
type LedgerEntry struct {
	ID              snowflake.ID    `gorm:"primaryKey" json:"id"`
	TargetID        snowflake.ID    `gorm:"not null;index" json:"target_id"`
	PartnerID       string          `gorm:"type:text;not null;index" json:"partner_id"`
	AttributedValue decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"attributed_value"`
	// SplitPercentage is the partner's share in [0,1]; it may exceed 1
	// in aggregate only under allow_double_counting.
	SplitPercentage decimal.Decimal `gorm:"type:numeric(12,8);not null" json:"split_percentage"`
	RuleID          snowflake.ID    `gorm:"not null;index" json:"rule_id"`
	RuleVersion     int             `gorm:"not null" json:"rule_version"`
	RunID           string          `gorm:"type:text;not null;index" json:"run_id"`
	// DoubleCounting flags entries emitted under allow_double_counting so
	// downstream consumers don't mistake an over-100% total for an error.
	DoubleCounting bool          `gorm:"not null;default:false" json:"double_counting"`
	Override       bool          `gorm:"not null;default:false" json:"override"`
	OverrideReason *string       `gorm:"type:text" json:"override_reason,omitempty"`
	OverrideBy     *string       `gorm:"type:text" json:"override_by,omitempty"`
	Supersedes     *snowflake.ID `gorm:"index" json:"supersedes,omitempty"`
	// AuditTrail is the ordered list of decision steps that produced this
	// entry, serialized only at the storage boundary.
	AuditTrail   datatypes.JSONType[[]AuditStep] `json:"audit_trail"`
	Checksum     string                          `gorm:"type:text;not null;uniqueIndex" json:"-"`
	CalculatedAt time.Time                       `gorm:"not null" json:"calculated_at"`
	CreatedAt    time.Time                       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (LedgerEntry) TableName() string { return "attribution_ledger_entries" }

// SetAuditTrail replaces the entry's audit trail.
func (e *LedgerEntry) SetAuditTrail(steps []AuditStep) {
	e.AuditTrail = datatypes.NewJSONType(steps)
}

// AuditSteps returns the entry's ordered audit trail.
func (e LedgerEntry) AuditSteps() []AuditStep {
	return e.AuditTrail.Data()
}
