package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// AttributionModel enumerates the split methodologies. Dispatch over this
// type is a closed switch: an unhandled model is a configuration error, never
// a silent fallback.
type AttributionModel string

const (
	ModelEqualSplit       AttributionModel = "equal_split"
	ModelRoleWeighted     AttributionModel = "role_weighted"
	ModelActivityWeighted AttributionModel = "activity_weighted"
	ModelTimeDecay        AttributionModel = "time_decay"
	ModelFirstTouch       AttributionModel = "first_touch"
	ModelLastTouch        AttributionModel = "last_touch"
	ModelUShaped          AttributionModel = "u_shaped"
	ModelManualOverride   AttributionModel = "manual_override"
	// ModelLinear is accepted as an alias of equal_split for imported
	// rule definitions.
	ModelLinear AttributionModel = "linear"
)

// SplitConstraint governs what the sum of emitted shares may be.
type SplitConstraint string

const (
	ConstraintMustSumTo100        SplitConstraint = "must_sum_to_100"
	ConstraintAllowDoubleCounting SplitConstraint = "allow_double_counting"
	ConstraintCapAt100            SplitConstraint = "cap_at_100"
)

// RuleConfig is the model-specific configuration carried by a rule.
type RuleConfig struct {
	// RoleWeights maps role -> weight for role_weighted.
	RoleWeights map[string]float64 `json:"role_weights,omitempty"`
	// HalfLifeDays drives time_decay. Must be positive when set.
	HalfLifeDays float64 `json:"half_life_days,omitempty"`
	// U-shaped positional weights. Must each be within [0,1] and sum to 1.
	FirstTouchWeight float64 `json:"first_touch_weight,omitempty"`
	LastTouchWeight  float64 `json:"last_touch_weight,omitempty"`
	MiddleWeight     float64 `json:"middle_weight,omitempty"`
	// Overrides maps partner -> share for manual_override.
	Overrides      map[string]float64 `json:"overrides,omitempty"`
	OverrideReason string             `json:"override_reason,omitempty"`
}

// RuleFilters restricts which touchpoints a rule considers.
type RuleFilters struct {
	Types        []string   `json:"types,omitempty"`
	Roles        []string   `json:"roles,omitempty"`
	ExcludeRoles []string   `json:"exclude_roles,omitempty"`
	MinWeight    *float64   `json:"min_weight,omitempty"`
	From         *time.Time `json:"from,omitempty"`
	To           *time.Time `json:"to,omitempty"`
}

// RuleApplicability is the predicate deciding whether a rule applies to a
// target at all. Empty fields match everything.
type RuleApplicability struct {
	TargetTypes []TargetType     `json:"target_types,omitempty"`
	Stages      []TargetStage    `json:"stages,omitempty"`
	MinValue    *decimal.Decimal `json:"min_value,omitempty"`
	MaxValue    *decimal.Decimal `json:"max_value,omitempty"`
}

// AttributionRule is a named, versioned split configuration. A rule's
// semantics are never mutated once ledger entries reference it; edits create
// a new version row.
type AttributionRule struct {
	ID         snowflake.ID                          `gorm:"primaryKey" json:"id"`
	Name       string                                `gorm:"type:text;not null;index" json:"name"`
	Version    int                                   `gorm:"not null;default:1" json:"version"`
	ModelType  AttributionModel                      `gorm:"type:text;not null" json:"model_type"`
	Config     datatypes.JSONType[RuleConfig]        `json:"config"`
	Filters    datatypes.JSONType[RuleFilters]       `json:"filters"`
	AppliesTo  datatypes.JSONType[RuleApplicability] `json:"applies_to"`
	Constraint SplitConstraint                       `gorm:"type:text;not null;default:must_sum_to_100" json:"constraint"`
	// Priority resolves conflicts: higher wins. Ties break to the most
	// recently created rule (larger snowflake ID).
	Priority  int       `gorm:"not null;default:100" json:"priority"`
	Active    bool      `gorm:"not null;default:true" json:"active"`
	CreatedBy string    `gorm:"type:text" json:"created_by,omitempty"`
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (AttributionRule) TableName() string { return "attribution_rules" }

// Matches reports whether the rule's applicability predicate accepts the
// target.
func (r AttributionRule) Matches(target AttributionTarget) bool {
	applies := r.AppliesTo.Data()

	if len(applies.TargetTypes) > 0 && !containsTargetType(applies.TargetTypes, target.Type) {
		return false
	}
	if len(applies.Stages) > 0 && !containsStage(applies.Stages, target.Stage) {
		return false
	}
	if applies.MinValue != nil && target.Value.LessThan(*applies.MinValue) {
		return false
	}
	if applies.MaxValue != nil && target.Value.GreaterThan(*applies.MaxValue) {
		return false
	}
	return true
}

func containsTargetType(list []TargetType, v TargetType) bool {
	for _, t := range list {
		if t == v {
			return true
		}
	}
	return false
}

func containsStage(list []TargetStage, v TargetStage) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// ValidateConfig checks a rule's configuration for its model type. It is the
// fail-fast gate: an invalid rule is rejected before any target is touched.
func (r AttributionRule) ValidateConfig() error {
	cfg := r.Config.Data()

	switch r.ModelType {
	case ModelEqualSplit, ModelLinear, ModelFirstTouch, ModelLastTouch, ModelActivityWeighted:
		return nil

	case ModelRoleWeighted:
		if len(cfg.RoleWeights) == 0 {
			return ErrMissingRoleWeights
		}
		for _, w := range cfg.RoleWeights {
			if w < 0 {
				return ErrNegativeWeight
			}
		}
		return nil

	case ModelTimeDecay:
		if cfg.HalfLifeDays <= 0 {
			return ErrInvalidHalfLife
		}
		return nil

	case ModelUShaped:
		for _, w := range []float64{cfg.FirstTouchWeight, cfg.LastTouchWeight, cfg.MiddleWeight} {
			if w < 0 || w > 1 {
				return ErrInvalidPositionalWeights
			}
		}
		total := cfg.FirstTouchWeight + cfg.LastTouchWeight + cfg.MiddleWeight
		if total < 0.999 || total > 1.001 {
			return ErrInvalidPositionalWeights
		}
		return nil

	case ModelManualOverride:
		if len(cfg.Overrides) == 0 {
			return ErrMissingOverrides
		}
		total := 0.0
		for _, share := range cfg.Overrides {
			if share < 0 {
				return ErrNegativeShare
			}
			total += share
		}
		// An all-zero override set attributes nothing.
		if total == 0 {
			return ErrMissingOverrides
		}
		if cfg.OverrideReason == "" {
			return ErrMissingOverrideReason
		}
		return nil

	default:
		return ErrUnknownModel
	}
}

// RequiresTimestamps reports whether the model cannot order touchpoints
// without timestamps at all. time_decay is deliberately absent: it assigns
// missing-timestamp touchpoints the minimum contribution instead of
// excluding them.
func (m AttributionModel) RequiresTimestamps() bool {
	switch m {
	case ModelFirstTouch, ModelLastTouch, ModelUShaped:
		return true
	}
	return false
}
