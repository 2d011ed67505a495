// Package domain defines the rule management contract: creating, versioning
// and retiring attribution rules.
package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"

	attrdomain "github.com/dylan3796/attribution-mvp/internal/attribution/domain"
)

// CreateRuleInput is the payload for a new rule or a new version of an
// existing rule.
type CreateRuleInput struct {
	Name       string                        `json:"name"`
	ModelType  attrdomain.AttributionModel   `json:"model_type"`
	Config     attrdomain.RuleConfig         `json:"config"`
	Filters    attrdomain.RuleFilters        `json:"filters"`
	AppliesTo  attrdomain.RuleApplicability  `json:"applies_to"`
	Constraint attrdomain.SplitConstraint    `json:"constraint"`
	Priority   int                           `json:"priority"`
	CreatedBy  string                        `json:"created_by"`
}

// Template is a ready-made rule definition users can instantiate.
type Template struct {
	Key         string          `json:"key"`
	Description string          `json:"description"`
	Input       CreateRuleInput `json:"input"`
}

// Service manages attribution rules. Rules referenced by ledger entries are
// never mutated: an edit creates a new version and retires the old one.
type Service interface {
	Create(ctx context.Context, input CreateRuleInput) (*attrdomain.AttributionRule, error)
	// CreateVersion appends a new version of the named rule and deactivates
	// the prior version.
	CreateVersion(ctx context.Context, name string, input CreateRuleInput) (*attrdomain.AttributionRule, error)
	Get(ctx context.Context, id snowflake.ID) (*attrdomain.AttributionRule, error)
	List(ctx context.Context, activeOnly bool) ([]attrdomain.AttributionRule, error)
	Deactivate(ctx context.Context, id snowflake.ID) error
	Templates() []Template
	// CreateFromTemplate instantiates a template by key.
	CreateFromTemplate(ctx context.Context, key, createdBy string) (*attrdomain.AttributionRule, error)
}

var (
	ErrRuleNotFound     = errors.New("rule_not_found")
	ErrRuleNameRequired = errors.New("rule_name_required")
	ErrUnknownTemplate  = errors.New("unknown_template")
)
