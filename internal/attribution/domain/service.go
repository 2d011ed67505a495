package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

// RunResult reports one target's attribution outcome to the caller.
type RunResult struct {
	TargetID snowflake.ID `json:"target_id"`
	RunID    string       `json:"run_id"`
	Outcome  Outcome      `json:"outcome"`
	Entries  []LedgerEntry `json:"entries"`
	Warnings []string      `json:"warnings,omitempty"`
}

// Outcome distinguishes the normal empty-ledger cases from an attributed run.
type Outcome string

const (
	OutcomeAttributed Outcome = "attributed"
	// OutcomeNoTouchpoints: the target has no touchpoints at all.
	OutcomeNoTouchpoints Outcome = "no_touchpoints"
	// OutcomeNoEligibleTouchpoints: touchpoints exist but the rule's
	// filters excluded every one of them.
	OutcomeNoEligibleTouchpoints Outcome = "no_eligible_touchpoints"
	// OutcomeNoRule: no rule matched and the fallback policy is "none".
	OutcomeNoRule Outcome = "no_rule"
	// OutcomeFailed: the target's run errored; only reported inside batch
	// results, single-target runs return the error itself.
	OutcomeFailed Outcome = "failed"
)

// Service orchestrates attribution runs against persisted data.
type Service interface {
	// RunTarget loads a target with its touchpoints and candidate rules,
	// runs the engine, and appends ledger entries.
	RunTarget(ctx context.Context, targetID snowflake.ID, actor string) (*RunResult, error)
	// RunBatch runs every active target under one run ID, collecting
	// per-target results. Individual target failures do not abort the
	// batch.
	RunBatch(ctx context.Context, actor string) ([]RunResult, error)
	// TransitionStage moves a target to a new lifecycle stage and
	// re-attributes it.
	TransitionStage(ctx context.Context, targetID snowflake.ID, stage TargetStage, actor string) (*RunResult, error)
}

var (
	ErrTargetNotFound   = errors.New("target_not_found")
	ErrInvalidStage     = errors.New("invalid_stage")
	ErrStageNotForward  = errors.New("stage_not_forward")
	ErrNegativeValue    = errors.New("negative_target_value")
	ErrUnknownModel     = errors.New("unknown_model_type")
	ErrUnknownConstraint = errors.New("unknown_split_constraint")

	// Rule configuration errors; all fail fast before any ledger write.
	ErrMissingRoleWeights       = errors.New("missing_role_weights")
	ErrNegativeWeight           = errors.New("negative_weight")
	ErrInvalidHalfLife          = errors.New("invalid_half_life")
	ErrInvalidPositionalWeights = errors.New("invalid_positional_weights")
	ErrMissingOverrides         = errors.New("missing_overrides")
	ErrMissingOverrideReason    = errors.New("missing_override_reason")

	// ErrNegativeShare is a constraint violation normalization cannot fix;
	// the target's run fails with no partial ledger.
	ErrNegativeShare = errors.New("negative_computed_share")
)
