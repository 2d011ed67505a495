// Package engine implements the attribution calculation pipeline: filter
// touchpoints, compute splits for the rule's model, enforce the split
// constraint, and assemble explainable ledger entries. The engine is pure:
// it never touches storage, holds no state between calls, and the same
// inputs always produce the same entries.
package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dylan3796/attribution-mvp/internal/attribution/domain"
)

type Engine struct {
	log *zap.Logger
}

func New(log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{log: log.Named("attribution.engine")}
}

// Result is the outcome of one target's calculation. Entries is empty for
// the no-touchpoint outcomes; Trail always explains why.
type Result struct {
	Outcome  domain.Outcome
	Entries  []domain.LedgerEntry
	Warnings []string
	Trail    []domain.AuditStep
}

// share is a partner's pre-allocation split percentage. Shares are kept in a
// slice sorted by partner ID so every downstream iteration is deterministic.
type share struct {
	PartnerID string
	Pct       decimal.Decimal
}

// Calculate runs the full pipeline for one target under one rule.
// calculatedAt stamps the entries but never participates in the math, so
// replays are bit-identical apart from that field.
func (e *Engine) Calculate(
	target domain.AttributionTarget,
	touchpoints []domain.PartnerTouchpoint,
	rule domain.AttributionRule,
	actor string,
	calculatedAt time.Time,
) (*Result, error) {
	if target.Value.IsNegative() {
		return nil, fmt.Errorf("target %s: %w", target.ID, domain.ErrNegativeValue)
	}
	if err := rule.ValidateConfig(); err != nil {
		return nil, fmt.Errorf("rule %s v%d: %w", rule.ID, rule.Version, err)
	}

	trail := &domain.Trail{}
	var warnings []string

	if len(touchpoints) == 0 {
		trail.Add(domain.AuditStageEvaluation, "no_touchpoints",
			"target has no touchpoints at all", nil)
		return &Result{Outcome: domain.OutcomeNoTouchpoints, Trail: trail.Steps()}, nil
	}

	eligible := filterTouchpoints(touchpoints, rule.Filters.Data(), trail)
	if len(eligible) == 0 {
		trail.Add(domain.AuditStageEvaluation, "no_eligible_touchpoints",
			fmt.Sprintf("rule filters excluded all %d touchpoints", len(touchpoints)), nil)
		return &Result{Outcome: domain.OutcomeNoEligibleTouchpoints, Trail: trail.Steps()}, nil
	}

	eligible, warnings = e.validateForModel(eligible, rule.ModelType, trail, warnings)
	if len(eligible) == 0 {
		trail.Add(domain.AuditStageEvaluation, "no_eligible_touchpoints",
			"every filtered touchpoint lacked fields the model requires", nil)
		return &Result{
			Outcome:  domain.OutcomeNoEligibleTouchpoints,
			Warnings: warnings,
			Trail:    trail.Steps(),
		}, nil
	}

	shares, err := e.calculateSplits(target, eligible, rule, trail)
	if err != nil {
		return nil, err
	}

	shares, doubleCounting, err := enforceConstraint(shares, rule.Constraint, trail)
	if err != nil {
		return nil, fmt.Errorf("target %s: %w", target.ID, err)
	}

	entries := e.buildEntries(target, eligible, rule, shares, doubleCounting, actor, calculatedAt, trail, warnings)
	return &Result{
		Outcome:  domain.OutcomeAttributed,
		Entries:  entries,
		Warnings: warnings,
		Trail:    trail.Steps(),
	}, nil
}

// validateForModel drops touchpoints that lack fields the model cannot work
// without, recording each drop. time_decay keeps missing-timestamp
// touchpoints on purpose; they get the minimum contribution instead.
func (e *Engine) validateForModel(
	tps []domain.PartnerTouchpoint,
	model domain.AttributionModel,
	trail *domain.Trail,
	warnings []string,
) ([]domain.PartnerTouchpoint, []string) {
	kept := make([]domain.PartnerTouchpoint, 0, len(tps))
	for _, tp := range tps {
		switch {
		case model.RequiresTimestamps() && tp.OccurredAt == nil:
			w := fmt.Sprintf("touchpoint %s skipped: %s requires a timestamp", tp.ID, model)
			warnings = append(warnings, w)
			trail.Add(domain.AuditStageEvaluation, "touchpoint_skipped", w,
				map[string]any{"touchpoint_id": tp.ID.String(), "reason": "missing_timestamp"})
		case model == domain.ModelRoleWeighted && tp.Role == "":
			w := fmt.Sprintf("touchpoint %s skipped: role_weighted requires a role", tp.ID)
			warnings = append(warnings, w)
			trail.Add(domain.AuditStageEvaluation, "touchpoint_skipped", w,
				map[string]any{"touchpoint_id": tp.ID.String(), "reason": "missing_role"})
		case tp.Weight < 0:
			w := fmt.Sprintf("touchpoint %s skipped: negative weight %g", tp.ID, tp.Weight)
			warnings = append(warnings, w)
			trail.Add(domain.AuditStageEvaluation, "touchpoint_skipped", w,
				map[string]any{"touchpoint_id": tp.ID.String(), "reason": "negative_weight"})
		case !tp.Countable():
			// Zero weight and zero confidence: no signal, and keeping
			// it would put a zero in some model's denominator.
			w := fmt.Sprintf("touchpoint %s skipped: zero weight and zero confidence", tp.ID)
			warnings = append(warnings, w)
			trail.Add(domain.AuditStageEvaluation, "touchpoint_skipped", w,
				map[string]any{"touchpoint_id": tp.ID.String(), "reason": "no_signal"})
		default:
			kept = append(kept, tp)
		}
	}
	return kept, warnings
}

func (e *Engine) buildEntries(
	target domain.AttributionTarget,
	touchpoints []domain.PartnerTouchpoint,
	rule domain.AttributionRule,
	shares []share,
	doubleCounting bool,
	actor string,
	calculatedAt time.Time,
	trail *domain.Trail,
	warnings []string,
) []domain.LedgerEntry {
	if len(shares) == 0 {
		return nil
	}

	var values []decimal.Decimal
	switch rule.Constraint {
	case domain.ConstraintMustSumTo100:
		values = allocateExact(target.Value, shares, trail)
	case domain.ConstraintCapAt100:
		values = allocateCapped(target.Value, shares, trail)
	default:
		// allow_double_counting: each share is an independent claim, so
		// per-entry rounding may legitimately exceed the target.
		values = make([]decimal.Decimal, len(shares))
		for i, s := range shares {
			values[i] = target.Value.Mul(s.Pct).Round(2)
		}
	}

	override := rule.ModelType == domain.ModelManualOverride
	var overrideReason, overrideBy *string
	if override {
		reason := rule.Config.Data().OverrideReason
		overrideReason = &reason
		if actor != "" {
			overrideBy = &actor
		}
	}

	tpIDs := make([]string, len(touchpoints))
	for i, tp := range touchpoints {
		tpIDs[i] = tp.ID.String()
	}
	sort.Strings(tpIDs)

	trail.Add(domain.AuditStageLedger, "entries_emitted",
		fmt.Sprintf("%d entries from rule %q v%d (%s model, %s constraint)",
			len(shares), rule.Name, rule.Version, rule.ModelType, rule.Constraint),
		map[string]any{
			"rule_id":        rule.ID.String(),
			"touchpoint_ids": tpIDs,
		})

	base := trail.Steps()
	entries := make([]domain.LedgerEntry, 0, len(shares))
	for i, s := range shares {
		steps := make([]domain.AuditStep, len(base), len(base)+1)
		copy(steps, base)
		steps = append(steps, domain.AuditStep{
			Seq:      len(base) + 1,
			Stage:    domain.AuditStageLedger,
			Decision: "partner_share",
			Detail: fmt.Sprintf("partner %s: %s of %s = %s",
				s.PartnerID, s.Pct.StringFixed(6), target.Value.StringFixed(2), values[i].StringFixed(2)),
			Data: map[string]any{
				"partner_id":       s.PartnerID,
				"split_percentage": s.Pct.String(),
				"attributed_value": values[i].String(),
			},
		})

		entry := domain.LedgerEntry{
			TargetID:        target.ID,
			PartnerID:       s.PartnerID,
			AttributedValue: values[i],
			SplitPercentage: s.Pct,
			RuleID:          rule.ID,
			RuleVersion:     rule.Version,
			DoubleCounting:  doubleCounting,
			Override:        override,
			OverrideReason:  overrideReason,
			OverrideBy:      overrideBy,
			CalculatedAt:    calculatedAt,
		}
		entry.SetAuditTrail(steps)
		entry.Checksum = buildChecksum(target, rule, s.PartnerID, s.Pct, values[i], tpIDs)
		entries = append(entries, entry)
	}

	if len(warnings) > 0 {
		e.log.Warn("attribution completed with data-quality warnings",
			zap.String("target_id", target.ID.String()),
			zap.Int("warnings", len(warnings)))
	}

	return entries
}

// buildChecksum derives the idempotency key for a ledger entry. Replaying
// the same rule version against the same touchpoint set yields the same
// checksum, so re-runs insert nothing new. The calculation timestamp is
// deliberately excluded.
func buildChecksum(
	target domain.AttributionTarget,
	rule domain.AttributionRule,
	partnerID string,
	pct decimal.Decimal,
	value decimal.Decimal,
	touchpointIDs []string,
) string {
	payload := fmt.Sprintf("%s|%s|%s|%d|%s|%s|%s",
		target.ID.String(),
		partnerID,
		rule.ID.String(),
		rule.Version,
		pct.String(),
		value.String(),
		strings.Join(touchpointIDs, ","),
	)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}
