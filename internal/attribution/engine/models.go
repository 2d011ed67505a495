package engine

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dylan3796/attribution-mvp/internal/attribution/domain"
)

// timeDecayMinContribution is assigned to touchpoints without timestamps
// under time_decay, so the partner keeps a presence in the denominator
// instead of being silently excluded.
const timeDecayMinContribution = 0.01

var decimalOne = decimal.NewFromInt(1)

// calculateSplits dispatches to the model handler. The switch is closed on
// purpose: a model type the engine does not know is a configuration error,
// not an implicit equal split.
func (e *Engine) calculateSplits(
	target domain.AttributionTarget,
	tps []domain.PartnerTouchpoint,
	rule domain.AttributionRule,
	trail *domain.Trail,
) ([]share, error) {
	switch rule.ModelType {
	case domain.ModelEqualSplit, domain.ModelLinear:
		return equalSplit(tps, trail), nil
	case domain.ModelRoleWeighted:
		return roleWeighted(tps, rule.Config.Data(), trail), nil
	case domain.ModelActivityWeighted:
		return activityWeighted(tps, trail), nil
	case domain.ModelTimeDecay:
		return timeDecay(target, tps, rule.Config.Data(), trail), nil
	case domain.ModelFirstTouch:
		return singleTouch(tps, trail, true), nil
	case domain.ModelLastTouch:
		return singleTouch(tps, trail, false), nil
	case domain.ModelUShaped:
		return uShaped(tps, rule.Config.Data(), trail), nil
	case domain.ModelManualOverride:
		return manualOverride(rule.Config.Data(), trail), nil
	default:
		return nil, fmt.Errorf("rule %s: %w: %q", rule.ID, domain.ErrUnknownModel, rule.ModelType)
	}
}

// distinctPartners returns the sorted set of partner IDs with at least one
// eligible touchpoint.
func distinctPartners(tps []domain.PartnerTouchpoint) []string {
	seen := make(map[string]struct{}, len(tps))
	var out []string
	for _, tp := range tps {
		if _, ok := seen[tp.PartnerID]; !ok {
			seen[tp.PartnerID] = struct{}{}
			out = append(out, tp.PartnerID)
		}
	}
	sort.Strings(out)
	return out
}

func equalSplit(tps []domain.PartnerTouchpoint, trail *domain.Trail) []share {
	partners := distinctPartners(tps)
	n := int64(len(partners))
	pct := decimalOne.Div(decimal.NewFromInt(n))

	trail.Add(domain.AuditStageCalculation, "equal_split",
		fmt.Sprintf("1/%d to each of %d distinct partners", n, n),
		map[string]any{"partners": partners})

	shares := make([]share, 0, n)
	for _, p := range partners {
		shares = append(shares, share{PartnerID: p, Pct: pct})
	}
	return shares
}

// roleWeighted shares by configured role weights. A role missing from the
// config contributes weight zero but stays present: the denominator is the
// sum of resolved weights, so other partners' shares are unaffected by the
// choice to keep it.
func roleWeighted(tps []domain.PartnerTouchpoint, cfg domain.RuleConfig, trail *domain.Trail) []share {
	perPartner := make(map[string]float64)
	total := 0.0
	for _, tp := range tps {
		w, ok := cfg.RoleWeights[tp.Role]
		if !ok {
			trail.Add(domain.AuditStageCalculation, "unmapped_role",
				fmt.Sprintf("touchpoint %s role %q has no configured weight, counted as zero", tp.ID, tp.Role),
				map[string]any{"touchpoint_id": tp.ID.String(), "role": tp.Role})
			continue
		}
		perPartner[tp.PartnerID] += w
		total += w
	}

	partners := distinctPartners(tps)
	if total == 0 {
		trail.Add(domain.AuditStageCalculation, "equal_split_fallback",
			"no configured role weight resolved to a positive total, falling back to equal split", nil)
		return equalSplit(tps, trail)
	}

	totalDec := decimal.NewFromFloat(total)
	shares := make([]share, 0, len(partners))
	for _, p := range partners {
		pct := decimal.NewFromFloat(perPartner[p]).Div(totalDec)
		trail.Add(domain.AuditStageCalculation, "role_weighted",
			fmt.Sprintf("partner %s: weight %g / %g = %s", p, perPartner[p], total, pct.StringFixed(6)),
			map[string]any{"partner_id": p, "weight": perPartner[p], "total_weight": total})
		shares = append(shares, share{PartnerID: p, Pct: pct})
	}
	return shares
}

func activityWeighted(tps []domain.PartnerTouchpoint, trail *domain.Trail) []share {
	perPartner := make(map[string]float64)
	total := 0.0
	for _, tp := range tps {
		perPartner[tp.PartnerID] += tp.Weight
		total += tp.Weight
	}

	if total == 0 {
		// All weights zero: never divide by zero, split equally instead.
		trail.Add(domain.AuditStageCalculation, "equal_split_fallback",
			"total activity weight is zero, falling back to equal split", nil)
		return equalSplit(tps, trail)
	}

	partners := distinctPartners(tps)
	totalDec := decimal.NewFromFloat(total)
	shares := make([]share, 0, len(partners))
	for _, p := range partners {
		pct := decimal.NewFromFloat(perPartner[p]).Div(totalDec)
		trail.Add(domain.AuditStageCalculation, "activity_weighted",
			fmt.Sprintf("partner %s: activity %g / %g = %s", p, perPartner[p], total, pct.StringFixed(6)),
			map[string]any{"partner_id": p, "activity": perPartner[p], "total_activity": total})
		shares = append(shares, share{PartnerID: p, Pct: pct})
	}
	return shares
}

// decayFactor is 0.5^(age_days / half_life_days). A touchpoint after the
// reference time keeps full weight rather than extrapolating above 1.
func decayFactor(ageDays, halfLifeDays float64) float64 {
	if ageDays <= 0 {
		return 1.0
	}
	return math.Pow(0.5, ageDays/halfLifeDays)
}

func timeDecay(
	target domain.AttributionTarget,
	tps []domain.PartnerTouchpoint,
	cfg domain.RuleConfig,
	trail *domain.Trail,
) []share {
	if target.ReferenceAt == nil {
		// No reference timestamp: decay is neutral by policy, which
		// collapses to an equal weighting of touchpoints.
		trail.Add(domain.AuditStageCalculation, "decay_neutral",
			"target has no reference timestamp, all touchpoints weighted equally", nil)
	}

	perPartner := make(map[string]float64)
	total := 0.0
	for _, tp := range tps {
		var contribution float64
		switch {
		case tp.OccurredAt == nil:
			contribution = timeDecayMinContribution
			trail.Add(domain.AuditStageCalculation, "time_decay",
				fmt.Sprintf("touchpoint %s has no timestamp, assigned minimum contribution %g",
					tp.ID, timeDecayMinContribution),
				map[string]any{"touchpoint_id": tp.ID.String(), "contribution": contribution})
		case target.ReferenceAt == nil:
			contribution = 1.0
		default:
			ageDays := target.ReferenceAt.Sub(*tp.OccurredAt).Hours() / 24
			contribution = decayFactor(ageDays, cfg.HalfLifeDays)
			trail.Add(domain.AuditStageCalculation, "time_decay",
				fmt.Sprintf("touchpoint %s: age=%.1fd, half_life=%gd, contribution=%.4f",
					tp.ID, ageDays, cfg.HalfLifeDays, contribution),
				map[string]any{
					"touchpoint_id": tp.ID.String(),
					"age_days":      ageDays,
					"half_life":     cfg.HalfLifeDays,
					"contribution":  contribution,
				})
		}
		perPartner[tp.PartnerID] += contribution
		total += contribution
	}

	if total == 0 {
		trail.Add(domain.AuditStageCalculation, "equal_split_fallback",
			"all decay contributions are zero, falling back to equal split", nil)
		return equalSplit(tps, trail)
	}

	partners := distinctPartners(tps)
	totalDec := decimal.NewFromFloat(total)
	shares := make([]share, 0, len(partners))
	for _, p := range partners {
		shares = append(shares, share{
			PartnerID: p,
			Pct:       decimal.NewFromFloat(perPartner[p]).Div(totalDec),
		})
	}
	return shares
}

// byOccurrence sorts touchpoints by timestamp, breaking ties by partner ID
// lexical order so repeated runs pick the same winner.
func byOccurrence(tps []domain.PartnerTouchpoint) []domain.PartnerTouchpoint {
	sorted := make([]domain.PartnerTouchpoint, len(tps))
	copy(sorted, tps)
	sort.SliceStable(sorted, func(i, j int) bool {
		ti, tj := sorted[i].OccurredAt, sorted[j].OccurredAt
		if !ti.Equal(*tj) {
			return ti.Before(*tj)
		}
		return sorted[i].PartnerID < sorted[j].PartnerID
	})
	return sorted
}

func singleTouch(tps []domain.PartnerTouchpoint, trail *domain.Trail, first bool) []share {
	sorted := byOccurrence(tps)
	var winner domain.PartnerTouchpoint
	decision := "last_touch"
	if first {
		winner = sorted[0]
		decision = "first_touch"
	} else {
		// Latest timestamp wins; among equal timestamps the lexically
		// smallest partner ID, same as first_touch. The ascending sort
		// puts that partner at the head of the latest-timestamp run.
		i := len(sorted) - 1
		for i > 0 && sorted[i-1].OccurredAt.Equal(*sorted[i].OccurredAt) {
			i--
		}
		winner = sorted[i]
	}

	trail.Add(domain.AuditStageCalculation, decision,
		fmt.Sprintf("100%% to partner %s (touchpoint %s at %s)",
			winner.PartnerID, winner.ID, winner.OccurredAt.Format(time.RFC3339)),
		map[string]any{"partner_id": winner.PartnerID, "touchpoint_id": winner.ID.String()})

	return []share{{PartnerID: winner.PartnerID, Pct: decimalOne}}
}

func uShaped(tps []domain.PartnerTouchpoint, cfg domain.RuleConfig, trail *domain.Trail) []share {
	sorted := byOccurrence(tps)
	if len(sorted) == 1 {
		trail.Add(domain.AuditStageCalculation, "u_shaped",
			fmt.Sprintf("single touchpoint, 100%% to partner %s", sorted[0].PartnerID), nil)
		return []share{{PartnerID: sorted[0].PartnerID, Pct: decimalOne}}
	}

	perPartner := make(map[string]decimal.Decimal)
	add := func(partnerID string, pct decimal.Decimal) {
		perPartner[partnerID] = perPartner[partnerID].Add(pct)
	}

	add(sorted[0].PartnerID, decimal.NewFromFloat(cfg.FirstTouchWeight))
	add(sorted[len(sorted)-1].PartnerID, decimal.NewFromFloat(cfg.LastTouchWeight))

	middle := sorted[1 : len(sorted)-1]
	if len(middle) > 0 {
		each := decimal.NewFromFloat(cfg.MiddleWeight).Div(decimal.NewFromInt(int64(len(middle))))
		for _, tp := range middle {
			add(tp.PartnerID, each)
		}
	} else {
		// Two touchpoints: the middle weight folds into first and last
		// proportionally so shares still sum to 1.
		half := decimal.NewFromFloat(cfg.MiddleWeight).Div(decimal.NewFromInt(2))
		add(sorted[0].PartnerID, half)
		add(sorted[len(sorted)-1].PartnerID, half)
	}

	trail.Add(domain.AuditStageCalculation, "u_shaped",
		fmt.Sprintf("positional weights first=%g last=%g middle=%g over %d touchpoints",
			cfg.FirstTouchWeight, cfg.LastTouchWeight, cfg.MiddleWeight, len(sorted)),
		nil)

	partners := make([]string, 0, len(perPartner))
	for p := range perPartner {
		partners = append(partners, p)
	}
	sort.Strings(partners)

	shares := make([]share, 0, len(partners))
	for _, p := range partners {
		shares = append(shares, share{PartnerID: p, Pct: perPartner[p]})
	}
	return shares
}

func manualOverride(cfg domain.RuleConfig, trail *domain.Trail) []share {
	partners := make([]string, 0, len(cfg.Overrides))
	for p := range cfg.Overrides {
		partners = append(partners, p)
	}
	sort.Strings(partners)

	trail.Add(domain.AuditStageCalculation, "manual_override",
		fmt.Sprintf("explicit shares for %d partners, reason: %s", len(partners), cfg.OverrideReason),
		map[string]any{"partners": partners})

	shares := make([]share, 0, len(partners))
	for _, p := range partners {
		shares = append(shares, share{PartnerID: p, Pct: decimal.NewFromFloat(cfg.Overrides[p])})
	}
	return shares
}

// filterTouchpoints applies the rule's filter predicates, recording what was
// excluded and why.
func filterTouchpoints(
	tps []domain.PartnerTouchpoint,
	filters domain.RuleFilters,
	trail *domain.Trail,
) []domain.PartnerTouchpoint {
	typeSet := toSet(filters.Types)
	roleSet := toSet(filters.Roles)
	excludeSet := toSet(filters.ExcludeRoles)

	kept := make([]domain.PartnerTouchpoint, 0, len(tps))
	excluded := 0
	for _, tp := range tps {
		switch {
		case len(typeSet) > 0 && !inSet(typeSet, string(tp.Type)):
			excluded++
		case len(roleSet) > 0 && !inSet(roleSet, tp.Role):
			excluded++
		case inSet(excludeSet, tp.Role):
			excluded++
		case filters.MinWeight != nil && tp.Weight < *filters.MinWeight:
			excluded++
		case filters.From != nil && (tp.OccurredAt == nil || tp.OccurredAt.Before(*filters.From)):
			excluded++
		case filters.To != nil && (tp.OccurredAt == nil || tp.OccurredAt.After(*filters.To)):
			excluded++
		default:
			kept = append(kept, tp)
		}
	}

	if excluded > 0 {
		trail.Add(domain.AuditStageEvaluation, "touchpoints_filtered",
			fmt.Sprintf("rule filters excluded %d of %d touchpoints", excluded, len(tps)), nil)
	}
	return kept
}

func toSet(values []string) map[string]struct{} {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

func inSet(set map[string]struct{}, v string) bool {
	if set == nil {
		return false
	}
	_, ok := set[v]
	return ok
}
