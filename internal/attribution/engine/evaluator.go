package engine

import (
	"sort"

	"github.com/dylan3796/attribution-mvp/internal/attribution/domain"
)

// FallbackPolicy decides what happens when no rule matches a target. It is
// explicit configuration, never an implicit code path.
type FallbackPolicy string

const (
	// FallbackEqualSplit applies a built-in equal split across all
	// touchpoints.
	FallbackEqualSplit FallbackPolicy = "equal_split"
	// FallbackNone produces zero ledger entries for the target.
	FallbackNone FallbackPolicy = "none"
)

// SelectRule picks the applicable rule for a target from the candidate set.
// Highest priority wins; ties break to the most recently created rule
// (larger snowflake ID), so repeated runs always resolve identically.
// The second return is false when no active rule matches.
func SelectRule(target domain.AttributionTarget, rules []domain.AttributionRule) (domain.AttributionRule, bool) {
	matching := make([]domain.AttributionRule, 0, len(rules))
	for _, r := range rules {
		if r.Active && r.Matches(target) {
			matching = append(matching, r)
		}
	}
	if len(matching) == 0 {
		return domain.AttributionRule{}, false
	}

	sort.SliceStable(matching, func(i, j int) bool {
		if matching[i].Priority != matching[j].Priority {
			return matching[i].Priority > matching[j].Priority
		}
		return matching[i].ID > matching[j].ID
	})
	return matching[0], true
}

// DefaultRule is the documented fallback applied under FallbackEqualSplit:
// an unfiltered equal split that must sum to 100%.
func DefaultRule() domain.AttributionRule {
	return domain.AttributionRule{
		Name:       "default_equal_split",
		Version:    1,
		ModelType:  domain.ModelEqualSplit,
		Constraint: domain.ConstraintMustSumTo100,
		Active:     true,
	}
}
