package engine

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/dylan3796/attribution-mvp/internal/attribution/domain"
)

var decimalCent = decimal.New(1, -2)

// enforceConstraint applies the rule's split constraint policy to the raw
// shares. It returns the adjusted shares and whether the result may
// legitimately exceed 100% of the target value.
func enforceConstraint(
	shares []share,
	policy domain.SplitConstraint,
	trail *domain.Trail,
) ([]share, bool, error) {
	total := decimal.Zero
	for _, s := range shares {
		if s.Pct.IsNegative() {
			return nil, false, fmt.Errorf("partner %s share %s: %w",
				s.PartnerID, s.Pct.String(), domain.ErrNegativeShare)
		}
		total = total.Add(s.Pct)
	}

	switch policy {
	case domain.ConstraintMustSumTo100:
		if total.IsZero() {
			trail.Add(domain.AuditStageConstraint, "zero_total",
				"raw shares sum to zero, nothing to attribute", nil)
			return nil, false, nil
		}
		if !total.Equal(decimalOne) {
			normalized := make([]share, len(shares))
			for i, s := range shares {
				normalized[i] = share{PartnerID: s.PartnerID, Pct: s.Pct.Div(total)}
			}
			trail.Add(domain.AuditStageConstraint, "normalized",
				fmt.Sprintf("raw shares summed to %s, scaled to 1.0", total.StringFixed(6)), nil)
			return normalized, false, nil
		}
		trail.Add(domain.AuditStageConstraint, "sum_verified",
			"shares already sum to 1.0", nil)
		return shares, false, nil

	case domain.ConstraintAllowDoubleCounting:
		trail.Add(domain.AuditStageConstraint, "double_counting_allowed",
			fmt.Sprintf("shares emitted as computed, total %s", total.StringFixed(6)), nil)
		return shares, true, nil

	case domain.ConstraintCapAt100:
		if total.GreaterThan(decimalOne) {
			capped := make([]share, len(shares))
			for i, s := range shares {
				capped[i] = share{PartnerID: s.PartnerID, Pct: s.Pct.Div(total)}
			}
			trail.Add(domain.AuditStageConstraint, "capped",
				fmt.Sprintf("raw shares summed to %s, scaled down to 1.0", total.StringFixed(6)), nil)
			return capped, false, nil
		}
		// Under 100%: the unattributed remainder stays unassigned.
		trail.Add(domain.AuditStageConstraint, "under_cap",
			fmt.Sprintf("shares sum to %s, remainder left unattributed", total.StringFixed(6)), nil)
		return shares, false, nil

	default:
		return nil, false, fmt.Errorf("%w: %q", domain.ErrUnknownConstraint, policy)
	}
}

// allocateExact distributes the target value across shares using the
// largest-remainder method so the attributed values sum to the target value
// to the cent, with no drift.
func allocateExact(total decimal.Decimal, shares []share, trail *domain.Trail) []decimal.Decimal {
	return distributeCents(total.DivRound(decimalCent, 0), shares, decimalOne, trail)
}

// allocateCapped distributes the attributable pool, the target value scaled
// by the share total, as whole cents clamped to the cents the target itself
// contains. The emitted values can therefore never sum past the target, which
// per-share rounding cannot guarantee.
func allocateCapped(total decimal.Decimal, shares []share, trail *domain.Trail) []decimal.Decimal {
	shareTotal := decimal.Zero
	for _, s := range shares {
		shareTotal = shareTotal.Add(s.Pct)
	}
	if shareTotal.IsZero() {
		return make([]decimal.Decimal, len(shares))
	}

	cents := total.Mul(shareTotal).DivRound(decimalCent, 0)
	if limit := total.Div(decimalCent).Floor(); cents.GreaterThan(limit) {
		cents = limit
	}
	return distributeCents(cents, shares, shareTotal, trail)
}

// distributeCents spreads whole cents across shares by the largest-remainder
// method: floor each proportional slice, then hand leftover cents to the
// largest fractional remainders. Ties break by partner ID.
func distributeCents(cents decimal.Decimal, shares []share, shareTotal decimal.Decimal, trail *domain.Trail) []decimal.Decimal {
	n := len(shares)

	floors := make([]decimal.Decimal, n)
	fracs := make([]decimal.Decimal, n)
	allocated := decimal.Zero
	for i, s := range shares {
		raw := cents.Mul(s.Pct).Div(shareTotal)
		floors[i] = raw.Floor()
		fracs[i] = raw.Sub(floors[i])
		allocated = allocated.Add(floors[i])
	}

	remainder := cents.Sub(allocated)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	// Largest fractional remainder first; partner ID breaks ties.
	sort.SliceStable(order, func(i, j int) bool {
		a, b := order[i], order[j]
		if !fracs[a].Equal(fracs[b]) {
			return fracs[a].GreaterThan(fracs[b])
		}
		return shares[a].PartnerID < shares[b].PartnerID
	})

	extra := int(remainder.IntPart())
	for k := 0; k < extra; k++ {
		idx := order[k%n]
		floors[idx] = floors[idx].Add(decimalOne)
	}

	if extra > 0 {
		recipients := make([]string, 0, extra)
		for k := 0; k < extra && k < n; k++ {
			recipients = append(recipients, shares[order[k]].PartnerID)
		}
		trail.Add(domain.AuditStageConstraint, "remainder_allocated",
			fmt.Sprintf("%d remainder cent(s) assigned by largest fractional remainder", extra),
			map[string]any{"recipients": recipients})
	}

	values := make([]decimal.Decimal, n)
	for i := range floors {
		values[i] = floors[i].Mul(decimalCent)
	}
	return values
}
