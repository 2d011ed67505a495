package service

import (
	attrdomain "github.com/dylan3796/attribution-mvp/internal/attribution/domain"
	"github.com/dylan3796/attribution-mvp/internal/rule/domain"
)

// templates are the built-in starting points. Every template must pass rule
// validation; templates_test.go enforces that.
var templates = []domain.Template{
	{
		Key:         "equal_split_all",
		Description: "Divide revenue evenly among all partners involved",
		Input: domain.CreateRuleInput{
			Name:       "Equal Split - All Partners",
			ModelType:  attrdomain.ModelEqualSplit,
			Constraint: attrdomain.ConstraintMustSumTo100,
			Priority:   100,
		},
	},
	{
		Key:         "role_weighted_standard",
		Description: "Sourcing 50%, influence 30%, referral 15%, technical 5%",
		Input: domain.CreateRuleInput{
			Name:      "Role-Weighted - Standard",
			ModelType: attrdomain.ModelRoleWeighted,
			Config: attrdomain.RuleConfig{
				RoleWeights: map[string]float64{
					attrdomain.RoleSourcing:  0.50,
					attrdomain.RoleInfluence: 0.30,
					attrdomain.RoleReferral:  0.15,
					attrdomain.RoleTechnical: 0.05,
				},
			},
			Constraint: attrdomain.ConstraintMustSumTo100,
			Priority:   100,
		},
	},
	{
		Key:         "time_decay_30d",
		Description: "More recent partner touches get more credit (30-day half-life)",
		Input: domain.CreateRuleInput{
			Name:       "Time Decay - 30 Day Half-Life",
			ModelType:  attrdomain.ModelTimeDecay,
			Config:     attrdomain.RuleConfig{HalfLifeDays: 30},
			Constraint: attrdomain.ConstraintMustSumTo100,
			Priority:   100,
		},
	},
	{
		Key:         "first_touch_wins",
		Description: "100% credit to the first partner who touched the deal",
		Input: domain.CreateRuleInput{
			Name:       "First Touch Attribution",
			ModelType:  attrdomain.ModelFirstTouch,
			Constraint: attrdomain.ConstraintMustSumTo100,
			Priority:   100,
		},
	},
	{
		Key:         "last_touch_wins",
		Description: "100% credit to the last partner who touched before close",
		Input: domain.CreateRuleInput{
			Name:       "Last Touch Attribution",
			ModelType:  attrdomain.ModelLastTouch,
			Constraint: attrdomain.ConstraintMustSumTo100,
			Priority:   100,
		},
	},
	{
		Key:         "activity_weighted",
		Description: "Credit proportional to each partner's activity volume",
		Input: domain.CreateRuleInput{
			Name:       "Activity-Weighted Attribution",
			ModelType:  attrdomain.ModelActivityWeighted,
			Constraint: attrdomain.ConstraintMustSumTo100,
			Priority:   100,
		},
	},
	{
		Key:         "u_shaped_40_20_40",
		Description: "40% first touch, 40% last touch, 20% spread across the middle",
		Input: domain.CreateRuleInput{
			Name:      "U-Shaped Attribution",
			ModelType: attrdomain.ModelUShaped,
			Config: attrdomain.RuleConfig{
				FirstTouchWeight: 0.4,
				LastTouchWeight:  0.4,
				MiddleWeight:     0.2,
			},
			Constraint: attrdomain.ConstraintMustSumTo100,
			Priority:   100,
		},
	},
}
