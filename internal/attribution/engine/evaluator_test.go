package engine

import (
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/dylan3796/attribution-mvp/internal/attribution/domain"
)

func evalRule(id int64, priority int, active bool) domain.AttributionRule {
	return domain.AttributionRule{
		ID:         snowflake.ID(id),
		Name:       "rule",
		Version:    1,
		ModelType:  domain.ModelEqualSplit,
		Constraint: domain.ConstraintMustSumTo100,
		Priority:   priority,
		Active:     active,
	}
}

func TestSelectRuleHighestPriorityWins(t *testing.T) {
	rules := []domain.AttributionRule{
		evalRule(1, 100, true),
		evalRule(2, 300, true),
		evalRule(3, 200, true),
	}

	selected, ok := SelectRule(newTarget("1000.00"), rules)
	require.True(t, ok)
	assert.Equal(t, snowflake.ID(2), selected.ID)
}

func TestSelectRulePriorityTieBreaksToNewestRule(t *testing.T) {
	rules := []domain.AttributionRule{
		evalRule(10, 100, true),
		evalRule(42, 100, true),
		evalRule(7, 100, true),
	}

	for i := 0; i < 5; i++ {
		selected, ok := SelectRule(newTarget("1000.00"), rules)
		require.True(t, ok)
		assert.Equal(t, snowflake.ID(42), selected.ID, "larger rule ID wins the tie")
	}
}

func TestSelectRuleSkipsInactiveAndNonMatching(t *testing.T) {
	inactive := evalRule(1, 500, false)

	tooSmall := evalRule(2, 400, true)
	min := decimal.RequireFromString("1000000")
	tooSmall.AppliesTo = datatypes.NewJSONType(domain.RuleApplicability{MinValue: &min})

	wrongStage := evalRule(3, 300, true)
	wrongStage.AppliesTo = datatypes.NewJSONType(domain.RuleApplicability{
		Stages: []domain.TargetStage{domain.StageLive},
	})

	fits := evalRule(4, 100, true)

	selected, ok := SelectRule(newTarget("1000.00"),
		[]domain.AttributionRule{inactive, tooSmall, wrongStage, fits})
	require.True(t, ok)
	assert.Equal(t, snowflake.ID(4), selected.ID)

	_, ok = SelectRule(newTarget("1000.00"),
		[]domain.AttributionRule{inactive, tooSmall, wrongStage})
	assert.False(t, ok)
}

func TestDefaultRuleIsValidEqualSplit(t *testing.T) {
	rule := DefaultRule()
	require.NoError(t, rule.ValidateConfig())
	assert.Equal(t, domain.ModelEqualSplit, rule.ModelType)
	assert.Equal(t, domain.ConstraintMustSumTo100, rule.Constraint)
	assert.True(t, rule.Matches(newTarget("1.00")))
}
