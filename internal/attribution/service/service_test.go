package service

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/dylan3796/attribution-mvp/internal/attribution/domain"
	"github.com/dylan3796/attribution-mvp/internal/clock"
	"github.com/dylan3796/attribution-mvp/internal/config"
)

var fixtureSeq atomic.Int64

type fixture struct {
	db    *gorm.DB
	node  *snowflake.Node
	clock *clock.FakeClock
	svc   domain.Service
}

func newFixture(t *testing.T, fallbackPolicy string) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared",
		strings.ReplaceAll(t.Name(), "/", "_"), fixtureSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&domain.AttributionTarget{},
		&domain.PartnerTouchpoint{},
		&domain.AttributionRule{},
		&domain.LedgerEntry{},
	)
	require.NoError(t, err)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	cfg := config.DefaultAttributionConfig()
	cfg.FallbackPolicy = fallbackPolicy
	holder, err := config.NewStaticAttributionConfigHolder(cfg)
	require.NoError(t, err)

	fake := clock.NewFakeClock(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))

	svc := NewService(ServiceParam{
		DB:     db,
		Log:    zap.NewNop(),
		GenID:  node,
		Clock:  fake,
		Config: holder,
	})

	return &fixture{db: db, node: node, clock: fake, svc: svc}
}

func (f *fixture) seedTarget(t *testing.T, value string, stage domain.TargetStage) domain.AttributionTarget {
	t.Helper()
	ref := time.Date(2024, 5, 15, 0, 0, 0, 0, time.UTC)
	target := domain.AttributionTarget{
		ID:          f.node.Generate(),
		ExternalID:  "OPP-" + f.node.Generate().String(),
		Type:        domain.TargetTypeOpportunity,
		Value:       decimal.RequireFromString(value),
		Stage:       stage,
		ReferenceAt: &ref,
	}
	require.NoError(t, f.db.Create(&target).Error)
	return target
}

func (f *fixture) seedTouchpoint(t *testing.T, targetID snowflake.ID, partner, role string, daysBeforeRef int) {
	t.Helper()
	ts := time.Date(2024, 5, 15, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -daysBeforeRef)
	tp := domain.PartnerTouchpoint{
		ID:         f.node.Generate(),
		TargetID:   targetID,
		PartnerID:  partner,
		Type:       domain.TouchpointExplicitTag,
		Role:       role,
		Weight:     1,
		OccurredAt: &ts,
		Confidence: 1,
	}
	require.NoError(t, f.db.Create(&tp).Error)
}

func (f *fixture) seedRule(t *testing.T, model domain.AttributionModel, cfg domain.RuleConfig, priority int) domain.AttributionRule {
	t.Helper()
	rule := domain.AttributionRule{
		ID:         f.node.Generate(),
		Name:       "seeded rule",
		Version:    1,
		ModelType:  model,
		Config:     datatypes.NewJSONType(cfg),
		Constraint: domain.ConstraintMustSumTo100,
		Priority:   priority,
		Active:     true,
	}
	require.NoError(t, f.db.Create(&rule).Error)
	return rule
}

func (f *fixture) ledgerFor(t *testing.T, targetID snowflake.ID) []domain.LedgerEntry {
	t.Helper()
	var entries []domain.LedgerEntry
	require.NoError(t, f.db.Where("target_id = ?", targetID).Order("id ASC").Find(&entries).Error)
	return entries
}

func TestRunTargetWritesLedger(t *testing.T) {
	f := newFixture(t, "equal_split")
	target := f.seedTarget(t, "90000.00", domain.StageCommit)
	f.seedTouchpoint(t, target.ID, "partner-a", domain.RoleSourcing, 40)
	f.seedTouchpoint(t, target.ID, "partner-b", domain.RoleTechnical, 20)
	f.seedTouchpoint(t, target.ID, "partner-c", domain.RoleReferral, 5)
	f.seedRule(t, domain.ModelEqualSplit, domain.RuleConfig{}, 100)

	res, err := f.svc.RunTarget(context.Background(), target.ID, "tester")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeAttributed, res.Outcome)
	require.Len(t, res.Entries, 3)

	stored := f.ledgerFor(t, target.ID)
	require.Len(t, stored, 3)
	total := decimal.Zero
	for _, e := range stored {
		total = total.Add(e.AttributedValue)
		assert.Equal(t, res.RunID, e.RunID)
		assert.NotEmpty(t, e.Checksum)
		assert.NotEmpty(t, e.AuditSteps())
		assert.Nil(t, e.Supersedes)
	}
	assert.True(t, total.Equal(decimal.RequireFromString("90000.00")))
}

func TestRunTargetReplayInsertsNothing(t *testing.T) {
	f := newFixture(t, "equal_split")
	target := f.seedTarget(t, "50000.00", domain.StageCommit)
	f.seedTouchpoint(t, target.ID, "partner-a", domain.RoleSourcing, 10)
	f.seedTouchpoint(t, target.ID, "partner-b", domain.RoleTechnical, 5)
	f.seedRule(t, domain.ModelEqualSplit, domain.RuleConfig{}, 100)

	_, err := f.svc.RunTarget(context.Background(), target.ID, "tester")
	require.NoError(t, err)

	f.clock.Advance(24 * time.Hour)
	_, err = f.svc.RunTarget(context.Background(), target.ID, "tester")
	require.NoError(t, err)

	stored := f.ledgerFor(t, target.ID)
	assert.Len(t, stored, 2, "identical inputs carry identical checksums, replay inserts nothing")
}

func TestRunTargetNotFound(t *testing.T) {
	f := newFixture(t, "equal_split")

	_, err := f.svc.RunTarget(context.Background(), f.node.Generate(), "tester")
	assert.ErrorIs(t, err, domain.ErrTargetNotFound)
}

func TestRunTargetNoTouchpoints(t *testing.T) {
	f := newFixture(t, "equal_split")
	target := f.seedTarget(t, "1000.00", domain.StageCommit)
	f.seedRule(t, domain.ModelEqualSplit, domain.RuleConfig{}, 100)

	res, err := f.svc.RunTarget(context.Background(), target.ID, "tester")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeNoTouchpoints, res.Outcome)
	assert.Empty(t, f.ledgerFor(t, target.ID))
}

func TestRunTargetFallbackPolicies(t *testing.T) {
	// No rules seeded at all: the fallback policy decides.
	f := newFixture(t, "equal_split")
	target := f.seedTarget(t, "10000.00", domain.StageCommit)
	f.seedTouchpoint(t, target.ID, "partner-a", domain.RoleSourcing, 3)

	res, err := f.svc.RunTarget(context.Background(), target.ID, "tester")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeAttributed, res.Outcome)
	require.Len(t, res.Entries, 1)
	assert.True(t, res.Entries[0].AttributedValue.Equal(decimal.RequireFromString("10000.00")))

	none := newFixture(t, "none")
	target2 := none.seedTarget(t, "10000.00", domain.StageCommit)
	none.seedTouchpoint(t, target2.ID, "partner-a", domain.RoleSourcing, 3)

	res, err = none.svc.RunTarget(context.Background(), target2.ID, "tester")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeNoRule, res.Outcome)
	assert.Empty(t, none.ledgerFor(t, target2.ID))
}

func TestRunTargetHighestPriorityRuleWins(t *testing.T) {
	f := newFixture(t, "equal_split")
	target := f.seedTarget(t, "100000.00", domain.StageCommit)
	f.seedTouchpoint(t, target.ID, "partner-a", domain.RoleSourcing, 10)
	f.seedTouchpoint(t, target.ID, "partner-b", domain.RoleTechnical, 5)

	f.seedRule(t, domain.ModelEqualSplit, domain.RuleConfig{}, 100)
	winner := f.seedRule(t, domain.ModelRoleWeighted, domain.RuleConfig{
		RoleWeights: map[string]float64{domain.RoleSourcing: 0.3, domain.RoleTechnical: 0.7},
	}, 200)

	res, err := f.svc.RunTarget(context.Background(), target.ID, "tester")
	require.NoError(t, err)
	require.Len(t, res.Entries, 2)
	for _, e := range res.Entries {
		assert.Equal(t, winner.ID, e.RuleID)
	}
}

func TestTransitionStageReattributesAndSupersedes(t *testing.T) {
	f := newFixture(t, "equal_split")
	target := f.seedTarget(t, "60000.00", domain.StageCommit)
	f.seedTouchpoint(t, target.ID, "partner-a", domain.RoleSourcing, 10)
	f.seedTouchpoint(t, target.ID, "partner-b", domain.RoleTechnical, 5)

	// Commit stage: equal split. Live stage: role weighted.
	commitRule := f.seedRule(t, domain.ModelEqualSplit, domain.RuleConfig{}, 100)
	commitRule.AppliesTo = datatypes.NewJSONType(domain.RuleApplicability{
		Stages: []domain.TargetStage{domain.StageCommit},
	})
	require.NoError(t, f.db.Save(&commitRule).Error)

	liveRule := f.seedRule(t, domain.ModelRoleWeighted, domain.RuleConfig{
		RoleWeights: map[string]float64{domain.RoleSourcing: 0.3, domain.RoleTechnical: 0.7},
	}, 100)
	liveRule.AppliesTo = datatypes.NewJSONType(domain.RuleApplicability{
		Stages: []domain.TargetStage{domain.StageLive},
	})
	require.NoError(t, f.db.Save(&liveRule).Error)

	first, err := f.svc.RunTarget(context.Background(), target.ID, "tester")
	require.NoError(t, err)
	require.Len(t, first.Entries, 2)

	res, err := f.svc.TransitionStage(context.Background(), target.ID, domain.StageLive, "tester")
	require.NoError(t, err)
	require.Len(t, res.Entries, 2)

	stored := f.ledgerFor(t, target.ID)
	require.Len(t, stored, 4, "ledger is append-only, old entries remain")

	supersedes := 0
	for _, e := range stored {
		if e.Supersedes != nil {
			supersedes++
		}
	}
	assert.Equal(t, 2, supersedes, "each new entry points at the partner's previous entry")
}

func TestTransitionStageValidation(t *testing.T) {
	f := newFixture(t, "equal_split")
	target := f.seedTarget(t, "1000.00", domain.StageCommit)

	_, err := f.svc.TransitionStage(context.Background(), target.ID, "warp_speed", "tester")
	assert.ErrorIs(t, err, domain.ErrInvalidStage)

	_, err = f.svc.TransitionStage(context.Background(), target.ID, domain.StageDiscovery, "tester")
	assert.ErrorIs(t, err, domain.ErrStageNotForward)

	_, err = f.svc.TransitionStage(context.Background(), target.ID, domain.StageCommit, "tester")
	assert.ErrorIs(t, err, domain.ErrStageNotForward)
}

func TestRunBatchCollectsPerTargetResults(t *testing.T) {
	f := newFixture(t, "equal_split")

	attributed := f.seedTarget(t, "10000.00", domain.StageCommit)
	f.seedTouchpoint(t, attributed.ID, "partner-a", domain.RoleSourcing, 3)

	empty := f.seedTarget(t, "5000.00", domain.StageCommit)

	// A negative-value target fails its run but not the batch.
	bad := f.seedTarget(t, "0.00", domain.StageCommit)
	require.NoError(t, f.db.Model(&domain.AttributionTarget{}).
		Where("id = ?", bad.ID).
		Update("value", "-1.00").Error)
	f.seedTouchpoint(t, bad.ID, "partner-a", domain.RoleSourcing, 3)

	f.seedRule(t, domain.ModelEqualSplit, domain.RuleConfig{}, 100)

	results, err := f.svc.RunBatch(context.Background(), "tester")
	require.NoError(t, err)
	require.Len(t, results, 3)

	byTarget := make(map[snowflake.ID]domain.RunResult, len(results))
	runID := results[0].RunID
	for _, r := range results {
		byTarget[r.TargetID] = r
		assert.Equal(t, runID, r.RunID, "one run ID covers the whole batch")
	}
	assert.Equal(t, domain.OutcomeAttributed, byTarget[attributed.ID].Outcome)
	assert.Equal(t, domain.OutcomeNoTouchpoints, byTarget[empty.ID].Outcome)
	assert.Equal(t, domain.OutcomeFailed, byTarget[bad.ID].Outcome)
	assert.NotEmpty(t, byTarget[bad.ID].Warnings)
}
