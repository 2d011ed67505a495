package engine

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"

	attrdomain "github.com/dylan3796/attribution-mvp/internal/attribution/domain"
	"github.com/dylan3796/attribution-mvp/internal/inference/domain"
)

var inferCloseAt = time.Date(2024, 5, 15, 0, 0, 0, 0, time.UTC)

func inferTarget(withRef bool) attrdomain.AttributionTarget {
	t := attrdomain.AttributionTarget{
		ID:          snowflake.ID(2001),
		ExternalID:  "OPP-9",
		Type:        attrdomain.TargetTypeOpportunity,
		AccountName: "Acme Corp",
	}
	if withRef {
		ref := inferCloseAt
		t.ReferenceAt = &ref
	}
	return t
}

func inferActivity(activityType string, daysBeforeClose int) domain.PartnerActivity {
	ts := inferCloseAt.AddDate(0, 0, -daysBeforeClose)
	return domain.PartnerActivity{
		ID:           snowflake.ID(3001),
		PartnerID:    "partner-a",
		ActivityType: activityType,
		AccountName:  "Acme Corp",
		OccurredAt:   &ts,
	}
}

func TestScoreRecentMeetingGetsProximityBonus(t *testing.T) {
	e := New(DefaultConfig(), nil)

	f := e.Score(inferActivity("meeting", 7), inferTarget(true))

	// age 7d, half-life 90d: decay ~ 0.947.
	assert.InDelta(t, 0.947, f.TimeFactor, 0.01)
	assert.Equal(t, 1.0, f.TypeFactor)
	assert.Equal(t, 0.15, f.ProximityBonus)
	// 0.6*0.947 + 0.4*1.0 + 0.15 > 1 caps at 1.0.
	assert.Equal(t, 1.0, f.Confidence)
}

func TestScoreOldEmailDecays(t *testing.T) {
	e := New(DefaultConfig(), nil)

	f := e.Score(inferActivity("email", 180), inferTarget(true))

	// age 180d, half-life 90d: decay 0.25, no proximity bonus.
	assert.InDelta(t, 0.25, f.TimeFactor, 1e-9)
	assert.Equal(t, 0.5, f.TypeFactor)
	assert.Zero(t, f.ProximityBonus)
	assert.InDelta(t, 0.6*0.25+0.4*0.5, f.Confidence, 1e-9)
}

func TestScoreActivityAfterCloseIsWeak(t *testing.T) {
	e := New(DefaultConfig(), nil)

	f := e.Score(inferActivity("meeting", -10), inferTarget(true))

	assert.Equal(t, afterCloseFactor, f.TimeFactor)
	assert.Zero(t, f.ProximityBonus)
	assert.InDelta(t, 0.6*0.1+0.4*1.0, f.Confidence, 1e-9)
}

func TestScoreUnknownActivityTypeGetsDefaultWeight(t *testing.T) {
	e := New(DefaultConfig(), nil)

	f := e.Score(inferActivity("skywriting", 30), inferTarget(true))

	assert.Equal(t, 0.5, f.TypeFactor)
}

func TestScoreMissingReferenceTimestampIsNeutral(t *testing.T) {
	e := New(DefaultConfig(), nil)

	// No reference timestamp on the target: time factors contribute their
	// maximum instead of failing.
	f := e.Score(inferActivity("call", 500), inferTarget(false))
	assert.Equal(t, 1.0, f.TimeFactor)
	assert.Zero(t, f.ProximityBonus)
	assert.InDelta(t, 0.6*1.0+0.4*0.7, f.Confidence, 1e-9)

	// Same when the activity itself has no timestamp.
	a := inferActivity("call", 10)
	a.OccurredAt = nil
	f = e.Score(a, inferTarget(true))
	assert.Equal(t, 1.0, f.TimeFactor)
}

func TestScoreIsDeterministic(t *testing.T) {
	e := New(DefaultConfig(), nil)
	activity := inferActivity("demo", 21)
	target := inferTarget(true)

	first := e.Score(activity, target)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, e.Score(activity, target))
	}
}

func TestValidate(t *testing.T) {
	ok := inferActivity("meeting", 1)
	assert.NoError(t, Validate(ok))

	noPartner := ok
	noPartner.PartnerID = ""
	assert.ErrorIs(t, Validate(noPartner), domain.ErrActivityMalformed)

	noType := ok
	noType.ActivityType = ""
	assert.ErrorIs(t, Validate(noType), domain.ErrActivityMalformed)

	// Missing timestamp degrades the score but is not malformed.
	noTimestamp := ok
	noTimestamp.OccurredAt = nil
	assert.NoError(t, Validate(noTimestamp))
}
