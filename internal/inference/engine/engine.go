// Package engine scores raw partner activities into touchpoint confidence.
// Scoring is pure: the same activity, target and config always produce the
// same confidence, and every factor lands in the provenance record.
package engine

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	attrdomain "github.com/dylan3796/attribution-mvp/internal/attribution/domain"
	"github.com/dylan3796/attribution-mvp/internal/inference/domain"
)

// Config is the inference tuning surface. Everything here is externally
// loaded; the defaults are documented policy, not hidden magic.
type Config struct {
	// HalfLifeDays drives the exponential decay of the time factor:
	// 0.5^(age_days / half_life_days).
	HalfLifeDays float64
	// ProximityWindowDays and ProximityBonus: activities within the window
	// before the reference date get the additive bonus, capped at 1.0.
	ProximityWindowDays float64
	ProximityBonus      float64
	// DecayWeight and TypeWeight combine the time factor and the activity
	// type factor by weighted sum. They should sum to 1.
	DecayWeight float64
	TypeWeight  float64
	// ActivityTypeWeights maps activity type -> prior credibility in [0,1].
	ActivityTypeWeights map[string]float64
	// DefaultActivityWeight applies to activity types not in the map.
	DefaultActivityWeight float64
	// MatchThreshold is the minimum fuzzy account-name similarity.
	MatchThreshold float64
	// MinConfidence drops inferred touchpoints scoring below it.
	MinConfidence float64
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		HalfLifeDays:        90,
		ProximityWindowDays: 14,
		ProximityBonus:      0.15,
		DecayWeight:         0.6,
		TypeWeight:          0.4,
		ActivityTypeWeights: map[string]float64{
			"meeting":            1.0,
			"call":               0.7,
			"email":              0.5,
			"demo":               0.9,
			"technical_workshop": 1.0,
			"referral":           1.0,
			"introduction":       0.8,
		},
		DefaultActivityWeight: 0.5,
		MatchThreshold:        0.6,
		MinConfidence:         0.3,
	}
}

// afterCloseFactor is the time factor for activities occurring after the
// target's reference date. Late evidence is weak, not worthless.
const afterCloseFactor = 0.1

// Factors is the score breakdown persisted in the touchpoint's provenance.
type Factors struct {
	TimeFactor     float64 `json:"time_factor"`
	TypeFactor     float64 `json:"type_factor"`
	ProximityBonus float64 `json:"proximity_bonus"`
	Confidence     float64 `json:"confidence"`
}

type Engine struct {
	cfg Config
	log *zap.Logger
}

func New(cfg Config, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{cfg: cfg, log: log.Named("inference.engine")}
}

func (e *Engine) Config() Config { return e.cfg }

// Score computes the confidence that an activity represents real partner
// involvement with the target. Confidence is a weighted sum of the time
// factor and the activity-type factor, plus the proximity bonus, capped
// at 1.0.
//
// A target without a reference timestamp, or an activity without one, makes
// the time factor neutral at its maximum rather than failing: incomplete
// data degrades the score's sharpness, never the batch.
func (e *Engine) Score(activity domain.PartnerActivity, target attrdomain.AttributionTarget) Factors {
	f := Factors{TimeFactor: 1.0}

	if target.ReferenceAt != nil && activity.OccurredAt != nil {
		ageDays := target.ReferenceAt.Sub(*activity.OccurredAt).Hours() / 24
		switch {
		case ageDays < 0:
			f.TimeFactor = afterCloseFactor
		default:
			f.TimeFactor = math.Pow(0.5, ageDays/e.cfg.HalfLifeDays)
			if ageDays <= e.cfg.ProximityWindowDays {
				f.ProximityBonus = e.cfg.ProximityBonus
			}
		}
	}

	f.TypeFactor = e.activityWeight(activity.ActivityType)

	confidence := e.cfg.DecayWeight*f.TimeFactor + e.cfg.TypeWeight*f.TypeFactor + f.ProximityBonus
	f.Confidence = math.Min(1.0, math.Max(0, confidence))
	return f
}

func (e *Engine) activityWeight(activityType string) float64 {
	if w, ok := e.cfg.ActivityTypeWeights[activityType]; ok {
		return w
	}
	return e.cfg.DefaultActivityWeight
}

// Validate rejects activities the scorer cannot work with at all. Missing
// timestamps and unknown activity types are degraded, not rejected; only a
// record with no partner or no activity type is malformed.
func Validate(activity domain.PartnerActivity) error {
	if activity.PartnerID == "" {
		return fmt.Errorf("activity %s has no partner: %w", activity.ID, domain.ErrActivityMalformed)
	}
	if activity.ActivityType == "" {
		return fmt.Errorf("activity %s has no activity type: %w", activity.ID, domain.ErrActivityMalformed)
	}
	return nil
}
