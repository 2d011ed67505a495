package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	attrdomain "github.com/dylan3796/attribution-mvp/internal/attribution/domain"
	"github.com/dylan3796/attribution-mvp/internal/clock"
	"github.com/dylan3796/attribution-mvp/internal/inference/domain"
	"github.com/dylan3796/attribution-mvp/internal/inference/engine"
	obsmetrics "github.com/dylan3796/attribution-mvp/internal/observability/metrics"
)

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	metrics *obsmetrics.Metrics

	engine  *engine.Engine
	matcher *engine.AccountMatcher
}

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Engine  *engine.Engine
	Metrics *obsmetrics.Metrics `optional:"true"`
}

func NewService(p ServiceParam) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("inference.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		metrics: p.Metrics,

		engine:  p.Engine,
		matcher: engine.NewAccountMatcher(p.Engine.Config().MatchThreshold),
	}
}

// provenance is what an inferred touchpoint records about its origin: enough
// to explain the score without re-running inference.
type provenance struct {
	ActivityID   string         `json:"activity_id"`
	ActivityType string         `json:"activity_type"`
	AccountName  string         `json:"account_name,omitempty"`
	MatchScore   float64        `json:"match_score,omitempty"`
	Factors      engine.Factors `json:"factors"`
	RunID        string         `json:"run_id"`
}

func (s *Service) ProcessBatch(ctx context.Context) (*domain.BatchResult, error) {
	var activities []domain.PartnerActivity
	if err := s.db.WithContext(ctx).
		Where("processed = ?", false).
		Order("id ASC").
		Find(&activities).Error; err != nil {
		return nil, fmt.Errorf("load unprocessed activities: %w", err)
	}
	return s.process(ctx, activities)
}

func (s *Service) ProcessActivity(ctx context.Context, activityID snowflake.ID) (*domain.BatchResult, error) {
	var activity domain.PartnerActivity
	if err := s.db.WithContext(ctx).First(&activity, "id = ?", activityID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrActivityNotFound
		}
		return nil, err
	}
	return s.process(ctx, []domain.PartnerActivity{activity})
}

func (s *Service) process(ctx context.Context, activities []domain.PartnerActivity) (*domain.BatchResult, error) {
	result := &domain.BatchResult{
		RunID:          uuid.NewString(),
		ActivitiesSeen: len(activities),
		Skipped:        make(map[string]int),
	}
	if len(activities) == 0 {
		return result, nil
	}

	var targets []attrdomain.AttributionTarget
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&targets).Error; err != nil {
		return nil, fmt.Errorf("load targets: %w", err)
	}
	byExternalID := make(map[string]int, len(targets))
	accountNames := make([]string, len(targets))
	for i, t := range targets {
		byExternalID[t.ExternalID] = i
		accountNames[i] = t.AccountName
	}

	var touchpoints []attrdomain.PartnerTouchpoint
	processedIDs := make([]snowflake.ID, 0, len(activities))

	for _, activity := range activities {
		if err := engine.Validate(activity); err != nil {
			result.Skipped[domain.SkipMalformed]++
			result.Warnings = append(result.Warnings, err.Error())
			processedIDs = append(processedIDs, activity.ID)
			continue
		}

		idx, matchScore, reason := s.resolveTarget(activity, byExternalID, accountNames)
		if idx < 0 {
			result.Skipped[reason]++
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("activity %s: %s (account %q, best score %.2f)",
					activity.ID, reason, activity.AccountName, matchScore))
			processedIDs = append(processedIDs, activity.ID)
			continue
		}
		target := targets[idx]

		factors := s.engine.Score(activity, target)
		if factors.Confidence < s.engine.Config().MinConfidence {
			result.Skipped[domain.SkipLowConfidence]++
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("activity %s: confidence %.2f below minimum %.2f",
					activity.ID, factors.Confidence, s.engine.Config().MinConfidence))
			processedIDs = append(processedIDs, activity.ID)
			continue
		}

		prov, err := json.Marshal(provenance{
			ActivityID:   activity.ID.String(),
			ActivityType: activity.ActivityType,
			AccountName:  activity.AccountName,
			MatchScore:   matchScore,
			Factors:      factors,
			RunID:        result.RunID,
		})
		if err != nil {
			return nil, fmt.Errorf("marshal provenance: %w", err)
		}

		touchpoints = append(touchpoints, attrdomain.PartnerTouchpoint{
			ID:         s.genID.Generate(),
			TargetID:   target.ID,
			PartnerID:  activity.PartnerID,
			Type:       attrdomain.TouchpointInferred,
			Role:       roleOrDefault(activity.Role),
			Weight:     1,
			OccurredAt: activity.OccurredAt,
			Confidence: factors.Confidence,
			Provenance: datatypes.JSON(prov),
			CreatedAt:  s.clock.Now(),
		})
		processedIDs = append(processedIDs, activity.ID)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(touchpoints) > 0 {
			if err := tx.Create(&touchpoints).Error; err != nil {
				return fmt.Errorf("insert touchpoints: %w", err)
			}
		}
		if err := tx.Model(&domain.PartnerActivity{}).
			Where("id IN ?", processedIDs).
			Update("processed", true).Error; err != nil {
			return fmt.Errorf("mark activities processed: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result.TouchpointsCreated = len(touchpoints)
	s.metrics.RecordInferredTouchpoints(ctx, result.TouchpointsCreated)
	for reason, n := range result.Skipped {
		s.metrics.RecordActivitySkipped(ctx, reason, n)
	}
	s.log.Info("inference batch complete",
		zap.String("run_id", result.RunID),
		zap.Int("activities", result.ActivitiesSeen),
		zap.Int("touchpoints", result.TouchpointsCreated),
		zap.Any("skipped", result.Skipped))
	return result, nil
}

// resolveTarget pins the activity to a target: an explicit external ID wins,
// otherwise the account name is matched fuzzily.
func (s *Service) resolveTarget(
	activity domain.PartnerActivity,
	byExternalID map[string]int,
	accountNames []string,
) (int, float64, string) {
	if activity.TargetExternalID != "" {
		if idx, ok := byExternalID[activity.TargetExternalID]; ok {
			return idx, 1.0, ""
		}
		return -1, 0, domain.SkipNoTarget
	}

	if activity.AccountName == "" {
		return -1, 0, domain.SkipMalformed
	}
	idx, score := s.matcher.Match(activity.AccountName, accountNames)
	if idx < 0 {
		return -1, score, domain.SkipNoAccountMatch
	}
	return idx, score, ""
}

func roleOrDefault(role string) string {
	if role == "" {
		return attrdomain.RoleInfluence
	}
	return role
}
