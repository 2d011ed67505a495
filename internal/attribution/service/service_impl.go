package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dylan3796/attribution-mvp/internal/attribution/domain"
	"github.com/dylan3796/attribution-mvp/internal/attribution/engine"
	"github.com/dylan3796/attribution-mvp/internal/clock"
	"github.com/dylan3796/attribution-mvp/internal/config"
	obsmetrics "github.com/dylan3796/attribution-mvp/internal/observability/metrics"
)

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	cfg     *config.AttributionConfigHolder
	metrics *obsmetrics.Metrics

	engine *engine.Engine
}

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Config  *config.AttributionConfigHolder
	Metrics *obsmetrics.Metrics `optional:"true"`
}

func NewService(p ServiceParam) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("attribution.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		cfg:     p.Config,
		metrics: p.Metrics,

		engine: engine.New(p.Log),
	}
}

func (s *Service) RunTarget(ctx context.Context, targetID snowflake.ID, actor string) (*domain.RunResult, error) {
	return s.runTarget(ctx, targetID, actor, uuid.NewString())
}

func (s *Service) runTarget(ctx context.Context, targetID snowflake.ID, actor, runID string) (*domain.RunResult, error) {
	target, err := s.loadTarget(ctx, targetID)
	if err != nil {
		return nil, err
	}

	var touchpoints []domain.PartnerTouchpoint
	if err := s.db.WithContext(ctx).
		Where("target_id = ?", target.ID).
		Order("id ASC").
		Find(&touchpoints).Error; err != nil {
		return nil, fmt.Errorf("load touchpoints for target %s: %w", target.ID, err)
	}

	var rules []domain.AttributionRule
	if err := s.db.WithContext(ctx).
		Where("active = ?", true).
		Order("id ASC").
		Find(&rules).Error; err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}

	rule, ok := engine.SelectRule(*target, rules)
	if !ok {
		switch engine.FallbackPolicy(s.cfg.Get().FallbackPolicy) {
		case engine.FallbackEqualSplit:
			rule = engine.DefaultRule()
			s.log.Info("no rule matched, applying default equal split",
				zap.String("target_id", target.ID.String()))
		default:
			s.log.Info("no rule matched, fallback policy emits nothing",
				zap.String("target_id", target.ID.String()))
			s.metrics.RecordRun(ctx, string(domain.OutcomeNoRule))
			return &domain.RunResult{
				TargetID: target.ID,
				RunID:    runID,
				Outcome:  domain.OutcomeNoRule,
			}, nil
		}
	}

	calc, err := s.engine.Calculate(*target, touchpoints, rule, actor, s.clock.Now())
	if err != nil {
		return nil, err
	}

	result := &domain.RunResult{
		TargetID: target.ID,
		RunID:    runID,
		Outcome:  calc.Outcome,
		Warnings: calc.Warnings,
	}
	s.metrics.RecordRun(ctx, string(result.Outcome))
	if len(calc.Entries) == 0 {
		return result, nil
	}

	entries, err := s.appendEntries(ctx, target.ID, runID, calc.Entries)
	if err != nil {
		return nil, err
	}
	result.Entries = entries
	s.metrics.RecordLedgerEntries(ctx, string(rule.ModelType), len(entries))

	s.log.Info("attribution run complete",
		zap.String("run_id", runID),
		zap.String("target_id", target.ID.String()),
		zap.String("outcome", string(result.Outcome)),
		zap.Int("entries", len(entries)),
		zap.Int("warnings", len(result.Warnings)))
	return result, nil
}

// appendEntries writes the run's entries to the append-only ledger. Each new
// entry supersedes the partner's previous latest entry for the target; a
// replay with identical inputs carries identical checksums and inserts
// nothing.
func (s *Service) appendEntries(
	ctx context.Context,
	targetID snowflake.ID,
	runID string,
	entries []domain.LedgerEntry,
) ([]domain.LedgerEntry, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var prior []domain.LedgerEntry
		if err := tx.Where("target_id = ?", targetID).
			Order("id ASC").
			Find(&prior).Error; err != nil {
			return fmt.Errorf("load prior ledger entries: %w", err)
		}

		superseded := make(map[snowflake.ID]struct{}, len(prior))
		latestByPartner := make(map[string]snowflake.ID, len(prior))
		for _, p := range prior {
			if p.Supersedes != nil {
				superseded[*p.Supersedes] = struct{}{}
			}
		}
		for _, p := range prior {
			if _, ok := superseded[p.ID]; ok {
				continue
			}
			// prior is ID-ascending, so the last live entry wins.
			latestByPartner[p.PartnerID] = p.ID
		}

		for i := range entries {
			entries[i].ID = s.genID.Generate()
			entries[i].RunID = runID
			if previousID, ok := latestByPartner[entries[i].PartnerID]; ok {
				id := previousID
				entries[i].Supersedes = &id
			}
		}

		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "checksum"}},
			DoNothing: true,
		}).Create(&entries).Error
	})
	if err != nil {
		return nil, fmt.Errorf("append ledger entries: %w", err)
	}
	return entries, nil
}

func (s *Service) RunBatch(ctx context.Context, actor string) ([]domain.RunResult, error) {
	var targetIDs []snowflake.ID
	if err := s.db.WithContext(ctx).
		Model(&domain.AttributionTarget{}).
		Order("id ASC").
		Pluck("id", &targetIDs).Error; err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}

	runID := uuid.NewString()
	results := make([]domain.RunResult, 0, len(targetIDs))
	failed := 0
	for _, id := range targetIDs {
		res, err := s.runTarget(ctx, id, actor, runID)
		if err != nil {
			// One bad target never aborts the batch.
			failed++
			s.log.Error("target attribution failed",
				zap.String("run_id", runID),
				zap.String("target_id", id.String()),
				zap.Error(err))
			results = append(results, domain.RunResult{
				TargetID: id,
				RunID:    runID,
				Outcome:  domain.OutcomeFailed,
				Warnings: []string{err.Error()},
			})
			continue
		}
		results = append(results, *res)
	}

	s.log.Info("batch attribution complete",
		zap.String("run_id", runID),
		zap.Int("targets", len(targetIDs)),
		zap.Int("failed", failed))
	return results, nil
}

func (s *Service) TransitionStage(ctx context.Context, targetID snowflake.ID, stage domain.TargetStage, actor string) (*domain.RunResult, error) {
	if stage.Order() < 0 {
		return nil, fmt.Errorf("stage %q: %w", stage, domain.ErrInvalidStage)
	}

	target, err := s.loadTarget(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if stage.Order() <= target.Stage.Order() {
		return nil, fmt.Errorf("cannot move %s -> %s: %w", target.Stage, stage, domain.ErrStageNotForward)
	}

	if err := s.db.WithContext(ctx).
		Model(&domain.AttributionTarget{}).
		Where("id = ?", target.ID).
		Update("stage", stage).Error; err != nil {
		return nil, fmt.Errorf("update stage: %w", err)
	}

	s.log.Info("target stage transition",
		zap.String("target_id", target.ID.String()),
		zap.String("from", string(target.Stage)),
		zap.String("to", string(stage)))

	// Stage transitions re-attribute: a different rule may now apply.
	return s.RunTarget(ctx, targetID, actor)
}

func (s *Service) loadTarget(ctx context.Context, targetID snowflake.ID) (*domain.AttributionTarget, error) {
	var target domain.AttributionTarget
	if err := s.db.WithContext(ctx).First(&target, "id = ?", targetID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrTargetNotFound
		}
		return nil, fmt.Errorf("load target %s: %w", targetID, err)
	}
	return &target, nil
}
