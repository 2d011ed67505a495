package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	attrdomain "github.com/dylan3796/attribution-mvp/internal/attribution/domain"
	"github.com/dylan3796/attribution-mvp/internal/clock"
	"github.com/dylan3796/attribution-mvp/internal/rule/domain"
)

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
}

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
}

func NewService(p ServiceParam) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("rule.service"),
		genID: p.GenID,
		clock: p.Clock,
	}
}

func (s *Service) Create(ctx context.Context, input domain.CreateRuleInput) (*attrdomain.AttributionRule, error) {
	rule, err := s.build(input, 1)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Create(rule).Error; err != nil {
		return nil, fmt.Errorf("create rule: %w", err)
	}
	s.log.Info("rule created",
		zap.String("rule_id", rule.ID.String()),
		zap.String("name", rule.Name),
		zap.String("model", string(rule.ModelType)))
	return rule, nil
}

// CreateVersion appends version N+1 of a named rule and deactivates version
// N. Old versions stay in place: ledger entries reference rule ID and
// version, and those rows never change meaning.
func (s *Service) CreateVersion(ctx context.Context, name string, input domain.CreateRuleInput) (*attrdomain.AttributionRule, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.ErrRuleNameRequired
	}
	input.Name = name

	var created *attrdomain.AttributionRule
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var latest attrdomain.AttributionRule
		err := tx.Where("name = ?", name).
			Order("version DESC").
			First(&latest).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrRuleNotFound
			}
			return err
		}

		rule, err := s.build(input, latest.Version+1)
		if err != nil {
			return err
		}
		if err := tx.Create(rule).Error; err != nil {
			return fmt.Errorf("create rule version: %w", err)
		}

		if err := tx.Model(&attrdomain.AttributionRule{}).
			Where("name = ? AND version < ?", name, rule.Version).
			Update("active", false).Error; err != nil {
			return fmt.Errorf("deactivate prior versions: %w", err)
		}

		created = rule
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("rule version created",
		zap.String("rule_id", created.ID.String()),
		zap.String("name", created.Name),
		zap.Int("version", created.Version))
	return created, nil
}

func (s *Service) build(input domain.CreateRuleInput, version int) (*attrdomain.AttributionRule, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, domain.ErrRuleNameRequired
	}
	if input.Constraint == "" {
		input.Constraint = attrdomain.ConstraintMustSumTo100
	}
	if input.Priority == 0 {
		input.Priority = 100
	}

	rule := &attrdomain.AttributionRule{
		ID:         s.genID.Generate(),
		Name:       strings.TrimSpace(input.Name),
		Version:    version,
		ModelType:  input.ModelType,
		Config:     datatypes.NewJSONType(input.Config),
		Filters:    datatypes.NewJSONType(input.Filters),
		AppliesTo:  datatypes.NewJSONType(input.AppliesTo),
		Constraint: input.Constraint,
		Priority:   input.Priority,
		Active:     true,
		CreatedBy:  input.CreatedBy,
		CreatedAt:  s.clock.Now(),
	}

	// Invalid configuration never reaches the table.
	if err := rule.ValidateConfig(); err != nil {
		return nil, err
	}
	switch rule.Constraint {
	case attrdomain.ConstraintMustSumTo100, attrdomain.ConstraintAllowDoubleCounting, attrdomain.ConstraintCapAt100:
	default:
		return nil, fmt.Errorf("%w: %q", attrdomain.ErrUnknownConstraint, rule.Constraint)
	}
	return rule, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*attrdomain.AttributionRule, error) {
	var rule attrdomain.AttributionRule
	if err := s.db.WithContext(ctx).First(&rule, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrRuleNotFound
		}
		return nil, err
	}
	return &rule, nil
}

func (s *Service) List(ctx context.Context, activeOnly bool) ([]attrdomain.AttributionRule, error) {
	q := s.db.WithContext(ctx).Order("priority DESC, id DESC")
	if activeOnly {
		q = q.Where("active = ?", true)
	}
	var rules []attrdomain.AttributionRule
	if err := q.Find(&rules).Error; err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	return rules, nil
}

func (s *Service) Deactivate(ctx context.Context, id snowflake.ID) error {
	res := s.db.WithContext(ctx).
		Model(&attrdomain.AttributionRule{}).
		Where("id = ?", id).
		Update("active", false)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrRuleNotFound
	}
	return nil
}

func (s *Service) Templates() []domain.Template {
	out := make([]domain.Template, len(templates))
	copy(out, templates)
	return out
}

func (s *Service) CreateFromTemplate(ctx context.Context, key, createdBy string) (*attrdomain.AttributionRule, error) {
	for _, tpl := range templates {
		if tpl.Key == key {
			input := tpl.Input
			input.CreatedBy = createdBy
			return s.Create(ctx, input)
		}
	}
	return nil, fmt.Errorf("%w: %q", domain.ErrUnknownTemplate, key)
}
