package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/dylan3796/attribution-mvp/internal/audit/domain"
	"github.com/dylan3796/attribution-mvp/internal/clock"
	"github.com/dylan3796/attribution-mvp/pkg/db/option"
	"github.com/dylan3796/attribution-mvp/pkg/db/pagination"
	"github.com/dylan3796/attribution-mvp/pkg/repository"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
}

type Service struct {
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  repository.Repository[domain.AuditLog]
}

func NewService(p Params) domain.Service {
	return &Service{
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  repository.ProvideStore[domain.AuditLog](p.DB),
	}
}

func (s *Service) Record(ctx context.Context, actorID, action, targetType string, targetID *string, metadata map[string]any) error {
	action = strings.TrimSpace(action)
	if action == "" {
		return domain.ErrInvalidAction
	}
	if strings.TrimSpace(targetType) == "" {
		targetType = "unknown"
	}
	if strings.TrimSpace(actorID) == "" {
		actorID = "system"
	}

	entry := domain.AuditLog{
		ID:         s.genID.Generate(),
		ActorID:    actorID,
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		Metadata:   datatypes.JSONMap(metadata),
		CreatedAt:  s.clock.Now(),
	}
	if err := s.repo.Create(ctx, &entry); err != nil {
		s.log.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
		return fmt.Errorf("write audit log: %w", err)
	}
	return nil
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) ([]domain.AuditLog, *pagination.PageInfo, error) {
	limit := req.Limit()

	query := &domain.AuditLog{
		Action:     strings.TrimSpace(req.Action),
		TargetType: strings.TrimSpace(req.TargetType),
		ActorID:    strings.TrimSpace(req.ActorID),
	}

	opts := []option.QueryOption{
		option.WithOrder("id DESC"),
		option.WithLimit(limit + 1),
	}
	if strings.TrimSpace(req.PageToken) != "" {
		cursor, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return nil, nil, domain.ErrInvalidPageToken
		}
		beforeID, err := strconv.ParseInt(cursor.ID, 10, 64)
		if err != nil {
			return nil, nil, domain.ErrInvalidPageToken
		}
		opts = append(opts, option.WithCondition("id < ?", beforeID))
	}

	rows, err := s.repo.Find(ctx, query, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("list audit logs: %w", err)
	}

	rows, info, err := pagination.BuildPage(rows, limit, func(l *domain.AuditLog) string {
		return strconv.FormatInt(int64(l.ID), 10)
	})
	if err != nil {
		return nil, nil, err
	}

	logs := make([]domain.AuditLog, len(rows))
	for i, r := range rows {
		logs[i] = *r
	}
	return logs, info, nil
}
