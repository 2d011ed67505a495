// Package seed loads a small demo dataset for local startup: a few targets,
// explicit touchpoints, raw partner activities and the standard rule
// templates.
package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	attrdomain "github.com/dylan3796/attribution-mvp/internal/attribution/domain"
	inferencedomain "github.com/dylan3796/attribution-mvp/internal/inference/domain"
	ruledomain "github.com/dylan3796/attribution-mvp/internal/rule/domain"
)

// EnsureDemoData seeds example data when the database is empty. Idempotent:
// an existing target short-circuits the whole seed.
func EnsureDemoData(db *gorm.DB, node *snowflake.Node, ruleSvc ruledomain.Service) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	ctx := context.Background()

	var count int64
	if err := db.WithContext(ctx).Model(&attrdomain.AttributionTarget{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	if err := seedRules(ctx, ruleSvc); err != nil {
		return err
	}

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := seedTargets(ctx, tx, node); err != nil {
			return err
		}
		return seedActivities(ctx, tx, node)
	})
}

func seedRules(ctx context.Context, ruleSvc ruledomain.Service) error {
	for _, tmpl := range ruleSvc.Templates() {
		if _, err := ruleSvc.CreateFromTemplate(ctx, tmpl.Key, "seed"); err != nil {
			return err
		}
	}
	return nil
}

type demoTarget struct {
	externalID  string
	name        string
	account     string
	value       string
	stage       attrdomain.TargetStage
	daysAgo     int
	touchpoints []demoTouchpoint
}

type demoTouchpoint struct {
	partner    string
	tpType     attrdomain.TouchpointType
	role       string
	weight     float64
	daysBefore int
}

func seedTargets(ctx context.Context, tx *gorm.DB, node *snowflake.Node) error {
	now := time.Now().UTC()

	targets := []demoTarget{
		{
			externalID: "OPP-1001",
			name:       "Acme platform expansion",
			account:    "Acme Corp",
			value:      "250000.00",
			stage:      attrdomain.StageCommit,
			daysAgo:    12,
			touchpoints: []demoTouchpoint{
				{partner: "northwind", tpType: attrdomain.TouchpointDealRegistration, role: attrdomain.RoleSourcing, weight: 1, daysBefore: 60},
				{partner: "contoso", tpType: attrdomain.TouchpointExplicitTag, role: attrdomain.RoleTechnical, weight: 3, daysBefore: 20},
			},
		},
		{
			externalID: "OPP-1002",
			name:       "Initech pilot",
			account:    "Initech",
			value:      "40000.00",
			stage:      attrdomain.StageEvaluation,
			daysAgo:    5,
			touchpoints: []demoTouchpoint{
				{partner: "globex", tpType: attrdomain.TouchpointSelfReported, role: attrdomain.RoleReferral, weight: 1, daysBefore: 10},
			},
		},
		{
			externalID: "OPP-1003",
			name:       "Umbrella renewal",
			account:    "Umbrella Ltd",
			value:      "120000.00",
			stage:      attrdomain.StageLive,
			daysAgo:    45,
		},
	}

	for _, dt := range targets {
		ref := now.AddDate(0, 0, -dt.daysAgo)
		target := attrdomain.AttributionTarget{
			ID:          node.Generate(),
			ExternalID:  dt.externalID,
			Type:        attrdomain.TargetTypeOpportunity,
			Name:        dt.name,
			Value:       decimal.RequireFromString(dt.value),
			Stage:       dt.stage,
			ReferenceAt: &ref,
			AccountName: dt.account,
		}
		if err := tx.WithContext(ctx).Create(&target).Error; err != nil {
			return err
		}

		for _, dtp := range dt.touchpoints {
			occurred := ref.AddDate(0, 0, -dtp.daysBefore)
			tp := attrdomain.PartnerTouchpoint{
				ID:         node.Generate(),
				TargetID:   target.ID,
				PartnerID:  dtp.partner,
				Type:       dtp.tpType,
				Role:       dtp.role,
				Weight:     dtp.weight,
				OccurredAt: &occurred,
				Confidence: 1,
			}
			if err := tx.WithContext(ctx).Create(&tp).Error; err != nil {
				return err
			}
		}
	}
	return nil
}

func seedActivities(ctx context.Context, tx *gorm.DB, node *snowflake.Node) error {
	now := time.Now().UTC()

	activities := []inferencedomain.PartnerActivity{
		{
			ID:           node.Generate(),
			PartnerID:    "globex",
			ActivityType: "meeting",
			AccountName:  "Acme Corporation",
			Role:         attrdomain.RoleInfluence,
		},
		{
			ID:           node.Generate(),
			PartnerID:    "northwind",
			ActivityType: "technical_workshop",
			AccountName:  "Initech Inc",
			Role:         attrdomain.RoleTechnical,
		},
		{
			ID:           node.Generate(),
			PartnerID:    "contoso",
			ActivityType: "email",
			AccountName:  "No Such Account",
		},
	}
	for i := range activities {
		occurred := now.AddDate(0, 0, -(10 + i*7))
		activities[i].OccurredAt = &occurred
		if err := tx.WithContext(ctx).Create(&activities[i]).Error; err != nil {
			return err
		}
	}
	return nil
}
