package seed

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/dylan3796/attribution-mvp/internal/config"
	ruledomain "github.com/dylan3796/attribution-mvp/internal/rule/domain"
)

var Module = fx.Module("seed",
	fx.Invoke(func(db *gorm.DB, cfg config.Config, node *snowflake.Node, ruleSvc ruledomain.Service) error {
		if !cfg.SeedDemoData {
			return nil
		}
		return EnsureDemoData(db, node, ruleSvc)
	}),
)
