package migration

import (
	"strings"

	"go.uber.org/fx"
	"gorm.io/gorm"

	attrdomain "github.com/dylan3796/attribution-mvp/internal/attribution/domain"
	auditdomain "github.com/dylan3796/attribution-mvp/internal/audit/domain"
	"github.com/dylan3796/attribution-mvp/internal/config"
	inferencedomain "github.com/dylan3796/attribution-mvp/internal/inference/domain"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if !cfg.MigrateOnStart {
			return nil
		}

		if strings.EqualFold(cfg.DBType, "postgres") {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			return RunMigrations(sqlDB)
		}

		return conn.AutoMigrate(
			&attrdomain.AttributionTarget{},
			&attrdomain.PartnerTouchpoint{},
			&attrdomain.AttributionRule{},
			&attrdomain.LedgerEntry{},
			&inferencedomain.PartnerActivity{},
			&auditdomain.AuditLog{},
		)
	}),
)
