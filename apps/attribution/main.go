package main

import (
	"go.uber.org/fx"

	"github.com/bwmarrin/snowflake"

	"github.com/dylan3796/attribution-mvp/internal/attribution"
	"github.com/dylan3796/attribution-mvp/internal/audit"
	"github.com/dylan3796/attribution-mvp/internal/clock"
	"github.com/dylan3796/attribution-mvp/internal/config"
	"github.com/dylan3796/attribution-mvp/internal/inference"
	"github.com/dylan3796/attribution-mvp/internal/ledger"
	"github.com/dylan3796/attribution-mvp/internal/logger"
	"github.com/dylan3796/attribution-mvp/internal/migration"
	"github.com/dylan3796/attribution-mvp/internal/observability"
	"github.com/dylan3796/attribution-mvp/internal/rule"
	"github.com/dylan3796/attribution-mvp/internal/seed"
	"github.com/dylan3796/attribution-mvp/internal/server"
	"github.com/dylan3796/attribution-mvp/pkg/db"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		logger.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// Functional domains
		attribution.Module,
		inference.Module,
		rule.Module,
		ledger.Module,
		audit.Module,

		seed.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) *snowflake.Node {
	node, err := snowflake.NewNode(cfg.SnowflakeNode)
	if err != nil {
		panic(err)
	}
	return node
}
