// Package server exposes the HTTP surface: ingest, rule management, run
// triggers and ledger reads. It is a thin layer over the domain services.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	attrdomain "github.com/dylan3796/attribution-mvp/internal/attribution/domain"
	auditdomain "github.com/dylan3796/attribution-mvp/internal/audit/domain"
	"github.com/dylan3796/attribution-mvp/internal/config"
	inferencedomain "github.com/dylan3796/attribution-mvp/internal/inference/domain"
	ledgerdomain "github.com/dylan3796/attribution-mvp/internal/ledger/domain"
	obslogger "github.com/dylan3796/attribution-mvp/internal/observability/logger"
	obsmetrics "github.com/dylan3796/attribution-mvp/internal/observability/metrics"
	ruledomain "github.com/dylan3796/attribution-mvp/internal/rule/domain"
	"github.com/dylan3796/attribution-mvp/pkg/repository"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(log))
	r.Use(httpMetrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(
		httpMetrics.Registry(), promhttp.HandlerOpts{})))

	return r
}

func registerGin(log *zap.Logger, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(log, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine         *gin.Engine
	cfg            config.Config
	db             *gorm.DB
	genID          *snowflake.Node
	attributionSvc attrdomain.Service
	inferenceSvc   inferencedomain.Service
	ruleSvc        ruledomain.Service
	ledgerSvc      ledgerdomain.Service
	auditSvc       auditdomain.Service

	targetRepo     repository.Repository[attrdomain.AttributionTarget]
	touchpointRepo repository.Repository[attrdomain.PartnerTouchpoint]
	activityRepo   repository.Repository[inferencedomain.PartnerActivity]
}

type ServerParams struct {
	fx.In

	Gin            *gin.Engine
	Cfg            config.Config
	DB             *gorm.DB
	GenID          *snowflake.Node
	AttributionSvc attrdomain.Service
	InferenceSvc   inferencedomain.Service
	RuleSvc        ruledomain.Service
	LedgerSvc      ledgerdomain.Service
	AuditSvc       auditdomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:         p.Gin,
		cfg:            p.Cfg,
		db:             p.DB,
		genID:          p.GenID,
		attributionSvc: p.AttributionSvc,
		inferenceSvc:   p.InferenceSvc,
		ruleSvc:        p.RuleSvc,
		ledgerSvc:      p.LedgerSvc,
		auditSvc:       p.AuditSvc,
		targetRepo:     repository.ProvideStore[attrdomain.AttributionTarget](p.DB),
		touchpointRepo: repository.ProvideStore[attrdomain.PartnerTouchpoint](p.DB),
		activityRepo:   repository.ProvideStore[inferencedomain.PartnerActivity](p.DB),
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Targets --------
	api.POST("/targets", s.CreateTarget)
	api.GET("/targets", s.ListTargets)
	api.GET("/targets/:id", s.GetTargetByID)
	api.POST("/targets/:id/stage", s.TransitionTargetStage)
	api.POST("/targets/:id/run", s.RunTarget)
	api.GET("/targets/:id/ledger", s.GetTargetLedger)

	// -------- Touchpoints --------
	api.POST("/touchpoints", s.CreateTouchpoint)
	api.GET("/touchpoints", s.ListTouchpoints)

	// -------- Activities / inference --------
	api.POST("/activities", s.CreateActivity)
	api.GET("/activities", s.ListActivities)
	api.POST("/activities/:id/process", s.ProcessActivity)
	api.POST("/inference/runs", s.RunInference)

	// -------- Rules --------
	api.POST("/rules", s.CreateRule)
	api.GET("/rules", s.ListRules)
	api.GET("/rules/templates", s.ListRuleTemplates)
	api.POST("/rules/templates/:key", s.CreateRuleFromTemplate)
	api.GET("/rules/:id", s.GetRuleByID)
	api.DELETE("/rules/:id", s.DeactivateRule)
	api.POST("/rules/:id/versions", s.CreateRuleVersion)

	// -------- Attribution runs --------
	api.POST("/runs", s.RunBatch)

	// -------- Ledger --------
	api.GET("/ledger", s.ListLedgerEntries)
	api.GET("/partners/summary", s.ListPartnerSummaries)

	// -------- Audit --------
	api.GET("/audit_logs", s.ListAuditLogs)
}
