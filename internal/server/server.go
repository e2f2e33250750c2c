package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	agencydomain "github.com/smallbiznis/obligo/internal/agency/domain"
	auditdomain "github.com/smallbiznis/obligo/internal/audit/domain"
	"github.com/smallbiznis/obligo/internal/authorization"
	commissiondomain "github.com/smallbiznis/obligo/internal/commission/domain"
	commissionsyncdomain "github.com/smallbiznis/obligo/internal/commissionsync/domain"
	"github.com/smallbiznis/obligo/internal/config"
	lifecycledomain "github.com/smallbiznis/obligo/internal/lifecycle/domain"
	obligationdomain "github.com/smallbiznis/obligo/internal/obligation/domain"
	"github.com/smallbiznis/obligo/internal/observability"
	obsmiddleware "github.com/smallbiznis/obligo/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/obligo/internal/observability/metrics"
	obstracing "github.com/smallbiznis/obligo/internal/observability/tracing"
	reconciledomain "github.com/smallbiznis/obligo/internal/reconcile/domain"
	recurrencedomain "github.com/smallbiznis/obligo/internal/recurrence/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(RunHTTP),
)

func NewEngine(obsCfg observability.Config, log *zap.Logger, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Base:            log.Named("http"),
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(httpMetrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func RunHTTP(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, s *Server) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
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
	engine        *gin.Engine
	cfg           config.Config
	db            *gorm.DB
	agencyRepo    agencydomain.Repository
	authzSvc      authorization.Service
	auditSvc      auditdomain.Service
	obligationSvc obligationdomain.Service
	commissionSvc commissiondomain.Service
	recurrenceSvc recurrencedomain.Service
	reconcileSvc  reconciledomain.Service
	syncSvc       commissionsyncdomain.Service
	lifecycleSvc  lifecycledomain.Service
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	DB            *gorm.DB
	AgencyRepo    agencydomain.Repository
	AuthzSvc      authorization.Service
	AuditSvc      auditdomain.Service
	ObligationSvc obligationdomain.Service
	CommissionSvc commissiondomain.Service
	RecurrenceSvc recurrencedomain.Service
	ReconcileSvc  reconciledomain.Service
	SyncSvc       commissionsyncdomain.Service
	LifecycleSvc  lifecycledomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		db:            p.DB,
		agencyRepo:    p.AgencyRepo,
		authzSvc:      p.AuthzSvc,
		auditSvc:      p.AuditSvc,
		obligationSvc: p.ObligationSvc,
		commissionSvc: p.CommissionSvc,
		recurrenceSvc: p.RecurrenceSvc,
		reconcileSvc:  p.ReconcileSvc,
		syncSvc:       p.SyncSvc,
		lifecycleSvc:  p.LifecycleSvc,
	}

	svc.registerAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/v1")
	api.Use(s.AdminAuthRequired())

	// -------- Contracts --------
	api.POST("/contracts/:id/future-accounts", s.authorize(authorization.ObjectRecurrence, authorization.ActionRecurrenceGenerate), s.GenerateFutureAccounts)
	api.DELETE("/contracts/:id/future-accounts", s.authorize(authorization.ObjectRecurrence, authorization.ActionRecurrenceCancel), s.CancelFutureAccounts)

	// -------- Recurrences --------
	api.POST("/recurrences/process", s.authorize(authorization.ObjectRecurrence, authorization.ActionRecurrenceProcess), s.ProcessDueRecurrences)
	api.POST("/recurrences/templates/process", s.authorize(authorization.ObjectRecurrence, authorization.ActionRecurrenceProcess), s.ProcessRecurringTemplates)

	// -------- Obligations --------
	api.GET("/obligations", s.authorize(authorization.ObjectObligation, authorization.ActionObligationView), s.ListObligations)
	api.GET("/obligations/:id", s.authorize(authorization.ObjectObligation, authorization.ActionObligationView), s.GetObligation)
	api.POST("/obligations/:id/confirm", s.authorize(authorization.ObjectObligation, authorization.ActionObligationConfirm), s.ConfirmObligation)
	api.POST("/obligations/:id/cancel", s.authorize(authorization.ObjectObligation, authorization.ActionObligationCancel), s.CancelObligation)
	api.DELETE("/obligations/:id", s.authorize(authorization.ObjectObligation, authorization.ActionObligationDelete), s.DeleteObligation)

	// -------- Commissions --------
	api.POST("/commissions", s.authorize(authorization.ObjectCommission, authorization.ActionCommissionCreate), s.CreateCommission)
	api.GET("/commissions/:id", s.authorize(authorization.ObjectObligation, authorization.ActionObligationView), s.GetCommission)
	api.DELETE("/commissions/:id", s.authorize(authorization.ObjectCommission, authorization.ActionCommissionDelete), s.DeleteCommission)
	api.POST("/commissions/sync", s.authorize(authorization.ObjectCommission, authorization.ActionCommissionSync), s.SyncMissingCommissions)

	// -------- Reconciliation --------
	api.POST("/reconciliation/orphans/sweep", s.authorize(authorization.ObjectReconciliation, authorization.ActionReconciliationSweep), s.SweepOrphans)
	api.GET("/reconciliation/inconsistencies", s.authorize(authorization.ObjectReconciliation, authorization.ActionReconciliationDetect), s.DetectInconsistencies)
	api.POST("/reconciliation/inconsistencies/repair", s.authorize(authorization.ObjectReconciliation, authorization.ActionReconciliationRepair), s.RepairInconsistencies)

	// -------- Lifecycle hooks --------
	api.POST("/hooks/sales/validate", s.authorize(authorization.ObjectLifecycle, authorization.ActionLifecycleSaleSaved), s.ValidateSale)
	api.POST("/hooks/contracts/validate", s.authorize(authorization.ObjectLifecycle, authorization.ActionLifecycleContractSaved), s.ValidateContract)
	api.POST("/hooks/sales/:id/saved", s.authorize(authorization.ObjectLifecycle, authorization.ActionLifecycleSaleSaved), s.SaleSaved)
	api.POST("/hooks/contracts/:id/saved", s.authorize(authorization.ObjectLifecycle, authorization.ActionLifecycleContractSaved), s.ContractSaved)

	// -------- Audit --------
	api.GET("/audit-logs", s.authorize(authorization.ObjectAuditLog, authorization.ActionAuditLogView), s.ListAuditLogs)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
