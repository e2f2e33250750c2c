package service

import (
	"github.com/bwmarrin/snowflake"
	agencydomain "github.com/smallbiznis/obligo/internal/agency/domain"
	auditdomain "github.com/smallbiznis/obligo/internal/audit/domain"
	"github.com/smallbiznis/obligo/internal/clock"
	commissiondomain "github.com/smallbiznis/obligo/internal/commission/domain"
	"github.com/smallbiznis/obligo/internal/config"
	obligationdomain "github.com/smallbiznis/obligo/internal/obligation/domain"
	obsmetrics "github.com/smallbiznis/obligo/internal/observability/metrics"
	"github.com/smallbiznis/obligo/internal/recurrence/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB             *gorm.DB
	Log            *zap.Logger
	GenID          *snowflake.Node
	Clock          clock.Clock
	Engine         *config.EngineConfigHolder
	AgencyRepo     agencydomain.Repository
	ObligationRepo obligationdomain.Repository
	CommissionRepo commissiondomain.Repository
	CommissionSvc  commissiondomain.Service
	AuditSvc       auditdomain.Service `optional:"true"`
	ObsMetrics     *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db             *gorm.DB
	log            *zap.Logger
	genID          *snowflake.Node
	clock          clock.Clock
	engine         *config.EngineConfigHolder
	agencyRepo     agencydomain.Repository
	obligationRepo obligationdomain.Repository
	commissionRepo commissiondomain.Repository
	commissionSvc  commissiondomain.Service
	auditSvc       auditdomain.Service
	obsMetrics     *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:             p.DB,
		log:            p.Log.Named("recurrence.service"),
		genID:          p.GenID,
		clock:          p.Clock,
		engine:         p.Engine,
		agencyRepo:     p.AgencyRepo,
		obligationRepo: p.ObligationRepo,
		commissionRepo: p.CommissionRepo,
		commissionSvc:  p.CommissionSvc,
		auditSvc:       p.AuditSvc,
		obsMetrics:     p.ObsMetrics,
	}
}
