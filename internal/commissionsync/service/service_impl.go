package service

import (
	"context"
	"sync"

	"github.com/bwmarrin/snowflake"
	agencydomain "github.com/smallbiznis/obligo/internal/agency/domain"
	commissiondomain "github.com/smallbiznis/obligo/internal/commission/domain"
	"github.com/smallbiznis/obligo/internal/commissionsync/domain"
	"github.com/smallbiznis/obligo/internal/config"
	"github.com/smallbiznis/obligo/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/obligo/internal/observability/metrics"
	"github.com/smallbiznis/obligo/internal/observability/tracing"
	"github.com/smallbiznis/obligo/internal/ratelimit"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB             *gorm.DB
	Log            *zap.Logger
	Engine         *config.EngineConfigHolder
	AgencyRepo     agencydomain.Repository
	CommissionRepo commissiondomain.Repository
	CommissionSvc  commissiondomain.Service
	Bucket         *ratelimit.TokenBucket `optional:"true"`
	ObsMetrics     *obsmetrics.Metrics    `optional:"true"`
}

type Service struct {
	db             *gorm.DB
	log            *zap.Logger
	engine         *config.EngineConfigHolder
	agencyRepo     agencydomain.Repository
	commissionRepo commissiondomain.Repository
	commissionSvc  commissiondomain.Service
	bucket         *ratelimit.TokenBucket
	obsMetrics     *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:             p.DB,
		log:            p.Log.Named("commissionsync.service"),
		engine:         p.Engine,
		agencyRepo:     p.AgencyRepo,
		commissionRepo: p.CommissionRepo,
		commissionSvc:  p.CommissionSvc,
		bucket:         p.Bucket,
		obsMetrics:     p.ObsMetrics,
	}
}

func (s *Service) SyncMissingCommissions(ctx context.Context) (result *domain.SyncResult, err error) {
	cfg := s.engine.Get()
	limiter := ratelimit.NewSyncLimiter(s.bucket, cfg.Sync.RatePerSecond, cfg.Sync.Burst, s.obsMetrics)

	ctx, end := tracing.StartSpan(ctx, "commissionsync.sync_missing_commissions",
		attribute.String("backend", limiter.Backend()),
	)
	defer func() { end(err) }()

	pending, scanned, err := s.salesWithoutCommission(ctx, cfg.Reconcile.BatchSize)
	if err != nil {
		return nil, err
	}

	log := logger.WithContext(ctx, s.log)
	items := make([]domain.SyncItem, len(pending))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(cfg.Sync.Concurrency, 1))

	var mu sync.Mutex
	clientNames := map[snowflake.ID]string{}
	clientName := func(id snowflake.ID) string {
		mu.Lock()
		defer mu.Unlock()
		if name, ok := clientNames[id]; ok {
			return name
		}
		name := ""
		if client, err := s.agencyRepo.FindClient(gctx, s.db, id); err == nil {
			name = client.Name
		}
		clientNames[id] = name
		return name
	}

	for i, sale := range pending {
		g.Go(func() error {
			item := domain.SyncItem{SaleID: sale.ID}
			if err := limiter.Wait(gctx); err != nil {
				return err
			}

			res, err := s.commissionSvc.CreateCommission(gctx, commissiondomain.NewSaleRequest(sale, clientName(sale.ClientID)))
			switch {
			case err != nil:
				if gctx.Err() != nil {
					return gctx.Err()
				}
				item.Status = domain.ItemFailed
				item.Error = err.Error()
				log.Warn("commission sync failed", zap.String("sale_id", sale.ID.String()), zap.Error(err))
			case res.Created:
				item.Status = domain.ItemCreated
				item.CommissionID = &res.Commission.ID
			default:
				item.Status = domain.ItemExisting
				item.CommissionID = &res.Commission.ID
			}
			s.obsMetrics.RecordSyncItem(gctx, string(item.Status))
			items[i] = item
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result = &domain.SyncResult{Scanned: scanned, Items: items}
	for _, item := range items {
		switch item.Status {
		case domain.ItemCreated:
			result.Created++
		case domain.ItemFailed:
			result.Failed++
		}
	}

	log.Info("commission sync finished",
		zap.Int("scanned", result.Scanned),
		zap.Int("created", result.Created),
		zap.Int("failed", result.Failed),
		zap.String("limiter", limiter.Backend()),
	)
	return result, nil
}

// salesWithoutCommission pages through closed sales and keeps the ones with
// no commission row.
func (s *Service) salesWithoutCommission(ctx context.Context, batchSize int) ([]*agencydomain.Sale, int, error) {
	if batchSize <= 0 {
		batchSize = 200
	}

	var (
		pending []*agencydomain.Sale
		scanned int
		afterID snowflake.ID
	)
	for {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		sales, err := s.agencyRepo.ListClosedSales(ctx, s.db, afterID, batchSize)
		if err != nil {
			return nil, 0, err
		}
		if len(sales) == 0 {
			break
		}
		afterID = sales[len(sales)-1].ID
		scanned += len(sales)

		ids := make([]snowflake.ID, 0, len(sales))
		for _, sale := range sales {
			ids = append(ids, sale.ID)
		}
		existing, err := s.commissionRepo.ListBySaleIDs(ctx, s.db, ids)
		if err != nil {
			return nil, 0, err
		}
		for _, sale := range sales {
			if _, ok := existing[sale.ID]; !ok {
				pending = append(pending, sale)
			}
		}

		if len(sales) < batchSize {
			break
		}
	}
	return pending, scanned, nil
}
