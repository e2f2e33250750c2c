package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	agencydomain "github.com/smallbiznis/obligo/internal/agency/domain"
	"github.com/smallbiznis/obligo/internal/authorization"
	"github.com/smallbiznis/obligo/internal/clock"
	commissionsyncdomain "github.com/smallbiznis/obligo/internal/commissionsync/domain"
	obsmetrics "github.com/smallbiznis/obligo/internal/observability/metrics"
	reconciledomain "github.com/smallbiznis/obligo/internal/reconcile/domain"
	recurrencedomain "github.com/smallbiznis/obligo/internal/recurrence/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	Clock         clock.Clock
	AuthzSvc      authorization.Service
	AgencyRepo    agencydomain.Repository
	RecurrenceSvc recurrencedomain.Service
	ReconcileSvc  reconciledomain.Service
	SyncSvc       commissionsyncdomain.Service
	Config        Config `optional:"true"`
}

type Scheduler struct {
	db            *gorm.DB
	log           *zap.Logger
	cfg           Config
	clock         clock.Clock
	authzSvc      authorization.Service
	agencyRepo    agencydomain.Repository
	recurrenceSvc recurrencedomain.Service
	reconcileSvc  reconciledomain.Service
	syncSvc       commissionsyncdomain.Service
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.Clock == nil || p.AuthzSvc == nil || p.AgencyRepo == nil ||
		p.RecurrenceSvc == nil || p.ReconcileSvc == nil || p.SyncSvc == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:            p.DB,
		log:           p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:           p.Config.withDefaults(),
		clock:         p.Clock,
		authzSvc:      p.AuthzSvc,
		agencyRepo:    p.AgencyRepo,
		recurrenceSvc: p.RecurrenceSvc,
		reconcileSvc:  p.ReconcileSvc,
		syncSvc:       p.SyncSvc,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, finish := s.beginRun(ctx, name)
	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, time.Since(start))
	if err != nil && run.errors == 0 {
		run.errors++
	}
	finish()
	if err == nil {
		return nil
	}

	// deadline is a soft timeout: the next tick picks up where this one stopped
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		schedMetrics.IncJobTimeout(name)
	}
	schedMetrics.IncJobError(name, err)
	if isTimeout {
		run.log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce runs every enabled job in order and joins their errors.
func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name string
		Run  func(context.Context) error
	}{
		{JobContractHorizon, s.ContractHorizonJob},
		{JobRecurringTemplates, s.RecurringTemplatesJob},
		{JobOrphanSweep, s.OrphanSweepJob},
		{JobCommissionSync, s.CommissionSyncJob},
	}

	for _, job := range jobs {
		if !s.isJobEnabled(job.Name) {
			continue
		}
		err = errors.Join(err, s.runJob(parent, job.Name, s.cfg.JobTimeout, job.Run))
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(s.cfg.RunInterval)
	schedMetrics := obsmetrics.Scheduler()

	for {
		runLag := s.clock.Now().Sub(nextRun)
		if runLag > 0 {
			schedMetrics.ObserveRunLoopLag(runLag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	// an empty list enables every job
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

// ContractHorizonJob keeps every active recurring contract expanded up to the
// configured horizon as months roll over.
func (s *Scheduler) ContractHorizonJob(ctx context.Context) error {
	ctx, run, finish := s.beginRun(ctx, JobContractHorizon)
	defer finish()
	if err := s.authorizeSystem(ctx, authorization.ObjectRecurrence, authorization.ActionRecurrenceGenerate); err != nil {
		run.fail("scheduler.authorize.failed", err)
		return err
	}

	var (
		jobErr  error
		partial bool
		afterID snowflake.ID
	)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		contracts, err := s.agencyRepo.ListExpandableContracts(ctx, s.db, afterID, s.cfg.BatchSize)
		if err != nil {
			run.fail("scheduler.contracts.fetch.failed", err)
			return errors.Join(jobErr, err)
		}
		if len(contracts) == 0 {
			break
		}
		for _, contract := range contracts {
			afterID = contract.ID
			res, err := s.recurrenceSvc.GenerateFutureAccounts(ctx, contract.ID)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				jobErr = errors.Join(jobErr, err)
				run.fail("scheduler.contract.generate.failed", err,
					zap.String("contract_id", contract.ID.String()),
				)
				continue
			}
			run.record("obligation", len(res.Obligations), len(res.Failures))
			if len(res.Failures) > 0 {
				partial = true
			}
		}
		if len(contracts) < s.cfg.BatchSize {
			break
		}
	}
	if partial {
		jobErr = errors.Join(jobErr, obsmetrics.ErrPartialFailure)
	}
	return jobErr
}

func (s *Scheduler) RecurringTemplatesJob(ctx context.Context) error {
	ctx, run, finish := s.beginRun(ctx, JobRecurringTemplates)
	defer finish()
	if err := s.authorizeSystem(ctx, authorization.ObjectRecurrence, authorization.ActionRecurrenceProcess); err != nil {
		run.fail("scheduler.authorize.failed", err)
		return err
	}

	res, err := s.recurrenceSvc.ProcessGenericRecurringTemplates(ctx)
	if err != nil {
		run.fail("scheduler.templates.process.failed", err)
		return err
	}
	run.record("obligation", res.Created, res.Failed)
	if res.Failed > 0 {
		return obsmetrics.ErrPartialFailure
	}
	return nil
}

func (s *Scheduler) OrphanSweepJob(ctx context.Context) error {
	ctx, run, finish := s.beginRun(ctx, JobOrphanSweep)
	defer finish()
	if err := s.authorizeSystem(ctx, authorization.ObjectReconciliation, authorization.ActionReconciliationSweep); err != nil {
		run.fail("scheduler.authorize.failed", err)
		return err
	}

	res, err := s.reconcileSvc.SweepOrphans(ctx, reconciledomain.SweepRequest{DryRun: s.cfg.SweepDryRun})
	if err != nil {
		run.fail("scheduler.orphans.sweep.failed", err)
		return err
	}
	run.record("obligation", res.Deleted, res.Failed)
	if res.Failed > 0 {
		return obsmetrics.ErrPartialFailure
	}
	return nil
}

func (s *Scheduler) CommissionSyncJob(ctx context.Context) error {
	ctx, run, finish := s.beginRun(ctx, JobCommissionSync)
	defer finish()
	if err := s.authorizeSystem(ctx, authorization.ObjectCommission, authorization.ActionCommissionSync); err != nil {
		run.fail("scheduler.authorize.failed", err)
		return err
	}

	res, err := s.syncSvc.SyncMissingCommissions(ctx)
	if err != nil {
		run.fail("scheduler.commissions.sync.failed", err)
		return err
	}
	run.record("commission", res.Created, res.Failed)
	if res.Failed > 0 {
		return obsmetrics.ErrPartialFailure
	}
	return nil
}

func (s *Scheduler) authorizeSystem(ctx context.Context, object string, action string) error {
	return s.authzSvc.Authorize(ctx, "system", object, action)
}
