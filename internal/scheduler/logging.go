package scheduler

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	obscontext "github.com/smallbiznis/obligo/internal/observability/context"
	obslogger "github.com/smallbiznis/obligo/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/obligo/internal/observability/metrics"
	"go.uber.org/zap"
)

// jobRun tallies one execution of a job. Every audit entry and log line
// written underneath carries its run_id.
type jobRun struct {
	job       string
	runID     string
	batchSize int
	startedAt time.Time
	processed int
	errors    int
	log       *zap.Logger
}

type jobRunKey struct{}

// beginRun attaches a jobRun to ctx unless one is already there, which
// happens when runJob wraps a job method. The returned func logs the
// summary and is a no-op for the nested call.
func (s *Scheduler) beginRun(ctx context.Context, job string) (context.Context, *jobRun, func()) {
	if existing, ok := ctx.Value(jobRunKey{}).(*jobRun); ok {
		return ctx, existing, func() {}
	}

	run := &jobRun{
		job:       job,
		runID:     ulid.Make().String(),
		batchSize: s.cfg.BatchSize,
		startedAt: time.Now(),
	}
	ctx = context.WithValue(ctx, jobRunKey{}, run)
	ctx = obscontext.WithRunID(ctx, run.runID)
	ctx = obscontext.WithActor(ctx, "system", "scheduler")
	run.log = obslogger.WithContext(ctx, s.log).With(zap.String("job", job))

	run.log.Info("scheduler.job.start", zap.Int("batch_size", run.batchSize))
	return ctx, run, run.finish
}

func (r *jobRun) finish() {
	fields := []zap.Field{
		zap.Int64("duration_ms", time.Since(r.startedAt).Milliseconds()),
		zap.Int("processed_count", r.processed),
		zap.Int("error_count", r.errors),
	}
	if r.errors > 0 {
		r.log.Warn("scheduler.job.finish", fields...)
		return
	}
	r.log.Info("scheduler.job.finish", fields...)
}

// record counts rows a job wrote and the items it gave up on.
func (r *jobRun) record(resource string, written, failed int) {
	if written > 0 {
		r.processed += written
		obsmetrics.Scheduler().AddBatchProcessed(r.job, resource, written)
	}
	if failed > 0 {
		r.errors += failed
	}
}

func (r *jobRun) fail(msg string, err error, fields ...zap.Field) {
	if err == nil {
		return
	}
	r.errors++
	r.log.Error(msg, append([]zap.Field{
		zap.String("error_type", obsmetrics.ClassifySchedulerErrorType(err)),
		zap.Bool("retryable", obsmetrics.IsSchedulerErrorRetryable(err)),
		zap.Error(err),
	}, fields...)...)
}
