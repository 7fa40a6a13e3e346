package scheduler

import (
	"context"
	"time"

	obscontext "github.com/smallbiznis/crmsync/internal/observability/context"
	obslogger "github.com/smallbiznis/crmsync/internal/observability/logger"
	"github.com/smallbiznis/crmsync/internal/reconciliation/domain"
	"go.uber.org/zap"
)

type jobRun struct {
	job        string
	runID      string
	startedAt  time.Time
	result     domain.SyncRunResult
	errorCount int
}

func (r *jobRun) Record(result domain.SyncRunResult) {
	if r == nil {
		return
	}
	r.result = result
	r.errorCount += result.Errored + result.UsageErrored
}

func (r *jobRun) IncError() {
	if r == nil {
		return
	}
	r.errorCount++
}

func (s *Scheduler) startJobRun(ctx context.Context, job string) (context.Context, *jobRun) {
	run := &jobRun{
		job:       job,
		runID:     s.genID.Generate().String(),
		startedAt: s.clock.Now(),
	}
	ctx = obscontext.WithJob(ctx, job)
	return ctx, run
}

func (s *Scheduler) logger(ctx context.Context) *zap.Logger {
	return obslogger.WithContext(ctx, s.log)
}

func (s *Scheduler) logJobStart(ctx context.Context, run *jobRun) {
	if run == nil {
		return
	}
	s.logger(ctx).Info("scheduler.job.start",
		zap.String("job", run.job),
		zap.String("scheduler_run_id", run.runID),
	)
}

func (s *Scheduler) logJobFinish(ctx context.Context, run *jobRun) {
	if run == nil {
		return
	}
	fields := []zap.Field{
		zap.String("job", run.job),
		zap.String("scheduler_run_id", run.runID),
		zap.String("sync_run_id", run.result.RunID),
		zap.Int64("duration_ms", s.clock.Now().Sub(run.startedAt).Milliseconds()),
		zap.Int("processed_count", run.result.Fetched),
		zap.Int("error_count", run.errorCount),
	}
	log := s.logger(ctx)
	if run.errorCount > 0 {
		log.Warn("scheduler.job.finish", fields...)
		return
	}
	log.Info("scheduler.job.finish", fields...)
}
