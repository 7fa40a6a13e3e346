package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/crmsync/internal/clock"
	obsmetrics "github.com/smallbiznis/crmsync/internal/observability/metrics"
	"github.com/smallbiznis/crmsync/internal/ratelimit"
	"github.com/smallbiznis/crmsync/internal/reconciliation/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const lockKeyPrefix = "crmsync:lock:job:"

// Locker is the lease API the run lock needs.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Release(ctx context.Context, key, token string) error
	Holder(ctx context.Context, key string) (string, error)
}

type Params struct {
	fx.In

	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	Engine domain.Engine
	Locker *ratelimit.Locker `optional:"true"`
	Config Config            `optional:"true"`
}

// Scheduler runs registered jobs on their cadence. Each run is detached from
// the loop context, so Stop never cuts a run short.
type Scheduler struct {
	log    *zap.Logger
	genID  *snowflake.Node
	clock  clock.Clock
	locker Locker
	cfg    Config

	mu     sync.Mutex
	jobs   map[string]Job
	order  []string
	cancel context.CancelFunc
	loops  sync.WaitGroup
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.Clock == nil || p.Engine == nil {
		return nil, ErrInvalidConfig
	}
	cfg := p.Config.withDefaults()

	s := newScheduler(p.Log, p.GenID, p.Clock, cfg)
	if cfg.RunLockEnabled && p.Locker != nil {
		s.locker = p.Locker
	}

	fullAt, err := ParseTimeOfDay(cfg.FullSyncAt)
	if err != nil {
		return nil, err
	}
	usageAt, err := ParseTimeOfDay(cfg.UsageSyncAt)
	if err != nil {
		return nil, err
	}

	if err := s.Register(Job{
		Name:     JobFullSync,
		Interval: cfg.FullSyncInterval,
		Anchor:   fullAt,
		Run:      p.Engine.RunFullSync,
	}); err != nil {
		return nil, err
	}
	if err := s.Register(Job{
		Name:     JobUsageSync,
		Interval: cfg.UsageSyncInterval,
		Anchor:   usageAt,
		Run:      p.Engine.RunUsageOnlySync,
	}); err != nil {
		return nil, err
	}
	return s, nil
}

func newScheduler(log *zap.Logger, genID *snowflake.Node, clk clock.Clock, cfg Config) *Scheduler {
	return &Scheduler{
		log:   log.Named("scheduler"),
		genID: genID,
		clock: clk,
		cfg:   cfg,
		jobs:  make(map[string]Job),
	}
}

func (s *Scheduler) Register(job Job) error {
	if job.Name == "" || job.Interval <= 0 || job.Run == nil {
		return fmt.Errorf("%w: job %q", ErrInvalidConfig, job.Name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, job.Name)
	}
	s.jobs[job.Name] = job
	s.order = append(s.order, job.Name)
	return nil
}

// Jobs lists registered job names in registration order.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

// Start launches one loop per job and returns immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return ErrAlreadyStarted
	}
	ctx, s.cancel = context.WithCancel(ctx)

	for _, name := range s.order {
		job := s.jobs[name]
		s.log.Info("scheduler.job.registered",
			zap.String("job", job.Name),
			zap.Duration("interval", job.Interval),
			zap.Time("next_run", job.NextRun(s.clock.Now())),
		)
		s.loops.Add(1)
		go s.loop(ctx, job)
	}
	return nil
}

// Stop ends the loops and waits for in-flight runs to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	s.loops.Wait()
}

// RunJob runs name once and waits for it.
func (s *Scheduler) RunJob(ctx context.Context, name string) (domain.SyncRunResult, error) {
	s.mu.Lock()
	job, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return domain.SyncRunResult{}, fmt.Errorf("%w: %s", domain.ErrUnknownJob, name)
	}
	return s.runJob(ctx, job)
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	defer s.loops.Done()
	schedMetrics := obsmetrics.Scheduler()

	for {
		next := job.NextRun(s.clock.Now())
		timer := time.NewTimer(next.Sub(s.clock.Now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if lag := s.clock.Now().Sub(next); lag > 0 {
			schedMetrics.ObserveRunLoopLag(lag)
		}

		_, err := s.runJob(ctx, job)
		if err != nil {
			s.log.Warn("scheduler run failed", zap.String("job", job.Name), zap.Error(err))
		}
	}
}

func (s *Scheduler) runJob(parent context.Context, job Job) (domain.SyncRunResult, error) {
	ctx := context.WithoutCancel(parent)
	schedMetrics := obsmetrics.Scheduler()

	release, acquired := s.acquire(ctx, job.Name)
	if !acquired {
		schedMetrics.IncJobSkipped(job.Name, obsmetrics.SchedulerSkipReasonLocked)
		holder, _ := s.locker.Holder(ctx, lockKeyPrefix+job.Name)
		s.logger(ctx).Info("scheduler.job.skipped",
			zap.String("job", job.Name),
			zap.String("reason", obsmetrics.SchedulerSkipReasonLocked),
			zap.String("holder", holder),
		)
		return domain.SyncRunResult{}, nil
	}
	defer release()

	ctx, run := s.startJobRun(ctx, job.Name)
	s.logJobStart(ctx, run)
	schedMetrics.IncJobRun(job.Name)

	result, err := job.Run(ctx)
	schedMetrics.ObserveJobDuration(job.Name, s.clock.Now().Sub(run.startedAt))
	schedMetrics.AddBatchProcessed(job.Name, "records", result.Fetched)
	run.Record(result)
	if err != nil {
		run.IncError()
	}
	s.logJobFinish(ctx, run)

	if err == nil {
		return result, nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		schedMetrics.IncJobTimeout(job.Name)
	}
	schedMetrics.IncJobError(job.Name, err)
	return result, fmt.Errorf("%s: %w", job.Name, err)
}

// acquire takes the per-job redis lease when the run lock is enabled. A
// redis failure is logged and the run proceeds unlocked.
func (s *Scheduler) acquire(ctx context.Context, job string) (func(), bool) {
	if s.locker == nil {
		return func() {}, true
	}
	key := lockKeyPrefix + job
	token, ok, err := s.locker.TryLock(ctx, key, s.cfg.RunLockTTL)
	if err != nil {
		s.logger(ctx).Warn("scheduler.lock.unavailable", zap.String("job", job), zap.Error(err))
		return func() {}, true
	}
	if !ok {
		return nil, false
	}
	return func() {
		if err := s.locker.Release(ctx, key, token); err != nil {
			s.logger(ctx).Warn("scheduler.lock.release_failed", zap.String("job", job), zap.Error(err))
		}
	}, true
}
