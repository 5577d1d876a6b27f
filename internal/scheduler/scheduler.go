package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payflow/internal/lock"
	obscontext "github.com/smallbiznis/payflow/internal/observability/context"
	obsmetrics "github.com/smallbiznis/payflow/internal/observability/metrics"
	"github.com/smallbiznis/payflow/internal/observability/push"
	settlementdomain "github.com/smallbiznis/payflow/internal/settlement/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	JobProcessDueSettlements   = "process_due_settlements"
	JobCreateWeeklySettlements = "create_weekly_settlements"
	JobRecoverStaleSettlements = "recover_stale_settlements"

	resourceSettlements = "settlements"
	resourceJobs        = "jobs"
	pushTimeout         = 5 * time.Second
)

type Params struct {
	fx.In

	Log         *zap.Logger
	GenID       *snowflake.Node
	Settlements settlementdomain.Service
	Locker      lock.Locker `optional:"true"`
	Pusher      push.Pusher `optional:"true"`
	Config      Config      `optional:"true"`
}

type Scheduler struct {
	log         *zap.Logger
	cfg         Config
	genID       *snowflake.Node
	settlements settlementdomain.Service
	locker      lock.Locker
	pusher      push.Pusher
}

type jobSpec struct {
	name      string
	interval  time.Duration
	batchSize int
	run       func(context.Context) error
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.Settlements == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:         p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:         p.Config.withDefaults(),
		genID:       p.GenID,
		settlements: p.Settlements,
		locker:      p.Locker,
		pusher:      p.Pusher,
	}, nil
}

func (s *Scheduler) jobs() []jobSpec {
	return []jobSpec{
		{JobProcessDueSettlements, s.cfg.DailyInterval, s.cfg.BatchSize, s.ProcessDueSettlementsJob},
		{JobCreateWeeklySettlements, s.cfg.WeeklyInterval, s.cfg.BatchSize, s.CreateWeeklySettlementsJob},
		{JobRecoverStaleSettlements, s.cfg.RecoveryInterval, s.cfg.BatchSize, s.RecoverStaleSettlementsJob},
	}
}

// Register schedules every enabled job on the port at its configured interval.
func (s *Scheduler) Register(port Port) {
	for _, spec := range s.jobs() {
		if !s.isJobEnabled(spec.name) {
			s.log.Info("scheduler.job.disabled", zap.String("job", spec.name))
			continue
		}
		spec := spec
		port.ScheduleEvery(spec.interval, Job{
			Name: spec.name,
			Run: func(ctx context.Context) error {
				return s.runJob(ctx, spec.name, spec.batchSize, s.cfg.JobTimeout, spec.run)
			},
		})
		s.log.Info("scheduler.job.registered",
			zap.String("job", spec.name),
			zap.Duration("interval", spec.interval),
		)
	}
}

// RunOnce runs every enabled job a single time in order and joins their errors.
func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error
	for _, spec := range s.jobs() {
		if !s.isJobEnabled(spec.name) {
			continue
		}
		err = errors.Join(err, s.runJob(parent, spec.name, spec.batchSize, s.cfg.JobTimeout, spec.run))
	}
	return err
}

// RunJob runs a single named job through the same path as a scheduled tick.
func (s *Scheduler) RunJob(ctx context.Context, name string) error {
	for _, spec := range s.jobs() {
		if strings.EqualFold(spec.name, name) {
			return s.runJob(ctx, spec.name, spec.batchSize, s.cfg.JobTimeout, spec.run)
		}
	}
	return fmt.Errorf("%w: unknown job %q", ErrInvalidConfig, name)
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	schedMetrics := obsmetrics.Scheduler()
	defer s.pushMetrics(parent, name)

	release, acquired, err := s.acquire(parent, name)
	if err != nil {
		schedMetrics.IncJobError(name, err)
		s.logSchedulerError(parent, "scheduler.job.lock_failed", name, err)
		return fmt.Errorf("%s: %w", name, err)
	}
	if !acquired {
		schedMetrics.IncBatchDeferred(name, obsmetrics.SchedulerBatchDeferredReasonLocked)
		s.log.Info("scheduler.job.skipped", zap.String("job", name), zap.String("reason", "locked"))
		return nil
	}
	defer release()

	start := time.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx = obscontext.WithActor(ctx, "system", "scheduler")
	ctx, run, owner := s.ensureJobRun(ctx, name, batchSize)
	if owner {
		s.logJobStart(ctx, run)
	}
	log := s.logger(ctx).With(zap.String("job", name))
	schedMetrics.IncJobRun(name)

	err = fn(ctx)
	schedMetrics.ObserveJobDuration(name, time.Since(start))
	if owner {
		if err != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	// deadline is a soft timeout, the next tick picks up the rest
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		schedMetrics.IncJobTimeout(name)
	}
	schedMetrics.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	s.logSchedulerError(ctx, "scheduler.job.failed", name, err)
	return fmt.Errorf("%s: %w", name, err)
}

// acquire takes the cross-replica lock for a job. Without a locker every
// replica runs the job.
func (s *Scheduler) acquire(ctx context.Context, name string) (func(), bool, error) {
	if s.locker == nil {
		return func() {}, true, nil
	}
	key := "scheduler:" + name
	token, ok, err := s.locker.TryLock(ctx, key, s.cfg.LockTTL)
	if err != nil || !ok {
		return nil, false, err
	}
	return func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := s.locker.Release(releaseCtx, key, token); err != nil {
			s.log.Warn("scheduler.job.unlock_failed", zap.String("job", name), zap.Error(err))
		}
	}, true, nil
}

func (s *Scheduler) pushMetrics(ctx context.Context, name string) {
	if s.pusher == nil {
		return
	}
	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), pushTimeout)
	defer cancel()
	if err := s.pusher.Push(pushCtx, obsmetrics.SchedulerRegistry()); err != nil {
		s.log.Warn("scheduler.metrics.push_failed", zap.String("job", name), zap.Error(err))
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(strings.TrimSpace(enabled), jobName) {
			return true
		}
	}
	return false
}

func (s *Scheduler) ProcessDueSettlementsJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobProcessDueSettlements, s.cfg.BatchSize)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	result, err := s.settlements.ProcessDueSettlements(ctx)
	run.AddProcessed(result.Processed)
	run.AddErrors(result.Failed)

	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.AddBatchProcessed(JobProcessDueSettlements, resourceSettlements, result.Processed)
	schedMetrics.AddBatchFailed(JobProcessDueSettlements, resourceSettlements, result.Failed)
	return err
}

func (s *Scheduler) CreateWeeklySettlementsJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobCreateWeeklySettlements, s.cfg.BatchSize)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	result, err := s.settlements.CreateWeeklySettlements(ctx)
	run.AddProcessed(result.Created)
	run.AddErrors(result.Failed)

	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.AddBatchProcessed(JobCreateWeeklySettlements, resourceSettlements, result.Created)
	schedMetrics.AddBatchFailed(JobCreateWeeklySettlements, resourceJobs, result.Failed)
	if result.Scanned > 0 {
		s.logger(ctx).Debug("scheduler.weekly.scanned",
			zap.Int("scanned", result.Scanned),
			zap.Int("created", result.Created),
			zap.Int("failed", result.Failed),
		)
	}
	return err
}

func (s *Scheduler) RecoverStaleSettlementsJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobRecoverStaleSettlements, s.cfg.BatchSize)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	recovered, err := s.settlements.RecoverStaleProcessing(ctx, s.cfg.StaleProcessingAge)
	run.AddProcessed(recovered)
	obsmetrics.Scheduler().AddBatchProcessed(JobRecoverStaleSettlements, resourceSettlements, recovered)
	if recovered > 0 {
		s.logger(ctx).Warn("scheduler.settlements.recovered",
			zap.Int("count", recovered),
			zap.Duration("older_than", s.cfg.StaleProcessingAge),
		)
	}
	return err
}
