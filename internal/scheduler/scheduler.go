package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Nikjeremic/uptiomio/internal/clock"
	obsmetrics "github.com/Nikjeremic/uptiomio/internal/observability/metrics"
	"github.com/Nikjeremic/uptiomio/internal/overdue"
	"github.com/Nikjeremic/uptiomio/internal/ratelimit"
	"github.com/Nikjeremic/uptiomio/internal/reminder"
	"github.com/Nikjeremic/uptiomio/internal/scheduler/guard"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	ErrJobRunning = guard.ErrJobRunning
	ErrJobLocked  = errors.New("scheduler_job_locked")
	ErrUnknownJob = errors.New("scheduler_unknown_job")
)

// Job is one recurring task with its own tick source.
type Job struct {
	Name    string
	Timeout time.Duration
	Ticks   TickSource
	Run     func(ctx context.Context) error
}

// JobState is a point-in-time view of a job for operators.
type JobState struct {
	Name      string     `json:"name"`
	Running   bool       `json:"running"`
	Runs      int        `json:"runs"`
	LastRunAt *time.Time `json:"lastRunAt,omitempty"`
	LastError string     `json:"lastError,omitempty"`
}

type SchedulerState struct {
	Jobs []JobState `json:"jobs"`
}

type Params struct {
	fx.In

	Log       *zap.Logger
	Clock     clock.Clock
	GenID     *snowflake.Node
	Config    Config
	Reminders *reminder.Runner
	Overdue   *overdue.Aggregator
	Limiter   *ratelimit.ReminderLimiter   `optional:"true"`
	Metrics   *obsmetrics.SchedulerMetrics `optional:"true"`
}

type Scheduler struct {
	log     *zap.Logger
	cfg     Config
	clock   clock.Clock
	genID   *snowflake.Node
	limiter *ratelimit.ReminderLimiter
	metrics *obsmetrics.SchedulerMetrics
	guard   *guard.Guard

	jobs []Job

	mu    sync.Mutex
	state map[string]*JobState
}

// New wires the reminder tick and the overdue run onto cron tick sources.
func New(p Params) (*Scheduler, error) {
	cfg := p.Config.withDefaults()

	reminderTicks, err := NewCronTicks(cfg.ReminderSpec, cfg.Location)
	if err != nil {
		return nil, err
	}
	overdueTicks, err := NewCronTicks(cfg.OverdueSpec, cfg.Location)
	if err != nil {
		return nil, err
	}

	jobs := []Job{
		{
			Name:    reminder.JobName,
			Timeout: cfg.ReminderTimeout,
			Ticks:   reminderTicks,
			Run:     ReminderJob(p.Reminders),
		},
		{
			Name:    overdue.JobName,
			Timeout: cfg.OverdueTimeout,
			Ticks:   overdueTicks,
			Run:     OverdueJob(p.Overdue, overdue.TriggerSchedule),
		},
	}
	return NewWithJobs(p.Log, p.Clock, p.GenID, cfg, p.Limiter, p.Metrics, jobs...), nil
}

func NewWithJobs(
	log *zap.Logger,
	clk clock.Clock,
	genID *snowflake.Node,
	cfg Config,
	limiter *ratelimit.ReminderLimiter,
	metrics *obsmetrics.SchedulerMetrics,
	jobs ...Job,
) *Scheduler {
	state := make(map[string]*JobState, len(jobs))
	for _, job := range jobs {
		state[job.Name] = &JobState{Name: job.Name}
	}
	return &Scheduler{
		log:     log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:     cfg.withDefaults(),
		clock:   clk,
		genID:   genID,
		limiter: limiter,
		metrics: metrics,
		guard:   guard.New(),
		jobs:    jobs,
		state:   state,
	}
}

// ReminderJob adapts the reminder runner to a scheduler job.
func ReminderJob(runner *reminder.Runner) func(context.Context) error {
	return func(ctx context.Context) error {
		res, err := runner.RunTick(ctx)
		jobRunFromContext(ctx).record(res.Evaluated, res.Sent, res.Skipped, res.Failed)
		return err
	}
}

// OverdueJob adapts the overdue aggregator to a scheduler job.
func OverdueJob(agg *overdue.Aggregator, trigger overdue.Trigger) func(context.Context) error {
	return func(ctx context.Context) error {
		summary, err := agg.Run(ctx, trigger)
		jobRunFromContext(ctx).record(summary.Candidates, summary.Notified, 0, summary.Failed)
		return err
	}
}

// Run drives every job loop until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, job := range s.jobs {
		g.Go(func() error {
			return s.loop(ctx, job)
		})
	}
	return g.Wait()
}

func (s *Scheduler) loop(ctx context.Context, job Job) error {
	job.Ticks.Start()
	defer job.Ticks.Stop()

	s.log.Info("scheduler.job.registered", zap.String("job", job.Name))
	for {
		select {
		case <-ctx.Done():
			return nil
		case at := <-job.Ticks.C():
			if lag := s.clock.Now().Sub(at); lag > 0 {
				s.metrics.ObserveRunLoopLag(lag)
			}
			err := s.Exclusive(ctx, job.Name, func(ctx context.Context) error {
				return s.runJob(ctx, job.Name, job.Timeout, job.Run)
			})
			if err != nil && !errors.Is(err, ErrJobRunning) && !errors.Is(err, ErrJobLocked) {
				s.log.Warn("scheduler run failed", zap.String("job", job.Name), zap.Error(err))
			}
		}
	}
}

// RunNow runs a registered job immediately, sharing the overlap guard
// with its ticks.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	for _, job := range s.jobs {
		if job.Name == name {
			return s.Exclusive(ctx, job.Name, func(ctx context.Context) error {
				return s.runJob(ctx, job.Name, job.Timeout, job.Run)
			})
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownJob, name)
}

// Exclusive runs fn unless the same job is already running in this
// process or, when Redis is configured, on another replica.
func (s *Scheduler) Exclusive(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	release, err := s.guard.Acquire(name)
	if err != nil {
		s.metrics.IncJobSkipped(name, obsmetrics.SchedulerSkipReasonOverlap)
		s.log.Info("scheduler.job.skipped", zap.String("job", name), zap.String("reason", obsmetrics.SchedulerSkipReasonOverlap))
		return err
	}
	defer release()

	if s.cfg.DistributedLocks && s.limiter.Enabled() {
		lease, err := s.limiter.LockJob(ctx, name, s.cfg.LockTTL)
		switch {
		case errors.Is(err, ratelimit.ErrLockHeld):
			s.metrics.IncJobSkipped(name, obsmetrics.SchedulerSkipReasonLockHeld)
			s.log.Info("scheduler.job.skipped", zap.String("job", name), zap.String("reason", obsmetrics.SchedulerSkipReasonLockHeld))
			return ErrJobLocked
		case err != nil:
			s.log.Warn("distributed job lock unavailable, running locally", zap.String("job", name), zap.Error(err))
		default:
			defer func() {
				if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
					s.log.Warn("release job lock failed", zap.String("job", name), zap.Error(err))
				}
			}()
		}
	}

	s.markRunning(name, true)
	err = fn(ctx)
	s.markFinished(name, err)
	return err
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

	ctx, run := s.startJobRun(ctx, name)
	s.logJobStart(ctx, run)
	log := s.logger(ctx)
	s.metrics.IncJobRun(name)

	err := fn(ctx)
	s.metrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
	if err != nil && run.failed == 0 {
		run.record(0, 0, 0, 1)
	}
	s.logJobFinish(ctx, run)
	if err == nil {
		return nil
	}

	// Deadlines are soft: the next tick picks up where this one stopped.
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		s.metrics.IncJobTimeout(name)
	}
	s.metrics.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) markRunning(name string, running bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.state[name]
	if !ok {
		st = &JobState{Name: name}
		s.state[name] = st
	}
	st.Running = running
}

func (s *Scheduler) markFinished(name string, err error) {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state[name]
	st.Running = false
	st.Runs++
	st.LastRunAt = &now
	st.LastError = ""
	if err != nil {
		st.LastError = err.Error()
	}
}

// State snapshots every job, registered ones first.
func (s *Scheduler) State() SchedulerState {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := SchedulerState{Jobs: make([]JobState, 0, len(s.state))}
	seen := make(map[string]struct{}, len(s.jobs))
	for _, job := range s.jobs {
		out.Jobs = append(out.Jobs, copyState(s.state[job.Name]))
		seen[job.Name] = struct{}{}
	}
	for name, st := range s.state {
		if _, ok := seen[name]; !ok {
			out.Jobs = append(out.Jobs, copyState(st))
		}
	}
	return out
}

func copyState(st *JobState) JobState {
	c := *st
	if st.LastRunAt != nil {
		at := *st.LastRunAt
		c.LastRunAt = &at
	}
	return c
}
