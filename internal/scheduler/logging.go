package scheduler

import (
	"context"
	"time"

	authdomain "github.com/Nikjeremic/uptiomio/internal/auth/domain"
	obscontext "github.com/Nikjeremic/uptiomio/internal/observability/context"
	obslogger "github.com/Nikjeremic/uptiomio/internal/observability/logger"
	"go.uber.org/zap"
)

// jobRun accumulates the outcome counts reported on scheduler.job.finish.
type jobRun struct {
	job       string
	runID     string
	startedAt time.Time
	evaluated int
	notified  int
	skipped   int
	failed    int
}

type jobRunKey struct{}

// record is nil-safe so job adapters work outside runJob.
func (r *jobRun) record(evaluated, notified, skipped, failed int) {
	if r == nil {
		return
	}
	r.evaluated += max(evaluated, 0)
	r.notified += max(notified, 0)
	r.skipped += max(skipped, 0)
	r.failed += max(failed, 0)
}

func (s *Scheduler) startJobRun(ctx context.Context, job string) (context.Context, *jobRun) {
	run := &jobRun{
		job:       job,
		runID:     s.genID.Generate().String(),
		startedAt: s.clock.Now(),
	}
	actor := authdomain.SystemActor(job)
	ctx = context.WithValue(ctx, jobRunKey{}, run)
	ctx = authdomain.WithActor(ctx, actor)
	ctx = obscontext.WithActor(ctx, string(actor.Role), actor.ID)
	ctx = obscontext.WithJob(ctx, job, run.runID)
	return ctx, run
}

func jobRunFromContext(ctx context.Context) *jobRun {
	if ctx == nil {
		return nil
	}
	run, _ := ctx.Value(jobRunKey{}).(*jobRun)
	return run
}

func (s *Scheduler) logger(ctx context.Context) *zap.Logger {
	return obslogger.WithContext(ctx, s.log)
}

func (s *Scheduler) logJobStart(ctx context.Context, run *jobRun) {
	s.logger(ctx).Info("scheduler.job.start")
}

func (s *Scheduler) logJobFinish(ctx context.Context, run *jobRun) {
	fields := []zap.Field{
		zap.Duration("elapsed", s.clock.Now().Sub(run.startedAt)),
		zap.Int("evaluated", run.evaluated),
		zap.Int("notified", run.notified),
		zap.Int("skipped", run.skipped),
		zap.Int("failed", run.failed),
	}
	log := s.logger(ctx)
	if run.failed > 0 {
		log.Warn("scheduler.job.finish", fields...)
		return
	}
	log.Info("scheduler.job.finish", fields...)
}
