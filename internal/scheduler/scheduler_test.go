package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	authdomain "github.com/Nikjeremic/uptiomio/internal/auth/domain"
	"github.com/Nikjeremic/uptiomio/internal/clock"
	obsmetrics "github.com/Nikjeremic/uptiomio/internal/observability/metrics"
	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"go.uber.org/zap"
)

func newTestScheduler(t *testing.T, jobs ...Job) (*Scheduler, *prometheus.Registry, *clock.FakeClock) {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	registry := prometheus.NewRegistry()
	clk := clock.NewFakeClock(time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC))
	s := NewWithJobs(zap.NewNop(), clk, node, DefaultConfig(), nil, obsmetrics.NewSchedulerMetricsForTest(registry), jobs...)
	return s, registry, clk
}

func TestRunJobTimeoutDoesNotReturnErrorAndIncrementsTimeout(t *testing.T) {
	s, registry, _ := newTestScheduler(t)

	err := s.runJob(context.Background(), "timeout_job", 5*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	labels := map[string]string{
		"service": "uptiomio",
		"env":     "test",
		"job":     "timeout_job",
	}
	if got := getCounterValue(t, registry, "uptiomio_scheduler_job_timeouts_total", labels); got != 1 {
		t.Fatalf("expected timeout count 1, got %v", got)
	}

	errorLabels := map[string]string{
		"service": "uptiomio",
		"env":     "test",
		"job":     "timeout_job",
		"reason":  obsmetrics.SchedulerJobReasonDeadlineExceeded,
	}
	if got := getCounterValue(t, registry, "uptiomio_scheduler_job_errors_total", errorLabels); got != 1 {
		t.Fatalf("expected error count 1, got %v", got)
	}
}

func TestRunJobWrapsErrors(t *testing.T) {
	s, _, _ := newTestScheduler(t)
	boom := errors.New("boom")

	err := s.runJob(context.Background(), "failing_job", time.Second, func(context.Context) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped boom, got %v", err)
	}
}

func TestLoopRunsJobOnEachTick(t *testing.T) {
	ticks := NewManualTicks()
	ran := make(chan string, 4)
	s, registry, _ := newTestScheduler(t, Job{
		Name:    "reminder_tick",
		Timeout: time.Second,
		Ticks:   ticks,
		Run: func(ctx context.Context) error {
			run := jobRunFromContext(ctx)
			if run == nil {
				return errors.New("missing job run")
			}
			actor, ok := authdomain.ActorFromContext(ctx)
			if !ok || actor.Role != authdomain.RoleSystem {
				return errors.New("scheduled run without system actor")
			}
			run.record(2, 1, 1, 0)
			ran <- run.runID
			return nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	ticks.Fire(time.Date(2026, 6, 1, 8, 55, 0, 0, time.UTC))
	first := waitFor(t, ran)
	ticks.Fire(time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC))
	second := waitFor(t, ran)
	if first == second {
		t.Fatalf("expected distinct run ids, got %s twice", first)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run returned %v", err)
	}

	labels := map[string]string{"service": "uptiomio", "env": "test", "job": "reminder_tick"}
	if got := getCounterValue(t, registry, "uptiomio_scheduler_job_runs_total", labels); got != 2 {
		t.Fatalf("expected 2 runs, got %v", got)
	}

	state := s.State()
	if len(state.Jobs) != 1 || state.Jobs[0].Runs != 2 || state.Jobs[0].LastRunAt == nil {
		t.Fatalf("unexpected state %+v", state)
	}
}

func TestExclusiveSkipsOverlappingRuns(t *testing.T) {
	s, registry, _ := newTestScheduler(t)

	started := make(chan struct{})
	release := make(chan struct{})
	finished := make(chan error, 1)
	go func() {
		finished <- s.Exclusive(context.Background(), "overdue_digest", func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	err := s.Exclusive(context.Background(), "overdue_digest", func(context.Context) error {
		t.Fatal("overlapping run must not execute")
		return nil
	})
	if !errors.Is(err, ErrJobRunning) {
		t.Fatalf("expected ErrJobRunning, got %v", err)
	}
	if !s.State().Jobs[0].Running {
		t.Fatalf("expected job to report running")
	}

	close(release)
	if err := <-finished; err != nil {
		t.Fatalf("first run returned %v", err)
	}

	labels := map[string]string{
		"service": "uptiomio",
		"env":     "test",
		"job":     "overdue_digest",
		"reason":  obsmetrics.SchedulerSkipReasonOverlap,
	}
	if got := getCounterValue(t, registry, "uptiomio_scheduler_job_skipped_total", labels); got != 1 {
		t.Fatalf("expected 1 skipped run, got %v", got)
	}
}

func TestRunNow(t *testing.T) {
	boom := errors.New("smtp unreachable")
	s, _, clk := newTestScheduler(t, Job{
		Name:    "overdue_digest",
		Timeout: time.Second,
		Ticks:   NewManualTicks(),
		Run:     func(context.Context) error { return boom },
	})

	if err := s.RunNow(context.Background(), "nope"); !errors.Is(err, ErrUnknownJob) {
		t.Fatalf("expected ErrUnknownJob, got %v", err)
	}

	if err := s.RunNow(context.Background(), "overdue_digest"); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	st := s.State().Jobs[0]
	if st.Runs != 1 || st.LastError == "" || !st.LastRunAt.Equal(clk.Now()) {
		t.Fatalf("unexpected state %+v", st)
	}
}

func waitFor(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for job run")
		return ""
	}
}

func getCounterValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	metricFamilies, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metricFamilies {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.Metric {
			if !labelsMatch(metric, labels) {
				continue
			}
			if metric.Counter == nil {
				t.Fatalf("metric %s is not a counter", name)
			}
			return metric.GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func labelsMatch(metric *dto.Metric, labels map[string]string) bool {
	if len(metric.Label) != len(labels) {
		return false
	}
	for _, label := range metric.Label {
		if labels[label.GetName()] != label.GetValue() {
			return false
		}
	}
	return true
}
