package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron"
)

// TickSource delivers the scheduled fire time of each tick. A tick that
// arrives while the previous one is still buffered is dropped.
type TickSource interface {
	C() <-chan time.Time
	Start()
	Stop()
}

// CronTicks fires on a six-field cron spec (seconds first).
type CronTicks struct {
	cron     *cron.Cron
	schedule cron.Schedule
	loc      *time.Location
	ch       chan time.Time
	stop     sync.Once
}

func NewCronTicks(spec string, loc *time.Location) (*CronTicks, error) {
	if loc == nil {
		loc = time.Local
	}
	schedule, err := cron.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("parse cron spec %q: %w", spec, err)
	}

	t := &CronTicks{
		cron:     cron.NewWithLocation(loc),
		schedule: schedule,
		loc:      loc,
		ch:       make(chan time.Time, 1),
	}
	t.cron.Schedule(schedule, cron.FuncJob(t.fire))
	return t, nil
}

func (t *CronTicks) fire() {
	select {
	case t.ch <- time.Now().In(t.loc):
	default:
	}
}

func (t *CronTicks) C() <-chan time.Time { return t.ch }

func (t *CronTicks) Start() { t.cron.Start() }

func (t *CronTicks) Stop() { t.stop.Do(t.cron.Stop) }

// Next reports when the cron schedule fires after from.
func (t *CronTicks) Next(from time.Time) time.Time {
	return t.schedule.Next(from.In(t.loc))
}

// ManualTicks is fired by hand, for tests and one-shot commands.
type ManualTicks struct {
	ch chan time.Time
}

func NewManualTicks() *ManualTicks {
	return &ManualTicks{ch: make(chan time.Time)}
}

func (t *ManualTicks) C() <-chan time.Time { return t.ch }

func (t *ManualTicks) Start() {}

func (t *ManualTicks) Stop() {}

// Fire blocks until the scheduler loop has taken the tick.
func (t *ManualTicks) Fire(at time.Time) {
	t.ch <- at
}
