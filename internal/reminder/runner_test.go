package reminder

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Nikjeremic/uptiomio/internal/authorization"
	"github.com/Nikjeremic/uptiomio/internal/clock"
	"github.com/Nikjeremic/uptiomio/internal/config"
	invoicedomain "github.com/Nikjeremic/uptiomio/internal/invoice/domain"
	"github.com/Nikjeremic/uptiomio/internal/invoice/repository"
	notifdomain "github.com/Nikjeremic/uptiomio/internal/notification/domain"
	"github.com/Nikjeremic/uptiomio/internal/notification/notificationtest"
	"github.com/Nikjeremic/uptiomio/internal/testutil"
	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type runnerFixture struct {
	runner   *Runner
	db       *gorm.DB
	repo     invoicedomain.Repository
	clock    *clock.FakeClock
	recorder *notificationtest.Recorder
	node     *snowflake.Node
}

func newRunnerFixture(t *testing.T) runnerFixture {
	t.Helper()

	db := testutil.NewDB(t)
	repo := repository.Provide()
	clk := clock.NewFakeClock(time.Date(2026, 4, 2, 9, 1, 0, 0, time.UTC))
	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	enforcer, err := authorization.NewMemoryEnforcer()
	require.NoError(t, err)

	recorder := notificationtest.NewRecorder()
	runner := NewRunner(Params{
		DB:       db,
		Log:      zap.NewNop(),
		Config:   config.Config{PublicBaseURL: "https://pay.example", Scheduler: config.SchedulerConfig{Timezone: "UTC"}},
		Clock:    clk,
		Repo:     repo,
		Notifier: recorder,
		Authz:    authorization.NewService(authorization.Params{Log: zap.NewNop(), Enforcer: enforcer}),
	})
	return runnerFixture{runner: runner, db: db, repo: repo, clock: clk, recorder: recorder, node: node}
}

func (f runnerFixture) insert(t *testing.T, email string, mutate func(*invoicedomain.Invoice)) invoicedomain.Invoice {
	t.Helper()
	id := f.node.Generate()
	inv := invoicedomain.Invoice{
		ID:                   id,
		InvoiceNumber:        id.Int64(),
		InvoiceNumberStr:     "INV-" + id.String(),
		Client:               invoicedomain.ClientSnapshot{Name: email, Email: email},
		Items:                []invoicedomain.LineItem{{Description: "x", Quantity: 1, UnitPrice: 10}},
		Amount:               10,
		Currency:             "USD",
		ReminderEnabled:      true,
		ReminderIntervalDays: 7,
		CreatedBy:            "admin-1",
		CreatedAt:            f.clock.Now().AddDate(0, 0, -30),
	}
	if mutate != nil {
		mutate(&inv)
	}
	require.NoError(t, f.repo.Insert(context.Background(), f.db, &inv))
	return inv
}

func (f runnerFixture) reload(t *testing.T, id snowflake.ID) *invoicedomain.Invoice {
	t.Helper()
	inv, err := f.repo.FindByID(context.Background(), f.db, id)
	require.NoError(t, err)
	require.NotNil(t, inv)
	return inv
}

func TestRunTickSendsDueReminders(t *testing.T) {
	f := newRunnerFixture(t)
	due := f.insert(t, "due@acme.test", nil)
	recent := f.insert(t, "recent@acme.test", func(inv *invoicedomain.Invoice) {
		last := f.clock.Now().AddDate(0, 0, -2)
		inv.LastReminderAt = &last
	})
	f.insert(t, "paid@acme.test", func(inv *invoicedomain.Invoice) { inv.IsPaid = true })
	f.insert(t, "off@acme.test", func(inv *invoicedomain.Invoice) { inv.ReminderEnabled = false })

	res, err := f.runner.RunTick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, TickResult{Evaluated: 2, Sent: 1, Skipped: 1}, res)

	sent := f.recorder.OfKind(notifdomain.KindInvoiceReminder)
	require.Len(t, sent, 1)
	assert.Equal(t, "due@acme.test", sent[0].To)
	assert.Equal(t, "https://pay.example/?invoiceId="+due.ID.String(), sent[0].Data.Link)

	got := f.reload(t, due.ID)
	require.NotNil(t, got.LastReminderAt)
	assert.True(t, got.LastReminderAt.Equal(f.clock.Now()))
	assert.True(t, f.reload(t, recent.ID).LastReminderAt.Equal(*recent.LastReminderAt))
}

func TestRunTickIsolatesFailures(t *testing.T) {
	f := newRunnerFixture(t)
	broken := f.insert(t, "broken@acme.test", nil)
	ok := f.insert(t, "ok@acme.test", nil)
	f.recorder.FailFor("broken@acme.test", errors.New("mailbox unavailable"))

	res, err := f.runner.RunTick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, TickResult{Evaluated: 2, Sent: 1, Failed: 1}, res)

	assert.NotNil(t, f.reload(t, broken.ID).LastReminderAt, "failed attempts are stamped")
	assert.NotNil(t, f.reload(t, ok.ID).LastReminderAt)

	// The stamp holds the failed invoice back until its interval elapses again.
	f.clock.Advance(5 * time.Minute)
	res, err = f.runner.RunTick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, TickResult{Evaluated: 2, Skipped: 2}, res)
}

func TestRunTickDailyPolicy(t *testing.T) {
	f := newRunnerFixture(t)
	inv := f.insert(t, "daily@acme.test", func(inv *invoicedomain.Invoice) {
		hour, minute := 9, 0
		last := time.Date(2026, 4, 1, 9, 5, 0, 0, time.UTC)
		inv.ReminderIntervalDays = 1
		inv.ReminderHour = &hour
		inv.ReminderMinute = &minute
		inv.LastReminderAt = &last
	})

	res, err := f.runner.RunTick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent)

	f.clock.Set(time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC))
	res, err = f.runner.RunTick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, TickResult{Evaluated: 1, Skipped: 1}, res)

	got := f.reload(t, inv.ID)
	assert.True(t, got.LastReminderAt.Equal(time.Date(2026, 4, 2, 9, 1, 0, 0, time.UTC)))
}

// hookNotifier runs a callback before delegating each send.
type hookNotifier struct {
	*notificationtest.Recorder
	before func(ctx context.Context, to string)
}

func (n hookNotifier) Send(ctx context.Context, to string, kind notifdomain.Kind, data notifdomain.Data) notifdomain.Result {
	n.before(ctx, to)
	return n.Recorder.Send(ctx, to, kind, data)
}

func TestRunTickRechecksInvoiceBeforeSending(t *testing.T) {
	f := newRunnerFixture(t)
	first := f.insert(t, "first@acme.test", nil)
	second := f.insert(t, "second@acme.test", nil)
	third := f.insert(t, "third@acme.test", nil)
	fourth := f.insert(t, "fourth@acme.test", nil)

	f.runner.notifier = hookNotifier{Recorder: f.recorder, before: func(ctx context.Context, to string) {
		if to != "first@acme.test" {
			return
		}
		paid, err := f.repo.MarkPaid(ctx, f.db, second.ID, f.clock.Now(), nil)
		require.NoError(t, err)
		require.True(t, paid)
		deleted, err := f.repo.Delete(ctx, f.db, third.ID)
		require.NoError(t, err)
		require.True(t, deleted)
		_, err = f.repo.UpdateReminderConfig(ctx, f.db, fourth.ID, invoicedomain.ReminderConfig{IntervalDays: 7})
		require.NoError(t, err)
	}}

	res, err := f.runner.RunTick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, TickResult{Evaluated: 4, Sent: 1, Skipped: 3}, res)

	sent := f.recorder.OfKind(notifdomain.KindInvoiceReminder)
	require.Len(t, sent, 1)
	assert.Equal(t, "first@acme.test", sent[0].To)

	assert.NotNil(t, f.reload(t, first.ID).LastReminderAt)
	assert.Nil(t, f.reload(t, second.ID).LastReminderAt)
	assert.Nil(t, f.reload(t, fourth.ID).LastReminderAt)
}

func TestRunTickStampsAfterDeadline(t *testing.T) {
	f := newRunnerFixture(t)
	inv := f.insert(t, "slow@acme.test", nil)
	f.insert(t, "later@acme.test", nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.runner.notifier = hookNotifier{Recorder: f.recorder, before: func(context.Context, string) { cancel() }}

	_, err := f.runner.RunTick(ctx)
	require.ErrorIs(t, err, context.Canceled)

	require.Len(t, f.recorder.Sent(), 1)
	got := f.reload(t, inv.ID)
	require.NotNil(t, got.LastReminderAt)
	assert.True(t, got.LastReminderAt.Equal(f.clock.Now()))
}

func TestRunTickAbortsOnLoadFailure(t *testing.T) {
	f := newRunnerFixture(t)
	sqlDB, err := f.db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	_, err = f.runner.RunTick(context.Background())
	assert.Error(t, err)
	assert.Empty(t, f.recorder.Sent())
}
