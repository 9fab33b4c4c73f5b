package overdue

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
)

func TestAggregatorRun(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repository.Provide()
	clk := clock.NewFakeClock(time.Date(2026, 5, 20, 9, 0, 0, 0, time.UTC))
	node, err := snowflake.NewNode(3)
	require.NoError(t, err)
	enforcer, err := authorization.NewMemoryEnforcer()
	require.NoError(t, err)
	recorder := notificationtest.NewRecorder()

	agg := NewAggregator(Params{
		DB:       db,
		Log:      zap.NewNop(),
		Config:   config.Config{AdminEmail: "ops@uptimio.com", PublicBaseURL: "https://pay.example"},
		Clock:    clk,
		Repo:     repo,
		Notifier: recorder,
		Authz:    authorization.NewService(authorization.Params{Log: zap.NewNop(), Enforcer: enforcer}),
	})

	ctx := context.Background()
	insert := func(email string, amount float64, age time.Duration, paid bool) invoicedomain.Invoice {
		id := node.Generate()
		inv := invoicedomain.Invoice{
			ID:                   id,
			InvoiceNumber:        id.Int64(),
			InvoiceNumberStr:     "INV-" + id.String(),
			Client:               invoicedomain.ClientSnapshot{Name: email, Email: email},
			Items:                []invoicedomain.LineItem{{Description: "x", Quantity: 1, UnitPrice: amount}},
			Amount:               amount,
			Currency:             "USD",
			IsPaid:               paid,
			ReminderIntervalDays: 7,
			CreatedBy:            "admin-1",
			CreatedAt:            clk.Now().Add(-age),
		}
		require.NoError(t, repo.Insert(ctx, db, &inv))
		return inv
	}

	day := 24 * time.Hour
	a1 := insert("a@acme.test", 10, 1*day, false)
	insert("a@acme.test", 20, 2*day, false)
	insert("a@acme.test", 30.5, 3*day, false)
	insert("b@beta.test", 40, 1*day, false)
	insert("c@gamma.test", 5, 1*day, false)
	insert("c@gamma.test", 5, 20*day, false)
	insert("d@delta.test", 5, 1*day, true)
	insert("d@delta.test", 5, 2*day, true)

	summary, err := agg.Run(ctx, TriggerManual)
	require.NoError(t, err)
	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, TriggerManual, summary.Trigger)
	assert.Equal(t, 5, summary.Candidates)
	assert.Equal(t, 1, summary.Groups)
	assert.Equal(t, 1, summary.Notified)
	assert.Equal(t, 1, summary.AdminNotified)

	digests := recorder.OfKind(notifdomain.KindOverdueDigest)
	require.Len(t, digests, 1)
	assert.Equal(t, "a@acme.test", digests[0].To)
	assert.Equal(t, 3, digests[0].Data.InvoiceCount)
	assert.InDelta(t, 60.5, digests[0].Data.TotalAmount, 0.001)
	assert.Equal(t, "USD", digests[0].Data.Currency)

	admins := recorder.OfKind(notifdomain.KindAdminOverdueSent)
	require.Len(t, admins, 1)
	assert.Equal(t, "ops@uptimio.com", admins[0].To)
	assert.Equal(t, "a@acme.test", admins[0].Data.ClientEmail)
	assert.Equal(t, 3, admins[0].Data.InvoiceCount)
	assert.InDelta(t, 60.5, admins[0].Data.TotalAmount, 0.001)

	// Digest sends never stamp the per-invoice reminder.
	got, err := repo.FindByID(ctx, db, a1.ID)
	require.NoError(t, err)
	assert.Nil(t, got.LastReminderAt)
}

func TestAggregatorIsolatesDigestFailures(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repository.Provide()
	clk := clock.NewFakeClock(time.Date(2026, 5, 20, 9, 0, 0, 0, time.UTC))
	node, err := snowflake.NewNode(4)
	require.NoError(t, err)
	enforcer, err := authorization.NewMemoryEnforcer()
	require.NoError(t, err)
	recorder := notificationtest.NewRecorder()
	recorder.FailFor("a@acme.test", errors.New("bounced"))

	agg := NewAggregator(Params{
		DB:       db,
		Log:      zap.NewNop(),
		Config:   config.Config{AdminEmail: "ops@uptimio.com"},
		Clock:    clk,
		Repo:     repo,
		Notifier: recorder,
		Authz:    authorization.NewService(authorization.Params{Log: zap.NewNop(), Enforcer: enforcer}),
	})

	ctx := context.Background()
	for _, email := range []string{"a@acme.test", "a@acme.test", "b@beta.test", "b@beta.test"} {
		id := node.Generate()
		inv := invoicedomain.Invoice{
			ID:                   id,
			InvoiceNumber:        id.Int64(),
			InvoiceNumberStr:     "INV-" + id.String(),
			Client:               invoicedomain.ClientSnapshot{Name: email, Email: email},
			Items:                []invoicedomain.LineItem{},
			Amount:               1,
			Currency:             "USD",
			ReminderIntervalDays: 7,
			CreatedAt:            clk.Now().Add(-time.Hour),
		}
		require.NoError(t, repo.Insert(ctx, db, &inv))
	}

	summary, err := agg.Run(ctx, TriggerSchedule)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Groups)
	assert.Equal(t, 1, summary.Notified)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.AdminNotified)

	// Only the client whose digest went out is reported to the admin.
	admins := recorder.OfKind(notifdomain.KindAdminOverdueSent)
	require.Len(t, admins, 1)
	assert.Equal(t, "b@beta.test", admins[0].Data.ClientEmail)
	assert.Equal(t, 2, admins[0].Data.InvoiceCount)
	assert.InDelta(t, 2, admins[0].Data.TotalAmount, 0.001)
}

func TestAggregatorSendsNoAdminNoticeWhenEveryDigestFails(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repository.Provide()
	clk := clock.NewFakeClock(time.Date(2026, 5, 20, 9, 0, 0, 0, time.UTC))
	node, err := snowflake.NewNode(5)
	require.NoError(t, err)
	enforcer, err := authorization.NewMemoryEnforcer()
	require.NoError(t, err)
	recorder := notificationtest.NewRecorder()
	recorder.FailFor("a@acme.test", errors.New("bounced"))

	agg := NewAggregator(Params{
		DB:       db,
		Log:      zap.NewNop(),
		Config:   config.Config{AdminEmail: "ops@uptimio.com"},
		Clock:    clk,
		Repo:     repo,
		Notifier: recorder,
		Authz:    authorization.NewService(authorization.Params{Log: zap.NewNop(), Enforcer: enforcer}),
	})

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		id := node.Generate()
		inv := invoicedomain.Invoice{
			ID:                   id,
			InvoiceNumber:        id.Int64(),
			InvoiceNumberStr:     "INV-" + id.String(),
			Client:               invoicedomain.ClientSnapshot{Name: "Acme", Email: "a@acme.test"},
			Items:                []invoicedomain.LineItem{},
			Amount:               1,
			Currency:             "USD",
			ReminderIntervalDays: 7,
			CreatedAt:            clk.Now().Add(-time.Hour),
		}
		require.NoError(t, repo.Insert(ctx, db, &inv))
	}

	summary, err := agg.Run(ctx, TriggerSchedule)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Zero(t, summary.AdminNotified)
	assert.Empty(t, recorder.OfKind(notifdomain.KindAdminOverdueSent))
}

func TestAggregatorSkipsAdminWhenNothingQualifies(t *testing.T) {
	db := testutil.NewDB(t)
	enforcer, err := authorization.NewMemoryEnforcer()
	require.NoError(t, err)
	recorder := notificationtest.NewRecorder()

	agg := NewAggregator(Params{
		DB:       db,
		Log:      zap.NewNop(),
		Config:   config.Config{AdminEmail: "ops@uptimio.com"},
		Clock:    clock.NewFakeClock(time.Date(2026, 5, 20, 9, 0, 0, 0, time.UTC)),
		Repo:     repository.Provide(),
		Notifier: recorder,
		Authz:    authorization.NewService(authorization.Params{Log: zap.NewNop(), Enforcer: enforcer}),
	})

	summary, err := agg.Run(context.Background(), TriggerSchedule)
	require.NoError(t, err)
	assert.Zero(t, summary.Groups)
	assert.Zero(t, summary.AdminNotified)
	assert.Empty(t, recorder.Sent())
}
