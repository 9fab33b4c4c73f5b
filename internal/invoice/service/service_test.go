package service

import (
	"context"
	"errors"
	"testing"
	"time"

	authdomain "github.com/Nikjeremic/uptiomio/internal/auth/domain"
	"github.com/Nikjeremic/uptiomio/internal/authorization"
	"github.com/Nikjeremic/uptiomio/internal/clock"
	"github.com/Nikjeremic/uptiomio/internal/config"
	invoicedomain "github.com/Nikjeremic/uptiomio/internal/invoice/domain"
	"github.com/Nikjeremic/uptiomio/internal/invoice/repository"
	notifdomain "github.com/Nikjeremic/uptiomio/internal/notification/domain"
	"github.com/Nikjeremic/uptiomio/internal/notification/notificationtest"
	seqrepo "github.com/Nikjeremic/uptiomio/internal/sequence/repository"
	seqservice "github.com/Nikjeremic/uptiomio/internal/sequence/service"
	"github.com/Nikjeremic/uptiomio/internal/testutil"
	"github.com/Nikjeremic/uptiomio/pkg/db/pagination"
	"github.com/bwmarrin/snowflake"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	admin  = authdomain.Actor{ID: "admin-1", Email: "admin@uptimio.com", Role: authdomain.RoleAdmin}
	client = authdomain.Actor{ID: "user-1", Email: "billing@acme.test", Role: authdomain.RoleUser}
	other  = authdomain.Actor{ID: "user-2", Email: "someone@else.test", Role: authdomain.RoleUser}
)

type fixture struct {
	svc      *Service
	clock    *clock.FakeClock
	recorder *notificationtest.Recorder
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	db := testutil.NewDB(t)
	clk := clock.NewFakeClock(time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC))
	log := zap.NewNop()

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	enforcer, err := authorization.NewMemoryEnforcer()
	require.NoError(t, err)

	recorder := notificationtest.NewRecorder()
	svc := NewService(ServiceParam{
		DB:     db,
		Log:    log,
		Config: config.Config{AdminEmail: "ops@uptimio.com", PublicBaseURL: "https://pay.example"},
		Clock:  clk,
		GenID:  node,
		Repo:   repository.Provide(),
		Sequence: seqservice.New(seqservice.Params{
			DB:    db,
			Log:   log,
			Clock: clk,
			Repo:  seqrepo.Provide(),
		}),
		Authz:    authorization.NewService(authorization.Params{Log: log, Enforcer: enforcer}),
		Notifier: recorder,
	}).(*Service)
	svc.goAsync = func(fn func()) { fn() }

	return fixture{svc: svc, clock: clk, recorder: recorder}
}

func createRequest(clientEmail string) invoicedomain.CreateInvoiceRequest {
	return invoicedomain.CreateInvoiceRequest{
		Issuer: invoicedomain.IssuerSnapshot{Name: "Uptimio"},
		Client: invoicedomain.ClientSnapshot{Name: "Acme", Email: clientEmail},
		Items: []invoicedomain.LineItem{
			{Description: "Hosting", Quantity: 2, UnitPrice: 25},
			{Description: "Support", Quantity: 1, UnitPrice: 50},
		},
	}
}

func (f fixture) create(t *testing.T, clientEmail string) *invoicedomain.Invoice {
	t.Helper()
	inv, err := f.svc.Create(context.Background(), admin, createRequest(clientEmail))
	require.NoError(t, err)
	return inv
}

func TestCreateComputesAmountAndNumber(t *testing.T) {
	f := newFixture(t)

	first := f.create(t, client.Email)
	second := f.create(t, client.Email)

	assert.Equal(t, 100.0, first.Amount)
	assert.Equal(t, "USD", first.Currency)
	assert.Equal(t, "INV-000001", first.InvoiceNumberStr)
	assert.Equal(t, "INV-000002", second.InvoiceNumberStr)
	assert.False(t, first.IsPaid)
	assert.Equal(t, invoicedomain.DefaultReminderIntervalDays, first.ReminderIntervalDays)
	assert.Equal(t, admin.ID, first.CreatedBy)

	sent := f.recorder.OfKind(notifdomain.KindInvoiceCreated)
	require.Len(t, sent, 2)
	assert.Equal(t, client.Email, sent[0].To)
	assert.Equal(t, "INV-000001", sent[0].Data.InvoiceNumber)
	assert.Contains(t, sent[0].Data.Link, "https://pay.example/?invoiceId=")
}

func TestCreateSurvivesNotificationFailure(t *testing.T) {
	f := newFixture(t)
	f.recorder.FailFor(client.Email, errors.New("smtp down"))

	inv := f.create(t, client.Email)
	got, err := f.svc.Get(context.Background(), admin, inv.ID.String())
	require.NoError(t, err)
	assert.Equal(t, inv.InvoiceNumberStr, got.InvoiceNumberStr)
}

func TestCreateRequiresAdmin(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create(context.Background(), client, createRequest(client.Email))
	assert.ErrorIs(t, err, invoicedomain.ErrForbidden)
}

func TestCreateRejectsInvalidRequest(t *testing.T) {
	f := newFixture(t)
	req := createRequest("not-an-email")
	_, err := f.svc.Create(context.Background(), admin, req)
	assert.True(t, invoicedomain.IsValidation(err))
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidClientEmail)
}

func TestMarkPaidIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.create(t, client.Email)

	paid, err := f.svc.MarkPaid(ctx, client, inv.ID.String(), "Zelle")
	require.NoError(t, err)
	require.True(t, paid.IsPaid)
	require.NotNil(t, paid.PaidAt)
	require.NotNil(t, paid.PaymentMethod)
	assert.Equal(t, invoicedomain.PaymentMethodZelle, *paid.PaymentMethod)

	f.clock.Advance(time.Hour)
	again, err := f.svc.MarkPaid(ctx, admin, inv.ID.String(), "Paypal")
	require.NoError(t, err)
	assert.True(t, paid.PaidAt.Equal(*again.PaidAt))
	assert.Equal(t, invoicedomain.PaymentMethodZelle, *again.PaymentMethod)
}

func TestMarkPaidDropsUnknownMethod(t *testing.T) {
	f := newFixture(t)
	inv := f.create(t, client.Email)

	paid, err := f.svc.MarkPaid(context.Background(), admin, inv.ID.String(), "Bitcoin")
	require.NoError(t, err)
	assert.True(t, paid.IsPaid)
	assert.Nil(t, paid.PaymentMethod)
}

func TestMarkPaidErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.create(t, client.Email)

	_, err := f.svc.MarkPaid(ctx, other, inv.ID.String(), "Zelle")
	assert.ErrorIs(t, err, invoicedomain.ErrForbidden)

	_, err = f.svc.MarkPaid(ctx, admin, "12345", "Zelle")
	assert.ErrorIs(t, err, invoicedomain.ErrNotFound)

	_, err = f.svc.MarkPaid(ctx, admin, "not-an-id", "Zelle")
	assert.ErrorIs(t, err, invoicedomain.ErrNotFound)
}

func TestGetChecksReadAccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.create(t, client.Email)

	_, err := f.svc.Get(ctx, client, inv.ID.String())
	require.NoError(t, err)
	_, err = f.svc.Get(ctx, other, inv.ID.String())
	assert.ErrorIs(t, err, invoicedomain.ErrForbidden)
}

func TestUpdateReminderConfigClamps(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.create(t, client.Email)

	enabled := true
	interval := 0
	hour, minute := 30, -5
	updated, err := f.svc.UpdateReminderConfig(ctx, admin, inv.ID.String(), invoicedomain.ReminderConfigPatch{
		Enabled:      &enabled,
		IntervalDays: &interval,
		Hour:         invoicedomain.OptionalInt{Set: true, Value: &hour},
		Minute:       invoicedomain.OptionalInt{Set: true, Value: &minute},
	})
	require.NoError(t, err)
	assert.True(t, updated.ReminderEnabled)
	assert.Equal(t, 1, updated.ReminderIntervalDays)
	require.NotNil(t, updated.ReminderHour)
	require.NotNil(t, updated.ReminderMinute)
	assert.Equal(t, 23, *updated.ReminderHour)
	assert.Equal(t, 0, *updated.ReminderMinute)

	stored, err := f.svc.Get(ctx, admin, inv.ID.String())
	require.NoError(t, err)
	assert.Equal(t, updated.ReminderConfig(), stored.ReminderConfig())
}

// changedRowsRepo reports zero rows for an update that rewrites identical
// values, as MySQL does without clientFoundRows.
type changedRowsRepo struct {
	invoicedomain.Repository
}

func (r changedRowsRepo) UpdateReminderConfig(ctx context.Context, db *gorm.DB, id snowflake.ID, cfg invoicedomain.ReminderConfig) (bool, error) {
	current, err := r.Repository.FindByID(ctx, db, id)
	if err != nil || current == nil {
		return false, err
	}
	if cmp.Equal(current.ReminderConfig(), cfg) {
		return false, nil
	}
	return r.Repository.UpdateReminderConfig(ctx, db, id, cfg)
}

func TestUpdateReminderConfigWithUnchangedValues(t *testing.T) {
	f := newFixture(t)
	f.svc.repo = changedRowsRepo{Repository: f.svc.repo}
	ctx := context.Background()
	inv := f.create(t, client.Email)

	enabled := inv.ReminderEnabled
	updated, err := f.svc.UpdateReminderConfig(ctx, admin, inv.ID.String(), invoicedomain.ReminderConfigPatch{Enabled: &enabled})
	require.NoError(t, err)
	assert.Equal(t, inv.ReminderConfig(), updated.ReminderConfig())

	require.NoError(t, f.svc.Delete(ctx, admin, inv.ID.String()))
	_, err = f.svc.UpdateReminderConfig(ctx, admin, inv.ID.String(), invoicedomain.ReminderConfigPatch{Enabled: &enabled})
	assert.ErrorIs(t, err, invoicedomain.ErrNotFound)
}

func TestUpdateReminderConfigRequiresAdmin(t *testing.T) {
	f := newFixture(t)
	inv := f.create(t, client.Email)

	enabled := true
	_, err := f.svc.UpdateReminderConfig(context.Background(), client, inv.ID.String(), invoicedomain.ReminderConfigPatch{Enabled: &enabled})
	assert.ErrorIs(t, err, invoicedomain.ErrForbidden)
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.create(t, client.Email)

	assert.ErrorIs(t, f.svc.Delete(ctx, client, inv.ID.String()), invoicedomain.ErrForbidden)
	require.NoError(t, f.svc.Delete(ctx, admin, inv.ID.String()))
	assert.ErrorIs(t, f.svc.Delete(ctx, admin, inv.ID.String()), invoicedomain.ErrNotFound)

	_, err := f.svc.Get(ctx, admin, inv.ID.String())
	assert.ErrorIs(t, err, invoicedomain.ErrNotFound)
}

func TestSendReminderStampsEvenWhenDeliveryFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.create(t, client.Email)
	f.recorder.FailFor(client.Email, errors.New("mailbox full"))

	res, err := f.svc.SendReminder(ctx, admin, inv.ID.String())
	require.NoError(t, err)
	assert.False(t, res.ClientNotified)
	assert.True(t, res.AdminNotified)
	require.NotNil(t, res.Invoice.LastReminderAt)
	assert.True(t, res.Invoice.LastReminderAt.Equal(f.clock.Now()))

	admins := f.recorder.OfKind(notifdomain.KindAdminReminderSent)
	require.Len(t, admins, 1)
	assert.Equal(t, "ops@uptimio.com", admins[0].To)
}

func TestSendReminderRejectsPaidInvoice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.create(t, client.Email)
	_, err := f.svc.MarkPaid(ctx, admin, inv.ID.String(), "")
	require.NoError(t, err)

	_, err = f.svc.SendReminder(ctx, admin, inv.ID.String())
	assert.ErrorIs(t, err, invoicedomain.ErrAlreadyPaid)
	assert.True(t, invoicedomain.IsValidation(err))
	assert.Empty(t, f.recorder.OfKind(notifdomain.KindInvoiceReminder))
}

func TestListAndListMine(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		f.create(t, client.Email)
		f.clock.Advance(time.Minute)
	}
	f.create(t, other.Email)

	page, err := f.svc.List(ctx, admin, invoicedomain.ListInvoiceRequest{
		Pagination: pagination.Pagination{PageSize: 3},
	})
	require.NoError(t, err)
	require.Len(t, page.Invoices, 3)
	assert.True(t, page.PageInfo.HasMore)
	assert.Equal(t, other.Email, page.Invoices[0].Client.Email)

	rest, err := f.svc.List(ctx, admin, invoicedomain.ListInvoiceRequest{
		Pagination: pagination.Pagination{PageSize: 3, PageToken: page.PageInfo.NextPageToken},
	})
	require.NoError(t, err)
	require.Len(t, rest.Invoices, 1)
	assert.False(t, rest.PageInfo.HasMore)
	assert.Equal(t, "INV-000001", rest.Invoices[0].InvoiceNumberStr)

	mine, err := f.svc.ListMine(ctx, client, invoicedomain.ListInvoiceRequest{})
	require.NoError(t, err)
	assert.Len(t, mine.Invoices, 3)

	_, err = f.svc.List(ctx, client, invoicedomain.ListInvoiceRequest{})
	assert.ErrorIs(t, err, invoicedomain.ErrForbidden)

	_, err = f.svc.List(ctx, admin, invoicedomain.ListInvoiceRequest{Status: "overdue"})
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidStatus)

	_, err = f.svc.List(ctx, admin, invoicedomain.ListInvoiceRequest{Pagination: pagination.Pagination{PageToken: "%%%"}})
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidPageToken)
}
