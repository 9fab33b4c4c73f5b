package service

import (
	"context"
	"errors"
	"testing"
	"time"

	auditdomain "github.com/Nikjeremic/uptiomio/internal/audit/domain"
	"github.com/Nikjeremic/uptiomio/internal/audit/repository"
	authdomain "github.com/Nikjeremic/uptiomio/internal/auth/domain"
	"github.com/Nikjeremic/uptiomio/internal/authorization"
	"github.com/Nikjeremic/uptiomio/internal/clock"
	obscontext "github.com/Nikjeremic/uptiomio/internal/observability/context"
	"github.com/Nikjeremic/uptiomio/internal/testutil"
	"github.com/Nikjeremic/uptiomio/pkg/db/pagination"
	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	admin  = authdomain.Actor{ID: "admin-1", Email: "admin@uptimio.com", Role: authdomain.RoleAdmin}
	client = authdomain.Actor{ID: "user-1", Email: "billing@acme.test", Role: authdomain.RoleUser}
)

func newTestService(t *testing.T) (auditdomain.Service, *clock.FakeClock) {
	t.Helper()

	log := zap.NewNop()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	enforcer, err := authorization.NewMemoryEnforcer()
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))

	svc := NewService(Params{
		DB:    testutil.NewDB(t),
		Log:   log,
		Clock: clk,
		GenID: node,
		Repo:  repository.Provide(),
		Authz: authorization.NewService(authorization.Params{Log: log, Enforcer: enforcer}),
	})
	return svc, clk
}

func TestRecordMasksSensitiveMetadata(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := obscontext.WithRequestID(context.Background(), "req-42")

	err := svc.Record(ctx, admin, auditdomain.ActionInvoiceCreate, auditdomain.TargetInvoice, "123", map[string]any{
		"number": "INV-000001",
		"iban":   "RS35105008123123123173",
	})
	require.NoError(t, err)

	resp, err := svc.List(context.Background(), admin, auditdomain.ListAuditLogRequest{})
	require.NoError(t, err)
	require.Len(t, resp.AuditLogs, 1)

	entry := resp.AuditLogs[0]
	assert.Equal(t, "admin", entry.ActorType)
	assert.Equal(t, admin.ID, entry.ActorID)
	require.NotNil(t, entry.TargetID)
	assert.Equal(t, "123", *entry.TargetID)
	require.NotNil(t, entry.RequestID)
	assert.Equal(t, "req-42", *entry.RequestID)
	assert.Equal(t, "INV-000001", entry.Metadata["number"])
	assert.Equal(t, "****3173", entry.Metadata["iban"])
}

func TestRecordRejectsEmptyAction(t *testing.T) {
	svc, _ := newTestService(t)

	err := svc.Record(context.Background(), admin, "  ", auditdomain.TargetInvoice, "1", nil)

	assert.ErrorIs(t, err, auditdomain.ErrInvalidAction)
}

func TestRecordDefaultsActorTypeToSystem(t *testing.T) {
	svc, _ := newTestService(t)

	require.NoError(t, svc.Record(context.Background(), authdomain.Actor{ID: "overdue.digest"},
		auditdomain.ActionOverdueRun, auditdomain.TargetOverdue, "run-1", nil))

	resp, err := svc.List(context.Background(), admin, auditdomain.ListAuditLogRequest{ActorType: "system"})
	require.NoError(t, err)
	require.Len(t, resp.AuditLogs, 1)
	assert.Empty(t, resp.AuditLogs[0].Metadata)
}

func TestListFiltersAndPages(t *testing.T) {
	svc, clk := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, svc.Record(ctx, admin, auditdomain.ActionInvoiceCreate, auditdomain.TargetInvoice, "inv", nil))
		clk.Advance(time.Minute)
	}
	require.NoError(t, svc.Record(ctx, client, auditdomain.ActionInvoicePay, auditdomain.TargetInvoice, "inv", nil))

	resp, err := svc.List(ctx, admin, auditdomain.ListAuditLogRequest{Action: auditdomain.ActionInvoicePay})
	require.NoError(t, err)
	require.Len(t, resp.AuditLogs, 1)
	assert.Equal(t, client.ID, resp.AuditLogs[0].ActorID)

	first, err := svc.List(ctx, admin, auditdomain.ListAuditLogRequest{
		Action:     auditdomain.ActionInvoiceCreate,
		Pagination: pagination.Pagination{PageSize: 2},
	})
	require.NoError(t, err)
	require.Len(t, first.AuditLogs, 2)
	require.True(t, first.HasMore)
	require.NotEmpty(t, first.NextPageToken)

	second, err := svc.List(ctx, admin, auditdomain.ListAuditLogRequest{
		Action:     auditdomain.ActionInvoiceCreate,
		Pagination: pagination.Pagination{PageSize: 2, PageToken: first.NextPageToken},
	})
	require.NoError(t, err)
	require.Len(t, second.AuditLogs, 1)
	assert.False(t, second.HasMore)
	assert.True(t, second.AuditLogs[0].CreatedAt.Before(first.AuditLogs[1].CreatedAt))

	start := clk.Now().Add(-30 * time.Second)
	recent, err := svc.List(ctx, admin, auditdomain.ListAuditLogRequest{StartAt: &start})
	require.NoError(t, err)
	require.Len(t, recent.AuditLogs, 1)
	assert.Equal(t, auditdomain.ActionInvoicePay, recent.AuditLogs[0].Action)
}

func TestListValidatesRequest(t *testing.T) {
	svc, clk := newTestService(t)
	ctx := context.Background()

	start := clk.Now()
	end := start.Add(-time.Hour)
	_, err := svc.List(ctx, admin, auditdomain.ListAuditLogRequest{StartAt: &start, EndAt: &end})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidTimeRange)

	_, err = svc.List(ctx, admin, auditdomain.ListAuditLogRequest{
		Pagination: pagination.Pagination{PageToken: "%%%"},
	})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidPageToken)
}

func TestListRequiresAdmin(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.List(context.Background(), client, auditdomain.ListAuditLogRequest{})

	require.Error(t, err)
	assert.True(t, errors.Is(err, authorization.ErrForbidden))
}
