package overdue

import (
	"context"
	"fmt"
	"strings"
	"time"

	auditdomain "github.com/Nikjeremic/uptiomio/internal/audit/domain"
	authdomain "github.com/Nikjeremic/uptiomio/internal/auth/domain"
	"github.com/Nikjeremic/uptiomio/internal/authorization"
	"github.com/Nikjeremic/uptiomio/internal/clock"
	"github.com/Nikjeremic/uptiomio/internal/config"
	invoicedomain "github.com/Nikjeremic/uptiomio/internal/invoice/domain"
	"github.com/Nikjeremic/uptiomio/internal/invoice/format"
	notifdomain "github.com/Nikjeremic/uptiomio/internal/notification/domain"
	"github.com/Nikjeremic/uptiomio/internal/observability/logger"
	"github.com/Nikjeremic/uptiomio/internal/observability/metrics"
	"github.com/oklog/ulid/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// JobName labels the overdue run in logs, locks and metrics.
const JobName = "overdue_digest"

type Trigger string

const (
	TriggerSchedule Trigger = "schedule"
	TriggerManual   Trigger = "manual"
)

type Summary struct {
	RunID         string    `json:"runId"`
	Trigger       Trigger   `json:"trigger"`
	WindowStart   time.Time `json:"windowStart"`
	Candidates    int       `json:"candidates"`
	Groups        int       `json:"groups"`
	Notified      int       `json:"notified"`
	Failed        int       `json:"failed"`
	AdminNotified int       `json:"adminNotified"`
}

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Config    config.Config
	Clock     clock.Clock
	Repo      invoicedomain.Repository
	Notifier  notifdomain.Notifier
	Authz     authorization.Service
	Audit     auditdomain.Service          `optional:"true"`
	Policy    *config.ReminderPolicyHolder `optional:"true"`
	Metrics   *metrics.Metrics             `optional:"true"`
	Scheduler *metrics.SchedulerMetrics    `optional:"true"`
}

type Aggregator struct {
	db       *gorm.DB
	log      *zap.Logger
	clock    clock.Clock
	repo     invoicedomain.Repository
	notifier notifdomain.Notifier
	authz    authorization.Service
	audit    auditdomain.Service
	policy   *config.ReminderPolicyHolder
	metrics  *metrics.Metrics
	sched    *metrics.SchedulerMetrics

	baseURL    string
	adminEmail string
}

func NewAggregator(p Params) *Aggregator {
	return &Aggregator{
		db:         p.DB,
		log:        p.Log.Named("overdue.aggregator"),
		clock:      p.Clock,
		repo:       p.Repo,
		notifier:   p.Notifier,
		authz:      p.Authz,
		audit:      p.Audit,
		policy:     p.Policy,
		metrics:    p.Metrics,
		sched:      p.Scheduler,
		baseURL:    p.Config.PublicBaseURL,
		adminEmail: strings.TrimSpace(p.Config.AdminEmail),
	}
}

// Run notifies every client with enough unpaid invoices inside the window.
// Each delivered digest is followed by an admin notice for that client. It
// never stamps last_reminder_at.
func (a *Aggregator) Run(ctx context.Context, trigger Trigger) (Summary, error) {
	policy := a.policy.Get()
	now := a.clock.Now()
	summary := Summary{
		RunID:       ulid.Make().String(),
		Trigger:     trigger,
		WindowStart: now.Add(-time.Duration(policy.OverdueWindowDays) * 24 * time.Hour).UTC(),
	}
	if err := a.authz.Authorize(ctx, authdomain.SystemActor(JobName), authorization.ObjectOverdue, authorization.ActionOverdueRun); err != nil {
		return summary, err
	}

	log := logger.WithContext(ctx, a.log).With(
		zap.String("run_id", summary.RunID),
		zap.String("trigger", string(trigger)),
	)

	candidates, err := a.repo.ListUnpaidCreatedSince(ctx, a.db, summary.WindowStart)
	if err != nil {
		return summary, fmt.Errorf("load overdue candidates: %w", err)
	}
	summary.Candidates = len(candidates)

	groups := Group(candidates, policy.OverdueMinInvoices)
	summary.Groups = len(groups)

	for _, g := range groups {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		data := a.digestData(g, policy.OverdueWindowDays)
		res := a.sendBounded(ctx, policy.SendTimeout, g.ClientEmail, notifdomain.KindOverdueDigest, data)
		if res.Err != nil {
			summary.Failed++
			a.metrics.RecordOverdueDigest(ctx, string(trigger), metrics.NotificationOutcomeFailed)
			log.Warn("overdue digest failed",
				zap.String("client_email", g.ClientEmail),
				zap.Int("invoice_count", g.InvoiceCount),
				zap.Error(res.Err),
			)
			continue
		}
		summary.Notified++
		a.metrics.RecordOverdueDigest(ctx, string(trigger), metrics.NotificationOutcomeSent)
		if a.notifyAdmin(ctx, policy.SendTimeout, data, now) {
			summary.AdminNotified++
		}
	}

	a.sched.AddItemsProcessed(JobName, metrics.ItemOutcomeSent, summary.Notified)
	a.sched.AddItemsProcessed(JobName, metrics.ItemOutcomeFailed, summary.Failed)
	log.Info("overdue run finished",
		zap.Int("candidates", summary.Candidates),
		zap.Int("groups", summary.Groups),
		zap.Int("notified", summary.Notified),
		zap.Int("failed", summary.Failed),
		zap.Int("admin_notified", summary.AdminNotified),
	)
	a.record(ctx, summary)
	return summary, nil
}

// notifyAdmin tells the admin about one client that was just sent a digest.
func (a *Aggregator) notifyAdmin(ctx context.Context, timeout time.Duration, digest notifdomain.Data, now time.Time) bool {
	if a.adminEmail == "" {
		return false
	}
	res := a.sendBounded(ctx, timeout, a.adminEmail, notifdomain.KindAdminOverdueSent, notifdomain.Data{
		RecipientName: "Administrator",
		ClientName:    digest.ClientName,
		ClientEmail:   digest.ClientEmail,
		InvoiceCount:  digest.InvoiceCount,
		TotalAmount:   digest.TotalAmount,
		Currency:      digest.Currency,
		WindowDays:    digest.WindowDays,
		SentAt:        now,
	})
	if res.Err != nil {
		logger.WithContext(ctx, a.log).Warn("admin overdue notice failed",
			zap.String("client_email", digest.ClientEmail),
			zap.Error(res.Err),
		)
		return false
	}
	return true
}

// record attributes manual runs to the requesting actor when the context
// carries one.
func (a *Aggregator) record(ctx context.Context, summary Summary) {
	if a.audit == nil {
		return
	}
	actor, ok := authdomain.ActorFromContext(ctx)
	if !ok {
		actor = authdomain.SystemActor(JobName)
	}
	_ = a.audit.Record(ctx, actor, auditdomain.ActionOverdueRun, auditdomain.TargetOverdue, summary.RunID, map[string]any{
		"trigger":        string(summary.Trigger),
		"candidates":     summary.Candidates,
		"groups":         summary.Groups,
		"notified":       summary.Notified,
		"failed":         summary.Failed,
		"admin_notified": summary.AdminNotified,
	})
}

func (a *Aggregator) sendBounded(ctx context.Context, timeout time.Duration, to string, kind notifdomain.Kind, data notifdomain.Data) notifdomain.Result {
	sendCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return a.notifier.Send(sendCtx, to, kind, data)
}

func (a *Aggregator) digestData(g ClientGroup, windowDays int) notifdomain.Data {
	lines := make([]notifdomain.InvoiceLine, 0, len(g.Invoices))
	for _, inv := range g.Invoices {
		id := inv.ID.String()
		lines = append(lines, notifdomain.InvoiceLine{
			InvoiceID:     id,
			InvoiceNumber: inv.InvoiceNumberStr,
			Amount:        inv.Amount,
			Currency:      inv.Currency,
			CreatedAt:     inv.CreatedAt,
			Link:          format.ViewLink(a.baseURL, id),
		})
	}
	return notifdomain.Data{
		RecipientName: g.ClientName,
		ClientName:    g.ClientName,
		ClientEmail:   g.ClientEmail,
		Invoices:      lines,
		InvoiceCount:  g.InvoiceCount,
		TotalAmount:   g.TotalAmount,
		Currency:      sharedCurrency(g.Invoices),
		OldestAt:      g.OldestInvoice,
		WindowDays:    windowDays,
	}
}

// sharedCurrency returns the group's currency, or "" when it is mixed.
func sharedCurrency(invoices []invoicedomain.Invoice) string {
	if len(invoices) == 0 {
		return ""
	}
	currency := invoices[0].Currency
	for _, inv := range invoices[1:] {
		if inv.Currency != currency {
			return ""
		}
	}
	return currency
}
