package reminder

import (
	"context"
	"fmt"
	"time"

	authdomain "github.com/Nikjeremic/uptiomio/internal/auth/domain"
	"github.com/Nikjeremic/uptiomio/internal/authorization"
	"github.com/Nikjeremic/uptiomio/internal/clock"
	"github.com/Nikjeremic/uptiomio/internal/config"
	invoicedomain "github.com/Nikjeremic/uptiomio/internal/invoice/domain"
	notifdomain "github.com/Nikjeremic/uptiomio/internal/notification/domain"
	"github.com/Nikjeremic/uptiomio/internal/observability/logger"
	"github.com/Nikjeremic/uptiomio/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// JobName labels the reminder tick in logs, locks and metrics.
const JobName = "reminder_tick"

const stampTimeout = 5 * time.Second

type TickResult struct {
	Evaluated int `json:"evaluated"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
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
	Policy    *config.ReminderPolicyHolder `optional:"true"`
	Metrics   *metrics.Metrics             `optional:"true"`
	Scheduler *metrics.SchedulerMetrics    `optional:"true"`
}

type Runner struct {
	db       *gorm.DB
	log      *zap.Logger
	clock    clock.Clock
	repo     invoicedomain.Repository
	notifier notifdomain.Notifier
	authz    authorization.Service
	policy   *config.ReminderPolicyHolder
	metrics  *metrics.Metrics
	sched    *metrics.SchedulerMetrics

	baseURL  string
	location *time.Location
}

func NewRunner(p Params) *Runner {
	return &Runner{
		db:       p.DB,
		log:      p.Log.Named("reminder.runner"),
		clock:    p.Clock,
		repo:     p.Repo,
		notifier: p.Notifier,
		authz:    p.Authz,
		policy:   p.Policy,
		metrics:  p.Metrics,
		sched:    p.Scheduler,
		baseURL:  p.Config.PublicBaseURL,
		location: p.Config.Scheduler.Location(),
	}
}

// RunTick evaluates every unpaid invoice with reminders enabled. Only a
// failure to load candidates aborts the tick; per-invoice send and stamp
// failures are logged and counted.
func (r *Runner) RunTick(ctx context.Context) (TickResult, error) {
	var result TickResult
	if err := r.authz.Authorize(ctx, authdomain.SystemActor(JobName), authorization.ObjectReminder, authorization.ActionReminderTick); err != nil {
		return result, err
	}

	candidates, err := r.repo.ListReminderCandidates(ctx, r.db)
	if err != nil {
		return result, fmt.Errorf("load reminder candidates: %w", err)
	}

	log := logger.WithContext(ctx, r.log)
	for i := range candidates {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		inv := candidates[i]
		result.Evaluated++

		now := r.clock.Now().In(r.location)
		decision := ShouldSend(inv, now)
		if !decision.Send {
			result.Skipped++
			continue
		}

		// The candidate list is a snapshot; payment, deletion or a config
		// change may have landed while earlier sends were in flight.
		current, err := r.repo.FindByID(ctx, r.db, inv.ID)
		if err != nil {
			result.Failed++
			log.Error("reload reminder candidate failed",
				zap.String("invoice_id", inv.ID.String()),
				zap.Error(err),
			)
			continue
		}
		if current == nil {
			result.Skipped++
			continue
		}
		inv = *current
		if decision = ShouldSend(inv, now); !decision.Send {
			result.Skipped++
			continue
		}

		if r.send(ctx, inv, decision) {
			result.Sent++
		} else {
			result.Failed++
		}

		// Stamped after every attempt, delivered or not, even when the job
		// deadline expired during the send.
		stampCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stampTimeout)
		_, err = r.repo.TouchLastReminder(stampCtx, r.db, inv.ID, now.UTC())
		cancel()
		if err != nil {
			log.Error("stamp last reminder failed",
				zap.String("invoice_id", inv.ID.String()),
				zap.Error(err),
			)
		}
	}

	r.sched.AddItemsProcessed(JobName, metrics.ItemOutcomeSent, result.Sent)
	r.sched.AddItemsProcessed(JobName, metrics.ItemOutcomeFailed, result.Failed)
	r.sched.AddItemsProcessed(JobName, metrics.ItemOutcomeSkipped, result.Skipped)
	log.Info("reminder tick finished",
		zap.Int("evaluated", result.Evaluated),
		zap.Int("sent", result.Sent),
		zap.Int("failed", result.Failed),
		zap.Int("skipped", result.Skipped),
	)
	return result, nil
}

func (r *Runner) send(ctx context.Context, inv invoicedomain.Invoice, decision Decision) bool {
	sendCtx, cancel := context.WithTimeout(ctx, r.policy.Get().SendTimeout)
	defer cancel()

	res := r.notifier.Send(sendCtx, inv.Client.Email, notifdomain.KindInvoiceReminder, notifdomain.InvoiceData(inv, r.baseURL))
	if res.Err != nil {
		r.metrics.RecordReminderSent(ctx, "schedule", metrics.NotificationOutcomeFailed)
		logger.WithContext(ctx, r.log).Warn("reminder send failed",
			zap.String("invoice_id", inv.ID.String()),
			zap.String("policy", string(decision.Policy)),
			zap.Error(res.Err),
		)
		return false
	}
	r.metrics.RecordReminderSent(ctx, "schedule", metrics.NotificationOutcomeSent)
	logger.WithContext(ctx, r.log).Info("reminder sent",
		zap.String("invoice_id", inv.ID.String()),
		zap.String("invoice_number", inv.InvoiceNumberStr),
		zap.String("policy", string(decision.Policy)),
		zap.String("reason", decision.Reason),
	)
	return true
}
