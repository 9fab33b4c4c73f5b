package service

import (
	"context"
	"errors"
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
	"github.com/Nikjeremic/uptiomio/internal/ratelimit"
	sequencedomain "github.com/Nikjeremic/uptiomio/internal/sequence/domain"
	"github.com/Nikjeremic/uptiomio/pkg/db/pagination"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Config   config.Config
	Clock    clock.Clock
	GenID    *snowflake.Node
	Repo     invoicedomain.Repository
	Sequence sequencedomain.Generator
	Authz    authorization.Service
	Notifier notifdomain.Notifier
	Audit    auditdomain.Service        `optional:"true"`
	Limiter  *ratelimit.ReminderLimiter `optional:"true"`
	Metrics  *metrics.Metrics           `optional:"true"`
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	clock    clock.Clock
	genID    *snowflake.Node
	repo     invoicedomain.Repository
	sequence sequencedomain.Generator
	authz    authorization.Service
	notifier notifdomain.Notifier
	audit    auditdomain.Service
	limiter  *ratelimit.ReminderLimiter
	metrics  *metrics.Metrics

	baseURL    string
	adminEmail string

	// goAsync runs post-commit side effects.
	goAsync func(func())
}

func NewService(p ServiceParam) invoicedomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("invoice.service"),
		clock:      p.Clock,
		genID:      p.GenID,
		repo:       p.Repo,
		sequence:   p.Sequence,
		authz:      p.Authz,
		notifier:   p.Notifier,
		audit:      p.Audit,
		limiter:    p.Limiter,
		metrics:    p.Metrics,
		baseURL:    p.Config.PublicBaseURL,
		adminEmail: strings.TrimSpace(p.Config.AdminEmail),
		goAsync:    func(fn func()) { go fn() },
	}
}

func (s *Service) Create(ctx context.Context, actor authdomain.Actor, req invoicedomain.CreateInvoiceRequest) (*invoicedomain.Invoice, error) {
	if err := s.authorize(ctx, actor, authorization.ObjectInvoice, authorization.ActionInvoiceCreate); err != nil {
		return nil, err
	}
	if err := req.Normalize(); err != nil {
		return nil, err
	}

	// Postgres keeps microseconds; truncating keeps page cursors exact.
	now := s.clock.Now().UTC().Truncate(time.Microsecond)
	reminder := invoicedomain.ReminderConfig{IntervalDays: invoicedomain.DefaultReminderIntervalDays}
	if req.Reminder != nil {
		reminder = req.Reminder.Apply(reminder)
	}

	inv := &invoicedomain.Invoice{
		ID:                   s.genID.Generate(),
		Issuer:               req.Issuer,
		Client:               req.Client,
		Items:                req.Items,
		Amount:               invoicedomain.ComputeAmount(req.Items),
		Currency:             req.Currency,
		Description:          strings.TrimSpace(req.Description),
		Notes:                strings.TrimSpace(req.Notes),
		DueDate:              req.DueDate,
		ReminderEnabled:      reminder.Enabled,
		ReminderIntervalDays: reminder.IntervalDays,
		ReminderHour:         reminder.Hour,
		ReminderMinute:       reminder.Minute,
		CreatedBy:            actor.ID,
		CreatedAt:            now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seq, err := s.sequence.NextTx(ctx, tx, sequencedomain.InvoiceNumber)
		if err != nil {
			return err
		}
		number, err := format.FormatInvoiceNumber(format.DefaultInvoiceNumberTemplate, now, seq)
		if err != nil {
			return err
		}
		inv.InvoiceNumber = seq
		inv.InvoiceNumberStr = number
		return s.repo.Insert(ctx, tx, inv)
	})
	if err != nil {
		return nil, fmt.Errorf("create invoice: %w", err)
	}

	s.metrics.RecordInvoiceCreated(ctx, inv.Currency)
	s.record(ctx, actor, auditdomain.ActionInvoiceCreate, inv.ID, map[string]any{
		"invoice_number": inv.InvoiceNumberStr,
		"amount":         inv.Amount,
		"currency":       inv.Currency,
		"client_email":   inv.Client.Email,
		"iban":           inv.Issuer.IBAN,
		"card_number":    inv.Issuer.CardNumber,
	})
	logger.WithContext(ctx, s.log).Info("invoice created",
		zap.String("invoice_id", inv.ID.String()),
		zap.String("invoice_number", inv.InvoiceNumberStr),
		zap.Float64("amount", inv.Amount),
	)

	created := *inv
	notifyCtx := context.WithoutCancel(ctx)
	s.goAsync(func() {
		res := s.notifier.Send(notifyCtx, created.Client.Email, notifdomain.KindInvoiceCreated, notifdomain.InvoiceData(created, s.baseURL))
		if res.Err != nil {
			logger.WithContext(notifyCtx, s.log).Warn("invoice created notification failed",
				zap.String("invoice_id", created.ID.String()),
				zap.Error(res.Err),
			)
		}
	})
	return inv, nil
}

func (s *Service) Get(ctx context.Context, actor authdomain.Actor, id string) (*invoicedomain.Invoice, error) {
	if err := s.authorize(ctx, actor, authorization.ObjectInvoice, authorization.ActionInvoiceView); err != nil {
		return nil, err
	}
	inv, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canRead(actor, inv) {
		return nil, invoicedomain.ErrForbidden
	}
	return inv, nil
}

func (s *Service) List(ctx context.Context, actor authdomain.Actor, req invoicedomain.ListInvoiceRequest) (invoicedomain.ListInvoiceResponse, error) {
	if err := s.authorize(ctx, actor, authorization.ObjectInvoice, authorization.ActionInvoiceList); err != nil {
		return invoicedomain.ListInvoiceResponse{}, err
	}
	return s.list(ctx, req, "")
}

func (s *Service) ListMine(ctx context.Context, actor authdomain.Actor, req invoicedomain.ListInvoiceRequest) (invoicedomain.ListInvoiceResponse, error) {
	if err := s.authorize(ctx, actor, authorization.ObjectInvoice, authorization.ActionInvoiceView); err != nil {
		return invoicedomain.ListInvoiceResponse{}, err
	}
	email := strings.TrimSpace(actor.Email)
	if email == "" {
		return invoicedomain.ListInvoiceResponse{Invoices: []invoicedomain.Invoice{}}, nil
	}
	return s.list(ctx, req, email)
}

func (s *Service) list(ctx context.Context, req invoicedomain.ListInvoiceRequest, clientEmail string) (invoicedomain.ListInvoiceResponse, error) {
	status, err := invoicedomain.ParsePaymentStatus(req.Status)
	if err != nil {
		return invoicedomain.ListInvoiceResponse{}, err
	}
	cursor, err := pagination.DecodeCursor(req.PageToken)
	if err != nil {
		return invoicedomain.ListInvoiceResponse{}, &invoicedomain.ValidationError{Field: "page_token", Err: invoicedomain.ErrInvalidPageToken}
	}

	limit := req.Limit()
	items, err := s.repo.List(ctx, s.db, invoicedomain.ListFilter{
		Search:      req.Search,
		Status:      status,
		ClientEmail: clientEmail,
		Cursor:      cursor,
		Limit:       limit + 1,
	})
	if err != nil {
		if errors.Is(err, invoicedomain.ErrInvalidPageToken) {
			return invoicedomain.ListInvoiceResponse{}, &invoicedomain.ValidationError{Field: "page_token", Err: err}
		}
		return invoicedomain.ListInvoiceResponse{}, fmt.Errorf("list invoices: %w", err)
	}

	page, info, err := pagination.BuildCursorPage(items, limit, func(inv invoicedomain.Invoice) pagination.Cursor {
		return pagination.Cursor{ID: inv.ID.String(), CreatedAt: inv.CreatedAt}
	})
	if err != nil {
		return invoicedomain.ListInvoiceResponse{}, err
	}
	if page == nil {
		page = []invoicedomain.Invoice{}
	}
	return invoicedomain.ListInvoiceResponse{PageInfo: info, Invoices: page}, nil
}

// MarkPaid is idempotent: paying a paid invoice returns it unchanged.
func (s *Service) MarkPaid(ctx context.Context, actor authdomain.Actor, id string, method string) (*invoicedomain.Invoice, error) {
	if err := s.authorize(ctx, actor, authorization.ObjectInvoice, authorization.ActionInvoicePay); err != nil {
		return nil, err
	}
	inv, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && !isClient(actor, inv) {
		return nil, invoicedomain.ErrForbidden
	}
	if inv.IsPaid {
		return inv, nil
	}

	paymentMethod := invoicedomain.ParsePaymentMethod(method)
	applied, err := s.repo.MarkPaid(ctx, s.db, inv.ID, s.clock.Now().UTC(), paymentMethod)
	if err != nil {
		return nil, err
	}

	updated, err := s.repo.FindByID(ctx, s.db, inv.ID)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, invoicedomain.ErrNotFound
	}
	if applied {
		methodLabel := ""
		if paymentMethod != nil {
			methodLabel = string(*paymentMethod)
		}
		s.metrics.RecordInvoicePaid(ctx, methodLabel)
		s.record(ctx, actor, auditdomain.ActionInvoicePay, inv.ID, map[string]any{
			"payment_method": methodLabel,
		})
		logger.WithContext(ctx, s.log).Info("invoice marked paid",
			zap.String("invoice_id", inv.ID.String()),
			zap.String("payment_method", methodLabel),
		)
	}
	return updated, nil
}

func (s *Service) UpdateReminderConfig(ctx context.Context, actor authdomain.Actor, id string, patch invoicedomain.ReminderConfigPatch) (*invoicedomain.Invoice, error) {
	if err := s.authorize(ctx, actor, authorization.ObjectReminder, authorization.ActionReminderUpdate); err != nil {
		return nil, err
	}
	inv, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	next := patch.Apply(inv.ReminderConfig())
	updated, err := s.repo.UpdateReminderConfig(ctx, s.db, inv.ID, next)
	if err != nil {
		return nil, err
	}
	if !updated {
		// Some drivers count changed rather than matched rows.
		if _, err := s.load(ctx, id); err != nil {
			return nil, err
		}
	}

	inv.ReminderEnabled = next.Enabled
	inv.ReminderIntervalDays = next.IntervalDays
	inv.ReminderHour = next.Hour
	inv.ReminderMinute = next.Minute
	s.record(ctx, actor, auditdomain.ActionReminderUpdate, inv.ID, map[string]any{
		"enabled":       next.Enabled,
		"interval_days": next.IntervalDays,
		"hour":          next.Hour,
		"minute":        next.Minute,
	})
	return inv, nil
}

func (s *Service) Delete(ctx context.Context, actor authdomain.Actor, id string) error {
	if err := s.authorize(ctx, actor, authorization.ObjectInvoice, authorization.ActionInvoiceDelete); err != nil {
		return err
	}
	invoiceID, err := parseID(id)
	if err != nil {
		return err
	}
	deleted, err := s.repo.Delete(ctx, s.db, invoiceID)
	if err != nil {
		return err
	}
	if !deleted {
		return invoicedomain.ErrNotFound
	}
	logger.WithContext(ctx, s.log).Info("invoice deleted", zap.String("invoice_id", invoiceID.String()))
	s.record(ctx, actor, auditdomain.ActionInvoiceDelete, invoiceID, nil)
	return nil
}

// SendReminder mails the client now, copies the admin and stamps
// last_reminder_at whatever the outcome of either send.
func (s *Service) SendReminder(ctx context.Context, actor authdomain.Actor, id string) (*invoicedomain.SendReminderResult, error) {
	if err := s.authorize(ctx, actor, authorization.ObjectReminder, authorization.ActionReminderSend); err != nil {
		return nil, err
	}
	inv, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv.IsPaid {
		return nil, &invoicedomain.ValidationError{Field: "id", Err: invoicedomain.ErrAlreadyPaid}
	}

	allowed, retryAfter, err := s.limiter.AllowManualReminder(ctx, inv.ID.String())
	if err != nil {
		logger.WithContext(ctx, s.log).Warn("manual reminder rate limit check failed", zap.Error(err))
	} else if !allowed {
		return nil, fmt.Errorf("%w: retry after %s", invoicedomain.ErrRateLimited, retryAfter.Round(time.Second))
	}

	log := logger.WithContext(ctx, s.log).With(zap.String("invoice_id", inv.ID.String()))
	now := s.clock.Now().UTC()
	data := notifdomain.InvoiceData(*inv, s.baseURL)

	result := &invoicedomain.SendReminderResult{}
	clientRes := s.notifier.Send(ctx, inv.Client.Email, notifdomain.KindInvoiceReminder, data)
	result.ClientNotified = clientRes.OK()
	result.DevLink = clientRes.DevLink
	outcome := metrics.NotificationOutcomeSent
	if clientRes.Err != nil {
		outcome = metrics.NotificationOutcomeFailed
		log.Warn("manual reminder failed", zap.Error(clientRes.Err))
	}
	s.metrics.RecordReminderSent(ctx, "manual", outcome)

	adminTo := s.adminEmail
	if adminTo == "" {
		adminTo = actor.Email
	}
	if adminTo != "" {
		adminData := data
		adminData.RecipientName = ""
		adminData.SentAt = now
		adminRes := s.notifier.Send(ctx, adminTo, notifdomain.KindAdminReminderSent, adminData)
		result.AdminNotified = adminRes.OK()
		if adminRes.Err != nil {
			log.Warn("admin reminder copy failed", zap.Error(adminRes.Err))
		}
	}

	if _, err := s.repo.TouchLastReminder(ctx, s.db, inv.ID, now); err != nil {
		return nil, err
	}
	updated, err := s.repo.FindByID(ctx, s.db, inv.ID)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, invoicedomain.ErrNotFound
	}
	result.Invoice = updated
	s.record(ctx, actor, auditdomain.ActionReminderSend, inv.ID, map[string]any{
		"client_notified": result.ClientNotified,
		"admin_notified":  result.AdminNotified,
	})
	return result, nil
}

func (s *Service) authorize(ctx context.Context, actor authdomain.Actor, object, action string) error {
	err := s.authz.Authorize(ctx, actor, object, action)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, authorization.ErrForbidden), errors.Is(err, authorization.ErrInvalidActor):
		return invoicedomain.ErrForbidden
	default:
		return err
	}
}

// record writes an audit entry. Audit failures are logged by the audit
// service and never fail the operation.
func (s *Service) record(ctx context.Context, actor authdomain.Actor, action string, id snowflake.ID, metadata map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, actor, action, auditdomain.TargetInvoice, id.String(), metadata)
}

func (s *Service) load(ctx context.Context, id string) (*invoicedomain.Invoice, error) {
	invoiceID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	inv, err := s.repo.FindByID(ctx, s.db, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, invoicedomain.ErrNotFound
	}
	return inv, nil
}

// parseID maps malformed ids to not found; no invoice can carry them.
func parseID(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil || id <= 0 {
		return 0, invoicedomain.ErrNotFound
	}
	return id, nil
}

func isClient(actor authdomain.Actor, inv *invoicedomain.Invoice) bool {
	email := strings.TrimSpace(actor.Email)
	return email != "" && email == inv.Client.Email
}

func canRead(actor authdomain.Actor, inv *invoicedomain.Invoice) bool {
	return actor.IsAdmin() || actor.ID == inv.CreatedBy || isClient(actor, inv)
}
