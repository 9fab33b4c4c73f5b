package authorization

import (
	"context"
	_ "embed"
	"errors"
	"strings"

	authdomain "github.com/Nikjeremic/uptiomio/internal/auth/domain"
	"github.com/Nikjeremic/uptiomio/internal/config"
	"github.com/Nikjeremic/uptiomio/internal/observability/logger"
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectInvoice      = "invoice"
	ObjectOverdue      = "overdue"
	ObjectReminder     = "reminder"
	ObjectNotification = "notification"
	ObjectAudit        = "audit"
)

const (
	ActionInvoiceCreate = "invoice.create"
	ActionInvoiceList   = "invoice.list"
	ActionInvoiceView   = "invoice.view"
	ActionInvoicePay    = "invoice.pay"
	ActionInvoiceDelete = "invoice.delete"

	ActionReminderUpdate = "reminder.update"
	ActionReminderSend   = "reminder.send"
	ActionReminderTick   = "reminder.tick"

	ActionOverdueRun = "overdue.run"

	ActionNotificationTest = "notification.test"

	ActionAuditList = "audit.list"
)

var (
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidActor = errors.New("invalid_actor")
)

type Service interface {
	Authorize(ctx context.Context, actor authdomain.Actor, object, action string) error
}

type EnforcerParams struct {
	fx.In

	Config config.Config
	DB     *gorm.DB `optional:"true"`
	Log    *zap.Logger
}

// NewEnforcer persists policy through gorm-adapter on server databases and
// keeps it in memory for sqlite deployments and tests.
func NewEnforcer(p EnforcerParams) (*casbin.SyncedEnforcer, error) {
	if p.DB == nil || strings.EqualFold(p.Config.DBType, "sqlite") {
		return NewMemoryEnforcer()
	}

	adapter, err := gormadapter.NewAdapterByDB(p.DB)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	p.Log.Named("authorization").Info("casbin policy loaded", zap.String("adapter", "gorm"))
	return enforcer, nil
}

func NewMemoryEnforcer() (*casbin.SyncedEnforcer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	return enforcer, nil
}

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, actor authdomain.Actor, object, action string) error {
	if strings.TrimSpace(actor.ID) == "" || actor.Role == "" {
		return ErrInvalidActor
	}

	subject := "role:" + string(actor.Role)
	allowed, err := s.enforcer.Enforce(subject, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		logger.WithContext(ctx, s.log).Info("authorization denied",
			zap.String("actor_id", actor.ID),
			zap.String("role", string(actor.Role)),
			zap.String("object", object),
			zap.String("action", action),
		)
		return ErrForbidden
	}
	return nil
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Clients read and pay invoices addressed to them; ownership is
		// checked by the invoice service.
		{"role:user", ObjectInvoice, ActionInvoiceView},
		{"role:user", ObjectInvoice, ActionInvoicePay},

		{"role:admin", ObjectInvoice, ActionInvoiceCreate},
		{"role:admin", ObjectInvoice, ActionInvoiceList},
		{"role:admin", ObjectInvoice, ActionInvoiceView},
		{"role:admin", ObjectInvoice, ActionInvoicePay},
		{"role:admin", ObjectInvoice, ActionInvoiceDelete},
		{"role:admin", ObjectReminder, ActionReminderUpdate},
		{"role:admin", ObjectReminder, ActionReminderSend},
		{"role:admin", ObjectReminder, ActionReminderTick},
		{"role:admin", ObjectOverdue, ActionOverdueRun},
		{"role:admin", ObjectNotification, ActionNotificationTest},
		{"role:admin", ObjectAudit, ActionAuditList},

		// Scheduled jobs.
		{"role:system", ObjectReminder, ActionReminderTick},
		{"role:system", ObjectOverdue, ActionOverdueRun},
	}

	for _, policy := range policies {
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
