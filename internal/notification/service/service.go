package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/Nikjeremic/uptiomio/internal/clock"
	"github.com/Nikjeremic/uptiomio/internal/config"
	"github.com/Nikjeremic/uptiomio/internal/notification/domain"
	"github.com/Nikjeremic/uptiomio/internal/notification/smtp"
	notiftemplate "github.com/Nikjeremic/uptiomio/internal/notification/template"
	"github.com/Nikjeremic/uptiomio/internal/observability/logger"
	"github.com/Nikjeremic/uptiomio/internal/observability/metrics"
	"github.com/oklog/ulid/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const DefaultSendTimeout = 15 * time.Second

type Params struct {
	fx.In

	Config  config.Config
	Policy  *config.ReminderPolicyHolder
	Log     *zap.Logger
	Clock   clock.Clock
	Metrics *metrics.SchedulerMetrics `optional:"true"`
}

type Service struct {
	log       *zap.Logger
	clock     clock.Clock
	renderer  *notiftemplate.Renderer
	transport domain.Transport
	policy    *config.ReminderPolicyHolder
	metrics   *metrics.SchedulerMetrics
}

// New builds the notifier. Without SMTP_HOST it runs in dev mode and only
// logs the link each message would have carried.
func New(p Params) (domain.Notifier, error) {
	var transport domain.Transport
	if !p.Config.Mail.DevMode() {
		t, err := smtp.New(p.Config.Mail)
		if err != nil {
			return nil, err
		}
		transport = t
	}

	renderer, err := notiftemplate.NewRenderer(notiftemplate.Branding{
		LogoURL:      p.Config.Mail.LogoURL,
		SignatureURL: p.Config.Mail.SignatureURL,
	})
	if err != nil {
		return nil, err
	}

	log := p.Log.Named("notification.service")
	if transport == nil {
		log.Warn("SMTP_HOST not set, notifications run in dev mode")
	}
	return NewWithTransport(log, p.Clock, renderer, transport, p.Policy, p.Metrics), nil
}

// NewWithTransport wires an explicit transport; nil selects dev mode.
func NewWithTransport(
	log *zap.Logger,
	clk clock.Clock,
	renderer *notiftemplate.Renderer,
	transport domain.Transport,
	policy *config.ReminderPolicyHolder,
	m *metrics.SchedulerMetrics,
) *Service {
	if clk == nil {
		clk = clock.NewSystemClock()
	}
	return &Service{
		log:       log,
		clock:     clk,
		renderer:  renderer,
		transport: transport,
		policy:    policy,
		metrics:   m,
	}
}

func (s *Service) Send(ctx context.Context, to string, kind domain.Kind, data domain.Data) (res domain.Result) {
	start := s.clock.Now()
	res.MessageID = ulid.Make().String()
	log := logger.WithContext(ctx, s.log).With(
		zap.String("kind", string(kind)),
		zap.String("message_id", res.MessageID),
	)

	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("notification panic: %v", r)
		}
		outcome := metrics.NotificationOutcomeSent
		switch {
		case res.Err != nil:
			outcome = metrics.NotificationOutcomeFailed
			log.Warn("notification failed", zap.Error(res.Err))
		case res.DevLink != "" || s.transport == nil:
			outcome = metrics.NotificationOutcomeDev
		}
		s.metrics.ObserveNotification(string(kind), outcome, s.clock.Now().Sub(start))
	}()

	addr, err := mail.ParseAddress(strings.TrimSpace(to))
	if err != nil {
		res.Err = fmt.Errorf("%w: %q", domain.ErrInvalidRecipient, to)
		return res
	}

	subject, body, err := s.renderer.Render(kind, data)
	if err != nil {
		res.Err = err
		return res
	}

	if s.transport == nil {
		res.DevLink = data.Link
		log.Info("dev mode notification",
			zap.String("to", addr.Address),
			zap.String("subject", subject),
			zap.String("link", data.Link),
		)
		return res
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.sendTimeout())
	defer cancel()

	err = s.transport.Deliver(sendCtx, domain.Message{
		ID:      res.MessageID,
		To:      addr.Address,
		Subject: subject,
		HTML:    body,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("send %s timed out after %s: %w", kind, s.sendTimeout(), err)
		}
		res.Err = err
		return res
	}

	log.Info("notification sent", zap.String("to", addr.Address))
	return res
}

func (s *Service) sendTimeout() time.Duration {
	if timeout := s.policy.Get().SendTimeout; timeout > 0 {
		return timeout
	}
	return DefaultSendTimeout
}
