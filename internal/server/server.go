package server

import (
	"context"
	"net/http"
	"time"

	auditdomain "github.com/Nikjeremic/uptiomio/internal/audit/domain"
	authdomain "github.com/Nikjeremic/uptiomio/internal/auth/domain"
	"github.com/Nikjeremic/uptiomio/internal/authorization"
	"github.com/Nikjeremic/uptiomio/internal/clock"
	"github.com/Nikjeremic/uptiomio/internal/config"
	invoicedomain "github.com/Nikjeremic/uptiomio/internal/invoice/domain"
	"github.com/Nikjeremic/uptiomio/internal/invoice/render"
	notifdomain "github.com/Nikjeremic/uptiomio/internal/notification/domain"
	"github.com/Nikjeremic/uptiomio/internal/observability"
	obsmiddleware "github.com/Nikjeremic/uptiomio/internal/observability/logger"
	obsmetrics "github.com/Nikjeremic/uptiomio/internal/observability/metrics"
	obstracing "github.com/Nikjeremic/uptiomio/internal/observability/tracing"
	"github.com/Nikjeremic/uptiomio/internal/overdue"
	"github.com/Nikjeremic/uptiomio/internal/reminder"
	"github.com/Nikjeremic/uptiomio/internal/scheduler"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	Log        *zap.Logger
	Clock      clock.Clock
	Tokens     authdomain.TokenService
	Authz      authorization.Service
	InvoiceSvc invoicedomain.Service
	Renderer   render.Renderer
	Notifier   notifdomain.Notifier
	Audit      auditdomain.Service  `optional:"true"`
	Scheduler  *scheduler.Scheduler `optional:"true"`
	Overdue    *overdue.Aggregator  `optional:"true"`
	Reminders  *reminder.Runner     `optional:"true"`
}

type Server struct {
	engine     *gin.Engine
	cfg        config.Config
	log        *zap.Logger
	clock      clock.Clock
	tokens     authdomain.TokenService
	authz      authorization.Service
	invoiceSvc invoicedomain.Service
	renderer   render.Renderer
	notifier   notifdomain.Notifier
	audit      auditdomain.Service
	scheduler  *scheduler.Scheduler
	overdue    *overdue.Aggregator
	reminders  *reminder.Runner
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		log:        p.Log.Named("http.server"),
		clock:      p.Clock,
		tokens:     p.Tokens,
		authz:      p.Authz,
		invoiceSvc: p.InvoiceSvc,
		renderer:   p.Renderer,
		notifier:   p.Notifier,
		audit:      p.Audit,
		scheduler:  p.Scheduler,
		overdue:    p.Overdue,
		reminders:  p.Reminders,
	}

	svc.registerInvoiceRoutes()
	svc.registerAdminRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerInvoiceRoutes() {
	api := s.engine.Group("/api", s.AuthRequired())

	invoices := api.Group("/invoices")
	invoices.POST("", s.CreateInvoice)
	invoices.GET("", s.ListInvoices)
	invoices.GET("/mine", s.ListMyInvoices)
	invoices.GET("/:id", s.GetInvoice)
	invoices.GET("/:id/pdf", s.DownloadInvoicePDF)
	invoices.PATCH("/:id/pay", s.MarkInvoicePaid)
	invoices.PATCH("/:id/reminder", s.UpdateReminderConfig)
	invoices.DELETE("/:id", s.DeleteInvoice)
	invoices.POST("/:id/send-reminder", s.SendReminder)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/api/admin", s.AuthRequired(), RequireAdmin())

	admin.POST("/overdue/run", s.RunOverdue)
	admin.POST("/reminders/tick", s.RunReminderTick)
	admin.POST("/notifications/test", s.SendTestNotification)
	admin.GET("/scheduler", s.SchedulerState)
	admin.GET("/audit-logs", s.ListAuditLogs)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
