package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/Nikjeremic/uptiomio/internal/authorization"
	notifdomain "github.com/Nikjeremic/uptiomio/internal/notification/domain"
	"github.com/Nikjeremic/uptiomio/internal/overdue"
	"github.com/Nikjeremic/uptiomio/internal/reminder"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type testNotificationRequest struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

type testNotificationResponse struct {
	Delivered bool   `json:"delivered"`
	MessageID string `json:"messageId,omitempty"`
	DevLink   string `json:"devLink,omitempty"`
	Error     string `json:"error,omitempty"`
}

// RunOverdue runs the overdue aggregation now. It shares the scheduler's
// overlap guard so a manual run never races the daily one.
func (s *Server) RunOverdue(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	if err := s.authz.Authorize(ctx, actor, authorization.ObjectOverdue, authorization.ActionOverdueRun); err != nil {
		AbortWithError(c, err)
		return
	}
	if s.overdue == nil {
		AbortWithError(c, ErrNotFound)
		return
	}

	var summary overdue.Summary
	run := func(ctx context.Context) error {
		var err error
		summary, err = s.overdue.Run(ctx, overdue.TriggerManual)
		return err
	}

	var err error
	if s.scheduler != nil {
		err = s.scheduler.Exclusive(ctx, overdue.JobName, run)
	} else {
		err = run(ctx)
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.log.Info("overdue run triggered",
		zap.String("actor_id", actor.ID),
		zap.String("run_id", summary.RunID),
		zap.Int("groups", summary.Groups),
	)
	c.JSON(http.StatusOK, gin.H{"data": summary})
}

func (s *Server) RunReminderTick(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	if err := s.authz.Authorize(ctx, actor, authorization.ObjectReminder, authorization.ActionReminderTick); err != nil {
		AbortWithError(c, err)
		return
	}
	if s.reminders == nil {
		AbortWithError(c, ErrNotFound)
		return
	}

	var result reminder.TickResult
	run := func(ctx context.Context) error {
		var err error
		result, err = s.reminders.RunTick(ctx)
		return err
	}

	var err error
	if s.scheduler != nil {
		err = s.scheduler.Exclusive(ctx, reminder.JobName, run)
	} else {
		err = run(ctx)
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) SendTestNotification(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	if err := s.authz.Authorize(ctx, actor, authorization.ObjectNotification, authorization.ActionNotificationTest); err != nil {
		AbortWithError(c, err)
		return
	}

	var req testNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		AbortWithError(c, invalidRequestError())
		return
	}

	to := strings.TrimSpace(req.To)
	if to == "" {
		to = actor.Email
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		message = "Test notification from the invoicing service."
	}

	res := s.notifier.Send(ctx, to, notifdomain.KindTest, notifdomain.Data{
		RecipientName: to,
		Message:       message,
		SentAt:        s.clock.Now(),
	})
	if errors.Is(res.Err, notifdomain.ErrInvalidRecipient) {
		AbortWithError(c, res.Err)
		return
	}

	resp := testNotificationResponse{
		Delivered: res.OK(),
		MessageID: res.MessageID,
		DevLink:   res.DevLink,
	}
	if res.Err != nil {
		resp.Error = res.Err.Error()
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) SchedulerState(c *gin.Context) {
	if s.scheduler == nil {
		AbortWithError(c, ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": s.scheduler.State()})
}
