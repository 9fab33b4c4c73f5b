package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	auditdomain "github.com/Nikjeremic/uptiomio/internal/audit/domain"
	"github.com/Nikjeremic/uptiomio/internal/audit/masking"
	authdomain "github.com/Nikjeremic/uptiomio/internal/auth/domain"
	"github.com/Nikjeremic/uptiomio/internal/authorization"
	"github.com/Nikjeremic/uptiomio/internal/clock"
	obscontext "github.com/Nikjeremic/uptiomio/internal/observability/context"
	"github.com/Nikjeremic/uptiomio/internal/observability/logger"
	"github.com/Nikjeremic/uptiomio/pkg/db/pagination"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
	GenID *snowflake.Node
	Repo  auditdomain.Repository
	Authz authorization.Service
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	genID *snowflake.Node
	repo  auditdomain.Repository
	authz authorization.Service
}

func NewService(p Params) auditdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		clock: p.Clock,
		genID: p.GenID,
		repo:  p.Repo,
		authz: p.Authz,
	}
}

func (s *Service) Record(ctx context.Context, actor authdomain.Actor, action, targetType, targetID string, metadata map[string]any) error {
	action = strings.TrimSpace(action)
	if action == "" {
		return auditdomain.ErrInvalidAction
	}

	targetType = strings.TrimSpace(targetType)
	if targetType == "" {
		targetType = "unknown"
	}

	actorType := string(actor.Role)
	if actorType == "" {
		actorType = string(authdomain.RoleSystem)
	}

	entry := auditdomain.AuditLog{
		ID:         s.genID.Generate(),
		ActorType:  actorType,
		ActorID:    strings.TrimSpace(actor.ID),
		Action:     action,
		TargetType: targetType,
		TargetID:   normalize(targetID),
		CreatedAt:  s.clock.Now().UTC().Truncate(time.Microsecond),
	}
	if masked := masking.MaskFields(metadata, masking.SensitiveKeys...); masked != nil {
		entry.Metadata = datatypes.JSONMap(masked)
	}
	entry.RequestID = normalize(obscontext.RequestIDFromContext(ctx))

	if err := s.repo.Insert(ctx, s.db, &entry); err != nil {
		logger.WithContext(ctx, s.log).Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

func (s *Service) List(ctx context.Context, actor authdomain.Actor, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	if err := s.authz.Authorize(ctx, actor, authorization.ObjectAudit, authorization.ActionAuditList); err != nil {
		return auditdomain.ListAuditLogResponse{}, err
	}
	if req.StartAt != nil && req.EndAt != nil && req.StartAt.After(*req.EndAt) {
		return auditdomain.ListAuditLogResponse{}, auditdomain.ErrInvalidTimeRange
	}

	cursor, err := pagination.DecodeCursor(req.PageToken)
	if err != nil {
		return auditdomain.ListAuditLogResponse{}, auditdomain.ErrInvalidPageToken
	}

	limit := req.Limit()
	items, err := s.repo.List(ctx, s.db, auditdomain.ListFilter{
		Action:     req.Action,
		TargetType: req.TargetType,
		TargetID:   req.TargetID,
		ActorType:  req.ActorType,
		StartAt:    req.StartAt,
		EndAt:      req.EndAt,
		Cursor:     cursor,
		Limit:      limit + 1,
	})
	if err != nil {
		return auditdomain.ListAuditLogResponse{}, err
	}

	logs, info, err := pagination.BuildCursorPage(items, limit, func(item auditdomain.AuditLog) pagination.Cursor {
		return pagination.Cursor{ID: item.ID.String(), CreatedAt: item.CreatedAt}
	})
	if err != nil {
		return auditdomain.ListAuditLogResponse{}, err
	}
	if logs == nil {
		logs = []auditdomain.AuditLog{}
	}
	return auditdomain.ListAuditLogResponse{PageInfo: info, AuditLogs: logs}, nil
}

func normalize(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
