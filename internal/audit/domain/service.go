// Package domain records who changed what on billing records.
package domain

import (
	"context"
	"errors"
	"time"

	authdomain "github.com/Nikjeremic/uptiomio/internal/auth/domain"
	"github.com/Nikjeremic/uptiomio/pkg/db/pagination"
	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	ActionInvoiceCreate  = "invoice.create"
	ActionInvoicePay     = "invoice.pay"
	ActionInvoiceDelete  = "invoice.delete"
	ActionReminderUpdate = "reminder.update"
	ActionReminderSend   = "reminder.send"
	ActionOverdueRun     = "overdue.run"

	TargetInvoice = "invoice"
	TargetOverdue = "overdue_run"
)

// AuditLog is append-only.
type AuditLog struct {
	ID         snowflake.ID      `gorm:"primaryKey;autoIncrement:false" json:"id"`
	ActorType  string            `gorm:"type:varchar(16);not null" json:"actor_type"`
	ActorID    string            `gorm:"type:varchar(64);not null" json:"actor_id"`
	Action     string            `gorm:"type:varchar(64);not null;index" json:"action"`
	TargetType string            `gorm:"type:varchar(32);not null" json:"target_type"`
	TargetID   *string           `gorm:"type:varchar(64);index" json:"target_id,omitempty"`
	Metadata   datatypes.JSONMap `json:"metadata,omitempty"`
	RequestID  *string           `gorm:"type:varchar(64)" json:"request_id,omitempty"`
	CreatedAt  time.Time         `gorm:"not null;index" json:"created_at"`
}

func (AuditLog) TableName() string { return "audit_logs" }

type ListAuditLogRequest struct {
	pagination.Pagination
	Action     string `form:"action"`
	TargetType string `form:"target_type"`
	TargetID   string `form:"target_id"`
	ActorType  string `form:"actor_type"`
	StartAt    *time.Time
	EndAt      *time.Time
}

type ListAuditLogResponse struct {
	pagination.PageInfo
	AuditLogs []AuditLog `json:"audit_logs"`
}

type ListFilter struct {
	Action     string
	TargetType string
	TargetID   string
	ActorType  string
	StartAt    *time.Time
	EndAt      *time.Time
	Cursor     *pagination.Cursor
	Limit      int
}

type Service interface {
	Record(ctx context.Context, actor authdomain.Actor, action, targetType, targetID string, metadata map[string]any) error
	List(ctx context.Context, actor authdomain.Actor, req ListAuditLogRequest) (ListAuditLogResponse, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]AuditLog, error)
}

var (
	ErrInvalidPageToken = errors.New("invalid_page_token")
	ErrInvalidTimeRange = errors.New("invalid_time_range")
	ErrInvalidAction    = errors.New("invalid_action")
)
