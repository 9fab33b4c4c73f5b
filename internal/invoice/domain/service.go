package domain

import (
	"context"
	"encoding/json"
	"math"
	"net/mail"
	"strings"
	"time"

	authdomain "github.com/Nikjeremic/uptiomio/internal/auth/domain"
	"github.com/Nikjeremic/uptiomio/pkg/db/pagination"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Service interface {
	Create(ctx context.Context, actor authdomain.Actor, req CreateInvoiceRequest) (*Invoice, error)
	Get(ctx context.Context, actor authdomain.Actor, id string) (*Invoice, error)
	List(ctx context.Context, actor authdomain.Actor, req ListInvoiceRequest) (ListInvoiceResponse, error)
	ListMine(ctx context.Context, actor authdomain.Actor, req ListInvoiceRequest) (ListInvoiceResponse, error)
	MarkPaid(ctx context.Context, actor authdomain.Actor, id string, method string) (*Invoice, error)
	UpdateReminderConfig(ctx context.Context, actor authdomain.Actor, id string, patch ReminderConfigPatch) (*Invoice, error)
	Delete(ctx context.Context, actor authdomain.Actor, id string) error
	SendReminder(ctx context.Context, actor authdomain.Actor, id string) (*SendReminderResult, error)
}

// Repository persists invoices. Methods take the handle to run on so
// callers can compose them inside a transaction.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, inv *Invoice) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Invoice, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]Invoice, error)
	ListReminderCandidates(ctx context.Context, db *gorm.DB) ([]Invoice, error)
	ListUnpaidCreatedSince(ctx context.Context, db *gorm.DB, since time.Time) ([]Invoice, error)
	// MarkPaid applies only while the invoice is unpaid and reports whether it did.
	MarkPaid(ctx context.Context, db *gorm.DB, id snowflake.ID, paidAt time.Time, method *PaymentMethod) (bool, error)
	UpdateReminderConfig(ctx context.Context, db *gorm.DB, id snowflake.ID, cfg ReminderConfig) (bool, error)
	// TouchLastReminder never moves last_reminder_at backwards.
	TouchLastReminder(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (bool, error)
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error)
}

type CreateInvoiceRequest struct {
	Issuer      IssuerSnapshot       `json:"issuer"`
	Client      ClientSnapshot       `json:"client"`
	Items       []LineItem           `json:"items"`
	Currency    string               `json:"currency"`
	Description string               `json:"description"`
	Notes       string               `json:"notes"`
	DueDate     *time.Time           `json:"dueDate"`
	Reminder    *ReminderConfigPatch `json:"reminder"`
}

// Normalize trims free text and returns the first validation failure.
func (r *CreateInvoiceRequest) Normalize() error {
	r.Issuer.Name = strings.TrimSpace(r.Issuer.Name)
	r.Client.Name = strings.TrimSpace(r.Client.Name)
	r.Client.Email = strings.TrimSpace(r.Client.Email)
	r.Currency = strings.ToUpper(strings.TrimSpace(r.Currency))

	if r.Issuer.Name == "" {
		return invalid("issuer.name", ErrInvalidIssuerName)
	}
	if r.Client.Name == "" {
		return invalid("client.name", ErrInvalidClientName)
	}
	if r.Client.Email == "" {
		return invalid("client.email", ErrInvalidClientEmail)
	}
	if _, err := mail.ParseAddress(r.Client.Email); err != nil {
		return invalid("client.email", ErrInvalidClientEmail)
	}
	if len(r.Items) == 0 {
		return invalid("items", ErrInvalidItems)
	}
	for i := range r.Items {
		r.Items[i].Description = strings.TrimSpace(r.Items[i].Description)
		if r.Items[i].Quantity < 0 {
			return invalid("items.quantity", ErrInvalidQuantity)
		}
		if r.Items[i].UnitPrice < 0 {
			return invalid("items.unitPrice", ErrInvalidUnitPrice)
		}
	}
	if r.Currency == "" {
		r.Currency = DefaultCurrency
	}
	if len(r.Currency) != 3 {
		return invalid("currency", ErrInvalidCurrency)
	}
	return nil
}

// ComputeAmount sums quantity times unit price, rounded to cents.
func ComputeAmount(items []LineItem) float64 {
	var total float64
	for _, item := range items {
		total += item.Quantity * item.UnitPrice
	}
	return RoundCents(total)
}

func RoundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

// OptionalInt distinguishes an absent JSON field from an explicit null.
type OptionalInt struct {
	Set   bool
	Value *int
}

func (o *OptionalInt) UnmarshalJSON(data []byte) error {
	o.Set = true
	if string(data) == "null" {
		o.Value = nil
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	// Bounded before conversion; out of range floats have no defined int.
	v = math.Max(math.MinInt32, math.Min(math.MaxInt32, v))
	n := int(v)
	o.Value = &n
	return nil
}

// ReminderConfigPatch: absent fields keep the stored value, a null
// hour or minute clears it.
type ReminderConfigPatch struct {
	Enabled      *bool       `json:"enabled"`
	IntervalDays *int        `json:"intervalDays"`
	Hour         OptionalInt `json:"hour"`
	Minute       OptionalInt `json:"minute"`
}

// Apply returns current with the patch applied and out of range values clamped.
func (p ReminderConfigPatch) Apply(current ReminderConfig) ReminderConfig {
	next := current
	if p.Enabled != nil {
		next.Enabled = *p.Enabled
	}
	if p.IntervalDays != nil {
		next.IntervalDays = *p.IntervalDays
	}
	if next.IntervalDays < 1 {
		next.IntervalDays = 1
	}
	if p.Hour.Set {
		next.Hour = clampPtr(p.Hour.Value, 0, 23)
	}
	if p.Minute.Set {
		next.Minute = clampPtr(p.Minute.Value, 0, 59)
	}
	return next
}

func clampPtr(v *int, lo, hi int) *int {
	if v == nil {
		return nil
	}
	n := *v
	if n < lo {
		n = lo
	}
	if n > hi {
		n = hi
	}
	return &n
}

type PaymentStatus string

const (
	StatusAny    PaymentStatus = ""
	StatusPaid   PaymentStatus = "paid"
	StatusUnpaid PaymentStatus = "unpaid"
)

func ParsePaymentStatus(raw string) (PaymentStatus, error) {
	switch PaymentStatus(strings.ToLower(strings.TrimSpace(raw))) {
	case StatusAny, "all":
		return StatusAny, nil
	case StatusPaid:
		return StatusPaid, nil
	case StatusUnpaid:
		return StatusUnpaid, nil
	default:
		return StatusAny, invalid("status", ErrInvalidStatus)
	}
}

type ListInvoiceRequest struct {
	Search string
	Status string
	pagination.Pagination
}

// ListFilter is the resolved query handed to the repository.
type ListFilter struct {
	Search      string
	Status      PaymentStatus
	ClientEmail string
	Cursor      *pagination.Cursor
	Limit       int
}

type ListInvoiceResponse struct {
	pagination.PageInfo
	Invoices []Invoice `json:"invoices"`
}

type SendReminderResult struct {
	Invoice        *Invoice `json:"invoice"`
	ClientNotified bool     `json:"clientNotified"`
	AdminNotified  bool     `json:"adminNotified"`
	DevLink        string   `json:"devLink,omitempty"`
}
