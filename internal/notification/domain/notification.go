// Package domain defines outbound notification kinds and the Notifier contract.
package domain

import (
	"context"
	"errors"
	"time"
)

type Kind string

const (
	KindInvoiceCreated    Kind = "invoice_created"
	KindInvoiceReminder   Kind = "invoice_reminder"
	KindOverdueDigest     Kind = "overdue_digest"
	KindAdminOverdueSent  Kind = "admin_overdue_sent"
	KindAdminReminderSent Kind = "admin_reminder_sent"
	KindTest              Kind = "test"
)

var (
	ErrUnknownKind      = errors.New("unknown_notification_kind")
	ErrInvalidRecipient = errors.New("invalid_recipient")
)

// InvoiceLine is one invoice inside a digest.
type InvoiceLine struct {
	InvoiceID     string
	InvoiceNumber string
	Amount        float64
	Currency      string
	CreatedAt     time.Time
	Link          string
}

// Data carries template inputs. Each kind reads only the fields it needs.
type Data struct {
	RecipientName string
	IssuerName    string

	InvoiceID     string
	InvoiceNumber string
	Amount        float64
	Currency      string
	DueDate       *time.Time
	Link          string

	ClientName  string
	ClientEmail string

	Invoices     []InvoiceLine
	InvoiceCount int
	TotalAmount  float64
	OldestAt     time.Time
	WindowDays   int

	Message string
	SentAt  time.Time
	Trigger string
}

// Result reports a send attempt. Transport failures travel in Err rather
// than as a returned error so callers can never be aborted by mail issues.
type Result struct {
	MessageID string `json:"messageId,omitempty"`
	DevLink   string `json:"devLink,omitempty"`
	Err       error  `json:"-"`
}

func (r Result) OK() bool { return r.Err == nil }

type Notifier interface {
	Send(ctx context.Context, to string, kind Kind, data Data) Result
}

// Message is a rendered email ready for a transport.
type Message struct {
	ID      string
	To      string
	Subject string
	HTML    string
}

type Transport interface {
	Deliver(ctx context.Context, msg Message) error
}
