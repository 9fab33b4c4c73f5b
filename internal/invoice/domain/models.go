// Package domain contains persistence models for invoicing.
package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// PaymentMethod is the closed set of methods a payer may report.
type PaymentMethod string

const (
	PaymentMethodPayoneer     PaymentMethod = "Payoneer"
	PaymentMethodWesternUnion PaymentMethod = "Western Union"
	PaymentMethodZelle        PaymentMethod = "Zelle"
	PaymentMethodCreditCard   PaymentMethod = "Credit Card"
	PaymentMethodAuthorizeNet PaymentMethod = "Authorize.net"
	PaymentMethodPaypal       PaymentMethod = "Paypal"
)

var paymentMethods = map[PaymentMethod]struct{}{
	PaymentMethodPayoneer:     {},
	PaymentMethodWesternUnion: {},
	PaymentMethodZelle:        {},
	PaymentMethodCreditCard:   {},
	PaymentMethodAuthorizeNet: {},
	PaymentMethodPaypal:       {},
}

// ParsePaymentMethod returns nil for anything outside the allowed set.
func ParsePaymentMethod(raw string) *PaymentMethod {
	method := PaymentMethod(strings.TrimSpace(raw))
	if _, ok := paymentMethods[method]; !ok {
		return nil
	}
	return &method
}

const (
	DefaultCurrency             = "USD"
	DefaultReminderIntervalDays = 7
)

// IssuerSnapshot is copied onto the invoice at creation and never refreshed.
type IssuerSnapshot struct {
	Name         string `gorm:"type:text;not null" json:"name"`
	Company      string `gorm:"type:text" json:"company"`
	Address      string `gorm:"type:text" json:"address"`
	Country      string `gorm:"type:text" json:"country"`
	Phone        string `gorm:"type:text" json:"phone"`
	LogoURL      string `gorm:"type:text" json:"logoUrl"`
	SignatureURL string `gorm:"type:text" json:"signatureUrl"`
	SwiftCode    string `gorm:"type:text" json:"swiftCode"`
	IBAN         string `gorm:"column:iban;type:text" json:"iban"`
	CardNumber   string `gorm:"type:text" json:"cardNumber"`
}

// ClientSnapshot identifies the recipient; Email is the client's identity.
type ClientSnapshot struct {
	Name    string `gorm:"type:text;not null" json:"name"`
	Email   string `gorm:"type:varchar(320);not null;index" json:"email"`
	Company string `gorm:"type:text" json:"company"`
	Address string `gorm:"type:text" json:"address"`
	Country string `gorm:"type:text" json:"country"`
	Phone   string `gorm:"type:text" json:"phone"`
}

type LineItem struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unitPrice"`
}

// Invoice is the central billing record. Amount and number are fixed at creation.
type Invoice struct {
	ID               snowflake.ID                  `gorm:"primaryKey;autoIncrement:false" json:"id"`
	InvoiceNumber    int64                         `gorm:"not null;uniqueIndex:ux_invoices_invoice_number" json:"invoiceNumber"`
	InvoiceNumberStr string                        `gorm:"type:varchar(32);not null;uniqueIndex:ux_invoices_invoice_number_str" json:"invoiceNumberStr"`
	Issuer           IssuerSnapshot                `gorm:"embedded;embeddedPrefix:issuer_" json:"issuer"`
	Client           ClientSnapshot                `gorm:"embedded;embeddedPrefix:client_" json:"client"`
	Items            datatypes.JSONSlice[LineItem] `gorm:"not null" json:"items"`
	Amount           float64                       `gorm:"not null" json:"amount"`
	Currency         string                        `gorm:"type:varchar(8);not null" json:"currency"`
	Description      string                        `gorm:"type:text" json:"description"`
	Notes            string                        `gorm:"type:text" json:"notes"`
	DueDate          *time.Time                    `json:"dueDate,omitempty"`

	IsPaid        bool           `gorm:"not null;index" json:"isPaid"`
	PaidAt        *time.Time     `json:"paidAt,omitempty"`
	PaymentMethod *PaymentMethod `gorm:"type:varchar(32)" json:"paymentMethod,omitempty"`

	ReminderEnabled      bool       `gorm:"not null" json:"reminderEnabled"`
	ReminderIntervalDays int        `gorm:"not null" json:"reminderIntervalDays"`
	ReminderHour         *int       `json:"reminderHour"`
	ReminderMinute       *int       `json:"reminderMinute"`
	LastReminderAt       *time.Time `json:"lastReminderAt,omitempty"`

	CreatedBy string    `gorm:"type:varchar(64);not null" json:"createdBy"`
	CreatedAt time.Time `gorm:"not null;index" json:"createdAt"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// ReminderConfig returns the scheduling fields as a value.
func (i Invoice) ReminderConfig() ReminderConfig {
	return ReminderConfig{
		Enabled:      i.ReminderEnabled,
		IntervalDays: i.ReminderIntervalDays,
		Hour:         i.ReminderHour,
		Minute:       i.ReminderMinute,
	}
}

type ReminderConfig struct {
	Enabled      bool `json:"enabled"`
	IntervalDays int  `json:"intervalDays"`
	Hour         *int `json:"hour"`
	Minute       *int `json:"minute"`
}
