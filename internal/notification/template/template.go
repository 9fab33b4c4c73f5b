// Package template renders notification emails from embedded HTML templates.
package template

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"time"

	"github.com/Nikjeremic/uptiomio/internal/invoice/format"
	"github.com/Nikjeremic/uptiomio/internal/notification/domain"
)

//go:embed templates/*.html
var templateFS embed.FS

// Branding is applied to every message.
type Branding struct {
	LogoURL      string
	SignatureURL string
}

type layoutView struct {
	Title        string
	Intro        template.HTML
	ActionURL    string
	ActionLabel  string
	Footer       string
	LogoURL      string
	SignatureURL string
}

type kindSpec struct {
	title       string
	actionLabel string
	footer      string
	subject     func(domain.Data) string
}

var kinds = map[domain.Kind]kindSpec{
	domain.KindInvoiceCreated: {
		title:       "New Invoice Available",
		actionLabel: "View invoice",
		footer:      "Thank you for your cooperation with Uptimio agency.",
		subject: func(d domain.Data) string {
			return fmt.Sprintf("Uptimio Payment Services - New Invoice %s", d.InvoiceNumber)
		},
	},
	domain.KindInvoiceReminder: {
		title:       "Payment reminder",
		actionLabel: "View invoice",
		footer:      "If you have already paid, please ignore this message.",
		subject: func(d domain.Data) string {
			return fmt.Sprintf("Uptimio Payment Services - Payment Reminder %s", d.InvoiceNumber)
		},
	},
	domain.KindOverdueDigest: {
		title:       "Urgent: Multiple Unpaid Invoices",
		actionLabel: "View my invoices",
		footer:      "This is an automated reminder. You will receive daily reminders until all invoices are paid.",
		subject: func(d domain.Data) string {
			return fmt.Sprintf("Uptimio Payment Services - %d Unpaid Invoices Require Immediate Attention", d.InvoiceCount)
		},
	},
	domain.KindAdminOverdueSent: {
		title:  "Daily Overdue Reminder Sent",
		footer: "This is an automated notification from Uptimio Admin System.",
		subject: func(d domain.Data) string {
			return fmt.Sprintf("Daily Overdue Reminder Sent - %s", d.ClientName)
		},
	},
	domain.KindAdminReminderSent: {
		title:  "Payment Reminder Sent",
		footer: "This is an automated notification from Uptimio Admin System.",
		subject: func(d domain.Data) string {
			return fmt.Sprintf("Payment Reminder Sent - %s", d.InvoiceNumber)
		},
	},
	domain.KindTest: {
		title:  "Test email",
		footer: "No action is required.",
		subject: func(domain.Data) string {
			return "Uptiomio test email"
		},
	},
}

type Renderer struct {
	tmpl     *template.Template
	branding Branding
}

func NewRenderer(branding Branding) (*Renderer, error) {
	tmpl, err := template.New("notification").Funcs(template.FuncMap{
		"money": format.Money,
		"date": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("Jan 2, 2006")
		},
		"datetime": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("Jan 2, 2006 15:04 MST")
		},
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse notification templates: %w", err)
	}
	return &Renderer{tmpl: tmpl, branding: branding}, nil
}

// Render returns the subject and HTML body for kind.
func (r *Renderer) Render(kind domain.Kind, data domain.Data) (string, string, error) {
	spec, ok := kinds[kind]
	if !ok {
		return "", "", domain.ErrUnknownKind
	}

	var intro bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&intro, "intro:"+string(kind), data); err != nil {
		return "", "", fmt.Errorf("render %s intro: %w", kind, err)
	}

	view := layoutView{
		Title:        spec.title,
		Intro:        template.HTML(intro.String()),
		Footer:       spec.footer,
		LogoURL:      r.branding.LogoURL,
		SignatureURL: r.branding.SignatureURL,
	}
	if spec.actionLabel != "" && data.Link != "" {
		view.ActionURL = data.Link
		view.ActionLabel = spec.actionLabel
	}

	var body bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&body, "layout", view); err != nil {
		return "", "", fmt.Errorf("render %s layout: %w", kind, err)
	}
	return spec.subject(data), body.String(), nil
}
