package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Nikjeremic/uptiomio/internal/invoice/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, inv *domain.Invoice) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO invoices (
			id, invoice_number, invoice_number_str,
			issuer_name, issuer_company, issuer_address, issuer_country, issuer_phone,
			issuer_logo_url, issuer_signature_url, issuer_swift_code, issuer_iban, issuer_card_number,
			client_name, client_email, client_company, client_address, client_country, client_phone,
			items, amount, currency, description, notes, due_date,
			is_paid, paid_at, payment_method,
			reminder_enabled, reminder_interval_days, reminder_hour, reminder_minute, last_reminder_at,
			created_by, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.ID, inv.InvoiceNumber, inv.InvoiceNumberStr,
		inv.Issuer.Name, inv.Issuer.Company, inv.Issuer.Address, inv.Issuer.Country, inv.Issuer.Phone,
		inv.Issuer.LogoURL, inv.Issuer.SignatureURL, inv.Issuer.SwiftCode, inv.Issuer.IBAN, inv.Issuer.CardNumber,
		inv.Client.Name, inv.Client.Email, inv.Client.Company, inv.Client.Address, inv.Client.Country, inv.Client.Phone,
		inv.Items, inv.Amount, inv.Currency, inv.Description, inv.Notes, inv.DueDate,
		inv.IsPaid, inv.PaidAt, inv.PaymentMethod,
		inv.ReminderEnabled, inv.ReminderIntervalDays, inv.ReminderHour, inv.ReminderMinute, inv.LastReminderAt,
		inv.CreatedBy, inv.CreatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Invoice, error) {
	var inv domain.Invoice
	err := db.WithContext(ctx).Raw(`SELECT * FROM invoices WHERE id = ?`, id).Scan(&inv).Error
	if err != nil {
		return nil, err
	}
	if inv.ID == 0 {
		return nil, nil
	}
	return &inv, nil
}

// List orders newest first and pages by (created_at, id) keyset.
func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]domain.Invoice, error) {
	stmt := db.WithContext(ctx).Model(&domain.Invoice{})

	switch filter.Status {
	case domain.StatusPaid:
		stmt = stmt.Where("is_paid = ?", true)
	case domain.StatusUnpaid:
		stmt = stmt.Where("is_paid = ?", false)
	}
	if filter.ClientEmail != "" {
		stmt = stmt.Where("client_email = ?", filter.ClientEmail)
	}
	if search := strings.ToLower(strings.TrimSpace(filter.Search)); search != "" {
		pattern := "%" + escapeLike(search) + "%"
		stmt = stmt.Where(
			`LOWER(invoice_number_str) LIKE ? ESCAPE '!' OR LOWER(client_name) LIKE ? ESCAPE '!' OR LOWER(client_email) LIKE ? ESCAPE '!'`,
			pattern, pattern, pattern,
		)
	}
	if filter.Cursor != nil {
		cursorID, err := snowflake.ParseString(filter.Cursor.ID)
		if err != nil {
			return nil, domain.ErrInvalidPageToken
		}
		createdAt := filter.Cursor.CreatedAt.UTC()
		stmt = stmt.Where("(created_at < ?) OR (created_at = ? AND id < ?)", createdAt, createdAt, cursorID)
	}
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit)
	}

	var invoices []domain.Invoice
	if err := stmt.Order("created_at desc, id desc").Find(&invoices).Error; err != nil {
		return nil, err
	}
	return invoices, nil
}

func (r *repo) ListReminderCandidates(ctx context.Context, db *gorm.DB) ([]domain.Invoice, error) {
	var invoices []domain.Invoice
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM invoices
		 WHERE is_paid = ? AND reminder_enabled = ?
		 ORDER BY created_at ASC, id ASC`,
		false, true,
	).Scan(&invoices).Error
	if err != nil {
		return nil, err
	}
	return invoices, nil
}

func (r *repo) ListUnpaidCreatedSince(ctx context.Context, db *gorm.DB, since time.Time) ([]domain.Invoice, error) {
	var invoices []domain.Invoice
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM invoices
		 WHERE is_paid = ? AND created_at >= ?
		 ORDER BY created_at ASC, id ASC`,
		false, since.UTC(),
	).Scan(&invoices).Error
	if err != nil {
		return nil, err
	}
	return invoices, nil
}

func (r *repo) MarkPaid(ctx context.Context, db *gorm.DB, id snowflake.ID, paidAt time.Time, method *domain.PaymentMethod) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE invoices SET is_paid = ?, paid_at = ?, payment_method = ?
		 WHERE id = ? AND is_paid = ?`,
		true, paidAt.UTC(), method, id, false,
	)
	if result.Error != nil {
		return false, fmt.Errorf("mark invoice %s paid: %w", id, result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) UpdateReminderConfig(ctx context.Context, db *gorm.DB, id snowflake.ID, cfg domain.ReminderConfig) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE invoices
		 SET reminder_enabled = ?, reminder_interval_days = ?, reminder_hour = ?, reminder_minute = ?
		 WHERE id = ?`,
		cfg.Enabled, cfg.IntervalDays, cfg.Hour, cfg.Minute, id,
	)
	if result.Error != nil {
		return false, fmt.Errorf("update reminder config %s: %w", id, result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) TouchLastReminder(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (bool, error) {
	at = at.UTC()
	result := db.WithContext(ctx).Exec(
		`UPDATE invoices SET last_reminder_at = ?
		 WHERE id = ? AND (last_reminder_at IS NULL OR last_reminder_at < ?)`,
		at, id, at,
	)
	if result.Error != nil {
		return false, fmt.Errorf("stamp last reminder %s: %w", id, result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error) {
	result := db.WithContext(ctx).Exec(`DELETE FROM invoices WHERE id = ?`, id)
	if result.Error != nil {
		return false, fmt.Errorf("delete invoice %s: %w", id, result.Error)
	}
	return result.RowsAffected == 1, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`!`, `!!`, `%`, `!%`, `_`, `!_`).Replace(s)
}
