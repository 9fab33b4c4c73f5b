package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Nikjeremic/uptiomio/internal/sequence/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// Increment bumps the named counter in a single statement and returns the new value.
func (r *repo) Increment(ctx context.Context, db *gorm.DB, name string, now time.Time) (int64, error) {
	if db.Dialector.Name() == "mysql" {
		return r.incrementMySQL(ctx, db, name, now)
	}

	var value int64
	err := db.WithContext(ctx).Raw(
		`INSERT INTO invoice_sequences (name, value, updated_at)
		 VALUES (?, 1, ?)
		 ON CONFLICT (name) DO UPDATE
		 SET value = invoice_sequences.value + 1,
		     updated_at = excluded.updated_at
		 RETURNING value`,
		name, now,
	).Scan(&value).Error
	if err != nil {
		return 0, fmt.Errorf("increment sequence %s: %w", name, err)
	}
	return value, nil
}

// MySQL has no RETURNING; LAST_INSERT_ID(expr) carries the new value back on
// the same connection, so both statements share one transaction.
func (r *repo) incrementMySQL(ctx context.Context, db *gorm.DB, name string, now time.Time) (int64, error) {
	var value int64
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(
			`INSERT INTO invoice_sequences (name, value, updated_at)
			 VALUES (?, LAST_INSERT_ID(1), ?)
			 ON DUPLICATE KEY UPDATE value = LAST_INSERT_ID(value + 1), updated_at = VALUES(updated_at)`,
			name, now,
		).Error; err != nil {
			return err
		}
		return tx.Raw(`SELECT LAST_INSERT_ID()`).Scan(&value).Error
	})
	if err != nil {
		return 0, fmt.Errorf("increment sequence %s: %w", name, err)
	}
	return value, nil
}

func (r *repo) Current(ctx context.Context, db *gorm.DB, name string) (int64, error) {
	var value int64
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(MAX(value), 0) FROM invoice_sequences WHERE name = ?`,
		name,
	).Scan(&value).Error
	if err != nil {
		return 0, fmt.Errorf("read sequence %s: %w", name, err)
	}
	return value, nil
}
