package domain

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// InvoiceNumber is the counter backing invoice numbers.
const InvoiceNumber = "invoiceNumber"

// Sequence is a named monotonic counter.
type Sequence struct {
	Name      string    `gorm:"primaryKey;type:varchar(64)"`
	Value     int64     `gorm:"not null;default:0"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (Sequence) TableName() string { return "invoice_sequences" }

// Generator hands out strictly increasing values per sequence name.
type Generator interface {
	Next(ctx context.Context, name string) (int64, error)
	// NextTx allocates within the caller's transaction so the value is
	// rolled back together with whatever it numbers.
	NextTx(ctx context.Context, tx *gorm.DB, name string) (int64, error)
}

type Repository interface {
	Increment(ctx context.Context, db *gorm.DB, name string, now time.Time) (int64, error)
	Current(ctx context.Context, db *gorm.DB, name string) (int64, error)
}

var (
	ErrInvalidName = errors.New("invalid_sequence_name")
)
