package domain

import "errors"

var (
	ErrNotFound    = errors.New("invoice_not_found")
	ErrForbidden   = errors.New("forbidden")
	ErrAlreadyPaid = errors.New("invoice_already_paid")
	ErrRateLimited = errors.New("rate_limited")

	ErrInvalidIssuerName  = errors.New("invalid_issuer_name")
	ErrInvalidClientName  = errors.New("invalid_client_name")
	ErrInvalidClientEmail = errors.New("invalid_client_email")
	ErrInvalidItems       = errors.New("invalid_items")
	ErrInvalidQuantity    = errors.New("invalid_quantity")
	ErrInvalidUnitPrice   = errors.New("invalid_unit_price")
	ErrInvalidCurrency    = errors.New("invalid_currency")
	ErrInvalidStatus      = errors.New("invalid_status")
	ErrInvalidPageToken   = errors.New("invalid_page_token")
)

// ValidationError ties a rejected input to the field it came from.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Err.Error()
	}
	return e.Field + ": " + e.Err.Error()
}

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}

// IsValidation reports whether err is an input validation failure.
func IsValidation(err error) bool {
	var vErr *ValidationError
	return errors.As(err, &vErr)
}
