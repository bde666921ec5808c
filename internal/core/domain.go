package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type (
	// Account is the bank account a transaction was booked on.
	Account struct {
		Name        string
		AccountType string
		Institution string
	}

	// Transaction is an expense record as returned by the backend.
	// Records are treated as immutable once decoded.
	Transaction struct {
		ID           string
		Amount       decimal.Decimal
		Description  string
		MerchantName *string // nil when the provider did not report one
		Timestamp    time.Time
		Category     string
		Account      Account
	}
)

var (
	ErrEmptyID        = errors.New("empty transaction id")
	ErrNegativeAmount = errors.New("negative amount")
	ErrEmptyCategory  = errors.New("empty category")
)

// DisplayName returns the merchant name, falling back to the description.
func (t Transaction) DisplayName() string {
	if t.MerchantName != nil && strings.TrimSpace(*t.MerchantName) != "" {
		return *t.MerchantName
	}
	return t.Description
}

// IsDateOnly reports whether the timestamp carries no time of day,
// which is how the backend encodes date-only postings.
func (t Transaction) IsDateOnly() bool {
	u := t.Timestamp.UTC()
	return u.Hour() == 0 && u.Minute() == 0 && u.Second() == 0 && u.Nanosecond() == 0
}

func (t Transaction) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return ErrEmptyID
	}
	if t.Amount.IsNegative() {
		return ErrNegativeAmount
	}
	if strings.TrimSpace(t.Category) == "" {
		return ErrEmptyCategory
	}
	return nil
}

// WithCategory returns a copy of t re-tagged with category.
func (t Transaction) WithCategory(category string) Transaction {
	t.Category = category
	return t
}

// StringPtr is a small helper for optional string fields.
func StringPtr(s string) *string { return &s }
