package core

import (
	"bytes"
	"errors"
	"strings"
	"time"
)

const (
	Expense TransactionType = "expense"
	Income  TransactionType = "income"
)

const (
	// MinQualifyingTransactions is the smallest category history that can
	// produce anomalies.
	MinQualifyingTransactions = 5

	// InsufficientDataMessage is attached to category results that were not
	// analysed because of a short history.
	InsufficientDataMessage = "Not enough transactions to detect anomalies (minimum 5 required)"
)

const (
	MethodIsolationForest   Method = "isolation_forest"
	MethodStatisticalWindow Method = "statistical_window"
)

type (
	TransactionType string

	// Method names the detector that produced a category result.
	Method string

	// Amount is the raw amount as stored by the document store. It may hold
	// anything, including malformed text; Value coerces it.
	Amount string

	Transaction struct {
		ID           string          `json:"id"`
		UserID       string          `json:"userId"`
		CategoryID   string          `json:"categoryId"`
		CategoryName string          `json:"categoryName,omitempty"`
		Type         TransactionType `json:"type"`
		Amount       Amount          `json:"amount"`
		Date         string          `json:"date"`
		Description  string          `json:"description,omitempty"`
	}

	Anomaly struct {
		Transaction
		CategoryName string  `json:"categoryName"`
		Score        float64 `json:"anomalyScore"`
		Reason       string  `json:"reason"`
	}

	CategoryResult struct {
		CategoryID string    `json:"categoryId"`
		Anomalies  []Anomaly `json:"anomalies"`
		Method     Method    `json:"method,omitempty"`
		Message    string    `json:"message,omitempty"`
	}

	// CheckResult is the outcome of checking a single transaction against
	// its category history.
	CheckResult struct {
		Transaction
		IsAnomaly bool    `json:"isAnomaly"`
		Score     float64 `json:"anomalyScore,omitempty"`
		Reason    string  `json:"reason,omitempty"`
	}
)

var (
	ErrEmptyUser     = errors.New("empty user id")
	ErrEmptyCategory = errors.New("empty category id")
	ErrEmptyID       = errors.New("empty transaction id")
)

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Value returns the coerced amount, 0 when the raw value is not a number.
func (a Amount) Value() float64 {
	v, err := ParseAmount(string(a))
	if err != nil {
		return 0
	}
	return v
}

// UnmarshalJSON accepts both JSON numbers and strings.
func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*a = ""
		return nil
	}
	*a = Amount(strings.Trim(string(data), `"`))
	return nil
}

// IsExpense reports whether the transaction takes part in detection.
func (t Transaction) IsExpense() bool {
	return t.Type == Expense
}

// AmountValue returns the coerced amount.
func (t Transaction) AmountValue() float64 {
	return t.Amount.Value()
}

// Time parses the transaction date. ok is false for malformed dates.
func (t Transaction) Time() (time.Time, bool) {
	return ParseDate(t.Date)
}

// SortTime is the time used for chronological ordering; malformed dates
// sort first.
func (t Transaction) SortTime() time.Time {
	ts, _ := t.Time()
	return ts
}

func (t Transaction) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return ErrEmptyID
	}
	if strings.TrimSpace(t.UserID) == "" {
		return ErrEmptyUser
	}
	if strings.TrimSpace(t.CategoryID) == "" {
		return ErrEmptyCategory
	}
	return nil
}

// ParseDate accepts RFC 3339 timestamps and plain dates.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// ResolveCategoryName returns the first display name carried by the
// transactions, or the category id with its first letter upper-cased.
func ResolveCategoryName(categoryID string, txs []Transaction) string {
	for _, tx := range txs {
		if tx.CategoryName != "" {
			return tx.CategoryName
		}
	}
	if categoryID == "" {
		return categoryID
	}
	return strings.ToUpper(categoryID[:1]) + categoryID[1:]
}
