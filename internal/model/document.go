package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// DocumentKind is the extraction path that produced a document.
type DocumentKind string

const (
	DocumentKindReceipt       DocumentKind = "receipt"
	DocumentKindBankStatement DocumentKind = "bank_statement"
)

// Document is the persisted record of one extracted file.
// Duplicates are kept for audit with IsExcludedFromTotals set.
type Document struct {
	CreatedAt            time.Time
	Date                 time.Time
	Amount               decimal.Decimal
	ID                   string
	UserID               string
	BatchItemID          string
	Kind                 DocumentKind
	FileName             string
	FileURL              string
	ContentHash          string
	MerchantName         string
	Currency             string
	Confidence           float64
	IsExcludedFromTotals bool
}

// HasFingerprint reports whether the document carries a merchant/date/amount triple.
func (d *Document) HasFingerprint() bool {
	return d.MerchantName != "" && !d.Date.IsZero() && !d.Amount.IsZero()
}
