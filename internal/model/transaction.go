package model

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionSource records where a transaction entered the system.
type TransactionSource string

const (
	SourceReceipt       TransactionSource = "receipt"
	SourceBankStatement TransactionSource = "bank_statement"
	SourceBankLink      TransactionSource = "bank_link"
	SourceManual        TransactionSource = "manual"
)

// Transaction is a single categorized money movement.
// Amount is always non-negative; Type carries the direction.
type Transaction struct {
	Date         time.Time
	CreatedAt    time.Time
	Amount       decimal.Decimal
	ID           string
	UserID       string
	DocumentID   string
	AccountID    string
	Source       TransactionSource
	MerchantName string
	Description  string
	Currency     string
	Type         TransactionType
	CategoryID   string
	BusinessID   string
	Hash         string
}

// GenerateHash creates a fingerprint used to skip re-imported transactions.
func (t *Transaction) GenerateHash() string {
	data := fmt.Sprintf("%s:%s:%s:%s:%s",
		t.Date.Format("2006-01-02"),
		t.Amount.StringFixed(2),
		strings.ToLower(strings.TrimSpace(t.MerchantName)),
		t.AccountID,
		t.Type)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}

// Input returns the fields the categorization strategies look at.
func (t *Transaction) Input() TransactionInput {
	return TransactionInput{
		MerchantName: t.MerchantName,
		Description:  t.Description,
		Amount:       t.Amount,
		Date:         t.Date,
		Type:         t.Type,
	}
}

// TransactionInput is the categorization view of a transaction.
type TransactionInput struct {
	Date         time.Time
	Amount       decimal.Decimal
	MerchantName string
	Description  string
	Type         TransactionType
}

// Field returns the value a rule on f inspects.
func (in TransactionInput) Field(f RuleField) string {
	switch f {
	case RuleFieldDescription:
		return in.Description
	default:
		return in.MerchantName
	}
}
