// Package extract turns uploaded files into structured receipts and
// statement lines.
package extract

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mcp-open-lab/zenny-books-sub002/internal/llm"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/model"
)

// ErrUnsupportedFormat is returned when no extractor handles a file.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// File is a fetched upload.
type File struct {
	Name   string
	Format string
	Data   []byte
}

// Hints are the batch defaults an extractor may use.
type Hints struct {
	DateFrom      *time.Time
	DateTo        *time.Time
	ImportType    model.ImportType
	StatementType string
	Currency      string
}

// InRange reports whether date falls inside the hinted window.
func (h Hints) InRange(date time.Time) bool {
	if h.DateFrom != nil && date.Before(*h.DateFrom) {
		return false
	}
	if h.DateTo != nil && date.After(*h.DateTo) {
		return false
	}
	return true
}

// Line is one transaction read from a statement. Amount is non-negative.
type Line struct {
	Date         time.Time
	Amount       decimal.Decimal
	ExternalID   string
	AccountID    string
	MerchantName string
	Description  string
	Type         model.TransactionType
}

// Extraction is what an extractor read from one file. Receipts fill the
// top-level fields; statements fill Lines and leave Amount zero.
type Extraction struct {
	Date         time.Time
	Amount       decimal.Decimal
	Kind         model.DocumentKind
	MerchantName string
	Description  string
	Currency     string
	Type         model.TransactionType
	Lines        []Line
	Confidence   float64
}

// Extractor reads one file.
type Extractor interface {
	Name() string
	Extract(ctx context.Context, file File, hints Hints) (*Extraction, error)
}

// Decoder asks a model and validates its answer before accepting it.
// *llm.Chain satisfies it.
type Decoder interface {
	Name() string
	Decode(ctx context.Context, req llm.Request, decode func(llm.Response) error) (llm.Response, error)
}
