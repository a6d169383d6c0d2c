package extract

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mcp-open-lab/zenny-books-sub002/internal/model"
)

const dateLayout = "2006-01-02"

const statementSystemPrompt = `You convert bank and credit card statements into JSON.
Return only JSON, with no prose and no markdown.`

const receiptSystemPrompt = `You read receipts and invoices and return their key fields as JSON.
Return only JSON, with no prose and no markdown.`

func statementPrompt(hints Hints) string {
	var sb strings.Builder
	sb.WriteString("List every transaction on this statement.\n")
	if hints.StatementType != "" {
		fmt.Fprintf(&sb, "The statement is a %s statement.\n", strings.ReplaceAll(hints.StatementType, "_", " "))
	}
	if hints.Currency != "" {
		fmt.Fprintf(&sb, "Amounts are in %s unless the statement says otherwise.\n", hints.Currency)
	}
	sb.WriteString(`Use a negative amount for money leaving the account (purchases, fees, withdrawals)
and a positive amount for money coming in (deposits, refunds, payments received).
Skip running balances, subtotals and opening or closing balance rows.

Respond with:
{
  "currency": "ISO 4217 code or empty",
  "confidence": 0.0-1.0,
  "transactions": [
    {"date": "YYYY-MM-DD", "merchantName": "clean merchant name", "description": "original line text", "amount": -12.34}
  ]
}`)
	return sb.String()
}

func receiptPrompt(hints Hints) string {
	var sb strings.Builder
	sb.WriteString("Read this receipt.\n")
	if hints.Currency != "" {
		fmt.Fprintf(&sb, "Assume %s when no currency is printed.\n", hints.Currency)
	}
	sb.WriteString(`The total is the final amount paid, including tax and tip.
Set isIncome to true only for invoices the user issued or payments the user received.

Respond with:
{
  "merchantName": "store or vendor name",
  "date": "YYYY-MM-DD",
  "total": 12.34,
  "currency": "ISO 4217 code or empty",
  "description": "short summary of what was bought",
  "isIncome": false,
  "confidence": 0.0-1.0
}`)
	return sb.String()
}

type statementLine struct {
	Date         string          `json:"date"`
	MerchantName string          `json:"merchantName"`
	Description  string          `json:"description"`
	Amount       decimal.Decimal `json:"amount"`
}

type statementAnswer struct {
	Currency     string          `json:"currency"`
	Transactions []statementLine `json:"transactions"`
	Confidence   *float64        `json:"confidence"`
}

// lines validates the answer and keeps the lines inside the hinted window.
func (a statementAnswer) lines(hints Hints) ([]Line, error) {
	if a.Confidence != nil && (*a.Confidence < 0 || *a.Confidence > 1) {
		return nil, fmt.Errorf("confidence %v out of range", *a.Confidence)
	}

	out := make([]Line, 0, len(a.Transactions))
	for i, t := range a.Transactions {
		date, err := time.Parse(dateLayout, strings.TrimSpace(t.Date))
		if err != nil {
			return nil, fmt.Errorf("transaction %d: date %q: %w", i, t.Date, err)
		}
		merchant := strings.TrimSpace(t.MerchantName)
		if merchant == "" {
			merchant = strings.TrimSpace(t.Description)
		}
		if merchant == "" {
			return nil, fmt.Errorf("transaction %d: no merchant or description", i)
		}
		if t.Amount.IsZero() {
			continue
		}
		if !hints.InRange(date) {
			continue
		}

		txType := model.TransactionTypeIncome
		if t.Amount.IsNegative() {
			txType = model.TransactionTypeExpense
		}
		out = append(out, Line{
			Date:         date,
			Amount:       t.Amount.Abs(),
			MerchantName: merchant,
			Description:  strings.TrimSpace(t.Description),
			Type:         txType,
		})
	}
	return out, nil
}

func (a statementAnswer) confidence() float64 {
	if a.Confidence == nil {
		return 0.8
	}
	return *a.Confidence
}

type receiptAnswer struct {
	MerchantName string          `json:"merchantName"`
	Date         string          `json:"date"`
	Currency     string          `json:"currency"`
	Description  string          `json:"description"`
	Total        decimal.Decimal `json:"total"`
	Confidence   float64         `json:"confidence"`
	IsIncome     bool            `json:"isIncome"`
}

var errNoMerchant = errors.New("receipt has no merchant name")

func (a receiptAnswer) extraction(hints Hints) (*Extraction, error) {
	merchant := strings.TrimSpace(a.MerchantName)
	if merchant == "" {
		return nil, errNoMerchant
	}
	date, err := time.Parse(dateLayout, strings.TrimSpace(a.Date))
	if err != nil {
		return nil, fmt.Errorf("date %q: %w", a.Date, err)
	}
	if a.Total.IsNegative() {
		return nil, fmt.Errorf("negative total %s", a.Total)
	}
	if a.Confidence < 0 || a.Confidence > 1 {
		return nil, fmt.Errorf("confidence %v out of range", a.Confidence)
	}

	txType := model.TransactionTypeExpense
	if a.IsIncome {
		txType = model.TransactionTypeIncome
	}
	currency := strings.ToUpper(strings.TrimSpace(a.Currency))
	if currency == "" {
		currency = hints.Currency
	}

	return &Extraction{
		Kind:         model.DocumentKindReceipt,
		MerchantName: merchant,
		Date:         date,
		Amount:       a.Total,
		Currency:     currency,
		Description:  strings.TrimSpace(a.Description),
		Type:         txType,
		Confidence:   a.Confidence,
	}, nil
}
