package extract

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/aclindsa/ofxgo"
	"github.com/shopspring/decimal"

	"github.com/mcp-open-lab/zenny-books-sub002/internal/common"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/model"
)

var (
	severityRegex = regexp.MustCompile(`(?i)<SEVERITY>(Info|Warn|Error)</SEVERITY>`)
	// Opening tags at end of line that lost their closing bracket.
	tagFixRegex = regexp.MustCompile(`(?m)^(\s*<[A-Z][A-Z0-9._]*[A-Z0-9])$`)
)

// OFXExtractor reads OFX and QFX bank and credit card statements.
type OFXExtractor struct {
	logger *slog.Logger
}

// NewOFXExtractor creates an OFX extractor.
func NewOFXExtractor(logger *slog.Logger) *OFXExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &OFXExtractor{logger: logger.With("component", "ofx_extractor")}
}

// Name identifies the extractor.
func (e *OFXExtractor) Name() string {
	return "ofx"
}

// preprocessOFX fixes common formatting issues in bank-exported files.
func preprocessOFX(content string) string {
	content = strings.TrimLeft(content, " \t\r\n")
	content = severityRegex.ReplaceAllStringFunc(content, strings.ToUpper)
	return tagFixRegex.ReplaceAllString(content, "$1>")
}

// Extract parses every bank and credit card statement in the file.
func (e *OFXExtractor) Extract(ctx context.Context, file File, hints Hints) (*Extraction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	content := preprocessOFX(string(file.Data))
	resp, err := ofxgo.ParseResponse(bytes.NewReader([]byte(content)))
	if err != nil {
		return nil, common.NewProviderError(e.Name(), fmt.Errorf("parse %s: %w", file.Name, err))
	}

	out := &Extraction{
		Kind:       model.DocumentKindBankStatement,
		Confidence: 1.0,
	}
	var bankStmts, ccStmts, outOfRange int

	for _, msg := range resp.Bank {
		stmt, ok := msg.(*ofxgo.StatementResponse)
		if !ok || stmt.BankTranList == nil {
			continue
		}
		bankStmts++
		setCurrency(out, stmt.CurDef)
		for _, tx := range stmt.BankTranList.Transactions {
			line, err := convertOFXTransaction(tx, string(stmt.BankAcctFrom.AcctID))
			if err != nil {
				e.logger.Warn("skipping unreadable OFX transaction", "fitid", string(tx.FiTID), "error", err)
				continue
			}
			if !hints.InRange(line.Date) {
				outOfRange++
				continue
			}
			out.Lines = append(out.Lines, line)
		}
	}

	for _, msg := range resp.CreditCard {
		stmt, ok := msg.(*ofxgo.CCStatementResponse)
		if !ok || stmt.BankTranList == nil {
			continue
		}
		ccStmts++
		setCurrency(out, stmt.CurDef)
		for _, tx := range stmt.BankTranList.Transactions {
			line, err := convertOFXTransaction(tx, string(stmt.CCAcctFrom.AcctID))
			if err != nil {
				e.logger.Warn("skipping unreadable OFX transaction", "fitid", string(tx.FiTID), "error", err)
				continue
			}
			if !hints.InRange(line.Date) {
				outOfRange++
				continue
			}
			out.Lines = append(out.Lines, line)
		}
	}

	if bankStmts+ccStmts == 0 {
		return nil, common.NewProviderError(e.Name(), fmt.Errorf("%s contains no statements", file.Name))
	}
	if out.Currency == "" {
		out.Currency = hints.Currency
	}

	e.logger.Info("parsed OFX file",
		"file", file.Name,
		"transactions", len(out.Lines),
		"bank_statements", bankStmts,
		"cc_statements", ccStmts,
		"out_of_range", outOfRange)
	return out, nil
}

func setCurrency(out *Extraction, cur ofxgo.CurrSymbol) {
	if out.Currency != "" {
		return
	}
	if code := cur.String(); code != "" && code != "XXX" {
		out.Currency = code
	}
}

// convertOFXTransaction maps a signed OFX amount to a direction and a
// non-negative amount.
func convertOFXTransaction(tx ofxgo.Transaction, accountID string) (Line, error) {
	amount, err := decimal.NewFromString(tx.TrnAmt.Rat.FloatString(4))
	if err != nil {
		return Line{}, fmt.Errorf("amount: %w", err)
	}

	txType := model.TransactionTypeIncome
	if amount.IsNegative() {
		txType = model.TransactionTypeExpense
	}

	return Line{
		ExternalID:   string(tx.FiTID),
		AccountID:    accountID,
		Date:         tx.DtPosted.Time,
		Amount:       amount.Abs(),
		MerchantName: merchantName(tx),
		Description:  strings.TrimSpace(string(tx.Memo)),
		Type:         txType,
	}, nil
}

var merchantPrefixes = []string{
	"POS PURCHASE ",
	"PURCHASE AUTHORIZED ON ",
	"DEBIT CARD PURCHASE ",
	"ACH DEBIT ",
	"CHECK CARD ",
	"VISA PURCHASE ",
	"MC PURCHASE ",
	"DEBIT PURCHASE ",
}

// merchantName prefers PAYEE, then NAME, then MEMO when NAME is generic,
// and strips card-network noise.
func merchantName(tx ofxgo.Transaction) string {
	if tx.Payee != nil && tx.Payee.Name != "" {
		return strings.TrimSpace(string(tx.Payee.Name))
	}

	name := string(tx.Name)
	if tx.Memo != "" && isGenericDescription(name) {
		name = string(tx.Memo)
	}
	name = strings.TrimSpace(name)

	upper := strings.ToUpper(name)
	for _, prefix := range merchantPrefixes {
		if strings.HasPrefix(upper, prefix) {
			name = name[len(prefix):]
			break
		}
	}

	// "MM/DD " date stamps.
	if len(name) > 5 && name[2] == '/' && name[5] == ' ' {
		name = strings.TrimSpace(name[6:])
	}
	return name
}

func isGenericDescription(name string) bool {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBIT", "CREDIT", "PURCHASE", "PAYMENT", "POS TRANSACTION", "CARD PURCHASE":
		return true
	}
	return false
}
