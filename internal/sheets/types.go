package sheets

import (
	"context"

	"github.com/mcp-open-lab/zenny-books-sub002/internal/ledger"
)

// ReportWriter publishes a ledger report.
type ReportWriter interface {
	Write(ctx context.Context, report *ledger.Report) error
}

// transactionHeader names the columns of the transaction detail section.
var transactionHeader = []any{
	"Date",
	"Merchant",
	"Description",
	"Type",
	"Amount",
	"Currency",
	"Category",
	"Business",
	"Source",
	"Counted",
}

// currencyColumn is the zero-based index of the amount column.
const currencyColumn = 4
