package sheets

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/mcp-open-lab/zenny-books-sub002/internal/common"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/ledger"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/service"
)

const ledgerSheetTitle = "Ledger"

// Writer publishes ledger reports to a Google spreadsheet.
type Writer struct {
	service *sheets.Service
	logger  *slog.Logger
	config  Config
}

// sheetData is a report laid out as rows, with the positions formatting
// needs to know about.
type sheetData struct {
	rows [][]any
	// sections holds the row indexes of section titles.
	sections []int
	// detailHeader is the row index of the transaction column header.
	detailHeader int
}

// NewWriter creates a Writer authenticated with either a service account or
// an OAuth2 refresh token.
func NewWriter(ctx context.Context, config Config, logger *slog.Logger) (*Writer, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	ts, err := tokenSource(ctx, config)
	if err != nil {
		return nil, err
	}
	srv, err := sheets.NewService(ctx, option.WithHTTPClient(oauth2.NewClient(ctx, ts)))
	if err != nil {
		return nil, fmt.Errorf("unable to create sheets service: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		config:  config,
		service: srv,
		logger:  logger.With("component", "sheets"),
	}, nil
}

func tokenSource(ctx context.Context, config Config) (oauth2.TokenSource, error) {
	if config.ServiceAccountPath != "" {
		key, err := os.ReadFile(config.ServiceAccountPath)
		if err != nil {
			return nil, fmt.Errorf("unable to read service account key file: %w", err)
		}
		jwtConfig, err := google.JWTConfigFromJSON(key, sheets.SpreadsheetsScope)
		if err != nil {
			return nil, fmt.Errorf("unable to parse service account key: %w", err)
		}
		return jwtConfig.TokenSource(ctx), nil
	}

	oauthConfig := &oauth2.Config{
		ClientID:     config.ClientID,
		ClientSecret: config.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{sheets.SpreadsheetsScope},
	}
	return oauthConfig.TokenSource(ctx, &oauth2.Token{RefreshToken: config.RefreshToken, TokenType: "Bearer"}), nil
}

// Write replaces the ledger sheet with report.
func (w *Writer) Write(ctx context.Context, report *ledger.Report) error {
	if report == nil {
		return common.NewValidationError("report", "is required")
	}
	start := time.Now()
	w.logger.Info("Exporting ledger",
		"entries", len(report.Entries),
		"from", report.Start.Format("2006-01-02"),
		"to", report.End.Format("2006-01-02"))

	spreadsheetID, sheetID, err := w.spreadsheet(ctx)
	if err != nil {
		return err
	}
	data := buildSheet(report)

	retryOpts := service.RetryOptions{
		MaxAttempts:  w.config.RetryAttempts,
		InitialDelay: w.config.RetryDelay,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
	err = common.WithRetry(ctx, func() error {
		return w.replaceValues(ctx, spreadsheetID, data.rows)
	}, retryOpts)
	if err != nil {
		return fmt.Errorf("failed to write ledger: %w", err)
	}

	if w.config.EnableFormatting {
		err = common.WithRetry(ctx, func() error {
			_, err := w.service.Spreadsheets.BatchUpdate(spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
				Requests: w.formatRequests(sheetID, data),
			}).Context(ctx).Do()
			return err
		}, retryOpts)
		if err != nil {
			// Values are already written; an unformatted sheet is still usable.
			w.logger.Warn("Failed to format ledger sheet", "error", err)
		}
	}

	w.logger.Info("Ledger exported",
		"spreadsheet_id", spreadsheetID,
		"rows", len(data.rows),
		"duration_ms", time.Since(start).Milliseconds())
	return nil
}

// spreadsheet returns the configured spreadsheet, creating one when none is
// configured, along with the id of its ledger sheet.
func (w *Writer) spreadsheet(ctx context.Context) (string, int64, error) {
	if id := w.config.SpreadsheetID; id != "" {
		existing, err := w.service.Spreadsheets.Get(id).Context(ctx).Do()
		if err != nil {
			return "", 0, fmt.Errorf("unable to access spreadsheet %s: %w", id, err)
		}
		var sheetID int64
		if len(existing.Sheets) > 0 && existing.Sheets[0].Properties != nil {
			sheetID = existing.Sheets[0].Properties.SheetId
		}
		return id, sheetID, nil
	}

	created, err := w.service.Spreadsheets.Create(&sheets.Spreadsheet{
		Properties: &sheets.SpreadsheetProperties{
			Title:    w.config.SpreadsheetName,
			TimeZone: w.config.TimeZone,
		},
		Sheets: []*sheets.Sheet{{Properties: &sheets.SheetProperties{Title: ledgerSheetTitle}}},
	}).Context(ctx).Do()
	if err != nil {
		return "", 0, fmt.Errorf("unable to create spreadsheet: %w", err)
	}
	w.logger.Info("Created spreadsheet", "id", created.SpreadsheetId, "url", created.SpreadsheetUrl)

	var sheetID int64
	if len(created.Sheets) > 0 && created.Sheets[0].Properties != nil {
		sheetID = created.Sheets[0].Properties.SheetId
	}
	return created.SpreadsheetId, sheetID, nil
}

// replaceValues clears the sheet and writes rows in chunks of BatchSize.
func (w *Writer) replaceValues(ctx context.Context, spreadsheetID string, rows [][]any) error {
	if _, err := w.service.Spreadsheets.Values.Clear(spreadsheetID, "A:Z", &sheets.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to clear sheet: %w", err)
	}

	var ranges []*sheets.ValueRange
	for offset := 0; offset < len(rows); offset += w.config.BatchSize {
		end := min(offset+w.config.BatchSize, len(rows))
		ranges = append(ranges, &sheets.ValueRange{
			Range:  fmt.Sprintf("A%d", offset+1),
			Values: rows[offset:end],
		})
	}
	if len(ranges) == 0 {
		return nil
	}

	_, err := w.service.Spreadsheets.Values.BatchUpdate(spreadsheetID, &sheets.BatchUpdateValuesRequest{
		ValueInputOption: "USER_ENTERED",
		Data:             ranges,
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to write %d rows: %w", len(rows), err)
	}
	w.logger.Debug("Wrote ledger rows", "rows", len(rows), "chunks", len(ranges))
	return nil
}

// buildSheet lays the report out as rows: a title, the totals, the category
// and business breakdowns, then every transaction, newest first.
func buildSheet(report *ledger.Report) sheetData {
	totals := report.Totals
	var d sheetData
	section := func(title string, rows ...[]any) {
		d.rows = append(d.rows, []any{})
		d.sections = append(d.sections, len(d.rows))
		d.rows = append(d.rows, []any{title})
		d.rows = append(d.rows, rows...)
	}

	d.rows = append(d.rows, []any{
		"Ledger",
		fmt.Sprintf("%s - %s", report.Start.Format("Jan 2, 2006"), report.End.Format("Jan 2, 2006")),
	})
	section("Summary",
		[]any{"Income", totals.Income.StringFixed(2)},
		[]any{"Expenses", totals.Expenses.StringFixed(2)},
		[]any{"Net", totals.Net.StringFixed(2)},
		[]any{"Transactions", totals.Count},
		[]any{"Excluded from totals", totals.Excluded},
	)

	categories := [][]any{{"Category", "Type", "Count", "Amount"}}
	for _, c := range totals.ByCategory {
		categories = append(categories, []any{c.Name, string(c.Type), c.Count, c.Amount.StringFixed(2)})
	}
	section("Category Breakdown", categories...)

	businesses := [][]any{{"Business", "Count", "Income", "Expenses"}}
	for _, b := range totals.ByBusiness {
		businesses = append(businesses, []any{b.Name, b.Count, b.Income.StringFixed(2), b.Expenses.StringFixed(2)})
	}
	section("Business Breakdown", businesses...)

	section("Transaction Details", transactionHeader)
	d.detailHeader = len(d.rows) - 1

	entries := make([]ledger.Entry, len(report.Entries))
	copy(entries, report.Entries)
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Date.After(entries[j].Date)
	})
	for _, e := range entries {
		counted := "yes"
		if e.Excluded {
			counted = "no"
		}
		d.rows = append(d.rows, []any{
			e.Date.Format("2006-01-02"),
			e.MerchantName,
			e.Description,
			string(e.Type),
			e.Amount.StringFixed(2),
			e.Currency,
			e.CategoryName,
			e.BusinessName,
			string(e.Source),
			counted,
		})
	}
	return d
}

func (w *Writer) formatRequests(sheetID int64, d sheetData) []*sheets.Request {
	bold := func(startRow, endRow, columns int64, size int64) *sheets.Request {
		return &sheets.Request{RepeatCell: &sheets.RepeatCellRequest{
			Range: &sheets.GridRange{
				SheetId: sheetID, StartRowIndex: startRow, EndRowIndex: endRow,
				StartColumnIndex: 0, EndColumnIndex: columns,
			},
			Cell: &sheets.CellData{UserEnteredFormat: &sheets.CellFormat{
				TextFormat: &sheets.TextFormat{Bold: true, FontSize: size},
			}},
			Fields: "userEnteredFormat.textFormat",
		}}
	}

	requests := []*sheets.Request{bold(0, 1, 2, 16)}
	for _, row := range d.sections {
		requests = append(requests, bold(int64(row), int64(row+1), 1, 12))
	}
	header := int64(d.detailHeader)
	requests = append(requests,
		bold(header, header+1, int64(len(transactionHeader)), 10),
		&sheets.Request{RepeatCell: &sheets.RepeatCellRequest{
			Range: &sheets.GridRange{
				SheetId: sheetID, StartRowIndex: header + 1, EndRowIndex: int64(len(d.rows)),
				StartColumnIndex: currencyColumn, EndColumnIndex: currencyColumn + 1,
			},
			Cell: &sheets.CellData{UserEnteredFormat: &sheets.CellFormat{
				NumberFormat: &sheets.NumberFormat{Type: "CURRENCY", Pattern: w.config.CurrencyPattern},
			}},
			Fields: "userEnteredFormat.numberFormat",
		}},
		&sheets.Request{AutoResizeDimensions: &sheets.AutoResizeDimensionsRequest{
			Dimensions: &sheets.DimensionRange{
				SheetId: sheetID, Dimension: "COLUMNS",
				StartIndex: 0, EndIndex: int64(len(transactionHeader)),
			},
		}},
		&sheets.Request{UpdateSheetProperties: &sheets.UpdateSheetPropertiesRequest{
			Properties: &sheets.SheetProperties{
				SheetId:        sheetID,
				GridProperties: &sheets.GridProperties{FrozenRowCount: 1},
			},
			Fields: "gridProperties.frozenRowCount",
		}},
	)
	return requests
}
