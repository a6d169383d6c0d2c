package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/mcp-open-lab/zenny-books-sub002/internal/categorize"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/ledger"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/model"
)

// ErrQuit is returned when the user ends a review session early.
var ErrQuit = errors.New("review ended by user")

// ReviewStats summarizes a review session.
type ReviewStats struct {
	Duration    time.Duration
	Total       int
	Categorized int
	Skipped     int
	RulesAsked  int
}

// Reviewer walks the user through uncategorized transactions and turns
// each answer into a categorization decision.
type Reviewer struct {
	startTime   time.Time
	writer      io.Writer
	reader      *LineReader
	progressBar *progressbar.ProgressBar
	categories  []model.Category
	businesses  []model.Business
	stats       ReviewStats
}

// NewReviewer creates a Reviewer offering categories and businesses.
func NewReviewer(r io.Reader, w io.Writer, categories []model.Category, businesses []model.Business) *Reviewer {
	return &Reviewer{
		reader:     NewLineReader(r),
		writer:     w,
		categories: categories,
		businesses: businesses,
		startTime:  time.Now(),
	}
}

// Start prepares the progress bar for total transactions.
func (p *Reviewer) Start(total int) {
	p.stats.Total = total
	p.progressBar = progressbar.NewOptions(total,
		progressbar.OptionSetWriter(p.writer),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionSetDescription("[cyan][bold]Reviewing...[reset]"),
	)
}

// Review asks for a category for entry. ok is false when the user skipped.
func (p *Reviewer) Review(ctx context.Context, entry ledger.Entry) (d categorize.Decision, ok bool, err error) {
	defer p.advance()

	options := p.categoriesFor(entry.Type)
	if _, err := fmt.Fprintln(p.writer, RenderBox("Transaction Review", p.formatEntry(entry, options))); err != nil {
		return d, false, fmt.Errorf("failed to write transaction box: %w", err)
	}

	choice, err := p.promptIndex(ctx, "Category number, [S]kip or [Q]uit", len(options), true)
	if err != nil {
		return d, false, err
	}
	if choice < 0 {
		p.stats.Skipped++
		return d, false, nil
	}
	d = categorize.Decision{TransactionID: entry.ID, CategoryID: options[choice].ID}

	if len(p.businesses) > 0 {
		for i, b := range p.businesses {
			if _, err := fmt.Fprintf(p.writer, "  [%d] %s\n", i+1, b.Name); err != nil {
				return d, false, fmt.Errorf("failed to write business option: %w", err)
			}
		}
		biz, err := p.promptIndex(ctx, "Business number, or Enter for "+model.PersonalLabel, len(p.businesses), false)
		if err != nil {
			return d, false, err
		}
		if biz >= 0 {
			d.BusinessID = p.businesses[biz].ID
		}
	}

	if entry.MerchantName != "" {
		answer, err := p.reader.Ask(ctx, p.writer, fmt.Sprintf("Always use %s for %q? [y/N]", options[choice].Name, entry.MerchantName))
		if err != nil {
			return d, false, err
		}
		d.ApplyToFuture = strings.EqualFold(answer, "y") || strings.EqualFold(answer, "yes")
		if d.ApplyToFuture {
			p.stats.RulesAsked++
		}
	}

	p.stats.Categorized++
	return d, true, nil
}

// Finish closes the progress bar and returns the session statistics.
func (p *Reviewer) Finish() ReviewStats {
	if p.progressBar != nil {
		if err := p.progressBar.Finish(); err != nil {
			slog.Warn("Failed to finish progress bar", "error", err)
		}
	}
	p.stats.Duration = time.Since(p.startTime)

	summary := fmt.Sprintf("  • Reviewed: %d of %d\n", p.stats.Categorized+p.stats.Skipped, p.stats.Total) +
		fmt.Sprintf("  • Categorized: %d\n", p.stats.Categorized) +
		fmt.Sprintf("  • Skipped: %d\n", p.stats.Skipped) +
		fmt.Sprintf("  • New rules: %d\n", p.stats.RulesAsked) +
		fmt.Sprintf("  • Time taken: %s", p.stats.Duration.Round(time.Second))
	if _, err := fmt.Fprintln(p.writer, "\n"+RenderBox("Review Complete", summary)); err != nil {
		slog.Warn("Failed to write completion box", "error", err)
	}
	return p.stats
}

func (p *Reviewer) advance() {
	if p.progressBar == nil {
		return
	}
	if err := p.progressBar.Add(1); err != nil {
		slog.Warn("Failed to update progress bar", "error", err)
	}
}

func (p *Reviewer) categoriesFor(txType model.TransactionType) []model.Category {
	var out []model.Category
	for _, c := range p.categories {
		if c.TransactionType == txType {
			out = append(out, c)
		}
	}
	return out
}

func (p *Reviewer) formatEntry(e ledger.Entry, options []model.Category) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s Details:\n", InfoIcon)
	fmt.Fprintf(&b, "  Date: %s\n", e.Date.Format("Jan 2, 2006"))
	fmt.Fprintf(&b, "  Merchant: %s\n", BoldStyle.Render(e.MerchantName))
	fmt.Fprintf(&b, "  Amount: %s %s (%s)\n", e.Amount.StringFixed(2), e.Currency, e.Type)
	if e.Description != "" && e.Description != e.MerchantName {
		fmt.Fprintf(&b, "  Description: %s\n", e.Description)
	}
	b.WriteString("\n")
	for i, c := range options {
		fmt.Fprintf(&b, "  [%d] %s\n", i+1, c.Name)
	}
	return strings.TrimRight(b.String(), "\n")
}

// promptIndex reads a 1-based choice and returns it 0-based. -1 means skip
// (S) when allowSkip is set, or an empty answer otherwise.
func (p *Reviewer) promptIndex(ctx context.Context, question string, n int, allowSkip bool) (int, error) {
	for {
		answer, err := p.reader.Ask(ctx, p.writer, question)
		if err != nil {
			return 0, err
		}
		switch lower := strings.ToLower(answer); {
		case allowSkip && (lower == "s" || lower == "skip"):
			return -1, nil
		case allowSkip && (lower == "q" || lower == "quit"):
			return 0, ErrQuit
		case !allowSkip && lower == "":
			return -1, nil
		}
		if i, err := strconv.Atoi(answer); err == nil && i >= 1 && i <= n {
			return i - 1, nil
		}
		if _, err := fmt.Fprintln(p.writer, FormatWarning(fmt.Sprintf("Enter a number between 1 and %d", n))); err != nil {
			return 0, fmt.Errorf("failed to write warning: %w", err)
		}
	}
}
