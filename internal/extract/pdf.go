package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"

	"github.com/mcp-open-lab/zenny-books-sub002/internal/common"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/llm"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/model"
)

// maxStatementText caps the statement text sent to a model.
const maxStatementText = 60000

// PDFStatementExtractor reads the text layer of a PDF statement and asks a
// model to structure it. Scanned statements with no usable text are sent
// to the model as the PDF itself.
type PDFStatementExtractor struct {
	decoder Decoder
	logger  *slog.Logger
}

// NewPDFStatementExtractor creates a PDF statement extractor.
func NewPDFStatementExtractor(decoder Decoder, logger *slog.Logger) *PDFStatementExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &PDFStatementExtractor{decoder: decoder, logger: logger.With("component", "pdf_extractor")}
}

// Name identifies the extractor.
func (e *PDFStatementExtractor) Name() string {
	return "pdf_statement"
}

// Extract returns one line per statement transaction.
func (e *PDFStatementExtractor) Extract(ctx context.Context, file File, hints Hints) (*Extraction, error) {
	req := llm.Request{
		System:    statementSystemPrompt,
		MaxTokens: 8192,
		JSON:      true,
	}

	pages, err := pdfText(file.Data)
	switch {
	case err == nil && readableText(pages):
		text := strings.Join(pages, "\n\n")
		if len(text) > maxStatementText {
			text = text[:maxStatementText]
		}
		req.Prompt = statementPrompt(hints) + "\n\nStatement text:\n" + text
	default:
		e.logger.Debug("PDF has no readable text layer, sending document", "file", file.Name, "error", err)
		req.Prompt = statementPrompt(hints)
		req.Data = file.Data
		req.MIMEType = "application/pdf"
	}

	var answer statementAnswer
	var lines []Line
	_, err = e.decoder.Decode(ctx, req, func(resp llm.Response) error {
		answer = statementAnswer{}
		if err := llm.DecodeStrict(resp.Text, &answer); err != nil {
			return err
		}
		var lerr error
		lines, lerr = answer.lines(hints)
		return lerr
	})
	if err != nil {
		return nil, asProviderError(e.decoder.Name(), err)
	}

	currency := strings.ToUpper(strings.TrimSpace(answer.Currency))
	if currency == "" {
		currency = hints.Currency
	}

	e.logger.Info("extracted PDF statement", "file", file.Name, "transactions", len(lines))
	return &Extraction{
		Kind:       model.DocumentKindBankStatement,
		Currency:   currency,
		Lines:      lines,
		Confidence: answer.confidence(),
	}, nil
}

// pdfText returns the text of every page, row by row, falling back to the
// reader's plain text stream. The pdf library panics on some malformed
// files, so panics become errors.
func pdfText(data []byte) (pages []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf reader crashed: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	n := r.NumPage()
	if n == 0 {
		return nil, fmt.Errorf("pdf has no pages")
	}

	for i := 1; i <= n; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			continue
		}
		var lines []string
		for _, row := range rows {
			parts := make([]string, 0, len(row.Content))
			for _, word := range row.Content {
				parts = append(parts, word.S)
			}
			if line := strings.TrimSpace(strings.Join(parts, " ")); line != "" {
				lines = append(lines, line)
			}
		}
		pages = append(pages, strings.Join(lines, "\n"))
	}
	if readableText(pages) {
		return pages, nil
	}

	plain, err := r.GetPlainText()
	if err != nil {
		return pages, nil
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return pages, nil
	}
	return []string{buf.String()}, nil
}

// readableText rejects empty pages and the glyph soup produced by PDFs with
// custom font encodings.
func readableText(pages []string) bool {
	total, readable := 0, 0
	for _, page := range pages {
		for _, r := range page {
			total++
			if r < unicode.MaxASCII && (unicode.IsPrint(r) || unicode.IsSpace(r)) {
				readable++
			}
		}
	}
	if total <= 50 {
		return false
	}
	return float64(readable)/float64(total) > 0.6
}

func asProviderError(provider string, err error) error {
	var providerErr *common.ProviderError
	if errors.As(err, &providerErr) {
		return err
	}
	return common.NewProviderError(provider, err)
}
