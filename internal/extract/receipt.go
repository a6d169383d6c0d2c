package extract

import (
	"context"
	"log/slog"
	"strings"

	"github.com/mcp-open-lab/zenny-books-sub002/internal/llm"
)

var imageMIMETypes = map[string]string{
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"webp": "image/webp",
	"heic": "image/heic",
	"heif": "image/heif",
}

// IsImage reports whether format is a receipt photo format.
func IsImage(format string) bool {
	_, ok := imageMIMETypes[strings.ToLower(format)]
	return ok
}

// ReceiptExtractor reads receipt photos and PDF invoices through a vision
// model. PDFs with a text layer are sent as text so providers without
// document input can still answer.
type ReceiptExtractor struct {
	decoder Decoder
	logger  *slog.Logger
}

// NewReceiptExtractor creates a receipt extractor.
func NewReceiptExtractor(decoder Decoder, logger *slog.Logger) *ReceiptExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReceiptExtractor{decoder: decoder, logger: logger.With("component", "receipt_extractor")}
}

// Name identifies the extractor.
func (e *ReceiptExtractor) Name() string {
	return "receipt"
}

// Extract returns the receipt's merchant, date and total.
func (e *ReceiptExtractor) Extract(ctx context.Context, file File, hints Hints) (*Extraction, error) {
	format := strings.ToLower(file.Format)
	req := llm.Request{
		System:    receiptSystemPrompt,
		Prompt:    receiptPrompt(hints),
		MaxTokens: 1024,
		JSON:      true,
	}

	switch {
	case IsImage(format):
		req.Data = file.Data
		req.MIMEType = imageMIMETypes[format]
	case format == "pdf":
		if pages, err := pdfText(file.Data); err == nil && readableText(pages) {
			req.Prompt += "\n\nReceipt text:\n" + strings.Join(pages, "\n")
		} else {
			req.Data = file.Data
			req.MIMEType = "application/pdf"
		}
	default:
		return nil, ErrUnsupportedFormat
	}

	var out *Extraction
	resp, err := e.decoder.Decode(ctx, req, func(resp llm.Response) error {
		var answer receiptAnswer
		if err := llm.DecodeStrict(resp.Text, &answer); err != nil {
			return err
		}
		var xerr error
		out, xerr = answer.extraction(hints)
		return xerr
	})
	if err != nil {
		return nil, asProviderError(e.decoder.Name(), err)
	}

	e.logger.Debug("extracted receipt",
		"file", file.Name,
		"provider", resp.Provider,
		"merchant", out.MerchantName,
		"confidence", out.Confidence)
	return out, nil
}
