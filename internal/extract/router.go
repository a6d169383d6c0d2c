package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/mcp-open-lab/zenny-books-sub002/internal/model"
)

// Router picks an extractor from the batch's import type and the file's
// format. Mixed batches route PDFs to the statement extractor only when
// the batch carries a statement type.
type Router struct {
	ofx       Extractor
	statement Extractor
	receipt   Extractor
}

// NewRouter creates a Router. Any extractor may be nil, in which case the
// formats it handles are unsupported.
func NewRouter(ofx, statement, receipt Extractor) *Router {
	return &Router{ofx: ofx, statement: statement, receipt: receipt}
}

// Name identifies the router.
func (r *Router) Name() string {
	return "router"
}

// Route returns the extractor for a file.
func (r *Router) Route(importType model.ImportType, format string, hints Hints) (Extractor, error) {
	format = strings.ToLower(strings.TrimPrefix(format, "."))

	var picked Extractor
	switch {
	case format == "ofx" || format == "qfx":
		if importType != model.ImportTypeReceipts {
			picked = r.ofx
		}
	case format == "pdf":
		switch importType {
		case model.ImportTypeBankStatements:
			picked = r.statement
		case model.ImportTypeReceipts:
			picked = r.receipt
		default:
			if hints.StatementType != "" {
				picked = r.statement
			} else {
				picked = r.receipt
			}
		}
	case IsImage(format):
		if importType != model.ImportTypeBankStatements {
			picked = r.receipt
		}
	}

	if picked == nil {
		return nil, fmt.Errorf("%w: %q in a %s import", ErrUnsupportedFormat, format, importType)
	}
	return picked, nil
}

// Extract routes file and extracts it.
func (r *Router) Extract(ctx context.Context, file File, hints Hints) (*Extraction, error) {
	format := file.Format
	if format == "" {
		format = model.FileFormatFromName(file.Name)
	}
	e, err := r.Route(hints.ImportType, format, hints)
	if err != nil {
		return nil, err
	}
	return e.Extract(ctx, file, hints)
}
