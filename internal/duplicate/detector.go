// Package duplicate finds documents a user has already imported.
package duplicate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/mcp-open-lab/zenny-books-sub002/internal/common"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/model"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/service"
)

// FingerprintConfidence is reported for merchant/date/amount matches.
const FingerprintConfidence = 0.9

// Match identifies the earlier document a new one duplicates.
type Match struct {
	DocumentID string
	MatchType  model.DuplicateMatchType
	Confidence float64
}

// HashContent returns the hex sha256 of data. It depends only on the bytes,
// never on file name or upload time.
func HashContent(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashReader is HashContent over a stream.
func HashReader(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("failed to hash content: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Detector checks new documents against the user's earlier ones.
type Detector struct {
	store  service.DocumentStore
	logger *slog.Logger
}

// NewDetector creates a Detector.
func NewDetector(store service.DocumentStore, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{store: store, logger: logger.With("component", "duplicate_detector")}
}

// CheckDuplicate returns the match for doc, or nil when doc is new.
//
// Tiers run in order: identical content first, then the same merchant
// (ignoring case), date and amount. Documents from earlier attempts of the
// same batch item never count, so a retried item does not match itself.
func (d *Detector) CheckDuplicate(ctx context.Context, doc *model.Document) (*Match, error) {
	if doc == nil {
		return nil, common.NewValidationError("document", "is required")
	}
	if doc.UserID == "" {
		return nil, &common.AuthorizationError{Resource: "document", Err: common.ErrUnauthenticated}
	}

	query := service.DocumentQuery{
		UserID:             doc.UserID,
		ContentHash:        doc.ContentHash,
		MerchantName:       doc.MerchantName,
		Date:               doc.Date,
		ExcludeDocumentID:  doc.ID,
		ExcludeBatchItemID: doc.BatchItemID,
	}

	if doc.ContentHash != "" {
		prior, err := d.store.FindDocumentByHash(ctx, query)
		switch {
		case err == nil:
			d.logger.Info("duplicate detected",
				"document_id", doc.ID,
				"duplicate_of", prior.ID,
				"match_type", model.DuplicateMatchExactImage)
			return &Match{DocumentID: prior.ID, MatchType: model.DuplicateMatchExactImage, Confidence: 1.0}, nil
		case !errors.Is(err, common.ErrNotFound):
			return nil, fmt.Errorf("failed to look up content hash: %w", err)
		}
	}

	if !doc.HasFingerprint() {
		return nil, nil
	}

	candidates, err := d.store.FindFingerprintMatches(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to look up fingerprint: %w", err)
	}
	for _, c := range candidates {
		if !c.Amount.Equal(doc.Amount) {
			continue
		}
		d.logger.Info("duplicate detected",
			"document_id", doc.ID,
			"duplicate_of", c.ID,
			"match_type", model.DuplicateMatchMerchantDateAmount)
		return &Match{DocumentID: c.ID, MatchType: model.DuplicateMatchMerchantDateAmount, Confidence: FingerprintConfidence}, nil
	}

	return nil, nil
}
