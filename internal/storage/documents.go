package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/mcp-open-lab/zenny-books-sub002/internal/common"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/model"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/service"
)

const documentColumns = `id, user_id, batch_item_id, kind, file_name, file_url, content_hash,
	merchant_name, date, amount, currency, confidence, is_excluded_from_totals, created_at`

func scanDocument(row interface{ Scan(...any) error }) (*model.Document, error) {
	var doc model.Document
	var date string
	if err := row.Scan(&doc.ID, &doc.UserID, &doc.BatchItemID, &doc.Kind, &doc.FileName,
		&doc.FileURL, &doc.ContentHash, &doc.MerchantName, &date, &doc.Amount, &doc.Currency,
		&doc.Confidence, &doc.IsExcludedFromTotals, &doc.CreatedAt); err != nil {
		return nil, err
	}
	parsed, err := parseDate(date)
	if err != nil {
		return nil, err
	}
	doc.Date = parsed
	return &doc, nil
}

// CreateDocument stores an extracted document.
func (s *SQLiteStorage) CreateDocument(ctx context.Context, doc *model.Document) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateDocument(doc); err != nil {
		return err
	}
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	doc.CreatedAt = s.now()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, user_id, batch_item_id, kind, file_name, file_url, content_hash,
			merchant_name, merchant_key, date, amount, currency, confidence, is_excluded_from_totals, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.UserID, doc.BatchItemID, doc.Kind, doc.FileName, doc.FileURL, doc.ContentHash,
		doc.MerchantName, normalizeKey(doc.MerchantName), formatDate(doc.Date), doc.Amount.String(),
		doc.Currency, doc.Confidence, doc.IsExcludedFromTotals, doc.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}
	return nil
}

// GetDocument returns a document by id.
func (s *SQLiteStorage) GetDocument(ctx context.Context, id string) (*model.Document, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	doc, err := scanDocument(s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: document %s", common.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query document: %w", err)
	}
	return doc, nil
}

// storedBefore is the rowid of the candidate document, bound to its id.
// Documents are never deleted, so rowids follow insertion order. A candidate
// that is not stored sees every document.
const storedBefore = `COALESCE((SELECT rowid FROM documents WHERE id = ?), 9223372036854775807)`

// FindDocumentByHash returns the oldest prior document with identical content.
func (s *SQLiteStorage) FindDocumentByHash(ctx context.Context, query service.DocumentQuery) (*model.Document, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(query.ContentHash, "contentHash"); err != nil {
		return nil, err
	}

	doc, err := scanDocument(s.db.QueryRowContext(ctx, `
		SELECT `+documentColumns+`
		FROM documents
		WHERE user_id = ? AND content_hash = ? AND id != ? AND (? = '' OR batch_item_id != ?)
			AND is_excluded_from_totals = 0 AND rowid < `+storedBefore+`
		ORDER BY rowid
		LIMIT 1`,
		query.UserID, query.ContentHash, query.ExcludeDocumentID,
		query.ExcludeBatchItemID, query.ExcludeBatchItemID, query.ExcludeDocumentID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: document with hash", common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query document by hash: %w", err)
	}
	return doc, nil
}

// FindFingerprintMatches returns prior receipts, and the documents behind
// imported transactions, with the same merchant and date.
func (s *SQLiteStorage) FindFingerprintMatches(ctx context.Context, query service.DocumentQuery) ([]model.Document, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if query.MerchantName == "" || query.Date.IsZero() {
		return nil, nil
	}

	merchant := normalizeKey(query.MerchantName)
	date := formatDate(query.Date)

	rows, err := s.db.QueryContext(ctx, `
		SELECT d.id, d.merchant_name, d.date, d.amount, d.created_at
		FROM documents d
		WHERE d.user_id = ? AND d.merchant_key = ? AND d.date = ?
			AND d.id != ? AND (? = '' OR d.batch_item_id != ?) AND d.is_excluded_from_totals = 0
			AND d.rowid < `+storedBefore+`
		UNION ALL
		SELECT t.document_id, t.merchant_name, t.date, t.amount, t.created_at
		FROM transactions t
		JOIN documents d ON d.id = t.document_id
		WHERE t.user_id = ? AND t.merchant_key = ? AND t.date = ?
			AND t.document_id != ? AND (? = '' OR d.batch_item_id != ?) AND d.is_excluded_from_totals = 0
			AND d.rowid < `+storedBefore+`
		ORDER BY 5`,
		query.UserID, merchant, date, query.ExcludeDocumentID, query.ExcludeBatchItemID, query.ExcludeBatchItemID,
		query.ExcludeDocumentID,
		query.UserID, merchant, date, query.ExcludeDocumentID, query.ExcludeBatchItemID, query.ExcludeBatchItemID,
		query.ExcludeDocumentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query fingerprint matches: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var matches []model.Document
	for rows.Next() {
		var doc model.Document
		var rawDate string
		if err := rows.Scan(&doc.ID, &doc.MerchantName, &rawDate, &doc.Amount, &doc.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan fingerprint match: %w", err)
		}
		if doc.Date, err = parseDate(rawDate); err != nil {
			return nil, err
		}
		doc.UserID = query.UserID
		matches = append(matches, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating fingerprint matches: %w", err)
	}
	return matches, nil
}

// MarkDocumentExcluded flags a document so it no longer counts toward totals.
func (s *SQLiteStorage) MarkDocumentExcluded(ctx context.Context, id string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `UPDATE documents SET is_excluded_from_totals = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to exclude document: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: document %s", common.ErrNotFound, id)
	}
	return nil
}
