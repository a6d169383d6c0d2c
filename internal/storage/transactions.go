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

const transactionColumns = `id, user_id, document_id, account_id, source, date, merchant_name,
	description, amount, currency, type, category_id, business_id, hash, created_at`

func scanTransaction(row interface{ Scan(...any) error }) (*model.Transaction, error) {
	var txn model.Transaction
	var date string
	if err := row.Scan(&txn.ID, &txn.UserID, &txn.DocumentID, &txn.AccountID, &txn.Source,
		&date, &txn.MerchantName, &txn.Description, &txn.Amount, &txn.Currency, &txn.Type,
		&txn.CategoryID, &txn.BusinessID, &txn.Hash, &txn.CreatedAt); err != nil {
		return nil, err
	}
	parsed, err := parseDate(date)
	if err != nil {
		return nil, err
	}
	txn.Date = parsed
	return &txn, nil
}

// SaveTransactions saves transactions in one database transaction. Rows whose
// (user, hash) already exists are skipped; the number actually inserted is returned.
func (s *SQLiteStorage) SaveTransactions(ctx context.Context, transactions []model.Transaction) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	for i := range transactions {
		if err := validateTransaction(&transactions[i]); err != nil {
			return 0, err
		}
	}
	if len(transactions) == 0 {
		return 0, nil
	}

	inserted := 0
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO transactions (id, user_id, document_id, account_id, source, date, merchant_name,
				merchant_key, description, amount, currency, type, category_id, business_id, hash, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(user_id, hash) DO NOTHING`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		now := s.now()
		for i := range transactions {
			txn := &transactions[i]
			if txn.Hash == "" {
				txn.Hash = txn.GenerateHash()
			}
			if txn.ID == "" {
				txn.ID = uuid.New().String()
			}
			txn.CreatedAt = now

			result, err := stmt.ExecContext(ctx,
				txn.ID, txn.UserID, txn.DocumentID, txn.AccountID, txn.Source, formatDate(txn.Date),
				txn.MerchantName, normalizeKey(txn.MerchantName), txn.Description, txn.Amount.String(),
				txn.Currency, txn.Type, txn.CategoryID, txn.BusinessID, txn.Hash, txn.CreatedAt)
			if err != nil {
				return fmt.Errorf("failed to insert transaction %s: %w", txn.ID, err)
			}
			if n, _ := result.RowsAffected(); n > 0 {
				inserted++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if skipped := len(transactions) - inserted; skipped > 0 {
		s.logger.Debug("skipped already imported transactions", "skipped", skipped, "inserted", inserted)
	}
	return inserted, nil
}

// GetTransaction returns a transaction by id.
func (s *SQLiteStorage) GetTransaction(ctx context.Context, id string) (*model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	txn, err := scanTransaction(s.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: transaction %s", common.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query transaction: %w", err)
	}
	return txn, nil
}

// ListTransactions returns the user's transactions, newest first.
func (s *SQLiteStorage) ListTransactions(ctx context.Context, userID string, filter service.TransactionFilter) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE user_id = ?`
	args := []any{userID}

	if filter.StartDate != nil {
		query += " AND date >= ?"
		args = append(args, formatDate(*filter.StartDate))
	}
	if filter.EndDate != nil {
		query += " AND date <= ?"
		args = append(args, formatDate(*filter.EndDate))
	}

	query += " ORDER BY date DESC, created_at DESC, id"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var transactions []model.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, *txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}
	return transactions, nil
}

// UpdateTransactionCategory stores a categorization decision on a transaction.
func (s *SQLiteStorage) UpdateTransactionCategory(ctx context.Context, id, categoryID, businessID string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE transactions SET category_id = ?, business_id = ? WHERE id = ?`,
		categoryID, businessID, id)
	if err != nil {
		return fmt.Errorf("failed to update transaction category: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: transaction %s", common.ErrNotFound, id)
	}
	return nil
}

// CategorizedHistory returns the user's categorized transactions since
// filter.Since, newest first, optionally restricted to one merchant.
func (s *SQLiteStorage) CategorizedHistory(ctx context.Context, userID string, filter service.HistoryFilter) ([]service.HistoryEntry, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}

	query := `
		SELECT t.date, t.merchant_name, t.category_id, c.name, t.business_id
		FROM transactions t
		JOIN categories c ON c.id = t.category_id
		WHERE t.user_id = ? AND t.merchant_name != ''`
	args := []any{userID}

	if !filter.Since.IsZero() {
		query += " AND t.date >= ?"
		args = append(args, formatDate(filter.Since))
	}
	if filter.Merchant != "" {
		query += " AND t.merchant_key = ?"
		args = append(args, normalizeKey(filter.Merchant))
	}
	query += " ORDER BY t.date DESC, t.created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query categorized history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []service.HistoryEntry
	for rows.Next() {
		var entry service.HistoryEntry
		var date string
		if err := rows.Scan(&date, &entry.MerchantName, &entry.CategoryID, &entry.CategoryName, &entry.BusinessID); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		if entry.Date, err = parseDate(date); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history: %w", err)
	}
	return entries, nil
}
