package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/mcp-open-lab/zenny-books-sub002/internal/common"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/model"
)

const categoryColumns = `id, name, description, type, transaction_type, usage_scope, user_id, created_at`

func scanCategory(row interface{ Scan(...any) error }) (*model.Category, error) {
	var cat model.Category
	var userID sql.NullString
	if err := row.Scan(&cat.ID, &cat.Name, &cat.Description, &cat.Type,
		&cat.TransactionType, &cat.UsageScope, &userID, &cat.CreatedAt); err != nil {
		return nil, err
	}
	cat.UserID = userID.String
	return &cat, nil
}

// ListCategoriesForUser returns the system categories plus the user's own.
func (s *SQLiteStorage) ListCategoriesForUser(ctx context.Context, userID string) ([]model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}

	query := `
		SELECT ` + categoryColumns + `
		FROM categories
		WHERE type = 'system' OR user_id = ?
		ORDER BY name`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var categories []model.Category
	for rows.Next() {
		cat, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, *cat)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating categories: %w", err)
	}

	s.logger.Debug("retrieved categories", "user_id", userID, "count", len(categories))
	return categories, nil
}

// GetCategory returns a category by id.
func (s *SQLiteStorage) GetCategory(ctx context.Context, id string) (*model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id = ?`, id)
	cat, err := scanCategory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: category %s", common.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query category: %w", err)
	}
	return cat, nil
}

// InsertOrGetCategory creates the category unless one with the same
// (name, owner, transaction type) exists, in which case that row is returned.
// Concurrent callers proposing the same name all resolve to a single row.
func (s *SQLiteStorage) InsertOrGetCategory(ctx context.Context, category model.Category) (*model.Category, bool, error) {
	if err := validateContext(ctx); err != nil {
		return nil, false, err
	}
	if category.Type == "" {
		category.Type = model.CategoryTypeUser
	}
	if err := validateCategory(&category); err != nil {
		return nil, false, err
	}
	if category.ID == "" {
		category.ID = uuid.New().String()
	}
	if category.UsageScope == "" {
		category.UsageScope = model.UsageScopeBoth
	}

	var result *model.Category
	var created bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var userID sql.NullString
		if category.UserID != "" {
			userID = sql.NullString{String: category.UserID, Valid: true}
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO categories (id, name, name_key, description, type, transaction_type, usage_scope, user_id, owner_key, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT DO NOTHING`,
			category.ID, category.Name, normalizeKey(category.Name), category.Description,
			category.Type, category.TransactionType, category.UsageScope,
			userID, category.UserID, s.now())
		if err != nil {
			return fmt.Errorf("failed to insert category: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read insert result: %w", err)
		}
		created = affected == 1

		row := tx.QueryRowContext(ctx, `
			SELECT `+categoryColumns+`
			FROM categories
			WHERE name_key = ? AND owner_key = ? AND transaction_type = ?`,
			normalizeKey(category.Name), category.UserID, category.TransactionType)
		result, err = scanCategory(row)
		if err != nil {
			return fmt.Errorf("failed to fetch category: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	if created {
		s.logger.Info("created new category", "name", result.Name, "id", result.ID, "user_id", result.UserID)
	}
	return result, created, nil
}

// DeleteCategory removes a user-owned category. System categories and
// categories owned by someone else are rejected with an AuthorizationError.
func (s *SQLiteStorage) DeleteCategory(ctx context.Context, userID, id string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(userID, "userID"); err != nil {
		return err
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		cat, err := scanCategory(tx.QueryRowContext(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id = ?`, id))
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: category %s", common.ErrNotFound, id)
		}
		if err != nil {
			return fmt.Errorf("failed to query category: %w", err)
		}
		if cat.IsSystem() || cat.UserID != userID {
			return common.NewAuthorizationError("category", id)
		}

		var refs int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions WHERE category_id = ?`, id).Scan(&refs); err != nil {
			return fmt.Errorf("failed to count category references: %w", err)
		}
		if refs > 0 {
			return common.NewUserError(
				fmt.Sprintf("category %q is used by %d transactions", cat.Name, refs),
				common.ErrInUse)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM category_rules WHERE category_id = ? AND user_id = ?`, id, userID); err != nil {
			return fmt.Errorf("failed to delete category rules: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete category: %w", err)
		}
		return nil
	})
}
