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

const businessColumns = `id, user_id, name, type, tax_id, address, description, created_at`

func scanBusiness(row interface{ Scan(...any) error }) (*model.Business, error) {
	var b model.Business
	if err := row.Scan(&b.ID, &b.UserID, &b.Name, &b.Type, &b.TaxID,
		&b.Address, &b.Description, &b.CreatedAt); err != nil {
		return nil, err
	}
	return &b, nil
}

// CreateBusiness stores a new business.
func (s *SQLiteStorage) CreateBusiness(ctx context.Context, business *model.Business) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if business != nil && business.Type == "" {
		business.Type = model.BusinessTypeBusiness
	}
	if err := validateBusiness(business); err != nil {
		return err
	}
	if business.ID == "" {
		business.ID = uuid.New().String()
	}
	business.CreatedAt = s.now()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO businesses (`+businessColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		business.ID, business.UserID, business.Name, business.Type, business.TaxID,
		business.Address, business.Description, business.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create business: %w", err)
	}
	return nil
}

// GetBusiness returns a business by id, or ErrNotFound once it was deleted.
func (s *SQLiteStorage) GetBusiness(ctx context.Context, id string) (*model.Business, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	b, err := scanBusiness(s.db.QueryRowContext(ctx, `SELECT `+businessColumns+` FROM businesses WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: business %s", common.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query business: %w", err)
	}
	return b, nil
}

// ListBusinesses returns the user's businesses by name.
func (s *SQLiteStorage) ListBusinesses(ctx context.Context, userID string) ([]model.Business, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+businessColumns+`
		FROM businesses
		WHERE user_id = ?
		ORDER BY name`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query businesses: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var businesses []model.Business
	for rows.Next() {
		b, err := scanBusiness(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan business: %w", err)
		}
		businesses = append(businesses, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating businesses: %w", err)
	}
	return businesses, nil
}

// DeleteBusiness removes a business owned by userID. Transactions that
// reference it are left untouched and read back as personal.
func (s *SQLiteStorage) DeleteBusiness(ctx context.Context, userID, id string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		var owner string
		err := tx.QueryRowContext(ctx, `SELECT user_id FROM businesses WHERE id = ?`, id).Scan(&owner)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: business %s", common.ErrNotFound, id)
		}
		if err != nil {
			return fmt.Errorf("failed to query business: %w", err)
		}
		if owner != userID {
			return common.NewAuthorizationError("business", id)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM businesses WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete business: %w", err)
		}
		return nil
	})
}
