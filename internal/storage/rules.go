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

const ruleColumns = `seq, id, user_id, category_id, field, match_type, pattern, display_name, created_at`

func scanRule(row interface{ Scan(...any) error }) (*model.CategoryRule, error) {
	var rule model.CategoryRule
	if err := row.Scan(&rule.Seq, &rule.ID, &rule.UserID, &rule.CategoryID, &rule.Field,
		&rule.MatchType, &rule.Pattern, &rule.DisplayName, &rule.CreatedAt); err != nil {
		return nil, err
	}
	return &rule, nil
}

// CreateRule stores a rule after checking its category is usable by the rule's owner.
func (s *SQLiteStorage) CreateRule(ctx context.Context, rule *model.CategoryRule) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateRule(rule); err != nil {
		return err
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		cat, err := scanCategory(tx.QueryRowContext(ctx,
			`SELECT `+categoryColumns+` FROM categories WHERE id = ?`, rule.CategoryID))
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: category %s", common.ErrNotFound, rule.CategoryID)
		}
		if err != nil {
			return fmt.Errorf("failed to verify category: %w", err)
		}
		if !cat.UsableBy(rule.UserID) {
			return common.NewAuthorizationError("category", rule.CategoryID)
		}

		if rule.ID == "" {
			rule.ID = uuid.New().String()
		}
		rule.CreatedAt = s.now()

		result, err := tx.ExecContext(ctx, `
			INSERT INTO category_rules (id, user_id, category_id, field, match_type, pattern, display_name, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			rule.ID, rule.UserID, rule.CategoryID, rule.Field, rule.MatchType,
			rule.Pattern, rule.DisplayName, rule.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to create category rule: %w", err)
		}

		seq, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get category rule sequence: %w", err)
		}
		rule.Seq = seq
		return nil
	})
}

// ListRulesForUser returns the user's rules in insertion order.
func (s *SQLiteStorage) ListRulesForUser(ctx context.Context, userID string) ([]model.CategoryRule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+ruleColumns+`
		FROM category_rules
		WHERE user_id = ?
		ORDER BY seq`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query category rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var rules []model.CategoryRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan category rule: %w", err)
		}
		rules = append(rules, *rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating category rules: %w", err)
	}
	return rules, nil
}

// FindRule returns the user's rule with the given field, match type and
// case-insensitive pattern, or ErrNotFound.
func (s *SQLiteStorage) FindRule(ctx context.Context, userID string, field model.RuleField, matchType model.MatchType, pattern string) (*model.CategoryRule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT `+ruleColumns+`
		FROM category_rules
		WHERE user_id = ? AND field = ? AND match_type = ? AND lower(pattern) = ?
		ORDER BY seq
		LIMIT 1`, userID, field, matchType, normalizeKey(pattern))
	rule, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: category rule", common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query category rule: %w", err)
	}
	return rule, nil
}

// DeleteRule deletes a rule owned by userID.
func (s *SQLiteStorage) DeleteRule(ctx context.Context, userID, id string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		var owner string
		err := tx.QueryRowContext(ctx, `SELECT user_id FROM category_rules WHERE id = ?`, id).Scan(&owner)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: category rule %s", common.ErrNotFound, id)
		}
		if err != nil {
			return fmt.Errorf("failed to query category rule: %w", err)
		}
		if owner != userID {
			return common.NewAuthorizationError("category rule", id)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM category_rules WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete category rule: %w", err)
		}
		return nil
	})
}
