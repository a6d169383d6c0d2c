package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 4

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

// systemCategory is a shared category seeded once.
type systemCategory struct {
	name            string
	description     string
	transactionType string
	usageScope      string
}

var systemCategories = []systemCategory{
	{"Groceries", "Supermarkets and food stores", "expense", "personal"},
	{"Dining", "Restaurants, cafes and takeout", "expense", "both"},
	{"Transportation", "Fuel, transit, rideshare and parking", "expense", "both"},
	{"Travel", "Flights, hotels and lodging", "expense", "both"},
	{"Utilities", "Electricity, water, internet and phone", "expense", "both"},
	{"Rent & Mortgage", "Housing payments", "expense", "personal"},
	{"Office Supplies", "Stationery, equipment and software", "expense", "business"},
	{"Professional Services", "Legal, accounting and consulting", "expense", "business"},
	{"Shopping", "General merchandise", "expense", "personal"},
	{"Healthcare", "Medical, dental and pharmacy", "expense", "personal"},
	{"Entertainment", "Streaming, events and hobbies", "expense", "personal"},
	{"Loan Payments", "Loan, financing and credit repayments", "expense", "both"},
	{"Bank Fees", "Service charges and interest paid", "expense", "both"},
	{"Salary", "Employment income", "income", "personal"},
	{"Business Revenue", "Sales and client payments", "income", "business"},
	{"Interest Income", "Interest and dividends", "income", "both"},
	{"Refunds", "Returned purchases and reimbursements", "income", "both"},
}

func execAll(tx *sql.Tx, queries []string) error {
	for _, query := range queries {
		if _, err := tx.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}
	return nil
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Categories, rules and businesses",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS categories (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL,
					name_key TEXT NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					type TEXT NOT NULL CHECK (type IN ('system', 'user')),
					transaction_type TEXT NOT NULL CHECK (transaction_type IN ('income', 'expense')),
					usage_scope TEXT NOT NULL DEFAULT '',
					user_id TEXT,
					owner_key TEXT NOT NULL DEFAULT '',
					created_at DATETIME NOT NULL
				)`,
				`CREATE UNIQUE INDEX idx_categories_identity ON categories(name_key, owner_key, transaction_type)`,
				`CREATE INDEX idx_categories_user ON categories(user_id)`,

				`CREATE TABLE IF NOT EXISTS category_rules (
					seq INTEGER PRIMARY KEY AUTOINCREMENT,
					id TEXT NOT NULL UNIQUE,
					user_id TEXT NOT NULL,
					category_id TEXT NOT NULL REFERENCES categories(id),
					field TEXT NOT NULL CHECK (field IN ('merchantName', 'description')),
					match_type TEXT NOT NULL CHECK (match_type IN ('exact', 'contains', 'regex')),
					pattern TEXT NOT NULL,
					display_name TEXT NOT NULL DEFAULT '',
					created_at DATETIME NOT NULL
				)`,
				`CREATE INDEX idx_category_rules_user ON category_rules(user_id, seq)`,

				`CREATE TABLE IF NOT EXISTS businesses (
					id TEXT PRIMARY KEY,
					user_id TEXT NOT NULL,
					name TEXT NOT NULL,
					type TEXT NOT NULL CHECK (type IN ('business', 'contract')),
					tax_id TEXT NOT NULL DEFAULT '',
					address TEXT NOT NULL DEFAULT '',
					description TEXT NOT NULL DEFAULT '',
					created_at DATETIME NOT NULL
				)`,
				`CREATE INDEX idx_businesses_user ON businesses(user_id)`,
			})
		},
	},
	{
		Version:     2,
		Description: "Documents and transactions",
		Up: func(tx *sql.Tx) error {
			// business_id has no foreign key: deleting a business keeps history intact.
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS documents (
					id TEXT PRIMARY KEY,
					user_id TEXT NOT NULL,
					batch_item_id TEXT NOT NULL DEFAULT '',
					kind TEXT NOT NULL,
					file_name TEXT NOT NULL DEFAULT '',
					file_url TEXT NOT NULL DEFAULT '',
					content_hash TEXT NOT NULL,
					merchant_name TEXT NOT NULL DEFAULT '',
					merchant_key TEXT NOT NULL DEFAULT '',
					date TEXT NOT NULL DEFAULT '',
					amount TEXT NOT NULL DEFAULT '0',
					currency TEXT NOT NULL DEFAULT '',
					confidence REAL NOT NULL DEFAULT 0,
					is_excluded_from_totals INTEGER NOT NULL DEFAULT 0,
					created_at DATETIME NOT NULL
				)`,
				`CREATE INDEX idx_documents_hash ON documents(user_id, content_hash)`,
				`CREATE INDEX idx_documents_fingerprint ON documents(user_id, merchant_key, date)`,

				`CREATE TABLE IF NOT EXISTS transactions (
					id TEXT PRIMARY KEY,
					user_id TEXT NOT NULL,
					document_id TEXT NOT NULL DEFAULT '',
					account_id TEXT NOT NULL DEFAULT '',
					source TEXT NOT NULL,
					date TEXT NOT NULL,
					merchant_name TEXT NOT NULL DEFAULT '',
					merchant_key TEXT NOT NULL DEFAULT '',
					description TEXT NOT NULL DEFAULT '',
					amount TEXT NOT NULL,
					currency TEXT NOT NULL DEFAULT '',
					type TEXT NOT NULL CHECK (type IN ('income', 'expense')),
					category_id TEXT NOT NULL DEFAULT '',
					business_id TEXT NOT NULL DEFAULT '',
					hash TEXT NOT NULL,
					created_at DATETIME NOT NULL
				)`,
				`CREATE UNIQUE INDEX idx_transactions_hash ON transactions(user_id, hash)`,
				`CREATE INDEX idx_transactions_merchant ON transactions(user_id, merchant_key, date)`,
				`CREATE INDEX idx_transactions_document ON transactions(document_id)`,
			})
		},
	},
	{
		Version:     3,
		Description: "Import batches, items and activity log",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS import_batches (
					id TEXT PRIMARY KEY,
					user_id TEXT NOT NULL,
					import_type TEXT NOT NULL CHECK (import_type IN ('receipts', 'bank_statements', 'mixed')),
					status TEXT NOT NULL CHECK (status IN ('pending', 'processing', 'completed', 'failed', 'cancelled')),
					total_files INTEGER NOT NULL DEFAULT 0,
					processed_files INTEGER NOT NULL DEFAULT 0,
					successful_files INTEGER NOT NULL DEFAULT 0,
					failed_files INTEGER NOT NULL DEFAULT 0,
					duplicate_files INTEGER NOT NULL DEFAULT 0,
					currency TEXT NOT NULL DEFAULT '',
					default_business_id TEXT NOT NULL DEFAULT '',
					statement_type TEXT NOT NULL DEFAULT '',
					source_format TEXT NOT NULL DEFAULT '',
					date_from DATETIME,
					date_to DATETIME,
					created_at DATETIME NOT NULL,
					started_at DATETIME,
					completed_at DATETIME
				)`,
				`CREATE INDEX idx_import_batches_user ON import_batches(user_id, created_at)`,

				`CREATE TABLE IF NOT EXISTS import_batch_items (
					id TEXT PRIMARY KEY,
					batch_id TEXT NOT NULL REFERENCES import_batches(id),
					file_name TEXT NOT NULL,
					file_url TEXT NOT NULL,
					file_format TEXT NOT NULL DEFAULT '',
					item_order INTEGER NOT NULL DEFAULT 0,
					status TEXT NOT NULL CHECK (status IN ('pending', 'processing', 'completed', 'failed', 'duplicate', 'skipped')),
					retry_count INTEGER NOT NULL DEFAULT 0,
					document_id TEXT NOT NULL DEFAULT '',
					duplicate_of_document_id TEXT NOT NULL DEFAULT '',
					duplicate_match_type TEXT NOT NULL DEFAULT '',
					error_message TEXT NOT NULL DEFAULT '',
					error_code TEXT NOT NULL DEFAULT '',
					created_at DATETIME NOT NULL,
					updated_at DATETIME NOT NULL
				)`,
				`CREATE INDEX idx_import_batch_items_batch ON import_batch_items(batch_id, item_order)`,

				`CREATE TABLE IF NOT EXISTS activity_log (
					seq INTEGER PRIMARY KEY AUTOINCREMENT,
					id TEXT NOT NULL UNIQUE,
					batch_id TEXT NOT NULL,
					item_id TEXT NOT NULL DEFAULT '',
					type TEXT NOT NULL,
					file_name TEXT NOT NULL DEFAULT '',
					message TEXT NOT NULL DEFAULT '',
					duration_ms INTEGER NOT NULL DEFAULT 0,
					created_at DATETIME NOT NULL
				)`,
				`CREATE INDEX idx_activity_log_batch ON activity_log(batch_id, seq)`,
			})
		},
	},
	{
		Version:     4,
		Description: "Seed system categories",
		Up: func(tx *sql.Tx) error {
			stmt, err := tx.Prepare(`
				INSERT INTO categories (id, name, name_key, description, type, transaction_type, usage_scope, user_id, owner_key, created_at)
				VALUES (?, ?, ?, ?, 'system', ?, ?, NULL, '', ?)
				ON CONFLICT DO NOTHING`)
			if err != nil {
				return fmt.Errorf("failed to prepare seed statement: %w", err)
			}
			defer func() { _ = stmt.Close() }()

			now := time.Now().UTC()
			for _, c := range systemCategories {
				id := "system:" + strings.ReplaceAll(normalizeKey(c.name), " ", "-")
				if _, err := stmt.Exec(id, c.name, normalizeKey(c.name), c.description, c.transactionType, c.usageScope, now); err != nil {
					return fmt.Errorf("failed to seed category %q: %w", c.name, err)
				}
			}
			return nil
		},
	},
}

// Migrate runs all pending migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	var currentVersion int
	err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		s.logger.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	var finalVersion int
	err = s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&finalVersion)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}

	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}

// SchemaVersion returns the version recorded in PRAGMA user_version.
func (s *SQLiteStorage) SchemaVersion(ctx context.Context) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return version, nil
}
