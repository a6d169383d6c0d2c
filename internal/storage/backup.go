package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const backupTimeLayout = "2006-01-02-150405"

// Backup errors.
var (
	ErrBackupNotFound   = errors.New("backup not found")
	ErrBackupExists     = errors.New("backup already exists")
	ErrBackupCorrupted  = errors.New("backup integrity check failed")
	ErrBackupInMemory   = errors.New("in-memory databases cannot be backed up")
	errInvalidBackupTag = errors.New("invalid backup name: cannot contain path separators")
)

// Backup describes one snapshot of the database file.
type Backup struct {
	CreatedAt     time.Time      `json:"created_at"`
	RowCounts     map[string]int `json:"row_counts"`
	ID            string         `json:"id"`
	Reason        string         `json:"reason,omitempty"`
	Size          int64          `json:"size"`
	SchemaVersion int            `json:"schema_version"`
	Auto          bool           `json:"auto"`
}

// BackupDir returns the directory snapshots of dbPath are written to.
func BackupDir(dbPath string) string {
	return filepath.Join(filepath.Dir(dbPath), "backups")
}

// CreateBackup snapshots the live database with VACUUM INTO. An empty name
// generates one from the current time.
func (s *SQLiteStorage) CreateBackup(ctx context.Context, name, reason string) (*Backup, error) {
	return s.createBackup(ctx, name, reason, false)
}

// AutoBackup snapshots the database before a risky operation and keeps only
// the newest keep automatic snapshots.
func (s *SQLiteStorage) AutoBackup(ctx context.Context, operation string, keep int) (*Backup, error) {
	name := fmt.Sprintf("auto-%s-%s", operation, s.now().Format(backupTimeLayout))
	b, err := s.createBackup(ctx, name, "before "+operation, true)
	if err != nil {
		return nil, err
	}
	if err := pruneAutoBackups(s.dbPath, keep); err != nil {
		s.logger.Warn("Failed to prune automatic backups", "error", err)
	}
	return b, nil
}

func (s *SQLiteStorage) createBackup(ctx context.Context, name, reason string, auto bool) (*Backup, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if s.dbPath == ":memory:" || strings.HasPrefix(s.dbPath, "file:") {
		return nil, ErrBackupInMemory
	}
	if name == "" {
		name = "backup-" + s.now().Format(backupTimeLayout)
	}
	if err := validateBackupName(name); err != nil {
		return nil, err
	}

	dir := BackupDir(s.dbPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}
	dest, err := filepath.Abs(filepath.Join(dir, name+".db"))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve backup path: %w", err)
	}
	if _, err := os.Stat(dest); err == nil {
		return nil, ErrBackupExists
	}

	version, err := s.SchemaVersion(ctx)
	if err != nil {
		return nil, err
	}
	counts, err := s.rowCounts(ctx)
	if err != nil {
		return nil, err
	}

	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", dest); err != nil {
		return nil, fmt.Errorf("failed to write backup: %w", err)
	}
	info, err := os.Stat(dest)
	if err != nil {
		return nil, fmt.Errorf("failed to stat backup: %w", err)
	}

	b := &Backup{
		ID:            name,
		CreatedAt:     s.now(),
		Reason:        reason,
		Size:          info.Size(),
		RowCounts:     counts,
		SchemaVersion: version,
		Auto:          auto,
	}
	if err := writeBackupMeta(dir, b); err != nil {
		if rmErr := os.Remove(dest); rmErr != nil {
			s.logger.Error("Failed to remove backup after metadata failure", "error", rmErr)
		}
		return nil, err
	}
	s.logger.Info("Database backup created", "backup", name, "size", b.Size, "schema_version", version)
	return b, nil
}

func (s *SQLiteStorage) rowCounts(ctx context.Context) (map[string]int, error) {
	counts := make(map[string]int)
	for _, table := range []string{"transactions", "categories", "businesses", "import_batches"} {
		var n int
		// #nosec G202 - table names come from the fixed list above
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", table, err)
		}
		counts[table] = n
	}
	return counts, nil
}

// ListBackups returns the snapshots of dbPath, newest first.
func ListBackups(dbPath string) ([]Backup, error) {
	dir := BackupDir(dbPath)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	var backups []Backup
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".meta.json") {
			continue
		}
		b, err := readBackupMeta(filepath.Join(dir, e.Name()))
		if err != nil {
			slog.Warn("Skipping unreadable backup metadata", "file", e.Name(), "error", err)
			continue
		}
		backups = append(backups, *b)
	}
	sort.Slice(backups, func(i, j int) bool {
		return backups[i].CreatedAt.After(backups[j].CreatedAt)
	})
	return backups, nil
}

// RestoreBackup replaces the database at dbPath with the named snapshot. No
// storage may have dbPath open while it runs. The replaced file is kept next
// to the database until the restore succeeds.
func RestoreBackup(dbPath, name string) error {
	if err := validateBackupName(name); err != nil {
		return err
	}
	src := filepath.Join(BackupDir(dbPath), name+".db")
	if _, err := os.Stat(src); err != nil {
		if os.IsNotExist(err) {
			return ErrBackupNotFound
		}
		return fmt.Errorf("failed to access backup: %w", err)
	}
	if err := checkIntegrity(src); err != nil {
		return err
	}

	previous := dbPath + ".pre-restore"
	if err := copyFile(dbPath, previous); err != nil {
		return fmt.Errorf("failed to preserve current database: %w", err)
	}
	if err := copyFile(src, dbPath); err != nil {
		if rbErr := copyFile(previous, dbPath); rbErr != nil {
			slog.Error("Failed to roll back after restore failure", "error", rbErr)
		}
		return fmt.Errorf("failed to restore backup: %w", err)
	}
	// Stale WAL pages belong to the replaced database.
	for _, suffix := range []string{"-wal", "-shm"} {
		if err := os.Remove(dbPath + suffix); err != nil && !os.IsNotExist(err) {
			slog.Warn("Failed to remove stale journal file", "file", dbPath+suffix, "error", err)
		}
	}
	if err := os.Remove(previous); err != nil {
		slog.Warn("Failed to remove pre-restore copy", "file", previous, "error", err)
	}
	return nil
}

// DeleteBackup removes a snapshot and its metadata.
func DeleteBackup(dbPath, name string) error {
	if err := validateBackupName(name); err != nil {
		return err
	}
	dir := BackupDir(dbPath)
	if err := os.Remove(filepath.Join(dir, name+".db")); err != nil {
		if os.IsNotExist(err) {
			return ErrBackupNotFound
		}
		return fmt.Errorf("failed to delete backup: %w", err)
	}
	if err := os.Remove(filepath.Join(dir, name+".meta.json")); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete backup metadata: %w", err)
	}
	return nil
}

func pruneAutoBackups(dbPath string, keep int) error {
	backups, err := ListBackups(dbPath)
	if err != nil {
		return err
	}
	seen := 0
	for _, b := range backups {
		if !b.Auto {
			continue
		}
		seen++
		if seen > keep {
			if err := DeleteBackup(dbPath, b.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateBackupName(name string) error {
	if strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return errInvalidBackupTag
	}
	return nil
}

func checkIntegrity(path string) error {
	db, err := sql.Open("sqlite3", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("failed to open backup: %w", err)
	}
	defer func() { _ = db.Close() }()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil || result != "ok" {
		return ErrBackupCorrupted
	}
	return nil
}

func writeBackupMeta(dir string, b *Backup) error {
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode backup metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, b.ID+".meta.json"), data, 0600); err != nil {
		return fmt.Errorf("failed to write backup metadata: %w", err)
	}
	return nil
}

func readBackupMeta(path string) (*Backup, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path comes from the backup directory listing
	if err != nil {
		return nil, err
	}
	var b Backup
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src) // #nosec G304 - src is the database or one of its backups
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	tmp := dst + ".tmp"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600) // #nosec G304
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}
