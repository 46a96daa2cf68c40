// Package store is the durable layer: the per-user allowlist, the
// append-only audit log, capability approval hashes, and the data the
// builtin operation handlers mutate.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"switchboard/internal/domain"

	_ "modernc.org/sqlite"
)

// SQLiteStore backs the allowlist, audit log, and approval store.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Set connection pool (single connection for SQLite)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{db: db, logger: logger}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS capability_approvals (
		name          TEXT PRIMARY KEY,
		approved_hash TEXT NOT NULL,
		approved_at   DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS allowlist (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id        TEXT NOT NULL,
		operation_kind TEXT NOT NULL,
		granted_at     DATETIME NOT NULL,
		revoked_at     DATETIME,
		UNIQUE(user_id, operation_kind)
	);

	CREATE TABLE IF NOT EXISTS audit_log (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		request_id     TEXT,
		user_id        TEXT NOT NULL,
		capability     TEXT,
		operation_kind TEXT,
		stage          TEXT NOT NULL,
		operation      TEXT,
		parameters     TEXT,
		outcome        TEXT NOT NULL,
		error_detail   TEXT,
		created_at     DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_audit_user_time ON audit_log(user_id, created_at);

	CREATE TABLE IF NOT EXISTS list_items (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id    TEXT NOT NULL,
		list_name  TEXT NOT NULL,
		item       TEXT NOT NULL,
		added_at   DATETIME DEFAULT CURRENT_TIMESTAMP,
		removed_at DATETIME
	);
	CREATE INDEX IF NOT EXISTS idx_list_items ON list_items(user_id, list_name);

	CREATE TABLE IF NOT EXISTS reminders (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id    TEXT NOT NULL,
		text       TEXT NOT NULL,
		due_at     DATETIME,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// --- capability.ApprovalStore ---

func (s *SQLiteStore) ApprovedHash(ctx context.Context, name string) (string, error) {
	var hash string
	err := s.db.QueryRowContext(ctx,
		`SELECT approved_hash FROM capability_approvals WHERE name = ?`, name,
	).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return hash, nil
}

func (s *SQLiteStore) RecordApproval(ctx context.Context, name string, hash string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO capability_approvals (name, approved_hash, approved_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET approved_hash = excluded.approved_hash, approved_at = excluded.approved_at`,
		name, hash, time.Now(),
	)
	return err
}

// --- domain.Allowlist ---

// Granted reports whether a non-revoked grant exists. Reads always see
// the most recently committed write: a revocation takes effect on the
// very next check.
func (s *SQLiteStore) Granted(ctx context.Context, userID string, kind domain.OperationKind) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM allowlist
		 WHERE user_id = ? AND operation_kind = ? AND revoked_at IS NULL`,
		userID, kind,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("allowlist check: %w", err)
	}
	return count > 0, nil
}

func (s *SQLiteStore) Grant(ctx context.Context, userID string, kind domain.OperationKind) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO allowlist (user_id, operation_kind, granted_at, revoked_at)
		 VALUES (?, ?, ?, NULL)
		 ON CONFLICT(user_id, operation_kind) DO UPDATE SET granted_at = excluded.granted_at, revoked_at = NULL`,
		userID, kind, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("allowlist grant: %w", err)
	}
	s.logger.Info("allowlist grant recorded", "user_id", userID, "kind", kind)
	return nil
}

func (s *SQLiteStore) Revoke(ctx context.Context, userID string, kind domain.OperationKind) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE allowlist SET revoked_at = ? WHERE user_id = ? AND operation_kind = ? AND revoked_at IS NULL`,
		time.Now(), userID, kind,
	)
	if err != nil {
		return fmt.Errorf("allowlist revoke: %w", err)
	}
	s.logger.Info("allowlist grant revoked", "user_id", userID, "kind", kind)
	return nil
}

func (s *SQLiteStore) Entries(ctx context.Context, userID string) ([]domain.AllowlistEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, operation_kind, granted_at, revoked_at
		 FROM allowlist WHERE user_id = ? ORDER BY granted_at`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.AllowlistEntry
	for rows.Next() {
		var e domain.AllowlistEntry
		var revoked sql.NullTime
		if err := rows.Scan(&e.UserID, &e.Kind, &e.GrantedAt, &revoked); err != nil {
			return nil, err
		}
		if revoked.Valid {
			e.RevokedAt = &revoked.Time
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// --- domain.AuditLogger / domain.AuditReader ---

// Record appends one audit entry. Append-only: duplicates and
// out-of-order timestamps are accepted without error.
func (s *SQLiteStore) Record(ctx context.Context, rec domain.AuditRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	var params []byte
	if len(rec.Params) > 0 {
		params, _ = json.Marshal(rec.Params)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (request_id, user_id, capability, operation_kind, stage, operation, parameters, outcome, error_detail, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RequestID, rec.UserID, rec.Capability, rec.Kind, rec.Stage, rec.Operation,
		string(params), rec.Outcome, rec.ErrorDetail, rec.CreatedAt,
	)
	return err
}

func (s *SQLiteStore) Query(ctx context.Context, userID string, since time.Time) ([]domain.AuditRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT request_id, user_id, capability, operation_kind, stage, operation, parameters, outcome, error_detail, created_at
		 FROM audit_log
		 WHERE user_id = ? AND created_at >= ?
		 ORDER BY created_at, id`,
		userID, since,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.AuditRecord
	for rows.Next() {
		var rec domain.AuditRecord
		var params sql.NullString
		if err := rows.Scan(&rec.RequestID, &rec.UserID, &rec.Capability, &rec.Kind,
			&rec.Stage, &rec.Operation, &params, &rec.Outcome, &rec.ErrorDetail, &rec.CreatedAt); err != nil {
			return nil, err
		}
		if params.Valid && params.String != "" {
			_ = json.Unmarshal([]byte(params.String), &rec.Params)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// --- list and reminder data for the builtin operation handlers ---

func (s *SQLiteStore) AddListItem(ctx context.Context, userID, listName, item string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO list_items (user_id, list_name, item, added_at) VALUES (?, ?, ?, ?)`,
		userID, listName, item, time.Now(),
	)
	return err
}

// RemoveListItem marks matching items removed; returns how many.
func (s *SQLiteStore) RemoveListItem(ctx context.Context, userID, listName, item string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE list_items SET removed_at = ?
		 WHERE user_id = ? AND list_name = ? AND item = ? COLLATE NOCASE AND removed_at IS NULL`,
		time.Now(), userID, listName, item,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) GetList(ctx context.Context, userID, listName string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT item FROM list_items
		 WHERE user_id = ? AND list_name = ? AND removed_at IS NULL
		 ORDER BY added_at, id`,
		userID, listName,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []string
	for rows.Next() {
		var item string
		if err := rows.Scan(&item); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *SQLiteStore) AddReminder(ctx context.Context, userID, text string, dueAt *time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reminders (user_id, text, due_at, created_at) VALUES (?, ?, ?, ?)`,
		userID, text, dueAt, time.Now(),
	)
	return err
}

// Reminder is one stored reminder row.
type Reminder struct {
	ID        int64
	Text      string
	DueAt     *time.Time
	CreatedAt time.Time
}

func (s *SQLiteStore) ListReminders(ctx context.Context, userID string) ([]Reminder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, text, due_at, created_at FROM reminders
		 WHERE user_id = ? ORDER BY created_at, id`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reminders []Reminder
	for rows.Next() {
		var r Reminder
		var due sql.NullTime
		if err := rows.Scan(&r.ID, &r.Text, &due, &r.CreatedAt); err != nil {
			return nil, err
		}
		if due.Valid {
			r.DueAt = &due.Time
		}
		reminders = append(reminders, r)
	}
	return reminders, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
