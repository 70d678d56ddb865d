// Package ledger persists extraction records and the processed-email ledger in
// an embedded SQLite database, and exports them to CSV and XLSX.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/zeroinbox/mailsift/constants"
)

const schema = `
CREATE TABLE IF NOT EXISTS processed (
	email_id     TEXT NOT NULL,
	scope        TEXT NOT NULL,
	processed_at TEXT NOT NULL,
	PRIMARY KEY (email_id, scope)
);
CREATE TABLE IF NOT EXISTS records (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	email_id   TEXT NOT NULL,
	scope      TEXT NOT NULL,
	payload    TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_records_scope ON records (scope);
`

// Ledger is the single persistence surface of the pipeline. Rows are stored as
// JSON column maps so heterogeneous record shapes share one table.
type Ledger struct {
	db  *sql.DB
	log *slog.Logger
}

// Open creates the database file (and its directory) if needed and ensures the
// schema exists.
func Open(path string, logger *slog.Logger) (*Ledger, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create ledger dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply ledger schema: %w", err)
	}
	logger.Debug("ledger.open", "path", path)
	return &Ledger{db: db, log: logger}, nil
}

func (l *Ledger) Close() error {
	return l.db.Close()
}

// IsProcessed reports whether the email was already handled for the scope.
func (l *Ledger) IsProcessed(ctx context.Context, emailID string, scope constants.Scope) (bool, error) {
	var one int
	err := l.db.QueryRowContext(ctx,
		`SELECT 1 FROM processed WHERE email_id = ? AND scope = ?`, emailID, string(scope)).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("ledger lookup: %w", err)
	}
	return true, nil
}

// Persist stores the record rows and marks the email processed for the scope,
// atomically. INSERT OR IGNORE on the ledger row makes a replayed email a
// no-op at the mark level; the surrounding transaction guarantees rows and
// mark land together or not at all.
func (l *Ledger) Persist(ctx context.Context, emailID string, scope constants.Scope, rows []map[string]string) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ledger begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(time.RFC3339)
	for _, row := range rows {
		payload, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("ledger marshal row: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO records (email_id, scope, payload, created_at) VALUES (?, ?, ?, ?)`,
			emailID, string(scope), string(payload), now); err != nil {
			return fmt.Errorf("ledger insert record: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO processed (email_id, scope, processed_at) VALUES (?, ?, ?)`,
		emailID, string(scope), now); err != nil {
		return fmt.Errorf("ledger mark processed: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("ledger commit: %w", err)
	}

	l.log.Debug("ledger.persist", "email_id", emailID, "scope", string(scope), "rows", len(rows))
	return nil
}

// Rows returns every stored row for a scope in insertion order.
func (l *Ledger) Rows(ctx context.Context, scope constants.Scope) ([]map[string]string, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT payload FROM records WHERE scope = ? ORDER BY id`, string(scope))
	if err != nil {
		return nil, fmt.Errorf("ledger query rows: %w", err)
	}
	defer rows.Close()

	var out []map[string]string
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("ledger scan row: %w", err)
		}
		m := map[string]string{}
		if err := json.Unmarshal([]byte(payload), &m); err != nil {
			return nil, fmt.Errorf("ledger decode row: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// FindRows returns the stored rows for one (email, scope) pair in insertion
// order. Used to recover a prior run's categorization for the follow-up lanes.
func (l *Ledger) FindRows(ctx context.Context, emailID string, scope constants.Scope) ([]map[string]string, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT payload FROM records WHERE email_id = ? AND scope = ? ORDER BY id`, emailID, string(scope))
	if err != nil {
		return nil, fmt.Errorf("ledger find rows: %w", err)
	}
	defer rows.Close()

	var out []map[string]string
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("ledger scan row: %w", err)
		}
		m := map[string]string{}
		if err := json.Unmarshal([]byte(payload), &m); err != nil {
			return nil, fmt.Errorf("ledger decode row: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Reset forgets a scope entirely: its records and its processed marks. The
// next run re-extracts everything in that scope.
func (l *Ledger) Reset(ctx context.Context, scope constants.Scope) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ledger begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE scope = ?`, string(scope)); err != nil {
		return fmt.Errorf("ledger reset records: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM processed WHERE scope = ?`, string(scope)); err != nil {
		return fmt.Errorf("ledger reset processed: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("ledger commit: %w", err)
	}

	l.log.Info("ledger.reset", "scope", string(scope))
	return nil
}
