package history

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store on a local SQLite file. It is the default
// backend for single-host CI runs.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps an open SQLite handle and runs migrations.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

// OpenSQLiteStore opens (or creates) the database file at path.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open sqlite %s: %w", path, err)
	}
	return NewSQLiteStore(db)
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS execution_history (
		id TEXT PRIMARY KEY,
		contract_id TEXT NOT NULL,
		passed INTEGER NOT NULL,
		violations INTEGER NOT NULL,
		execution_time_ms INTEGER NOT NULL,
		result JSON,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_history_contract ON execution_history (contract_id, created_at);
	`)
	if err != nil {
		return fmt.Errorf("history: migrate: %w", err)
	}
	return nil
}

// Close closes the underlying handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Append(ctx context.Context, rec Record) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO execution_history (id, contract_id, passed, violations, execution_time_ms, result, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.ContractID, rec.Passed, rec.Violations, rec.ExecutionTimeMs, []byte(rec.Result), rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("history: append: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListByContract(ctx context.Context, contractID string, limit int) ([]Record, error) {
	query := `SELECT id, contract_id, passed, violations, execution_time_ms, result, created_at
		 FROM execution_history WHERE contract_id = ? ORDER BY created_at DESC`
	args := []any{contractID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("history: list: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var result []byte
		if err := rows.Scan(&rec.ID, &rec.ContractID, &rec.Passed, &rec.Violations,
			&rec.ExecutionTimeMs, &result, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		rec.Result = result
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: rows: %w", err)
	}
	return out, nil
}
