package history

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an open Postgres handle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// OpenPostgresStore opens a connection to the given DSN and verifies it.
// The execution_history table is expected to exist (managed migration).
func OpenPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("history: open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: ping postgres: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// Close releases the underlying handle.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) Append(ctx context.Context, rec Record) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO execution_history (id, contract_id, passed, violations, execution_time_ms, result, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, rec.ContractID, rec.Passed, rec.Violations, rec.ExecutionTimeMs, []byte(rec.Result), rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("history: append: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByContract(ctx context.Context, contractID string, limit int) ([]Record, error) {
	query := `SELECT id, contract_id, passed, violations, execution_time_ms, result, created_at
		 FROM execution_history WHERE contract_id = $1 ORDER BY created_at DESC`
	args := []any{contractID}
	if limit > 0 {
		query += " LIMIT $2"
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
