// Package history persists contract execution results for CI trend analysis.
// The runtime engine works without a store; when one is configured, every
// result is appended after the execution protocol completes.
package history

import (
	"context"
	"encoding/json"
	"time"
)

// Record is one persisted execution result.
type Record struct {
	ID              string          `json:"id"`
	ContractID      string          `json:"contract_id"`
	Passed          bool            `json:"passed"`
	Violations      int             `json:"violations"`
	ExecutionTimeMs int64           `json:"execution_time_ms"`
	Result          json.RawMessage `json:"result"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Store is the persistence interface for execution results.
type Store interface {
	// Append stores one record.
	Append(ctx context.Context, rec Record) error

	// ListByContract returns the most recent records for a contract,
	// newest first, bounded by limit (0 means no bound).
	ListByContract(ctx context.Context, contractID string, limit int) ([]Record, error)
}
