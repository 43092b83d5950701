package history

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecord(id, contractID string) Record {
	return Record{
		ID:              id,
		ContractID:      contractID,
		Passed:          true,
		Violations:      0,
		ExecutionTimeMs: 12,
		Result:          json.RawMessage(`{"contract_id":"` + contractID + `"}`),
		CreatedAt:       time.Now().UTC(),
	}
}

func TestMemoryStore_AppendAndList(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Append(ctx, sampleRecord(fmt.Sprintf("r%d", i), "c1")))
	}
	require.NoError(t, s.Append(ctx, sampleRecord("other", "c2")))

	recs, err := s.ListByContract(ctx, "c1", 0)
	require.NoError(t, err)
	require.Len(t, recs, 5)
	require.Equal(t, "r4", recs[0].ID, "newest first")

	recs, err = s.ListByContract(ctx, "c1", 2)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	recs, err = s.ListByContract(ctx, "unknown", 0)
	require.NoError(t, err)
	require.Empty(t, recs)
}

func TestPostgresStore_Append(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewPostgresStore(db)
	rec := sampleRecord("r1", "c1")

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO execution_history")).
		WithArgs(rec.ID, rec.ContractID, rec.Passed, rec.Violations, rec.ExecutionTimeMs, []byte(rec.Result), rec.CreatedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))

	assert.NoError(t, s.Append(context.Background(), rec))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListByContract(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewPostgresStore(db)
	now := time.Now().UTC()

	rows := sqlmock.NewRows([]string{"id", "contract_id", "passed", "violations", "execution_time_ms", "result", "created_at"}).
		AddRow("r2", "c1", true, 0, int64(8), []byte(`{}`), now).
		AddRow("r1", "c1", false, 2, int64(40), []byte(`{}`), now.Add(-time.Minute))

	mock.ExpectQuery(regexp.QuoteMeta("FROM execution_history WHERE contract_id = $1")).
		WithArgs("c1", 10).
		WillReturnRows(rows)

	recs, err := s.ListByContract(context.Background(), "c1", 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "r2", recs[0].ID)
	assert.False(t, recs[1].Passed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	s, err := OpenSQLiteStore(t.TempDir() + "/history.db")
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.Append(ctx, sampleRecord("r1", "c1")))
	require.NoError(t, s.Append(ctx, sampleRecord("r2", "c1")))

	recs, err := s.ListByContract(ctx, "c1", 0)
	require.NoError(t, err)
	require.Len(t, recs, 2)
}
