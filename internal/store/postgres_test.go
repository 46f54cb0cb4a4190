package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bricodata/retail-cli/internal/config"
	"github.com/bricodata/retail-cli/internal/model"
)

func testStoreConfig(t *testing.T) config.StoreConfig {
	t.Helper()
	return config.StoreConfig{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "runs.db"),
	}
}

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresCreateRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO training_runs`).
		WithArgs(pgxmock.AnyArg(), "churn", "running", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	run, err := s.CreateRun(context.Background(), model.RunKindChurn)
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusRunning, run.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCompleteRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	metrics := json.RawMessage(`{"days":120}`)
	mock.ExpectExec(`UPDATE training_runs SET status = \$1, metrics = \$2`).
		WithArgs("complete", []byte(metrics), "models/sales_model.json", pgxmock.AnyArg(), "run-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.CompleteRun(context.Background(), "run-1", metrics, "models/sales_model.json")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCompleteRunNotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE training_runs SET status = \$1, metrics = \$2`).
		WithArgs("complete", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.CompleteRun(context.Background(), "missing", json.RawMessage(`{}`), "")
	require.Error(t, err)
	assert.True(t, eris.Is(err, model.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetRunNotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, kind, status, metrics, artifact_path, error, created_at, completed_at`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetRun(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, eris.Is(err, model.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	now := time.Now().UTC()
	done := now.Add(time.Minute)
	artifact := "models/churn_model.json"
	rows := pgxmock.NewRows([]string{"id", "kind", "status", "metrics", "artifact_path", "error", "created_at", "completed_at"}).
		AddRow("run-9", model.RunKind("churn"), model.RunStatus("complete"), []byte(`{"test_auc":0.93}`), &artifact, (*string)(nil), now, &done)

	mock.ExpectQuery(`SELECT id, kind, status, metrics, artifact_path, error, created_at, completed_at`).
		WithArgs("run-9").
		WillReturnRows(rows)

	run, err := s.GetRun(context.Background(), "run-9")
	require.NoError(t, err)
	assert.Equal(t, model.RunKindChurn, run.Kind)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	assert.Equal(t, artifact, run.ArtifactPath)
	require.NotNil(t, run.CompletedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresListRuns(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	now := time.Now().UTC()
	rows := pgxmock.NewRows([]string{"id", "kind", "status", "metrics", "artifact_path", "error", "created_at", "completed_at"}).
		AddRow("a", model.RunKind("churn"), model.RunStatus("running"), []byte(nil), (*string)(nil), (*string)(nil), now, (*time.Time)(nil)).
		AddRow("b", model.RunKind("churn"), model.RunStatus("failed"), []byte(nil), (*string)(nil), strPtr("boom"), now, &now)

	mock.ExpectQuery(`SELECT id, kind, status, metrics, artifact_path, error, created_at, completed_at`).
		WithArgs("churn", 100).
		WillReturnRows(rows)

	runs, err := s.ListRuns(context.Background(), RunFilter{Kind: model.RunKindChurn})
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "boom", runs[1].Error)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func strPtr(s string) *string { return &s }
