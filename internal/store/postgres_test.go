package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/editais-cli/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS presets`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SavePreset_Upsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO presets .* ON CONFLICT \(name\) DO UPDATE`).
		WithArgs("obras", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.SavePreset(context.Background(), testPreset("obras")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetPreset(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	payload := []byte(`{"palavra_chave":"merenda","status_label":"Todos","uf":"","municipios":[{"codigo_pncp":"2611606","nome":"Recife","uf":"PE"}]}`)
	mock.ExpectQuery(`SELECT payload FROM presets WHERE name = \$1`).
		WithArgs("merenda").
		WillReturnRows(pgxmock.NewRows([]string{"payload"}).AddRow(payload))

	got, err := s.GetPreset(context.Background(), "merenda")
	require.NoError(t, err)
	assert.Equal(t, "merenda", got.Name)
	assert.Equal(t, "Todos", got.StatusLabel)
	require.Len(t, got.Selections, 1)
	assert.Equal(t, "Recife", got.Selections[0].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetPreset_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT payload FROM presets`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetPreset(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPresetNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeletePreset_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM presets WHERE name = \$1`).
		WithArgs("missing").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	err := s.DeletePreset(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPresetNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListPresets(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT name, payload FROM presets ORDER BY name`).
		WillReturnRows(pgxmock.NewRows([]string{"name", "payload"}).
			AddRow("a", []byte(`{"palavra_chave":"x","municipios":[]}`)).
			AddRow("b", []byte(`{"palavra_chave":"y","municipios":[]}`)))

	got, err := s.ListPresets(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[1].Name)
	assert.Equal(t, "y", got[1].Keyword)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ImportPresets_BulkUpsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_presets"`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_presets"}, []string{"name", "payload", "updated_at"}).
		WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "presets"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	n, err := s.ImportPresets(context.Background(), []model.SavedSearch{
		testPreset("a"), testPreset("b"), testPreset("a"), testPreset(" "),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO search_runs`).
		WithArgs(pgxmock.AnyArg(), "sig1", pgxmock.AnyArg(), "running", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	run, err := s.CreateRun(context.Background(), "sig1", testPreset("x").Selections)
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusRunning, run.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CompleteRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE search_runs SET status`).
		WithArgs("complete", 10, 8, 0, "", pgxmock.AnyArg(), "run-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.CompleteRun(context.Background(), "run-1", model.RunOutcome{
		Status: model.RunStatusComplete, Collected: 10, Records: 8,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRunNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRuns(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	finished := started.Add(time.Minute)
	mock.ExpectQuery(`FROM search_runs WHERE true AND status = \$1 ORDER BY started_at DESC LIMIT \$2`).
		WithArgs("partial", DefaultRunLimit).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "signature", "selections", "status", "collected", "records", "warnings", "error", "started_at", "finished_at",
		}).AddRow("run-1", "sig1", []byte(`[{"codigo_pncp":"2611606","nome":"Recife","uf":"PE"}]`),
			"partial", 12, 10, 1, "", started, &finished))

	runs, err := s.ListRuns(context.Background(), RunFilter{Status: model.RunStatusPartial})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].ID)
	assert.Equal(t, model.RunStatusPartial, runs[0].Status)
	assert.Equal(t, "Recife", runs[0].Selections[0].Name)
	assert.Equal(t, 10, runs[0].Records)
	require.NotNil(t, runs[0].FinishedAt)
	assert.True(t, finished.Equal(*runs[0].FinishedAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}
