package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/editais-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS presets (
	name       TEXT PRIMARY KEY,
	payload    TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS search_runs (
	id          TEXT PRIMARY KEY,
	signature   TEXT NOT NULL,
	selections  TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'running',
	collected   INTEGER NOT NULL DEFAULT 0,
	records     INTEGER NOT NULL DEFAULT 0,
	warnings    INTEGER NOT NULL DEFAULT 0,
	error       TEXT NOT NULL DEFAULT '',
	started_at  DATETIME NOT NULL,
	finished_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_search_runs_signature ON search_runs(signature);
CREATE INDEX IF NOT EXISTS idx_search_runs_started_at ON search_runs(started_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const sqliteUpsertPreset = `INSERT INTO presets (name, payload, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(name) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`

func (s *SQLiteStore) SavePreset(ctx context.Context, preset model.SavedSearch) error {
	preset.Name = strings.TrimSpace(preset.Name)
	if err := validName(preset.Name); err != nil {
		return err
	}
	payload, err := json.Marshal(preset)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal preset")
	}
	_, err = s.db.ExecContext(ctx, sqliteUpsertPreset, preset.Name, string(payload), time.Now().UTC())
	return eris.Wrapf(err, "sqlite: save preset %s", preset.Name)
}

func (s *SQLiteStore) GetPreset(ctx context.Context, name string) (*model.SavedSearch, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM presets WHERE name = ?`, name).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrPresetNotFound, "sqlite: preset %q", name)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get preset %s", name)
	}
	return decodePreset(name, []byte(payload))
}

func (s *SQLiteStore) ListPresets(ctx context.Context) ([]model.SavedSearch, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, payload FROM presets ORDER BY name`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list presets")
	}
	defer rows.Close()

	out := []model.SavedSearch{}
	for rows.Next() {
		var name, payload string
		if err := rows.Scan(&name, &payload); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan preset")
		}
		p, err := decodePreset(name, []byte(payload))
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list presets iterate")
}

func (s *SQLiteStore) DeletePreset(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM presets WHERE name = ?`, name)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete preset %s", name)
	}
	return checkRowsAffected(res, ErrPresetNotFound, name)
}

func (s *SQLiteStore) ImportPresets(ctx context.Context, presets []model.SavedSearch) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin import")
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	n := 0
	for _, p := range presets {
		p.Name = strings.TrimSpace(p.Name)
		if p.Name == "" {
			continue
		}
		payload, err := json.Marshal(p)
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: marshal preset")
		}
		if _, err := tx.ExecContext(ctx, sqliteUpsertPreset, p.Name, string(payload), now); err != nil {
			return 0, eris.Wrapf(err, "sqlite: import preset %s", p.Name)
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit import")
	}
	return n, nil
}

func (s *SQLiteStore) CreateRun(ctx context.Context, signature string, sels []model.Selection) (*model.SearchRun, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	selJSON, err := json.Marshal(sels)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal selections")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO search_runs (id, signature, selections, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		id, signature, string(selJSON), string(model.RunStatusRunning), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.SearchRun{
		ID:         id,
		Signature:  signature,
		Selections: sels,
		Status:     model.RunStatusRunning,
		StartedAt:  now,
	}, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, out model.RunOutcome) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE search_runs SET status = ?, collected = ?, records = ?, warnings = ?, error = ?, finished_at = ? WHERE id = ?`,
		string(out.Status), out.Collected, out.Records, out.Warnings, out.Error, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return checkRowsAffected(res, ErrRunNotFound, runID)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.SearchRun, error) {
	query := `SELECT id, signature, selections, status, collected, records, warnings, error, started_at, finished_at
		FROM search_runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Signature != "" {
		query += ` AND signature = ?`
		args = append(args, filter.Signature)
	}
	query += ` ORDER BY started_at DESC, rowid DESC LIMIT ?`
	args = append(args, limitOf(filter))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.SearchRun
	for rows.Next() {
		var r model.SearchRun
		var selJSON string
		var finished sql.NullTime
		if err := rows.Scan(&r.ID, &r.Signature, &selJSON, &r.Status, &r.Collected, &r.Records,
			&r.Warnings, &r.Error, &r.StartedAt, &finished); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		if err := json.Unmarshal([]byte(selJSON), &r.Selections); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal selections")
		}
		if finished.Valid {
			t := finished.Time
			r.FinishedAt = &t
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

// helpers

func checkRowsAffected(res sql.Result, notFound error, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(notFound, "store: %s", id)
	}
	return nil
}

func decodePreset(name string, payload []byte) (*model.SavedSearch, error) {
	var p model.SavedSearch
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, eris.Wrapf(err, "store: decode preset %s", name)
	}
	p.Name = name
	return &p, nil
}
