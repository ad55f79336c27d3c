package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/editais-cli/internal/db"
	"github.com/sells-group/editais-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const (
	pgUpsertPreset = `INSERT INTO presets (name, payload, updated_at) VALUES ($1, $2, $3)
	ON CONFLICT (name) DO UPDATE SET payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at`
	pgGetPreset   = `SELECT payload FROM presets WHERE name = $1`
	pgInsertRun   = `INSERT INTO search_runs (id, signature, selections, status, started_at) VALUES ($1, $2, $3, $4, $5)`
	pgCompleteRun = `UPDATE search_runs SET status = $1, collected = $2, records = $3, warnings = $4, error = $5, finished_at = $6 WHERE id = $7`
)

// preparedStatements are prepared on each new connection.
var preparedStatements = map[string]string{
	"upsert_preset": pgUpsertPreset,
	"get_preset":    pgGetPreset,
	"insert_run":    pgInsertRun,
	"complete_run":  pgCompleteRun,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS presets (
	name       TEXT PRIMARY KEY,
	payload    JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS search_runs (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	signature   TEXT NOT NULL,
	selections  JSONB NOT NULL,
	status      TEXT NOT NULL DEFAULT 'running',
	collected   INTEGER NOT NULL DEFAULT 0,
	records     INTEGER NOT NULL DEFAULT 0,
	warnings    INTEGER NOT NULL DEFAULT 0,
	error       TEXT NOT NULL DEFAULT '',
	started_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_search_runs_signature ON search_runs(signature);
CREATE INDEX IF NOT EXISTS idx_search_runs_started_at ON search_runs(started_at DESC);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) SavePreset(ctx context.Context, preset model.SavedSearch) error {
	preset.Name = strings.TrimSpace(preset.Name)
	if err := validName(preset.Name); err != nil {
		return err
	}
	payload, err := json.Marshal(preset)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal preset")
	}
	_, err = s.pool.Exec(ctx, pgUpsertPreset, preset.Name, payload, time.Now().UTC())
	return eris.Wrapf(err, "postgres: save preset %s", preset.Name)
}

func (s *PostgresStore) GetPreset(ctx context.Context, name string) (*model.SavedSearch, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx, pgGetPreset, name).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrPresetNotFound, "postgres: preset %q", name)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get preset %s", name)
	}
	return decodePreset(name, payload)
}

func (s *PostgresStore) ListPresets(ctx context.Context) ([]model.SavedSearch, error) {
	rows, err := s.pool.Query(ctx, `SELECT name, payload FROM presets ORDER BY name`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list presets")
	}
	defer rows.Close()

	out := []model.SavedSearch{}
	for rows.Next() {
		var name string
		var payload []byte
		if err := rows.Scan(&name, &payload); err != nil {
			return nil, eris.Wrap(err, "postgres: scan preset")
		}
		p, err := decodePreset(name, payload)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list presets iterate")
}

func (s *PostgresStore) DeletePreset(ctx context.Context, name string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM presets WHERE name = $1`, name)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete preset %s", name)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrPresetNotFound, "postgres: preset %q", name)
	}
	return nil
}

// ImportPresets merges presets in one COPY + upsert round trip.
func (s *PostgresStore) ImportPresets(ctx context.Context, presets []model.SavedSearch) (int, error) {
	now := time.Now().UTC()
	seen := make(map[string]int)
	var rows [][]any
	for _, p := range presets {
		p.Name = strings.TrimSpace(p.Name)
		if p.Name == "" {
			continue
		}
		payload, err := json.Marshal(p)
		if err != nil {
			return 0, eris.Wrap(err, "postgres: marshal preset")
		}
		// ON CONFLICT cannot touch the same row twice in one statement.
		if i, dup := seen[p.Name]; dup {
			rows[i] = []any{p.Name, payload, now}
			continue
		}
		seen[p.Name] = len(rows)
		rows = append(rows, []any{p.Name, payload, now})
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "presets",
		Columns:      []string{"name", "payload", "updated_at"},
		ConflictKeys: []string{"name"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: import presets")
	}
	return int(n), nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, signature string, sels []model.Selection) (*model.SearchRun, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	selJSON, err := json.Marshal(sels)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal selections")
	}

	_, err = s.pool.Exec(ctx, pgInsertRun, id, signature, selJSON, string(model.RunStatusRunning), now)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.SearchRun{
		ID:         id,
		Signature:  signature,
		Selections: sels,
		Status:     model.RunStatusRunning,
		StartedAt:  now,
	}, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, out model.RunOutcome) error {
	tag, err := s.pool.Exec(ctx, pgCompleteRun,
		string(out.Status), out.Collected, out.Records, out.Warnings, out.Error, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrRunNotFound, "postgres: run %s", runID)
	}
	return nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.SearchRun, error) {
	query := `SELECT id, signature, selections, status, collected, records, warnings, error, started_at, finished_at
		FROM search_runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.Signature != "" {
		query += fmt.Sprintf(` AND signature = $%d`, argIdx)
		args = append(args, filter.Signature)
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY started_at DESC LIMIT $%d`, argIdx)
	args = append(args, limitOf(filter))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.SearchRun
	for rows.Next() {
		var r model.SearchRun
		var status string
		var selJSON []byte
		if err := rows.Scan(&r.ID, &r.Signature, &selJSON, &status, &r.Collected, &r.Records,
			&r.Warnings, &r.Error, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		r.Status = model.RunStatus(status)
		if err := json.Unmarshal(selJSON, &r.Selections); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal selections")
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}
