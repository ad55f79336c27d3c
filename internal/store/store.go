// Package store persists named search presets and the search run history.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/editais-cli/internal/model"
)

var (
	// ErrPresetNotFound is returned when a preset name is unknown.
	ErrPresetNotFound = eris.New("store: preset not found")
	// ErrRunNotFound is returned when a run ID is unknown.
	ErrRunNotFound = eris.New("store: run not found")
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status    model.RunStatus `json:"status,omitempty"`
	Signature string          `json:"signature,omitempty"`
	Limit     int             `json:"limit,omitempty"`
}

// DefaultRunLimit caps ListRuns when no limit is given.
const DefaultRunLimit = 50

// Store defines the persistence interface for presets and run history.
type Store interface {
	// Presets
	SavePreset(ctx context.Context, preset model.SavedSearch) error
	GetPreset(ctx context.Context, name string) (*model.SavedSearch, error)
	ListPresets(ctx context.Context) ([]model.SavedSearch, error)
	DeletePreset(ctx context.Context, name string) error
	ImportPresets(ctx context.Context, presets []model.SavedSearch) (int, error)

	// Runs
	CreateRun(ctx context.Context, signature string, sels []model.Selection) (*model.SearchRun, error)
	CompleteRun(ctx context.Context, runID string, out model.RunOutcome) error
	ListRuns(ctx context.Context, filter RunFilter) ([]model.SearchRun, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

func validName(name string) error {
	if name == "" {
		return eris.New("store: preset name is required")
	}
	return nil
}

func limitOf(f RunFilter) int {
	if f.Limit <= 0 {
		return DefaultRunLimit
	}
	return f.Limit
}
