package store

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/editais-cli/internal/model"
)

// DefaultPresetFile is the preset file name used by the json driver.
const DefaultPresetFile = "saved_searches.json"

// JSONStore keeps presets in a single JSON object keyed by preset name.
// Run history lives in memory for the life of the process.
type JSONStore struct {
	path string

	mu   sync.Mutex
	runs []model.SearchRun
	now  func() time.Time
}

// NewJSON returns a store backed by the file at path. The file is created on
// the first save.
func NewJSON(path string) *JSONStore {
	if path == "" {
		path = DefaultPresetFile
	}
	return &JSONStore{path: path, now: time.Now}
}

// Path returns the preset file location.
func (s *JSONStore) Path() string {
	return s.path
}

func (s *JSONStore) Migrate(_ context.Context) error {
	return nil
}

func (s *JSONStore) Close() error {
	return nil
}

// load reads the preset file. A missing or empty file is an empty set.
func (s *JSONStore) load() (map[string]model.SavedSearch, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return map[string]model.SavedSearch{}, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "store: read %s", s.path)
	}
	presets := map[string]model.SavedSearch{}
	if len(bytes.TrimSpace(data)) == 0 {
		return presets, nil
	}
	if err := json.Unmarshal(data, &presets); err != nil {
		return nil, eris.Wrapf(err, "store: parse %s", s.path)
	}
	for name, p := range presets {
		p.Name = name
		presets[name] = p
	}
	return presets, nil
}

// save writes the presets to a temp file and renames it over the target.
func (s *JSONStore) save(presets map[string]model.SavedSearch) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(presets); err != nil {
		return eris.Wrap(err, "store: encode presets")
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrapf(err, "store: create %s", dir)
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return eris.Wrapf(err, "store: write %s", tmp)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return eris.Wrapf(err, "store: rename %s", tmp)
	}
	return nil
}

func (s *JSONStore) SavePreset(_ context.Context, preset model.SavedSearch) error {
	preset.Name = strings.TrimSpace(preset.Name)
	if err := validName(preset.Name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	presets, err := s.load()
	if err != nil {
		return err
	}
	presets[preset.Name] = preset
	return s.save(presets)
}

func (s *JSONStore) GetPreset(_ context.Context, name string) (*model.SavedSearch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	presets, err := s.load()
	if err != nil {
		return nil, err
	}
	p, ok := presets[name]
	if !ok {
		return nil, eris.Wrapf(ErrPresetNotFound, "store: preset %q", name)
	}
	return &p, nil
}

func (s *JSONStore) ListPresets(_ context.Context) ([]model.SavedSearch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	presets, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make([]model.SavedSearch, 0, len(presets))
	for _, p := range presets {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *JSONStore) DeletePreset(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	presets, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := presets[name]; !ok {
		return eris.Wrapf(ErrPresetNotFound, "store: preset %q", name)
	}
	delete(presets, name)
	return s.save(presets)
}

func (s *JSONStore) ImportPresets(_ context.Context, in []model.SavedSearch) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	presets, err := s.load()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, p := range in {
		p.Name = strings.TrimSpace(p.Name)
		if p.Name == "" {
			zap.L().Warn("store: skipping preset without a name")
			continue
		}
		presets[p.Name] = p
		n++
	}
	if n == 0 {
		return 0, nil
	}
	return n, s.save(presets)
}

func (s *JSONStore) CreateRun(_ context.Context, signature string, sels []model.Selection) (*model.SearchRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run := model.SearchRun{
		ID:         uuid.New().String(),
		Signature:  signature,
		Selections: append([]model.Selection(nil), sels...),
		Status:     model.RunStatusRunning,
		StartedAt:  s.now().UTC(),
	}
	s.runs = append(s.runs, run)
	return &run, nil
}

func (s *JSONStore) CompleteRun(_ context.Context, runID string, out model.RunOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.runs {
		if s.runs[i].ID != runID {
			continue
		}
		finished := s.now().UTC()
		r := &s.runs[i]
		r.Status = out.Status
		r.Collected = out.Collected
		r.Records = out.Records
		r.Warnings = out.Warnings
		r.Error = out.Error
		r.FinishedAt = &finished
		return nil
	}
	return eris.Wrapf(ErrRunNotFound, "store: run %s", runID)
}

func (s *JSONStore) ListRuns(_ context.Context, filter RunFilter) ([]model.SearchRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	limit := limitOf(filter)
	var out []model.SearchRun
	for i := len(s.runs) - 1; i >= 0 && len(out) < limit; i-- {
		r := s.runs[i]
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		if filter.Signature != "" && r.Signature != filter.Signature {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}
