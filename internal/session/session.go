// Package session holds the state of one interactive search: filters, the
// selected municipalities, and a cache of completed results.
package session

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/editais-cli/internal/model"
)

// MaxSelections is the default cap on municipalities per search.
const MaxSelections = 25

// ErrSelectionLimit is returned when adding a selection past the cap.
var ErrSelectionLimit = eris.New("session: selection limit reached")

// Session is the mutable search context. It is safe for concurrent use.
type Session struct {
	mu         sync.Mutex
	filters    model.Filters
	selections []model.Selection
	limit      int
	cache      *ResultCache
}

// Option configures a Session.
type Option func(*Session)

// WithLimit overrides the selection cap.
func WithLimit(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.limit = n
		}
	}
}

// WithCache attaches a result cache. Sessions may share one cache.
func WithCache(c *ResultCache) Option {
	return func(s *Session) {
		s.cache = c
	}
}

// New creates an empty session with the default status filter.
func New(opts ...Option) *Session {
	s := &Session{
		filters: model.Filters{StatusLabel: model.StatusLabelOpen},
		limit:   MaxSelections,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cache == nil {
		s.cache = NewResultCache(DefaultCacheEntries, DefaultCacheTTL)
	}
	return s
}

// Limit returns the selection cap.
func (s *Session) Limit() int {
	return s.limit
}

// Cache returns the session's result cache.
func (s *Session) Cache() *ResultCache {
	return s.cache
}

// Filters returns the current filters.
func (s *Session) Filters() model.Filters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filters
}

// SetFilters replaces the current filters.
func (s *Session) SetFilters(f model.Filters) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filters = f
}

// Add appends a selection. Adding a code that is already selected is a
// no-op. Past the cap it returns ErrSelectionLimit and changes nothing.
func (s *Session) Add(sel model.Selection) error {
	sel.Code = strings.TrimSpace(sel.Code)
	if sel.Code == "" {
		return eris.New("session: selection has no code")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.selections {
		if existing.Code == sel.Code {
			return nil
		}
	}
	if len(s.selections) >= s.limit {
		return eris.Wrapf(ErrSelectionLimit, "session: cannot add %s, limit is %d", sel.Label(), s.limit)
	}
	s.selections = append(s.selections, sel)
	return nil
}

// Remove drops the selection with the given code and reports whether it existed.
func (s *Session) Remove(code string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sel := range s.selections {
		if sel.Code == code {
			s.selections = append(s.selections[:i], s.selections[i+1:]...)
			return true
		}
	}
	return false
}

// Clear drops every selection.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selections = nil
}

// Selections returns a copy of the current selections in insertion order.
func (s *Session) Selections() []model.Selection {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Selection, len(s.selections))
	copy(out, s.selections)
	return out
}

// Apply replaces filters and selections with a preset's. Duplicate codes
// are collapsed; entries past the cap are dropped and counted. An unknown
// status label falls back to the default.
func (s *Session) Apply(preset model.SavedSearch) int {
	seen := make(map[string]bool)
	var kept []model.Selection
	dropped := 0
	for _, sel := range preset.Selections {
		if sel.Code == "" || seen[sel.Code] {
			continue
		}
		seen[sel.Code] = true
		if len(kept) >= s.limit {
			dropped++
			continue
		}
		kept = append(kept, sel)
	}
	if dropped > 0 {
		zap.L().Warn("session: preset exceeds selection limit, extra municipalities dropped",
			zap.String("preset", preset.Name),
			zap.Int("limit", s.limit),
			zap.Int("dropped", dropped),
		)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.filters = preset.Filters()
	if opt, ok := model.LookupStatus(s.filters.StatusLabel); ok {
		s.filters.StatusLabel = opt.Label
	} else {
		s.filters.StatusLabel = model.StatusLabelOpen
	}
	s.selections = kept
	return dropped
}

// Snapshot captures the current state as a named preset.
func (s *Session) Snapshot(name string) model.SavedSearch {
	s.mu.Lock()
	defer s.mu.Unlock()
	sels := make([]model.Selection, len(s.selections))
	copy(sels, s.selections)
	return model.SavedSearch{
		Name:        name,
		Keyword:     s.filters.Keyword,
		StatusLabel: s.filters.StatusLabel,
		UF:          s.filters.UF,
		Selections:  sels,
	}
}

// Signature identifies the current filters and selection set.
func (s *Session) Signature() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Signature(s.filters, s.selections)
}

// Signature hashes filters and selected codes. Selection order does not
// matter.
func Signature(f model.Filters, sels []model.Selection) string {
	codes := make([]string, 0, len(sels))
	for _, sel := range sels {
		codes = append(codes, sel.Code)
	}
	sort.Strings(codes)

	payload, _ := json.Marshal(struct {
		Keyword     string   `json:"k"`
		StatusLabel string   `json:"s"`
		UF          string   `json:"u"`
		Codes       []string `json:"c"`
	}{
		Keyword:     strings.TrimSpace(f.Keyword),
		StatusLabel: canonicalStatus(f.StatusLabel),
		UF:          f.UF,
		Codes:       codes,
	})
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])[:16]
}

// canonicalStatus maps any accepted spelling of a status to its label.
func canonicalStatus(s string) string {
	if o, ok := model.LookupStatus(s); ok {
		return o.Label
	}
	return strings.TrimSpace(s)
}
