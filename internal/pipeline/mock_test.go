package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/editais-cli/internal/model"
	"github.com/sells-group/editais-cli/internal/resilience"
	"github.com/sells-group/editais-cli/pkg/pncp"
)

// --- PNCP fake ---

// fakeClient serves pages from a handler and records every request.
type fakeClient struct {
	mu      sync.Mutex
	calls   []pncp.SearchQuery
	handler func(q pncp.SearchQuery) (any, error)
}

func (f *fakeClient) Search(_ context.Context, q pncp.SearchQuery) (any, error) {
	f.mu.Lock()
	f.calls = append(f.calls, q)
	f.mu.Unlock()
	return f.handler(q)
}

func (f *fakeClient) pages(code string) []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []int
	for _, c := range f.calls {
		if code == "" || c.MunicipalityCode == code {
			out = append(out, c.Page)
		}
	}
	return out
}

// itemsPayload builds a {"items": [...]} payload with n items whose ids
// start at first.
func itemsPayload(prefix string, first, n int) map[string]any {
	items := make([]any, 0, n)
	for i := range n {
		items = append(items, map[string]any{
			"id":    fmt.Sprintf("%s-%d", prefix, first+i),
			"title": fmt.Sprintf("Edital %d", first+i),
		})
	}
	return map[string]any{"items": items}
}

func transientErr() error {
	return resilience.StatusFromHTTP(503, "https://pncp.gov.br/api/search", "unavailable")
}

func fastRetry(attempts int) resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	}
}

// --- RunRecorder mock ---

type mockRecorder struct {
	mock.Mock
}

func (m *mockRecorder) CreateRun(ctx context.Context, signature string, sels []model.Selection) (*model.SearchRun, error) {
	args := m.Called(ctx, signature, sels)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SearchRun), args.Error(1)
}

func (m *mockRecorder) CompleteRun(ctx context.Context, runID string, outcome model.RunOutcome) error {
	args := m.Called(ctx, runID, outcome)
	return args.Error(0)
}
