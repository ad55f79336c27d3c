package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/editais-cli/internal/model"
	"github.com/sells-group/editais-cli/internal/resilience"
	"github.com/sells-group/editais-cli/pkg/pncp"
)

func TestCollect_StopsOnShortPage(t *testing.T) {
	t.Parallel()

	client := &fakeClient{handler: func(q pncp.SearchQuery) (any, error) {
		switch q.Page {
		case 1, 2, 3:
			return itemsPayload("s", (q.Page-1)*100, 100), nil
		case 4:
			return itemsPayload("s", 300, 37), nil
		default:
			t.Fatalf("page %d should not be requested", q.Page)
			return nil, nil
		}
	}}
	c := NewCollector(client, CollectorOptions{PageSize: 100, Retry: fastRetry(2)})

	var progress []PageProgress
	items, err := c.CollectFunc(context.Background(), model.ShardQuery{MunicipalityCode: "3550308", Status: "recebendo_proposta"}, func(p PageProgress) {
		progress = append(progress, p)
	})
	require.NoError(t, err)
	assert.Len(t, items, 337)
	assert.Equal(t, []int{1, 2, 3, 4}, client.pages(""))

	require.Len(t, progress, 4)
	assert.Equal(t, PageProgress{Shard: "3550308", Page: 4, PageSize: 100, Items: 37, Total: 337}, progress[3])

	for _, q := range client.calls {
		assert.Equal(t, "3550308", q.MunicipalityCode)
		assert.Equal(t, "recebendo_proposta", q.Status)
		assert.Equal(t, 100, q.PageSize)
	}
}

func TestCollect_StopsOnEmptyPage(t *testing.T) {
	t.Parallel()

	client := &fakeClient{handler: func(q pncp.SearchQuery) (any, error) {
		if q.Page == 1 {
			return itemsPayload("s", 0, 10), nil
		}
		return map[string]any{"items": []any{}}, nil
	}}
	c := NewCollector(client, CollectorOptions{PageSize: 10})

	items, err := c.Collect(context.Background(), model.ShardQuery{MunicipalityCode: "1"})
	require.NoError(t, err)
	assert.Len(t, items, 10)
	assert.Equal(t, []int{1, 2}, client.pages(""))
}

func TestCollect_NoContentIsEmptyPage(t *testing.T) {
	t.Parallel()

	client := &fakeClient{handler: func(q pncp.SearchQuery) (any, error) {
		return nil, nil
	}}
	c := NewCollector(client, CollectorOptions{})

	items, err := c.Collect(context.Background(), model.ShardQuery{MunicipalityCode: "1"})
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Equal(t, []int{1}, client.pages(""))
}

func TestCollect_QueryPageSizeOverridesDefault(t *testing.T) {
	t.Parallel()

	client := &fakeClient{handler: func(q pncp.SearchQuery) (any, error) {
		assert.Equal(t, 5, q.PageSize)
		return itemsPayload("s", 0, 2), nil
	}}
	c := NewCollector(client, CollectorOptions{PageSize: 100})

	_, err := c.Collect(context.Background(), model.ShardQuery{MunicipalityCode: "1", PageSize: 5})
	require.NoError(t, err)
}

func TestCollect_RetriesTransientFailure(t *testing.T) {
	t.Parallel()

	failures := 0
	client := &fakeClient{handler: func(q pncp.SearchQuery) (any, error) {
		if q.Page == 1 && failures < 2 {
			failures++
			return nil, transientErr()
		}
		return itemsPayload("s", 0, 3), nil
	}}
	c := NewCollector(client, CollectorOptions{PageSize: 10, Retry: fastRetry(3)})

	items, err := c.Collect(context.Background(), model.ShardQuery{MunicipalityCode: "1"})
	require.NoError(t, err)
	assert.Len(t, items, 3)
	assert.Equal(t, []int{1, 1, 1}, client.pages(""))
}

func TestCollect_PermanentFailureStopsImmediately(t *testing.T) {
	t.Parallel()

	client := &fakeClient{handler: func(q pncp.SearchQuery) (any, error) {
		if q.Page == 2 {
			return nil, resilience.StatusFromHTTP(400, "u", "bad request")
		}
		return itemsPayload("s", 0, 10), nil
	}}
	c := NewCollector(client, CollectorOptions{PageSize: 10, Retry: fastRetry(3), FallbackPageSizes: []int{5}})

	items, err := c.Collect(context.Background(), model.ShardQuery{MunicipalityCode: "1"})
	require.Error(t, err)
	assert.Nil(t, items)
	assert.Equal(t, []int{1, 2}, client.pages(""))

	var se *resilience.StatusError
	assert.True(t, errors.As(err, &se))
}

func TestCollect_PageSizeFallback(t *testing.T) {
	t.Parallel()

	// 100-item pages fail from page 3 on; 50-item pages work.
	client := &fakeClient{handler: func(q pncp.SearchQuery) (any, error) {
		if q.PageSize == 100 {
			if q.Page >= 3 {
				return nil, transientErr()
			}
			return itemsPayload("s", (q.Page-1)*100, 100), nil
		}
		offset := (q.Page - 1) * q.PageSize
		switch {
		case offset < 250:
			n := min(q.PageSize, 250-offset)
			return itemsPayload("s", offset, n), nil
		default:
			return itemsPayload("s", offset, 0), nil
		}
	}}
	c := NewCollector(client, CollectorOptions{
		PageSize:          100,
		FallbackPageSizes: []int{50, 20},
		Retry:             fastRetry(2),
	})

	items, err := c.Collect(context.Background(), model.ShardQuery{MunicipalityCode: "1"})
	require.NoError(t, err)
	require.Len(t, items, 250)

	// The first item after the switch continues exactly where size 100 stopped.
	assert.Equal(t, "s-200", items[200]["id"])

	var sizes []int
	for _, q := range client.calls {
		sizes = append(sizes, q.PageSize)
	}
	// pages 1,2 @100, page 3 @100 twice (retry), then pages 5,6 @50 (offset 200).
	assert.Equal(t, []int{100, 100, 100, 100, 50, 50}, sizes)
	assert.Equal(t, 5, client.calls[4].Page)
}

func TestCollect_FallbackExhaustedFailsShard(t *testing.T) {
	t.Parallel()

	client := &fakeClient{handler: func(q pncp.SearchQuery) (any, error) {
		return nil, transientErr()
	}}
	c := NewCollector(client, CollectorOptions{
		PageSize:          100,
		FallbackPageSizes: []int{50},
		Retry:             fastRetry(1),
	})

	items, err := c.Collect(context.Background(), model.ShardQuery{MunicipalityCode: "1"})
	require.Error(t, err)
	assert.Nil(t, items)
	assert.True(t, resilience.IsExhausted(err))

	var sizes []int
	for _, q := range client.calls {
		sizes = append(sizes, q.PageSize)
	}
	assert.Equal(t, []int{100, 50}, sizes)
}

func TestCollect_WithoutFallbackFailsOnExhaustion(t *testing.T) {
	t.Parallel()

	client := &fakeClient{handler: func(q pncp.SearchQuery) (any, error) {
		return nil, transientErr()
	}}
	c := NewCollector(client, CollectorOptions{PageSize: 100, Retry: fastRetry(2)})

	_, err := c.Collect(context.Background(), model.ShardQuery{MunicipalityCode: "1"})
	require.Error(t, err)
	assert.Len(t, client.calls, 2)
}

func TestCollect_MaxPages(t *testing.T) {
	t.Parallel()

	client := &fakeClient{handler: func(q pncp.SearchQuery) (any, error) {
		return itemsPayload("s", (q.Page-1)*2, 2), nil
	}}
	c := NewCollector(client, CollectorOptions{PageSize: 2, MaxPages: 3})

	items, err := c.Collect(context.Background(), model.ShardQuery{MunicipalityCode: "1"})
	require.NoError(t, err)
	assert.Len(t, items, 6)
}

func TestCollect_PageDelay(t *testing.T) {
	t.Parallel()

	client := &fakeClient{handler: func(q pncp.SearchQuery) (any, error) {
		if q.Page < 3 {
			return itemsPayload("s", 0, 1), nil
		}
		return nil, nil
	}}
	c := NewCollector(client, CollectorOptions{PageSize: 1, PageDelay: 20 * time.Millisecond})

	start := time.Now()
	_, err := c.Collect(context.Background(), model.ShardQuery{MunicipalityCode: "1"})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 35*time.Millisecond)
}

func TestCollect_ContextCancelled(t *testing.T) {
	t.Parallel()

	client := &fakeClient{handler: func(q pncp.SearchQuery) (any, error) {
		return itemsPayload("s", 0, 1), nil
	}}
	c := NewCollector(client, CollectorOptions{PageSize: 1, PageDelay: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Collect(ctx, model.ShardQuery{MunicipalityCode: "1"})
	require.Error(t, err)
}

func TestNextPageSize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		current, collected int
		fallbacks          []int
		want               int
		ok                 bool
	}{
		{100, 200, []int{50, 20, 10}, 50, true},
		{100, 0, []int{50}, 50, true},
		{50, 150, []int{50, 20, 10}, 10, true},
		{100, 300, []int{40, 30}, 30, true},
		{100, 100, []int{200, 100}, 0, false},
		{100, 100, nil, 0, false},
		{20, 40, []int{0, -5}, 0, false},
	}
	for _, tt := range tests {
		got, ok := nextPageSize(tt.current, tt.collected, tt.fallbacks)
		assert.Equal(t, tt.ok, ok)
		assert.Equal(t, tt.want, got)
	}
}
