package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/editais-cli/internal/model"
	"github.com/sells-group/editais-cli/internal/resilience"
	"github.com/sells-group/editais-cli/pkg/pncp"
)

// Defaults for the paginated collector.
const (
	DefaultPageSize = 100
	DefaultMaxPages = 1000
)

// PageProgress is reported after every page that was fetched successfully.
type PageProgress struct {
	Shard    string
	Page     int
	PageSize int
	Items    int // items on this page
	Total    int // items collected so far for the shard
}

// CollectorOptions configures pagination and retry.
type CollectorOptions struct {
	PageSize int
	// FallbackPageSizes are tried, in order, when a page keeps failing at
	// the current size. Empty disables the fallback.
	FallbackPageSizes []int
	PageDelay         time.Duration
	MaxPages          int
	Retry             resilience.RetryConfig
}

// Collector pages through the search API for one municipality at a time.
type Collector struct {
	client pncp.Client
	opts   CollectorOptions
	pacer  *rate.Limiter
}

// NewCollector creates a Collector. The page delay is shared by every
// shard collected through it.
func NewCollector(client pncp.Client, opts CollectorOptions) *Collector {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = DefaultMaxPages
	}
	limit := rate.Inf
	if opts.PageDelay > 0 {
		limit = rate.Every(opts.PageDelay)
	}
	return &Collector{
		client: client,
		opts:   opts,
		pacer:  rate.NewLimiter(limit, 1),
	}
}

// Collect returns every item for the query's municipality.
func (c *Collector) Collect(ctx context.Context, q model.ShardQuery) ([]model.RawItem, error) {
	return c.CollectFunc(ctx, q, nil)
}

// CollectFunc is Collect with a per-page progress callback. Pages are
// requested in order from 1 until a page returns fewer items than the page
// size. On failure no items are returned.
func (c *Collector) CollectFunc(ctx context.Context, q model.ShardQuery, onPage func(PageProgress)) ([]model.RawItem, error) {
	size := q.PageSize
	if size <= 0 {
		size = c.opts.PageSize
	}
	log := zap.L().With(zap.String("shard", q.MunicipalityCode))

	var items []model.RawItem
	page := 1
	for fetched := 0; ; fetched++ {
		if fetched >= c.opts.MaxPages {
			log.Warn("pipeline: page limit reached, stopping shard",
				zap.Int("max_pages", c.opts.MaxPages),
				zap.Int("items", len(items)),
			)
			break
		}
		if err := c.pacer.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "pipeline: page delay")
		}

		pageItems, err := c.fetchPage(ctx, q, page, size)
		if err != nil {
			if resilience.IsExhausted(err) {
				if next, ok := nextPageSize(size, len(items), c.opts.FallbackPageSizes); ok {
					log.Warn("pipeline: page failed, retrying with smaller page size",
						zap.Int("page", page),
						zap.Int("page_size", size),
						zap.Int("fallback_page_size", next),
						zap.Error(err),
					)
					page = len(items)/next + 1
					size = next
					continue
				}
			}
			return nil, eris.Wrapf(err, "pipeline: collect page %d (size %d)", page, size)
		}

		items = append(items, pageItems...)
		if onPage != nil {
			onPage(PageProgress{
				Shard:    q.MunicipalityCode,
				Page:     page,
				PageSize: size,
				Items:    len(pageItems),
				Total:    len(items),
			})
		}
		log.Debug("pipeline: page collected",
			zap.Int("page", page),
			zap.Int("page_size", size),
			zap.Int("items", len(pageItems)),
		)

		if len(pageItems) < size {
			break
		}
		page++
	}
	return items, nil
}

func (c *Collector) fetchPage(ctx context.Context, q model.ShardQuery, page, size int) ([]model.RawItem, error) {
	retry := c.opts.Retry
	retry.OnRetry = resilience.RetryLogger(q.MunicipalityCode, page)

	payload, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (any, error) {
		return c.client.Search(ctx, pncp.SearchQuery{
			MunicipalityCode: q.MunicipalityCode,
			Status:           q.Status,
			DocumentType:     q.DocumentType,
			Ordering:         q.Ordering,
			Page:             page,
			PageSize:         size,
		})
	})
	if err != nil {
		return nil, err
	}
	return ExtractItems(payload), nil
}

// nextPageSize picks the first configured size below current that divides
// the number of items already collected, so the next page starts exactly
// after them.
func nextPageSize(current, collected int, fallbacks []int) (int, bool) {
	for _, s := range fallbacks {
		if s <= 0 || s >= current {
			continue
		}
		if collected%s == 0 {
			return s, true
		}
	}
	return 0, false
}
