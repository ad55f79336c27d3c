package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/editais-cli/internal/model"
	"github.com/sells-group/editais-cli/internal/resilience"
	"github.com/sells-group/editais-cli/internal/session"
)

// ErrUnknownStatus is returned for a status label with no API mapping.
var ErrUnknownStatus = eris.New("pipeline: unknown status label")

// RunRecorder keeps a history of search runs. Recording failures are
// logged and never fail the search.
type RunRecorder interface {
	CreateRun(ctx context.Context, signature string, sels []model.Selection) (*model.SearchRun, error)
	CompleteRun(ctx context.Context, runID string, outcome model.RunOutcome) error
}

// ShardProgress is reported when a municipality finishes collecting.
type ShardProgress struct {
	Selection model.Selection
	Done      int // shards finished so far, including this one
	Total     int
	Items     int
	Err       error
}

// SearcherOptions configures a Searcher.
type SearcherOptions struct {
	Origin       string
	Concurrency  int
	DocumentType string
	Ordering     string
	Recorder     RunRecorder
}

// Searcher runs a full search: collect every selected municipality,
// deduplicate, normalize, filter and sort.
type Searcher struct {
	collector *Collector
	opts      SearcherOptions
	now       func() time.Time
}

// NewSearcher creates a Searcher.
func NewSearcher(collector *Collector, opts SearcherOptions) *Searcher {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &Searcher{collector: collector, opts: opts, now: time.Now}
}

// Run searches the session's selections with its filters. Results are
// cached in the session by signature. A municipality that fails to collect
// becomes a warning on the result; the other municipalities are unaffected
// and the result is not cached, so the next run queries it again.
func (s *Searcher) Run(ctx context.Context, sess *session.Session, onShard func(ShardProgress)) (*model.SearchResult, error) {
	sels := sess.Selections()
	if len(sels) == 0 {
		return nil, ErrNoSelection
	}
	filters := sess.Filters()
	status, ok := model.LookupStatus(filters.StatusLabel)
	if !ok {
		return nil, eris.Wrapf(ErrUnknownStatus, "pipeline: %q", filters.StatusLabel)
	}

	sig := session.Signature(filters, sels)
	log := zap.L().With(zap.String("signature", sig))
	if cached := sess.Cache().Get(sig); cached != nil {
		log.Info("pipeline: serving cached result", zap.Int("records", len(cached.Records)))
		return cached, nil
	}

	var runID string
	if s.opts.Recorder != nil {
		run, err := s.opts.Recorder.CreateRun(ctx, sig, sels)
		if err != nil {
			log.Warn("pipeline: failed to record run start", zap.Error(err))
		} else {
			runID = run.ID
		}
	}

	log.Info("pipeline: starting search",
		zap.Int("municipios", len(sels)),
		zap.String("status", status.APIValue),
		zap.Int("concurrency", s.opts.Concurrency),
	)

	shards, warnings := s.collectAll(ctx, sels, status, onShard)
	if err := ctx.Err(); err != nil {
		s.completeRun(runID, model.RunOutcome{Status: model.RunStatusFailed, Error: err.Error()})
		return nil, eris.Wrap(err, "pipeline: search cancelled")
	}

	collected := Aggregate(shards)
	records := make([]model.Record, 0, len(collected))
	for _, c := range collected {
		records = append(records, Normalize(c.Item, c.ShardKey, s.opts.Origin))
	}

	res := &model.SearchResult{
		Signature:  sig,
		Records:    FilterAndSort(records, filters.Keyword, status.Bucket),
		Warnings:   warnings,
		Selections: sels,
		FetchedAt:  s.now(),
		Collected:  len(collected),
	}
	if len(warnings) == 0 {
		sess.Cache().Put(sig, res)
	}
	s.completeRun(runID, model.OutcomeOf(res))

	log.Info("pipeline: search complete",
		zap.Int("collected", res.Collected),
		zap.Int("records", len(res.Records)),
		zap.Int("warnings", len(res.Warnings)),
	)
	return res, nil
}

func (s *Searcher) collectAll(ctx context.Context, sels []model.Selection, status model.StatusOption, onShard func(ShardProgress)) ([]Shard, []model.ShardWarning) {
	shards := make([]Shard, len(sels))
	errs := make([]error, len(sels))

	var (
		mu   sync.Mutex
		done int
	)
	report := func(p ShardProgress) {
		mu.Lock()
		defer mu.Unlock()
		done++
		p.Done = done
		p.Total = len(sels)
		if onShard != nil {
			onShard(p)
		}
	}

	var g errgroup.Group
	g.SetLimit(s.opts.Concurrency)
	for i, sel := range sels {
		g.Go(func() error {
			items, err := s.collector.Collect(ctx, model.ShardQuery{
				MunicipalityCode: sel.Code,
				Status:           status.APIValue,
				DocumentType:     s.opts.DocumentType,
				Ordering:         s.opts.Ordering,
			})
			if err != nil {
				zap.L().Warn("pipeline: shard failed",
					zap.String("shard", sel.Code),
					zap.String("municipio", sel.Name),
					zap.String("class", resilience.Classify(err)),
					zap.Error(err),
				)
				errs[i] = &ShardError{Code: sel.Code, Name: sel.Name, Err: err}
				items = nil
			}
			shards[i] = Shard{Key: sel.Code, Items: items}
			report(ShardProgress{Selection: sel, Items: len(items), Err: errs[i]})
			return nil // a failed shard must not cancel the others
		})
	}
	_ = g.Wait()

	var warnings []model.ShardWarning
	for _, err := range errs {
		var se *ShardError
		if errors.As(err, &se) {
			warnings = append(warnings, se.Warning())
		}
	}
	return shards, warnings
}

func (s *Searcher) completeRun(runID string, outcome model.RunOutcome) {
	if runID == "" || s.opts.Recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.opts.Recorder.CompleteRun(ctx, runID, outcome); err != nil {
		zap.L().Warn("pipeline: failed to record run completion",
			zap.String("run_id", runID),
			zap.Error(err),
		)
	}
}
