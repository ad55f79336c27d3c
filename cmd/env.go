package main

import (
	"context"
	"net/http"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/editais-cli/internal/fetcher"
	"github.com/sells-group/editais-cli/internal/pipeline"
	"github.com/sells-group/editais-cli/internal/reference"
	"github.com/sells-group/editais-cli/internal/session"
	"github.com/sells-group/editais-cli/internal/store"
	"github.com/sells-group/editais-cli/pkg/pncp"
)

const defaultSQLitePath = "editais.db"

// searchEnv holds everything the search and serve commands need.
type searchEnv struct {
	Store    store.Store
	Catalog  *reference.Catalog
	Searcher *pipeline.Searcher
	Cache    *session.ResultCache
}

// Close releases resources held by the environment.
func (e *searchEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// NewSession creates a session bound to the shared result cache.
func (e *searchEnv) NewSession() *session.Session {
	return session.New(
		session.WithLimit(cfg.Collect.MaxSelections),
		session.WithCache(e.Cache),
	)
}

// initSearch validates config for mode, opens the store and loads the
// municipality catalog. Callers should defer env.Close().
func initSearch(ctx context.Context, mode string) (*searchEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}

	catalog, err := loadCatalog(ctx)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	collector := pipeline.NewCollector(newPNCPClient(), pipeline.CollectorOptions{
		PageSize:          cfg.PNCP.PageSize,
		FallbackPageSizes: cfg.PNCP.FallbackPageSizes,
		PageDelay:         cfg.PNCP.PageDelay(),
		Retry:             cfg.Retry.Policy(),
	})
	searcher := pipeline.NewSearcher(collector, pipeline.SearcherOptions{
		Origin:      cfg.PNCP.Origin,
		Concurrency: cfg.Collect.Concurrency,
		Recorder:    st,
	})

	return &searchEnv{
		Store:    st,
		Catalog:  catalog,
		Searcher: searcher,
		Cache:    session.NewResultCache(cfg.Cache.MaxEntries, cfg.Cache.TTL()),
	}, nil
}

// initStore opens the configured preset store.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "", "json":
		return store.NewJSON(cfg.Store.Path), nil
	case "sqlite":
		dsn := cfg.Store.Path
		if dsn == "" || dsn == store.DefaultPresetFile {
			dsn = defaultSQLitePath
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// openStore opens the store and applies its schema.
func openStore(ctx context.Context) (store.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// loadCatalog reads the PNCP municipality table and, when present, the IBGE
// state table.
func loadCatalog(ctx context.Context) (*reference.Catalog, error) {
	municipios, err := reference.LoadMunicipios(ctx, cfg.Reference.MunicipiosPath)
	if err != nil {
		return nil, eris.Wrapf(err, "load %s (run `editais-cli municipios sync` to download it)", cfg.Reference.MunicipiosPath)
	}
	ibge, err := reference.LoadIBGE(ctx, cfg.Reference.IBGEPath)
	if err != nil {
		zap.L().Warn("ibge table unreadable, continuing without it",
			zap.String("path", cfg.Reference.IBGEPath),
			zap.Error(err),
		)
	}
	catalog := reference.NewCatalog(municipios, ibge)
	zap.L().Debug("catalog loaded",
		zap.Int("municipios", catalog.Len()),
		zap.Int("ibge", len(ibge)),
	)
	return catalog, nil
}

func newPNCPClient() pncp.Client {
	opts := []pncp.Option{
		pncp.WithBaseURL(cfg.PNCP.Origin),
		pncp.WithSearchPath(cfg.PNCP.SearchPath),
		pncp.WithUserAgent(cfg.PNCP.UserAgent),
		pncp.WithReferer(cfg.PNCP.Referer),
		pncp.WithAcceptLanguage(cfg.PNCP.AcceptLanguage),
		pncp.WithHTTPClient(&http.Client{Timeout: cfg.PNCP.Timeout()}),
	}
	if cfg.PNCP.RatePerSec > 0 {
		burst := max(int(cfg.PNCP.RatePerSec), 1)
		opts = append(opts, pncp.WithLimiter(fetcher.NewAdaptiveLimiter(rate.Limit(cfg.PNCP.RatePerSec), burst)))
	}
	return pncp.NewClient(opts...)
}
