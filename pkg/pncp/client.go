// Package pncp provides a client for the PNCP (Portal Nacional de
// Contratações Públicas) document search API.
package pncp

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/editais-cli/internal/fetcher"
	"github.com/sells-group/editais-cli/internal/resilience"
)

// Origin is the public PNCP host. Detail links are built against it.
const Origin = "https://pncp.gov.br"

// Defaults for the search endpoint.
const (
	DefaultSearchPath     = "/api/search"
	DefaultDocumentType   = "edital"
	DefaultOrdering       = "-data"
	DefaultUserAgent      = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	DefaultAcceptLanguage = "pt-BR,pt;q=0.9"
)

// Client defines the PNCP search operations.
type Client interface {
	// Search fetches one page of documents for a municipality. The decoded
	// payload is returned as is; its shape is not stable across releases.
	// A 204 or empty body yields (nil, nil).
	Search(ctx context.Context, q SearchQuery) (any, error)
}

// SearchQuery is one page request against the search endpoint.
type SearchQuery struct {
	MunicipalityCode string
	Status           string // API status value; empty omits the filter
	DocumentType     string
	Ordering         string
	Page             int
	PageSize         int
}

// Values encodes q as query parameters.
func (q SearchQuery) Values() url.Values {
	v := url.Values{}
	docType := q.DocumentType
	if docType == "" {
		docType = DefaultDocumentType
	}
	ordering := q.Ordering
	if ordering == "" {
		ordering = DefaultOrdering
	}
	v.Set("tipos_documento", docType)
	v.Set("ordenacao", ordering)
	v.Set("pagina", strconv.Itoa(q.Page))
	v.Set("tam_pagina", strconv.Itoa(q.PageSize))
	v.Set("municipios", q.MunicipalityCode)
	if q.Status != "" {
		v.Set("status", q.Status)
	}
	return v
}

// Option configures the PNCP client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithSearchPath overrides the search endpoint path.
func WithSearchPath(p string) Option {
	return func(c *httpClient) {
		if p != "" {
			c.searchPath = p
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *httpClient) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithReferer sets the Referer header.
func WithReferer(ref string) Option {
	return func(c *httpClient) {
		if ref != "" {
			c.referer = ref
		}
	}
}

// WithAcceptLanguage sets the Accept-Language header.
func WithAcceptLanguage(lang string) Option {
	return func(c *httpClient) {
		if lang != "" {
			c.acceptLanguage = lang
		}
	}
}

// WithLimiter paces requests through an adaptive limiter.
func WithLimiter(l *fetcher.AdaptiveLimiter) Option {
	return func(c *httpClient) {
		c.limiter = l
	}
}

type httpClient struct {
	baseURL        string
	searchPath     string
	userAgent      string
	referer        string
	acceptLanguage string
	limiter        *fetcher.AdaptiveLimiter
	http           *http.Client
}

// NewClient creates a new PNCP search client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL:        Origin,
		searchPath:     DefaultSearchPath,
		userAgent:      DefaultUserAgent,
		acceptLanguage: DefaultAcceptLanguage,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.referer == "" {
		c.referer = Origin + "/app/editais"
	}
	return c
}

func (c *httpClient) Search(ctx context.Context, q SearchQuery) (any, error) {
	reqURL := c.baseURL + c.searchPath + "?" + q.Values().Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "pncp: create request")
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Referer", c.referer)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Language", c.acceptLanguage)

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "pncp: rate limiter wait")
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "pncp: request failed")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusTooManyRequests && c.limiter != nil {
		c.limiter.OnRateLimit()
	}
	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, resilience.StatusFromHTTP(resp.StatusCode, reqURL, string(body))
	}
	if c.limiter != nil {
		c.limiter.OnSuccess()
	}

	payload, err := fetcher.DecodeJSONValue(resp.Body)
	if err != nil {
		// Truncated bodies are retried.
		if resilience.IsTransient(err) {
			return nil, resilience.NewTransientError(err, 0)
		}
		return nil, eris.Wrap(err, "pncp: decode response")
	}

	zap.L().Debug("pncp: page fetched",
		zap.String("municipio", q.MunicipalityCode),
		zap.Int("page", q.Page),
		zap.Int("page_size", q.PageSize),
	)
	return payload, nil
}
