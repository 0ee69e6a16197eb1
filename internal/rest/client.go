package rest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/coachpo/tradefeed/errs"
	"github.com/coachpo/tradefeed/internal/observability"
	"github.com/coachpo/tradefeed/internal/schema"
)

// Cache keys for the collaborator endpoints.
const (
	KeyAccount   = "account"
	KeyPositions = "positions"
	KeyTicker24h = "ticker24h"
	KeyTrades    = "trades"
	keyCandles   = "candles"
)

const (
	defaultCandleLimit = 300
	defaultTradeLimit  = 50
	maxTradeLimit      = 100
)

// Client fetches collaborator REST endpoints with a per-key response cache.
type Client struct {
	baseURL  string
	http     *http.Client
	cacheTTL time.Duration
	token    func() string
	clock    func() time.Time

	mu    sync.Mutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	value     any
	fetchedAt time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.http = httpClient
		}
	}
}

// WithCacheTTL sets how long a cached response stays fresh. Zero disables
// caching.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Client) {
		c.cacheTTL = ttl
	}
}

// WithTokenSource provides the bearer credential for authenticated requests.
// An empty string means unauthenticated.
func WithTokenSource(source func() string) Option {
	return func(c *Client) {
		if source != nil {
			c.token = source
		}
	}
}

// WithClock overrides the cache clock, primarily for testing.
func WithClock(clock func() time.Time) Option {
	return func(c *Client) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// NewClient creates a client for the collaborator API at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &http.Client{Timeout: 10 * time.Second},
		cacheTTL: 30 * time.Second,
		token:    func() string { return "" },
		clock:    time.Now,
		cache:    make(map[string]cacheEntry),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Account fetches the current account snapshot.
func (c *Client) Account(ctx context.Context) (*schema.AccountSnapshot, error) {
	return fetchCached[*schema.AccountSnapshot](ctx, c, KeyAccount, "/account", nil)
}

// Positions fetches the open position list.
func (c *Client) Positions(ctx context.Context) ([]Position, error) {
	return fetchCached[[]Position](ctx, c, KeyPositions, "/positions", nil)
}

// Ticker24h fetches rolling 24 hour statistics for all supported instruments.
func (c *Client) Ticker24h(ctx context.Context) ([]Ticker24h, error) {
	return fetchCached[[]Ticker24h](ctx, c, KeyTicker24h, "/ticker/24h", nil)
}

// Trades fetches a page of the account's trade history, newest first. A
// non-positive limit requests the server default; the server caps pages at
// 100 entries.
func (c *Client) Trades(ctx context.Context, limit, offset int) ([]Trade, error) {
	if limit <= 0 {
		limit = defaultTradeLimit
	}
	if limit > maxTradeLimit {
		limit = maxTradeLimit
	}
	if offset < 0 {
		offset = 0
	}
	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	query.Set("offset", strconv.Itoa(offset))

	key := fmt.Sprintf("%s:%d:%d", KeyTrades, limit, offset)
	return fetchCached[[]Trade](ctx, c, key, "/trades", query)
}

// Candles fetches up to limit historical bars for the symbol at the given
// resolution. A non-positive limit requests the server default.
func (c *Client) Candles(ctx context.Context, symbol string, interval CandleInterval, limit int) ([]Candle, error) {
	if strings.TrimSpace(symbol) == "" {
		return nil, errs.New("rest", errs.CodeInvalid, errs.WithMessage("symbol must not be empty"))
	}
	if !interval.Valid() {
		return nil, errs.New("rest", errs.CodeInvalid, errs.WithMessage("unsupported candle interval "+string(interval)))
	}
	if limit <= 0 {
		limit = defaultCandleLimit
	}
	query := url.Values{}
	query.Set("symbol", symbol)
	query.Set("interval", string(interval))
	query.Set("limit", strconv.Itoa(limit))

	key := fmt.Sprintf("%s:%s:%s:%d", keyCandles, symbol, interval, limit)
	return fetchCached[[]Candle](ctx, c, key, "/candles", query)
}

// Invalidate drops the cached responses for the given keys so the next read
// refetches. Paginated keys (trades, candles) drop every cached page; passing
// no keys drops everything.
func (c *Client) Invalidate(keys ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(keys) == 0 {
		c.cache = make(map[string]cacheEntry)
		return
	}
	for _, key := range keys {
		delete(c.cache, key)
		prefix := key + ":"
		for cached := range c.cache {
			if strings.HasPrefix(cached, prefix) {
				delete(c.cache, cached)
			}
		}
	}
}

func fetchCached[T any](ctx context.Context, c *Client, key, path string, query url.Values) (T, error) {
	var zero T

	if c.cacheTTL > 0 {
		c.mu.Lock()
		entry, ok := c.cache[key]
		c.mu.Unlock()
		if ok && c.clock().Sub(entry.fetchedAt) < c.cacheTTL {
			if value, ok := entry.value.(T); ok {
				return value, nil
			}
		}
	}

	var value T
	if err := c.getJSON(ctx, path, query, &value); err != nil {
		return zero, err
	}

	if c.cacheTTL > 0 {
		c.mu.Lock()
		c.cache[key] = cacheEntry{value: value, fetchedAt: c.clock()}
		c.mu.Unlock()
	}
	return value, nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return errs.New("rest", errs.CodeInvalid, errs.WithMessage("build request"), errs.WithCause(err))
	}
	req.Header.Set("Accept", "application/json")
	if token := strings.TrimSpace(c.token()); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := c.clock()
	resp, err := c.http.Do(req)
	if err != nil {
		return errs.New("rest", errs.CodeNetwork, errs.WithMessage("get "+path), errs.WithCause(err))
	}
	defer func() { _ = resp.Body.Close() }()

	observability.Telemetry().ObserveHistogram("tradefeed.rest.latency_ms",
		float64(c.clock().Sub(start).Milliseconds()),
		map[string]string{"path": path})

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return errs.New("rest", errs.CodeAuth, errs.WithHTTP(resp.StatusCode), errs.WithMessage("get "+path))
	case resp.StatusCode == http.StatusNotFound:
		return errs.New("rest", errs.CodeNotFound, errs.WithHTTP(resp.StatusCode), errs.WithMessage("get "+path))
	case resp.StatusCode >= 500:
		return errs.New("rest", errs.CodeUnavailable, errs.WithHTTP(resp.StatusCode), errs.WithMessage("get "+path))
	case resp.StatusCode != http.StatusOK:
		return errs.New("rest", errs.CodeInvalid, errs.WithHTTP(resp.StatusCode), errs.WithMessage("get "+path))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errs.New("rest", errs.CodeNetwork, errs.WithMessage("read "+path), errs.WithCause(err))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errs.New("rest", errs.CodeDecode, errs.WithMessage("decode "+path), errs.WithCause(err))
	}
	return nil
}
