// Package rates converts foreign-currency amounts into the base currency
// using a price feed fronted by a TTL cache.
package rates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/DukeRupert/cairn/internal/cache"
	"github.com/DukeRupert/cairn/internal/domain"
	"github.com/DukeRupert/cairn/internal/metrics"
)

// ErrUnknownCurrency is returned when the feed has no rate for a currency.
var ErrUnknownCurrency = errors.New("unknown currency")

// Feed returns exchange rates quoted against base: 1 base = rates[code] code.
type Feed interface {
	Latest(ctx context.Context, base string) (map[string]float64, error)
}

// =============================================================================
// HTTP feed
// =============================================================================

// DefaultFeedURL serves {"result":"success","rates":{"EUR":0.92,...}} for /latest/{base}.
const DefaultFeedURL = "https://open.er-api.com/v6/latest"

// HTTPFeed fetches rates from a JSON price API.
type HTTPFeed struct {
	baseURL string
	client  *http.Client
}

// NewHTTPFeed creates a feed rooted at baseURL.
func NewHTTPFeed(baseURL string, timeout time.Duration) *HTTPFeed {
	if baseURL == "" {
		baseURL = DefaultFeedURL
	}
	return &HTTPFeed{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type feedResponse struct {
	Result string             `json:"result"`
	Rates  map[string]float64 `json:"rates"`
}

// Latest fetches current rates for base.
func (f *HTTPFeed) Latest(ctx context.Context, base string) (map[string]float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"/"+base, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch rates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("rate feed status %d: %s", resp.StatusCode, body)
	}

	var out feedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode rates: %w", err)
	}
	if out.Result != "" && out.Result != "success" {
		return nil, fmt.Errorf("rate feed result %q", out.Result)
	}
	return out.Rates, nil
}

// StaticFeed serves fixed rates. Used in development and tests.
type StaticFeed map[string]map[string]float64

// Latest returns the fixed rates for base.
func (f StaticFeed) Latest(ctx context.Context, base string) (map[string]float64, error) {
	r, ok := f[base]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCurrency, base)
	}
	return r, nil
}

// =============================================================================
// Converter
// =============================================================================

// Converter converts amounts between currencies with cached rates.
type Converter struct {
	feed   Feed
	cache  cache.Cache
	ttl    time.Duration
	logger *slog.Logger
}

// NewConverter creates a converter. Rates are cached per base currency for ttl.
func NewConverter(feed Feed, c cache.Cache, ttl time.Duration, logger *slog.Logger) *Converter {
	return &Converter{feed: feed, cache: c, ttl: ttl, logger: logger}
}

func cacheKey(base string) string {
	return "rates:" + base
}

// rates returns the rate table for base, from cache when fresh.
func (c *Converter) rates(ctx context.Context, base string) (map[string]float64, error) {
	if raw, ok, err := c.cache.Get(ctx, cacheKey(base)); err != nil {
		c.logger.Warn("rate cache read failed", "base", base, "error", err)
	} else if ok {
		var table map[string]float64
		if err := json.Unmarshal(raw, &table); err == nil {
			metrics.RateCacheLookup(true)
			return table, nil
		}
	}
	metrics.RateCacheLookup(false)

	table, err := c.feed.Latest(ctx, base)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(table); err == nil {
		if err := c.cache.Set(ctx, cacheKey(base), raw, c.ttl); err != nil {
			c.logger.Warn("rate cache write failed", "base", base, "error", err)
		}
	}
	return table, nil
}

// Rate returns how many units of to one unit of from buys.
func (c *Converter) Rate(ctx context.Context, from, to string) (float64, error) {
	if from == to {
		return 1, nil
	}
	table, err := c.rates(ctx, from)
	if err != nil {
		return 0, err
	}
	r, ok := table[to]
	if !ok || r <= 0 {
		return 0, fmt.Errorf("%w: %s", ErrUnknownCurrency, to)
	}
	return r, nil
}

// Convert converts amount from one currency to another, rounding to the cent.
func (c *Converter) Convert(ctx context.Context, amount domain.Money, from, to string) (domain.Money, error) {
	from, err := domain.NormalizeCurrency(from)
	if err != nil {
		return 0, err
	}
	to, err = domain.NormalizeCurrency(to)
	if err != nil {
		return 0, err
	}

	r, err := c.Rate(ctx, from, to)
	if err != nil {
		return 0, err
	}
	converted := math.Round(float64(amount) * r)
	if math.IsNaN(converted) || math.Abs(converted) > float64(domain.MaxMoney) {
		return 0, fmt.Errorf("convert %s %s: %w", amount, from, domain.ErrAmountOutOfRange)
	}
	return domain.Money(converted), nil
}
