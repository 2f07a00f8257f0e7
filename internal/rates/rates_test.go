package rates

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DukeRupert/cairn/internal/cache"
	"github.com/DukeRupert/cairn/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingFeed struct {
	StaticFeed
	calls int
}

func (f *countingFeed) Latest(ctx context.Context, base string) (map[string]float64, error) {
	f.calls++
	return f.StaticFeed.Latest(ctx, base)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestConverter_Convert(t *testing.T) {
	feed := &countingFeed{StaticFeed: StaticFeed{
		"EUR": {"USD": 1.08, "GBP": 0.85},
	}}
	now := time.Date(2026, time.October, 16, 9, 0, 0, 0, time.UTC)
	c := NewConverter(feed, cache.NewMemory().WithClock(func() time.Time { return now }), time.Hour, testLogger())
	ctx := context.Background()

	got, err := c.Convert(ctx, 100_00, "eur", "USD")
	require.NoError(t, err)
	assert.Equal(t, domain.Money(108_00), got)

	_, err = c.Convert(ctx, 50_00, "EUR", "GBP")
	require.NoError(t, err)
	assert.Equal(t, 1, feed.calls, "second lookup served from cache")

	now = now.Add(time.Hour)
	_, err = c.Convert(ctx, 1_00, "EUR", "USD")
	require.NoError(t, err)
	assert.Equal(t, 2, feed.calls, "expired entry refetched")

	same, err := c.Convert(ctx, 12_34, "USD", "")
	require.NoError(t, err)
	assert.Equal(t, domain.Money(12_34), same)
}

func TestConverter_UnknownCurrency(t *testing.T) {
	c := NewConverter(StaticFeed{"EUR": {"USD": 1.08}}, cache.NewMemory(), time.Hour, testLogger())

	_, err := c.Convert(context.Background(), 1_00, "EUR", "JPY")
	assert.ErrorIs(t, err, ErrUnknownCurrency)

	_, err = c.Convert(context.Background(), 1_00, "NOTACODE", "USD")
	assert.Error(t, err)
}

func TestConverter_OutOfRange(t *testing.T) {
	c := NewConverter(StaticFeed{"IDR": {"USD": 0.000064}, "USD": {"IDR": 15600}}, cache.NewMemory(), time.Hour, testLogger())

	_, err := c.Convert(context.Background(), domain.MaxMoney, "USD", "IDR")
	assert.ErrorIs(t, err, domain.ErrAmountOutOfRange)

	got, err := c.Convert(context.Background(), 1, "IDR", "USD")
	require.NoError(t, err)
	assert.Zero(t, got, "sub-cent results round to zero for the caller to reject")
}

func TestHTTPFeed_Latest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/latest/GBP", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"result":"success","base_code":"GBP","rates":{"USD":1.27,"EUR":1.17}}`))
	}))
	defer srv.Close()

	feed := NewHTTPFeed(srv.URL+"/latest/", time.Second)
	table, err := feed.Latest(context.Background(), "GBP")
	require.NoError(t, err)
	assert.InDelta(t, 1.27, table["USD"], 1e-9)
}

func TestHTTPFeed_Error(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewHTTPFeed(srv.URL, time.Second).Latest(context.Background(), "USD")
	assert.ErrorContains(t, err, "502")
}
