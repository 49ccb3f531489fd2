package oracle

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTickerStripsSuffix(t *testing.T) {
	require := require.New(t)

	ticker, err := Ticker("WEGLD-123456")
	require.NoError(err)
	require.Equal("WEGLD", ticker)

	_, err = Ticker("ABC")
	require.Error(err)
}

func TestAdapterPricesAgainstUSD(t *testing.T) {
	require := require.New(t)

	feed := NewManualFeed()
	require.NoError(feed.Set("USDC", "USD", big.NewInt(100), 2, time.Now()))
	adapter := NewAdapter(feed)

	quote, err := adapter.Price(context.Background(), "USDC-123456")
	require.NoError(err)
	require.Equal(int64(100), quote.Price.Int64())
	require.Equal(uint8(2), quote.Decimals)

	// The returned quote is a copy.
	quote.Price.SetInt64(1)
	again, err := adapter.Price(context.Background(), "USDC-123456")
	require.NoError(err)
	require.Equal(int64(100), again.Price.Int64())
}

func TestAdapterMissingQuoteIsUnavailable(t *testing.T) {
	adapter := NewAdapter(NewManualFeed())
	_, err := adapter.Price(context.Background(), "WEGLD-123456")
	require.ErrorIs(t, err, ErrPriceUnavailable)

	_, err = NewAdapter(nil).Price(context.Background(), "WEGLD-123456")
	require.ErrorIs(t, err, ErrPriceUnavailable)
}

type failingFeed struct{}

func (failingFeed) Quote(context.Context, string, string) (Quote, error) {
	return Quote{}, errors.New("upstream down")
}

func TestAdapterWrapsFeedFailures(t *testing.T) {
	_, err := NewAdapter(failingFeed{}).Price(context.Background(), "WEGLD-123456")
	require.ErrorIs(t, err, ErrPriceUnavailable)
}

func TestAggregatorSkipsStaleQuotes(t *testing.T) {
	require := require.New(t)

	now := time.Unix(1_700_000_000, 0)
	stale := NewManualFeed()
	require.NoError(stale.Set("EGLD", "USD", big.NewInt(19_000), 2, now.Add(-time.Hour)))
	fresh := NewManualFeed()
	require.NoError(fresh.Set("EGLD", "USD", big.NewInt(20_000), 2, now.Add(-time.Second)))

	agg := NewAggregator(time.Minute)
	agg.now = func() time.Time { return now }
	agg.Register("stale", stale)
	agg.Register("fresh", fresh)

	quote, err := agg.Quote(context.Background(), "EGLD", "USD")
	require.NoError(err)
	require.Equal(int64(20_000), quote.Price.Int64())

	onlyStale := NewAggregator(time.Minute)
	onlyStale.now = func() time.Time { return now }
	onlyStale.Register("stale", stale)
	_, err = onlyStale.Quote(context.Background(), "EGLD", "USD")
	require.ErrorIs(err, ErrPriceUnavailable)
}

func TestHTTPFeedDecodesPayload(t *testing.T) {
	require := require.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("base") != "EGLD" || r.URL.Query().Get("quote") != "USD" {
			http.Error(w, "unknown pair", http.StatusNotFound)
			return
		}
		if r.Header.Get("x-api-key") != "secret" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		_, _ = w.Write([]byte(`{"price":"20000","decimals":2,"timestamp":1700000000}`))
	}))
	defer srv.Close()

	feed := NewHTTPFeed(srv.Client(), srv.URL, "secret")
	quote, err := feed.Quote(context.Background(), "egld", "usd")
	require.NoError(err)
	require.Equal(int64(20_000), quote.Price.Int64())
	require.Equal(uint8(2), quote.Decimals)
	require.Equal(int64(1_700_000_000), quote.Timestamp.Unix())

	_, err = feed.Quote(context.Background(), "BTC", "USD")
	require.Error(err)
}

func TestQuoteValueAndUnits(t *testing.T) {
	q := Quote{Price: big.NewInt(20_000), Decimals: 2}
	value := q.Value(big.NewInt(3))
	if value.Cmp(big.NewInt(60_000)) != 0 {
		t.Fatalf("value: got %s want 60000", value)
	}
	units := q.Units(big.NewInt(45_000))
	if units.Cmp(big.NewInt(2)) != 0 {
		t.Fatalf("units: got %s want 2", units)
	}
}
