package oracle

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"
)

const (
	// TickerSuffixLen is the length of the "-xxxxxx" suffix carried by every
	// asset identifier.
	TickerSuffixLen = 7
	// DefaultQuoteTicker is the currency every asset is priced in.
	DefaultQuoteTicker = "USD"
)

// ErrPriceUnavailable indicates no usable quote exists for the pair. Callers
// treat it as fatal for the operation in progress.
var ErrPriceUnavailable = errors.New("oracle: price unavailable")

// Quote is a price in the quote currency scaled by 10^Decimals.
type Quote struct {
	Price     *big.Int
	Decimals  uint8
	Timestamp time.Time
	Source    string
}

// Clone returns a deep copy of the quote.
func (q Quote) Clone() Quote {
	clone := q
	if q.Price != nil {
		clone.Price = new(big.Int).Set(q.Price)
	}
	return clone
}

// Value returns amount * price.
func (q Quote) Value(amount *big.Int) *big.Int {
	if amount == nil || q.Price == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Mul(amount, q.Price)
}

// Units converts a value in the quote scale back to asset units, truncating.
func (q Quote) Units(value *big.Int) *big.Int {
	if value == nil || q.Price == nil || q.Price.Sign() == 0 {
		return big.NewInt(0)
	}
	return new(big.Int).Quo(value, q.Price)
}

// Feed resolves a price for a base/quote ticker pair.
type Feed interface {
	Quote(ctx context.Context, base, quote string) (Quote, error)
}

// Ticker strips the random identifier suffix from an asset id.
func Ticker(asset string) (string, error) {
	trimmed := strings.TrimSpace(asset)
	if len(trimmed) <= TickerSuffixLen {
		return "", fmt.Errorf("oracle: asset id %q too short for a ticker", asset)
	}
	return trimmed[:len(trimmed)-TickerSuffixLen], nil
}

// Adapter converts asset identifiers into tickers and queries the configured
// feed. It never falls back to previously seen prices.
type Adapter struct {
	mu          sync.RWMutex
	feed        Feed
	quoteTicker string
}

// NewAdapter constructs an adapter pricing assets against DefaultQuoteTicker.
func NewAdapter(feed Feed) *Adapter {
	return &Adapter{feed: feed, quoteTicker: DefaultQuoteTicker}
}

// SetFeed swaps the upstream feed.
func (a *Adapter) SetFeed(feed Feed) {
	if a == nil {
		return
	}
	a.mu.Lock()
	a.feed = feed
	a.mu.Unlock()
}

// SetQuoteTicker overrides the quote currency.
func (a *Adapter) SetQuoteTicker(ticker string) {
	if a == nil {
		return
	}
	trimmed := strings.ToUpper(strings.TrimSpace(ticker))
	if trimmed == "" {
		return
	}
	a.mu.Lock()
	a.quoteTicker = trimmed
	a.mu.Unlock()
}

// Price returns the quote-currency price of asset.
func (a *Adapter) Price(ctx context.Context, asset string) (Quote, error) {
	if a == nil {
		return Quote{}, fmt.Errorf("%w: adapter not configured", ErrPriceUnavailable)
	}
	a.mu.RLock()
	feed := a.feed
	quoteTicker := a.quoteTicker
	a.mu.RUnlock()
	if feed == nil {
		return Quote{}, fmt.Errorf("%w: no feed configured", ErrPriceUnavailable)
	}
	base, err := Ticker(asset)
	if err != nil {
		return Quote{}, fmt.Errorf("%w: %v", ErrPriceUnavailable, err)
	}
	quote, err := feed.Quote(ctx, base, quoteTicker)
	if err != nil {
		if errors.Is(err, ErrPriceUnavailable) {
			return Quote{}, err
		}
		return Quote{}, fmt.Errorf("%w: %s/%s: %v", ErrPriceUnavailable, base, quoteTicker, err)
	}
	if quote.Price == nil || quote.Price.Sign() <= 0 {
		return Quote{}, fmt.Errorf("%w: %s/%s returned non-positive price", ErrPriceUnavailable, base, quoteTicker)
	}
	return quote.Clone(), nil
}

func normaliseSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func pairKey(base, quote string) string {
	return normaliseSymbol(base) + "/" + normaliseSymbol(quote)
}
