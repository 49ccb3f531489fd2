package oracle

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"
)

// ManualFeed is an in-memory feed used for operator overrides and tests.
type ManualFeed struct {
	mu     sync.RWMutex
	quotes map[string]Quote
}

// NewManualFeed constructs an empty manual feed.
func NewManualFeed() *ManualFeed {
	return &ManualFeed{quotes: make(map[string]Quote)}
}

// Set stores the price for the pair.
func (m *ManualFeed) Set(base, quote string, price *big.Int, decimals uint8, ts time.Time) error {
	if m == nil {
		return fmt.Errorf("manual feed not configured")
	}
	if strings.TrimSpace(base) == "" || strings.TrimSpace(quote) == "" {
		return fmt.Errorf("manual feed: base and quote required")
	}
	if price == nil || price.Sign() <= 0 {
		return fmt.Errorf("manual feed: price must be positive")
	}
	m.mu.Lock()
	m.quotes[pairKey(base, quote)] = Quote{
		Price:     new(big.Int).Set(price),
		Decimals:  decimals,
		Timestamp: ts,
		Source:    "manual",
	}
	m.mu.Unlock()
	return nil
}

// SetString parses a base-10 integer price.
func (m *ManualFeed) SetString(base, quote, price string, decimals uint8, ts time.Time) error {
	value, ok := new(big.Int).SetString(strings.TrimSpace(price), 10)
	if !ok {
		return fmt.Errorf("manual feed: invalid price %q", price)
	}
	return m.Set(base, quote, value, decimals, ts)
}

// Delete removes the pair.
func (m *ManualFeed) Delete(base, quote string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	delete(m.quotes, pairKey(base, quote))
	m.mu.Unlock()
}

// Quote implements Feed.
func (m *ManualFeed) Quote(_ context.Context, base, quote string) (Quote, error) {
	if m == nil {
		return Quote{}, fmt.Errorf("manual feed not configured")
	}
	m.mu.RLock()
	stored, ok := m.quotes[pairKey(base, quote)]
	m.mu.RUnlock()
	if !ok {
		return Quote{}, fmt.Errorf("%w: no manual quote for %s/%s", ErrPriceUnavailable, base, quote)
	}
	return stored.Clone(), nil
}
