package oracle

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type namedFeed struct {
	name string
	feed Feed
}

// Aggregator consults feeds in priority order and returns the first quote
// inside the freshness window.
type Aggregator struct {
	mu     sync.RWMutex
	feeds  []namedFeed
	maxAge time.Duration
	now    func() time.Time
}

// NewAggregator builds an aggregator. A zero maxAge disables the freshness
// check.
func NewAggregator(maxAge time.Duration) *Aggregator {
	return &Aggregator{maxAge: maxAge, now: time.Now}
}

// Register appends a feed to the priority list.
func (a *Aggregator) Register(name string, feed Feed) {
	if a == nil || feed == nil {
		return
	}
	a.mu.Lock()
	a.feeds = append(a.feeds, namedFeed{name: name, feed: feed})
	a.mu.Unlock()
}

// Quote implements Feed.
func (a *Aggregator) Quote(ctx context.Context, base, quote string) (Quote, error) {
	if a == nil {
		return Quote{}, fmt.Errorf("oracle aggregator not configured")
	}
	a.mu.RLock()
	feeds := append([]namedFeed(nil), a.feeds...)
	maxAge := a.maxAge
	now := a.now
	a.mu.RUnlock()

	var cutoff time.Time
	if maxAge > 0 {
		cutoff = now().Add(-maxAge)
	}
	var lastErr error
	for _, entry := range feeds {
		q, err := entry.feed.Quote(ctx, base, quote)
		if err != nil {
			lastErr = err
			continue
		}
		if q.Price == nil || q.Price.Sign() <= 0 {
			lastErr = fmt.Errorf("oracle %s returned invalid price", entry.name)
			continue
		}
		if maxAge > 0 && q.Timestamp.Before(cutoff) {
			lastErr = fmt.Errorf("oracle %s: stale quote from %s", entry.name, q.Timestamp.UTC().Format(time.RFC3339))
			continue
		}
		result := q.Clone()
		if result.Source == "" {
			result.Source = entry.name
		}
		return result, nil
	}
	if lastErr == nil {
		return Quote{}, fmt.Errorf("%w: no feeds registered", ErrPriceUnavailable)
	}
	return Quote{}, fmt.Errorf("%w: %v", ErrPriceUnavailable, lastErr)
}
