package lending

import (
	"sync"
	"time"
)

// DefaultRoundDuration is the block time the rounds-per-year default assumes.
const DefaultRoundDuration = 6 * time.Second

// RoundSource supplies the round an external call executes in.
type RoundSource interface {
	Round() uint64
}

// ClockRounds derives rounds from wall-clock time. The reported round never
// decreases, even if the clock steps backwards.
type ClockRounds struct {
	mu       sync.Mutex
	duration time.Duration
	now      func() time.Time
	last     uint64
}

// NewClockRounds counts rounds of the given duration since the unix epoch.
func NewClockRounds(duration time.Duration) *ClockRounds {
	if duration <= 0 {
		duration = DefaultRoundDuration
	}
	return &ClockRounds{duration: duration, now: time.Now}
}

// Round implements RoundSource.
func (c *ClockRounds) Round() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	elapsed := c.now().UnixNano()
	if elapsed < 0 {
		elapsed = 0
	}
	if round := uint64(elapsed / int64(c.duration)); round > c.last {
		c.last = round
	}
	return c.last
}

// ManualRounds is a RoundSource advanced explicitly, used by tests and
// replay tooling.
type ManualRounds struct {
	mu    sync.Mutex
	round uint64
}

// NewManualRounds starts at round.
func NewManualRounds(round uint64) *ManualRounds {
	return &ManualRounds{round: round}
}

// Round implements RoundSource.
func (m *ManualRounds) Round() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.round
}

// Advance moves the clock forward by n rounds.
func (m *ManualRounds) Advance(n uint64) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.round += n
	return m.round
}
