package ble

import (
	"fmt"
	"time"
)

// BackoffPolicy returns the delay before reconnection attempt n (0-based,
// counted from the first retry).
type BackoffPolicy interface {
	Delay(attempt int) time.Duration
}

// ExponentialBackoff doubles the delay per attempt: min(Base*2^n, Max).
type ExponentialBackoff struct {
	Base time.Duration
	Max  time.Duration
}

// maxShift keeps 1<<n inside time.Duration range.
const maxShift = 30

// Delay implements BackoffPolicy.
func (b ExponentialBackoff) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > maxShift {
		attempt = maxShift
	}
	if b.Base <= 0 {
		return 0
	}
	shift := time.Duration(1) << uint(attempt)
	if b.Base > b.Max/shift {
		return b.Max
	}
	return b.Base * shift
}

// TieredBackoff steps through fixed delays and stays on the last one. It
// suits links that need sub-second recovery.
type TieredBackoff struct {
	Tiers []time.Duration
}

// DefaultTiers is the immediate-reconnect schedule.
var DefaultTiers = []time.Duration{
	100 * time.Millisecond,
	500 * time.Millisecond,
	1 * time.Second,
	2 * time.Second,
	5 * time.Second,
}

// Delay implements BackoffPolicy.
func (b TieredBackoff) Delay(attempt int) time.Duration {
	tiers := b.Tiers
	if len(tiers) == 0 {
		tiers = DefaultTiers
	}
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= len(tiers) {
		return tiers[len(tiers)-1]
	}
	return tiers[attempt]
}

// Backoff policy names accepted by NewBackoffPolicy.
const (
	PolicyExponential = "exponential"
	PolicyTiered      = "tiered"
)

// NewBackoffPolicy selects a policy by name.
func NewBackoffPolicy(name string, base, max time.Duration) (BackoffPolicy, error) {
	switch name {
	case PolicyExponential, "":
		return ExponentialBackoff{Base: base, Max: max}, nil
	case PolicyTiered:
		return TieredBackoff{Tiers: DefaultTiers}, nil
	default:
		return nil, fmt.Errorf("ble: unknown backoff policy %q", name)
	}
}
