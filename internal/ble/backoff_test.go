package ble

import (
	"testing"
	"time"
)

func TestExponentialBackoff(t *testing.T) {
	b := ExponentialBackoff{Base: time.Second, Max: 30 * time.Second}
	delays := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second, // capped
		30 * time.Second, // still capped
	}

	for i, want := range delays {
		if got := b.Delay(i); got != want {
			t.Errorf("Delay(%d) = %v, want %v", i, got, want)
		}
	}
}

func TestExponentialBackoffOverflowProtection(t *testing.T) {
	b := ExponentialBackoff{Base: time.Second, Max: 30 * time.Second}
	if got := b.Delay(100); got != 30*time.Second {
		t.Errorf("Delay(100) = %v, want 30s (capped at max)", got)
	}
	if got := b.Delay(-3); got != time.Second {
		t.Errorf("Delay(-3) = %v, want 1s", got)
	}

	b = ExponentialBackoff{Base: time.Hour, Max: 1 << 62}
	if got := b.Delay(31); got <= 0 {
		t.Errorf("Delay(31) = %v, should be positive", got)
	}
}

func TestTieredBackoff(t *testing.T) {
	b := TieredBackoff{}
	for i, want := range DefaultTiers {
		if got := b.Delay(i); got != want {
			t.Errorf("Delay(%d) = %v, want %v", i, got, want)
		}
	}
	if got := b.Delay(50); got != 5*time.Second {
		t.Errorf("Delay(50) = %v, want 5s (last tier)", got)
	}

	custom := TieredBackoff{Tiers: []time.Duration{10 * time.Millisecond}}
	if got := custom.Delay(3); got != 10*time.Millisecond {
		t.Errorf("custom Delay(3) = %v, want 10ms", got)
	}
}

func TestNewBackoffPolicy(t *testing.T) {
	p, err := NewBackoffPolicy("", time.Second, time.Minute)
	if err != nil {
		t.Fatalf("NewBackoffPolicy(\"\") error = %v", err)
	}
	if _, ok := p.(ExponentialBackoff); !ok {
		t.Errorf("default policy = %T, want ExponentialBackoff", p)
	}

	p, err = NewBackoffPolicy(PolicyTiered, 0, 0)
	if err != nil {
		t.Fatalf("NewBackoffPolicy(tiered) error = %v", err)
	}
	if _, ok := p.(TieredBackoff); !ok {
		t.Errorf("tiered policy = %T, want TieredBackoff", p)
	}

	if _, err := NewBackoffPolicy("linear", 0, 0); err == nil {
		t.Error("NewBackoffPolicy(linear) should fail")
	}
}
