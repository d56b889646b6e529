package infra

import (
	"testing"
	"time"
)

// =====================================================
// Infra Backoff Tests
// =====================================================

func TestCalculateBackoff(t *testing.T) {
	base := 1 * time.Second
	max := 60 * time.Second

	tests := []struct {
		retryCount int
		want       time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{10, 60 * time.Second},  // capped
		{100, 60 * time.Second}, // still capped
		{-1, 1 * time.Second},   // negative falls back to base
	}

	for _, tt := range tests {
		delay := CalculateBackoff(tt.retryCount, base, max)
		if delay != tt.want {
			t.Errorf("CalculateBackoff(%d) = %s, want %s", tt.retryCount, delay, tt.want)
		}
	}
}

func TestCalculateBackoff_CustomBase(t *testing.T) {
	base := 50 * time.Millisecond

	tests := []struct {
		retryCount int
		want       time.Duration
	}{
		{0, 50 * time.Millisecond},
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
	}

	for _, tt := range tests {
		delay := CalculateBackoff(tt.retryCount, base, time.Second)
		if delay != tt.want {
			t.Errorf("CalculateBackoff(%d) = %s, want %s", tt.retryCount, delay, tt.want)
		}
	}
}

func TestCalculateBackoff_ZeroConfigDefaults(t *testing.T) {
	if got := CalculateBackoff(0, 0, 0); got != DefaultBaseDelay {
		t.Errorf("expected default base %s, got %s", DefaultBaseDelay, got)
	}
}
