package dex

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func fastRouter(failRate float64) *MockDexRouter {
	return NewMockDexRouter(Config{
		BasePrice: decimal.NewFromInt(10),
		FailRate:  failRate,
		Seed:      42,
	})
}

func TestMockDexRouter_Venues(t *testing.T) {
	r := fastRouter(0)
	venues := r.Venues()
	if len(venues) != 2 {
		t.Fatalf("expected 2 venues, got %d", len(venues))
	}
	if venues[0] != "raydium" || venues[1] != "meteora" {
		t.Errorf("unexpected venue order: %v", venues)
	}
}

func TestMockDexRouter_QuoteWithinJitterBand(t *testing.T) {
	r := fastRouter(0)
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		q, err := r.Quote(ctx, "raydium", "SOL", "USDC", decimal.NewFromInt(10))
		if err != nil {
			t.Fatalf("Quote failed: %v", err)
		}
		lo := decimal.NewFromFloat(9.8)
		hi := decimal.NewFromFloat(10.2)
		if q.Price.LessThan(lo) || q.Price.GreaterThan(hi) {
			t.Errorf("raydium price %s outside [%s, %s]", q.Price, lo, hi)
		}
		if !q.Fee.Equal(decimal.NewFromFloat(0.003)) {
			t.Errorf("unexpected raydium fee %s", q.Fee)
		}
	}
}

func TestMockDexRouter_UnknownVenue(t *testing.T) {
	r := fastRouter(0)
	ctx := context.Background()

	if _, err := r.Quote(ctx, "orca", "SOL", "USDC", decimal.NewFromInt(1)); err == nil {
		t.Error("expected error for unknown venue on Quote")
	}
	if _, err := r.Execute(ctx, "orca", decimal.NewFromInt(10)); err == nil {
		t.Error("expected error for unknown venue on Execute")
	}
}

func TestMockDexRouter_ExecuteSlippage(t *testing.T) {
	r := fastRouter(0)
	ctx := context.Background()
	price := decimal.NewFromFloat(9.5)

	for i := 0; i < 50; i++ {
		res, err := r.Execute(ctx, "meteora", price)
		if err != nil {
			t.Fatalf("Execute failed: %v", err)
		}
		if !strings.HasPrefix(res.TxHash, "0x") || len(res.TxHash) != 34 {
			t.Errorf("malformed tx hash %q", res.TxHash)
		}
		lo := price.Mul(decimal.NewFromFloat(0.99))
		hi := price.Mul(decimal.NewFromFloat(1.01))
		if res.ExecutedPrice.LessThan(lo) || res.ExecutedPrice.GreaterThan(hi) {
			t.Errorf("executed price %s outside ±1%% of %s", res.ExecutedPrice, price)
		}
	}
}

func TestMockDexRouter_InjectedFailures(t *testing.T) {
	r := fastRouter(1.0)
	ctx := context.Background()

	_, err := r.Quote(ctx, "raydium", "SOL", "USDC", decimal.NewFromInt(1))
	if !errors.Is(err, ErrVenueUnavailable) {
		t.Errorf("expected ErrVenueUnavailable, got %v", err)
	}

	_, err = r.Execute(ctx, "raydium", decimal.NewFromInt(10))
	if !errors.Is(err, ErrVenueUnavailable) {
		t.Errorf("expected ErrVenueUnavailable, got %v", err)
	}
}

func TestMockDexRouter_QuoteHonorsContext(t *testing.T) {
	r := NewMockDexRouter(Config{
		BasePrice:    decimal.NewFromInt(10),
		QuoteLatency: 5 * time.Second,
		Seed:         1,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := r.Quote(ctx, "raydium", "SOL", "USDC", decimal.NewFromInt(1))
	if err == nil {
		t.Fatal("expected context error")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Quote did not respect cancellation, took %s", elapsed)
	}
}
