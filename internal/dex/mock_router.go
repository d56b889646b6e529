package dex

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// ErrVenueUnavailable is the opaque failure a venue returns when a
// simulated call is dropped. Callers treat any router error uniformly.
var ErrVenueUnavailable = fmt.Errorf("venue unavailable")

// venueSpec describes one simulated liquidity source. Quoted prices are
// base * (jitterLow + r*jitterSpan), so venues overlap but differ in
// spread and fee.
type venueSpec struct {
	name       string
	fee        decimal.Decimal
	jitterLow  float64
	jitterSpan float64
}

// Config controls the simulated latency and failure behaviour.
type Config struct {
	BasePrice      decimal.Decimal
	QuoteLatency   time.Duration
	ExecMinLatency time.Duration
	ExecMaxLatency time.Duration
	FailRate       float64 // probability in [0,1] that any call fails
	Seed           uint64  // 0 picks a random seed
}

// MockDexRouter simulates two competing venues with latency, price
// jitter, slippage and optional injected failures.
type MockDexRouter struct {
	cfg    Config
	venues []venueSpec

	mu  sync.Mutex
	rng *rand.Rand
}

// NewMockDexRouter creates the simulated router. Venue characteristics
// follow the reference venues: raydium quotes tighter but charges a
// higher fee than meteora.
func NewMockDexRouter(cfg Config) *MockDexRouter {
	if cfg.BasePrice.IsZero() {
		cfg.BasePrice = decimal.NewFromInt(10)
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}

	return &MockDexRouter{
		cfg: cfg,
		venues: []venueSpec{
			{name: "raydium", fee: decimal.NewFromFloat(0.003), jitterLow: 0.98, jitterSpan: 0.04},
			{name: "meteora", fee: decimal.NewFromFloat(0.002), jitterLow: 0.97, jitterSpan: 0.05},
		},
		rng: rand.New(rand.NewPCG(seed, seed>>1)),
	}
}

// Venues lists the simulated liquidity sources in priority order.
func (m *MockDexRouter) Venues() []string {
	names := make([]string, len(m.venues))
	for i, v := range m.venues {
		names[i] = v.name
	}
	return names
}

// Quote simulates a venue quote with latency and price jitter.
func (m *MockDexRouter) Quote(ctx context.Context, venue, tokenIn, tokenOut string, amount decimal.Decimal) (Quote, error) {
	spec, err := m.spec(venue)
	if err != nil {
		return Quote{}, err
	}

	if err := sleep(ctx, m.cfg.QuoteLatency); err != nil {
		return Quote{}, err
	}
	if m.roll() {
		return Quote{}, fmt.Errorf("%s quote: %w", venue, ErrVenueUnavailable)
	}

	jitter := decimal.NewFromFloat(spec.jitterLow + m.float()*spec.jitterSpan)
	return Quote{
		Dex:   spec.name,
		Price: m.cfg.BasePrice.Mul(jitter),
		Fee:   spec.fee,
	}, nil
}

// Execute simulates settlement: multi-second latency and up to ±1%
// slippage on the quoted price.
func (m *MockDexRouter) Execute(ctx context.Context, venue string, price decimal.Decimal) (ExecResult, error) {
	if _, err := m.spec(venue); err != nil {
		return ExecResult{}, err
	}

	latency := m.cfg.ExecMinLatency
	if span := m.cfg.ExecMaxLatency - m.cfg.ExecMinLatency; span > 0 {
		latency += time.Duration(m.float() * float64(span))
	}
	if err := sleep(ctx, latency); err != nil {
		return ExecResult{}, err
	}
	if m.roll() {
		return ExecResult{}, fmt.Errorf("%s execute: %w", venue, ErrVenueUnavailable)
	}

	slip := decimal.NewFromFloat(1 + (m.float()*0.02 - 0.01))
	return ExecResult{
		TxHash:        m.txHash(),
		ExecutedPrice: price.Mul(slip),
	}, nil
}

func (m *MockDexRouter) spec(venue string) (venueSpec, error) {
	for _, v := range m.venues {
		if v.name == venue {
			return v, nil
		}
	}
	return venueSpec{}, fmt.Errorf("unknown venue %q", venue)
}

func (m *MockDexRouter) roll() bool {
	if m.cfg.FailRate <= 0 {
		return false
	}
	return m.float() < m.cfg.FailRate
}

func (m *MockDexRouter) float() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rng.Float64()
}

func (m *MockDexRouter) txHash() string {
	buf := make([]byte, 16)
	m.mu.Lock()
	for i := range buf {
		buf[i] = byte(m.rng.UintN(256))
	}
	m.mu.Unlock()
	return "0x" + hex.EncodeToString(buf)
}

// sleep waits for d or until the context ends.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
