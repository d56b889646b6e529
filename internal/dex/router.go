package dex

import (
	"context"

	"github.com/shopspring/decimal"
)

// Quote is one venue's offer for a swap.
type Quote struct {
	Dex   string          `json:"dex"`
	Price decimal.Decimal `json:"price"`
	Fee   decimal.Decimal `json:"fee"`
}

// ExecResult is the settlement of an executed swap. ExecutedPrice may
// deviate from the quoted price (slippage).
type ExecResult struct {
	TxHash        string          `json:"tx_hash"`
	ExecutedPrice decimal.Decimal `json:"executed_price"`
}

// Router defines the interface to the quote/execution provider.
// Quote is independent per venue and safe to call concurrently; both
// calls have non-trivial latency and may fail.
type Router interface {
	// Venues lists the liquidity sources, in priority order. Ties on
	// price are broken in favor of the earlier venue.
	Venues() []string

	// Quote returns the venue's offer for swapping amount of tokenIn
	// into tokenOut.
	Quote(ctx context.Context, venue, tokenIn, tokenOut string, amount decimal.Decimal) (Quote, error)

	// Execute settles a swap at the given venue and quoted price.
	Execute(ctx context.Context, venue string, price decimal.Decimal) (ExecResult, error)
}
