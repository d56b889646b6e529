package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatus is the lifecycle state of a market order.
// Statuses are ordered: an order only moves forward along the success
// path, or to StatusFailed from any non-terminal state.
type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusRouting   OrderStatus = "routing"
	StatusBuilding  OrderStatus = "building"
	StatusSubmitted OrderStatus = "submitted"
	StatusConfirmed OrderStatus = "confirmed"
	StatusFailed    OrderStatus = "failed"
)

// statusRank gives each status its position on the success path.
// Terminal states rank highest so no transition can leave them.
var statusRank = map[OrderStatus]int{
	StatusPending:   0,
	StatusRouting:   1,
	StatusBuilding:  2,
	StatusSubmitted: 3,
	StatusConfirmed: 4,
	StatusFailed:    5,
}

// Rank returns the ordinal position of the status. Unknown statuses rank -1.
func (s OrderStatus) Rank() int {
	r, ok := statusRank[s]
	if !ok {
		return -1
	}
	return r
}

// IsTerminal reports whether no further transitions may occur.
func (s OrderStatus) IsTerminal() bool {
	return s == StatusConfirmed || s == StatusFailed
}

// Order represents a single market order tracked through its lifecycle.
// The ID is assigned at creation and survives retries; Attempts is
// incremented only by the engine's retry scheduler.
type Order struct {
	ID           string          `json:"id"`
	TokenIn      string          `json:"token_in"`
	TokenOut     string          `json:"token_out"`
	Amount       decimal.Decimal `json:"amount"`
	Status       OrderStatus     `json:"status"`
	CreatedUnixM int64           `json:"created_at_unix"` // Unix Micro
	Attempts     int             `json:"attempts"`
}

var (
	ErrTokenInRequired  = errors.New("token_in is required")
	ErrTokenOutRequired = errors.New("token_out is required")
	ErrAmountPositive   = errors.New("amount must be positive")
)

// NewMarketOrder builds a pending order with a fresh id.
// Returns a validation error for empty tokens or non-positive amount.
func NewMarketOrder(tokenIn, tokenOut string, amount decimal.Decimal) (*Order, error) {
	if tokenIn == "" {
		return nil, ErrTokenInRequired
	}
	if tokenOut == "" {
		return nil, ErrTokenOutRequired
	}
	if !amount.IsPositive() {
		return nil, ErrAmountPositive
	}

	return &Order{
		ID:           uuid.NewString(),
		TokenIn:      tokenIn,
		TokenOut:     tokenOut,
		Amount:       amount,
		Status:       StatusPending,
		CreatedUnixM: time.Now().UnixMicro(),
	}, nil
}

// Retry returns a copy of the order with the attempt counter advanced.
// The copy keeps the original id so the event log stays attached.
func (o *Order) Retry() *Order {
	next := *o
	next.Attempts = o.Attempts + 1
	return &next
}
