package event

import (
	"swap_go/internal/domain"

	"github.com/shopspring/decimal"
)

// OrderEvent is one immutable entry in an order's event log.
// Payload carries transition detail where the status has any: venue and
// price for building, settlement result for confirmed, error for failed.
type OrderEvent struct {
	OrderID string             `json:"order_id"`
	Status  domain.OrderStatus `json:"status"`
	Payload any                `json:"payload,omitempty"`
	TsUnixM int64              `json:"ts"` // Unix Micro
}

// BuildingPayload reports the venue chosen by routing and its quoted price.
type BuildingPayload struct {
	Dex   string          `json:"dex"`
	Price decimal.Decimal `json:"price"`
}

// ConfirmedPayload reports the settlement of an executed swap. The
// executed price may deviate from the quoted one (slippage).
type ConfirmedPayload struct {
	Dex           string          `json:"dex"`
	TxHash        string          `json:"tx_hash"`
	ExecutedPrice decimal.Decimal `json:"executed_price"`
}

// FailedPayload carries the terminal error detail and the attempt count
// at exhaustion.
type FailedPayload struct {
	Error    string `json:"error"`
	Attempts int    `json:"attempts"`
}
