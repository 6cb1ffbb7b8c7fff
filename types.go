package tradegate

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderSide is the direction of an order.
type OrderSide string

const (
	Buy  OrderSide = "buy"
	Sell OrderSide = "sell"
)

// OrderType selects how an order executes.
type OrderType string

const (
	Market OrderType = "market"
	Limit  OrderType = "limit"
)

// AccountSummary is the state of the trading account.
type AccountSummary struct {
	Account    string          `json:"account"`
	Currency   string          `json:"currency"`
	Balance    decimal.Decimal `json:"balance"`
	Equity     decimal.Decimal `json:"equity"`
	Margin     decimal.Decimal `json:"margin"`
	FreeMargin decimal.Decimal `json:"free_margin"`
	Leverage   int             `json:"leverage"`
}

// Quote is a point-in-time price for one symbol.
type Quote struct {
	Symbol string          `json:"symbol"`
	Bid    decimal.Decimal `json:"bid"`
	Ask    decimal.Decimal `json:"ask"`
	Time   time.Time       `json:"time"`
}

// Tick is one streamed price update.
type Tick struct {
	Symbol string          `json:"symbol"`
	Bid    decimal.Decimal `json:"bid"`
	Ask    decimal.Decimal `json:"ask"`
	Time   time.Time       `json:"time"`
}

// OrderRequest describes an order to place. ClientID is the idempotency
// key the gateway dedupes on; OrderSend fills it when zero.
type OrderRequest struct {
	ClientID   uuid.UUID       `json:"client_id"`
	Symbol     string          `json:"symbol"`
	Side       OrderSide       `json:"side"`
	Type       OrderType       `json:"type"`
	Volume     decimal.Decimal `json:"volume"`
	Price      decimal.Decimal `json:"price,omitzero"`
	StopLoss   decimal.Decimal `json:"stop_loss,omitzero"`
	TakeProfit decimal.Decimal `json:"take_profit,omitzero"`
	Comment    string          `json:"comment,omitempty"`
}

// OrderResult is the gateway's answer to an accepted order.
type OrderResult struct {
	Ticket      int64           `json:"ticket"`
	ClientID    uuid.UUID       `json:"client_id"`
	Status      string          `json:"status"`
	FilledPrice decimal.Decimal `json:"filled_price"`
	FilledAt    time.Time       `json:"filled_at"`
}

// Position is one open position on the account.
type Position struct {
	Ticket    int64           `json:"ticket"`
	Symbol    string          `json:"symbol"`
	Side      OrderSide       `json:"side"`
	Volume    decimal.Decimal `json:"volume"`
	OpenPrice decimal.Decimal `json:"open_price"`
	Profit    decimal.Decimal `json:"profit"`
	OpenedAt  time.Time       `json:"opened_at"`
}

// TradeEvent is one streamed trading lifecycle event.
type TradeEvent struct {
	Ticket   int64           `json:"ticket"`
	ClientID uuid.UUID       `json:"client_id"`
	Kind     string          `json:"kind"` // "placed", "filled", "cancelled", "rejected"
	Symbol   string          `json:"symbol"`
	Side     OrderSide       `json:"side"`
	Volume   decimal.Decimal `json:"volume"`
	Price    decimal.Decimal `json:"price"`
	Time     time.Time       `json:"time"`
}

// PositionUpdate is one streamed change to an open position.
type PositionUpdate struct {
	Ticket    int64           `json:"ticket"`
	Symbol    string          `json:"symbol"`
	Volume    decimal.Decimal `json:"volume"`
	Profit    decimal.Decimal `json:"profit"`
	UpdatedAt time.Time       `json:"updated_at"`
}
