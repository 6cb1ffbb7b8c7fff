package tradegate

import (
	"context"

	"github.com/google/uuid"

	"github.com/tradegate/tradegate/internal/connection"
)

// OrderSend places an order. A gateway rejection (insufficient margin,
// unknown symbol, market closed) comes back as *transport.GatewayError and
// is never retried; only connectivity failures are, and the client order ID
// lets the gateway drop a duplicate submit from a retried attempt.
func (c *Client) OrderSend(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	if req.ClientID == uuid.Nil {
		req.ClientID = uuid.New()
	}

	var out OrderResult
	err := c.caller.Execute(ctx, func(ctx context.Context, h *connection.Handle) error {
		return h.Channel.Call(ctx, "order.send", req, &out)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

type cancelParams struct {
	Ticket int64 `json:"ticket"`
}

// OrderCancel cancels a pending order by ticket.
func (c *Client) OrderCancel(ctx context.Context, ticket int64) error {
	return c.caller.Execute(ctx, func(ctx context.Context, h *connection.Handle) error {
		return h.Channel.Call(ctx, "order.cancel", cancelParams{Ticket: ticket}, nil)
	})
}

// SubscribeTradeEvents streams order lifecycle events for the account.
func (c *Client) SubscribeTradeEvents(ctx context.Context) *Stream[TradeEvent] {
	sub := c.streams.Subscribe(ctx, func(ctx context.Context, h *connection.Handle) (connection.Stream, error) {
		return h.Channel.OpenStream(ctx, "trades", nil)
	})
	return newStream[TradeEvent](ctx, sub, c.cfg.Stream.BufferSize, c.logger)
}

// SubscribePositionUpdates streams changes to the account's open positions.
func (c *Client) SubscribePositionUpdates(ctx context.Context) *Stream[PositionUpdate] {
	sub := c.streams.Subscribe(ctx, func(ctx context.Context, h *connection.Handle) (connection.Stream, error) {
		return h.Channel.OpenStream(ctx, "positions", nil)
	})
	return newStream[PositionUpdate](ctx, sub, c.cfg.Stream.BufferSize, c.logger)
}
