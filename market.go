package tradegate

import (
	"context"

	"github.com/tradegate/tradegate/internal/connection"
)

type quoteParams struct {
	Symbol string `json:"symbol"`
}

// Quote fetches the current price for one symbol.
func (c *Client) Quote(ctx context.Context, symbol string) (*Quote, error) {
	var out Quote
	err := c.caller.Execute(ctx, func(ctx context.Context, h *connection.Handle) error {
		return h.Channel.Call(ctx, "market.quote", quoteParams{Symbol: symbol}, &out)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

type tickParams struct {
	Symbols []string `json:"symbols"`
}

// SubscribeTicks streams price updates for the given symbols. The stream
// survives transient disconnects; across a reconnect no tick is redelivered
// but ticks published while the connection was down may be missed.
func (c *Client) SubscribeTicks(ctx context.Context, symbols ...string) *Stream[Tick] {
	sub := c.streams.Subscribe(ctx, func(ctx context.Context, h *connection.Handle) (connection.Stream, error) {
		return h.Channel.OpenStream(ctx, "ticks", tickParams{Symbols: symbols})
	})
	return newStream[Tick](ctx, sub, c.cfg.Stream.BufferSize, c.logger)
}
