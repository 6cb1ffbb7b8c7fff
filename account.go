package tradegate

import (
	"context"

	"github.com/tradegate/tradegate/internal/connection"
)

// AccountSummary fetches the current account state.
func (c *Client) AccountSummary(ctx context.Context) (*AccountSummary, error) {
	var out AccountSummary
	err := c.caller.Execute(ctx, func(ctx context.Context, h *connection.Handle) error {
		return h.Channel.Call(ctx, "account.summary", nil, &out)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Positions lists the account's open positions.
func (c *Client) Positions(ctx context.Context) ([]Position, error) {
	var out struct {
		Positions []Position `json:"positions"`
	}
	err := c.caller.Execute(ctx, func(ctx context.Context, h *connection.Handle) error {
		return h.Channel.Call(ctx, "account.positions", nil, &out)
	})
	if err != nil {
		return nil, err
	}
	return out.Positions, nil
}
