package tradegate

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/tradegate/tradegate/internal/connection"
	"github.com/tradegate/tradegate/internal/transport"
)

// gwCommand mirrors the client-to-gateway request frame.
type gwCommand struct {
	ID     int64           `json:"id"`
	Op     string          `json:"op"`
	Params json.RawMessage `json:"params"`
}

// gwConn is one accepted gateway-side connection.
type gwConn struct {
	index   int
	ws      *websocket.Conn
	writeMu sync.Mutex
}

func (g *gwConn) reply(id int64, payload any) {
	g.write(map[string]any{"id": id, "type": "result", "payload": payload})
}

func (g *gwConn) reject(id int64, code, message string) {
	g.write(map[string]any{
		"id": id, "type": "error",
		"payload": map[string]string{"code": code, "message": message},
	})
}

func (g *gwConn) data(subID string, payload any) {
	g.write(map[string]any{"type": "data", "sub_id": subID, "payload": payload})
}

func (g *gwConn) write(frame map[string]any) {
	g.writeMu.Lock()
	defer g.writeMu.Unlock()
	raw, _ := json.Marshal(frame)
	g.ws.WriteMessage(websocket.TextMessage, raw)
}

// startGateway runs a mock gateway that logs every client in and routes all
// other commands to handler. handler sees which accepted connection the
// command arrived on.
func startGateway(t *testing.T, handler func(conn *gwConn, cmd gwCommand)) (*Config, *atomic.Int32) {
	t.Helper()

	var connCount atomic.Int32

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()

		conn := &gwConn{index: int(connCount.Add(1)) - 1, ws: ws}

		for {
			_, raw, err := ws.ReadMessage()
			if err != nil {
				return
			}
			var cmd gwCommand
			if err := json.Unmarshal(raw, &cmd); err != nil {
				continue
			}
			if cmd.Op == "session.login" {
				conn.reply(cmd.ID, map[string]string{"session_id": "sess-" + strconv.Itoa(conn.index)})
				continue
			}
			if handler != nil {
				handler(conn, cmd)
			}
		}
	}))
	t.Cleanup(server.Close)

	host, portStr, _ := strings.Cut(strings.TrimPrefix(server.URL, "http://"), ":")
	port, _ := strconv.Atoi(portStr)

	cfg := &Config{}
	cfg.Gateway.Host = host
	cfg.Gateway.Port = port
	cfg.Gateway.Account = "100234"
	cfg.Gateway.Password = "secret"
	cfg.Timeouts.CallTimeout = 5 * time.Second
	cfg.Timeouts.DialTimeout = 5 * time.Second
	cfg.Timeouts.WriteTimeout = 5 * time.Second
	cfg.Timeouts.PingInterval = time.Second
	cfg.Timeouts.PingTimeout = 30 * time.Second
	cfg.Retry.MaxAttempts = 3
	cfg.Retry.BaseBackoff = 10 * time.Millisecond
	cfg.Retry.MaxBackoff = 50 * time.Millisecond
	cfg.Stream.BufferSize = 100

	return cfg, &connCount
}

func newTestClient(t *testing.T, cfg *Config) *Client {
	t.Helper()
	client, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(client.Close)
	return client
}

func TestAccountSummaryCall(t *testing.T) {
	cfg, _ := startGateway(t, func(conn *gwConn, cmd gwCommand) {
		if cmd.Op == "account.summary" {
			conn.reply(cmd.ID, map[string]any{
				"account":  "100234",
				"currency": "USD",
				"balance":  "10230.55",
				"equity":   "10180.10",
				"leverage": 100,
			})
		}
	})
	client := newTestClient(t, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	summary, err := client.AccountSummary(ctx)
	if err != nil {
		t.Fatalf("AccountSummary: %v", err)
	}
	if summary.Account != "100234" {
		t.Errorf("Account = %q, want %q", summary.Account, "100234")
	}
	if want := decimal.RequireFromString("10230.55"); !summary.Balance.Equal(want) {
		t.Errorf("Balance = %s, want %s", summary.Balance, want)
	}
	if summary.Leverage != 100 {
		t.Errorf("Leverage = %d, want 100", summary.Leverage)
	}
}

func TestOrderSendRejectedOnce(t *testing.T) {
	var sends atomic.Int32
	cfg, _ := startGateway(t, func(conn *gwConn, cmd gwCommand) {
		if cmd.Op == "order.send" {
			sends.Add(1)
			conn.reject(cmd.ID, "NOT_ENOUGH_MONEY", "insufficient margin")
		}
	})
	client := newTestClient(t, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := client.OrderSend(ctx, OrderRequest{
		Symbol: "EURUSD",
		Side:   Buy,
		Type:   Market,
		Volume: decimal.RequireFromString("0.1"),
	})

	var gerr *transport.GatewayError
	if !errors.As(err, &gerr) {
		t.Fatalf("error = %v, want *transport.GatewayError", err)
	}
	if gerr.Code != "NOT_ENOUGH_MONEY" {
		t.Errorf("Code = %q, want NOT_ENOUGH_MONEY", gerr.Code)
	}
	// A rejection is final: the gateway saw exactly one submit.
	if got := sends.Load(); got != 1 {
		t.Errorf("gateway received %d order.send commands, want 1", got)
	}
}

func TestOrderSendAssignsClientID(t *testing.T) {
	received := make(chan uuid.UUID, 1)
	cfg, _ := startGateway(t, func(conn *gwConn, cmd gwCommand) {
		if cmd.Op == "order.send" {
			var req OrderRequest
			json.Unmarshal(cmd.Params, &req)
			received <- req.ClientID
			conn.reply(cmd.ID, map[string]any{
				"ticket":    42,
				"client_id": req.ClientID,
				"status":    "filled",
			})
		}
	})
	client := newTestClient(t, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result, err := client.OrderSend(ctx, OrderRequest{
		Symbol: "EURUSD",
		Side:   Sell,
		Type:   Market,
		Volume: decimal.RequireFromString("0.5"),
	})
	if err != nil {
		t.Fatalf("OrderSend: %v", err)
	}

	sent := <-received
	if sent == uuid.Nil {
		t.Error("order went out with a zero client ID")
	}
	if result.ClientID != sent {
		t.Errorf("result ClientID = %s, want the one sent (%s)", result.ClientID, sent)
	}
	if result.Ticket != 42 {
		t.Errorf("Ticket = %d, want 42", result.Ticket)
	}
}

func TestSubscribeTicksTyped(t *testing.T) {
	cfg, _ := startGateway(t, func(conn *gwConn, cmd gwCommand) {
		if cmd.Op == "subscribe" {
			conn.reply(cmd.ID, map[string]string{"sub_id": "sub-1"})
			go func() {
				// Give the client a moment to register the stream.
				time.Sleep(100 * time.Millisecond)
				conn.data("sub-1", map[string]any{"symbol": "EURUSD", "bid": "1.0850", "ask": "1.0852"})
				conn.data("sub-1", map[string]any{"symbol": "EURUSD", "bid": "1.0851", "ask": "1.0853"})
			}()
		}
	})
	client := newTestClient(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream := client.SubscribeTicks(ctx, "EURUSD")

	var ticks []Tick
	timeout := time.After(5 * time.Second)
	for len(ticks) < 2 {
		select {
		case tick, ok := <-stream.Events():
			if !ok {
				t.Fatalf("stream ended early: %v", stream.Err())
			}
			ticks = append(ticks, tick)
		case <-timeout:
			t.Fatalf("timed out with %d ticks", len(ticks))
		}
	}

	if ticks[0].Symbol != "EURUSD" {
		t.Errorf("Symbol = %q, want EURUSD", ticks[0].Symbol)
	}
	if want := decimal.RequireFromString("1.0850"); !ticks[0].Bid.Equal(want) {
		t.Errorf("Bid = %s, want %s", ticks[0].Bid, want)
	}

	cancel()
	for range stream.Events() {
	}
	if err := stream.Err(); !errors.Is(err, context.Canceled) {
		t.Errorf("Err = %v, want context.Canceled", err)
	}
}

func TestStreamSurvivesReconnect(t *testing.T) {
	cfg, connCount := startGateway(t, func(conn *gwConn, cmd gwCommand) {
		if cmd.Op != "subscribe" {
			return
		}
		conn.reply(cmd.ID, map[string]string{"sub_id": "sub-1"})
		go func() {
			time.Sleep(100 * time.Millisecond)
			if conn.index == 0 {
				conn.data("sub-1", map[string]any{"symbol": "EURUSD", "bid": "1.0850", "ask": "1.0852"})
				// A moment later the connection drops mid-stream.
				time.Sleep(100 * time.Millisecond)
				conn.ws.Close()
			} else {
				conn.data("sub-1", map[string]any{"symbol": "EURUSD", "bid": "1.0900", "ask": "1.0902"})
			}
		}()
	})
	client := newTestClient(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream := client.SubscribeTicks(ctx, "EURUSD")

	var ticks []Tick
	timeout := time.After(10 * time.Second)
	for len(ticks) < 2 {
		select {
		case tick, ok := <-stream.Events():
			if !ok {
				t.Fatalf("stream ended early: %v", stream.Err())
			}
			ticks = append(ticks, tick)
		case <-timeout:
			t.Fatalf("timed out with %d ticks", len(ticks))
		}
	}

	if want := decimal.RequireFromString("1.0850"); !ticks[0].Bid.Equal(want) {
		t.Errorf("first tick Bid = %s, want %s", ticks[0].Bid, want)
	}
	if want := decimal.RequireFromString("1.0900"); !ticks[1].Bid.Equal(want) {
		t.Errorf("second tick Bid = %s, want %s", ticks[1].Bid, want)
	}

	if got := connCount.Load(); got < 2 {
		t.Errorf("gateway accepted %d connections, want at least 2", got)
	}
	if stats := client.Stats(); stats.Reconnects < 1 {
		t.Errorf("Stats().Reconnects = %d, want at least 1", stats.Reconnects)
	}
}

func TestConnectAndClose(t *testing.T) {
	cfg, connCount := startGateway(t, nil)
	client := newTestClient(t, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if got := connCount.Load(); got != 1 {
		t.Errorf("gateway accepted %d connections, want 1", got)
	}

	client.Close()
	client.Close() // idempotent
}

func TestNewRequiresConfig(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Fatal("New(nil) succeeded")
	}
}

func TestNewAppliesDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.Gateway.Host = "gw.example.com"
	cfg.Gateway.Account = "100234"
	cfg.Gateway.Password = "secret"

	client, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if client.cfg.Gateway.Port != DefaultPort {
		t.Errorf("Gateway.Port = %d, want default %d", client.cfg.Gateway.Port, DefaultPort)
	}
	if client.cfg.Timeouts.PingInterval != DefaultPingInterval {
		t.Errorf("Timeouts.PingInterval = %v, want default %v", client.cfg.Timeouts.PingInterval, DefaultPingInterval)
	}
	if client.cfg.Timeouts.WriteTimeout != DefaultWriteTimeout {
		t.Errorf("Timeouts.WriteTimeout = %v, want default %v", client.cfg.Timeouts.WriteTimeout, DefaultWriteTimeout)
	}
	if client.policy.MaxAttempts != DefaultMaxAttempts {
		t.Errorf("policy.MaxAttempts = %d, want default %d", client.policy.MaxAttempts, DefaultMaxAttempts)
	}
	if client.cfg.Stream.BufferSize != DefaultStreamBuffer {
		t.Errorf("Stream.BufferSize = %d, want default %d", client.cfg.Stream.BufferSize, DefaultStreamBuffer)
	}
	// The caller's config is copied, not mutated in place.
	if cfg.Timeouts.PingInterval != 0 {
		t.Errorf("caller's config was mutated: PingInterval = %v", cfg.Timeouts.PingInterval)
	}
}

func TestNewRejectsIncompleteConfig(t *testing.T) {
	cfg := &Config{}
	cfg.Gateway.Host = "gw.example.com"
	// No account or password.
	if _, err := New(cfg); err == nil {
		t.Fatal("New accepted a config with no credentials")
	}
}

func TestNewWithDialFuncNeedsNoGateway(t *testing.T) {
	dial := func(ctx context.Context) (connection.Channel, error) {
		return nil, errors.New("no gateway in this test")
	}
	if _, err := New(&Config{}, WithDialFunc(dial)); err != nil {
		t.Fatalf("New with dial func: %v", err)
	}
}

func TestMinimalConfigEndToEnd(t *testing.T) {
	full, _ := startGateway(t, func(conn *gwConn, cmd gwCommand) {
		if cmd.Op == "account.summary" {
			conn.reply(cmd.ID, map[string]any{"account": "100234", "currency": "USD"})
		}
	})

	// Only the gateway coordinates, the way a library consumer would build
	// a config in code. Every timeout comes from defaults.
	cfg := &Config{Gateway: full.Gateway}
	client := newTestClient(t, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	summary, err := client.AccountSummary(ctx)
	if err != nil {
		t.Fatalf("AccountSummary: %v", err)
	}
	if summary.Account != "100234" {
		t.Errorf("Account = %q, want %q", summary.Account, "100234")
	}
}
