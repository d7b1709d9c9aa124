package feed

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yanun0323/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"
	"github.com/yanun0323/pkg/ws"

	"main/internal/model/enum"
)

// Feed wraps the market-data websocket collaborator. The core never parses
// its wire format beyond the ticker envelope; what matters here is liveness
// (fed into heartbeat) and the forced-reconnect hook the failsafe monitor
// fires on entry into Halted.
type Feed struct {
	url   string
	mu    sync.Mutex
	wss   *ws.WebSocket
	ctx   context.Context
	clock func() time.Time

	lastMessage atomic.Int64
	staleAfter  time.Duration
}

// Config controls the feed connection.
type Config struct {
	URL        string
	StaleAfter time.Duration
}

// New creates a feed client. The websocket reconnects on its own; Reconnect
// only forces the cycle early.
func New(ctx context.Context, cfg Config) *Feed {
	staleAfter := cfg.StaleAfter
	if staleAfter <= 0 {
		staleAfter = 90 * time.Second
	}
	return &Feed{
		url:        cfg.URL,
		wss:        ws.New(ctx, cfg.URL),
		ctx:        ctx,
		clock:      time.Now,
		staleAfter: staleAfter,
	}
}

func (f *Feed) conn() *ws.WebSocket {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.wss
}

// Start opens the websocket.
func (f *Feed) Start(ctx context.Context) error {
	if err := f.conn().Start(ctx); err != nil {
		return errors.Wrap(err, "start wss")
	}
	f.lastMessage.Store(f.clock().UnixNano())
	return nil
}

// Close tears the connection down.
func (f *Feed) Close() {
	f.conn().Close()
}

type subscribeRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int64    `json:"id"`
}

type subscribeResponse struct {
	ID     int64 `json:"id"`
	Result any   `json:"result"`
}

// SubscribeTicker subscribes the symbol's ticker stream and waits for the
// acknowledgment.
func (f *Feed) SubscribeTicker(ctx context.Context, symbol string) error {
	if err := f.conn().SendAndWait(ctx, ws.Sidecar{
		Sender: func(ctx context.Context, client *ws.WebSocket) error {
			payload := subscribeRequest{
				Method: "SUBSCRIBE",
				Params: []string{strings.ToLower(symbol) + "@ticker"},
				ID:     1,
			}
			if err := client.WriteJSON(payload); err != nil {
				return errors.Wrap(err, "write subscribe payload").With("payload", payload)
			}
			return nil
		},
		Waiter: func(ctx context.Context, m ws.Message) (bool, error) {
			var resp subscribeResponse
			if err := m.Unmarshal(&resp); err != nil || resp.ID != 1 {
				return false, nil
			}
			if resp.Result != nil {
				return false, errors.Errorf("subscribe rejected: %+v", resp.Result)
			}
			return true, nil
		},
	}, true); err != nil {
		return errors.Wrap(err, "send and wait")
	}
	return nil
}

// Ticker is one market tick.
type Ticker struct {
	EventType string          `json:"e"`
	EventTime int64           `json:"E"`
	Symbol    string          `json:"s"`
	Last      decimal.Decimal `json:"c"`
	Bid       decimal.Decimal `json:"b"`
	Ask       decimal.Decimal `json:"a"`
}

// ObserveTicker streams ticks into handler until unsubscribed. Every
// received message refreshes the liveness clock.
func (f *Feed) ObserveTicker(ctx context.Context, handler func(t Ticker)) (unsubscribe func()) {
	ch, cancel := f.conn().Subscribe()

	go func() {
		defer cancel()
		for {
			select {
			case <-sys.Shutdown():
				return
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok {
					return
				}
				f.lastMessage.Store(f.clock().UnixNano())

				resp, ok := ws.ReadMessage[Ticker](m)
				if !ok || resp.EventType != "24hrTicker" {
					continue
				}
				handler(resp)
			}
		}
	}()

	return cancel
}

// ForceReconnect drops the connection so the websocket's reconnect cycle
// establishes a fresh one. Fire-and-forget; the outcome shows up as a
// future heartbeat.
func (f *Feed) ForceReconnect() {
	logs.Warnf("feed: forced reconnect requested")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.wss.Close()
	f.wss = ws.New(f.ctx, f.url)
	if err := f.wss.Start(f.ctx); err != nil {
		logs.Errorf("feed: restart wss, err: %+v", err)
	}
}

// Check implements the heartbeat checker: the feed is up while messages
// keep arriving, degraded when the stream has gone quiet.
func (f *Feed) Check(ctx context.Context) (enum.HealthStatus, string) {
	last := f.lastMessage.Load()
	if last == 0 {
		return enum.HealthDown, "never connected"
	}
	silent := f.clock().Sub(time.Unix(0, last))
	if silent > f.staleAfter {
		return enum.HealthDegraded, "no messages for " + silent.Truncate(time.Second).String()
	}
	return enum.HealthUp, ""
}
