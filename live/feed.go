package live

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kbd172102/trading-dashboard/market"
)

// TickSource streams ticks into out until the context is cancelled.
// Implementations own their connection lifecycle, including reconnects.
type TickSource interface {
	Stream(ctx context.Context, out chan<- market.Tick) error
}

// FeedConfig configures the market-data websocket.
type FeedConfig struct {
	URL       string
	Token     string        // instrument token to subscribe to
	AuthToken string        // feed auth, sent as a header
	ClientID  string        // account client code
	APIKey    string
	PingEvery time.Duration // zero disables client pings
}

// WebsocketFeed reads exchange ticks from a SmartAPI-style websocket.
// Prices arrive in paise and timestamps in epoch milliseconds;
// malformed frames are dropped with a warning, never fatal.
type WebsocketFeed struct {
	cfg  FeedConfig
	dial func(url string, hdr http.Header) (*websocket.Conn, error)
}

func NewWebsocketFeed(cfg FeedConfig) *WebsocketFeed {
	return &WebsocketFeed{
		cfg: cfg,
		dial: func(url string, hdr http.Header) (*websocket.Conn, error) {
			conn, _, err := websocket.DefaultDialer.Dial(url, hdr)
			return conn, err
		},
	}
}

type subscribeMsg struct {
	Action int `json:"action"`
	Params struct {
		Mode      int `json:"mode"`
		TokenList []struct {
			ExchangeType int      `json:"exchangeType"`
			Tokens       []string `json:"tokens"`
		} `json:"tokenList"`
	} `json:"params"`
}

type tickFrame struct {
	Token             string `json:"token"`
	LastTradedPrice   int64  `json:"last_traded_price"`  // paise
	ExchangeTimestamp int64  `json:"exchange_timestamp"` // epoch ms
}

// parseTick decodes one wire frame into a tick. ok is false for frames
// that are malformed or carry no usable price.
func parseTick(data []byte) (market.Tick, bool) {
	var frame tickFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return market.Tick{}, false
	}
	tick := market.Tick{
		Token: frame.Token,
		Price: float64(frame.LastTradedPrice) / 100,
		Time:  time.UnixMilli(frame.ExchangeTimestamp),
	}
	if !tick.Valid() {
		return market.Tick{}, false
	}
	return tick, true
}

// Stream connects, subscribes, and forwards ticks until ctx ends.
// Connection drops trigger a reconnect with capped exponential backoff.
func (w *WebsocketFeed) Stream(ctx context.Context, out chan<- market.Tick) error {
	backoff := time.Second
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := w.stream(ctx, out)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Printf("[WARN] feed %s: connection lost: %v, reconnecting in %s", w.cfg.Token, err, backoff)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (w *WebsocketFeed) stream(ctx context.Context, out chan<- market.Tick) error {
	hdr := http.Header{}
	hdr.Set("Authorization", w.cfg.AuthToken)
	hdr.Set("x-client-code", w.cfg.ClientID)
	hdr.Set("x-feed-token", w.cfg.AuthToken)
	hdr.Set("x-api-key", w.cfg.APIKey)

	conn, err := w.dial(w.cfg.URL, hdr)
	if err != nil {
		return err
	}
	defer conn.Close()

	sub := subscribeMsg{Action: 1}
	sub.Params.Mode = 1
	sub.Params.TokenList = append(sub.Params.TokenList, struct {
		ExchangeType int      `json:"exchangeType"`
		Tokens       []string `json:"tokens"`
	}{ExchangeType: 5, Tokens: []string{w.cfg.Token}})
	if err := conn.WriteJSON(sub); err != nil {
		return err
	}

	// Unblock ReadMessage on cancellation.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.SetReadDeadline(time.Now())
			conn.Close()
		case <-done:
		}
	}()

	if w.cfg.PingEvery > 0 {
		go func() {
			t := time.NewTicker(w.cfg.PingEvery)
			defer t.Stop()
			for {
				select {
				case <-t.C:
					conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(5*time.Second))
				case <-done:
					return
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		tick, ok := parseTick(data)
		if !ok {
			log.Printf("[WARN] feed %s: dropping malformed frame", w.cfg.Token)
			continue
		}
		select {
		case out <- tick:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
