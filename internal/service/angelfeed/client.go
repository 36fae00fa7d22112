package angelfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rishigupta87/open-ta/internal/domain/models"
	applogger "github.com/rishigupta87/open-ta/pkg/logger"

	"github.com/gorilla/websocket"
)

// Client implements a Feed backed by the broker's streaming WebSocket. One
// frame carries a batch of per-token OI ticks.
type Client struct {
	url            string
	apiKey         string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	l              *applogger.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	subs      map[string]struct{}
}

// New creates a new WebSocket feed client.
func New(url, apiKey string, reconnectDelay, pingInterval time.Duration, l *applogger.Logger) *Client {
	if reconnectDelay <= 0 {
		reconnectDelay = 5 * time.Second
	}
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	return &Client{
		url:            url,
		apiKey:         apiKey,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		l:              l,
		subs:           make(map[string]struct{}),
	}
}

// Connect establishes the WebSocket connection.
func (c *Client) Connect(ctx context.Context) error {
	u := c.url
	if c.apiKey != "" {
		u = fmt.Sprintf("%s?token=%s", c.url, c.apiKey)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("feed connect: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	c.l.Info("feed connected", applogger.String("url", c.url))
	return nil
}

type wireRequest struct {
	Action string   `json:"action"` // subscribe | unsubscribe
	Mode   string   `json:"mode"`
	Tokens []string `json:"tokens"`
}

// Subscribe registers tokens for OI updates.
func (c *Client) Subscribe(_ context.Context, tokens []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || !c.connected {
		return fmt.Errorf("feed not connected")
	}
	req := wireRequest{Action: "subscribe", Mode: "oi", Tokens: tokens}
	if err := c.conn.WriteJSON(req); err != nil {
		return fmt.Errorf("subscribe %d tokens: %w", len(tokens), err)
	}
	for _, t := range tokens {
		c.subs[t] = struct{}{}
	}
	c.l.Info("feed subscribed", applogger.Int("tokens", len(tokens)))
	return nil
}

// Unsubscribe removes tokens from the stream.
func (c *Client) Unsubscribe(_ context.Context, tokens []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || !c.connected {
		return nil
	}
	req := wireRequest{Action: "unsubscribe", Mode: "oi", Tokens: tokens}
	if err := c.conn.WriteJSON(req); err != nil {
		return fmt.Errorf("unsubscribe %d tokens: %w", len(tokens), err)
	}
	for _, t := range tokens {
		delete(c.subs, t)
	}
	return nil
}

type wireTick struct {
	Token string  `json:"token"`
	OI    int64   `json:"oi"`
	IV    float64 `json:"iv"`
	LTP   float64 `json:"ltp"`
	TS    int64   `json:"ts"` // ms
}

type wireFrame struct {
	Type string     `json:"type"`
	Data []wireTick `json:"data"`
}

// Read streams samples and errors. The read loop exits on the first read
// error; the caller drives reconnects.
func (c *Client) Read(ctx context.Context) (<-chan *models.Sample, <-chan error) {
	samples := make(chan *models.Sample, 1024)
	errs := make(chan error, 1)

	// ping loop
	go func() {
		ticker := time.NewTicker(c.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.mu.Lock()
				conn := c.conn
				c.mu.Unlock()
				if conn != nil {
					_ = conn.WriteMessage(websocket.PingMessage, nil)
				}
			}
		}
	}()

	// read loop
	go func() {
		defer close(samples)
		defer close(errs)
		for {
			select {
			case <-ctx.Done():
				return
			default:
				c.mu.Lock()
				conn := c.conn
				c.mu.Unlock()
				if conn == nil {
					errs <- fmt.Errorf("feed conn nil")
					return
				}
				_, b, err := conn.ReadMessage()
				if err != nil {
					errs <- fmt.Errorf("feed read: %w", err)
					return
				}
				var frame wireFrame
				if err := json.Unmarshal(b, &frame); err != nil {
					// ignore non-data frames
					continue
				}
				if frame.Type != "oi" {
					continue
				}
				for _, tick := range frame.Data {
					s := &models.Sample{
						Token:     tick.Token,
						Timestamp: time.UnixMilli(tick.TS),
						OI:        tick.OI,
						IV:        tick.IV,
						Price:     tick.LTP,
					}
					select {
					case samples <- s:
					default:
						// drop on backpressure
					}
				}
			}
		}
	}()

	return samples, errs
}

// Reconnect closes, reconnects, and replays the current subscriptions.
func (c *Client) Reconnect(ctx context.Context) error {
	_ = c.Close()
	time.Sleep(c.reconnectDelay)
	if err := c.Connect(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	tokens := make([]string, 0, len(c.subs))
	for t := range c.subs {
		tokens = append(tokens, t)
	}
	c.mu.Unlock()

	if len(tokens) == 0 {
		return nil
	}
	return c.Subscribe(ctx, tokens)
}

// Close closes the WS connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

// IsConnected indicates status.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}
