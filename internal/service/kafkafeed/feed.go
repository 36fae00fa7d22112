package kafkafeed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rishigupta87/open-ta/internal/domain/models"
	pkgkafka "github.com/rishigupta87/open-ta/pkg/kafka"
	applogger "github.com/rishigupta87/open-ta/pkg/logger"
)

// Feed implements the sample feed over a Kafka topic, for deployments where
// the broker bridge publishes OI ticks instead of exposing a WebSocket.
// Subscribe acts as a token filter: ticks for unsubscribed tokens are
// discarded on arrival.
type Feed struct {
	consumer *pkgkafka.Consumer
	topic    string
	l        *applogger.Logger

	mu      sync.Mutex
	subs    map[string]struct{}
	started bool

	samples chan *models.Sample
	errs    chan error
}

// New creates a Kafka-backed feed.
func New(consumer *pkgkafka.Consumer, topic string, l *applogger.Logger) *Feed {
	return &Feed{
		consumer: consumer,
		topic:    topic,
		l:        l,
		subs:     make(map[string]struct{}),
		samples:  make(chan *models.Sample, 1024),
		errs:     make(chan error, 1),
	}
}

type wireTick struct {
	Token string  `json:"token"`
	OI    int64   `json:"oi"`
	IV    float64 `json:"iv"`
	LTP   float64 `json:"ltp"`
	TS    int64   `json:"ts"` // ms
}

// Topic implements kafka.MessageHandler.
func (f *Feed) Topic() string { return f.topic }

// Handle implements kafka.MessageHandler: decodes one tick and forwards it
// if the token is subscribed.
func (f *Feed) Handle(_ context.Context, data []byte) error {
	var tick wireTick
	if err := json.Unmarshal(data, &tick); err != nil {
		return fmt.Errorf("decode tick: %w", err)
	}
	if tick.Token == "" {
		return fmt.Errorf("tick missing token")
	}

	f.mu.Lock()
	_, subscribed := f.subs[tick.Token]
	f.mu.Unlock()
	if !subscribed {
		return nil
	}

	s := &models.Sample{
		Token:     tick.Token,
		Timestamp: time.UnixMilli(tick.TS),
		OI:        tick.OI,
		IV:        tick.IV,
		Price:     tick.LTP,
	}
	select {
	case f.samples <- s:
	default:
		// drop on backpressure
	}
	return nil
}

// Connect registers the handler and starts the consumer group.
func (f *Feed) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.started {
		return nil
	}
	f.consumer.RegisterHandler(f)
	if err := f.consumer.Start(); err != nil {
		return fmt.Errorf("feed consumer start: %w", err)
	}
	f.started = true
	f.l.Info("kafka feed started", applogger.String("topic", f.topic))
	return nil
}

// Subscribe adds tokens to the filter.
func (f *Feed) Subscribe(_ context.Context, tokens []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range tokens {
		f.subs[t] = struct{}{}
	}
	return nil
}

// Unsubscribe removes tokens from the filter.
func (f *Feed) Unsubscribe(_ context.Context, tokens []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range tokens {
		delete(f.subs, t)
	}
	return nil
}

// Read returns the sample and error channels.
func (f *Feed) Read(context.Context) (<-chan *models.Sample, <-chan error) {
	return f.samples, f.errs
}

// Reconnect is a no-op: the consumer group rebalances internally.
func (f *Feed) Reconnect(context.Context) error { return nil }

// Close stops the consumer group.
func (f *Feed) Close() error {
	f.mu.Lock()
	if !f.started {
		f.mu.Unlock()
		return nil
	}
	f.started = false
	f.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return f.consumer.Stop(ctx)
}

// IsConnected indicates status.
func (f *Feed) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started
}
