package repository

import (
	"context"
	"time"

	"github.com/rishigupta87/open-ta/internal/domain/models"
)

// Feed is a push source of per-token samples. Disconnects surface on the
// error channel, not as fatal errors.
type Feed interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context, tokens []string) error
	Unsubscribe(ctx context.Context, tokens []string) error
	Read(ctx context.Context) (<-chan *models.Sample, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// InstrumentDirectory is read-only reference data, populated externally.
type InstrumentDirectory interface {
	Lookup(token string) (models.Instrument, bool)
	ListUnderlying(underlying string) []models.Instrument
}

// SignalSink appends classified signals. Append is expected idempotent on
// (token, timestamp) so retried writes never duplicate.
type SignalSink interface {
	Ensure(ctx context.Context) error // verify required structures exist
	Append(ctx context.Context, s *models.Signal) error
	Close() error
}

// AnalyticsSink appends per-underlying window summaries, idempotent on
// (underlying, timestamp).
type AnalyticsSink interface {
	Ensure(ctx context.Context) error
	Append(ctx context.Context, a *models.UnderlyingAnalytics) error
	QueryRange(ctx context.Context, underlying string, from, to time.Time, limit int) ([]*models.UnderlyingAnalytics, error)
	Close() error
}

// SignalCache publishes recent signals for low-latency consumers. Best
// effort; failures never block the flush path.
type SignalCache interface {
	Publish(ctx context.Context, s *models.Signal) error
	Recent(ctx context.Context, limit int) ([]*models.Signal, error)
}

// UniverseSelector decides which tokens the engine tracks.
type UniverseSelector interface {
	Select(ctx context.Context) ([]string, error)
}

// Metrics records engine observability counters.
type Metrics interface {
	RecordSample(exchange string)
	RecordSignal(underlying, strength, signalType string)
	RecordError(kind string)
	RecordFlushDuration(seconds float64)
	RecordTrackedTokens(n int)
	RecordSinkRetry(sink string)
}
