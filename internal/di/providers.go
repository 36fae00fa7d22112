package di

import (
	"context"
	"fmt"
	"time"

	"github.com/rishigupta87/open-ta/internal/calendar"
	"github.com/rishigupta87/open-ta/internal/domain/repository"
	"github.com/rishigupta87/open-ta/internal/handler/api"
	mid "github.com/rishigupta87/open-ta/internal/middleware"
	internalrepo "github.com/rishigupta87/open-ta/internal/repository"
	"github.com/rishigupta87/open-ta/internal/service/angelfeed"
	"github.com/rishigupta87/open-ta/internal/service/kafkafeed"
	"github.com/rishigupta87/open-ta/internal/service/universe"
	"github.com/rishigupta87/open-ta/internal/usecase"
	"github.com/rishigupta87/open-ta/pkg/cache"
	pkgch "github.com/rishigupta87/open-ta/pkg/clickhouse"
	"github.com/rishigupta87/open-ta/pkg/config"
	xhttp "github.com/rishigupta87/open-ta/pkg/http"
	pkgkafka "github.com/rishigupta87/open-ta/pkg/kafka"
	applogger "github.com/rishigupta87/open-ta/pkg/logger"
	"github.com/rishigupta87/open-ta/pkg/metrics"
	"github.com/rishigupta87/open-ta/pkg/queue"
	"github.com/rishigupta87/open-ta/pkg/server"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideCalendar builds the trading calendar from configured exchange hours.
func ProvideCalendar(cfg *config.Config) (*calendar.Calendar, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", cfg.Timezone, err)
	}

	hours := make(map[string]calendar.Hours, len(cfg.Exchanges))
	for name, h := range cfg.Exchanges {
		open, err := calendar.ParseTimeOfDay(h.Open)
		if err != nil {
			return nil, fmt.Errorf("exchange %s open: %w", name, err)
		}
		close, err := calendar.ParseTimeOfDay(h.Close)
		if err != nil {
			return nil, fmt.Errorf("exchange %s close: %w", name, err)
		}
		hours[name] = calendar.Hours{Open: open, Close: close}
	}

	return calendar.New(loc, hours), nil
}

// ProvideThresholds maps config knobs onto classifier thresholds.
func ProvideThresholds(cfg *config.Config) usecase.Thresholds {
	return usecase.Thresholds{
		MinIV:             cfg.Engine.MinIV,
		StrongOIChangePct: cfg.Engine.StrongThreshold,
		MediumOIChangePct: cfg.Engine.MediumThreshold,
		MinOIAbsolute:     cfg.Engine.MinOIChangeAbs,
		HighIVThreshold:   cfg.Engine.HighIVThreshold,
		AnalysisWindow:    cfg.Engine.AnalysisWindow,
	}
}

// ProvideWindowAggregator creates the sharded per-token window state.
func ProvideWindowAggregator(th usecase.Thresholds) *usecase.WindowAggregator {
	return usecase.NewWindowAggregator(th.AnalysisWindow)
}

// ProvideClassifier creates the signal classifier.
func ProvideClassifier(th usecase.Thresholds) *usecase.Classifier {
	return usecase.NewClassifier(th)
}

// ProvideAnalyticsAggregator creates the per-underlying window folder.
func ProvideAnalyticsAggregator(th usecase.Thresholds) *usecase.AnalyticsAggregator {
	return usecase.NewAnalyticsAggregator(th.HighIVThreshold)
}

// ProvideClickHouseClient creates a ClickHouse client and ensures the
// instrument reference table exists. Signal and analytics tables are ensured
// by their sinks on engine start.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.InitSchema(ctx, internalrepo.InstrumentSchema); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}

	return client, nil
}

// ProvideDirectory loads the instrument directory snapshot from ClickHouse.
func ProvideDirectory(chClient *pkgch.Client, l *applogger.Logger) (repository.InstrumentDirectory, error) {
	dir := internalrepo.NewCHInstrumentDirectory(chClient)
	dir.SetLogger(l)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := dir.Reload(ctx); err != nil {
		return nil, fmt.Errorf("instrument directory: %w", err)
	}
	return dir, nil
}

// ProvideSelector creates the strike-ladder universe selector.
func ProvideSelector(dir repository.InstrumentDirectory, cfg *config.Config, l *applogger.Logger) repository.UniverseSelector {
	return universe.New(dir, cfg.Engine.Underlyings, cfg.Engine.NumStrikes, l)
}

// ProvideFeed creates the sample source: the broker WebSocket stream or a
// Kafka topic, per feed.type.
func ProvideFeed(cfg *config.Config, l *applogger.Logger) (repository.Feed, error) {
	switch cfg.Feed.Type {
	case "websocket":
		return angelfeed.New(
			cfg.Feed.URL,
			cfg.Feed.APIKey,
			cfg.Feed.ReconnectDelay,
			cfg.Feed.PingInterval,
			l,
		), nil
	case "kafka":
		consumer, err := pkgkafka.NewConsumer(
			pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
			pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
			pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
			pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		)
		if err != nil {
			return nil, fmt.Errorf("kafka consumer: %w", err)
		}
		return kafkafeed.New(consumer, cfg.Feed.Topic, l), nil
	default:
		return nil, fmt.Errorf("unknown feed type %q", cfg.Feed.Type)
	}
}

// ProvideKafkaProducer creates a Kafka producer for the kafka backend.
// Returns nil when the backend is ClickHouse; the sinks never touch it then.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if cfg.Backend.Type != "kafka" {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideSignalSink selects the signal store per backend.type.
func ProvideSignalSink(cfg *config.Config, chClient *pkgch.Client, producer *pkgkafka.Producer, l *applogger.Logger) repository.SignalSink {
	if cfg.Backend.Type == "kafka" {
		return internalrepo.NewKafkaSignalSink(producer, cfg.Kafka.Topic)
	}
	store := internalrepo.NewClickHouseSignalStore(chClient)
	store.SetLogger(l)
	return store
}

// ProvideAnalyticsSink selects the analytics store per backend.type.
func ProvideAnalyticsSink(cfg *config.Config, chClient *pkgch.Client, producer *pkgkafka.Producer, l *applogger.Logger) repository.AnalyticsSink {
	if cfg.Backend.Type == "kafka" {
		return internalrepo.NewKafkaAnalyticsSink(producer, cfg.Kafka.Topic+".analytics")
	}
	store := internalrepo.NewClickHouseAnalyticsStore(chClient)
	store.SetLogger(l)
	return store
}

// ProvideSignalCache publishes recent signals to Redis, falling back to an
// in-process cache when Redis is disabled so the recent-signals endpoint
// keeps working in single-node runs.
func ProvideSignalCache(cfg *config.Config) (repository.SignalCache, error) {
	var svc cache.Service
	if cfg.Redis.Enabled {
		rc, err := cache.NewRedisCache(
			cache.WithRedisAddr(cfg.Redis.Addr),
			cache.WithRedisPassword(cfg.Redis.Password),
			cache.WithRedisDB(cfg.Redis.DB),
			cache.WithRedisPrefix("openta"),
		)
		if err != nil {
			return nil, fmt.Errorf("redis cache: %w", err)
		}
		svc = rc
	} else {
		svc = cache.NewMemoryCache()
	}
	return internalrepo.NewCachedSignalPublisher(svc, cfg.Engine.AnalysisWindow, cfg.Engine.RecentSignalLimit), nil
}

// ProvideEmitQueue creates and starts the async sink-write queue.
func ProvideEmitQueue(cfg *config.Config, m repository.Metrics, l *applogger.Logger) *queue.Memory {
	q := queue.NewMemory(l, queue.Config{
		Workers:    cfg.Queue.Workers,
		QueueSize:  cfg.Queue.Size,
		RetryLimit: cfg.Queue.RetryLimit,
		BackoffMin: cfg.Queue.BackoffMin,
		BackoffMax: cfg.Queue.BackoffMax,
	},
		queue.WithRetryHook(func(kind string) { m.RecordSinkRetry(kind) }),
		queue.WithDropHook(func(kind string) { m.RecordError("queue_drop") }),
	)
	q.Start(context.Background())
	return q
}

// ProvideIngest builds the validation/sharding pipeline between the feed and
// the window aggregator.
func ProvideIngest(agg *usecase.WindowAggregator, dir repository.InstrumentDirectory, m repository.Metrics) usecase.Ingest {
	return mid.NewSamplePipeline(agg, dir, m)
}

// ProvideController assembles the engine controller.
func ProvideController(
	cfg *config.Config,
	th usecase.Thresholds,
	cal *calendar.Calendar,
	agg *usecase.WindowAggregator,
	cls *usecase.Classifier,
	fold *usecase.AnalyticsAggregator,
	feed repository.Feed,
	dir repository.InstrumentDirectory,
	selector repository.UniverseSelector,
	signals repository.SignalSink,
	analytics repository.AnalyticsSink,
	sigCache repository.SignalCache,
	ingest usecase.Ingest,
	emitQ *queue.Memory,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.EngineController {
	return usecase.NewEngineController(
		usecase.ControllerConfig{
			Thresholds:    th,
			FlushInterval: cfg.Engine.AnalysisWindow,
			EmitTimeout:   cfg.Engine.EmitTimeout,
		},
		cal, agg, cls, fold,
		feed, dir, selector,
		signals, analytics, sigCache,
		ingest, emitQ, m, l,
	)
}

// ProvideHandler creates the control API handler.
func ProvideHandler(
	l *applogger.Logger,
	ctrl *usecase.EngineController,
	analytics repository.AnalyticsSink,
	sigCache repository.SignalCache,
) xhttp.Handler {
	return api.NewEngineEchoHandler(l, ctrl, analytics, sigCache)
}

// ProvideHTTPServer creates the Echo server hosting the control API and the
// Prometheus scrape endpoint.
func ProvideHTTPServer(cfg *config.Config, l *applogger.Logger, h xhttp.Handler) *xhttp.Server {
	opts := []xhttp.ServerOption{
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
	}
	if cfg.Metrics.Path != "" {
		opts = append(opts, xhttp.WithMetricsPath(cfg.Metrics.Path))
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithRequestMetrics(l, 500*time.Millisecond))
	}
	return xhttp.NewServer(h, opts...)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	ctrl *usecase.EngineController,
	httpServer *xhttp.Server,
	emitQ *queue.Memory,
	chClient *pkgch.Client,
) *server.App {
	return server.New(cfg, l, ctrl, httpServer, emitQ, chClient)
}
