package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rishigupta87/open-ta/internal/calendar"
	"github.com/rishigupta87/open-ta/internal/domain/models"
	drepo "github.com/rishigupta87/open-ta/internal/domain/repository"
	"github.com/rishigupta87/open-ta/pkg/logger"
	"github.com/rishigupta87/open-ta/pkg/queue"
)

// Ingest sits between the feed and the aggregator: validation plus a bounded
// buffer per token shard.
type Ingest interface {
	Start(ctx context.Context)
	Submit(s *models.Sample) error
	Stop()
}

// ControllerConfig carries the engine's runtime knobs.
type ControllerConfig struct {
	Thresholds    Thresholds
	FlushInterval time.Duration // defaults to the analysis window
	EmitTimeout   time.Duration // per sink-write deadline
}

// EngineController gates the aggregation pipeline against the trading
// calendar and external start/stop commands. It owns the flush cadence and
// is the only writer of EngineStatus.
type EngineController struct {
	cfg       ControllerConfig
	cal       *calendar.Calendar
	agg       *WindowAggregator
	cls       *Classifier
	fold      *AnalyticsAggregator
	feed      drepo.Feed
	dir       drepo.InstrumentDirectory
	selector  drepo.UniverseSelector
	signals   drepo.SignalSink
	analytics drepo.AnalyticsSink
	cache     drepo.SignalCache // optional
	ingest    Ingest
	emitQ     *queue.Memory
	metrics   drepo.Metrics
	log       *logger.Logger
	clock     func() time.Time

	mu       sync.Mutex
	status   models.EngineStatus
	startGen uint64 // bumped per Start attempt; guards the RUNNING commit
	universe map[string]models.Instrument
	cancel   context.CancelFunc

	flushWG sync.WaitGroup // in-flight flush ticks
	runWG   sync.WaitGroup // run/consume goroutines
}

// NewEngineController wires the engine core. cache may be nil.
func NewEngineController(
	cfg ControllerConfig,
	cal *calendar.Calendar,
	agg *WindowAggregator,
	cls *Classifier,
	fold *AnalyticsAggregator,
	feed drepo.Feed,
	dir drepo.InstrumentDirectory,
	selector drepo.UniverseSelector,
	signals drepo.SignalSink,
	analytics drepo.AnalyticsSink,
	cache drepo.SignalCache,
	ingest Ingest,
	emitQ *queue.Memory,
	metrics drepo.Metrics,
	log *logger.Logger,
) *EngineController {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = cfg.Thresholds.AnalysisWindow
	}
	if cfg.EmitTimeout <= 0 {
		cfg.EmitTimeout = 5 * time.Second
	}
	return &EngineController{
		cfg:       cfg,
		cal:       cal,
		agg:       agg,
		cls:       cls,
		fold:      fold,
		feed:      feed,
		dir:       dir,
		selector:  selector,
		signals:   signals,
		analytics: analytics,
		cache:     cache,
		ingest:    ingest,
		emitQ:     emitQ,
		metrics:   metrics,
		log:       log,
		clock:     time.Now,
		status:    models.EngineStatus{State: models.EngineStopped},
		universe:  make(map[string]models.Instrument),
	}
}

// WithClock replaces the wall clock, for deterministic tests.
func (c *EngineController) WithClock(clock func() time.Time) *EngineController {
	c.clock = clock
	return c
}

// Start brings the engine from STOPPED to RUNNING: verifies sink structures,
// resolves the tracked universe, subscribes the feed, and schedules the
// flush tick. Redundant calls are no-ops returning the current status.
func (c *EngineController) Start(ctx context.Context) (models.EngineStatus, error) {
	c.mu.Lock()
	switch c.status.State {
	case models.EngineRunning, models.EngineStarting, models.EngineStopping:
		st := c.status
		c.mu.Unlock()
		c.log.Warn("start ignored", logger.Error(&models.StateError{Op: "start", State: st.State}))
		return st, nil
	}
	c.status.State = models.EngineStarting
	c.status.LastError = ""
	c.startGen++
	gen := c.startGen
	c.mu.Unlock()

	if err := c.signals.Ensure(ctx); err != nil {
		return c.failStart(gen, &models.ConfigurationError{Reason: "signal sink structures missing", Err: err})
	}
	if err := c.analytics.Ensure(ctx); err != nil {
		return c.failStart(gen, &models.ConfigurationError{Reason: "analytics sink structures missing", Err: err})
	}

	tokens, err := c.selector.Select(ctx)
	if err != nil {
		return c.failStart(gen, &models.ConfigurationError{Reason: "universe selection failed", Err: err})
	}

	universe := make(map[string]models.Instrument, len(tokens))
	subscribe := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		inst, ok := c.dir.Lookup(tok)
		if !ok {
			derr := &models.DataError{Token: tok, Reason: "no instrument directory entry"}
			c.log.Warn("dropping token", logger.String("token", tok), logger.Error(derr))
			c.metrics.RecordError("unknown_token")
			continue
		}
		universe[tok] = inst
		subscribe = append(subscribe, tok)
	}
	if len(subscribe) == 0 {
		return c.failStart(gen, &models.ConfigurationError{Reason: "universe resolved to zero known tokens"})
	}

	if err := c.feed.Connect(ctx); err != nil {
		return c.failStart(gen, &models.ConfigurationError{Reason: "feed connect failed", Err: err})
	}
	if err := c.feed.Subscribe(ctx, subscribe); err != nil {
		_ = c.feed.Close()
		return c.failStart(gen, &models.ConfigurationError{Reason: "feed subscribe failed", Err: err})
	}

	runCtx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	if c.status.State != models.EngineStarting || c.startGen != gen {
		// A Stop (or a newer Start) raced in while we were connecting.
		stale := c.startGen != gen
		st := c.status
		c.mu.Unlock()
		cancel()
		if !stale { // a newer Start owns the feed now; leave it alone
			_ = c.feed.Unsubscribe(ctx, subscribe)
			_ = c.feed.Close()
		}
		c.log.Warn("start aborted", logger.Error(&models.StateError{Op: "start", State: st.State}))
		return st, nil
	}
	c.universe = universe
	c.cancel = cancel
	c.status.State = models.EngineRunning
	c.status.TrackedTokens = len(universe)
	st := c.status
	c.mu.Unlock()

	c.metrics.RecordTrackedTokens(len(universe))
	c.ingest.Start(runCtx)

	c.runWG.Add(2)
	go c.consume(runCtx)
	go c.tick(runCtx)

	c.log.Info("engine running",
		logger.Int("tokens", len(universe)),
		logger.Duration("flush_interval", c.cfg.FlushInterval))
	return st, nil
}

func (c *EngineController) failStart(gen uint64, err error) (models.EngineStatus, error) {
	c.mu.Lock()
	if c.status.State == models.EngineStarting && c.startGen == gen {
		c.status.State = models.EngineStopped
	}
	c.status.LastError = err.Error()
	st := c.status
	c.mu.Unlock()
	c.log.Error("engine start failed", logger.Error(err))
	c.metrics.RecordError("start")
	return st, err
}

// Stop cancels the flush tick, unsubscribes from the feed, and waits for any
// in-flight flush before reporting STOPPED. A no-op from STOPPED. From
// STARTING it wins over the in-flight Start, which rolls back instead of
// committing RUNNING.
func (c *EngineController) Stop(ctx context.Context) (models.EngineStatus, error) {
	c.mu.Lock()
	switch c.status.State {
	case models.EngineStopped, models.EngineStopping:
		st := c.status
		c.mu.Unlock()
		c.log.Warn("stop ignored", logger.Error(&models.StateError{Op: "stop", State: st.State}))
		return st, nil
	case models.EngineStarting:
		// Nothing is running yet. Flip the state; the in-flight Start
		// re-checks it before committing and tears down the feed itself.
		c.status.State = models.EngineStopped
		st := c.status
		c.mu.Unlock()
		c.log.Info("engine stopped during start")
		return st, nil
	}
	c.status.State = models.EngineStopping
	cancel := c.cancel
	c.cancel = nil
	tokens := make([]string, 0, len(c.universe))
	for tok := range c.universe {
		tokens = append(tokens, tok)
	}
	c.mu.Unlock()

	if cancel != nil {
		cancel() // no new flush starts
	}
	c.runWG.Wait()
	c.flushWG.Wait() // drain in-flight flush, do not abort its emissions
	c.ingest.Stop()
	c.agg.Forget(tokens) // next start re-seeds baselines

	if err := c.feed.Unsubscribe(ctx, tokens); err != nil {
		c.log.Warn("feed unsubscribe", logger.Error(err))
	}
	if err := c.feed.Close(); err != nil {
		c.log.Warn("feed close", logger.Error(err))
	}

	c.mu.Lock()
	c.status.State = models.EngineStopped
	st := c.status
	c.mu.Unlock()

	c.log.Info("engine stopped")
	return st, nil
}

// GetStatus returns a copy of the engine status.
func (c *EngineController) GetStatus() models.EngineStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Window returns the configured analysis window.
func (c *EngineController) Window() time.Duration {
	return c.cfg.Thresholds.AnalysisWindow
}

// MarketStatus reports the calendar's detailed status at the instant.
func (c *EngineController) MarketStatus(at time.Time) calendar.Status {
	return c.cal.DetailedStatus(at)
}

// consume pumps feed samples into the ingest pipeline and handles feed
// errors with reconnects; it never crashes the controller.
func (c *EngineController) consume(ctx context.Context) {
	defer c.runWG.Done()

	samples, errs := c.feed.Read(ctx)
	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errs:
			if ok && err == nil {
				continue
			}
			if !ok {
				err = fmt.Errorf("feed stream closed")
			}
			terr := &models.TransientIOError{Op: "feed read", Err: err}
			c.log.Warn("feed error, reconnecting", logger.Error(terr))
			c.metrics.RecordError("feed")
			if rerr := c.feed.Reconnect(ctx); rerr != nil {
				select {
				case <-time.After(backoff):
				case <-ctx.Done():
					return
				}
				if backoff *= 2; backoff > 30*time.Second {
					backoff = 30 * time.Second
				}
				continue
			}
			// The old stream died with its channels; re-arm from the
			// reconnected feed.
			samples, errs = c.feed.Read(ctx)
			backoff = time.Second
		case s, ok := <-samples:
			if !ok {
				samples = nil // the error side drives the reconnect
				continue
			}
			if s == nil {
				continue
			}
			if err := c.ingest.Submit(s); err != nil {
				c.metrics.RecordError("ingest")
			}
		}
	}
}

// tick drives the periodic flush.
func (c *EngineController) tick(ctx context.Context) {
	defer c.runWG.Done()

	ticker := time.NewTicker(c.cfg.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.flushOnce(c.clock())
		}
	}
}

// flushOnce runs one complete window: per-token deltas for tokens on open
// exchanges, classification, the per-underlying fold, and async emission.
// Tokens on closed exchanges are excluded entirely but still reset their
// window start inside the aggregator.
func (c *EngineController) flushOnce(now time.Time) {
	c.flushWG.Add(1)
	defer c.flushWG.Done()
	start := time.Now()

	c.mu.Lock()
	if c.status.State != models.EngineRunning {
		c.mu.Unlock()
		return
	}
	universe := c.universe
	c.mu.Unlock()

	open := make(map[string]bool)
	for _, inst := range universe {
		if _, seen := open[inst.Exchange]; !seen {
			open[inst.Exchange] = c.cal.IsExchangeOpen(inst.Exchange, now)
		}
	}

	include := func(token string) bool {
		inst, ok := universe[token]
		return ok && open[inst.Exchange]
	}
	deltas := c.agg.Flush(now, include)

	accepted := make([]*models.Signal, 0, len(deltas))
	for _, d := range deltas {
		inst, ok := universe[d.Token]
		if !ok {
			continue
		}
		// The exchange must have been open for the whole window, not just
		// at the flush instant; windows begun before open produce nothing.
		if !c.cal.IsExchangeOpen(inst.Exchange, d.WindowStart) {
			continue
		}
		if d.OIChangePct == nil {
			c.log.Debug("undefined percent change",
				logger.String("token", d.Token), logger.Int64("oi_change", d.OIChange))
		}
		if s := c.cls.Classify(d, inst); s != nil {
			accepted = append(accepted, s)
			c.metrics.RecordSignal(s.Underlying, string(s.Strength), string(s.Type))
		}
	}

	for _, s := range accepted {
		c.emitSignal(s)
	}
	for _, rec := range c.fold.Fold(now, accepted) {
		c.emitAnalytics(rec)
	}

	c.mu.Lock()
	c.status.LastWindowStart = now
	c.mu.Unlock()

	c.metrics.RecordFlushDuration(time.Since(start).Seconds())
	if len(accepted) > 0 {
		c.log.Info("window flushed",
			logger.Int("deltas", len(deltas)),
			logger.Int("signals", len(accepted)))
	}
}

// emitSignal hands the signal to the retry queue; the flush loop never
// blocks on sink latency.
func (c *EngineController) emitSignal(s *models.Signal) {
	err := c.emitQ.Enqueue(queue.Task{
		Kind: "signal",
		Run: func(ctx context.Context) error {
			wctx, cancel := context.WithTimeout(ctx, c.cfg.EmitTimeout)
			defer cancel()
			if err := c.signals.Append(wctx, s); err != nil {
				return &models.TransientIOError{Op: fmt.Sprintf("append signal %s", s.Token), Err: err}
			}
			if c.cache != nil {
				if cerr := c.cache.Publish(wctx, s); cerr != nil {
					c.log.Debug("signal cache publish", logger.Error(cerr))
				}
			}
			return nil
		},
	})
	if err != nil {
		c.metrics.RecordError("emit_signal")
	}
}

func (c *EngineController) emitAnalytics(rec *models.UnderlyingAnalytics) {
	err := c.emitQ.Enqueue(queue.Task{
		Kind: "analytics",
		Run: func(ctx context.Context) error {
			wctx, cancel := context.WithTimeout(ctx, c.cfg.EmitTimeout)
			defer cancel()
			if err := c.analytics.Append(wctx, rec); err != nil {
				return &models.TransientIOError{Op: fmt.Sprintf("append analytics %s", rec.Underlying), Err: err}
			}
			return nil
		},
	})
	if err != nil {
		c.metrics.RecordError("emit_analytics")
	}
}
