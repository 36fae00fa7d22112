package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rishigupta87/open-ta/internal/calendar"
	"github.com/rishigupta87/open-ta/internal/domain/models"
	"github.com/rishigupta87/open-ta/pkg/logger"
	"github.com/rishigupta87/open-ta/pkg/queue"
)

// --- fakes ---

type fakeFeed struct {
	mu          sync.Mutex
	connected   bool
	samples     chan *models.Sample
	errs        chan error
	subs        []string
	reconnected chan struct{}
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{
		samples:     make(chan *models.Sample, 64),
		errs:        make(chan error, 1),
		reconnected: make(chan struct{}, 4),
	}
}

func (f *fakeFeed) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = true
	return nil
}

func (f *fakeFeed) Subscribe(_ context.Context, tokens []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs = append(f.subs, tokens...)
	return nil
}

func (f *fakeFeed) Unsubscribe(context.Context, []string) error { return nil }

func (f *fakeFeed) Read(context.Context) (<-chan *models.Sample, <-chan error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.samples, f.errs
}

// Reconnect replaces the stream channels, like a real feed re-dialing.
func (f *fakeFeed) Reconnect(context.Context) error {
	f.mu.Lock()
	f.samples = make(chan *models.Sample, 64)
	f.errs = make(chan error, 1)
	f.connected = true
	f.mu.Unlock()
	select {
	case f.reconnected <- struct{}{}:
	default:
	}
	return nil
}

// fail kills the current stream: one error, then both channels close.
func (f *fakeFeed) fail(err error) {
	f.mu.Lock()
	samples, errs := f.samples, f.errs
	f.mu.Unlock()
	errs <- err
	close(errs)
	close(samples)
}

func (f *fakeFeed) push(s *models.Sample) {
	f.mu.Lock()
	ch := f.samples
	f.mu.Unlock()
	ch <- s
}

func (f *fakeFeed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	return nil
}

func (f *fakeFeed) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

type fakeDirectory map[string]models.Instrument

func (d fakeDirectory) Lookup(token string) (models.Instrument, bool) {
	inst, ok := d[token]
	return inst, ok
}

func (d fakeDirectory) ListUnderlying(underlying string) []models.Instrument {
	var out []models.Instrument
	for _, inst := range d {
		if inst.Underlying == underlying {
			out = append(out, inst)
		}
	}
	return out
}

type fakeSelector []string

func (s fakeSelector) Select(context.Context) ([]string, error) { return s, nil }

type fakeSignalSink struct {
	mu            sync.Mutex
	ensureErr     error
	ensureGate    chan struct{} // when set, Ensure blocks until the gate closes
	ensureEntered chan struct{} // when set, signalled on Ensure entry
	got           []*models.Signal
	notify        chan struct{}
}

func newFakeSignalSink() *fakeSignalSink {
	return &fakeSignalSink{notify: make(chan struct{}, 64)}
}

func (s *fakeSignalSink) Ensure(context.Context) error {
	if s.ensureEntered != nil {
		select {
		case s.ensureEntered <- struct{}{}:
		default:
		}
	}
	if s.ensureGate != nil {
		<-s.ensureGate
	}
	return s.ensureErr
}

func (s *fakeSignalSink) Append(_ context.Context, sig *models.Signal) error {
	s.mu.Lock()
	s.got = append(s.got, sig)
	s.mu.Unlock()
	s.notify <- struct{}{}
	return nil
}

func (s *fakeSignalSink) Close() error { return nil }

func (s *fakeSignalSink) signals() []*models.Signal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.Signal(nil), s.got...)
}

type fakeAnalyticsSink struct {
	mu     sync.Mutex
	got    []*models.UnderlyingAnalytics
	notify chan struct{}
}

func newFakeAnalyticsSink() *fakeAnalyticsSink {
	return &fakeAnalyticsSink{notify: make(chan struct{}, 64)}
}

func (s *fakeAnalyticsSink) Ensure(context.Context) error { return nil }

func (s *fakeAnalyticsSink) Append(_ context.Context, a *models.UnderlyingAnalytics) error {
	s.mu.Lock()
	s.got = append(s.got, a)
	s.mu.Unlock()
	s.notify <- struct{}{}
	return nil
}

func (s *fakeAnalyticsSink) QueryRange(context.Context, string, time.Time, time.Time, int) ([]*models.UnderlyingAnalytics, error) {
	return nil, nil
}

func (s *fakeAnalyticsSink) Close() error { return nil }

func (s *fakeAnalyticsSink) records() []*models.UnderlyingAnalytics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.UnderlyingAnalytics(nil), s.got...)
}

type noopMetrics struct{}

func (noopMetrics) RecordSample(string)                 {}
func (noopMetrics) RecordSignal(string, string, string) {}
func (noopMetrics) RecordError(string)                  {}
func (noopMetrics) RecordFlushDuration(float64)         {}
func (noopMetrics) RecordTrackedTokens(int)             {}
func (noopMetrics) RecordSinkRetry(string)              {}

// directIngest feeds samples straight into the aggregator.
type directIngest struct{ agg *WindowAggregator }

func (i directIngest) Start(context.Context) {}
func (i directIngest) Stop()                 {}
func (i directIngest) Submit(s *models.Sample) error {
	i.agg.Observe(s)
	return nil
}

// chanIngest exposes submitted samples on a channel for delivery assertions.
type chanIngest struct{ got chan *models.Sample }

func (i chanIngest) Start(context.Context) {}
func (i chanIngest) Stop()                 {}
func (i chanIngest) Submit(s *models.Sample) error {
	i.got <- s
	return nil
}

// --- harness ---

var ist = time.FixedZone("IST", 5*3600+30*60)

// Monday 2025-07-07 11:00 IST: NFO and MCX both open.
var openNow = time.Date(2025, 7, 7, 11, 0, 0, 0, ist)

// Saturday.
var closedNow = time.Date(2025, 7, 12, 11, 0, 0, 0, ist)

type harness struct {
	ctrl      *EngineController
	agg       *WindowAggregator
	feed      *fakeFeed
	signals   *fakeSignalSink
	analytics *fakeAnalyticsSink
}

func newHarness(t *testing.T, dir fakeDirectory, tokens []string) *harness {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: "error", Format: "console", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}

	cal := calendar.New(ist, map[string]calendar.Hours{
		"MCX": {Open: calendar.TimeOfDay{Hour: 9}, Close: calendar.TimeOfDay{Hour: 23, Minute: 30}},
		"NSE": {Open: calendar.TimeOfDay{Hour: 9, Minute: 20}, Close: calendar.TimeOfDay{Hour: 15, Minute: 30}},
		"NFO": {Open: calendar.TimeOfDay{Hour: 9, Minute: 20}, Close: calendar.TimeOfDay{Hour: 15, Minute: 30}},
	})

	th := DefaultThresholds()
	agg := NewWindowAggregator(th.AnalysisWindow)
	feed := newFakeFeed()
	signals := newFakeSignalSink()
	analytics := newFakeAnalyticsSink()

	emitQ := queue.NewMemory(log, queue.Config{
		Workers: 1, QueueSize: 64, RetryLimit: 1,
		BackoffMin: time.Millisecond, BackoffMax: time.Millisecond,
	})
	emitQ.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = emitQ.Stop(ctx)
	})

	ctrl := NewEngineController(
		ControllerConfig{Thresholds: th, FlushInterval: time.Hour, EmitTimeout: time.Second},
		cal, agg, NewClassifier(th), NewAnalyticsAggregator(th.HighIVThreshold),
		feed, dir, fakeSelector(tokens), signals, analytics, nil,
		directIngest{agg: agg}, emitQ, noopMetrics{}, log,
	).WithClock(func() time.Time { return openNow })

	return &harness{ctrl: ctrl, agg: agg, feed: feed, signals: signals, analytics: analytics}
}

func waitNotify(t *testing.T, ch chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func niftyCallDir() fakeDirectory {
	strike := 23500.0
	return fakeDirectory{
		"T1": {
			Token: "T1", Symbol: "NIFTY24JUL23500CE", Underlying: "NIFTY",
			Exchange: "NFO", InstrumentType: models.InstrumentCall, StrikePrice: &strike,
		},
	}
}

// --- tests ---

func TestEngineEndToEndWindow(t *testing.T) {
	h := newHarness(t, niftyCallDir(), []string{"T1"})
	ctx := context.Background()

	st, err := h.ctrl.Start(ctx)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if st.State != models.EngineRunning || st.TrackedTokens != 1 {
		t.Fatalf("unexpected status after start: %+v", st)
	}

	base := openNow.Add(-5 * time.Minute)
	h.agg.Observe(&models.Sample{Token: "T1", Timestamp: base, OI: 10000, IV: 18, Price: 100})
	h.agg.Observe(&models.Sample{Token: "T1", Timestamp: openNow, OI: 13000, IV: 19, Price: 103})

	h.ctrl.flushOnce(openNow)
	waitNotify(t, h.signals.notify, "signal append")
	waitNotify(t, h.analytics.notify, "analytics append")

	sigs := h.signals.signals()
	if len(sigs) != 1 {
		t.Fatalf("expected 1 signal, got %d", len(sigs))
	}
	s := sigs[0]
	if s.OIChange != 3000 || s.OIChangePercent == nil || *s.OIChangePercent != 30.0 {
		t.Errorf("signal delta wrong: %+v", s)
	}
	if s.Strength != models.StrengthStrong || s.Type != models.SignalBullish {
		t.Errorf("classification = %s/%s, want STRONG/BULLISH", s.Strength, s.Type)
	}

	recs := h.analytics.records()
	if len(recs) != 1 {
		t.Fatalf("expected 1 analytics record, got %d", len(recs))
	}
	a := recs[0]
	if a.Underlying != "NIFTY" || a.CallOIChange != 3000 || a.PutOIChange != 0 {
		t.Errorf("analytics wrong: %+v", a)
	}
	if a.MarketSentiment != models.SignalBullish {
		t.Errorf("sentiment = %s, want BULLISH", a.MarketSentiment)
	}

	if st := h.ctrl.GetStatus(); !st.LastWindowStart.Equal(openNow) {
		t.Errorf("last window start not recorded: %+v", st)
	}

	if _, err := h.ctrl.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if st := h.ctrl.GetStatus(); st.State != models.EngineStopped {
		t.Errorf("state after stop = %s", st.State)
	}
}

func TestEngineIdleWhenMarketsClosed(t *testing.T) {
	h := newHarness(t, niftyCallDir(), []string{"T1"})
	ctx := context.Background()
	if _, err := h.ctrl.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer h.ctrl.Stop(ctx)

	base := closedNow.Add(-5 * time.Minute)
	h.agg.Observe(&models.Sample{Token: "T1", Timestamp: base, OI: 10000, IV: 18, Price: 100})
	h.agg.Observe(&models.Sample{Token: "T1", Timestamp: closedNow, OI: 13000, IV: 19, Price: 103})

	h.ctrl.flushOnce(closedNow)

	select {
	case <-h.signals.notify:
		t.Fatal("signal emitted while all markets closed")
	case <-time.After(100 * time.Millisecond):
	}
	if len(h.analytics.records()) != 0 {
		t.Fatal("analytics emitted while all markets closed")
	}

	// The engine stays alive, just idle.
	if st := h.ctrl.GetStatus(); st.State != models.EngineRunning {
		t.Errorf("state = %s, want RUNNING", st.State)
	}
}

func TestEngineStartIsIdempotent(t *testing.T) {
	h := newHarness(t, niftyCallDir(), []string{"T1"})
	ctx := context.Background()
	if _, err := h.ctrl.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer h.ctrl.Stop(ctx)

	st, err := h.ctrl.Start(ctx)
	if err != nil {
		t.Fatalf("redundant start must not error: %v", err)
	}
	if st.State != models.EngineRunning {
		t.Errorf("state = %s, want RUNNING", st.State)
	}
}

func TestEngineStopFromStoppedIsNoop(t *testing.T) {
	h := newHarness(t, niftyCallDir(), []string{"T1"})
	st, err := h.ctrl.Stop(context.Background())
	if err != nil {
		t.Fatalf("stop from stopped must not error: %v", err)
	}
	if st.State != models.EngineStopped {
		t.Errorf("state = %s, want STOPPED", st.State)
	}
}

func TestEngineStartFailsOnMissingSinkStructures(t *testing.T) {
	h := newHarness(t, niftyCallDir(), []string{"T1"})
	h.signals.ensureErr = errors.New("table oi_signals missing")

	st, err := h.ctrl.Start(context.Background())
	if err == nil {
		t.Fatal("expected start to fail")
	}
	var cfgErr *models.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %T: %v", err, err)
	}
	if st.State != models.EngineStopped {
		t.Errorf("state = %s, want STOPPED", st.State)
	}
	if st.LastError == "" {
		t.Error("last error not recorded")
	}
	if h.feed.IsConnected() {
		t.Error("feed must not be connected after failed start")
	}
}

func TestEngineDropsUnknownTokens(t *testing.T) {
	h := newHarness(t, niftyCallDir(), []string{"T1", "GHOST"})
	ctx := context.Background()
	st, err := h.ctrl.Start(ctx)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer h.ctrl.Stop(ctx)

	if st.TrackedTokens != 1 {
		t.Errorf("tracked = %d, want 1 (unknown token dropped)", st.TrackedTokens)
	}
}

func TestEngineResumesAfterFeedReconnect(t *testing.T) {
	h := newHarness(t, niftyCallDir(), []string{"T1"})
	ci := chanIngest{got: make(chan *models.Sample, 8)}
	h.ctrl.ingest = ci
	ctx := context.Background()
	if _, err := h.ctrl.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer h.ctrl.Stop(ctx)

	h.feed.fail(errors.New("read: connection reset"))
	waitNotify(t, h.feed.reconnected, "feed reconnect")

	h.feed.push(&models.Sample{Token: "T1", Timestamp: openNow, OI: 10000, IV: 18, Price: 100})
	select {
	case s := <-ci.got:
		if s.Token != "T1" {
			t.Fatalf("unexpected sample after reconnect: %+v", s)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no sample delivered after reconnect")
	}
}

func TestEngineStopDuringStartWins(t *testing.T) {
	h := newHarness(t, niftyCallDir(), []string{"T1"})
	gate := make(chan struct{})
	entered := make(chan struct{}, 1)
	h.signals.ensureGate = gate
	h.signals.ensureEntered = entered

	done := make(chan models.EngineStatus, 1)
	go func() {
		st, _ := h.ctrl.Start(context.Background())
		done <- st
	}()

	waitNotify(t, entered, "start to reach the sink check")
	if st := h.ctrl.GetStatus(); st.State != models.EngineStarting {
		t.Fatalf("state = %s, want STARTING", st.State)
	}

	st, err := h.ctrl.Stop(context.Background())
	if err != nil {
		t.Fatalf("stop during start: %v", err)
	}
	if st.State != models.EngineStopped {
		t.Fatalf("stop returned %s, want STOPPED", st.State)
	}

	close(gate)
	select {
	case st := <-done:
		if st.State != models.EngineStopped {
			t.Errorf("start committed %s after stop", st.State)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("start did not return")
	}

	if final := h.ctrl.GetStatus(); final.State != models.EngineStopped {
		t.Errorf("final state = %s, want STOPPED", final.State)
	}
	if h.feed.IsConnected() {
		t.Error("feed left connected after aborted start")
	}
}

func TestEngineSkipsWindowStraddlingMarketOpen(t *testing.T) {
	h := newHarness(t, niftyCallDir(), []string{"T1"})
	ctx := context.Background()
	if _, err := h.ctrl.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer h.ctrl.Stop(ctx)

	// NFO opens at 09:20; this window began ten minutes before the bell.
	preOpen := time.Date(2025, 7, 7, 9, 10, 0, 0, ist)
	h.agg.Observe(&models.Sample{Token: "T1", Timestamp: preOpen, OI: 10000, IV: 18, Price: 100})
	h.agg.Observe(&models.Sample{Token: "T1", Timestamp: preOpen.Add(time.Minute), OI: 13000, IV: 19, Price: 103})

	h.ctrl.flushOnce(time.Date(2025, 7, 7, 9, 21, 0, 0, ist))
	select {
	case <-h.signals.notify:
		t.Fatal("signal emitted for a window begun before market open")
	case <-time.After(100 * time.Millisecond):
	}

	// The next window sits entirely inside trading hours.
	h.agg.Observe(&models.Sample{Token: "T1", Timestamp: time.Date(2025, 7, 7, 9, 22, 0, 0, ist), OI: 13500, IV: 19, Price: 104})
	h.agg.Observe(&models.Sample{Token: "T1", Timestamp: time.Date(2025, 7, 7, 9, 23, 0, 0, ist), OI: 16000, IV: 19, Price: 106})
	h.ctrl.flushOnce(time.Date(2025, 7, 7, 9, 26, 0, 0, ist))
	waitNotify(t, h.signals.notify, "signal append")

	sigs := h.signals.signals()
	if len(sigs) != 1 || sigs[0].OIChange != 3000 {
		t.Fatalf("expected one signal with delta 3000, got %+v", sigs)
	}
}
