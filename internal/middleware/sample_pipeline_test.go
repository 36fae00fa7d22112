package middleware

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rishigupta87/open-ta/internal/domain/models"
	"github.com/rishigupta87/open-ta/internal/repository"
)

type captureObserver struct {
	mu  sync.Mutex
	got []*models.Sample
}

func (o *captureObserver) Observe(s *models.Sample) {
	o.mu.Lock()
	o.got = append(o.got, s)
	o.mu.Unlock()
}

func (o *captureObserver) samples() []*models.Sample {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*models.Sample(nil), o.got...)
}

type countMetrics struct {
	mu     sync.Mutex
	errors map[string]int
}

func newCountMetrics() *countMetrics { return &countMetrics{errors: make(map[string]int)} }

func (m *countMetrics) RecordSample(string)                 {}
func (m *countMetrics) RecordSignal(string, string, string) {}
func (m *countMetrics) RecordError(kind string) {
	m.mu.Lock()
	m.errors[kind]++
	m.mu.Unlock()
}
func (m *countMetrics) RecordFlushDuration(float64) {}
func (m *countMetrics) RecordTrackedTokens(int)     {}
func (m *countMetrics) RecordSinkRetry(string)      {}

func (m *countMetrics) count(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errors[kind]
}

func knownDir() *repository.StaticDirectory {
	return repository.NewStaticDirectory([]models.Instrument{
		{Token: "T1", Symbol: "NIFTYFUT", Underlying: "NIFTY", Exchange: "NFO", InstrumentType: models.InstrumentFuture},
	})
}

func tick(token string, oi int64) *models.Sample {
	return &models.Sample{Token: token, Timestamp: time.Now(), OI: oi, IV: 18, Price: 100}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestSubmitDeliversInOrder(t *testing.T) {
	obs := &captureObserver{}
	p := NewSamplePipeline(obs, knownDir(), newCountMetrics(), WithMaxPerTokenPerSec(0))
	p.Start(context.Background())
	defer p.Stop()

	for i := int64(1); i <= 50; i++ {
		if err := p.Submit(tick("T1", i*1000)); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}

	waitFor(t, func() bool { return len(obs.samples()) == 50 })
	got := obs.samples()
	for i, s := range got {
		if s.OI != int64(i+1)*1000 {
			t.Fatalf("sample %d out of order: oi=%d", i, s.OI)
		}
	}
}

func TestSubmitRejectsUnknownToken(t *testing.T) {
	obs := &captureObserver{}
	m := newCountMetrics()
	p := NewSamplePipeline(obs, knownDir(), m, WithMaxPerTokenPerSec(0))
	p.Start(context.Background())
	defer p.Stop()

	err := p.Submit(tick("GHOST", 1000))
	var derr *models.DataError
	if !errors.As(err, &derr) {
		t.Fatalf("expected DataError, got %v", err)
	}
	if m.count("unknown_token") != 1 {
		t.Error("unknown token not counted")
	}
	if len(obs.samples()) != 0 {
		t.Error("unknown token sample delivered")
	}
}

func TestSubmitRejectsInvalidSamples(t *testing.T) {
	obs := &captureObserver{}
	p := NewSamplePipeline(obs, knownDir(), newCountMetrics(), WithMaxPerTokenPerSec(0))
	p.Start(context.Background())
	defer p.Stop()

	cases := []*models.Sample{
		nil,
		{Token: "", Timestamp: time.Now(), OI: 1},
		{Token: "T1", OI: 1}, // zero timestamp
		{Token: "T1", Timestamp: time.Now(), OI: -5},
	}
	for i, s := range cases {
		if err := p.Submit(s); err == nil {
			t.Errorf("case %d: expected validation error", i)
		}
	}
}

func TestSubmitThrottlesPerToken(t *testing.T) {
	obs := &captureObserver{}
	m := newCountMetrics()
	p := NewSamplePipeline(obs, knownDir(), m, WithMaxPerTokenPerSec(1))
	p.Start(context.Background())
	defer p.Stop()

	// Burst beyond the 1/s bucket: extras drop silently.
	for i := 0; i < 5; i++ {
		if err := p.Submit(tick("T1", 1000)); err != nil {
			t.Fatalf("throttled submit must not error: %v", err)
		}
	}
	if m.count("pipeline_throttle") == 0 {
		t.Error("expected throttle drops")
	}
	waitFor(t, func() bool { return len(obs.samples()) >= 1 })
	if got := len(obs.samples()); got >= 5 {
		t.Errorf("throttle ineffective: %d delivered", got)
	}
}
