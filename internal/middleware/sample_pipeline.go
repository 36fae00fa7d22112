package middleware

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/rishigupta87/open-ta/internal/domain/models"
	domrepo "github.com/rishigupta87/open-ta/internal/domain/repository"
	"github.com/rishigupta87/open-ta/internal/service/ratelimit"
)

// Observer receives validated samples in per-token order.
type Observer interface {
	Observe(s *models.Sample)
}

// SamplePipeline sits between the feed and the window aggregator. It
// validates, drops unknown tokens, throttles per token, and fans samples out
// over sharded buffers. One worker drains each shard, so samples for a given
// token are always observed in arrival order.
type SamplePipeline struct {
	obs     Observer
	dir     domrepo.InstrumentDirectory
	metrics domrepo.Metrics
	limiter *ratelimit.Limiter

	shardCount int
	bufSize    int
	maxPerSec  float64

	mu      sync.Mutex
	started bool
	shards  []chan *models.Sample
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// PipelineOption configures SamplePipeline.
type PipelineOption func(*SamplePipeline)

// WithShards sets the number of shard buffers.
func WithShards(n int) PipelineOption {
	return func(p *SamplePipeline) {
		if n > 0 {
			p.shardCount = n
		}
	}
}

// WithBufferSize sets the per-shard buffer size.
func WithBufferSize(n int) PipelineOption {
	return func(p *SamplePipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithMaxPerTokenPerSec sets the per-token throttle. Zero disables it.
func WithMaxPerTokenPerSec(n float64) PipelineOption {
	return func(p *SamplePipeline) {
		p.maxPerSec = n
	}
}

// NewSamplePipeline creates a pipeline delivering into obs.
func NewSamplePipeline(obs Observer, dir domrepo.InstrumentDirectory, metrics domrepo.Metrics, opts ...PipelineOption) *SamplePipeline {
	p := &SamplePipeline{
		obs:        obs,
		dir:        dir,
		metrics:    metrics,
		limiter:    ratelimit.New(),
		shardCount: 8,
		bufSize:    512,
		maxPerSec:  20,
	}
	for _, opt := range opts {
		opt(p)
	}

	p.shards = make([]chan *models.Sample, p.shardCount)
	for i := range p.shards {
		p.shards[i] = make(chan *models.Sample, p.bufSize)
	}
	return p
}

// Start launches one drain worker per shard. Idempotent.
func (p *SamplePipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.stopCh = make(chan struct{})
	p.mu.Unlock()

	for _, shard := range p.shards {
		p.wg.Add(1)
		go p.drain(ctx, shard)
	}
}

func (p *SamplePipeline) drain(ctx context.Context, shard <-chan *models.Sample) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case s := <-shard:
			if s != nil {
				p.obs.Observe(s)
			}
		}
	}
}

// Stop halts the drain workers. Buffered samples are discarded; the next
// window re-seeds baselines from fresh data.
func (p *SamplePipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	stopCh := p.stopCh
	p.mu.Unlock()

	close(stopCh)
	p.wg.Wait()
}

// Submit validates and routes one sample. Unknown tokens and throttled
// samples are dropped; a full shard drops the sample rather than blocking
// the feed reader.
func (p *SamplePipeline) Submit(s *models.Sample) error {
	if err := validateSample(s); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}

	inst, ok := p.dir.Lookup(s.Token)
	if !ok {
		p.metrics.RecordError("unknown_token")
		return &models.DataError{Token: s.Token, Reason: "no instrument directory entry"}
	}

	if p.maxPerSec > 0 && !p.limiter.Allow(s.Token, p.maxPerSec, p.maxPerSec) {
		p.metrics.RecordError("pipeline_throttle")
		return nil
	}

	p.metrics.RecordSample(inst.Exchange)

	shard := p.shards[shardIndex(s.Token, p.shardCount)]
	select {
	case shard <- s:
		return nil
	default:
		p.metrics.RecordError("pipeline_buffer_full")
		return fmt.Errorf("pipeline shard full, dropped %s", s.Token)
	}
}

func validateSample(s *models.Sample) error {
	if s == nil {
		return fmt.Errorf("sample nil")
	}
	if s.Token == "" {
		return fmt.Errorf("token empty")
	}
	if s.Timestamp.IsZero() {
		return fmt.Errorf("timestamp invalid")
	}
	if s.OI < 0 || s.IV < 0 || s.Price < 0 {
		return fmt.Errorf("negative oi/iv/price")
	}
	return nil
}

func shardIndex(token string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(token))
	return int(h.Sum32() % uint32(n))
}
