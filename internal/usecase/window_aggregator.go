package usecase

import (
	"hash/fnv"
	"sync"
	"time"

	"github.com/rishigupta87/open-ta/internal/domain/models"
)

const shardCount = 32

// Delta is one token's OI movement over a completed analysis window.
type Delta struct {
	Token    string
	Baseline models.Sample
	Latest   models.Sample
	OIChange int64
	// OIChangePct is nil when the baseline OI was zero.
	OIChangePct *float64
	WindowStart time.Time
}

// windowState is the per-token rolling baseline. Its mutex is the per-token
// critical section: Observe and the flush read-and-reset both take it, so a
// flush snapshot is atomic relative to concurrent samples for the same token.
type windowState struct {
	mu          sync.Mutex
	baseline    models.Sample
	latest      models.Sample
	windowStart time.Time
	samples     int // samples seen since the last reset
}

type windowShard struct {
	mu     sync.RWMutex
	states map[string]*windowState
}

// WindowAggregator converts an unbounded per-token sample stream into
// per-window deltas. Tokens are sharded by hash; there is no global lock, so
// Observe calls for different tokens proceed in parallel while same-token
// updates serialize on the token's own mutex.
type WindowAggregator struct {
	window time.Duration
	shards [shardCount]*windowShard
}

// NewWindowAggregator creates an aggregator with the given analysis window.
func NewWindowAggregator(window time.Duration) *WindowAggregator {
	a := &WindowAggregator{window: window}
	for i := range a.shards {
		a.shards[i] = &windowShard{states: make(map[string]*windowState)}
	}
	return a
}

func (a *WindowAggregator) shardFor(token string) *windowShard {
	h := fnv.New32a()
	h.Write([]byte(token))
	return a.shards[h.Sum32()%shardCount]
}

// Observe applies one sample. The first sample for a token seeds both
// baseline and latest; later samples only move latest.
func (a *WindowAggregator) Observe(s *models.Sample) {
	sh := a.shardFor(s.Token)

	sh.mu.RLock()
	st := sh.states[s.Token]
	sh.mu.RUnlock()

	if st == nil {
		sh.mu.Lock()
		if st = sh.states[s.Token]; st == nil {
			sh.states[s.Token] = &windowState{
				baseline:    *s,
				latest:      *s,
				windowStart: s.Timestamp,
				samples:     1,
			}
			sh.mu.Unlock()
			return
		}
		sh.mu.Unlock()
	}

	st.mu.Lock()
	st.latest = *s
	st.samples++
	st.mu.Unlock()
}

// Flush computes deltas for every token whose window started at least one
// analysis window before now. Tokens rejected by the include predicate, and
// tokens with fewer than two samples since the last reset, produce no delta
// but still reset their window start so stale windows cannot grow unbounded.
// Shards are flushed in parallel and joined before returning, so the caller
// sees the complete window.
func (a *WindowAggregator) Flush(now time.Time, include func(token string) bool) []Delta {
	var (
		mu  sync.Mutex
		out []Delta
		wg  sync.WaitGroup
	)

	for _, sh := range a.shards {
		wg.Add(1)
		go func(sh *windowShard) {
			defer wg.Done()

			sh.mu.RLock()
			states := make(map[string]*windowState, len(sh.states))
			for tok, st := range sh.states {
				states[tok] = st
			}
			sh.mu.RUnlock()

			var local []Delta
			for tok, st := range states {
				st.mu.Lock()
				if now.Sub(st.windowStart) < a.window {
					st.mu.Unlock()
					continue
				}
				if (include == nil || include(tok)) && st.samples >= 2 {
					d := Delta{
						Token:       tok,
						Baseline:    st.baseline,
						Latest:      st.latest,
						OIChange:    st.latest.OI - st.baseline.OI,
						WindowStart: st.windowStart,
					}
					if st.baseline.OI != 0 {
						pct := float64(d.OIChange) / float64(st.baseline.OI) * 100
						d.OIChangePct = &pct
					}
					local = append(local, d)
				}
				// The carried baseline is not a sample: the next window
				// needs two fresh arrivals before it can produce a delta.
				st.baseline = st.latest
				st.windowStart = now
				st.samples = 0
				st.mu.Unlock()
			}

			if len(local) > 0 {
				mu.Lock()
				out = append(out, local...)
				mu.Unlock()
			}
		}(sh)
	}

	wg.Wait()
	return out
}

// Len returns the number of tracked tokens.
func (a *WindowAggregator) Len() int {
	n := 0
	for _, sh := range a.shards {
		sh.mu.RLock()
		n += len(sh.states)
		sh.mu.RUnlock()
	}
	return n
}

// Forget drops state for tokens no longer tracked.
func (a *WindowAggregator) Forget(tokens []string) {
	for _, tok := range tokens {
		sh := a.shardFor(tok)
		sh.mu.Lock()
		delete(sh.states, tok)
		sh.mu.Unlock()
	}
}
