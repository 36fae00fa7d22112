package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rishigupta87/open-ta/pkg/logger"
)

// Memory is an in-process retry queue with a worker pool.
type Memory struct {
	log     *logger.Logger
	cfg     Config
	tasks   chan Task
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
	closed  bool
	onRetry func(kind string)
	onDrop  func(kind string)
}

// MemoryOption configures Memory.
type MemoryOption func(*Memory)

// WithRetryHook observes every retry attempt, keyed by task kind.
func WithRetryHook(fn func(kind string)) MemoryOption {
	return func(m *Memory) { m.onRetry = fn }
}

// WithDropHook observes tasks abandoned after the retry limit or rejected
// because the queue is full.
func WithDropHook(fn func(kind string)) MemoryOption {
	return func(m *Memory) { m.onDrop = fn }
}

// NewMemory creates a queue. Zero config fields get safe defaults.
func NewMemory(log *logger.Logger, cfg Config, opts ...MemoryOption) *Memory {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.RetryLimit < 0 {
		cfg.RetryLimit = 0
	}
	if cfg.BackoffMin <= 0 {
		cfg.BackoffMin = 50 * time.Millisecond
	}
	if cfg.BackoffMax < cfg.BackoffMin {
		cfg.BackoffMax = 2 * time.Second
	}

	m := &Memory{
		log:   log,
		cfg:   cfg,
		tasks: make(chan Task, cfg.QueueSize),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start launches the worker pool. Idempotent.
func (m *Memory) Start(ctx context.Context) {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.mu.Unlock()

	for i := 0; i < m.cfg.Workers; i++ {
		m.wg.Add(1)
		go m.worker(ctx)
	}
}

// Enqueue submits a task without blocking. A full queue rejects the task.
// The send happens under the mutex so a concurrent Stop cannot close the
// channel between the closed check and the send.
func (m *Memory) Enqueue(t Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("queue closed")
	}

	select {
	case m.tasks <- t:
		return nil
	default:
		if m.onDrop != nil {
			m.onDrop(t.Kind)
		}
		return fmt.Errorf("queue full, dropped %s", t.Kind)
	}
}

// Stop closes the queue and waits for in-flight tasks, bounded by ctx.
func (m *Memory) Stop(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	close(m.tasks)
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("queue stop: %w", ctx.Err())
	}
}

// Depth returns the number of queued tasks.
func (m *Memory) Depth() int { return len(m.tasks) }

func (m *Memory) worker(ctx context.Context) {
	defer m.wg.Done()
	for t := range m.tasks {
		m.runWithRetry(ctx, t)
	}
}

func (m *Memory) runWithRetry(ctx context.Context, t Task) {
	backoff := m.cfg.BackoffMin
	for attempt := 0; ; attempt++ {
		err := t.Run(ctx)
		if err == nil {
			return
		}
		if ctx.Err() != nil {
			return
		}
		if attempt >= m.cfg.RetryLimit {
			if m.log != nil {
				m.log.Error("task abandoned after retries",
					logger.String("kind", t.Kind),
					logger.Int("attempts", attempt+1),
					logger.Error(err))
			}
			if m.onDrop != nil {
				m.onDrop(t.Kind)
			}
			return
		}
		if m.onRetry != nil {
			m.onRetry(t.Kind)
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
		if backoff *= 2; backoff > m.cfg.BackoffMax {
			backoff = m.cfg.BackoffMax
		}
	}
}
