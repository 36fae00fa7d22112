package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func testQueue(t *testing.T, cfg Config, opts ...MemoryOption) *Memory {
	t.Helper()
	m := NewMemory(nil, cfg, opts...)
	m.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = m.Stop(ctx)
	})
	return m
}

func TestRetryThenSucceed(t *testing.T) {
	var retries atomic.Int32
	m := testQueue(t,
		Config{Workers: 1, QueueSize: 4, RetryLimit: 3, BackoffMin: time.Millisecond, BackoffMax: time.Millisecond},
		WithRetryHook(func(string) { retries.Add(1) }),
	)

	var attempts atomic.Int32
	done := make(chan struct{})
	err := m.Enqueue(Task{
		Kind: "flaky",
		Run: func(context.Context) error {
			if attempts.Add(1) < 3 {
				return errors.New("transient")
			}
			close(done)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task never succeeded")
	}
	if got := attempts.Load(); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
	if got := retries.Load(); got != 2 {
		t.Errorf("retries = %d, want 2", got)
	}
}

func TestDropAfterRetryLimit(t *testing.T) {
	dropped := make(chan string, 1)
	m := testQueue(t,
		Config{Workers: 1, QueueSize: 4, RetryLimit: 2, BackoffMin: time.Millisecond, BackoffMax: time.Millisecond},
		WithDropHook(func(kind string) { dropped <- kind }),
	)

	var attempts atomic.Int32
	if err := m.Enqueue(Task{
		Kind: "doomed",
		Run: func(context.Context) error {
			attempts.Add(1)
			return errors.New("permanent")
		},
	}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	select {
	case kind := <-dropped:
		if kind != "doomed" {
			t.Errorf("dropped kind = %q", kind)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("task never dropped")
	}
	// initial attempt plus RetryLimit retries
	if got := attempts.Load(); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

func TestEnqueueRejectsWhenFull(t *testing.T) {
	m := NewMemory(nil, Config{Workers: 1, QueueSize: 1, RetryLimit: 0})
	// Not started: nothing drains the channel.
	if err := m.Enqueue(Task{Kind: "a", Run: func(context.Context) error { return nil }}); err != nil {
		t.Fatalf("first enqueue: %v", err)
	}
	if err := m.Enqueue(Task{Kind: "b", Run: func(context.Context) error { return nil }}); err == nil {
		t.Fatal("expected full queue to reject")
	}
	if m.Depth() != 1 {
		t.Errorf("depth = %d, want 1", m.Depth())
	}
}

func TestEnqueueAfterStop(t *testing.T) {
	m := NewMemory(nil, Config{Workers: 1, QueueSize: 4})
	m.Start(context.Background())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := m.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := m.Enqueue(Task{Kind: "late", Run: func(context.Context) error { return nil }}); err == nil {
		t.Fatal("expected enqueue on closed queue to fail")
	}
}

// Enqueuers racing Stop must see an error, never a send on the closed channel.
func TestEnqueueDuringStopNeverPanics(t *testing.T) {
	for i := 0; i < 50; i++ {
		m := NewMemory(nil, Config{Workers: 2, QueueSize: 8})
		m.Start(context.Background())

		var wg sync.WaitGroup
		start := make(chan struct{})
		for g := 0; g < 4; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				for j := 0; j < 20; j++ {
					_ = m.Enqueue(Task{Kind: "racy", Run: func(context.Context) error { return nil }})
				}
			}()
		}

		close(start)
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		if err := m.Stop(ctx); err != nil {
			t.Fatalf("stop: %v", err)
		}
		cancel()
		wg.Wait()
	}
}
