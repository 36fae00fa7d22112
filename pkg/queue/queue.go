// Package queue provides a bounded in-memory retry queue for asynchronous
// sink writes. Producers never block: when the queue is full the task is
// dropped and counted, keeping the flush path free of sink latency.
package queue

import (
	"context"
	"time"
)

// Config tunes the queue.
type Config struct {
	Workers    int           // worker goroutines
	QueueSize  int           // bounded buffer capacity
	RetryLimit int           // attempts after the first failure
	BackoffMin time.Duration // first retry delay
	BackoffMax time.Duration // backoff cap
}

// Task is one unit of async work. Run is retried with bounded exponential
// backoff until it succeeds or the retry limit is exhausted.
type Task struct {
	Kind string
	Run  func(ctx context.Context) error
}
