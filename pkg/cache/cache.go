package cache

import (
	"context"
	"errors"
	"time"
)

var ErrCacheMiss = errors.New("cache: key not found")

// Service defines cache operations. Values are JSON-encoded unless they are
// already strings.
type Service interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, keys ...string) (bool, error)
	Expire(ctx context.Context, key string, expiration time.Duration) (bool, error)

	// PushCapped prepends value to the list at key and trims the list to
	// max entries, newest first.
	PushCapped(ctx context.Context, key string, value interface{}, max int64) error
	// Range returns raw list entries in [start, stop], newest first.
	Range(ctx context.Context, key string, start, stop int64) ([]string, error)
}
