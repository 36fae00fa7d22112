package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rishigupta87/open-ta/internal/domain/models"
	"github.com/rishigupta87/open-ta/pkg/cache"
)

const recentSignalsKey = "signals:recent"

// CachedSignalPublisher implements SignalCache over a cache.Service. Each
// signal is stored per token with the window TTL and prepended to a capped
// recent list.
type CachedSignalPublisher struct {
	cache     cache.Service
	ttl       time.Duration
	maxRecent int64
}

// NewCachedSignalPublisher creates the cache publisher. ttl should match the
// analysis window so stale signals expire with the next flush.
func NewCachedSignalPublisher(c cache.Service, ttl time.Duration, maxRecent int) *CachedSignalPublisher {
	if maxRecent <= 0 {
		maxRecent = 100
	}
	return &CachedSignalPublisher{cache: c, ttl: ttl, maxRecent: int64(maxRecent)}
}

// Publish stores the signal under its token and on the recent list.
func (p *CachedSignalPublisher) Publish(ctx context.Context, s *models.Signal) error {
	key := fmt.Sprintf("signal:%s", s.Token)
	if err := p.cache.Set(ctx, key, s, p.ttl); err != nil {
		return fmt.Errorf("cache signal %s: %w", s.Token, err)
	}
	if err := p.cache.PushCapped(ctx, recentSignalsKey, s, p.maxRecent); err != nil {
		return fmt.Errorf("cache recent signals: %w", err)
	}
	return nil
}

// Recent returns up to limit signals, newest first.
func (p *CachedSignalPublisher) Recent(ctx context.Context, limit int) ([]*models.Signal, error) {
	if limit <= 0 || int64(limit) > p.maxRecent {
		limit = int(p.maxRecent)
	}
	raw, err := p.cache.Range(ctx, recentSignalsKey, 0, int64(limit)-1)
	if err != nil {
		return nil, fmt.Errorf("read recent signals: %w", err)
	}

	out := make([]*models.Signal, 0, len(raw))
	for _, entry := range raw {
		var s models.Signal
		if err := json.Unmarshal([]byte(entry), &s); err != nil {
			continue // skip malformed entries
		}
		out = append(out, &s)
	}
	return out, nil
}
