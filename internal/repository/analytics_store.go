package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rishigupta87/open-ta/internal/domain/models"
	pkgch "github.com/rishigupta87/open-ta/pkg/clickhouse"
	applogger "github.com/rishigupta87/open-ta/pkg/logger"
)

// AnalyticsSchema creates the per-underlying analytics table, deduplicated
// on (underlying, timestamp).
var AnalyticsSchema = []string{
	"CREATE DATABASE IF NOT EXISTS openta",
	`CREATE TABLE IF NOT EXISTS openta.underlying_analytics (
		underlying LowCardinality(String),
		timestamp DateTime64(3),
		call_oi_change Int64,
		put_oi_change Int64,
		max_call_oi_change Int64,
		max_put_oi_change Int64,
		avg_iv Float64,
		max_iv Float64,
		high_iv_count Int32,
		pcr_oi Nullable(Float64),
		sentiment_score Float64,
		market_sentiment LowCardinality(String)
	) ENGINE=ReplacingMergeTree ORDER BY (underlying, timestamp)`,
}

// ClickHouseAnalyticsStore implements AnalyticsSink backed by ClickHouse.
type ClickHouseAnalyticsStore struct {
	client *pkgch.Client
	db     *sql.DB
	l      *applogger.Logger
}

// NewClickHouseAnalyticsStore creates the store over an existing client.
func NewClickHouseAnalyticsStore(ch *pkgch.Client) *ClickHouseAnalyticsStore {
	return &ClickHouseAnalyticsStore{client: ch, db: ch.DB()}
}

// SetLogger injects a structured logger.
func (s *ClickHouseAnalyticsStore) SetLogger(l *applogger.Logger) { s.l = l }

// Ensure creates the database and analytics table if absent.
func (s *ClickHouseAnalyticsStore) Ensure(ctx context.Context) error {
	if err := s.client.InitSchema(ctx, AnalyticsSchema); err != nil {
		return fmt.Errorf("ensure analytics schema: %w", err)
	}
	return nil
}

// Append writes one window summary. Idempotent on (underlying, timestamp).
func (s *ClickHouseAnalyticsStore) Append(ctx context.Context, a *models.UnderlyingAnalytics) error {
	const q = `INSERT INTO openta.underlying_analytics
		(underlying, timestamp, call_oi_change, put_oi_change, max_call_oi_change,
		 max_put_oi_change, avg_iv, max_iv, high_iv_count, pcr_oi,
		 sentiment_score, market_sentiment)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, q,
		a.Underlying,
		a.Timestamp,
		a.CallOIChange,
		a.PutOIChange,
		a.MaxCallOIChange,
		a.MaxPutOIChange,
		a.AvgIV,
		a.MaxIV,
		a.HighIVCount,
		a.PCROI,
		a.SentimentScore,
		string(a.MarketSentiment),
	)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse analytics insert error",
				applogger.String("underlying", a.Underlying),
				applogger.Error(err),
			)
		}
		return fmt.Errorf("insert analytics: %w", err)
	}
	return nil
}

// QueryRange returns window summaries for one underlying, newest first.
func (s *ClickHouseAnalyticsStore) QueryRange(ctx context.Context, underlying string, from, to time.Time, limit int) ([]*models.UnderlyingAnalytics, error) {
	start := time.Now()
	const q = `SELECT underlying, timestamp, call_oi_change, put_oi_change,
			max_call_oi_change, max_put_oi_change, avg_iv, max_iv, high_iv_count,
			pcr_oi, sentiment_score, market_sentiment
		FROM openta.underlying_analytics FINAL
		WHERE underlying = ? AND timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp DESC
		LIMIT ?`

	rows, err := s.db.QueryContext(ctx, q, underlying, from, to, limit)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse analytics query error",
				applogger.String("underlying", underlying),
				applogger.Error(err),
			)
		}
		return nil, fmt.Errorf("query analytics: %w", err)
	}
	defer rows.Close()

	out := make([]*models.UnderlyingAnalytics, 0, limit)
	for rows.Next() {
		var a models.UnderlyingAnalytics
		var sentiment string
		if err := rows.Scan(
			&a.Underlying, &a.Timestamp, &a.CallOIChange, &a.PutOIChange,
			&a.MaxCallOIChange, &a.MaxPutOIChange, &a.AvgIV, &a.MaxIV,
			&a.HighIVCount, &a.PCROI, &a.SentimentScore, &sentiment,
		); err != nil {
			return nil, fmt.Errorf("scan analytics: %w", err)
		}
		a.MarketSentiment = models.SignalType(sentiment)
		out = append(out, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	if s.l != nil {
		s.l.Debug("clickhouse analytics query ok",
			applogger.String("underlying", underlying),
			applogger.Int("rows", len(out)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return out, nil
}

// Close is a no-op; the connection pool is managed by pkg/clickhouse.
func (s *ClickHouseAnalyticsStore) Close() error { return nil }
