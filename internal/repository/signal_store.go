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

// SignalSchema creates the signal table. ReplacingMergeTree keyed on
// (token, timestamp) makes retried appends idempotent.
var SignalSchema = []string{
	"CREATE DATABASE IF NOT EXISTS openta",
	`CREATE TABLE IF NOT EXISTS openta.oi_signals (
		token String,
		timestamp DateTime64(3),
		symbol String,
		underlying LowCardinality(String),
		exchange LowCardinality(String),
		instrument_type LowCardinality(String),
		option_type LowCardinality(String),
		strike_price Nullable(Float64),
		current_oi Int64,
		previous_oi Int64,
		oi_change Int64,
		oi_change_percent Nullable(Float64),
		iv Float64,
		price Float64,
		signal_strength LowCardinality(String),
		signal_type LowCardinality(String),
		analysis_window_seconds Int32
	) ENGINE=ReplacingMergeTree ORDER BY (token, timestamp)`,
}

// ClickHouseSignalStore implements SignalSink backed by ClickHouse.
type ClickHouseSignalStore struct {
	client *pkgch.Client
	db     *sql.DB
	l      *applogger.Logger
}

// NewClickHouseSignalStore creates the store over an existing client.
func NewClickHouseSignalStore(ch *pkgch.Client) *ClickHouseSignalStore {
	return &ClickHouseSignalStore{client: ch, db: ch.DB()}
}

// SetLogger injects a structured logger.
func (s *ClickHouseSignalStore) SetLogger(l *applogger.Logger) { s.l = l }

// Ensure creates the database and signal table if absent.
func (s *ClickHouseSignalStore) Ensure(ctx context.Context) error {
	if err := s.client.InitSchema(ctx, SignalSchema); err != nil {
		return fmt.Errorf("ensure signal schema: %w", err)
	}
	return nil
}

// Append writes one signal. Safe to retry: the table deduplicates on
// (token, timestamp).
func (s *ClickHouseSignalStore) Append(ctx context.Context, sig *models.Signal) error {
	start := time.Now()
	const q = `INSERT INTO openta.oi_signals
		(token, timestamp, symbol, underlying, exchange, instrument_type, option_type,
		 strike_price, current_oi, previous_oi, oi_change, oi_change_percent,
		 iv, price, signal_strength, signal_type, analysis_window_seconds)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, q,
		sig.Token,
		sig.Timestamp,
		sig.Symbol,
		sig.Underlying,
		sig.Exchange,
		string(sig.InstrumentType),
		sig.OptionType,
		sig.StrikePrice,
		sig.CurrentOI,
		sig.PreviousOI,
		sig.OIChange,
		sig.OIChangePercent,
		sig.IV,
		sig.Price,
		string(sig.Strength),
		string(sig.Type),
		sig.AnalysisWindowSeconds,
	)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse signal insert error",
				applogger.String("token", sig.Token),
				applogger.Error(err),
			)
		}
		return fmt.Errorf("insert signal: %w", err)
	}
	if s.l != nil {
		s.l.Debug("clickhouse signal insert ok",
			applogger.String("token", sig.Token),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return nil
}

// Close is a no-op; the connection pool is managed by pkg/clickhouse.
func (s *ClickHouseSignalStore) Close() error { return nil }
