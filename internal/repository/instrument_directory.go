package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/rishigupta87/open-ta/internal/domain/models"
	pkgch "github.com/rishigupta87/open-ta/pkg/clickhouse"
	applogger "github.com/rishigupta87/open-ta/pkg/logger"
)

// InstrumentSchema creates the reference-data table populated by an external
// contract sync job.
var InstrumentSchema = []string{
	"CREATE DATABASE IF NOT EXISTS openta",
	`CREATE TABLE IF NOT EXISTS openta.instruments (
		token String,
		symbol String,
		underlying LowCardinality(String),
		exchange LowCardinality(String),
		instrument_type LowCardinality(String),
		strike_price Nullable(Float64),
		expiry String,
		lot_size Int32
	) ENGINE=ReplacingMergeTree ORDER BY token`,
}

// CHInstrumentDirectory serves instrument lookups from an in-memory snapshot
// preloaded out of ClickHouse. Lookups are lock-cheap; Reload swaps the
// whole snapshot.
type CHInstrumentDirectory struct {
	db *sql.DB
	l  *applogger.Logger

	mu           sync.RWMutex
	byToken      map[string]models.Instrument
	byUnderlying map[string][]models.Instrument
}

// NewCHInstrumentDirectory creates an empty directory; call Reload before use.
func NewCHInstrumentDirectory(ch *pkgch.Client) *CHInstrumentDirectory {
	return &CHInstrumentDirectory{
		db:           ch.DB(),
		byToken:      make(map[string]models.Instrument),
		byUnderlying: make(map[string][]models.Instrument),
	}
}

// SetLogger injects a structured logger.
func (d *CHInstrumentDirectory) SetLogger(l *applogger.Logger) { d.l = l }

// Reload replaces the in-memory snapshot from ClickHouse.
func (d *CHInstrumentDirectory) Reload(ctx context.Context) error {
	start := time.Now()
	const q = `SELECT token, symbol, underlying, exchange, instrument_type,
			strike_price, expiry, lot_size
		FROM openta.instruments FINAL`

	rows, err := d.db.QueryContext(ctx, q)
	if err != nil {
		return fmt.Errorf("load instruments: %w", err)
	}
	defer rows.Close()

	byToken := make(map[string]models.Instrument, 1024)
	byUnderlying := make(map[string][]models.Instrument)
	for rows.Next() {
		var inst models.Instrument
		var itype string
		if err := rows.Scan(
			&inst.Token, &inst.Symbol, &inst.Underlying, &inst.Exchange,
			&itype, &inst.StrikePrice, &inst.Expiry, &inst.LotSize,
		); err != nil {
			return fmt.Errorf("scan instrument: %w", err)
		}
		inst.InstrumentType = models.InstrumentType(itype)
		byToken[inst.Token] = inst
		byUnderlying[inst.Underlying] = append(byUnderlying[inst.Underlying], inst)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("rows: %w", err)
	}

	d.mu.Lock()
	d.byToken = byToken
	d.byUnderlying = byUnderlying
	d.mu.Unlock()

	if d.l != nil {
		d.l.Info("instrument directory loaded",
			applogger.Int("instruments", len(byToken)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return nil
}

// Lookup returns the instrument for a token.
func (d *CHInstrumentDirectory) Lookup(token string) (models.Instrument, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	inst, ok := d.byToken[token]
	return inst, ok
}

// ListUnderlying returns all instruments for one underlying.
func (d *CHInstrumentDirectory) ListUnderlying(underlying string) []models.Instrument {
	d.mu.RLock()
	defer d.mu.RUnlock()
	src := d.byUnderlying[underlying]
	out := make([]models.Instrument, len(src))
	copy(out, src)
	return out
}

// StaticDirectory is an immutable in-memory directory, used in tests and for
// file-driven local runs.
type StaticDirectory struct {
	byToken      map[string]models.Instrument
	byUnderlying map[string][]models.Instrument
}

// NewStaticDirectory builds a directory from a fixed instrument list.
func NewStaticDirectory(instruments []models.Instrument) *StaticDirectory {
	d := &StaticDirectory{
		byToken:      make(map[string]models.Instrument, len(instruments)),
		byUnderlying: make(map[string][]models.Instrument),
	}
	for _, inst := range instruments {
		d.byToken[inst.Token] = inst
		d.byUnderlying[inst.Underlying] = append(d.byUnderlying[inst.Underlying], inst)
	}
	return d
}

func (d *StaticDirectory) Lookup(token string) (models.Instrument, bool) {
	inst, ok := d.byToken[token]
	return inst, ok
}

func (d *StaticDirectory) ListUnderlying(underlying string) []models.Instrument {
	return d.byUnderlying[underlying]
}
