package usecase

import (
	"math"
	"time"

	"github.com/rishigupta87/open-ta/internal/domain/models"
)

// Thresholds are the signal classification knobs, validated at config load.
type Thresholds struct {
	MinIV             float64
	StrongOIChangePct float64
	MediumOIChangePct float64
	MinOIAbsolute     int64
	HighIVThreshold   float64
	AnalysisWindow    time.Duration
}

// DefaultThresholds mirror the documented production defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinIV:             15.0,
		StrongOIChangePct: 20.0,
		MediumOIChangePct: 10.0,
		MinOIAbsolute:     1000,
		HighIVThreshold:   25.0,
		AnalysisWindow:    5 * time.Minute,
	}
}

// Classifier turns a window delta into a signal, or drops it.
type Classifier struct {
	th Thresholds
}

func NewClassifier(th Thresholds) *Classifier {
	return &Classifier{th: th}
}

// Classify applies the IV filter and the strength/type rules. It returns nil
// when the delta is filtered out (low IV); that is not an error.
func (c *Classifier) Classify(d Delta, inst models.Instrument) *models.Signal {
	if d.Latest.IV < c.th.MinIV {
		return nil
	}

	return &models.Signal{
		Token:                 d.Token,
		Timestamp:             d.Latest.Timestamp,
		Symbol:                inst.Symbol,
		Underlying:            inst.Underlying,
		Exchange:              inst.Exchange,
		InstrumentType:        inst.InstrumentType,
		OptionType:            inst.OptionType(),
		StrikePrice:           inst.StrikePrice,
		CurrentOI:             d.Latest.OI,
		PreviousOI:            d.Baseline.OI,
		OIChange:              d.OIChange,
		OIChangePercent:       d.OIChangePct,
		IV:                    d.Latest.IV,
		Price:                 d.Latest.Price,
		Strength:              c.strength(d),
		Type:                  signalType(d, inst),
		AnalysisWindowSeconds: int(c.th.AnalysisWindow / time.Second),
	}
}

// strength grades the move. An undefined percent change (zero baseline)
// fails both percentage thresholds, so such deltas grade WEAK at best.
func (c *Classifier) strength(d Delta) models.SignalStrength {
	pct := 0.0
	defined := d.OIChangePct != nil
	if defined {
		pct = math.Abs(*d.OIChangePct)
	}
	iv := d.Latest.IV

	switch {
	case defined && pct >= c.th.StrongOIChangePct && iv >= c.th.MinIV &&
		absInt64(d.OIChange) >= c.th.MinOIAbsolute:
		return models.StrengthStrong
	case defined && pct >= c.th.MediumOIChangePct && iv >= c.th.MinIV:
		return models.StrengthMedium
	default:
		return models.StrengthWeak
	}
}

// signalType maps (instrument type, OI direction, price direction) to a
// directional read. Ambiguous combinations default to NEUTRAL.
func signalType(d Delta, inst models.Instrument) models.SignalType {
	rising := d.Latest.Price > d.Baseline.Price

	switch inst.InstrumentType {
	case models.InstrumentCall:
		switch {
		case d.OIChange > 0: // call buying
			return models.SignalBullish
		case d.OIChange < 0: // call selling
			return models.SignalBearish
		}
	case models.InstrumentPut:
		switch {
		case d.OIChange > 0: // put buying
			return models.SignalBearish
		case d.OIChange < 0: // put selling
			return models.SignalBullish
		}
	case models.InstrumentFuture:
		switch {
		case d.OIChange > 0 && rising: // long buildup
			return models.SignalBullish
		case d.OIChange < 0: // short covering
			return models.SignalBearish
		}
	}
	return models.SignalNeutral
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
