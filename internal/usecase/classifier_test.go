package usecase

import (
	"testing"
	"time"

	"github.com/rishigupta87/open-ta/internal/domain/models"
)

func delta(oiChange int64, baselineOI int64, iv, basePrice, lastPrice float64) Delta {
	d := Delta{
		Token:    "T1",
		Baseline: models.Sample{Token: "T1", Timestamp: t0, OI: baselineOI, IV: iv, Price: basePrice},
		Latest:   models.Sample{Token: "T1", Timestamp: t0.Add(5 * time.Minute), OI: baselineOI + oiChange, IV: iv, Price: lastPrice},
		OIChange: oiChange,
	}
	if baselineOI != 0 {
		pct := float64(oiChange) / float64(baselineOI) * 100
		d.OIChangePct = &pct
	}
	return d
}

func callInst() models.Instrument {
	strike := 23500.0
	return models.Instrument{
		Token: "T1", Symbol: "NIFTY24JUL23500CE", Underlying: "NIFTY",
		Exchange: "NFO", InstrumentType: models.InstrumentCall, StrikePrice: &strike,
	}
}

func putInst() models.Instrument {
	i := callInst()
	i.InstrumentType = models.InstrumentPut
	i.Symbol = "NIFTY24JUL23500PE"
	return i
}

func futInst() models.Instrument {
	return models.Instrument{
		Token: "T1", Symbol: "NIFTY24JULFUT", Underlying: "NIFTY",
		Exchange: "NFO", InstrumentType: models.InstrumentFuture,
	}
}

func TestClassifyLowIVFiltered(t *testing.T) {
	c := NewClassifier(DefaultThresholds())
	// huge move, but below the IV floor
	if s := c.Classify(delta(50000, 10000, 14.9, 100, 120), callInst()); s != nil {
		t.Fatalf("expected low-IV delta to be dropped, got %+v", s)
	}
}

func TestClassifyStrength(t *testing.T) {
	c := NewClassifier(DefaultThresholds())
	cases := []struct {
		name string
		d    Delta
		want models.SignalStrength
	}{
		{"strong", delta(1500, 6000, 20, 100, 101), models.StrengthStrong},              // 25%, |1500|>=1000
		{"medium pct", delta(120, 1000, 16, 100, 101), models.StrengthMedium},           // 12%
		{"weak pct", delta(50, 1000, 16, 100, 101), models.StrengthWeak},                // 5%
		{"strong pct small abs", delta(500, 2000, 20, 100, 101), models.StrengthMedium}, // 25% but |500|<1000
		{"undefined pct", delta(5000, 0, 20, 100, 101), models.StrengthWeak},
	}
	for _, tc := range cases {
		s := c.Classify(tc.d, callInst())
		if s == nil {
			t.Fatalf("%s: signal unexpectedly dropped", tc.name)
		}
		if s.Strength != tc.want {
			t.Errorf("%s: strength = %s, want %s", tc.name, s.Strength, tc.want)
		}
	}
}

func TestClassifyType(t *testing.T) {
	c := NewClassifier(DefaultThresholds())
	cases := []struct {
		name string
		d    Delta
		inst models.Instrument
		want models.SignalType
	}{
		{"call buying", delta(1500, 6000, 20, 100, 101), callInst(), models.SignalBullish},
		{"call selling", delta(-1500, 6000, 20, 100, 99), callInst(), models.SignalBearish},
		{"put buying", delta(1500, 6000, 20, 100, 99), putInst(), models.SignalBearish},
		{"put selling", delta(-1500, 6000, 20, 100, 101), putInst(), models.SignalBullish},
		{"long buildup", delta(1500, 6000, 20, 100, 103), futInst(), models.SignalBullish},
		{"short covering", delta(-1500, 6000, 20, 100, 101), futInst(), models.SignalBearish},
		{"future oi up price down", delta(1500, 6000, 20, 100, 98), futInst(), models.SignalNeutral},
		{"zero change", delta(0, 6000, 20, 100, 100), callInst(), models.SignalNeutral},
	}
	for _, tc := range cases {
		s := c.Classify(tc.d, tc.inst)
		if s == nil {
			t.Fatalf("%s: signal unexpectedly dropped", tc.name)
		}
		if s.Type != tc.want {
			t.Errorf("%s: type = %s, want %s", tc.name, s.Type, tc.want)
		}
	}
}

func TestClassifyPopulatesSignalFields(t *testing.T) {
	th := DefaultThresholds()
	c := NewClassifier(th)
	d := delta(3000, 10000, 19, 100, 103)
	s := c.Classify(d, callInst())
	if s == nil {
		t.Fatal("signal dropped")
	}
	if s.CurrentOI != 13000 || s.PreviousOI != 10000 || s.OIChange != 3000 {
		t.Errorf("oi fields wrong: %+v", s)
	}
	if s.OIChangePercent == nil || *s.OIChangePercent != 30.0 {
		t.Errorf("percent = %v, want 30", s.OIChangePercent)
	}
	if s.Strength != models.StrengthStrong || s.Type != models.SignalBullish {
		t.Errorf("classification wrong: %s/%s", s.Strength, s.Type)
	}
	if s.OptionType != "CE" || s.Underlying != "NIFTY" || s.Exchange != "NFO" {
		t.Errorf("instrument metadata wrong: %+v", s)
	}
	if s.AnalysisWindowSeconds != 300 {
		t.Errorf("analysis window = %d, want 300", s.AnalysisWindowSeconds)
	}
}
