package usecase

import (
	"testing"
	"time"

	"github.com/rishigupta87/open-ta/internal/domain/models"
)

func sig(underlying string, it models.InstrumentType, oiChange, currentOI int64, iv float64) *models.Signal {
	return &models.Signal{
		Token:          underlying + "-" + string(it),
		Timestamp:      t0,
		Underlying:     underlying,
		InstrumentType: it,
		OIChange:       oiChange,
		CurrentOI:      currentOI,
		IV:             iv,
		Type:           models.SignalNeutral,
	}
}

func TestFoldGroupsByUnderlying(t *testing.T) {
	a := NewAnalyticsAggregator(25.0)
	now := t0.Add(5 * time.Minute)

	recs := a.Fold(now, []*models.Signal{
		sig("NIFTY", models.InstrumentCall, 3000, 13000, 19),
		sig("NIFTY", models.InstrumentPut, 1000, 8000, 22),
		sig("CRUDEOIL", models.InstrumentCall, 500, 4000, 30),
	})
	if len(recs) != 2 {
		t.Fatalf("expected 2 underlyings, got %d", len(recs))
	}
	// sorted by underlying
	if recs[0].Underlying != "CRUDEOIL" || recs[1].Underlying != "NIFTY" {
		t.Fatalf("unexpected order: %s, %s", recs[0].Underlying, recs[1].Underlying)
	}

	nifty := recs[1]
	if nifty.CallOIChange != 3000 || nifty.PutOIChange != 1000 {
		t.Errorf("call/put oi change = %d/%d", nifty.CallOIChange, nifty.PutOIChange)
	}
	if nifty.MaxCallOIChange != 3000 || nifty.MaxPutOIChange != 1000 {
		t.Errorf("max call/put = %d/%d", nifty.MaxCallOIChange, nifty.MaxPutOIChange)
	}
	if nifty.AvgIV != 20.5 || nifty.MaxIV != 22 {
		t.Errorf("avg/max iv = %v/%v", nifty.AvgIV, nifty.MaxIV)
	}
	if nifty.PCROI == nil || *nifty.PCROI != 8000.0/13000.0 {
		t.Errorf("pcr = %v", nifty.PCROI)
	}
	if !nifty.Timestamp.Equal(now) {
		t.Errorf("timestamp not window time")
	}
}

func TestFoldPCRNullWhenNoCallOI(t *testing.T) {
	a := NewAnalyticsAggregator(25.0)
	recs := a.Fold(t0, []*models.Signal{
		sig("NIFTY", models.InstrumentPut, 1000, 8000, 22),
	})
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	if recs[0].PCROI != nil {
		t.Errorf("pcr should be the null sentinel when call OI sum is zero, got %v", *recs[0].PCROI)
	}
}

func TestFoldSentiment(t *testing.T) {
	a := NewAnalyticsAggregator(25.0)
	cases := []struct {
		name      string
		signals   []*models.Signal
		wantScore float64
		wantSent  models.SignalType
	}{
		{
			"all call buildup",
			[]*models.Signal{sig("X", models.InstrumentCall, 3000, 13000, 19)},
			1.0, models.SignalBullish,
		},
		{
			"all put buildup",
			[]*models.Signal{sig("X", models.InstrumentPut, 3000, 13000, 19)},
			-1.0, models.SignalBearish,
		},
		{
			"balanced",
			[]*models.Signal{
				sig("X", models.InstrumentCall, 1000, 5000, 19),
				sig("X", models.InstrumentPut, 1000, 5000, 19),
			},
			0.0, models.SignalNeutral,
		},
		{
			"zero denominator",
			[]*models.Signal{sig("X", models.InstrumentFuture, 3000, 13000, 19)},
			0.0, models.SignalNeutral,
		},
	}
	for _, tc := range cases {
		recs := a.Fold(t0, tc.signals)
		if len(recs) != 1 {
			t.Fatalf("%s: expected 1 record", tc.name)
		}
		if recs[0].SentimentScore != tc.wantScore {
			t.Errorf("%s: score = %v, want %v", tc.name, recs[0].SentimentScore, tc.wantScore)
		}
		if recs[0].MarketSentiment != tc.wantSent {
			t.Errorf("%s: sentiment = %s, want %s", tc.name, recs[0].MarketSentiment, tc.wantSent)
		}
	}
}

func TestFoldHighIVCount(t *testing.T) {
	a := NewAnalyticsAggregator(25.0)
	recs := a.Fold(t0, []*models.Signal{
		sig("X", models.InstrumentCall, 100, 1000, 24.9),
		sig("X", models.InstrumentCall, 100, 1000, 25.0),
		sig("X", models.InstrumentPut, 100, 1000, 40.0),
	})
	if recs[0].HighIVCount != 2 {
		t.Errorf("high_iv_count = %d, want 2", recs[0].HighIVCount)
	}
}

func TestFoldNegativeChangesDoNotCountTowardSums(t *testing.T) {
	a := NewAnalyticsAggregator(25.0)
	recs := a.Fold(t0, []*models.Signal{
		sig("X", models.InstrumentCall, -2000, 8000, 19),
		sig("X", models.InstrumentCall, 500, 4000, 19),
	})
	if recs[0].CallOIChange != 500 || recs[0].MaxCallOIChange != 500 {
		t.Errorf("only positive changes count: got sum=%d max=%d",
			recs[0].CallOIChange, recs[0].MaxCallOIChange)
	}
}
