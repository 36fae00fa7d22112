package repository

import (
	"context"
	"testing"
	"time"

	"github.com/rishigupta87/open-ta/internal/domain/models"
	"github.com/rishigupta87/open-ta/pkg/cache"
)

func testSignal(token string, oiChange int64) *models.Signal {
	pct := 30.0
	return &models.Signal{
		Token:           token,
		Timestamp:       time.Date(2025, 7, 7, 10, 5, 0, 0, time.UTC),
		Symbol:          "NIFTY24JUL23500CE",
		Underlying:      "NIFTY",
		Exchange:        "NFO",
		InstrumentType:  models.InstrumentCall,
		OptionType:      "CE",
		CurrentOI:       13000,
		PreviousOI:      10000,
		OIChange:        oiChange,
		OIChangePercent: &pct,
		IV:              19,
		Price:           103,
		Strength:        models.StrengthStrong,
		Type:            models.SignalBullish,
	}
}

func TestPublishAndRecent(t *testing.T) {
	p := NewCachedSignalPublisher(cache.NewMemoryCache(), 5*time.Minute, 100)
	ctx := context.Background()

	for _, tok := range []string{"T1", "T2", "T3"} {
		if err := p.Publish(ctx, testSignal(tok, 3000)); err != nil {
			t.Fatalf("publish %s: %v", tok, err)
		}
	}

	got, err := p.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("recent returned %d signals, want 3", len(got))
	}
	// Newest first.
	if got[0].Token != "T3" || got[2].Token != "T1" {
		t.Errorf("unexpected order: %s %s %s", got[0].Token, got[1].Token, got[2].Token)
	}
	if got[0].OIChangePercent == nil || *got[0].OIChangePercent != 30.0 {
		t.Errorf("percent lost in round trip: %+v", got[0])
	}
}

func TestRecentCapped(t *testing.T) {
	p := NewCachedSignalPublisher(cache.NewMemoryCache(), 5*time.Minute, 2)
	ctx := context.Background()

	for _, tok := range []string{"T1", "T2", "T3"} {
		if err := p.Publish(ctx, testSignal(tok, 1500)); err != nil {
			t.Fatalf("publish %s: %v", tok, err)
		}
	}

	got, err := p.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("recent returned %d signals, want 2", len(got))
	}
	if got[0].Token != "T3" || got[1].Token != "T2" {
		t.Errorf("oldest entry not evicted: %s %s", got[0].Token, got[1].Token)
	}
}
