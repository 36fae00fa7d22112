package usecase

import (
	"sort"
	"time"

	"github.com/rishigupta87/open-ta/internal/domain/models"
)

// AnalyticsAggregator folds one window's accepted signals into one summary
// per underlying. It keeps no cross-window state.
type AnalyticsAggregator struct {
	highIVThreshold float64
}

func NewAnalyticsAggregator(highIVThreshold float64) *AnalyticsAggregator {
	return &AnalyticsAggregator{highIVThreshold: highIVThreshold}
}

// Fold groups signals by underlying and derives each group's analytics.
// Results are ordered by underlying for deterministic emission.
func (a *AnalyticsAggregator) Fold(now time.Time, signals []*models.Signal) []*models.UnderlyingAnalytics {
	groups := make(map[string][]*models.Signal)
	for _, s := range signals {
		groups[s.Underlying] = append(groups[s.Underlying], s)
	}

	names := make([]string, 0, len(groups))
	for u := range groups {
		names = append(names, u)
	}
	sort.Strings(names)

	out := make([]*models.UnderlyingAnalytics, 0, len(names))
	for _, u := range names {
		out = append(out, a.fold(now, u, groups[u]))
	}
	return out
}

func (a *AnalyticsAggregator) fold(now time.Time, underlying string, group []*models.Signal) *models.UnderlyingAnalytics {
	rec := &models.UnderlyingAnalytics{
		Underlying: underlying,
		Timestamp:  now,
	}

	var (
		sumIV     float64
		callOISum int64
		putOISum  int64
	)
	for _, s := range group {
		switch s.InstrumentType {
		case models.InstrumentCall:
			callOISum += s.CurrentOI
			if s.OIChange > 0 {
				rec.CallOIChange += s.OIChange
				if s.OIChange > rec.MaxCallOIChange {
					rec.MaxCallOIChange = s.OIChange
				}
			}
		case models.InstrumentPut:
			putOISum += s.CurrentOI
			if s.OIChange > 0 {
				rec.PutOIChange += s.OIChange
				if s.OIChange > rec.MaxPutOIChange {
					rec.MaxPutOIChange = s.OIChange
				}
			}
		}
		sumIV += s.IV
		if s.IV > rec.MaxIV {
			rec.MaxIV = s.IV
		}
		if s.IV >= a.highIVThreshold {
			rec.HighIVCount++
		}
	}

	if len(group) > 0 {
		rec.AvgIV = sumIV / float64(len(group))
	}
	if callOISum != 0 {
		pcr := float64(putOISum) / float64(callOISum)
		rec.PCROI = &pcr
	}

	rec.SentimentScore = sentimentScore(rec.CallOIChange, rec.PutOIChange)
	rec.MarketSentiment = marketSentiment(rec.SentimentScore)
	return rec
}

// sentimentScore is (call-put)/(call+put) clamped to [-1, 1], zero when the
// denominator is zero.
func sentimentScore(callChange, putChange int64) float64 {
	den := callChange + putChange
	if den == 0 {
		return 0
	}
	score := float64(callChange-putChange) / float64(den)
	if score > 1 {
		return 1
	}
	if score < -1 {
		return -1
	}
	return score
}

func marketSentiment(score float64) models.SignalType {
	switch {
	case score > 0.2:
		return models.SignalBullish
	case score < -0.2:
		return models.SignalBearish
	default:
		return models.SignalNeutral
	}
}
