package models

import "time"

// UnderlyingAnalytics summarizes one window's accepted signals for one
// underlying. Derived once per flush, immutable.
type UnderlyingAnalytics struct {
	Underlying      string    `json:"underlying"`
	Timestamp       time.Time `json:"timestamp"`
	CallOIChange    int64     `json:"call_oi_change"`
	PutOIChange     int64     `json:"put_oi_change"`
	MaxCallOIChange int64     `json:"max_call_oi_change"`
	MaxPutOIChange  int64     `json:"max_put_oi_change"`
	AvgIV           float64   `json:"avg_iv"`
	MaxIV           float64   `json:"max_iv"`
	HighIVCount     int       `json:"high_iv_count"`
	// PCROI is nil when the window's total call open interest is zero.
	PCROI           *float64   `json:"pcr_oi,omitempty"`
	SentimentScore  float64    `json:"sentiment_score"` // clamped to [-1, 1]
	MarketSentiment SignalType `json:"market_sentiment"`
}
