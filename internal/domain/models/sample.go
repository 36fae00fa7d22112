package models

import "time"

// Sample is one open-interest/implied-volatility tick for a token.
// Samples are never persisted raw; only derived state survives a window.
type Sample struct {
	Token     string    `json:"token"`
	Timestamp time.Time `json:"timestamp"`
	OI        int64     `json:"oi"`
	IV        float64   `json:"iv"`
	Price     float64   `json:"price"`
}
