package models

import "time"

// SignalStrength grades how decisive an OI move is.
type SignalStrength string

const (
	StrengthStrong SignalStrength = "STRONG"
	StrengthMedium SignalStrength = "MEDIUM"
	StrengthWeak   SignalStrength = "WEAK"
)

// SignalType is the directional read of an OI move. The same set is used
// for per-underlying market sentiment.
type SignalType string

const (
	SignalBullish SignalType = "BULLISH"
	SignalBearish SignalType = "BEARISH"
	SignalNeutral SignalType = "NEUTRAL"
)

// Signal is one classified OI movement for one token in one analysis window.
// Created once per flush per qualifying token, immutable afterwards.
type Signal struct {
	Token          string         `json:"token"`
	Timestamp      time.Time      `json:"timestamp"`
	Symbol         string         `json:"symbol"`
	Underlying     string         `json:"underlying"`
	Exchange       string         `json:"exchange"`
	InstrumentType InstrumentType `json:"instrument_type"`
	OptionType     string         `json:"option_type"`
	StrikePrice    *float64       `json:"strike_price,omitempty"`
	CurrentOI      int64          `json:"current_oi"`
	PreviousOI     int64          `json:"previous_oi"`
	OIChange       int64          `json:"oi_change"`
	// OIChangePercent is nil when the window baseline OI was zero and the
	// percentage is therefore undefined.
	OIChangePercent       *float64       `json:"oi_change_percent,omitempty"`
	IV                    float64        `json:"iv"`
	Price                 float64        `json:"price"`
	Strength              SignalStrength `json:"signal_strength"`
	Type                  SignalType     `json:"signal_type"`
	AnalysisWindowSeconds int            `json:"analysis_window_seconds"`
}
