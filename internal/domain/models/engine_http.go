package models

// AnalyticsRequest filters the per-underlying analytics query.
type AnalyticsRequest struct {
	Underlying string `param:"underlying" validate:"required"`
	From       string `query:"from"`
	To         string `query:"to"`
	Limit      int    `query:"limit" default:"100" validate:"gte=1,lte=1000"`
}

// RecentSignalsRequest bounds the recent-signals lookup.
type RecentSignalsRequest struct {
	Limit int `query:"limit" default:"20" validate:"gte=1,lte=100"`
}
