// Package calendar implements trading-day and exchange-hours logic for the
// signal engine. All functions are pure given the supplied instant; the
// package never reads a wall clock.
package calendar

import (
	"fmt"
	"sort"
	"time"
)

// Hours is one exchange's daily session, both bounds inclusive.
type Hours struct {
	Open  TimeOfDay
	Close TimeOfDay
}

// TimeOfDay is a clock time within a trading day.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	var t TimeOfDay
	if _, err := fmt.Sscanf(s, "%d:%d", &t.Hour, &t.Minute); err != nil {
		return TimeOfDay{}, fmt.Errorf("parse time of day %q: %w", s, err)
	}
	if t.Hour < 0 || t.Hour > 23 || t.Minute < 0 || t.Minute > 59 {
		return TimeOfDay{}, fmt.Errorf("time of day %q out of range", s)
	}
	return t, nil
}

func (t TimeOfDay) minutes() int { return t.Hour*60 + t.Minute }

// Calendar holds per-exchange session hours in a single location.
type Calendar struct {
	loc   *time.Location
	hours map[string]Hours
}

// New creates a calendar. All instants are interpreted in loc.
func New(loc *time.Location, hours map[string]Hours) *Calendar {
	h := make(map[string]Hours, len(hours))
	for ex, v := range hours {
		h[ex] = v
	}
	return &Calendar{loc: loc, hours: h}
}

// Exchanges returns the configured exchange codes, sorted.
func (c *Calendar) Exchanges() []string {
	out := make([]string, 0, len(c.hours))
	for ex := range c.hours {
		out = append(out, ex)
	}
	sort.Strings(out)
	return out
}

// IsTradingDay reports whether the instant falls on a weekday. Weekends are
// never trading days regardless of configured hours.
func (c *Calendar) IsTradingDay(at time.Time) bool {
	wd := at.In(c.loc).Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// IsExchangeOpen reports whether the exchange session covers the instant.
func (c *Calendar) IsExchangeOpen(exchange string, at time.Time) bool {
	if !c.IsTradingDay(at) {
		return false
	}
	h, ok := c.hours[exchange]
	if !ok {
		return false
	}
	local := at.In(c.loc)
	m := local.Hour()*60 + local.Minute()
	return m >= h.Open.minutes() && m <= h.Close.minutes()
}

// AnyOpen reports whether any configured exchange is open at the instant.
func (c *Calendar) AnyOpen(at time.Time) bool {
	return len(c.ActiveExchanges(at)) > 0
}

// ActiveExchanges returns the exchanges open at the instant, sorted.
func (c *Calendar) ActiveExchanges(at time.Time) []string {
	var active []string
	for _, ex := range c.Exchanges() {
		if c.IsExchangeOpen(ex, at) {
			active = append(active, ex)
		}
	}
	return active
}

// nextDay is a table-driven weekday successor: the next trading weekday and
// how many calendar days away it is.
var nextDay = map[time.Weekday]struct {
	day  time.Weekday
	days int
}{
	time.Monday:    {time.Tuesday, 1},
	time.Tuesday:   {time.Wednesday, 1},
	time.Wednesday: {time.Thursday, 1},
	time.Thursday:  {time.Friday, 1},
	time.Friday:    {time.Monday, 3},
	time.Saturday:  {time.Monday, 2},
	time.Sunday:    {time.Monday, 1},
}

// NextTradingDay returns the next trading weekday after the instant's date
// and the number of days until it.
func (c *Calendar) NextTradingDay(at time.Time) (time.Weekday, int) {
	n := nextDay[at.In(c.loc).Weekday()]
	return n.day, n.days
}

// Status is the detailed market status for an instant.
type Status struct {
	CurrentTime          string   `json:"current_time"`
	CurrentDay           string   `json:"current_day"`
	IsTradingDay         bool     `json:"is_trading_day"`
	IsAnyMarketOpen      bool     `json:"is_any_market_open"`
	ActiveExchanges      []string `json:"active_exchanges"`
	StatusReason         string   `json:"status_reason"`
	NextTradingDay       string   `json:"next_trading_day"`
	DaysUntilNextTrading int      `json:"days_until_next_trading"`
}

// DetailedStatus computes the full market status at the instant. The status
// reason is deterministic, never caller-supplied text.
func (c *Calendar) DetailedStatus(at time.Time) Status {
	local := at.In(c.loc)
	active := c.ActiveExchanges(at)
	trading := c.IsTradingDay(at)

	var reason string
	switch {
	case !trading:
		reason = fmt.Sprintf("Weekend - Markets closed on %s", local.Weekday())
	case len(active) == 0:
		reason = "Outside trading hours"
	default:
		reason = fmt.Sprintf("%d exchange(s) active", len(active))
	}

	next, days := c.NextTradingDay(at)
	if trading {
		days = 0
	}

	return Status{
		CurrentTime:          local.Format("2006-01-02 15:04:05 MST"),
		CurrentDay:           local.Weekday().String(),
		IsTradingDay:         trading,
		IsAnyMarketOpen:      len(active) > 0,
		ActiveExchanges:      active,
		StatusReason:         reason,
		NextTradingDay:       next.String(),
		DaysUntilNextTrading: days,
	}
}
