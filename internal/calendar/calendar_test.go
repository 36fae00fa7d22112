package calendar

import (
	"testing"
	"time"
)

var ist = time.FixedZone("IST", 5*3600+30*60)

func testCalendar() *Calendar {
	return New(ist, map[string]Hours{
		"MCX": {Open: TimeOfDay{9, 0}, Close: TimeOfDay{23, 30}},
		"NSE": {Open: TimeOfDay{9, 20}, Close: TimeOfDay{15, 30}},
		"NFO": {Open: TimeOfDay{9, 20}, Close: TimeOfDay{15, 30}},
	})
}

// 2025-07-07 is a Monday.
func istTime(day, hour, min int) time.Time {
	return time.Date(2025, 7, day, hour, min, 0, 0, ist)
}

func TestIsTradingDay(t *testing.T) {
	c := testCalendar()
	cases := []struct {
		day  int
		want bool
	}{
		{7, true},   // Monday
		{8, true},   // Tuesday
		{9, true},   // Wednesday
		{10, true},  // Thursday
		{11, true},  // Friday
		{12, false}, // Saturday
		{13, false}, // Sunday
	}
	for _, tc := range cases {
		// independent of time of day
		for _, hour := range []int{0, 12, 23} {
			if got := c.IsTradingDay(istTime(tc.day, hour, 0)); got != tc.want {
				t.Errorf("IsTradingDay(day=%d hour=%d) = %v, want %v", tc.day, hour, got, tc.want)
			}
		}
	}
}

func TestNextTradingDay(t *testing.T) {
	c := testCalendar()
	cases := []struct {
		day      int
		wantDay  time.Weekday
		wantDays int
	}{
		{7, time.Tuesday, 1},
		{8, time.Wednesday, 1},
		{9, time.Thursday, 1},
		{10, time.Friday, 1},
		{11, time.Monday, 3},
		{12, time.Monday, 2},
		{13, time.Monday, 1},
	}
	for _, tc := range cases {
		day, days := c.NextTradingDay(istTime(tc.day, 10, 0))
		if day != tc.wantDay || days != tc.wantDays {
			t.Errorf("NextTradingDay(day=%d) = (%v, %d), want (%v, %d)",
				tc.day, day, days, tc.wantDay, tc.wantDays)
		}
	}
}

func TestIsExchangeOpen(t *testing.T) {
	c := testCalendar()
	cases := []struct {
		name     string
		exchange string
		at       time.Time
		want     bool
	}{
		{"mcx open bound", "MCX", istTime(7, 9, 0), true},
		{"mcx close bound", "MCX", istTime(7, 23, 30), true},
		{"mcx before open", "MCX", istTime(7, 8, 59), false},
		{"mcx after close", "MCX", istTime(7, 23, 31), false},
		{"nse midday", "NSE", istTime(7, 12, 0), true},
		{"nse after close", "NSE", istTime(7, 16, 0), false},
		{"nfo before open", "NFO", istTime(7, 9, 19), false},
		{"weekend midday", "MCX", istTime(12, 12, 0), false},
		{"unknown exchange", "BSE", istTime(7, 12, 0), false},
	}
	for _, tc := range cases {
		if got := c.IsExchangeOpen(tc.exchange, tc.at); got != tc.want {
			t.Errorf("%s: IsExchangeOpen = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestAnyOpen(t *testing.T) {
	c := testCalendar()
	if !c.AnyOpen(istTime(7, 18, 0)) { // only MCX still open
		t.Errorf("expected MCX open at 18:00 Monday")
	}
	if c.AnyOpen(istTime(7, 3, 0)) {
		t.Errorf("expected nothing open at 03:00")
	}
	if c.AnyOpen(istTime(12, 12, 0)) {
		t.Errorf("expected nothing open on Saturday")
	}
}

func TestDetailedStatus(t *testing.T) {
	c := testCalendar()

	st := c.DetailedStatus(istTime(12, 12, 0)) // Saturday
	if st.IsTradingDay || st.IsAnyMarketOpen {
		t.Fatalf("Saturday should not be a trading day: %+v", st)
	}
	if st.StatusReason != "Weekend - Markets closed on Saturday" {
		t.Errorf("unexpected reason %q", st.StatusReason)
	}
	if st.NextTradingDay != "Monday" || st.DaysUntilNextTrading != 2 {
		t.Errorf("unexpected next trading day %s in %d days", st.NextTradingDay, st.DaysUntilNextTrading)
	}

	st = c.DetailedStatus(istTime(7, 3, 0)) // Monday pre-open
	if !st.IsTradingDay || st.IsAnyMarketOpen {
		t.Fatalf("Monday 03:00 should be a closed trading day: %+v", st)
	}
	if st.StatusReason != "Outside trading hours" {
		t.Errorf("unexpected reason %q", st.StatusReason)
	}
	if st.DaysUntilNextTrading != 0 {
		t.Errorf("trading day should report 0 days until next, got %d", st.DaysUntilNextTrading)
	}

	st = c.DetailedStatus(istTime(7, 12, 0)) // Monday midday, all three open
	if st.StatusReason != "3 exchange(s) active" {
		t.Errorf("unexpected reason %q", st.StatusReason)
	}
	if len(st.ActiveExchanges) != 3 {
		t.Errorf("expected 3 active exchanges, got %v", st.ActiveExchanges)
	}
}

func TestParseTimeOfDay(t *testing.T) {
	got, err := ParseTimeOfDay("09:20")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Hour != 9 || got.Minute != 20 {
		t.Errorf("unexpected parse %+v", got)
	}
	if _, err := ParseTimeOfDay("25:00"); err == nil {
		t.Errorf("expected error for out-of-range hour")
	}
}
