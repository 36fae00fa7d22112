package util

import (
	"strconv"
	"testing"
	"time"
)

func TestParseTimeRFC3339(t *testing.T) {
	s := "2025-07-07T10:10:10Z"
	got, ok := ParseTime(s)
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.UTC().Format(time.RFC3339) != s {
		t.Fatalf("unexpected time %v", got)
	}
}

func TestParseTimeUnix(t *testing.T) {
	ts := time.Date(2025, 7, 7, 10, 10, 10, 0, time.UTC).Unix()
	got, ok := ParseTime(strconv.FormatInt(ts, 10))
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.Unix() != ts {
		t.Fatalf("unexpected unix %v", got.Unix())
	}
}

func TestParseTimeDefault(t *testing.T) {
	def := time.Date(2025, 7, 7, 10, 10, 10, 0, time.UTC)
	got := ParseTimeDefault("", def)
	if !got.Equal(def) {
		t.Fatalf("expected default")
	}
}

func TestAlignWindow(t *testing.T) {
	from := time.Date(2025, 7, 7, 10, 2, 17, 0, time.UTC)
	to := time.Date(2025, 7, 7, 11, 8, 43, 0, time.UTC)
	af, at := AlignWindow(from, to, 5*time.Minute)
	if af.Minute() != 0 || af.Second() != 0 {
		t.Fatalf("from not rounded down: %v", af)
	}
	if at.Minute() != 10 || at.Second() != 0 {
		t.Fatalf("to not rounded up: %v", at)
	}
}

func TestAlignWindowKeepsBoundary(t *testing.T) {
	from := time.Date(2025, 7, 7, 10, 0, 0, 0, time.UTC)
	to := time.Date(2025, 7, 7, 11, 5, 0, 0, time.UTC)
	af, at := AlignWindow(from, to, 5*time.Minute)
	if !af.Equal(from) || !at.Equal(to) {
		t.Fatalf("aligned range moved off exact boundaries: %v %v", af, at)
	}
}
