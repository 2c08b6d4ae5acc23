package util

import (
	"strconv"
	"testing"
	"time"
)

func TestParseTimeRFC3339(t *testing.T) {
	s := "2024-10-10T10:10:10Z"
	got, ok := ParseTime(s)
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.UTC().Format(time.RFC3339) != s {
		t.Fatalf("unexpected time %v", got)
	}
}

func TestParseTimeUnix(t *testing.T) {
	ts := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC).Unix()
	got, ok := ParseTime(strconv.FormatInt(ts, 10))
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.Unix() != ts {
		t.Fatalf("unexpected unix %v", got.Unix())
	}
}

func TestParseTimeDefault(t *testing.T) {
	def := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC)
	got := ParseTimeDefault("", def)
	if !got.Equal(def) {
		t.Fatalf("expected default")
	}
}

func TestAlignWindowThirtyMinute(t *testing.T) {
	from := time.Date(2024, 10, 10, 9, 17, 42, 0, time.UTC)
	to := time.Date(2024, 10, 10, 15, 44, 1, 0, time.UTC)
	af, at := AlignWindow(from, to, "THIRTY_MINUTE")
	if af.Minute() != 0 || af.Hour() != 9 {
		t.Fatalf("from aligned to %v", af)
	}
	if at.Minute() != 30 || at.Hour() != 15 {
		t.Fatalf("to aligned to %v", at)
	}
}

func TestAlignWindowDay(t *testing.T) {
	from := time.Date(2024, 10, 10, 9, 17, 0, 0, time.UTC)
	af, _ := AlignWindow(from, from, "ONE_DAY")
	if af.Hour() != 0 || af.Minute() != 0 {
		t.Fatalf("aligned to %v", af)
	}
}
