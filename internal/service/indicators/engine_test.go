package indicators

import (
	"math"
	"testing"
	"time"

	"SignalHub/internal/domain/models"
)

func candlesFromCloses(closes []float64) []models.Candle {
	out := make([]models.Candle, len(closes))
	base := time.Date(2024, 5, 6, 9, 15, 0, 0, time.UTC)
	for i, c := range closes {
		out[i] = models.Candle{
			Timestamp: base.Add(time.Duration(i) * 30 * time.Minute),
			Open:      c, High: c, Low: c, Close: c, Volume: 100,
		}
	}
	return out
}

func almost(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestSMAUndefinedUntilWindowFull(t *testing.T) {
	vals := []float64{1, 2, 3, 4, 5}
	s, ok := SMASeries(vals, 3)
	if ok[0] || ok[1] {
		t.Fatal("sma defined before window filled")
	}
	if !ok[2] || !almost(s[2], 2) {
		t.Fatalf("sma[2] = %v", s[2])
	}
	if !almost(s[4], 4) {
		t.Fatalf("sma[4] = %v", s[4])
	}
}

func TestEMASeriesConvergesToConstant(t *testing.T) {
	vals := make([]float64, 100)
	for i := range vals {
		vals[i] = 50
	}
	s := EMASeries(vals, 20)
	if !almost(s[len(s)-1], 50) {
		t.Fatalf("ema of constant series = %v", s[len(s)-1])
	}
}

func TestRSISaturatesOnMonotonicGain(t *testing.T) {
	vals := make([]float64, 30)
	for i := range vals {
		vals[i] = float64(i)
	}
	s, ok := RSISeries(vals, 14)
	if !ok {
		t.Fatal("expected rsi")
	}
	if !almost(s[len(s)-1], 100) {
		t.Fatalf("monotonic gains must saturate to 100, got %v", s[len(s)-1])
	}
}

func TestRSIBackfillsLeadingValues(t *testing.T) {
	vals := []float64{1, 2, 1, 3, 2, 4, 3, 5, 4, 6, 5, 7, 6, 8, 7, 9}
	s, ok := RSISeries(vals, 14)
	if !ok {
		t.Fatal("expected rsi")
	}
	for i := 0; i < 14; i++ {
		if s[i] != s[14] {
			t.Fatalf("leading value %d not backfilled: %v vs %v", i, s[i], s[14])
		}
	}
}

func TestRSIMidpointOnBalancedMoves(t *testing.T) {
	// Alternating +1/-1 moves: equal average gain and loss -> RSI 50.
	vals := make([]float64, 31)
	for i := range vals {
		if i%2 == 0 {
			vals[i] = 10
		} else {
			vals[i] = 11
		}
	}
	s, _ := RSISeries(vals, 14)
	got := s[len(s)-1]
	if got < 40 || got > 60 {
		t.Fatalf("balanced series should hover near 50, got %v", got)
	}
}

func TestComputeShortSeriesLeavesWindowsNil(t *testing.T) {
	set := Compute(candlesFromCloses(make([]float64, 30)), models.TimeframeThirtyMin)
	if set.SMA200 != nil || set.SMA50 != nil || set.EMA50 != nil {
		t.Fatal("unfilled windows must stay nil")
	}
	if set.EMA20 == nil || set.RSI14 == nil || set.MACD == nil {
		t.Fatal("computable indicators missing")
	}
	if set.Timeframe != models.TimeframeThirtyMin {
		t.Fatalf("timeframe = %s", set.Timeframe)
	}
}

func TestComputeFullSeries(t *testing.T) {
	closes := make([]float64, 250)
	for i := range closes {
		closes[i] = 100 + float64(i%10)
	}
	set := Compute(candlesFromCloses(closes), models.TimeframeOneDay)
	for name, v := range map[string]*float64{
		"ema20": set.EMA20, "ema50": set.EMA50,
		"sma50": set.SMA50, "sma200": set.SMA200,
		"rsi14": set.RSI14, "macd": set.MACD,
		"macdSignal": set.MACDSignal, "macdHist": set.MACDHist,
	} {
		if v == nil {
			t.Fatalf("%s nil on full series", name)
		}
	}
	if !almost(*set.MACDHist, *set.MACD-*set.MACDSignal) {
		t.Fatal("histogram must equal macd - signal")
	}
	// SMA200 of a repeating 100..109 pattern is the pattern mean.
	if math.Abs(*set.SMA200-104.5) > 1e-9 {
		t.Fatalf("sma200 = %v", *set.SMA200)
	}
}
