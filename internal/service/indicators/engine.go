// Package indicators computes technical indicators over candle series.
// Everything here is pure and deterministic.
package indicators

import (
	"time"

	"SignalHub/internal/domain/models"
)

const (
	rsiPeriod  = 14
	macdFast   = 12
	macdSlow   = 26
	macdSignal = 9
)

// Compute derives the last-bar indicator values for one candle series.
// Only the final value of each indicator is returned to keep cache payloads
// small. Fields whose window has not filled stay nil.
func Compute(candles []models.Candle, tf models.Timeframe) *models.IndicatorSet {
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}

	set := &models.IndicatorSet{
		Timeframe:  tf,
		ComputedAt: time.Now().UTC(),
	}

	set.EMA20 = lastEMA(closes, 20)
	set.EMA50 = lastEMA(closes, 50)
	set.SMA50 = lastSMA(closes, 50)
	set.SMA200 = lastSMA(closes, 200)
	set.RSI14 = lastRSI(closes, rsiPeriod)
	set.MACD, set.MACDSignal, set.MACDHist = lastMACD(closes)

	return set
}

// EMASeries computes an exponential moving average over the full series,
// seeded with the first value.
func EMASeries(vals []float64, span int) []float64 {
	if len(vals) == 0 || span <= 0 {
		return nil
	}
	k := 2.0 / (float64(span) + 1.0)
	out := make([]float64, len(vals))
	out[0] = vals[0]
	for i := 1; i < len(vals); i++ {
		out[i] = vals[i]*k + out[i-1]*(1.0-k)
	}
	return out
}

// SMASeries computes a simple rolling mean; positions before the window fills
// carry no defined value and are reported via the ok slice.
func SMASeries(vals []float64, window int) ([]float64, []bool) {
	if len(vals) == 0 || window <= 0 {
		return nil, nil
	}
	out := make([]float64, len(vals))
	ok := make([]bool, len(vals))
	var sum float64
	for i, v := range vals {
		sum += v
		if i >= window {
			sum -= vals[i-window]
		}
		if i >= window-1 {
			out[i] = sum / float64(window)
			ok[i] = true
		}
	}
	return out, ok
}

// RSISeries computes RSI with Wilder smoothing. A zero average loss saturates
// to 100 instead of dividing by zero. Leading undefined positions are
// back-filled with the first defined value.
func RSISeries(vals []float64, period int) ([]float64, bool) {
	if len(vals) < period+1 || period <= 0 {
		return nil, false
	}

	out := make([]float64, len(vals))

	var gain, loss float64
	for i := 1; i <= period; i++ {
		d := vals[i] - vals[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	avgGain := gain / float64(period)
	avgLoss := loss / float64(period)

	out[period] = rsiValue(avgGain, avgLoss)

	for i := period + 1; i < len(vals); i++ {
		d := vals[i] - vals[i-1]
		g, l := 0.0, 0.0
		if d > 0 {
			g = d
		} else {
			l = -d
		}
		avgGain = (avgGain*float64(period-1) + g) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + l) / float64(period)
		out[i] = rsiValue(avgGain, avgLoss)
	}

	for i := 0; i < period; i++ {
		out[i] = out[period]
	}
	return out, true
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

func lastEMA(vals []float64, span int) *float64 {
	if len(vals) < span {
		return nil
	}
	s := EMASeries(vals, span)
	return ptr(s[len(s)-1])
}

func lastSMA(vals []float64, window int) *float64 {
	s, ok := SMASeries(vals, window)
	if s == nil || !ok[len(ok)-1] {
		return nil
	}
	return ptr(s[len(s)-1])
}

func lastRSI(vals []float64, period int) *float64 {
	s, ok := RSISeries(vals, period)
	if !ok {
		return nil
	}
	return ptr(s[len(s)-1])
}

// lastMACD returns MACD line (EMA12−EMA26), its EMA9 signal, and the
// histogram. Signal and histogram need the slow window plus the signal
// window to fill.
func lastMACD(vals []float64) (*float64, *float64, *float64) {
	if len(vals) < macdSlow {
		return nil, nil, nil
	}
	fast := EMASeries(vals, macdFast)
	slow := EMASeries(vals, macdSlow)
	line := make([]float64, len(vals))
	for i := range vals {
		line[i] = fast[i] - slow[i]
	}
	macd := ptr(line[len(line)-1])

	if len(vals) < macdSlow+macdSignal {
		return macd, nil, nil
	}
	signal := EMASeries(line, macdSignal)
	sig := ptr(signal[len(signal)-1])
	hist := ptr(*macd - *sig)
	return macd, sig, hist
}

func ptr(v float64) *float64 { return &v }
