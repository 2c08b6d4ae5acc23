// Package scoring merges a live quote with cached indicators into a signal.
package scoring

import "SignalHub/internal/domain/models"

// Thresholds for classification.
const (
	buyThreshold  = 3
	sellThreshold = -3

	rsiUpper = 60
	rsiLower = 40
)

// Score combines the latest quote with the latest cached 30-minute indicator
// set. Missing inputs contribute zero; strict comparisons, no tie bonus.
func Score(q *models.Quote, ind *models.IndicatorSet) models.Signal {
	score := 0

	if q != nil && ind != nil && ind.EMA20 != nil {
		switch {
		case q.LTP > *ind.EMA20:
			score += 2
		case q.LTP < *ind.EMA20:
			score -= 2
		}
	}

	if ind != nil && ind.RSI14 != nil {
		switch {
		case *ind.RSI14 > rsiUpper:
			score += 2
		case *ind.RSI14 < rsiLower:
			score -= 2
		}
	}

	if q != nil {
		if q.TradeVolume > 0 {
			score++
		}
		switch {
		case q.TotBuyQty > q.TotSellQty:
			score++
		case q.TotBuyQty < q.TotSellQty:
			score--
		}
	}

	return models.Signal{Score: score, Label: label(score)}
}

func label(score int) string {
	switch {
	case score >= buyThreshold:
		return models.LabelBuy
	case score <= sellThreshold:
		return models.LabelSell
	default:
		return models.LabelWait
	}
}
