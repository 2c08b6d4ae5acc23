package usecase

import (
	"context"
	"time"

	"SignalHub/internal/domain/models"
	"SignalHub/internal/service/indicators"
	"SignalHub/internal/service/scoring"
	"SignalHub/pkg/logger"
)

// ComputeOnce runs the full heavy computation synchronously: fresh candles,
// fresh quotes, indicators and signals — bypassing the shared cache and
// leadership entirely. Debug aid; expensive.
func (p *SignalProducer) ComputeOnce(ctx context.Context) (*models.Snapshot, error) {
	now := time.Now()
	sets := make(map[string]*models.IndicatorSet, len(p.universe))
	var errs []models.InstrumentError

	for _, in := range p.universe {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		candles, err := p.market.FetchCandles(ctx, in.Exchange, in.Token,
			models.TimeframeThirtyMin, now.AddDate(0, 0, -10), now)
		if err != nil {
			errs = append(errs, models.InstrumentError{
				Exchange: in.Exchange, Token: in.Token, Reason: err.Error(),
			})
			continue
		}
		if len(candles) >= p.cfg.MinBars {
			sets[in.Key()] = indicators.Compute(candles, models.TimeframeThirtyMin)
		}
	}

	quotes := make(map[string]*models.Quote, len(p.universe))
	for _, chunk := range ChunkUniverse(p.universe, p.cfg.ChunkSize) {
		res, err := p.market.FetchQuotes(ctx, chunk)
		if err != nil {
			for ex, tokens := range chunk {
				for _, tok := range tokens {
					errs = append(errs, models.InstrumentError{Exchange: ex, Token: tok, Reason: err.Error()})
				}
			}
			continue
		}
		for i := range res.Fetched {
			q := res.Fetched[i]
			quotes[q.Exchange+":"+q.Token] = &res.Fetched[i]
		}
		errs = append(errs, res.Unfetched...)
	}

	items := make([]models.SnapshotItem, 0, len(p.universe))
	for _, in := range p.universe {
		q := quotes[in.Key()]
		ind := sets[in.Key()]
		items = append(items, models.SnapshotItem{
			Instrument: in,
			Quote:      q,
			Indicators: ind,
			Signal:     scoring.Score(q, ind),
		})
	}

	p.log.Info("one-shot computation done",
		logger.Int("items", len(items)), logger.Int("errors", len(errs)))

	return &models.Snapshot{
		GeneratedAt: time.Now().UTC(),
		Mode:        "once",
		OK:          true,
		Items:       items,
		Errors:      errs,
		Count:       len(items),
		ErrorsCount: len(errs),
	}, nil
}
