package usecase

import (
	"context"
	"fmt"
	"time"

	"SignalHub/internal/domain/models"
	drepo "SignalHub/internal/domain/repository"
	"SignalHub/internal/service/indicators"
	"SignalHub/internal/service/ratelimit"
	"SignalHub/internal/service/scoring"
	"SignalHub/pkg/logger"
)

const dailyKeySuffix = "|" + string(models.TimeframeOneDay)

// ProducerConfig carries the two cadences and the quote-batch shape.
type ProducerConfig struct {
	FastInterval   time.Duration
	HeavyInterval  time.Duration
	ChunkSize      int
	ChunkRPS       float64
	CandleLookback int // days of daily history fetched per heavy cycle
	MinBars        int // minimum candles before indicators are computed
}

// SignalProducer orchestrates the fast quote loop and the heavy indicator
// loop for one leadership term. It is constructed once at the composition
// root and started per term by the coordinator; there is no process-wide
// singleton.
type SignalProducer struct {
	market  drepo.MarketData
	cache   drepo.IndicatorCache
	bus     drepo.SnapshotBus
	sink    drepo.SnapshotSink // may be nil
	metrics drepo.Metrics
	log     *logger.Logger
	limiter *ratelimit.Limiter

	universe []models.Instrument
	cfg      ProducerConfig
}

func NewSignalProducer(
	market drepo.MarketData,
	cache drepo.IndicatorCache,
	bus drepo.SnapshotBus,
	sink drepo.SnapshotSink,
	metrics drepo.Metrics,
	log *logger.Logger,
	universe []models.Instrument,
	cfg ProducerConfig,
) *SignalProducer {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 50
	}
	if cfg.ChunkRPS <= 0 {
		cfg.ChunkRPS = 5
	}
	if cfg.MinBars <= 0 {
		cfg.MinBars = 60
	}
	if cfg.CandleLookback <= 0 {
		cfg.CandleLookback = 120
	}
	return &SignalProducer{
		market:   market,
		cache:    cache,
		bus:      bus,
		sink:     sink,
		metrics:  metrics,
		log:      log,
		limiter:  ratelimit.New(),
		universe: universe,
		cfg:      cfg,
	}
}

// Run drives both loops until ctx is cancelled (leadership lost or
// shutdown). The heavy cycle runs once synchronously first so the initial
// snapshot is never indicator-empty.
func (p *SignalProducer) Run(ctx context.Context, lease *drepo.Lease) {
	p.log.Info("producer started",
		logger.Int("instruments", len(p.universe)),
		logger.Int64("generation", lease.Generation))

	p.safeHeavyTick(ctx, lease) // warmup

	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(p.cfg.HeavyInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.safeHeavyTick(ctx, lease)
			}
		}
	}()

	ticker := time.NewTicker(p.cfg.FastInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			<-done
			p.log.Info("producer stopped", logger.Int64("generation", lease.Generation))
			return
		case <-ticker.C:
			p.safeFastTick(ctx, lease)
		}
	}
}

// safeHeavyTick isolates one heavy iteration: a panic or error is logged and
// the loop carries on at the next tick.
func (p *SignalProducer) safeHeavyTick(ctx context.Context, lease *drepo.Lease) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("heavy tick panic", logger.Any("panic", r))
			p.recordError("heavy_tick_panic")
		}
	}()
	if err := p.heavyTick(ctx, lease); err != nil {
		p.log.Error("heavy tick failed", logger.Error(err))
		p.recordError("heavy_tick")
	}
}

// heavyTick recomputes indicators for the whole universe and overwrites the
// shared cache. Per-instrument failures are skipped, not fatal.
func (p *SignalProducer) heavyTick(ctx context.Context, lease *drepo.Lease) error {
	sets := make(map[string]*models.IndicatorSet, len(p.universe)*2)
	now := time.Now()

	for _, in := range p.universe {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		intraday, err := p.market.FetchCandles(ctx, in.Exchange, in.Token,
			models.TimeframeThirtyMin, now.AddDate(0, 0, -10), now)
		if err != nil {
			p.log.Warn("candle fetch failed",
				logger.String("instrument", in.Key()),
				logger.String("timeframe", string(models.TimeframeThirtyMin)),
				logger.Error(err))
			p.recordError("candles")
		} else if len(intraday) >= p.cfg.MinBars {
			sets[in.Key()] = indicators.Compute(intraday, models.TimeframeThirtyMin)
		}

		daily, err := p.market.FetchCandles(ctx, in.Exchange, in.Token,
			models.TimeframeOneDay, now.AddDate(0, 0, -p.cfg.CandleLookback), now)
		if err != nil {
			p.log.Warn("candle fetch failed",
				logger.String("instrument", in.Key()),
				logger.String("timeframe", string(models.TimeframeOneDay)),
				logger.Error(err))
			p.recordError("candles")
		} else if len(daily) >= p.cfg.MinBars {
			sets[in.Key()+dailyKeySuffix] = indicators.Compute(daily, models.TimeframeOneDay)
		}
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if len(sets) == 0 {
		return fmt.Errorf("heavy cycle produced no indicator sets")
	}
	return p.cache.PutAll(ctx, lease, sets)
}

// safeFastTick isolates one fast iteration; any failure degrades to an
// ok:false snapshot so subscribers see producer health.
func (p *SignalProducer) safeFastTick(ctx context.Context, lease *drepo.Lease) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("fast tick panic", logger.Any("panic", r))
			p.recordError("fast_tick_panic")
			p.publish(ctx, lease, models.ErrorSnapshot(fmt.Sprintf("producer panic: %v", r)))
		}
	}()
	snap, err := p.fastTick(ctx, lease)
	if err != nil {
		if ctx.Err() != nil {
			return // demoted mid-iteration: abandon, do not publish
		}
		p.log.Error("fast tick failed", logger.Error(err))
		p.recordError("fast_tick")
		p.publish(ctx, lease, models.ErrorSnapshot(err.Error()))
		return
	}
	p.publish(ctx, lease, snap)
}

// fastTick fetches quotes chunk by chunk, merges them with the latest cached
// indicators and assembles one snapshot.
func (p *SignalProducer) fastTick(ctx context.Context, lease *drepo.Lease) (*models.Snapshot, error) {
	quotes := make(map[string]*models.Quote, len(p.universe))
	var errs []models.InstrumentError

	for _, chunk := range ChunkUniverse(p.universe, p.cfg.ChunkSize) {
		// Rate-limit courtesy between chunks.
		if err := p.limiter.Wait(ctx, "quotes", 1, p.cfg.ChunkRPS); err != nil {
			return nil, err
		}

		res, err := p.market.FetchQuotes(ctx, chunk)
		if err != nil {
			// One failed chunk degrades its instruments, not the tick.
			for ex, tokens := range chunk {
				for _, tok := range tokens {
					errs = append(errs, models.InstrumentError{
						Exchange: ex, Token: tok, Reason: err.Error(),
					})
				}
			}
			p.recordError("quotes")
			continue
		}
		for i := range res.Fetched {
			q := res.Fetched[i]
			quotes[q.Exchange+":"+q.Token] = &res.Fetched[i]
		}
		errs = append(errs, res.Unfetched...)
	}

	cached, _, err := p.cache.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("indicator cache read: %w", err)
	}

	return p.assemble(quotes, cached, errs), nil
}

// assemble merges quotes with (possibly stale) indicators into a snapshot.
// Instruments without a quote are recorded in errors, never dropped silently.
func (p *SignalProducer) assemble(quotes map[string]*models.Quote, cached map[string]*models.IndicatorSet, errs []models.InstrumentError) *models.Snapshot {
	seen := make(map[string]bool, len(errs))
	for _, e := range errs {
		seen[e.Exchange+":"+e.Token] = true
	}

	items := make([]models.SnapshotItem, 0, len(p.universe))
	for _, in := range p.universe {
		q := quotes[in.Key()]
		ind := cached[in.Key()]
		if q == nil && !seen[in.Key()] {
			errs = append(errs, models.InstrumentError{
				Exchange: in.Exchange, Token: in.Token, Reason: "no quote returned",
			})
		}
		items = append(items, models.SnapshotItem{
			Instrument: in,
			Quote:      q,
			Indicators: ind,
			Signal:     scoring.Score(q, ind),
		})
	}

	return &models.Snapshot{
		GeneratedAt: time.Now().UTC(),
		Mode:        "live",
		OK:          true,
		Items:       items,
		Errors:      errs,
		Count:       len(items),
		ErrorsCount: len(errs),
	}
}

func (p *SignalProducer) publish(ctx context.Context, lease *drepo.Lease, snap *models.Snapshot) {
	if ctx.Err() != nil {
		return
	}
	if err := p.bus.Publish(ctx, lease, snap); err != nil {
		p.log.Error("snapshot publish failed", logger.Error(err))
		p.recordError("publish")
		return
	}
	if p.metrics != nil {
		p.metrics.RecordSnapshotPublished(snap.OK)
	}
	if p.sink != nil {
		if err := p.sink.Send(ctx, snap); err != nil {
			p.log.Warn("snapshot sink failed", logger.Error(err))
			p.recordError("sink")
		}
	}
}

func (p *SignalProducer) recordError(kind string) {
	if p.metrics != nil {
		p.metrics.RecordError(kind)
	}
}

// ChunkUniverse partitions instruments into quote-request batches of at most
// size tokens, grouped by exchange. Every instrument lands in exactly one
// chunk.
func ChunkUniverse(universe []models.Instrument, size int) []map[string][]string {
	if size <= 0 {
		size = len(universe)
	}

	byExchange := make(map[string][]string)
	order := make([]string, 0)
	for _, in := range universe {
		if _, ok := byExchange[in.Exchange]; !ok {
			order = append(order, in.Exchange)
		}
		byExchange[in.Exchange] = append(byExchange[in.Exchange], in.Token)
	}

	var chunks []map[string][]string
	for _, ex := range order {
		tokens := byExchange[ex]
		for start := 0; start < len(tokens); start += size {
			end := start + size
			if end > len(tokens) {
				end = len(tokens)
			}
			chunks = append(chunks, map[string][]string{ex: tokens[start:end]})
		}
	}
	return chunks
}
