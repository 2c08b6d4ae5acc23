package repository

import (
	"context"
	"errors"
	"time"

	"SignalHub/internal/domain/models"
)

// ErrStaleLease is returned by fenced writers when the write carries a
// generation older than the one currently recorded in the shared store.
var ErrStaleLease = errors.New("repository: stale lease generation")

// QuoteBatchResult mirrors the vendor's full-quote response split.
type QuoteBatchResult struct {
	Fetched   []models.Quote
	Unfetched []models.InstrumentError
}

// MarketData is the resilient upstream client. Implementations own the
// credential lifecycle and the retry policy; callers see either data or a
// structured failure, never a half-authenticated state.
type MarketData interface {
	// FetchQuotes requests full-mode quotes for tokens grouped by exchange.
	FetchQuotes(ctx context.Context, exchangeTokens map[string][]string) (*QuoteBatchResult, error)

	// FetchCandles returns the OHLCV window for one instrument. Exhausted
	// retries surface as an error, not a panic.
	FetchCandles(ctx context.Context, exchange, token string, tf models.Timeframe, from, to time.Time) ([]models.Candle, error)
}

// LeaderLease is the distributed lease backing leader election. A Lease
// carries the fencing generation assigned at acquisition; writers tag shared
// writes with it so a stale holder is rejected at the store.
type Lease struct {
	Key        string
	HolderID   string
	Generation int64
}

type LeaderLease interface {
	// TryAcquire succeeds only when the lease key is absent. On success the
	// returned lease carries a fresh generation.
	TryAcquire(ctx context.Context, holderID string, ttl time.Duration) (*Lease, bool, error)

	// Renew extends the TTL iff the lease is still held by holderID.
	// A false return means the caller has been demoted.
	Renew(ctx context.Context, lease *Lease, ttl time.Duration) (bool, error)

	// Release deletes the lease iff still held by holderID. Best effort on
	// shutdown.
	Release(ctx context.Context, lease *Lease) error
}

// SnapshotBus stores the latest snapshot and broadcasts it. Store-then-
// broadcast: a subscriber that misses a message can always read Latest.
type SnapshotBus interface {
	// Publish persists the snapshot under the well-known key and broadcasts
	// it. Writes tagged with a stale generation are rejected.
	Publish(ctx context.Context, lease *Lease, snap *models.Snapshot) error

	// Latest returns the stored snapshot, or (nil, nil) when none exists yet.
	Latest(ctx context.Context) (*models.Snapshot, error)

	// Subscribe returns a channel of published snapshots plus a cancel func
	// releasing the underlying subscription.
	Subscribe(ctx context.Context) (<-chan *models.Snapshot, func(), error)
}

// IndicatorCache is the shared store of last-computed indicators keyed by
// instrument. The heavy loop overwrites the whole map each cycle; the fast
// loop reads possibly stale values by design.
type IndicatorCache interface {
	PutAll(ctx context.Context, lease *Lease, sets map[string]*models.IndicatorSet) error
	GetAll(ctx context.Context) (map[string]*models.IndicatorSet, time.Time, error)
}

// SnapshotSink is an optional secondary outlet for published snapshots
// (e.g. a Kafka firehose for downstream analytics). Sinks are best effort:
// a sink failure never fails the publish.
type SnapshotSink interface {
	Send(ctx context.Context, snap *models.Snapshot) error
	Close() error
}

// Metrics is the Prometheus-backed recorder surface used across the service.
type Metrics interface {
	SetLeader(isLeader bool)
	RecordSnapshotPublished(ok bool)
	RecordUpstreamCall(op string, seconds float64)
	RecordUpstreamRetry(op string)
	RecordError(kind string)
	IncSubscribers()
	DecSubscribers()
}
