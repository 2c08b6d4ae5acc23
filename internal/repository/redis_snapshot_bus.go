package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"SignalHub/internal/domain/models"
	drepo "SignalHub/internal/domain/repository"
	"SignalHub/pkg/cache"
	"SignalHub/pkg/logger"
)

const (
	snapshotKey   = "signals:snapshot"
	snapshotTsKey = "signals:snapshot:ts"
	fenceKey      = "signals:fence"
	eventsChannel = "signals:events"
)

// fencedSetScript stores the payload and its timestamp only when the write's
// generation is not older than the recorded one. Rejecting stale generations
// closes the split-brain window a TTL-only lease leaves open.
var fencedSetScript = redis.NewScript(`
local cur = tonumber(redis.call("GET", KEYS[1]) or "0")
local gen = tonumber(ARGV[1])
if gen < cur then
  return 0
end
redis.call("SET", KEYS[1], gen)
redis.call("SET", KEYS[2], ARGV[2])
redis.call("SET", KEYS[3], ARGV[3])
return 1
`)

// RedisSnapshotBus stores the latest snapshot and broadcasts it over Redis
// pub/sub. Store-then-broadcast: Latest never lags a delivered message.
type RedisSnapshotBus struct {
	client  *redis.Client
	log     *logger.Logger
	key     string
	tsKey   string
	fence   string
	channel string
}

var _ drepo.SnapshotBus = (*RedisSnapshotBus)(nil)

func NewRedisSnapshotBus(rc *cache.RedisCache, log *logger.Logger) *RedisSnapshotBus {
	return &RedisSnapshotBus{
		client:  rc.Client(),
		log:     log,
		key:     rc.WrapKey(snapshotKey),
		tsKey:   rc.WrapKey(snapshotTsKey),
		fence:   rc.WrapKey(fenceKey),
		channel: rc.WrapKey(eventsChannel),
	}
}

func (b *RedisSnapshotBus) Publish(ctx context.Context, lease *drepo.Lease, snap *models.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	gen := int64(0)
	if lease != nil {
		gen = lease.Generation
	}

	ok, err := fencedSetScript.Run(ctx, b.client,
		[]string{b.fence, b.key, b.tsKey},
		gen, payload, strconv.FormatInt(time.Now().UnixMilli(), 10),
	).Int64()
	if err != nil {
		return fmt.Errorf("store snapshot: %w", err)
	}
	if ok != 1 {
		return drepo.ErrStaleLease
	}

	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("broadcast snapshot: %w", err)
	}
	return nil
}

func (b *RedisSnapshotBus) Latest(ctx context.Context) (*models.Snapshot, error) {
	data, err := b.client.Get(ctx, b.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var snap models.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}

// Subscribe opens a blocking Redis subscription and forwards decoded
// snapshots. The returned cancel func releases the subscription; the channel
// closes once the subscription drains.
func (b *RedisSnapshotBus) Subscribe(ctx context.Context) (<-chan *models.Snapshot, func(), error) {
	sub := b.client.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, fmt.Errorf("subscribe: %w", err)
	}

	out := make(chan *models.Snapshot, 8)
	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			var snap models.Snapshot
			if err := json.Unmarshal([]byte(msg.Payload), &snap); err != nil {
				b.log.Warn("dropping undecodable snapshot", logger.Error(err))
				continue
			}
			select {
			case out <- &snap:
			default:
				// Slow consumer: drop, the next message supersedes anyway.
			}
		}
	}()

	cancel := func() { _ = sub.Close() }
	return out, cancel, nil
}
