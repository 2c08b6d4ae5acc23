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
)

const (
	indicatorsKey   = "signals:indicators"
	indicatorsTsKey = "signals:indicators:ts"
)

// RedisIndicatorCache stores the full indicator map, overwritten wholesale by
// every heavy cycle. Readers tolerate staleness by design.
type RedisIndicatorCache struct {
	client *redis.Client
	key    string
	tsKey  string
	fence  string
}

var _ drepo.IndicatorCache = (*RedisIndicatorCache)(nil)

func NewRedisIndicatorCache(rc *cache.RedisCache) *RedisIndicatorCache {
	return &RedisIndicatorCache{
		client: rc.Client(),
		key:    rc.WrapKey(indicatorsKey),
		tsKey:  rc.WrapKey(indicatorsTsKey),
		fence:  rc.WrapKey(fenceKey),
	}
}

func (c *RedisIndicatorCache) PutAll(ctx context.Context, lease *drepo.Lease, sets map[string]*models.IndicatorSet) error {
	payload, err := json.Marshal(sets)
	if err != nil {
		return fmt.Errorf("marshal indicators: %w", err)
	}

	gen := int64(0)
	if lease != nil {
		gen = lease.Generation
	}

	ok, err := fencedSetScript.Run(ctx, c.client,
		[]string{c.fence, c.key, c.tsKey},
		gen, payload, strconv.FormatInt(time.Now().UnixMilli(), 10),
	).Int64()
	if err != nil {
		return fmt.Errorf("store indicators: %w", err)
	}
	if ok != 1 {
		return drepo.ErrStaleLease
	}
	return nil
}

func (c *RedisIndicatorCache) GetAll(ctx context.Context) (map[string]*models.IndicatorSet, time.Time, error) {
	data, err := c.client.Get(ctx, c.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return map[string]*models.IndicatorSet{}, time.Time{}, nil
		}
		return nil, time.Time{}, fmt.Errorf("read indicators: %w", err)
	}

	var sets map[string]*models.IndicatorSet
	if err := json.Unmarshal(data, &sets); err != nil {
		return nil, time.Time{}, fmt.Errorf("decode indicators: %w", err)
	}

	var at time.Time
	if ms, err := c.client.Get(ctx, c.tsKey).Int64(); err == nil {
		at = time.UnixMilli(ms)
	}
	return sets, at, nil
}
