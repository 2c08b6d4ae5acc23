package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	drepo "SignalHub/internal/domain/repository"
	"SignalHub/pkg/cache"
)

// acquireScript takes the lease only when absent, bumping the generation
// counter in the same transaction so every grant carries a fresh fencing
// number.
var acquireScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
  return {0, 0}
end
local gen = redis.call("INCR", KEYS[2])
redis.call("SET", KEYS[1], ARGV[1] .. "|" .. gen, "PX", ARGV[2])
return {1, gen}
`)

// renewScript extends the TTL only while the stored value still equals ours.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  redis.call("PEXPIRE", KEYS[1], ARGV[2])
  return 1
end
return 0
`)

// releaseScript deletes the lease only while we still hold it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLeaderLease implements the distributed lease on Redis.
type RedisLeaderLease struct {
	client *redis.Client
	key    string
	genKey string
}

var _ drepo.LeaderLease = (*RedisLeaderLease)(nil)

// NewRedisLeaderLease builds the lease store. key is unprefixed; the cache's
// prefix is applied so all deployments share the namespacing scheme.
func NewRedisLeaderLease(rc *cache.RedisCache, key string) *RedisLeaderLease {
	wrapped := rc.WrapKey(key)
	return &RedisLeaderLease{
		client: rc.Client(),
		key:    wrapped,
		genKey: wrapped + ":gen",
	}
}

func (l *RedisLeaderLease) TryAcquire(ctx context.Context, holderID string, ttl time.Duration) (*drepo.Lease, bool, error) {
	res, err := acquireScript.Run(ctx, l.client,
		[]string{l.key, l.genKey},
		holderID, ttl.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return nil, false, fmt.Errorf("lease acquire: %w", err)
	}
	if len(res) != 2 || res[0] != 1 {
		return nil, false, nil
	}
	return &drepo.Lease{Key: l.key, HolderID: holderID, Generation: res[1]}, true, nil
}

func (l *RedisLeaderLease) Renew(ctx context.Context, lease *drepo.Lease, ttl time.Duration) (bool, error) {
	ok, err := renewScript.Run(ctx, l.client,
		[]string{l.key},
		leaseValue(lease), ttl.Milliseconds(),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("lease renew: %w", err)
	}
	return ok == 1, nil
}

func (l *RedisLeaderLease) Release(ctx context.Context, lease *drepo.Lease) error {
	_, err := releaseScript.Run(ctx, l.client,
		[]string{l.key},
		leaseValue(lease),
	).Int64()
	if err != nil {
		return fmt.Errorf("lease release: %w", err)
	}
	return nil
}

func leaseValue(lease *drepo.Lease) string {
	return fmt.Sprintf("%s|%d", lease.HolderID, lease.Generation)
}
