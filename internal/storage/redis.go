package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wallet-watch/internal/config"
	"github.com/wallet-watch/internal/models"
)

const (
	notifiedKeyPrefix = "notified:"
	sweepLockKey      = "sweep:lock"
)

// RedisCache wraps the Redis client
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new Redis cache connection
func NewRedisCache(cfg *config.RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.MaxConnections,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolTimeout:  4 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// NewRedisCacheFromClient wraps an existing client
func NewRedisCacheFromClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Close closes the Redis connection
func (r *RedisCache) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// Client returns the underlying Redis client
func (r *RedisCache) Client() *redis.Client {
	return r.client
}

// Ping checks if Redis is reachable
func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// NotificationGuard remembers which (address, tx) pairs a sweep already
// tried to notify, so a crash between notify and watermark commit does not
// produce a second message on the next sweep.
type NotificationGuard struct {
	cache *RedisCache
	ttl   time.Duration
}

// NewNotificationGuard creates a guard whose claims expire after ttl
func NewNotificationGuard(cache *RedisCache, ttl time.Duration) *NotificationGuard {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &NotificationGuard{cache: cache, ttl: ttl}
}

func notifiedKey(address, txHash string) string {
	return notifiedKeyPrefix + models.NormalizeAddress(address) + ":" + txHash
}

// Claim returns true if this caller is the first to claim the pair
func (g *NotificationGuard) Claim(ctx context.Context, address, txHash string) (bool, error) {
	ok, err := g.cache.client.SetNX(ctx, notifiedKey(address, txHash), time.Now().Unix(), g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim notification: %w", err)
	}
	return ok, nil
}

// releaseIfOwner deletes the key only if it still holds our token
var releaseIfOwner = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// extendIfOwner resets the TTL only if the key still holds our token
var extendIfOwner = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// SweepLease is a best-effort cross-process lock so that two worker
// processes do not sweep the same wallet set at the same time.
type SweepLease struct {
	cache *RedisCache
	key   string
	owner string
}

// NewSweepLease creates a lease handle identified by owner
func NewSweepLease(cache *RedisCache, owner string) *SweepLease {
	return &SweepLease{cache: cache, key: sweepLockKey, owner: owner}
}

// Acquire takes the lease for ttl. It returns false if another owner holds it.
func (l *SweepLease) Acquire(ctx context.Context, ttl time.Duration) (bool, error) {
	ok, err := l.cache.client.SetNX(ctx, l.key, l.owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire sweep lease: %w", err)
	}
	return ok, nil
}

// Renew extends a lease we hold by ttl. It returns false once the lease has
// expired or passed to another owner.
func (l *SweepLease) Renew(ctx context.Context, ttl time.Duration) (bool, error) {
	n, err := extendIfOwner.Run(ctx, l.cache.client, []string{l.key}, l.owner, ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("failed to renew sweep lease: %w", err)
	}
	return n == 1, nil
}

// Release drops the lease if it is still ours
func (l *SweepLease) Release(ctx context.Context) error {
	err := releaseIfOwner.Run(ctx, l.cache.client, []string{l.key}, l.owner).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to release sweep lease: %w", err)
	}
	return nil
}
