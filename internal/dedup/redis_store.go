package dedup

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "ledgerflow:seen:"

// RedisConfig holds Redis connection settings for the shared seen set.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	TTL       time.Duration
}

// RedisStore shares the seen set between instances. Each fingerprint is a
// hash with first_seen (unix nanos) and count fields.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis %s: %w", cfg.Addr, err)
	}
	return NewRedisStoreWithClient(client, cfg.KeyPrefix, cfg.TTL), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client, keyPrefix string, ttl time.Duration) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}
	return &RedisStore{client: client, keyPrefix: keyPrefix, ttl: ttl}
}

// Mark uses HSETNX on first_seen as the atomic decision; the counter is
// incremented for every sighting.
func (s *RedisStore) Mark(ctx context.Context, fingerprint string) (bool, error) {
	key := s.keyPrefix + fingerprint
	first, err := s.client.HSetNX(ctx, key, "first_seen", time.Now().UnixNano()).Result()
	if err != nil {
		return false, fmt.Errorf("mark fingerprint: %w", err)
	}
	if err := s.client.HIncrBy(ctx, key, "count", 1).Err(); err != nil {
		return first, fmt.Errorf("count fingerprint: %w", err)
	}
	if first && s.ttl > 0 {
		if err := s.client.Expire(ctx, key, s.ttl).Err(); err != nil {
			return first, fmt.Errorf("expire fingerprint: %w", err)
		}
	}
	return first, nil
}

func (s *RedisStore) Lookup(ctx context.Context, fingerprint string) (Seen, bool, error) {
	vals, err := s.client.HGetAll(ctx, s.keyPrefix+fingerprint).Result()
	if err != nil {
		return Seen{}, false, fmt.Errorf("lookup fingerprint: %w", err)
	}
	if len(vals) == 0 {
		return Seen{}, false, nil
	}
	nanos, _ := strconv.ParseInt(vals["first_seen"], 10, 64)
	count, _ := strconv.ParseInt(vals["count"], 10, 64)
	return Seen{FirstSeen: time.Unix(0, nanos), Count: count}, true, nil
}

// Reset deletes every key under the store's prefix.
func (s *RedisStore) Reset(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, s.keyPrefix+"*", 500).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan fingerprints: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	return s.client.Del(ctx, keys...).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ SeenStore = (*RedisStore)(nil)
