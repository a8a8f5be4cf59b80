package storage

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps seen-event records in Redis. SET NX with a TTL gives both
// the test-and-set property and time-based expiry in one command, and lets
// multiple gateway instances share a single dedup window.
type RedisStore struct {
	client    *redis.Client
	prefix    string
	retention time.Duration
}

// NewRedisStore initializes Redis-backed seen-event storage.
// addr: e.g., "localhost:6379"
// prefix: key prefix (e.g., "gateway:seen:"). Final key is prefix + tx hash.
func NewRedisStore(addr, password string, db int, prefix string, retention time.Duration) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	if prefix == "" {
		prefix = "gateway:seen:"
	}
	if retention <= 0 {
		retention = 24 * time.Hour
	}

	return &RedisStore{
		client:    rdb,
		prefix:    prefix,
		retention: retention,
	}, nil
}

func (r *RedisStore) FirstSeen(ctx context.Context, hash string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	// SETNX succeeds only for the first writer; the TTL is the retention window
	return r.client.SetNX(ctx, r.prefix+hash, time.Now().Unix(), r.retention).Result()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
