package store

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// Redis is the persistent KV backend. Envelope lifetimes are managed
// logically by the store (staleness is decided at read time), so entries are
// written without a Redis-side expiration.
type Redis struct {
	rdb *redis.Client
}

// NewRedis creates a Redis-backed KV.
func NewRedis(addr, password string, db int) *Redis {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &Redis{rdb: rdb}
}

// Get returns the bytes stored under key, (nil, false, nil) on a miss.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := r.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return val, true, nil
}

// Set stores val under key with no expiration.
func (r *Redis) Set(ctx context.Context, key string, val []byte) error {
	return r.rdb.Set(ctx, key, val, 0).Err()
}

// Remove deletes key. A missing key is not an error.
func (r *Redis) Remove(ctx context.Context, key string) error {
	return r.rdb.Del(ctx, key).Err()
}

// Keys scans the full keyspace. This backs prefix clears and stats only;
// nothing on the read path enumerates keys.
func (r *Redis) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	iter := r.rdb.Scan(ctx, 0, "*", 256).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}

// Ping checks the Redis connection.
func (r *Redis) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

// Close closes the underlying Redis client.
func (r *Redis) Close() error {
	return r.rdb.Close()
}
