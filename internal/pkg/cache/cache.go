package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sbsbridge/claimbridge/internal/pkg/env"
)

var client *redis.Client

// Options reads the cache connection settings.
func Options() *redis.Options {
	return &redis.Options{
		Addr:     net.JoinHostPort(env.GetEnv("CACHE_HOST", "localhost"), env.GetEnv("CACHE_PORT", "6379")),
		Password: env.GetEnv("CACHE_PASSWORD", ""),
		DB:       env.GetEnvInt("CACHE_DB", 0),
	}
}

// SetupCache connects the shared client. An unreachable server is only
// logged; lock, counter and cache calls fail individually until it is back.
func SetupCache() {
	client = redis.NewClient(Options())

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Printf("[Cache] Could not connect to %s: %v", client.Options().Addr, err)
		return
	}
	log.Printf("[Cache] Connected to %s", client.Options().Addr)
}

// GetClient returns the shared client, connecting on first use.
func GetClient() *redis.Client {
	if client == nil {
		SetupCache()
	}
	return client
}

// Close releases the shared client.
func Close() error {
	if client == nil {
		return nil
	}
	return client.Close()
}

// JSONStore caches JSON-encoded values under a key prefix.
type JSONStore struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// NewJSONStore returns a store writing keys as prefix+key with the given TTL.
func NewJSONStore(rdb *redis.Client, prefix string, ttl time.Duration) *JSONStore {
	return &JSONStore{rdb: rdb, prefix: prefix, ttl: ttl}
}

// Load decodes the cached value into dst. found is false on a cache miss.
func (s *JSONStore) Load(c context.Context, key string, dst any) (bool, error) {
	raw, err := s.rdb.Get(c, s.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("decode cached %s: %w", key, err)
	}
	return true, nil
}

// Store encodes v and writes it with the store TTL.
func (s *JSONStore) Store(c context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.rdb.Set(c, s.prefix+key, raw, s.ttl).Err()
}
