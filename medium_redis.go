package sessionx

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "crctl"

// RedisMedium stores values as plain Redis strings under a key prefix.
type RedisMedium struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisMedium returns a medium using client. An empty prefix defaults to
// "crctl".
func NewRedisMedium(client redis.UniversalClient, prefix string) *RedisMedium {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisMedium{client: client, prefix: prefix}
}

// NewRedisMediumFromURL parses a redis:// URL and connects lazily.
func NewRedisMediumFromURL(url, prefix string) (*RedisMedium, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewRedisMedium(redis.NewClient(opts), prefix), nil
}

func (m *RedisMedium) key(name string) string {
	return m.prefix + ":" + name
}

// Get implements Medium.
func (m *RedisMedium) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := m.client.Get(ctx, m.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return v, true, nil
}

// Set implements Medium.
func (m *RedisMedium) Set(ctx context.Context, key, value string) error {
	if err := m.client.Set(ctx, m.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Delete implements Medium.
func (m *RedisMedium) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = m.key(k)
	}
	if err := m.client.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Close releases the underlying client.
func (m *RedisMedium) Close() error {
	return m.client.Close()
}
