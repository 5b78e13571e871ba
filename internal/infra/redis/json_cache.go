package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// JSONCache stores JSON documents under a key prefix with a fixed TTL.
type JSONCache struct {
	client RedisClient
	prefix string
	ttl    time.Duration
}

func NewJSONCache(client RedisClient, prefix string, ttl time.Duration) *JSONCache {
	return &JSONCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *JSONCache) key(k string) string { return c.prefix + ":" + k }

// Get decodes the cached value into dst. It reports false on a miss, on a
// redis error and on undecodable content.
func (c *JSONCache) Get(ctx context.Context, k string, dst interface{}) (bool, error) {
	raw, err := c.client.Get(ctx, c.key(k))
	if errors.Is(err, Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return false, nil
	}
	return true, nil
}

func (c *JSONCache) Set(ctx context.Context, k string, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(k), b, c.ttl)
}

func (c *JSONCache) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.key(k)
	}
	return c.client.Del(ctx, full...)
}
