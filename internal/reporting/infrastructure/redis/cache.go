package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"claim-batch/internal/config"
	reporting "claim-batch/internal/reporting/domain"
)

const defaultPrefix = "claimbatch:"

// ReportCache stores raw report rows as JSON in Redis.
type ReportCache struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

// CacheOption configures a ReportCache.
type CacheOption func(*ReportCache)

// WithPrefix overrides the key prefix.
func WithPrefix(prefix string) CacheOption {
	return func(c *ReportCache) { c.prefix = prefix }
}

// NewReportCache constructs a cache over client.
func NewReportCache(client redis.Cmdable, ttl time.Duration, opts ...CacheOption) (*ReportCache, error) {
	if client == nil {
		return nil, errors.New("report cache: nil client")
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	c := &ReportCache{client: client, prefix: defaultPrefix, ttl: ttl}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// NewClient opens a Redis client from configuration and pings it.
func NewClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// Get returns cached rows for key; ok is false on a miss.
func (c *ReportCache) Get(ctx context.Context, key string) ([]reporting.Row, bool, error) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("report cache get: %w", err)
	}
	var rows []reporting.Row
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, false, fmt.Errorf("report cache decode: %w", err)
	}
	return rows, true, nil
}

// Set stores rows under key with the configured TTL.
func (c *ReportCache) Set(ctx context.Context, key string, rows []reporting.Row) error {
	data, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("report cache encode: %w", err)
	}
	if err := c.client.Set(ctx, c.prefix+key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("report cache set: %w", err)
	}
	return nil
}
