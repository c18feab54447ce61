// Package rediscache кеширует результаты аналитики продаж в Redis.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const keyPrefix = "storefront:"

// New создаёт клиента Redis.
func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
}

// StatsCache хранит domain.SalesStats как JSON.
type StatsCache struct {
	rdb redis.Cmdable
}

// NewStatsCache создаёт кеш поверх клиента.
func NewStatsCache(rdb redis.Cmdable) *StatsCache {
	return &StatsCache{rdb: rdb}
}

// Get возвращает закешированный результат; отсутствие ключа не ошибка.
func (c *StatsCache) Get(ctx context.Context, key string) (domain.SalesStats, bool, error) {
	raw, err := c.rdb.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.SalesStats{}, false, nil
	}
	if err != nil {
		return domain.SalesStats{}, false, fmt.Errorf("redis get %s: %w", key, err)
	}

	var stats domain.SalesStats
	if err := json.Unmarshal(raw, &stats); err != nil {
		return domain.SalesStats{}, false, fmt.Errorf("decode cached stats %s: %w", key, err)
	}
	return stats, true, nil
}

// Set сохраняет результат на ttl.
func (c *StatsCache) Set(ctx context.Context, key string, stats domain.SalesStats, ttl time.Duration) error {
	raw, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("encode stats: %w", err)
	}
	if err := c.rdb.Set(ctx, keyPrefix+key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Ping проверяет доступность Redis; используется проверкой готовности.
func Ping(rdb redis.Cmdable) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}
}
