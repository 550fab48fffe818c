package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/wyfcoding/pkg/logging"
	"github.com/wyfcoding/portfoliorisk/internal/risk/domain"
)

const defaultStatsTTL = 5 * time.Minute

// CachedMarketStats 市场统计数据的读穿透缓存
// Redis 不可用时直接回源，缓存故障不影响评估
type CachedMarketStats struct {
	next   domain.MarketStatsProvider
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewCachedMarketStats 创建缓存数据源，ttl <= 0 时使用 5 分钟
func NewCachedMarketStats(next domain.MarketStatsProvider, client redis.UniversalClient, ttl time.Duration) *CachedMarketStats {
	if ttl <= 0 {
		ttl = defaultStatsTTL
	}
	return &CachedMarketStats{
		next:   next,
		client: client,
		prefix: "risk:",
		ttl:    ttl,
	}
}

func (c *CachedMarketStats) GetReturns(ctx context.Context, portfolioID string) ([]float64, error) {
	key := fmt.Sprintf("%sreturns:%s", c.prefix, portfolioID)
	return readThrough(ctx, c, key, func() ([]float64, error) {
		return c.next.GetReturns(ctx, portfolioID)
	})
}

func (c *CachedMarketStats) GetBenchmarkReturns(ctx context.Context, symbol string) ([]float64, error) {
	key := fmt.Sprintf("%sbenchmark:%s", c.prefix, symbol)
	return readThrough(ctx, c, key, func() ([]float64, error) {
		return c.next.GetBenchmarkReturns(ctx, symbol)
	})
}

func (c *CachedMarketStats) GetAverageVolume(ctx context.Context, symbol string) (float64, error) {
	key := fmt.Sprintf("%sadv:%s", c.prefix, symbol)
	return readThrough(ctx, c, key, func() (float64, error) {
		return c.next.GetAverageVolume(ctx, symbol)
	})
}

func (c *CachedMarketStats) GetBeta(ctx context.Context, symbol string) (float64, error) {
	key := fmt.Sprintf("%sbeta:%s", c.prefix, symbol)
	return readThrough(ctx, c, key, func() (float64, error) {
		return c.next.GetBeta(ctx, symbol)
	})
}

func readThrough[T any](ctx context.Context, c *CachedMarketStats, key string, load func() (T, error)) (T, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var v T
		if err := json.Unmarshal(data, &v); err == nil {
			return v, nil
		}
		logging.Warn(ctx, "discarding corrupt market stats cache entry", "key", key)
	case !errors.Is(err, redis.Nil):
		logging.Warn(ctx, "market stats cache unavailable", "key", key, "error", err)
	}

	v, err := load()
	if err != nil {
		return v, err
	}
	if data, err := json.Marshal(v); err == nil {
		if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
			logging.Warn(ctx, "failed to cache market stats", "key", key, "error", err)
		}
	}
	return v, nil
}
