package marketdata

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"

	"gopherbook.com/pkg/metrics"
	"gopherbook.com/pkg/ratelimit"
)

// ErrCacheMiss 缓存里没有该品种的快照
var ErrCacheMiss = errors.New("book snapshot not cached")

// Cache 最新盘口快照的缓存，value 是编码好的 JSON
type Cache interface {
	SetBook(ctx context.Context, symbol string, payload []byte) error
	GetBook(ctx context.Context, symbol string) ([]byte, error)
}

type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	cb     *ratelimit.Manager
}

// NewRedisCache cb 为 nil 时不走熔断
func NewRedisCache(c *redis.Client, ttl time.Duration, cb *ratelimit.Manager) *RedisCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisCache{client: c, ttl: ttl, cb: cb}
}

func (r *RedisCache) SetBook(ctx context.Context, symbol string, payload []byte) error {
	return r.do("redis:set", func() error {
		start := time.Now()
		// 加入随机时间 防止同时过期
		err := r.client.Set(ctx, BookTopic(symbol), payload, withJitter(r.ttl, 300*time.Millisecond)).Err()
		observe("set", "stored", start, err)
		return err
	})
}

func (r *RedisCache) GetBook(ctx context.Context, symbol string) ([]byte, error) {
	var (
		b    []byte
		miss bool
	)
	err := r.do("redis:get", func() error {
		start := time.Now()
		v, err := r.client.Get(ctx, BookTopic(symbol)).Bytes()
		if errors.Is(err, redis.Nil) {
			// 未命中不算依赖故障
			observe("get", "miss", start, nil)
			miss = true
			return nil
		}
		observe("get", "hit", start, err)
		b = v
		return err
	})
	if err != nil {
		return nil, err
	}
	if miss {
		return nil, ErrCacheMiss
	}
	return b, nil
}

func (r *RedisCache) do(name string, fn func() error) error {
	if r.cb == nil {
		return fn()
	}
	return r.cb.Execute(name, fn)
}

// observe result 是成功时的结果，err 非空时记为 error
func observe(cmd, result string, start time.Time, err error) {
	if err != nil {
		result = "error"
		metrics.SnapshotCacheErrors.WithLabelValues(cmd).Inc()
	}
	metrics.SnapshotCacheSeconds.WithLabelValues(cmd, result).Observe(time.Since(start).Seconds())
}

func withJitter(ttl time.Duration, jitter time.Duration) time.Duration {
	if ttl <= 0 || jitter <= 0 {
		return ttl
	}
	return ttl + time.Duration(rand.Int63n(int64(jitter)))
}
