package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
	"username-checker/internal/config"
)

// RateLimiter 速率限制器接口
type RateLimiter interface {
	Allow(key string) bool
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// TokenBucketLimiter 按客户端划分的令牌桶限制器
//
// 空闲超过 idleTimeout 的客户端桶会在后续请求中被清理，
// 被清理的客户端再次出现时从满桶开始。
type TokenBucketLimiter struct {
	limit       rate.Limit
	burst       int
	idleTimeout time.Duration
	now         func() time.Time

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

// NewTokenBucketLimiter 创建令牌桶限制器
func NewTokenBucketLimiter(cfg config.RateLimitConfig) *TokenBucketLimiter {
	return &TokenBucketLimiter{
		limit:       rate.Limit(cfg.RequestsPerSecond),
		burst:       cfg.Burst,
		idleTimeout: cfg.IdleTimeout,
		now:         time.Now,
		buckets:     make(map[string]*bucket),
		lastSweep:   time.Now(),
	}
}

// Allow 检查是否允许请求
func (tbl *TokenBucketLimiter) Allow(key string) bool {
	now := tbl.now()

	tbl.mu.Lock()
	if tbl.idleTimeout > 0 && now.Sub(tbl.lastSweep) >= tbl.idleTimeout {
		tbl.sweep(now)
	}
	b, exists := tbl.buckets[key]
	if !exists {
		b = &bucket{limiter: rate.NewLimiter(tbl.limit, tbl.burst)}
		tbl.buckets[key] = b
	}
	b.lastSeen = now
	tbl.mu.Unlock()

	return b.limiter.AllowN(now, 1)
}

// sweep 删除空闲超时的桶，调用方需持有锁
func (tbl *TokenBucketLimiter) sweep(now time.Time) {
	for key, b := range tbl.buckets {
		if now.Sub(b.lastSeen) >= tbl.idleTimeout {
			delete(tbl.buckets, key)
		}
	}
	tbl.lastSweep = now
}
