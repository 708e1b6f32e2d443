package counter

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"username-checker/internal/config"
	"username-checker/internal/logger"
)

// Store 维护计数器存储接口
//
// Incr 必须是原子的"加一并读取"，并发的 maintenance 请求依赖它保证周期准确。
type Store interface {
	Incr(ctx context.Context) (int64, error)
	Get(ctx context.Context) (int64, error)
	Reset(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// MemoryStore 进程内计数器，进程重启后归零
type MemoryStore struct {
	value atomic.Int64
}

// NewMemoryStore 创建内存计数器
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Incr 原子递增计数器并返回新值
func (m *MemoryStore) Incr(ctx context.Context) (int64, error) {
	return m.value.Add(1), nil
}

// Get 获取当前计数
func (m *MemoryStore) Get(ctx context.Context) (int64, error) {
	return m.value.Load(), nil
}

// Reset 将计数器归零
func (m *MemoryStore) Reset(ctx context.Context) error {
	m.value.Store(0)
	return nil
}

// Ping 内存计数器始终可用
func (m *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Close 内存计数器无需释放资源
func (m *MemoryStore) Close() error {
	return nil
}

// RedisStore Redis计数器，多个实例共享同一维护周期
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore 创建Redis计数器
//
// 启动时清空计数键，使计数器与内存实现一样在进程启动时从 0 开始。
func NewRedisStore(cfg config.RedisConfig, key string) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("连接Redis失败: %w", err)
	}

	store := &RedisStore{client: rdb, key: key}
	if err := store.Reset(ctx); err != nil {
		rdb.Close()
		return nil, err
	}

	logger.WithField("key", key).Info("Redis计数器连接成功")
	return store, nil
}

// Incr 通过 INCR 递增计数器并返回新值
func (r *RedisStore) Incr(ctx context.Context) (int64, error) {
	n, err := r.client.Incr(ctx, r.key).Result()
	if err != nil {
		return 0, fmt.Errorf("递增计数器失败: %w", err)
	}
	return n, nil
}

// Get 获取当前计数，键不存在时返回 0
func (r *RedisStore) Get(ctx context.Context) (int64, error) {
	val, err := r.client.Get(ctx, r.key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("读取计数器失败: %w", err)
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("解析计数器失败: %w", err)
	}
	return n, nil
}

// Reset 删除计数键
func (r *RedisStore) Reset(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("重置计数器失败: %w", err)
	}
	return nil
}

// Ping 检查Redis连接
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close 关闭Redis连接
func (r *RedisStore) Close() error {
	return r.client.Close()
}

// New 按配置创建计数器，Redis 不可用时退回内存实现
func New(cfg *config.Config) Store {
	if cfg.Counter.Backend != config.RedisBackend {
		return NewMemoryStore()
	}

	store, err := NewRedisStore(cfg.Redis, cfg.Counter.Key)
	if err != nil {
		logger.Warnf("Redis连接失败，使用内存计数器: %v", err)
		return NewMemoryStore()
	}
	return store
}
