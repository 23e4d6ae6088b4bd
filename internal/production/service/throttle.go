package service

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisThrottle 基于 SET NX 的冷却，多实例共享
type RedisThrottle struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisThrottle(rdb *redis.Client) *RedisThrottle {
	return &RedisThrottle{rdb: rdb, prefix: "printops:alert:"}
}

func (t *RedisThrottle) Allow(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return t.rdb.SetNX(ctx, t.prefix+key, time.Now().Unix(), ttl).Result()
}

func (t *RedisThrottle) Release(ctx context.Context, key string) error {
	return t.rdb.Del(ctx, t.prefix+key).Err()
}

// MemoryThrottle 单进程冷却
type MemoryThrottle struct {
	mu    sync.Mutex
	until map[string]time.Time
	now   func() time.Time
}

func NewMemoryThrottle() *MemoryThrottle {
	return &MemoryThrottle{until: make(map[string]time.Time), now: time.Now}
}

func (t *MemoryThrottle) Allow(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	if exp, ok := t.until[key]; ok && now.Before(exp) {
		return false, nil
	}
	t.until[key] = now.Add(ttl)
	return true, nil
}

func (t *MemoryThrottle) Release(ctx context.Context, key string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.until, key)
	return nil
}
