// Package redis Redis 会话状态存储实现
//
// Key 设计：
//   - conversation:{id}           会话状态 JSON，TTL 24h，每次写入刷新
//   - checkpoint:{id}:{ts}        检查点 JSON，TTL 7d
//   - checkpoints:{id}            检查点时间戳索引（ZSET，score = ts）
package redis

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"agentpm/internal/shared/statestore"
)

// Store Redis 会话状态存储
type Store struct {
	client *redis.Client
	opts   statestore.Options
}

var _ statestore.Store = (*Store)(nil)

// NewStoreFromURL 从 URL 创建 Redis 存储实例
func NewStoreFromURL(redisURL string, opts statestore.Options) (*Store, error) {
	o, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(o)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Printf("[Redis/StateStore] Connected to %s", o.Addr)
	return &Store{client: client, opts: opts.WithDefaults()}, nil
}

// NewStoreFromClient 从现有 Redis 客户端创建存储实例
func NewStoreFromClient(client *redis.Client, opts statestore.Options) *Store {
	return &Store{client: client, opts: opts.WithDefaults()}
}

// Close 关闭 Redis 连接
func (s *Store) Close() error {
	return s.client.Close()
}

// Client 返回底层 Redis 客户端
func (s *Store) Client() *redis.Client {
	return s.client
}
