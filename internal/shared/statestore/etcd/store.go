// Package etcd etcd 会话状态存储实现
//
// 过期通过 lease 实现：每次写入申请新的 lease，TTL 即保留窗口。
//
//	{prefix}/conversations/{id}
//	{prefix}/checkpoints/{id}/{ts:020d}
package etcd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"path"
	"strconv"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"agentpm/internal/shared/model"
	"agentpm/internal/shared/statestore"
)

// Store etcd 会话状态存储
type Store struct {
	client *clientv3.Client
	prefix string
	opts   statestore.Options
}

var _ statestore.Store = (*Store)(nil)

// Config etcd 配置
type Config struct {
	Endpoints   []string
	DialTimeout time.Duration
	Prefix      string
}

// NewStore 创建 etcd 存储客户端
func NewStore(cfg Config, opts statestore.Options) (*Store, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("etcd endpoints are required")
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "/agentpm"
	}

	client, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.DialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to etcd: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if _, err := client.Status(ctx, cfg.Endpoints[0]); err != nil {
		client.Close()
		return nil, fmt.Errorf("etcd health check failed: %w", err)
	}

	log.Printf("[etcd/StateStore] Connected to %v", cfg.Endpoints)
	return &Store{client: client, prefix: cfg.Prefix, opts: opts.WithDefaults()}, nil
}

// Close 关闭连接
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) stateKey(id string) string {
	return path.Join(s.prefix, "conversations", id)
}

func (s *Store) checkpointPrefix(id string) string {
	return path.Join(s.prefix, "checkpoints", id) + "/"
}

func (s *Store) checkpointKey(id string, ts int64) string {
	return fmt.Sprintf("%s%020d", s.checkpointPrefix(id), ts)
}

// putWithTTL 申请 lease 后写入
func (s *Store) putWithTTL(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	lease, err := s.client.Grant(ctx, int64(ttl.Seconds()))
	if err != nil {
		return fmt.Errorf("failed to create lease: %w", err)
	}
	if _, err := s.client.Put(ctx, key, string(data), clientv3.WithLease(lease.ID)); err != nil {
		return fmt.Errorf("failed to put %s: %w", key, err)
	}
	return nil
}

// SaveState 保存会话状态
func (s *Store) SaveState(ctx context.Context, state *model.ConversationState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	return s.putWithTTL(ctx, s.stateKey(state.ID), data, s.opts.StateTTL)
}

// LoadState 加载会话状态
func (s *Store) LoadState(ctx context.Context, conversationID string) (*model.ConversationState, error) {
	resp, err := s.client.Get(ctx, s.stateKey(conversationID))
	if err != nil {
		return nil, fmt.Errorf("failed to get state: %w", err)
	}
	if len(resp.Kvs) == 0 {
		return nil, statestore.ErrNotFound
	}
	var state model.ConversationState
	if err := json.Unmarshal(resp.Kvs[0].Value, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return &state, nil
}

// DeleteState 删除会话状态
func (s *Store) DeleteState(ctx context.Context, conversationID string) error {
	_, err := s.client.Delete(ctx, s.stateKey(conversationID))
	return err
}

// CreateCheckpoint 创建检查点
func (s *Store) CreateCheckpoint(ctx context.Context, state *model.ConversationState) (*model.Checkpoint, error) {
	var last int64
	resp, err := s.client.Get(ctx, s.checkpointPrefix(state.ID),
		clientv3.WithPrefix(),
		clientv3.WithSort(clientv3.SortByKey, clientv3.SortDescend),
		clientv3.WithLimit(1),
		clientv3.WithKeysOnly(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoints: %w", err)
	}
	if len(resp.Kvs) > 0 {
		last = s.parseTimestamp(state.ID, string(resp.Kvs[0].Key))
	}

	cp := &model.Checkpoint{
		ConversationID: state.ID,
		Timestamp:      statestore.NextTimestamp(last, time.Now()),
		State:          state.Clone(),
	}
	data, err := json.Marshal(cp)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal checkpoint: %w", err)
	}
	if err := s.putWithTTL(ctx, s.checkpointKey(state.ID, cp.Timestamp), data, s.opts.CheckpointTTL); err != nil {
		return nil, err
	}

	log.Printf("[etcd/StateStore] Checkpoint created: %s ts=%d", state.ID, cp.Timestamp)
	return cp, nil
}

// LatestCheckpoint 最新检查点
func (s *Store) LatestCheckpoint(ctx context.Context, conversationID string) (*model.Checkpoint, error) {
	resp, err := s.client.Get(ctx, s.checkpointPrefix(conversationID),
		clientv3.WithPrefix(),
		clientv3.WithSort(clientv3.SortByKey, clientv3.SortDescend),
		clientv3.WithLimit(1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get checkpoint: %w", err)
	}
	if len(resp.Kvs) == 0 {
		return nil, statestore.ErrNotFound
	}
	return decodeCheckpoint(resp.Kvs[0].Value)
}

// GetCheckpoint 指定时间戳的检查点
func (s *Store) GetCheckpoint(ctx context.Context, conversationID string, timestamp int64) (*model.Checkpoint, error) {
	resp, err := s.client.Get(ctx, s.checkpointKey(conversationID, timestamp))
	if err != nil {
		return nil, fmt.Errorf("failed to get checkpoint: %w", err)
	}
	if len(resp.Kvs) == 0 {
		return nil, statestore.ErrNotFound
	}
	return decodeCheckpoint(resp.Kvs[0].Value)
}

// ListCheckpoints 按时间升序返回检查点时间戳
func (s *Store) ListCheckpoints(ctx context.Context, conversationID string) ([]int64, error) {
	resp, err := s.client.Get(ctx, s.checkpointPrefix(conversationID),
		clientv3.WithPrefix(),
		clientv3.WithSort(clientv3.SortByKey, clientv3.SortAscend),
		clientv3.WithKeysOnly(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	out := make([]int64, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		if ts := s.parseTimestamp(conversationID, string(kv.Key)); ts > 0 {
			out = append(out, ts)
		}
	}
	return out, nil
}

func (s *Store) parseTimestamp(conversationID, key string) int64 {
	ts, err := strconv.ParseInt(key[len(s.checkpointPrefix(conversationID)):], 10, 64)
	if err != nil {
		return 0
	}
	return ts
}

func decodeCheckpoint(data []byte) (*model.Checkpoint, error) {
	var cp model.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	return &cp, nil
}
