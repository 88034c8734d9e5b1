package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"agentpm/internal/shared/model"
	"agentpm/internal/shared/statestore"
)

// CreateCheckpoint 创建检查点
func (s *Store) CreateCheckpoint(ctx context.Context, state *model.ConversationState) (*model.Checkpoint, error) {
	idxKey := statestore.CheckpointIndexKey(state.ID)

	var last int64
	latest, err := s.client.ZRevRangeWithScores(ctx, idxKey, 0, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint index: %w", err)
	}
	if len(latest) > 0 {
		last = int64(latest[0].Score)
	}

	now := time.Now()
	cp := &model.Checkpoint{
		ConversationID: state.ID,
		Timestamp:      statestore.NextTimestamp(last, now),
		State:          state.Clone(),
	}
	data, err := json.Marshal(cp)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	// 检查点 key 各自过期，索引中同时剔除过期时间戳
	expiredBefore := statestore.NextTimestamp(0, now.Add(-s.opts.CheckpointTTL))

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, statestore.CheckpointKey(state.ID, cp.Timestamp), data, s.opts.CheckpointTTL)
	pipe.ZAdd(ctx, idxKey, redis.Z{Score: float64(cp.Timestamp), Member: strconv.FormatInt(cp.Timestamp, 10)})
	pipe.ZRemRangeByScore(ctx, idxKey, "-inf", "("+strconv.FormatInt(expiredBefore, 10))
	pipe.Expire(ctx, idxKey, s.opts.CheckpointTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to write checkpoint: %w", err)
	}

	log.Printf("[Redis/StateStore] Checkpoint created: %s ts=%d phase=%s", state.ID, cp.Timestamp, state.Phase)
	return cp, nil
}

// LatestCheckpoint 最新检查点
func (s *Store) LatestCheckpoint(ctx context.Context, conversationID string) (*model.Checkpoint, error) {
	members, err := s.client.ZRevRange(ctx, statestore.CheckpointIndexKey(conversationID), 0, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint index: %w", err)
	}
	if len(members) == 0 {
		return nil, statestore.ErrNotFound
	}
	ts, err := strconv.ParseInt(members[0], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid checkpoint member %q: %w", members[0], err)
	}
	return s.GetCheckpoint(ctx, conversationID, ts)
}

// GetCheckpoint 指定时间戳的检查点
func (s *Store) GetCheckpoint(ctx context.Context, conversationID string, timestamp int64) (*model.Checkpoint, error) {
	data, err := s.client.Get(ctx, statestore.CheckpointKey(conversationID, timestamp)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, statestore.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	var cp model.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	return &cp, nil
}

// ListCheckpoints 按时间升序返回检查点时间戳
func (s *Store) ListCheckpoints(ctx context.Context, conversationID string) ([]int64, error) {
	members, err := s.client.ZRange(ctx, statestore.CheckpointIndexKey(conversationID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	out := make([]int64, 0, len(members))
	for _, m := range members {
		ts, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, ts)
	}
	return out, nil
}
