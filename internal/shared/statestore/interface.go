// Package statestore 会话状态存储
//
// 以会话 ID 为键保存 ConversationState，带有按不活跃时间计算的过期窗口，
// 并支持时间点快照（检查点）与恢复。
//
// 实现：
//   - redis：主存储（SET EX + ZSET 检查点索引）
//   - etcd：备选存储（lease 控制过期）
//   - MemoryStore：降级模式与测试使用
//   - FallbackStore：为任意实现附加文件系统检查点副本
package statestore

import (
	"context"
	"errors"
	"log"

	"agentpm/internal/shared/model"
)

// ErrNotFound 会话或检查点不存在（含已过期）
var ErrNotFound = errors.New("statestore: not found")

// Store 会话状态存储接口
type Store interface {
	// SaveState 保存会话状态，并刷新过期时间
	SaveState(ctx context.Context, state *model.ConversationState) error

	// LoadState 加载会话状态，不存在时返回 ErrNotFound
	LoadState(ctx context.Context, conversationID string) (*model.ConversationState, error)

	// DeleteState 删除会话状态（检查点保留）
	DeleteState(ctx context.Context, conversationID string) error

	// CreateCheckpoint 创建检查点，时间戳在同一会话内单调递增
	CreateCheckpoint(ctx context.Context, state *model.ConversationState) (*model.Checkpoint, error)

	// LatestCheckpoint 最新检查点，不存在时返回 ErrNotFound
	LatestCheckpoint(ctx context.Context, conversationID string) (*model.Checkpoint, error)

	// GetCheckpoint 指定时间戳的检查点
	GetCheckpoint(ctx context.Context, conversationID string, timestamp int64) (*model.Checkpoint, error)

	// ListCheckpoints 按时间升序返回检查点时间戳
	ListCheckpoints(ctx context.Context, conversationID string) ([]int64, error)

	// Close 关闭连接
	Close() error
}

// Restore 从检查点恢复会话状态并写回存储
// 写回失败只记录日志，仍返回恢复的状态。
// timestamp 为 0 时使用最新检查点
func Restore(ctx context.Context, s Store, conversationID string, timestamp int64) (*model.ConversationState, error) {
	var (
		cp  *model.Checkpoint
		err error
	)
	if timestamp == 0 {
		cp, err = s.LatestCheckpoint(ctx, conversationID)
	} else {
		cp, err = s.GetCheckpoint(ctx, conversationID, timestamp)
	}
	if err != nil {
		return nil, err
	}
	if cp.State == nil {
		return nil, ErrNotFound
	}
	state := cp.State.Clone()
	if err := s.SaveState(ctx, state); err != nil {
		// 主存储不可达时仍返回恢复的状态，由调用方以仅缓存方式继续
		log.Printf("[StateStore] WARNING: restored %s from checkpoint ts=%d but write-back failed: %v",
			conversationID, cp.Timestamp, err)
	}
	return state, nil
}
