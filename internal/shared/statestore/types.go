package statestore

import (
	"fmt"
	"time"
)

// ============================================================================
// Key 前缀和 TTL 常量
// ============================================================================

const (
	KeyConversation    = "conversation:"
	KeyCheckpoint      = "checkpoint:"
	KeyCheckpointIndex = "checkpoints:"
)

const (
	// TTLConversation 会话状态不活跃保留时间，每次写入刷新
	TTLConversation = 24 * time.Hour
	// TTLCheckpoint 检查点保留时间
	TTLCheckpoint = 7 * 24 * time.Hour
)

// Options 存储保留策略
type Options struct {
	StateTTL      time.Duration
	CheckpointTTL time.Duration
}

// DefaultOptions 默认保留策略
func DefaultOptions() Options {
	return Options{StateTTL: TTLConversation, CheckpointTTL: TTLCheckpoint}
}

// WithDefaults 零值字段使用默认值
func (o Options) WithDefaults() Options {
	if o.StateTTL <= 0 {
		o.StateTTL = TTLConversation
	}
	if o.CheckpointTTL <= 0 {
		o.CheckpointTTL = TTLCheckpoint
	}
	return o
}

// ConversationKey conversation:{id}
func ConversationKey(id string) string {
	return KeyConversation + id
}

// CheckpointKey checkpoint:{id}:{ts}
func CheckpointKey(id string, ts int64) string {
	return fmt.Sprintf("%s%s:%d", KeyCheckpoint, id, ts)
}

// CheckpointIndexKey checkpoints:{id}
func CheckpointIndexKey(id string) string {
	return KeyCheckpointIndex + id
}

// NextTimestamp 生成单调递增的检查点时间戳（UnixMicro）
func NextTimestamp(last int64, now time.Time) int64 {
	ts := now.UnixMicro()
	if ts <= last {
		ts = last + 1
	}
	return ts
}
