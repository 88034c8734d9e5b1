package statestore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"agentpm/internal/shared/model"
)

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// MemoryStore 进程内存储
//
// 主存储不可用时的降级实现，也用于测试。值以 JSON 快照保存，
// 与 Redis 实现保持相同的拷贝语义。
type MemoryStore struct {
	mu          sync.Mutex
	opts        Options
	now         func() time.Time
	states      map[string]memoryEntry
	checkpoints map[string]map[int64]memoryEntry
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore 创建内存存储
func NewMemoryStore(opts Options) *MemoryStore {
	return &MemoryStore{
		opts:        opts.WithDefaults(),
		now:         time.Now,
		states:      make(map[string]memoryEntry),
		checkpoints: make(map[string]map[int64]memoryEntry),
	}
}

// SetClock 替换时钟，测试使用
func (m *MemoryStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *MemoryStore) SaveState(_ context.Context, state *model.ConversationState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[state.ID] = memoryEntry{data: data, expiresAt: m.now().Add(m.opts.StateTTL)}
	return nil
}

func (m *MemoryStore) LoadState(_ context.Context, conversationID string) (*model.ConversationState, error) {
	m.mu.Lock()
	entry, ok := m.states[conversationID]
	if ok && !m.now().Before(entry.expiresAt) {
		delete(m.states, conversationID)
		ok = false
	}
	m.mu.Unlock()

	if !ok {
		return nil, ErrNotFound
	}
	var state model.ConversationState
	if err := json.Unmarshal(entry.data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return &state, nil
}

func (m *MemoryStore) DeleteState(_ context.Context, conversationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, conversationID)
	return nil
}

func (m *MemoryStore) CreateCheckpoint(_ context.Context, state *model.ConversationState) (*model.Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.pruneLocked(state.ID, now)

	byTS := m.checkpoints[state.ID]
	if byTS == nil {
		byTS = make(map[int64]memoryEntry)
		m.checkpoints[state.ID] = byTS
	}
	var last int64
	for ts := range byTS {
		if ts > last {
			last = ts
		}
	}

	cp := &model.Checkpoint{
		ConversationID: state.ID,
		Timestamp:      NextTimestamp(last, now),
		State:          state.Clone(),
	}
	data, err := json.Marshal(cp)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal checkpoint: %w", err)
	}
	byTS[cp.Timestamp] = memoryEntry{data: data, expiresAt: now.Add(m.opts.CheckpointTTL)}
	return cp, nil
}

func (m *MemoryStore) LatestCheckpoint(ctx context.Context, conversationID string) (*model.Checkpoint, error) {
	list, err := m.ListCheckpoints(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, ErrNotFound
	}
	return m.GetCheckpoint(ctx, conversationID, list[len(list)-1])
}

func (m *MemoryStore) GetCheckpoint(_ context.Context, conversationID string, timestamp int64) (*model.Checkpoint, error) {
	m.mu.Lock()
	m.pruneLocked(conversationID, m.now())
	entry, ok := m.checkpoints[conversationID][timestamp]
	m.mu.Unlock()

	if !ok {
		return nil, ErrNotFound
	}
	var cp model.Checkpoint
	if err := json.Unmarshal(entry.data, &cp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	return &cp, nil
}

func (m *MemoryStore) ListCheckpoints(_ context.Context, conversationID string) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruneLocked(conversationID, m.now())

	out := make([]int64, 0, len(m.checkpoints[conversationID]))
	for ts := range m.checkpoints[conversationID] {
		out = append(out, ts)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (m *MemoryStore) Close() error {
	return nil
}

// pruneLocked 清理已过期的检查点，调用方持有锁
func (m *MemoryStore) pruneLocked(conversationID string, now time.Time) {
	for ts, entry := range m.checkpoints[conversationID] {
		if !now.Before(entry.expiresAt) {
			delete(m.checkpoints[conversationID], ts)
		}
	}
}
