// Package eventbus 事件总线 mock 实现
package eventbus

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// ============================================================================
// NoOpEventBus - 空操作的 EventBus 实现
// ============================================================================

// NoOpEventBus 是一个不做任何操作的 EventBus 实现
type NoOpEventBus struct{}

// NewNoOpEventBus 创建 NoOpEventBus 实例
func NewNoOpEventBus() *NoOpEventBus {
	return &NoOpEventBus{}
}

func (e *NoOpEventBus) Close() error {
	return nil
}

func (e *NoOpEventBus) PublishEvent(ctx context.Context, conversationID string, event *ConversationEvent) error {
	return nil
}
func (e *NoOpEventBus) GetEvents(ctx context.Context, conversationID string, fromID string, count int64) ([]*ConversationEvent, error) {
	return []*ConversationEvent{}, nil
}
func (e *NoOpEventBus) GetEventCount(ctx context.Context, conversationID string) (int64, error) {
	return 0, nil
}
func (e *NoOpEventBus) SubscribeEvents(ctx context.Context, conversationID string) (<-chan *ConversationEvent, error) {
	ch := make(chan *ConversationEvent)
	close(ch)
	return ch, nil
}
func (e *NoOpEventBus) DeleteEvents(ctx context.Context, conversationID string) error {
	return nil
}

// ============================================================================
// MemoryEventBus - 进程内记录事件（降级模式与测试）
// ============================================================================

// MemoryEventBus 进程内事件总线，不支持订阅
type MemoryEventBus struct {
	mu     sync.Mutex
	events map[string][]*ConversationEvent
}

// NewMemoryEventBus 创建 MemoryEventBus 实例
func NewMemoryEventBus() *MemoryEventBus {
	return &MemoryEventBus{events: make(map[string][]*ConversationEvent)}
}

func (e *MemoryEventBus) Close() error {
	return nil
}

func (e *MemoryEventBus) PublishEvent(ctx context.Context, conversationID string, event *ConversationEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	list := e.events[conversationID]
	cp := *event
	cp.Seq = len(list) + 1
	cp.ID = strconv.Itoa(cp.Seq)
	if cp.Timestamp.IsZero() {
		cp.Timestamp = time.Now()
	}
	e.events[conversationID] = append(list, &cp)
	return nil
}

func (e *MemoryEventBus) GetEvents(ctx context.Context, conversationID string, fromID string, count int64) ([]*ConversationEvent, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	from, _ := strconv.Atoi(fromID)
	var out []*ConversationEvent
	for _, ev := range e.events[conversationID] {
		if ev.Seq <= from {
			continue
		}
		out = append(out, ev)
		if count > 0 && int64(len(out)) >= count {
			break
		}
	}
	if out == nil {
		out = []*ConversationEvent{}
	}
	return out, nil
}

func (e *MemoryEventBus) GetEventCount(ctx context.Context, conversationID string) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return int64(len(e.events[conversationID])), nil
}

func (e *MemoryEventBus) SubscribeEvents(ctx context.Context, conversationID string) (<-chan *ConversationEvent, error) {
	ch := make(chan *ConversationEvent)
	close(ch)
	return ch, nil
}

func (e *MemoryEventBus) DeleteEvents(ctx context.Context, conversationID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.events, conversationID)
	return nil
}

// Types 按顺序返回事件类型，测试使用
func (e *MemoryEventBus) Types(conversationID string) []EventType {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]EventType, 0, len(e.events[conversationID]))
	for _, ev := range e.events[conversationID] {
		out = append(out, ev.Type)
	}
	return out
}
