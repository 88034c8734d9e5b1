// Package eventbus 事件总线抽象接口
//
// 会话进度事件（阶段变化、专家状态、文档状态、错误）的发布/订阅，
// 当前由 Redis Streams 实现。核心流程只通过 Notifier 发布，不依赖其结果。
package eventbus

import (
	"context"
)

// ============================================================================
// 事件总线接口定义
// ============================================================================

// ConversationEventBus 会话事件总线接口
type ConversationEventBus interface {
	PublishEvent(ctx context.Context, conversationID string, event *ConversationEvent) error
	GetEvents(ctx context.Context, conversationID string, fromID string, count int64) ([]*ConversationEvent, error)
	GetEventCount(ctx context.Context, conversationID string) (int64, error)
	SubscribeEvents(ctx context.Context, conversationID string) (<-chan *ConversationEvent, error)
	DeleteEvents(ctx context.Context, conversationID string) error
}

// EventBus 事件总线组合接口
type EventBus interface {
	ConversationEventBus
	Close() error
}
