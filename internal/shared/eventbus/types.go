// Package eventbus 事件总线类型定义
package eventbus

import (
	"time"
)

// ============================================================================
// 事件类型
// ============================================================================

// EventType 事件类型
type EventType string

const (
	EventPhaseChanged     EventType = "phase_changed"
	EventAgentStarted     EventType = "agent_started"
	EventAgentCompleted   EventType = "agent_completed"
	EventAgentFailed      EventType = "agent_failed"
	EventDocumentStatus   EventType = "document_status"
	EventBatchStarted     EventType = "batch_started"
	EventCheckpoint       EventType = "checkpoint_created"
	EventRefinementPass   EventType = "refinement_pass"
	EventConversationDone EventType = "conversation_completed"
	EventError            EventType = "error"
)

// ConversationEvent 会话进度事件
type ConversationEvent struct {
	ID        string                 `json:"id"`
	Seq       int                    `json:"seq"`
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// ============================================================================
// Key 前缀和常量
// ============================================================================

const (
	// KeyConversationEvents Stream key 前缀
	KeyConversationEvents = "conversation_events:"

	// MaxStreamLength Stream 最大长度
	MaxStreamLength = 1000

	// TTLConversationEvents 事件流保留时间
	TTLConversationEvents = 24 * time.Hour
)
