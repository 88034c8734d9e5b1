package eventbus

import (
	"context"
	"log"
	"time"
)

// Notifier 发布即忘的事件出口
//
// 发布失败只记录日志，调用方不感知。bus 为 nil 时所有调用为空操作。
type Notifier struct {
	bus     EventBus
	timeout time.Duration
	now     func() time.Time
}

// NewNotifier 创建 Notifier
func NewNotifier(bus EventBus) *Notifier {
	return &Notifier{bus: bus, timeout: 2 * time.Second, now: time.Now}
}

// Notify 发布事件
func (n *Notifier) Notify(ctx context.Context, conversationID string, typ EventType, data map[string]interface{}) {
	if n == nil || n.bus == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
	defer cancel()

	event := &ConversationEvent{Type: typ, Timestamp: n.now(), Data: data}
	if err := n.bus.PublishEvent(ctx, conversationID, event); err != nil {
		log.Printf("[EventBus] WARNING: publish %s for %s failed: %v", typ, conversationID, err)
	}
}

// PhaseChanged 阶段变化
func (n *Notifier) PhaseChanged(ctx context.Context, conversationID, from, to string) {
	n.Notify(ctx, conversationID, EventPhaseChanged, map[string]interface{}{"from": from, "to": to})
}

// AgentStatus 专家执行状态
func (n *Notifier) AgentStatus(ctx context.Context, conversationID, agentID string, typ EventType, detail string) {
	data := map[string]interface{}{"agent": agentID}
	if detail != "" {
		data["detail"] = detail
	}
	n.Notify(ctx, conversationID, typ, data)
}

// Error 错误事件
func (n *Notifier) Error(ctx context.Context, conversationID, source string, err error) {
	n.Notify(ctx, conversationID, EventError, map[string]interface{}{"source": source, "error": err.Error()})
}
