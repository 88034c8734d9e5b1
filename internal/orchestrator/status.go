package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"agentpm/internal/agent"
	"agentpm/internal/router"
	"agentpm/internal/shared/model"
	"agentpm/internal/shared/statestore"
)

// Source 状态来源
type Source string

const (
	SourceCache Source = "cache" // 活跃缓存
	SourceStore Source = "store" // 仅在持久存储中，继续对话会触发加载
)

// StatusView 会话状态视图
type StatusView struct {
	ConversationID     string                   `json:"conversation_id"`
	Kind               model.ConversationKind   `json:"kind"`
	Phase              model.Phase              `json:"phase"`
	Status             model.ConversationStatus `json:"status"`
	Source             Source                   `json:"source"`
	AgentsConsulted    []string                 `json:"agents_consulted"`
	DocumentsGenerated []string                 `json:"documents_generated"`
	QuestionsAnswered  int                      `json:"questions_answered"`
	MessageCount       int                      `json:"message_count"`
	Counters           model.Counters           `json:"counters"`
	// NextAgent 路由器建议的下一位专家，为空表示无需委派
	NextAgent string    `json:"next_agent,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Status 查询会话状态，无副作用（不加载进缓存、不恢复检查点）
func (o *Orchestrator) Status(ctx context.Context, conversationID string) (*StatusView, error) {
	o.mu.Lock()
	conv, ok := o.active[conversationID]
	o.mu.Unlock()
	if ok {
		conv.mu.Lock()
		defer conv.mu.Unlock()
		return o.view(conv.state, SourceCache), nil
	}

	state, err := o.store.LoadState(ctx, conversationID)
	if err != nil {
		if errors.Is(err, statestore.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrConversationNotFound, conversationID)
		}
		return nil, fmt.Errorf("load %s: %w", conversationID, err)
	}
	return o.view(state, SourceStore), nil
}

func (o *Orchestrator) view(state *model.ConversationState, src Source) *StatusView {
	v := &StatusView{
		ConversationID:     state.ID,
		Kind:               state.Kind,
		Phase:              state.Phase,
		Status:             state.Status,
		Source:             src,
		AgentsConsulted:    append([]string(nil), state.AgentsConsulted...),
		DocumentsGenerated: append([]string(nil), state.DocumentsGenerated...),
		QuestionsAnswered:  state.QuestionsAnswered,
		MessageCount:       len(state.Messages),
		Counters:           state.Counters,
		UpdatedAt:          state.UpdatedAt,
	}
	if d := o.router.SuggestNext(agent.Orchestrator, router.ContextFromState(state)); d != nil {
		v.NextAgent = d.Target
	}
	return v
}
