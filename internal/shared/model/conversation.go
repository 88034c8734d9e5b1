// Package model 定义核心数据模型
//
// conversation.go 包含会话相关的数据模型定义：
//   - Phase：会话阶段（只能前进）
//   - ConversationStatus：会话状态
//   - ConversationKind：会话类型（idea / feature / tool）
//   - ConversationState：一次完整的会话运行
//   - Message：会话消息（只追加）
//   - QAPair：问答对
package model

import (
	"slices"
	"time"
)

// ============================================================================
// Phase - 会话阶段
// ============================================================================

// Phase 会话阶段
//
// 阶段只能按 discovery → definition → review → completed 前进，
// 唯一的回退途径是显式的检查点恢复。
type Phase string

const (
	PhaseDiscovery  Phase = "discovery"  // 需求探索
	PhaseDefinition Phase = "definition" // 文档产出
	PhaseReview     Phase = "review"     // 评审
	PhaseCompleted  Phase = "completed"  // 已完成（终态）
)

var phaseOrder = []Phase{PhaseDiscovery, PhaseDefinition, PhaseReview, PhaseCompleted}

// Valid 是否为合法阶段
func (p Phase) Valid() bool {
	return slices.Contains(phaseOrder, p)
}

// Index 阶段序号，非法阶段返回 -1
func (p Phase) Index() int {
	return slices.Index(phaseOrder, p)
}

// Next 下一阶段，completed 的下一阶段仍为 completed
func (p Phase) Next() Phase {
	i := p.Index()
	if i < 0 || i+1 >= len(phaseOrder) {
		return PhaseCompleted
	}
	return phaseOrder[i+1]
}

// IsTerminal 是否为终态
func (p Phase) IsTerminal() bool {
	return p == PhaseCompleted
}

// ============================================================================
// ConversationStatus / ConversationKind
// ============================================================================

// ConversationStatus 会话状态
type ConversationStatus string

const (
	ConversationStatusActive    ConversationStatus = "active"
	ConversationStatusPaused    ConversationStatus = "paused"
	ConversationStatusCompleted ConversationStatus = "completed"
	ConversationStatusError     ConversationStatus = "error"
)

// ConversationKind 会话类型
//
// 决定各阶段参与的专家集合、默认文档集合以及阶段推进阈值。
type ConversationKind string

const (
	ConversationKindIdea    ConversationKind = "idea"    // 完整产品构想
	ConversationKindFeature ConversationKind = "feature" // 单个功能
	ConversationKindTool    ConversationKind = "tool"    // 范围较窄的小工具
)

// ParseConversationKind 解析会话类型，未知值按 idea 处理
func ParseConversationKind(s string) ConversationKind {
	switch ConversationKind(s) {
	case ConversationKindFeature:
		return ConversationKindFeature
	case ConversationKindTool:
		return ConversationKindTool
	default:
		return ConversationKindIdea
	}
}

// IsNarrow 是否为窄范围会话
func (k ConversationKind) IsNarrow() bool {
	return k == ConversationKindTool
}

// ============================================================================
// Message / QAPair
// ============================================================================

// Role 消息角色
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message 会话消息
//
// 消息只追加，不修改也不去重。
type Message struct {
	ID        string            `json:"id"`
	Role      Role              `json:"role"`
	Content   string            `json:"content"`
	AgentID   string            `json:"agent_id,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata"`
}

// QAPair 问答对，问题来自专家，回答来自用户
type QAPair struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	AgentID  string `json:"agent_id,omitempty"`
}

// Counters 会话计数器
type Counters struct {
	TokenUsage       int `json:"token_usage"`
	AgentInvocations int `json:"agent_invocations"`
	Errors           int `json:"errors"`
}

// ============================================================================
// ConversationState - 会话状态
// ============================================================================

// ConversationState 会话状态
//
// 由编排器独占写入（单写者），每次变更后持久化到 StateStore。
//
// 不变量：
//   - Phase 只前进
//   - AgentsConsulted 无重复
//   - Messages 只追加
type ConversationState struct {
	ID     string             `json:"id"`
	Kind   ConversationKind   `json:"kind"`
	Phase  Phase              `json:"phase"`
	Status ConversationStatus `json:"status"`

	Messages           []Message         `json:"messages"`
	AgentsConsulted    []string          `json:"agents_consulted"`
	DocumentsGenerated []string          `json:"documents_generated"`
	Drafts             map[string]string `json:"drafts"`
	Context            map[string]string `json:"context"`

	// QAPairs 与 QuestionsAnswered 驱动 discovery 阶段的退出条件
	QAPairs           []QAPair `json:"qa_pairs"`
	QuestionsAnswered int      `json:"questions_answered"`

	// Delegations 只追加的委派历史，用于环路检测
	Delegations []DelegationContext `json:"delegations"`

	Counters  Counters  `json:"counters"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewConversationState 创建处于 discovery 阶段的会话
func NewConversationState(id string, kind ConversationKind, now time.Time) *ConversationState {
	return &ConversationState{
		ID:                 id,
		Kind:               kind,
		Phase:              PhaseDiscovery,
		Status:             ConversationStatusActive,
		Messages:           []Message{},
		AgentsConsulted:    []string{},
		DocumentsGenerated: []string{},
		Drafts:             map[string]string{},
		Context:            map[string]string{},
		QAPairs:            []QAPair{},
		Delegations:        []DelegationContext{},
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// AppendMessage 追加消息
func (s *ConversationState) AppendMessage(m Message) {
	s.Messages = append(s.Messages, m)
	s.UpdatedAt = m.Timestamp
}

// AddConsultedAgent 记录已咨询专家，重复记录无效果
// 返回是否为新增
func (s *ConversationState) AddConsultedAgent(agentID string) bool {
	if slices.Contains(s.AgentsConsulted, agentID) {
		return false
	}
	s.AgentsConsulted = append(s.AgentsConsulted, agentID)
	return true
}

// HasConsulted 是否已咨询过该专家
func (s *ConversationState) HasConsulted(agentID string) bool {
	return slices.Contains(s.AgentsConsulted, agentID)
}

// AddGeneratedDocument 记录已生成文档，重复记录无效果
func (s *ConversationState) AddGeneratedDocument(docID string) bool {
	if slices.Contains(s.DocumentsGenerated, docID) {
		return false
	}
	s.DocumentsGenerated = append(s.DocumentsGenerated, docID)
	return true
}

// AdvancePhase 前进到目标阶段
// 目标阶段不在当前阶段之后时返回 false 且不修改状态
func (s *ConversationState) AdvancePhase(to Phase, now time.Time) bool {
	if !to.Valid() || to.Index() <= s.Phase.Index() {
		return false
	}
	s.Phase = to
	if to == PhaseCompleted {
		s.Status = ConversationStatusCompleted
	}
	s.UpdatedAt = now
	return true
}

// RecordDelegation 追加委派记录
func (s *ConversationState) RecordDelegation(d DelegationContext) {
	s.Delegations = append(s.Delegations, d)
}

// LastAssistantMessage 返回最后一条 assistant 消息
func (s *ConversationState) LastAssistantMessage() (Message, bool) {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == RoleAssistant {
			return s.Messages[i], true
		}
	}
	return Message{}, false
}

// QAMap 以问题为键返回问答映射
func (s *ConversationState) QAMap() map[string]string {
	out := make(map[string]string, len(s.QAPairs))
	for _, qa := range s.QAPairs {
		out[qa.Question] = qa.Answer
	}
	return out
}

// Clone 深拷贝
func (s *ConversationState) Clone() *ConversationState {
	c := *s
	c.Messages = cloneMessages(s.Messages)
	c.AgentsConsulted = slices.Clone(s.AgentsConsulted)
	c.DocumentsGenerated = slices.Clone(s.DocumentsGenerated)
	c.Drafts = cloneStringMap(s.Drafts)
	c.Context = cloneStringMap(s.Context)
	c.QAPairs = slices.Clone(s.QAPairs)
	c.Delegations = make([]DelegationContext, len(s.Delegations))
	for i, d := range s.Delegations {
		c.Delegations[i] = d.Clone()
	}
	if s.Delegations == nil {
		c.Delegations = nil
	}
	return &c
}

func cloneMessages(in []Message) []Message {
	if in == nil {
		return nil
	}
	out := make([]Message, len(in))
	for i, m := range in {
		m.Metadata = cloneStringMap(m.Metadata)
		out[i] = m
	}
	return out
}

func cloneStringMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
