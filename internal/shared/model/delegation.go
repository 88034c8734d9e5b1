package model

import (
	"slices"
	"time"
)

// ============================================================================
// DelegationContext - 专家之间的委派
// ============================================================================

// DelegationReason 委派原因
type DelegationReason string

const (
	ReasonNeedsExpertise        DelegationReason = "needs_expertise"
	ReasonTaskComplete          DelegationReason = "task_complete"
	ReasonCollaborationRequired DelegationReason = "collaboration_required"
	ReasonUserRequest           DelegationReason = "user_request"
	ReasonOptimization          DelegationReason = "optimization"
	ReasonParallelWork          DelegationReason = "parallel_work"
	ReasonPhaseTransition       DelegationReason = "phase_transition"
)

// Urgency 紧急程度
type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyNormal   Urgency = "normal"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

// DelegationContext 委派上下文
//
// 由 TaskRouter 生成，立即用于构建工作项；同时追加到会话的委派历史中。
// Source 与 Target 不能相同。
type DelegationContext struct {
	ID              string           `json:"id"`
	Source          string           `json:"source"`
	Target          string           `json:"target"`
	Reason          DelegationReason `json:"reason"`
	Urgency         Urgency          `json:"urgency"`
	Justification   string           `json:"justification"`
	Request         string           `json:"request"`
	ExpectedOutputs []string         `json:"expected_outputs"`
	Collaborative   bool             `json:"collaborative"`
	Dependencies    []string         `json:"dependencies"`
	CreatedAt       time.Time        `json:"created_at"`
}

// Clone 深拷贝
func (d DelegationContext) Clone() DelegationContext {
	d.ExpectedOutputs = slices.Clone(d.ExpectedOutputs)
	d.Dependencies = slices.Clone(d.Dependencies)
	return d
}

// ============================================================================
// AgentCapability - 专家能力注册项
// ============================================================================

// AgentCapability 专家能力描述，进程启动时加载，之后只读
type AgentCapability struct {
	AgentID               string   `json:"agent_id"`
	Capabilities          []string `json:"capabilities"`
	Specializations       []string `json:"specializations"`
	CollaborationPartners []string `json:"collaboration_partners"`
}

// WorkItem 交给专家执行的一个工作单元
type WorkItem struct {
	AgentID        string            `json:"agent_id"`
	Description    string            `json:"description"`
	ExpectedOutput string            `json:"expected_output"`
	Delegation     DelegationContext `json:"delegation"`
}
