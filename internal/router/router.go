// Package router 任务路由
//
// Router 是无状态的决策组件：根据当前阶段、会话类型、已咨询专家和已生成文档
// 提出下一次委派，校验委派的结构合法性，并把委派组装成工作项。
package router

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"agentpm/internal/agent"
	"agentpm/internal/shared/metrics"
	"agentpm/internal/shared/model"
	"agentpm/pkg/logging"
)

var (
	// ErrSelfDelegation 委派给自己
	ErrSelfDelegation = errors.New("router: self-delegation")
	// ErrDelegationCycle 与最近的委派构成往返
	ErrDelegationCycle = errors.New("router: delegation cycle")
)

// CycleWindow 环路检测回看的委派条数
const CycleWindow = 5

// Context 路由决策输入
type Context struct {
	ConversationID string
	Kind           model.ConversationKind
	Phase          model.Phase
	Consulted      []string
	Documents      []string
	// Required 需要的文档集合，为空时使用会话类型的默认集合
	Required []model.DocumentKind
	// History 委派历史（按时间顺序）
	History []model.DelegationContext
}

// ContextFromState 从会话状态构建路由上下文
func ContextFromState(state *model.ConversationState) Context {
	return Context{
		ConversationID: state.ID,
		Kind:           state.Kind,
		Phase:          state.Phase,
		Consulted:      state.AgentsConsulted,
		Documents:      state.DocumentsGenerated,
		History:        state.Delegations,
	}
}

// MissingDocuments 尚未生成的必需文档（保持默认优先级）
func (c Context) MissingDocuments() []model.DocumentKind {
	required := c.Required
	if len(required) == 0 {
		required = agent.DefaultDocuments(c.Kind)
	}
	var out []model.DocumentKind
	for _, k := range required {
		if !slices.Contains(c.Documents, string(k)) {
			out = append(out, k)
		}
	}
	return out
}

// Router 任务路由器
type Router struct {
	registry *agent.Registry
	metrics  *metrics.Metrics
	logger   *logging.Logger
	now      func() time.Time
}

// New 创建路由器，metrics 可为 nil
func New(registry *agent.Registry, m *metrics.Metrics, logger *logging.Logger) *Router {
	if registry == nil {
		registry = agent.DefaultRegistry()
	}
	if logger == nil {
		logger = logging.Default("router")
	}
	return &Router{registry: registry, metrics: m, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Registry 返回能力注册表
func (r *Router) Registry() *agent.Registry {
	return r.registry
}

// ============================================================================
// SuggestNext
// ============================================================================

// SuggestNext 提出下一次委派，无需委派时返回 nil
//
//   - discovery：优先级列表中第一个尚未咨询的专家
//   - definition：第一个缺失文档的产出者
//   - review：已有文档且当前不是评审者时交给评审者
func (r *Router) SuggestNext(current string, rc Context) *model.DelegationContext {
	switch rc.Phase {
	case model.PhaseDiscovery:
		for _, id := range agent.DiscoverySpecialists(rc.Kind) {
			if id == current || slices.Contains(rc.Consulted, id) {
				continue
			}
			return r.newDelegation(current, id, model.ReasonNeedsExpertise,
				fmt.Sprintf("%s has not been consulted yet", agent.Role(id)),
				fmt.Sprintf("Share your perspective as the %s and ask the user the most important open question.", agent.Role(id)),
				nil)
		}
	case model.PhaseDefinition:
		for _, kind := range rc.MissingDocuments() {
			producer, ok := agent.Producer(kind)
			if !ok || producer == current {
				continue
			}
			return r.newDelegation(current, producer, model.ReasonPhaseTransition,
				fmt.Sprintf("required document %s is missing", kind),
				fmt.Sprintf("Produce the %s document.", strings.ToUpper(string(kind))),
				[]string{string(kind)})
		}
	case model.PhaseReview:
		if len(rc.Documents) > 0 && current != agent.Reviewer {
			return r.newDelegation(current, agent.Reviewer, model.ReasonTaskComplete,
				"documents are ready for review",
				"Review the generated documents for completeness and consistency.",
				[]string{"review report"})
		}
	}
	return nil
}

func (r *Router) newDelegation(source, target string, reason model.DelegationReason, why, request string, outputs []string) *model.DelegationContext {
	d := &model.DelegationContext{
		ID:              uuid.NewString(),
		Source:          source,
		Target:          target,
		Reason:          reason,
		Urgency:         model.UrgencyNormal,
		Justification:   why,
		Request:         request,
		ExpectedOutputs: outputs,
		Dependencies:    []string{},
		CreatedAt:       r.now(),
	}
	if d.ExpectedOutputs == nil {
		d.ExpectedOutputs = []string{}
	}
	// 有协作伙伴的产出者默认协作
	if reason == model.ReasonPhaseTransition && len(r.registry.Partners(target)) > 0 {
		d.Collaborative = true
	}
	return d
}

// Delegate 构造指定目标的委派
func (r *Router) Delegate(source, target string, reason model.DelegationReason, justification, request string) model.DelegationContext {
	return *r.newDelegation(source, target, reason, justification, request, nil)
}

// ============================================================================
// Validate
// ============================================================================

// Validate 校验委派
//
// 拒绝自委派，以及与最近 CycleWindow 条委派中某条方向相反的往返委派。
// 能力关键词匹配只记录日志，不拒绝。
func (r *Router) Validate(d model.DelegationContext, history []model.DelegationContext) error {
	if d.Source == d.Target {
		r.reject("self_delegation")
		return fmt.Errorf("%w: %s", ErrSelfDelegation, d.Source)
	}

	start := len(history) - CycleWindow
	if start < 0 {
		start = 0
	}
	for i := len(history) - 1; i >= start; i-- {
		prev := history[i]
		if prev.Source == d.Target && prev.Target == d.Source {
			r.reject("cycle")
			return fmt.Errorf("%w: %s -> %s reverses a recent delegation", ErrDelegationCycle, d.Source, d.Target)
		}
	}

	if d.Request != "" && r.registry.Has(d.Target) && len(r.registry.MatchCapabilities(d.Target, d.Request)) == 0 {
		r.logger.Debug("delegation request matches no declared capability", "target", d.Target)
	}
	return nil
}

func (r *Router) reject(reason string) {
	if r.metrics != nil {
		r.metrics.DelegationsRejected.WithLabelValues(reason).Inc()
	}
}

// ============================================================================
// CreateTask
// ============================================================================

// CreateTask 把委派组装成工作项
//
// 描述依次拼接：基础指令、会话上下文、委派理由、协作提示、上游依赖。
func (r *Router) CreateTask(d model.DelegationContext, baseDescription string, conversationContext map[string]string) model.WorkItem {
	var b strings.Builder
	b.WriteString(baseDescription)

	if len(conversationContext) > 0 {
		keys := make([]string, 0, len(conversationContext))
		for k := range conversationContext {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		b.WriteString("\n\nConversation context:\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %s\n", k, conversationContext[k])
		}
	}

	fmt.Fprintf(&b, "\n\nDelegated by %s (%s): %s", d.Source, d.Reason, d.Justification)
	if d.Request != "" {
		fmt.Fprintf(&b, "\nRequest: %s", d.Request)
	}

	if d.Collaborative {
		if partners := r.registry.Partners(d.Target); len(partners) > 0 {
			fmt.Fprintf(&b, "\n\nCoordinate with: %s", strings.Join(partners, ", "))
		}
	}

	if len(d.Dependencies) > 0 {
		fmt.Fprintf(&b, "\n\nBuild on upstream work: %s", strings.Join(d.Dependencies, ", "))
	}

	expected := agent.OutputTemplate(d.Target)
	if len(d.ExpectedOutputs) > 0 {
		expected += "\nAlso deliver: " + strings.Join(d.ExpectedOutputs, ", ")
	}

	return model.WorkItem{
		AgentID:        d.Target,
		Description:    b.String(),
		ExpectedOutput: expected,
		Delegation:     d.Clone(),
	}
}
