package agent

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"agentpm/internal/llm"
	"agentpm/internal/shared/model"
)

// ============================================================================
// Specialist 接口
// ============================================================================

// Specialist 专家接口
//
// 编排器只需要这两个方法；实现必须可并发调用。
type Specialist interface {
	// ID 专家 ID
	ID() string

	// Execute 执行工作项并返回文本结果
	Execute(ctx context.Context, item model.WorkItem) (string, error)
}

// LLMSpecialist 基于大模型的专家
type LLMSpecialist struct {
	id        string
	invoker   llm.Invoker
	modelHint string
}

var _ Specialist = (*LLMSpecialist)(nil)

// NewLLMSpecialist 创建基于大模型的专家
func NewLLMSpecialist(id string, invoker llm.Invoker, modelHint string) *LLMSpecialist {
	return &LLMSpecialist{id: id, invoker: invoker, modelHint: modelHint}
}

// ID 实现 Specialist
func (s *LLMSpecialist) ID() string {
	return s.id
}

// Execute 实现 Specialist
func (s *LLMSpecialist) Execute(ctx context.Context, item model.WorkItem) (string, error) {
	out, err := s.invoker.Invoke(ctx, BuildPrompt(s.id, item), s.modelHint)
	if err != nil {
		return "", fmt.Errorf("%s: %w", s.id, err)
	}
	return out, nil
}

// BuildPrompt 组装专家提示词
func BuildPrompt(agentID string, item model.WorkItem) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are the %s on a software planning team.\n\n", Role(agentID))
	b.WriteString(item.Description)
	if item.ExpectedOutput != "" {
		b.WriteString("\n\nExpected output:\n")
		b.WriteString(item.ExpectedOutput)
	}
	return b.String()
}

// ============================================================================
// Set - 专家集合
// ============================================================================

// Set 按 ID 索引的专家集合
type Set struct {
	specialists map[string]Specialist
}

// NewSet 创建专家集合
func NewSet(specialists ...Specialist) *Set {
	s := &Set{specialists: make(map[string]Specialist, len(specialists))}
	for _, sp := range specialists {
		s.Register(sp)
	}
	return s
}

// NewLLMSet 为注册表中的全部专家创建基于大模型的实现
func NewLLMSet(reg *Registry, invoker llm.Invoker, modelHint string) *Set {
	s := NewSet()
	for _, id := range reg.List() {
		s.Register(NewLLMSpecialist(id, invoker, modelHint))
	}
	return s
}

// Register 注册专家，同 ID 覆盖
func (s *Set) Register(sp Specialist) {
	s.specialists[sp.ID()] = sp
}

// Get 获取专家
func (s *Set) Get(id string) (Specialist, bool) {
	sp, ok := s.specialists[id]
	return sp, ok
}

// List 列出专家 ID（排序）
func (s *Set) List() []string {
	ids := make([]string, 0, len(s.specialists))
	for id := range s.specialists {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Wrap 用装饰器包装集合中的每个专家
func (s *Set) Wrap(wrap func(Specialist) Specialist) *Set {
	out := NewSet()
	for _, sp := range s.specialists {
		out.Register(wrap(sp))
	}
	return out
}
