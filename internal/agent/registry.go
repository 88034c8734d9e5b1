package agent

import (
	"slices"
	"sort"
	"strings"

	"agentpm/internal/shared/model"
)

// Registry 专家能力注册表
//
// 进程启动时构建，之后只读，并发访问无需加锁。
type Registry struct {
	caps map[string]model.AgentCapability
}

// NewRegistry 创建注册表
func NewRegistry(caps ...model.AgentCapability) *Registry {
	r := &Registry{caps: make(map[string]model.AgentCapability, len(caps))}
	for _, c := range caps {
		r.caps[c.AgentID] = c
	}
	return r
}

// DefaultRegistry 内置专家能力
func DefaultRegistry() *Registry {
	return NewRegistry(
		model.AgentCapability{
			AgentID:               ProductManager,
			Capabilities:          []string{"product", "vision", "requirements", "user stories", "roadmap", "prioritization"},
			Specializations:       []string{"prd", "goals", "success metrics"},
			CollaborationPartners: []string{BusinessAnalyst, UXDesigner, TechnicalWriter},
		},
		model.AgentCapability{
			AgentID:               BusinessAnalyst,
			Capabilities:          []string{"business", "stakeholders", "market", "process", "risk"},
			Specializations:       []string{"brd", "business case", "scope"},
			CollaborationPartners: []string{ProductManager, TechnicalWriter},
		},
		model.AgentCapability{
			AgentID:               UXDesigner,
			Capabilities:          []string{"ux", "design", "personas", "journey", "wireframe", "accessibility"},
			Specializations:       []string{"uxdd", "interaction design"},
			CollaborationPartners: []string{ProductManager},
		},
		model.AgentCapability{
			AgentID:               TechnicalWriter,
			Capabilities:          []string{"specification", "documentation", "requirements", "interfaces", "api"},
			Specializations:       []string{"srs", "non-functional requirements"},
			CollaborationPartners: []string{ProductManager, BusinessAnalyst, DatabaseArchitect},
		},
		model.AgentCapability{
			AgentID:               DatabaseArchitect,
			Capabilities:          []string{"database", "data model", "schema", "entities", "storage", "migration"},
			Specializations:       []string{"erd", "dbrd", "indexing"},
			CollaborationPartners: []string{TechnicalWriter},
		},
		model.AgentCapability{
			AgentID:               Reviewer,
			Capabilities:          []string{"review", "quality", "consistency", "compliance"},
			Specializations:       []string{"document review"},
			CollaborationPartners: []string{ProductManager, TechnicalWriter},
		},
	)
}

// Get 获取专家能力
func (r *Registry) Get(agentID string) (model.AgentCapability, bool) {
	c, ok := r.caps[agentID]
	return c, ok
}

// Has 是否已注册
func (r *Registry) Has(agentID string) bool {
	_, ok := r.caps[agentID]
	return ok
}

// Partners 协作伙伴列表
func (r *Registry) Partners(agentID string) []string {
	return slices.Clone(r.caps[agentID].CollaborationPartners)
}

// List 列出全部专家 ID（排序）
func (r *Registry) List() []string {
	ids := make([]string, 0, len(r.caps))
	for id := range r.caps {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// MatchCapabilities 返回请求文本中出现的能力关键词
//
// 结果仅供参考，不用于拒绝委派。
func (r *Registry) MatchCapabilities(agentID, text string) []string {
	c, ok := r.caps[agentID]
	if !ok {
		return nil
	}
	lower := strings.ToLower(text)
	var hits []string
	for _, kw := range append(slices.Clone(c.Capabilities), c.Specializations...) {
		if strings.Contains(lower, strings.ToLower(kw)) {
			hits = append(hits, kw)
		}
	}
	return hits
}
