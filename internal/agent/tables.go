// Package agent 定义专家（Specialist）及其静态注册表
//
// 专家是基于大模型的角色化工作者。编排器只通过 Specialist 接口调用专家，
// 观测能力（指标、日志、事件）由 Tracked 装饰器组合提供。
//
// 文件组织：
//   - tables.go: 专家 ID、各阶段专家表、文档默认集合与产出者映射
//   - registry.go: 能力注册表（AgentCapability）
//   - specialist.go: Specialist 接口、基于 LLM 的实现与专家集合
//   - trackable.go: TrackableExecution 装饰器
package agent

import (
	"slices"

	"agentpm/internal/shared/model"
)

// ============================================================================
// 专家 ID
// ============================================================================

const (
	// Orchestrator 协调者，只作为委派来源，从不被派发
	Orchestrator      = "orchestrator"
	ProductManager    = "product_manager"
	BusinessAnalyst   = "business_analyst"
	UXDesigner        = "ux_designer"
	TechnicalWriter   = "technical_writer"
	DatabaseArchitect = "database_architect"
	Reviewer          = "reviewer"
)

// ============================================================================
// 阶段专家表
// ============================================================================

var discoveryTable = map[model.ConversationKind][]string{
	model.ConversationKindIdea:    {ProductManager, BusinessAnalyst, UXDesigner, DatabaseArchitect},
	model.ConversationKindFeature: {ProductManager, UXDesigner, TechnicalWriter},
	model.ConversationKindTool:    {ProductManager, TechnicalWriter},
}

// DiscoverySpecialists discovery 阶段按优先级排列的专家
func DiscoverySpecialists(kind model.ConversationKind) []string {
	return slices.Clone(discoveryTable[model.ParseConversationKind(string(kind))])
}

// ============================================================================
// 文档表
// ============================================================================

var defaultDocuments = map[model.ConversationKind][]model.DocumentKind{
	model.ConversationKindIdea:    model.AllDocumentKinds,
	model.ConversationKindFeature: {model.DocumentPRD, model.DocumentSRS, model.DocumentERD},
	model.ConversationKindTool:    {model.DocumentPRD, model.DocumentSRS},
}

// DefaultDocuments 会话类型的默认文档集合
func DefaultDocuments(kind model.ConversationKind) []model.DocumentKind {
	return slices.Clone(defaultDocuments[model.ParseConversationKind(string(kind))])
}

var producers = map[model.DocumentKind]string{
	model.DocumentPRD:  ProductManager,
	model.DocumentBRD:  BusinessAnalyst,
	model.DocumentUXDD: UXDesigner,
	model.DocumentSRS:  TechnicalWriter,
	model.DocumentERD:  DatabaseArchitect,
	model.DocumentDBRD: DatabaseArchitect,
}

// Producer 负责产出该文档的专家
func Producer(kind model.DocumentKind) (string, bool) {
	id, ok := producers[kind]
	return id, ok
}

// ProducedBy 专家负责的文档，按默认优先级排序
func ProducedBy(agentID string) []model.DocumentKind {
	var out []model.DocumentKind
	for _, k := range model.AllDocumentKinds {
		if producers[k] == agentID {
			out = append(out, k)
		}
	}
	return out
}

// ============================================================================
// 产出模板
// ============================================================================

var outputTemplates = map[string]string{
	ProductManager:    "Product vision, target users, prioritized goals and user stories",
	BusinessAnalyst:   "Business objectives, stakeholders, scope and business risks",
	UXDesigner:        "Personas, user journeys and key interaction flows",
	TechnicalWriter:   "Functional and non-functional requirements with interfaces and constraints",
	DatabaseArchitect: "Entities, attributes, relationships and storage considerations",
	Reviewer:          "Review findings by severity with concrete recommendations",
}

// OutputTemplate 专家的默认产出描述
func OutputTemplate(agentID string) string {
	if t, ok := outputTemplates[agentID]; ok {
		return t
	}
	return "A concise, structured response"
}

var roles = map[string]string{
	Orchestrator:      "project orchestrator",
	ProductManager:    "product manager",
	BusinessAnalyst:   "business analyst",
	UXDesigner:        "UX designer",
	TechnicalWriter:   "technical writer",
	DatabaseArchitect: "database architect",
	Reviewer:          "quality reviewer",
}

// Role 专家角色名称
func Role(agentID string) string {
	if r, ok := roles[agentID]; ok {
		return r
	}
	return agentID
}
