package model

import "time"

// ============================================================================
// DocumentKind - 文档类型
// ============================================================================

// DocumentKind 文档类型
type DocumentKind string

const (
	DocumentPRD  DocumentKind = "prd"  // 产品需求文档
	DocumentBRD  DocumentKind = "brd"  // 业务需求文档
	DocumentUXDD DocumentKind = "uxdd" // 交互设计文档
	DocumentSRS  DocumentKind = "srs"  // 软件需求规格说明
	DocumentERD  DocumentKind = "erd"  // 实体关系设计
	DocumentDBRD DocumentKind = "dbrd" // 数据库需求设计
)

// AllDocumentKinds 默认处理优先级
var AllDocumentKinds = []DocumentKind{
	DocumentPRD, DocumentBRD, DocumentUXDD, DocumentSRS, DocumentERD, DocumentDBRD,
}

// Valid 是否为已知文档类型
func (k DocumentKind) Valid() bool {
	for _, d := range AllDocumentKinds {
		if d == k {
			return true
		}
	}
	return false
}

// DocumentStatus 文档生成状态
type DocumentStatus string

const (
	DocumentStatusPending    DocumentStatus = "pending"
	DocumentStatusInProgress DocumentStatus = "in_progress"
	DocumentStatusEnhanced   DocumentStatus = "enhanced"
	DocumentStatusValidated  DocumentStatus = "validated"
	DocumentStatusCompleted  DocumentStatus = "completed"
	DocumentStatusError      DocumentStatus = "error"
)

// IsTerminal completed 与 error 为终态
func (s DocumentStatus) IsTerminal() bool {
	return s == DocumentStatusCompleted || s == DocumentStatusError
}

// EnhancementLevel 内容增强级别
type EnhancementLevel string

const (
	EnhancementNone     EnhancementLevel = "none"
	EnhancementStandard EnhancementLevel = "standard"
	EnhancementAdvanced EnhancementLevel = "advanced"
)

// ParseEnhancementLevel 未知值按 none 处理
func ParseEnhancementLevel(s string) EnhancementLevel {
	switch EnhancementLevel(s) {
	case EnhancementStandard:
		return EnhancementStandard
	case EnhancementAdvanced:
		return EnhancementAdvanced
	default:
		return EnhancementNone
	}
}

// ============================================================================
// DocumentGenerationRequest / Result
// ============================================================================

// DocumentGenerationRequest 一次批量文档生成请求，不持久化
type DocumentGenerationRequest struct {
	ConversationID   string            `json:"conversation_id"`
	Kinds            []DocumentKind    `json:"kinds"`
	ConversationKind ConversationKind  `json:"conversation_kind"`
	Context          map[string]string `json:"context,omitempty"`
	QA               map[string]string `json:"qa,omitempty"`
	Enhancement      EnhancementLevel  `json:"enhancement"`
	// Order 显式处理顺序，为空时使用默认优先级
	Order    []DocumentKind `json:"order,omitempty"`
	Parallel bool           `json:"parallel"`
}

// ValidationReport 结构校验详情
type ValidationReport struct {
	Completeness    float64  `json:"completeness" bson:"completeness"`
	MissingSections []string `json:"missing_sections,omitempty" bson:"missing_sections,omitempty"`
	Issues          []string `json:"issues,omitempty" bson:"issues,omitempty"`
	WordCount       int      `json:"word_count" bson:"word_count"`
	QualityScore    float64  `json:"quality_score" bson:"quality_score"`
	Passed          bool     `json:"passed" bson:"passed"`
}

// DocumentMetadata 文档元数据
type DocumentMetadata struct {
	GeneratedAt      time.Time     `json:"generated_at" bson:"generated_at"`
	QualityScore     float64       `json:"quality_score" bson:"quality_score"`
	ValidationPassed bool          `json:"validation_passed" bson:"validation_passed"`
	WordCount        int           `json:"word_count" bson:"word_count"`
	SectionCount     int           `json:"section_count" bson:"section_count"`
	Duration         time.Duration `json:"duration" bson:"duration"`
}

// DocumentGenerationResult 单个文档的生成结果
//
// 状态进入 completed 或 error 后不再变化。
type DocumentGenerationResult struct {
	Kind       DocumentKind      `json:"kind"`
	Content    string            `json:"content"`
	Metadata   DocumentMetadata  `json:"metadata"`
	Status     DocumentStatus    `json:"status"`
	Elapsed    time.Duration     `json:"elapsed"`
	Error      string            `json:"error,omitempty"`
	Validation *ValidationReport `json:"validation,omitempty"`
}

// SetStatus 更新状态，已处于终态时忽略并返回 false
func (r *DocumentGenerationResult) SetStatus(s DocumentStatus) bool {
	if r.Status.IsTerminal() {
		return false
	}
	r.Status = s
	return true
}

// Fail 标记为 error
func (r *DocumentGenerationResult) Fail(err error) {
	if r.SetStatus(DocumentStatusError) {
		r.Error = err.Error()
	}
}

// Succeeded 是否成功完成
func (r *DocumentGenerationResult) Succeeded() bool {
	return r.Status == DocumentStatusCompleted
}

// StoredDocument 持久化的文档（草稿或终稿）
type StoredDocument struct {
	ID             string           `json:"id" bson:"_id"`
	ConversationID string           `json:"conversation_id" bson:"conversation_id"`
	Kind           DocumentKind     `json:"kind" bson:"kind"`
	Final          bool             `json:"final" bson:"final"`
	Content        string           `json:"content" bson:"content"`
	Metadata       DocumentMetadata `json:"metadata" bson:"metadata"`
	CreatedAt      time.Time        `json:"created_at" bson:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at" bson:"updated_at"`
}

// StoredDocumentID 文档 ID：{conversation}:{kind}:{draft|final}
func StoredDocumentID(conversationID string, kind DocumentKind, final bool) string {
	stage := "draft"
	if final {
		stage = "final"
	}
	return conversationID + ":" + string(kind) + ":" + stage
}
