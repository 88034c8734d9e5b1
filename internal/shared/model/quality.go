package model

// ============================================================================
// 质量评审
// ============================================================================

// QualityLevel 质量级别，决定评审轮次与每轮改进次数
type QualityLevel string

const (
	QualityDraft      QualityLevel = "draft"
	QualityStandard   QualityLevel = "standard"
	QualityPremium    QualityLevel = "premium"
	QualityExcellence QualityLevel = "excellence"
)

// ParseQualityLevel 未知值按 standard 处理
func ParseQualityLevel(s string) QualityLevel {
	switch QualityLevel(s) {
	case QualityDraft, QualityPremium, QualityExcellence:
		return QualityLevel(s)
	default:
		return QualityStandard
	}
}

// Severity 问题严重程度
type Severity string

const (
	SeverityBlocker  Severity = "blocker"
	SeverityCritical Severity = "critical"
	SeverityMajor    Severity = "major"
	SeverityMinor    Severity = "minor"
	SeverityPolish   Severity = "polish"
)

// Severities 按严重程度从高到低
var Severities = []Severity{SeverityBlocker, SeverityCritical, SeverityMajor, SeverityMinor, SeverityPolish}

// Dimension 评审维度
type Dimension string

const (
	DimensionCompleteness Dimension = "completeness"
	DimensionAccuracy     Dimension = "accuracy"
	DimensionClarity      Dimension = "clarity"
	DimensionConsistency  Dimension = "consistency"
	DimensionCompliance   Dimension = "compliance"
	DimensionUsability    Dimension = "usability"
	DimensionInnovation   Dimension = "innovation"
	DimensionScalability  Dimension = "scalability"
)

// Dimensions 8 个固定评审维度
var Dimensions = []Dimension{
	DimensionCompleteness, DimensionAccuracy, DimensionClarity, DimensionConsistency,
	DimensionCompliance, DimensionUsability, DimensionInnovation, DimensionScalability,
}

// ReviewResult 一轮评审结果
type ReviewResult struct {
	Pass               int                   `json:"pass"`
	Scores             map[Dimension]float64 `json:"scores"`
	Aggregate          float64               `json:"aggregate"`
	Issues             map[Severity][]string `json:"issues"`
	Recommendations    []string              `json:"recommendations,omitempty"`
	Approved           bool                  `json:"approved"`
	ImprovementsNeeded bool                  `json:"improvements_needed"`
}

// IssueCount 全部问题数
func (r *ReviewResult) IssueCount() int {
	n := 0
	for _, list := range r.Issues {
		n += len(list)
	}
	return n
}

// Checkpoint 会话状态的时间点快照，只用于恢复
type Checkpoint struct {
	ConversationID string             `json:"conversation_id"`
	Timestamp      int64              `json:"timestamp"` // UnixMicro，同一会话内单调递增
	State          *ConversationState `json:"state"`
}
