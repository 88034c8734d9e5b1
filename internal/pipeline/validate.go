package pipeline

import (
	"strings"

	"agentpm/internal/shared/model"
)

// 校验门槛，三者同时满足才算通过
const (
	MinCompleteness = 70.0
	MaxIssues       = 2
	MinWordCount    = 200
)

// RequiredSections 各文档类型必需的章节名（大小写不敏感的子串匹配）
var RequiredSections = map[model.DocumentKind][]string{
	model.DocumentPRD:  {"overview", "problem", "goals", "user stories", "requirements", "success metrics"},
	model.DocumentBRD:  {"executive summary", "business objectives", "stakeholders", "scope", "requirements", "risks"},
	model.DocumentUXDD: {"personas", "user journeys", "information architecture", "wireframes", "accessibility"},
	model.DocumentSRS:  {"introduction", "functional requirements", "non-functional requirements", "interfaces", "constraints"},
	model.DocumentERD:  {"entities", "attributes", "relationships", "cardinality"},
	model.DocumentDBRD: {"schema", "tables", "indexes", "constraints", "migration"},
}

// PlaceholderMarkers 占位符标记，每个出现的标记计一个问题
var PlaceholderMarkers = []string{
	"to be defined",
	"to be determined",
	"todo",
	"tbd",
	"lorem ipsum",
	"[insert",
	"placeholder",
}

// Validate 结构校验
//
// quality_score = max(0, completeness - 10 × issues)
func Validate(kind model.DocumentKind, content string) model.ValidationReport {
	lower := strings.ToLower(content)

	required := RequiredSections[kind]
	var missing []string
	for _, sec := range required {
		if !strings.Contains(lower, sec) {
			missing = append(missing, sec)
		}
	}
	completeness := 100.0
	if len(required) > 0 {
		completeness = float64(len(required)-len(missing)) / float64(len(required)) * 100
	}

	var issues []string
	for _, marker := range PlaceholderMarkers {
		if strings.Contains(lower, marker) {
			issues = append(issues, "placeholder text: "+marker)
		}
	}

	words := CountWords(content)
	return Evaluate(completeness, missing, issues, words)
}

// Evaluate 根据完整度、问题与字数计算得分和是否通过
func Evaluate(completeness float64, missing, issues []string, words int) model.ValidationReport {
	score := completeness - 10*float64(len(issues))
	if score < 0 {
		score = 0
	}
	return model.ValidationReport{
		Completeness:    completeness,
		MissingSections: missing,
		Issues:          issues,
		WordCount:       words,
		QualityScore:    score,
		Passed:          completeness >= MinCompleteness && len(issues) <= MaxIssues && words >= MinWordCount,
	}
}

// CountWords 空白分隔的词数
func CountWords(content string) int {
	return len(strings.Fields(content))
}

// CountSections Markdown 标题行数
func CountSections(content string) int {
	n := 0
	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			n++
		}
	}
	return n
}
