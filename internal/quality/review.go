package quality

import (
	"context"
	"fmt"
	"strings"

	"agentpm/internal/llm"
	"agentpm/internal/pipeline"
	"agentpm/internal/shared/model"
)

// Reviewer 评审一次文档
type Reviewer interface {
	Review(ctx context.Context, kind model.DocumentKind, content string, pass int) (model.ReviewResult, error)
}

// Improver 针对某一严重级别的问题改进文档
type Improver interface {
	Improve(ctx context.Context, kind model.DocumentKind, content string, severity model.Severity, issues []string) (string, error)
}

// ============================================================================
// HeuristicReviewer - 基于结构校验的启发式评审
// ============================================================================

// HeuristicReviewer 以结构校验结果为基础给 8 个维度打分
type HeuristicReviewer struct {
	threshold float64
}

// NewHeuristicReviewer 创建启发式评审器
func NewHeuristicReviewer(threshold float64) *HeuristicReviewer {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &HeuristicReviewer{threshold: threshold}
}

// Review 实现 Reviewer
func (h *HeuristicReviewer) Review(_ context.Context, kind model.DocumentKind, content string, pass int) (model.ReviewResult, error) {
	report := pipeline.Validate(kind, content)
	lower := strings.ToLower(content)
	sections := pipeline.CountSections(content)

	scores := map[model.Dimension]float64{
		model.DimensionCompleteness: report.Completeness,
		model.DimensionAccuracy:     clamp(100 - 15*float64(len(report.Issues))),
		model.DimensionClarity:      clamp(50 + 10*float64(sections)),
		model.DimensionConsistency:  consistencyScore(content),
		model.DimensionCompliance:   clamp(float64(report.WordCount) / float64(pipeline.MinWordCount) * 100),
		model.DimensionUsability:    keywordScore(lower, 95, 70, "example", "acceptance criteria"),
		model.DimensionInnovation:   keywordScore(lower, 90, 75, "differentiat", "innovat", "competit"),
		model.DimensionScalability:  keywordScore(lower, 95, 75, "scal", "performance"),
	}

	issues := map[model.Severity][]string{}
	if strings.TrimSpace(content) == "" {
		issues[model.SeverityBlocker] = []string{"document is empty"}
	}
	for _, sec := range report.MissingSections {
		issues[model.SeverityCritical] = append(issues[model.SeverityCritical], "missing section: "+sec)
	}
	issues[model.SeverityMajor] = append(issues[model.SeverityMajor], report.Issues...)
	if report.WordCount < pipeline.MinWordCount {
		issues[model.SeverityMinor] = append(issues[model.SeverityMinor],
			fmt.Sprintf("document has %d words, expected at least %d", report.WordCount, pipeline.MinWordCount))
	}
	if scores[model.DimensionUsability] < 90 {
		issues[model.SeverityPolish] = append(issues[model.SeverityPolish], "add concrete examples or acceptance criteria")
	}
	for sev, list := range issues {
		if len(list) == 0 {
			delete(issues, sev)
		}
	}

	result := model.ReviewResult{
		Pass:            pass,
		Scores:          scores,
		Aggregate:       Aggregate(scores),
		Issues:          issues,
		Recommendations: recommendations(issues),
	}
	result.ImprovementsNeeded = result.Aggregate < h.threshold
	result.Approved = !result.ImprovementsNeeded && len(issues[model.SeverityBlocker]) == 0 && len(issues[model.SeverityCritical]) == 0
	return result, nil
}

// Aggregate 8 个维度的算术平均
func Aggregate(scores map[model.Dimension]float64) float64 {
	sum := 0.0
	for _, d := range model.Dimensions {
		sum += scores[d]
	}
	return sum / float64(len(model.Dimensions))
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}

func keywordScore(lower string, hit, miss float64, keywords ...string) float64 {
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return hit
		}
	}
	return miss
}

// consistencyScore 重复的标题视为结构不一致
func consistencyScore(content string) float64 {
	seen := map[string]bool{}
	dups := 0
	for _, line := range strings.Split(content, "\n") {
		t := strings.TrimSpace(line)
		if !strings.HasPrefix(t, "#") {
			continue
		}
		h := strings.ToLower(strings.TrimSpace(strings.TrimLeft(t, "#")))
		if seen[h] {
			dups++
		}
		seen[h] = true
	}
	return clamp(100 - 10*float64(dups))
}

func recommendations(issues map[model.Severity][]string) []string {
	var out []string
	for _, sev := range model.Severities {
		for _, issue := range issues[sev] {
			out = append(out, fmt.Sprintf("[%s] resolve: %s", sev, issue))
		}
	}
	return out
}

// ============================================================================
// LLMImprover - 通过大模型改进文档
// ============================================================================

// LLMImprover 通过大模型解决指定问题
type LLMImprover struct {
	invoker   llm.Invoker
	modelHint string
}

// NewLLMImprover 创建改进器
func NewLLMImprover(invoker llm.Invoker, modelHint string) *LLMImprover {
	return &LLMImprover{invoker: invoker, modelHint: modelHint}
}

// Improve 实现 Improver
func (i *LLMImprover) Improve(ctx context.Context, kind model.DocumentKind, content string, severity model.Severity, issues []string) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Revise the following %s document to resolve these %s issues:\n", strings.ToUpper(string(kind)), severity)
	for _, issue := range issues {
		fmt.Fprintf(&b, "- %s\n", issue)
	}
	b.WriteString("Keep all other content and every section heading. Return the full revised document.\n\n")
	b.WriteString(content)
	return i.invoker.Invoke(ctx, b.String(), i.modelHint)
}
