// Package quality 多轮质量精炼
//
// 单文档：按质量级别的轮次/迭代预算执行 评审 → 改进，记录评分轨迹，
// 最后无条件执行一次终审，以终审评分为准。
// 批量：逐个精炼后做跨文档一致性检查，发现冲突时协调术语。
package quality

import (
	"context"
	"fmt"
	"maps"
	"time"

	"agentpm/internal/shared/eventbus"
	"agentpm/internal/shared/metrics"
	"agentpm/internal/shared/model"
	"agentpm/pkg/logging"
)

// 默认阈值
const (
	DefaultThreshold  = 85.0
	DefaultExcellence = 95.0
)

// Budget 轮次与每轮改进次数
type Budget struct {
	Passes     int
	Iterations int
}

var budgets = map[model.QualityLevel]Budget{
	model.QualityDraft:      {Passes: 1, Iterations: 1},
	model.QualityStandard:   {Passes: 2, Iterations: 2},
	model.QualityPremium:    {Passes: 3, Iterations: 2},
	model.QualityExcellence: {Passes: 5, Iterations: 3},
}

// BudgetFor 质量级别对应的预算，未知级别按 standard
func BudgetFor(level model.QualityLevel) Budget {
	return budgets[model.ParseQualityLevel(string(level))]
}

// increments 解决某级别问题后的评分增量
var increments = map[model.Severity]float64{
	model.SeverityBlocker:  10,
	model.SeverityCritical: 10,
	model.SeverityMajor:    7,
	model.SeverityMinor:    4,
	model.SeverityPolish:   2,
}

// Increment 评分增量
func Increment(sev model.Severity) float64 {
	return increments[sev]
}

// Options 精炼配置
type Options struct {
	Threshold  float64
	Excellence float64
}

func (o Options) withDefaults() Options {
	if o.Threshold <= 0 {
		o.Threshold = DefaultThreshold
	}
	if o.Excellence <= 0 {
		o.Excellence = DefaultExcellence
	}
	return o
}

// Outcome 单文档精炼结果
type Outcome struct {
	Kind    model.DocumentKind `json:"kind"`
	Level   model.QualityLevel `json:"level"`
	Content string             `json:"content"`
	// Passes 各轮评审（不含终审）
	Passes []model.ReviewResult `json:"passes"`
	// Final 终审结果，其评分为权威评分
	Final      model.ReviewResult `json:"final"`
	FinalScore float64            `json:"final_score"`
	// Trajectory 评分轨迹：每轮评审分与每次改进后的分数
	Trajectory []float64     `json:"trajectory"`
	Iterations int           `json:"iterations"`
	Elapsed    time.Duration `json:"elapsed"`
}

// Approved 终审是否通过
func (o *Outcome) Approved() bool {
	return o.Final.Approved
}

// Loop 质量精炼循环
type Loop struct {
	reviewer   Reviewer
	improver   Improver
	harmonizer Harmonizer
	opts       Options

	metrics  *metrics.Metrics
	notifier *eventbus.Notifier
	logger   *logging.Logger
}

// New 创建精炼循环
func New(reviewer Reviewer, improver Improver, opts Options) *Loop {
	opts = opts.withDefaults()
	if reviewer == nil {
		reviewer = NewHeuristicReviewer(opts.Threshold)
	}
	return &Loop{
		reviewer:   reviewer,
		improver:   improver,
		harmonizer: NewTermHarmonizer(),
		opts:       opts,
		logger:     logging.Default("quality"),
	}
}

// WithHarmonizer 设置跨文档协调器
func (l *Loop) WithHarmonizer(h Harmonizer) *Loop {
	l.harmonizer = h
	return l
}

// WithObservability 设置指标、事件与日志，均可为 nil
func (l *Loop) WithObservability(m *metrics.Metrics, n *eventbus.Notifier, logger *logging.Logger) *Loop {
	l.metrics = m
	l.notifier = n
	if logger != nil {
		l.logger = logger
	}
	return l
}

// RefineDocument 精炼单个文档
func (l *Loop) RefineDocument(ctx context.Context, content string, kind model.DocumentKind, level model.QualityLevel) (*Outcome, error) {
	start := time.Now()
	level = model.ParseQualityLevel(string(level))
	budget := BudgetFor(level)
	logger := l.logger.WithContext(ctx).WithDocumentKind(string(kind))

	out := &Outcome{Kind: kind, Level: level, Passes: []model.ReviewResult{}, Trajectory: []float64{}}

	for pass := 1; pass <= budget.Passes; pass++ {
		review, err := l.reviewer.Review(ctx, kind, content, pass)
		if err != nil {
			return nil, fmt.Errorf("review pass %d: %w", pass, err)
		}
		out.Passes = append(out.Passes, review)
		out.Trajectory = append(out.Trajectory, review.Aggregate)
		l.notifyPass(ctx, kind, pass, review.Aggregate)
		logger.Debug("review pass", "pass", pass, "score", review.Aggregate, "issues", review.IssueCount())

		if review.Aggregate >= l.opts.Excellence {
			break
		}
		if !review.ImprovementsNeeded || pass == budget.Passes || l.improver == nil {
			continue
		}

		var n int
		content, n = l.improve(ctx, kind, content, review, budget.Iterations, &out.Trajectory)
		out.Iterations += n
	}

	final, err := l.reviewer.Review(ctx, kind, content, len(out.Passes)+1)
	if err != nil {
		return nil, fmt.Errorf("final review: %w", err)
	}
	out.Final = final
	out.FinalScore = final.Aggregate
	out.Content = content
	out.Elapsed = time.Since(start)

	if l.metrics != nil {
		l.metrics.RefinementScore.WithLabelValues(string(kind), string(level)).Observe(out.FinalScore)
		l.metrics.RefinementPasses.Observe(float64(len(out.Passes)))
	}
	logger.Info("refinement finished",
		"level", level, "passes", len(out.Passes), "iterations", out.Iterations, "score", out.FinalScore)
	return out, nil
}

// improve 在一轮内按严重程度从高到低逐级改进
//
// 每次改进解决最高级别的未解决问题并加上对应增量（上限 100），
// 达到阈值后提前结束。改进失败时停止本轮改进并保留当前内容。
func (l *Loop) improve(ctx context.Context, kind model.DocumentKind, content string, review model.ReviewResult, maxIter int, trajectory *[]float64) (string, int) {
	outstanding := maps.Clone(review.Issues)
	score := review.Aggregate
	n := 0

	for n < maxIter && score < l.opts.Threshold {
		sev, issues, ok := highestSeverity(outstanding)
		if !ok {
			break
		}
		improved, err := l.improver.Improve(ctx, kind, content, sev, issues)
		if err != nil {
			l.logger.WithContext(ctx).WithError(err).Warn("improvement failed", "severity", sev)
			break
		}
		content = improved
		delete(outstanding, sev)
		score = min(100, score+Increment(sev))
		*trajectory = append(*trajectory, score)
		n++
	}
	return content, n
}

// highestSeverity 最高级别的未解决问题
func highestSeverity(issues map[model.Severity][]string) (model.Severity, []string, bool) {
	for _, sev := range model.Severities {
		if list := issues[sev]; len(list) > 0 {
			return sev, list, true
		}
	}
	return "", nil, false
}

func (l *Loop) notifyPass(ctx context.Context, kind model.DocumentKind, pass int, score float64) {
	l.notifier.Notify(ctx, logging.ConversationIDFromContext(ctx), eventbus.EventRefinementPass, map[string]interface{}{
		"kind": string(kind), "pass": pass, "score": score,
	})
}

// ============================================================================
// pipeline.Refiner 适配
// ============================================================================

// Refine 精炼单个文档，返回新内容与终审评分
func (l *Loop) Refine(ctx context.Context, kind model.DocumentKind, content string, level model.QualityLevel) (string, float64, error) {
	out, err := l.RefineDocument(ctx, content, kind, level)
	if err != nil {
		return "", 0, err
	}
	return out.Content, out.FinalScore, nil
}

// Harmonize 跨文档一致性检查与协调，只返回被修改的文档
func (l *Loop) Harmonize(ctx context.Context, docs map[model.DocumentKind]string) (map[model.DocumentKind]string, error) {
	conflicts := CheckConsistency(docs)
	if len(conflicts) == 0 {
		return map[model.DocumentKind]string{}, nil
	}
	if l.metrics != nil {
		l.metrics.ConsistencyConflicts.Add(float64(len(conflicts)))
	}
	updated, _, err := l.harmonizer.Harmonize(ctx, docs, conflicts)
	return updated, err
}

// Score 对内容做一次评审，返回综合评分
func (l *Loop) Score(ctx context.Context, kind model.DocumentKind, content string) (float64, error) {
	review, err := l.reviewer.Review(ctx, kind, content, 1)
	if err != nil {
		return 0, fmt.Errorf("score %s: %w", kind, err)
	}
	return review.Aggregate, nil
}
