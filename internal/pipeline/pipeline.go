// Package pipeline 文档生成流水线
//
// 给定一组文档类型与共享上下文：
//  1. 计算线性处理顺序（显式 override 或默认优先级）
//  2. 并行模式下按依赖划分批次，批次顺序执行，批内并发
//  3. 每个文档：构建上下文 → 生成 → 增强（可选）→ 精炼（可选）→ 结构校验
//  4. 单个文档失败只影响自身结果
//  5. 成功的文档立即保存草稿，全部批次结束后保存终稿
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"agentpm/internal/shared/eventbus"
	"agentpm/internal/shared/metrics"
	"agentpm/internal/shared/model"
	"agentpm/pkg/logging"
)

// Refiner 质量精炼（由 quality 包实现）
type Refiner interface {
	// Refine 精炼单个文档，返回新内容与权威评分
	Refine(ctx context.Context, kind model.DocumentKind, content string, level model.QualityLevel) (string, float64, error)
	// Harmonize 跨文档一致性检查与协调，返回需要更新的文档
	Harmonize(ctx context.Context, docs map[model.DocumentKind]string) (map[model.DocumentKind]string, error)
	// Score 对协调后的内容重新评分
	Score(ctx context.Context, kind model.DocumentKind, content string) (float64, error)
}

// Options 流水线配置
type Options struct {
	// MaxConcurrency 单批最大并发文档数
	MaxConcurrency int
	// Dependencies 依赖表，为 nil 时使用默认表
	Dependencies DependencyTable
}

// Pipeline 文档生成流水线
type Pipeline struct {
	generators Generators
	enhancer   Enhancer
	sink       DocumentSink
	refiner    Refiner
	opts       Options

	metrics  *metrics.Metrics
	notifier *eventbus.Notifier
	logger   *logging.Logger
	now      func() time.Time
}

// New 创建流水线
func New(generators Generators, opts Options) *Pipeline {
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = DefaultMaxBatchWidth
	}
	return &Pipeline{
		generators: generators,
		opts:       opts,
		logger:     logging.Default("pipeline"),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithEnhancer 设置增强器
func (p *Pipeline) WithEnhancer(e Enhancer) *Pipeline {
	p.enhancer = e
	return p
}

// WithSink 设置持久化出口
func (p *Pipeline) WithSink(s DocumentSink) *Pipeline {
	p.sink = s
	return p
}

// WithRefiner 设置质量精炼器
func (p *Pipeline) WithRefiner(r Refiner) *Pipeline {
	p.refiner = r
	return p
}

// WithObservability 设置指标、事件与日志，均可为 nil
func (p *Pipeline) WithObservability(m *metrics.Metrics, n *eventbus.Notifier, logger *logging.Logger) *Pipeline {
	p.metrics = m
	p.notifier = n
	if logger != nil {
		p.logger = logger
	}
	return p
}

// Plan 计算请求的执行计划
func (p *Pipeline) Plan(req model.DocumentGenerationRequest) Plan {
	order := Order(req.Kinds, req.Order)
	if !req.Parallel {
		return Sequential(order)
	}
	return Batches(order, p.opts.Dependencies, p.opts.MaxConcurrency)
}

// Generate 执行文档生成
//
// 结果顺序与计划中文档的顺序一致；部分失败时仍返回全部结果，
// 失败的文档状态为 error。quality 为空时不做精炼。
func (p *Pipeline) Generate(ctx context.Context, req model.DocumentGenerationRequest, quality model.QualityLevel) []*model.DocumentGenerationResult {
	logger := p.logger.WithConversationID(req.ConversationID)
	plan := p.Plan(req)
	for _, k := range plan.Forced {
		// 依赖无法满足，提前处理以保证前进
		logger.Warn("dependency cycle broken, processing document early", "kind", k)
		if p.metrics != nil {
			p.metrics.ForcedBatchesTotal.Inc()
		}
	}

	var results []*model.DocumentGenerationResult
	upstream := make(map[model.DocumentKind]string)

	for i, batch := range plan.Batches {
		if err := ctx.Err(); err != nil {
			// 未执行的文档逐个标记失败
			for _, k := range batch {
				r := newResult(k)
				r.Fail(err)
				results = append(results, r)
			}
			continue
		}

		p.notifier.Notify(ctx, req.ConversationID, eventbus.EventBatchStarted, map[string]interface{}{
			"batch": i + 1, "kinds": kindsString(batch),
		})
		logger.Info("batch started", "batch", i+1, "of", len(plan.Batches), "kinds", kindsString(batch))

		batchResults := p.runBatch(ctx, req, batch, copyUpstream(upstream), quality)
		for _, r := range batchResults {
			if r.Succeeded() {
				upstream[r.Kind] = r.Content
			}
		}
		results = append(results, batchResults...)
	}

	if quality != "" && p.refiner != nil {
		p.harmonize(ctx, req.ConversationID, results)
	}

	if p.sink != nil {
		for _, r := range results {
			if !r.Succeeded() {
				continue
			}
			if err := p.sink.SaveFinal(ctx, req.ConversationID, r); err != nil {
				logger.WithError(err).Warn("save final failed", "kind", r.Kind)
			}
		}
	}
	return results
}

// runBatch 批内并发执行，结果顺序与输入一致
func (p *Pipeline) runBatch(ctx context.Context, req model.DocumentGenerationRequest, batch []model.DocumentKind, upstream map[model.DocumentKind]string, quality model.QualityLevel) []*model.DocumentGenerationResult {
	results := make([]*model.DocumentGenerationResult, len(batch))

	var g errgroup.Group
	g.SetLimit(p.opts.MaxConcurrency)
	for i, kind := range batch {
		g.Go(func() error {
			results[i] = p.process(ctx, req, kind, upstream, quality)
			return nil
		})
	}
	g.Wait()
	return results
}

// process 处理单个文档，内部错误全部转换为 error 结果
func (p *Pipeline) process(ctx context.Context, req model.DocumentGenerationRequest, kind model.DocumentKind, upstream map[model.DocumentKind]string, quality model.QualityLevel) (result *model.DocumentGenerationResult) {
	logger := p.logger.WithConversationID(req.ConversationID).WithDocumentKind(string(kind))
	start := time.Now()
	result = newResult(kind)
	result.SetStatus(model.DocumentStatusInProgress)
	p.notifyStatus(ctx, req.ConversationID, result)

	defer func() {
		if rec := recover(); rec != nil {
			result.Fail(fmt.Errorf("panic: %v", rec))
		}
		result.Elapsed = time.Since(start)
		if !result.Succeeded() {
			logger.Warn("document failed", "error", result.Error)
		}
		p.metrics.ObserveDocument(string(kind), string(result.Status), result.Elapsed, result.Validation != nil, result.Metadata.ValidationPassed)
		p.notifyStatus(ctx, req.ConversationID, result)
	}()

	gen, ok := p.generators[kind]
	if !ok {
		result.Fail(fmt.Errorf("%w: %s", ErrNoGenerator, kind))
		return result
	}

	content, err := gen.Generate(ctx, GenerationContext{
		ConversationID:   req.ConversationID,
		ConversationKind: req.ConversationKind,
		Kind:             kind,
		Fields:           BuildContext(kind, req.Context, req.QA),
		Upstream:         upstream,
	})
	if err != nil {
		result.Fail(fmt.Errorf("generate %s: %w", kind, err))
		return result
	}

	if req.Enhancement != model.EnhancementNone && req.Enhancement != "" && p.enhancer != nil {
		enhanced, err := p.enhancer.Enhance(ctx, kind, content, req.Enhancement)
		if err != nil || strings.TrimSpace(enhanced) == "" {
			// 增强失败时保留原内容
			logger.WithError(err).Warn("enhancement failed, keeping original content")
		} else {
			content = enhanced
			result.SetStatus(model.DocumentStatusEnhanced)
		}
	}

	refinedScore := -1.0
	if quality != "" && p.refiner != nil {
		refined, score, err := p.refiner.Refine(ctx, kind, content, quality)
		if err != nil {
			logger.WithError(err).Warn("refinement failed, keeping current content")
		} else {
			content = refined
			refinedScore = score
		}
	}

	report := Validate(kind, content)
	result.SetStatus(model.DocumentStatusValidated)
	result.Content = content
	result.Validation = &report
	result.Metadata = model.DocumentMetadata{
		GeneratedAt:      p.now(),
		QualityScore:     report.QualityScore,
		ValidationPassed: report.Passed,
		WordCount:        report.WordCount,
		SectionCount:     CountSections(content),
		Duration:         time.Since(start),
	}
	if refinedScore >= 0 {
		result.Metadata.QualityScore = refinedScore
	}
	result.SetStatus(model.DocumentStatusCompleted)

	if p.sink != nil {
		if err := p.sink.SaveDraft(ctx, req.ConversationID, result); err != nil {
			logger.WithError(err).Warn("save draft failed")
		}
	}
	logger.Info("document completed",
		"words", report.WordCount, "completeness", report.Completeness, "passed", report.Passed)
	return result
}

// harmonize 跨文档一致性协调，更新内容后重新校验并重新评分
func (p *Pipeline) harmonize(ctx context.Context, conversationID string, results []*model.DocumentGenerationResult) {
	docs := make(map[model.DocumentKind]string)
	for _, r := range results {
		if r.Succeeded() {
			docs[r.Kind] = r.Content
		}
	}
	if len(docs) < 2 {
		return
	}
	updated, err := p.refiner.Harmonize(ctx, docs)
	if err != nil {
		p.logger.WithConversationID(conversationID).WithError(err).Warn("harmonization failed")
		return
	}
	for _, r := range results {
		content, ok := updated[r.Kind]
		if !ok || !r.Succeeded() {
			continue
		}
		report := Validate(r.Kind, content)
		r.Content = content
		r.Validation = &report
		r.Metadata.ValidationPassed = report.Passed
		r.Metadata.WordCount = report.WordCount
		r.Metadata.SectionCount = CountSections(content)
		r.Metadata.QualityScore = report.QualityScore
		if score, err := p.refiner.Score(ctx, r.Kind, content); err != nil {
			p.logger.WithConversationID(conversationID).WithError(err).Warn("rescore failed, using validation score", "kind", string(r.Kind))
		} else {
			r.Metadata.QualityScore = score
		}
	}
}

func (p *Pipeline) notifyStatus(ctx context.Context, conversationID string, r *model.DocumentGenerationResult) {
	data := map[string]interface{}{"kind": string(r.Kind), "status": string(r.Status)}
	if r.Error != "" {
		data["error"] = r.Error
	}
	p.notifier.Notify(ctx, conversationID, eventbus.EventDocumentStatus, data)
}

func newResult(kind model.DocumentKind) *model.DocumentGenerationResult {
	return &model.DocumentGenerationResult{Kind: kind, Status: model.DocumentStatusPending}
}

func copyUpstream(in map[model.DocumentKind]string) map[model.DocumentKind]string {
	out := make(map[model.DocumentKind]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func kindsString(kinds []model.DocumentKind) string {
	parts := make([]string, len(kinds))
	for i, k := range kinds {
		parts[i] = string(k)
	}
	return strings.Join(parts, ",")
}

// FailedKinds 返回失败的文档类型，便于调用方只重试这些文档
func FailedKinds(results []*model.DocumentGenerationResult) []model.DocumentKind {
	var out []model.DocumentKind
	for _, r := range results {
		if r.Status == model.DocumentStatusError {
			out = append(out, r.Kind)
		}
	}
	return out
}
