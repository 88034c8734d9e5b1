package quality

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"agentpm/internal/shared/model"
)

// BatchOutcome 批量精炼结果
type BatchOutcome struct {
	Documents map[model.DocumentKind]*Outcome `json:"documents"`
	Conflicts []Conflict                      `json:"conflicts,omitempty"`
	// Harmonized 被协调改写的文档及差异统计
	Harmonized   map[model.DocumentKind]DiffStats `json:"harmonized,omitempty"`
	OverallScore float64                          `json:"overall_score"`
}

// RefineBatch 逐个精炼文档，随后做跨文档一致性检查与协调
//
// 被改写的文档重新终审，整体评分为各文档终审评分的平均值。
func (l *Loop) RefineBatch(ctx context.Context, docs map[model.DocumentKind]string, level model.QualityLevel) (*BatchOutcome, error) {
	out := &BatchOutcome{
		Documents:  make(map[model.DocumentKind]*Outcome, len(docs)),
		Harmonized: map[model.DocumentKind]DiffStats{},
	}
	if len(docs) == 0 {
		return out, nil
	}

	refined := make(map[model.DocumentKind]string, len(docs))
	for _, kind := range orderedKinds(docs) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		o, err := l.RefineDocument(ctx, docs[kind], kind, level)
		if err != nil {
			return nil, fmt.Errorf("refine %s: %w", kind, err)
		}
		out.Documents[kind] = o
		refined[kind] = o.Content
	}

	out.Conflicts = CheckConsistency(refined)
	if len(out.Conflicts) > 0 {
		if l.metrics != nil {
			l.metrics.ConsistencyConflicts.Add(float64(len(out.Conflicts)))
		}
		l.logger.WithContext(ctx).Info("consistency conflicts found", "count", len(out.Conflicts))

		updated, stats, err := l.harmonizer.Harmonize(ctx, refined, out.Conflicts)
		if err != nil {
			return nil, fmt.Errorf("harmonize: %w", err)
		}
		for _, kind := range slices.Sorted(maps.Keys(updated)) {
			o := out.Documents[kind]
			final, err := l.reviewer.Review(ctx, kind, updated[kind], len(o.Passes)+1)
			if err != nil {
				return nil, fmt.Errorf("review harmonized %s: %w", kind, err)
			}
			o.Content = updated[kind]
			o.Final = final
			o.FinalScore = final.Aggregate
			out.Harmonized[kind] = stats[kind]
		}
	}

	sum := 0.0
	for _, o := range out.Documents {
		sum += o.FinalScore
	}
	out.OverallScore = sum / float64(len(out.Documents))
	return out, nil
}

// Contents 精炼后的文档内容
func (b *BatchOutcome) Contents() map[model.DocumentKind]string {
	out := make(map[model.DocumentKind]string, len(b.Documents))
	for k, o := range b.Documents {
		out[k] = o.Content
	}
	return out
}
