package quality

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentpm/internal/pipeline"
	"agentpm/internal/shared/metrics"
	"agentpm/internal/shared/model"
)

// scriptedReviewer 按调用顺序返回预设结果，最后一个结果重复使用
type scriptedReviewer struct {
	mu      sync.Mutex
	results []model.ReviewResult
	passes  []int
}

func (s *scriptedReviewer) Review(_ context.Context, _ model.DocumentKind, _ string, pass int) (model.ReviewResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := min(len(s.passes), len(s.results)-1)
	s.passes = append(s.passes, pass)
	r := s.results[i]
	r.Pass = pass
	return r, nil
}

func review(score float64, issues map[model.Severity][]string) model.ReviewResult {
	return model.ReviewResult{Aggregate: score, Issues: issues, ImprovementsNeeded: score < DefaultThreshold}
}

type recordingImprover struct {
	severities []model.Severity
	err        error
}

func (r *recordingImprover) Improve(_ context.Context, _ model.DocumentKind, content string, sev model.Severity, _ []string) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	r.severities = append(r.severities, sev)
	return content + "\nfixed " + string(sev), nil
}

func TestBudgetFor(t *testing.T) {
	assert.Equal(t, Budget{1, 1}, BudgetFor(model.QualityDraft))
	assert.Equal(t, Budget{2, 2}, BudgetFor(model.QualityStandard))
	assert.Equal(t, Budget{3, 2}, BudgetFor(model.QualityPremium))
	assert.Equal(t, Budget{5, 3}, BudgetFor(model.QualityExcellence))
	assert.Equal(t, Budget{2, 2}, BudgetFor("unknown"))
}

func TestRefineImprovesBySeverity(t *testing.T) {
	reviewer := &scriptedReviewer{results: []model.ReviewResult{
		review(70, map[model.Severity][]string{
			model.SeverityMinor:    {"too short"},
			model.SeverityCritical: {"missing section: goals"},
		}),
		review(86, nil),
		review(88, nil),
	}}
	improver := &recordingImprover{}
	loop := New(reviewer, improver, Options{})

	out, err := loop.RefineDocument(context.Background(), "draft", model.DocumentPRD, model.QualityStandard)
	require.NoError(t, err)

	assert.Equal(t, []model.Severity{model.SeverityCritical, model.SeverityMinor}, improver.severities)
	assert.Equal(t, []float64{70, 80, 84, 86}, out.Trajectory)
	assert.Equal(t, 2, out.Iterations)
	assert.Len(t, out.Passes, 2)
	assert.Equal(t, []int{1, 2, 3}, reviewer.passes, "final review always runs")
	assert.Equal(t, 88.0, out.FinalScore)
	assert.Equal(t, "draft\nfixed critical\nfixed minor", out.Content)
}

func TestRefineStopsAtThreshold(t *testing.T) {
	reviewer := &scriptedReviewer{results: []model.ReviewResult{
		review(80, map[model.Severity][]string{
			model.SeverityMajor:  {"placeholder text: tbd"},
			model.SeverityMinor:  {"too short"},
			model.SeverityPolish: {"add examples"},
		}),
		review(90, nil),
	}}
	improver := &recordingImprover{}
	out, err := New(reviewer, improver, Options{}).RefineDocument(context.Background(), "x", model.DocumentBRD, model.QualityExcellence)
	require.NoError(t, err)

	assert.Equal(t, []model.Severity{model.SeverityMajor}, improver.severities)
	assert.Equal(t, 80.0, out.Trajectory[0])
	assert.Equal(t, 87.0, out.Trajectory[1])
}

func TestRefineScoreCappedAt100(t *testing.T) {
	reviewer := &scriptedReviewer{results: []model.ReviewResult{
		{Aggregate: 97, ImprovementsNeeded: true, Issues: map[model.Severity][]string{model.SeverityBlocker: {"empty"}}},
		review(99, nil),
	}}
	loop := New(reviewer, &recordingImprover{}, Options{Threshold: 100, Excellence: 100})
	out, err := loop.RefineDocument(context.Background(), "x", model.DocumentERD, model.QualityStandard)
	require.NoError(t, err)
	assert.Equal(t, []float64{97, 100, 99}, out.Trajectory)
}

func TestRefineTrajectoryMonotonicWithinPass(t *testing.T) {
	issues := map[model.Severity][]string{
		model.SeverityCritical: {"a"}, model.SeverityMajor: {"b"}, model.SeverityMinor: {"c"},
	}
	reviewer := &scriptedReviewer{results: []model.ReviewResult{review(40, issues), review(50, issues), review(60, issues)}}
	out, err := New(reviewer, &recordingImprover{}, Options{}).RefineDocument(context.Background(), "x", model.DocumentSRS, model.QualityExcellence)
	require.NoError(t, err)

	// 每轮：1 个评审分 + 最多 3 个改进分
	for i := 0; i+3 < len(out.Trajectory) && i < 12; i += 4 {
		pass := out.Trajectory[i : i+4]
		for j := 1; j < len(pass); j++ {
			assert.GreaterOrEqual(t, pass[j], pass[j-1])
		}
	}
	assert.Len(t, out.Passes, 5)
	assert.Equal(t, 12, out.Iterations, "4 improving passes x 3 iterations")
}

func TestRefineExcellenceStopsEarly(t *testing.T) {
	reviewer := &scriptedReviewer{results: []model.ReviewResult{review(96, nil), review(97, nil)}}
	improver := &recordingImprover{}
	out, err := New(reviewer, improver, Options{}).RefineDocument(context.Background(), "x", model.DocumentPRD, model.QualityPremium)
	require.NoError(t, err)

	assert.Len(t, out.Passes, 1)
	assert.Equal(t, []int{1, 2}, reviewer.passes)
	assert.Equal(t, 97.0, out.FinalScore)
	assert.Empty(t, improver.severities)
}

func TestRefineDraftNeverImproves(t *testing.T) {
	reviewer := &scriptedReviewer{results: []model.ReviewResult{
		review(50, map[model.Severity][]string{model.SeverityCritical: {"missing"}}),
	}}
	improver := &recordingImprover{}
	out, err := New(reviewer, improver, Options{}).RefineDocument(context.Background(), "x", model.DocumentPRD, model.QualityDraft)
	require.NoError(t, err)

	assert.Empty(t, improver.severities)
	assert.Equal(t, []float64{50}, out.Trajectory)
	assert.Equal(t, 50.0, out.FinalScore)
}

func TestRefineImproverFailureKeepsContent(t *testing.T) {
	reviewer := &scriptedReviewer{results: []model.ReviewResult{
		review(60, map[model.Severity][]string{model.SeverityMajor: {"tbd"}}),
		review(62, nil),
	}}
	out, err := New(reviewer, &recordingImprover{err: errors.New("llm down")}, Options{}).
		RefineDocument(context.Background(), "original", model.DocumentPRD, model.QualityStandard)
	require.NoError(t, err)
	assert.Equal(t, "original", out.Content)
	assert.Equal(t, 0, out.Iterations)
	assert.Equal(t, 62.0, out.FinalScore)
}

func TestRefineRecordsMetrics(t *testing.T) {
	m := metrics.New("agentpm")
	reviewer := &scriptedReviewer{results: []model.ReviewResult{review(90, nil)}}
	loop := New(reviewer, nil, Options{}).WithObservability(m, nil, nil)

	content, score, err := loop.Refine(context.Background(), model.DocumentPRD, "body", model.QualityStandard)
	require.NoError(t, err)
	assert.Equal(t, "body", content)
	assert.Equal(t, 90.0, score)
	assert.Equal(t, 1, testutil.CollectAndCount(m.RefinementScore))
}

// ============================================================================
// HeuristicReviewer
// ============================================================================

func prdDocument(extra string) string {
	var b strings.Builder
	for _, s := range pipeline.RequiredSections[model.DocumentPRD] {
		b.WriteString("## " + s + "\n\n")
	}
	b.WriteString(strings.Repeat("detail ", 250))
	b.WriteString(extra)
	return b.String()
}

func TestHeuristicReviewerCompleteDocument(t *testing.T) {
	r, err := NewHeuristicReviewer(0).Review(context.Background(), model.DocumentPRD,
		prdDocument("for example scalability beats competitors"), 1)
	require.NoError(t, err)

	assert.Len(t, r.Scores, len(model.Dimensions))
	assert.Equal(t, 97.5, r.Aggregate)
	assert.Empty(t, r.Issues)
	assert.True(t, r.Approved)
	assert.False(t, r.ImprovementsNeeded)
}

func TestHeuristicReviewerBucketsIssues(t *testing.T) {
	content := "## Overview\n\nTBD\n"
	r, err := NewHeuristicReviewer(0).Review(context.Background(), model.DocumentPRD, content, 1)
	require.NoError(t, err)

	assert.Len(t, r.Issues[model.SeverityCritical], 5)
	assert.Equal(t, []string{"placeholder text: tbd"}, r.Issues[model.SeverityMajor])
	assert.Len(t, r.Issues[model.SeverityMinor], 1)
	assert.Len(t, r.Issues[model.SeverityPolish], 1)
	assert.NotContains(t, r.Issues, model.SeverityBlocker)
	assert.True(t, r.ImprovementsNeeded)
	assert.False(t, r.Approved)
	assert.Equal(t, "[critical] resolve: missing section: problem", r.Recommendations[0])

	empty, err := NewHeuristicReviewer(0).Review(context.Background(), model.DocumentPRD, "  ", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"document is empty"}, empty.Issues[model.SeverityBlocker])
}

func TestHeuristicReviewerDuplicateHeadings(t *testing.T) {
	assert.Equal(t, 100.0, consistencyScore("# A\n# B"))
	assert.Equal(t, 80.0, consistencyScore("# A\n## a\n### A"))
}

type failingReviewer struct{}

func (failingReviewer) Review(context.Context, model.DocumentKind, string, int) (model.ReviewResult, error) {
	return model.ReviewResult{}, errors.New("reviewer down")
}

func TestLoopScore(t *testing.T) {
	reviewer := &scriptedReviewer{results: []model.ReviewResult{review(83, nil)}}
	var ref pipeline.Refiner = New(reviewer, nil, Options{})

	score, err := ref.Score(context.Background(), model.DocumentPRD, "content")
	require.NoError(t, err)
	assert.Equal(t, 83.0, score)
	assert.Equal(t, []int{1}, reviewer.passes)

	_, err = New(failingReviewer{}, nil, Options{}).Score(context.Background(), model.DocumentSRS, "content")
	assert.EqualError(t, err, "score srs: reviewer down")
}
