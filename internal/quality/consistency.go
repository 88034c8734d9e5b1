package quality

import (
	"context"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"agentpm/internal/pipeline"
	"agentpm/internal/shared/model"
)

// TermGroups 同义术语组，组内第一个为默认规范术语
var TermGroups = [][]string{
	{"user", "customer", "client", "member"},
	{"account", "profile"},
	{"order", "purchase"},
	{"product", "item"},
	{"administrator", "admin", "operator"},
	{"notification", "alert"},
	{"dashboard", "console"},
	{"entity", "table"},
}

var termPatterns = compileTermPatterns()

func compileTermPatterns() map[string]*regexp.Regexp {
	out := map[string]*regexp.Regexp{}
	for _, group := range TermGroups {
		for _, term := range group {
			out[term] = regexp.MustCompile(`(?i)\b(?:` + regexp.QuoteMeta(plural(term)) + `|` + regexp.QuoteMeta(term) + `)\b`)
		}
	}
	return out
}

// plural 英文复数：辅音 + y 变 ies，其余加 s
func plural(term string) string {
	if n := len(term); n > 1 && term[n-1] == 'y' && !strings.ContainsRune("aeiou", rune(term[n-2])) {
		return term[:n-1] + "ies"
	}
	return term + "s"
}

// Conflict 两个文档对同一概念使用了不同术语
type Conflict struct {
	Group string             `json:"group"`
	A     model.DocumentKind `json:"a"`
	TermA string             `json:"term_a"`
	B     model.DocumentKind `json:"b"`
	TermB string             `json:"term_b"`
}

func (c Conflict) String() string {
	return fmt.Sprintf("%s uses %q, %s uses %q", c.A, c.TermA, c.B, c.TermB)
}

// dominantTerm 文档在术语组内出现最多的术语，未出现返回空
func dominantTerm(content string, group []string) string {
	best, bestN := "", 0
	for _, term := range group {
		if n := len(termPatterns[term].FindAllStringIndex(content, -1)); n > bestN {
			best, bestN = term, n
		}
	}
	return best
}

// orderedKinds 按默认处理顺序排列文档
func orderedKinds(docs map[model.DocumentKind]string) []model.DocumentKind {
	return pipeline.Order(slices.Sorted(maps.Keys(docs)), nil)
}

// CheckConsistency 两两比较文档的术语使用
func CheckConsistency(docs map[model.DocumentKind]string) []Conflict {
	kinds := orderedKinds(docs)
	var out []Conflict
	for _, group := range TermGroups {
		terms := make(map[model.DocumentKind]string, len(kinds))
		for _, k := range kinds {
			terms[k] = dominantTerm(docs[k], group)
		}
		for i, a := range kinds {
			for _, b := range kinds[i+1:] {
				if terms[a] == "" || terms[b] == "" || terms[a] == terms[b] {
					continue
				}
				out = append(out, Conflict{Group: group[0], A: a, TermA: terms[a], B: b, TermB: terms[b]})
			}
		}
	}
	return out
}

// DiffStats 协调前后的字符增删统计
type DiffStats struct {
	Insertions int `json:"insertions"`
	Deletions  int `json:"deletions"`
}

// Changed 是否有修改
func (d DiffStats) Changed() bool {
	return d.Insertions > 0 || d.Deletions > 0
}

// Diff 统计两段文本的差异
func Diff(before, after string) DiffStats {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffCleanupSemantic(dmp.DiffMain(before, after, false))
	var stats DiffStats
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			stats.Insertions += len(d.Text)
		case diffmatchpatch.DiffDelete:
			stats.Deletions += len(d.Text)
		}
	}
	return stats
}

// Harmonizer 根据冲突改写文档
type Harmonizer interface {
	Harmonize(ctx context.Context, docs map[model.DocumentKind]string, conflicts []Conflict) (map[model.DocumentKind]string, map[model.DocumentKind]DiffStats, error)
}

// ============================================================================
// TermHarmonizer - 术语统一
// ============================================================================

// TermHarmonizer 以处理顺序最靠前文档的用词为准统一术语
type TermHarmonizer struct{}

// NewTermHarmonizer 创建术语协调器
func NewTermHarmonizer() *TermHarmonizer {
	return &TermHarmonizer{}
}

// Harmonize 实现 Harmonizer，只返回被修改的文档
func (h *TermHarmonizer) Harmonize(_ context.Context, docs map[model.DocumentKind]string, conflicts []Conflict) (map[model.DocumentKind]string, map[model.DocumentKind]DiffStats, error) {
	// 每个术语组的规范用词：第一个冲突的 A 端即处理顺序最靠前的文档
	canonical := map[string]string{}
	for _, c := range conflicts {
		if _, ok := canonical[c.Group]; !ok {
			canonical[c.Group] = c.TermA
		}
	}

	rewrites := map[model.DocumentKind]map[string]bool{}
	for _, c := range conflicts {
		if c.TermB == canonical[c.Group] {
			continue
		}
		if rewrites[c.B] == nil {
			rewrites[c.B] = map[string]bool{}
		}
		rewrites[c.B][c.Group] = true
	}

	updated := map[model.DocumentKind]string{}
	stats := map[model.DocumentKind]DiffStats{}
	for kind, groups := range rewrites {
		before := docs[kind]
		after := before
		for _, group := range TermGroups {
			if groups[group[0]] {
				after = replaceTerms(after, kind, group, canonical[group[0]])
			}
		}
		if d := Diff(before, after); d.Changed() {
			updated[kind] = after
			stats[kind] = d
		}
	}
	return updated, stats, nil
}

// protectedTerm 术语出现在该文档类型的必需章节名中时不改写，否则会破坏结构校验
func protectedTerm(kind model.DocumentKind, term string) bool {
	for _, sec := range pipeline.RequiredSections[kind] {
		if termPatterns[term].MatchString(sec) {
			return true
		}
	}
	return false
}

// replaceTerms 把组内其他术语替换为规范术语
//
// 跳过 Markdown 标题行与受保护术语；保留单复数与大小写形式。
func replaceTerms(content string, kind model.DocumentKind, group []string, canonical string) string {
	var terms []string
	for _, term := range group {
		if term != canonical && !protectedTerm(kind, term) {
			terms = append(terms, term)
		}
	}
	if len(terms) == 0 {
		return content
	}

	lines := strings.SplitAfter(content, "\n")
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			continue
		}
		for _, term := range terms {
			line = termPatterns[term].ReplaceAllStringFunc(line, func(m string) string {
				return matchForm(m, term, canonical)
			})
		}
		lines[i] = line
	}
	return strings.Join(lines, "")
}

// matchForm 让规范术语沿用原词的单复数与大小写
func matchForm(match, term, canonical string) string {
	repl := canonical
	if strings.EqualFold(match, plural(term)) {
		repl = plural(canonical)
	}
	switch {
	case len(match) > 1 && match == strings.ToUpper(match):
		return strings.ToUpper(repl)
	case match[0] >= 'A' && match[0] <= 'Z':
		return strings.ToUpper(repl[:1]) + repl[1:]
	}
	return repl
}
