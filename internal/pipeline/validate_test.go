package pipeline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"agentpm/internal/shared/model"
)

// document 生成包含指定章节和字数的文档
func document(sections []string, words int, extra string) string {
	var b strings.Builder
	for _, s := range sections {
		b.WriteString("## " + s + "\n\n")
	}
	b.WriteString(strings.Repeat("detail ", words))
	b.WriteString(extra)
	return b.String()
}

func TestValidateCompleteDocument(t *testing.T) {
	content := document(RequiredSections[model.DocumentPRD], 250, "")
	r := Validate(model.DocumentPRD, content)
	assert.Equal(t, 100.0, r.Completeness)
	assert.Empty(t, r.MissingSections)
	assert.Empty(t, r.Issues)
	assert.Equal(t, 100.0, r.QualityScore)
	assert.True(t, r.Passed)
}

func TestValidateGatesAreIndependent(t *testing.T) {
	tests := []struct {
		name         string
		completeness float64
		issues       int
		words        int
		passed       bool
		score        float64
	}{
		{"completeness below 70 with enough words", 60, 1, 250, false, 50},
		{"all gates at threshold", 70, 2, 200, true, 50},
		{"too many issues", 100, 3, 500, false, 70},
		{"too few words", 100, 0, 199, false, 100},
		{"score floors at zero", 20, 3, 10, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issues := make([]string, tt.issues)
			r := Evaluate(tt.completeness, nil, issues, tt.words)
			assert.Equal(t, tt.passed, r.Passed)
			assert.Equal(t, tt.score, r.QualityScore)
		})
	}
}

func TestValidatePlaceholders(t *testing.T) {
	content := document(RequiredSections[model.DocumentERD], 250, " TODO fill this. tbd. Another todo.")
	r := Validate(model.DocumentERD, content)
	assert.Equal(t, []string{"placeholder text: todo", "placeholder text: tbd"}, r.Issues)
	assert.Equal(t, 80.0, r.QualityScore)
	assert.True(t, r.Passed)
}

func TestValidateMissingSections(t *testing.T) {
	// 5 个必需章节中缺 2 个 → 60%
	content := document([]string{"Introduction", "Interfaces", "Constraints"}, 300, "")
	r := Validate(model.DocumentSRS, content)
	assert.Equal(t, 60.0, r.Completeness)
	assert.Equal(t, []string{"functional requirements", "non-functional requirements"}, r.MissingSections)
	assert.False(t, r.Passed)
}

func TestCountSections(t *testing.T) {
	assert.Equal(t, 3, CountSections("# A\ntext\n## B\n  ### C\nno # heading"))
	assert.Equal(t, 0, CountSections(""))
}
