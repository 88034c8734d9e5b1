package pipeline

import (
	"maps"
	"slices"
	"sort"
	"strings"

	"agentpm/internal/shared/model"
)

// fieldRule 问题关键词 → 上下文字段
type fieldRule struct {
	field    string
	keywords []string
}

var fieldRules = []fieldRule{
	{"problem_statement", []string{"problem"}},
	{"target_users", []string{"user", "audience", "customer"}},
	{"goals", []string{"goal", "objective"}},
	{"key_features", []string{"feature", "functionality"}},
	{"constraints", []string{"constraint", "limitation"}},
	{"timeline", []string{"timeline", "deadline"}},
	{"budget", []string{"budget", "cost"}},
	{"success_metrics", []string{"success", "metric", "kpi"}},
	{"data_entities", []string{"data", "entity", "store"}},
	{"integrations", []string{"integrat"}},
	{"competitors", []string{"compet"}},
	{"risks", []string{"risk"}},
	{"stakeholders", []string{"stakeholder"}},
	{"platforms", []string{"platform", "device"}},
}

// kindFields 各文档类型关心的字段
var kindFields = map[model.DocumentKind][]string{
	model.DocumentPRD:  {"problem_statement", "target_users", "goals", "key_features", "success_metrics", "timeline", "constraints", "competitors"},
	model.DocumentBRD:  {"problem_statement", "goals", "stakeholders", "budget", "timeline", "risks", "competitors", "success_metrics"},
	model.DocumentUXDD: {"target_users", "key_features", "platforms", "constraints"},
	model.DocumentSRS:  {"key_features", "constraints", "integrations", "platforms", "data_entities"},
	model.DocumentERD:  {"data_entities", "key_features", "integrations"},
	model.DocumentDBRD: {"data_entities", "constraints", "integrations"},
}

// ExtractFields 按问题关键词把问答映射为上下文字段
//
// 一个问题可命中多个字段；同一字段的多个回答按问题排序后换行拼接。
func ExtractFields(qa map[string]string) map[string]string {
	questions := slices.Collect(maps.Keys(qa))
	sort.Strings(questions)

	out := make(map[string]string)
	for _, q := range questions {
		answer := strings.TrimSpace(qa[q])
		if answer == "" {
			continue
		}
		lower := strings.ToLower(q)
		for _, rule := range fieldRules {
			if !matchesAny(lower, rule.keywords) {
				continue
			}
			if prev, ok := out[rule.field]; ok {
				out[rule.field] = prev + "\n" + answer
			} else {
				out[rule.field] = answer
			}
		}
	}
	return out
}

func matchesAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

// FieldsFor 只保留文档类型关心的字段
func FieldsFor(kind model.DocumentKind, fields map[string]string) map[string]string {
	out := make(map[string]string)
	for _, f := range kindFields[kind] {
		if v, ok := fields[f]; ok {
			out[f] = v
		}
	}
	return out
}

// BuildContext 合并共享上下文与问答提取结果，问答字段覆盖同名共享字段
func BuildContext(kind model.DocumentKind, shared, qa map[string]string) map[string]string {
	out := make(map[string]string, len(shared))
	maps.Copy(out, shared)
	maps.Copy(out, FieldsFor(kind, ExtractFields(qa)))
	return out
}
