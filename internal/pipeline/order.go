package pipeline

import (
	"slices"

	"agentpm/internal/shared/model"
)

// DefaultMaxBatchWidth 默认单批最大并发文档数
const DefaultMaxBatchWidth = 3

// DefaultPrecedence 默认处理顺序
var DefaultPrecedence = []model.DocumentKind{
	model.DocumentPRD,
	model.DocumentBRD,
	model.DocumentUXDD,
	model.DocumentSRS,
	model.DocumentERD,
	model.DocumentDBRD,
}

// DependencyTable 文档依赖表：文档 → 必须先完成的文档
type DependencyTable map[model.DocumentKind][]model.DocumentKind

// Dependencies 默认依赖表
var Dependencies = DependencyTable{
	model.DocumentBRD:  {model.DocumentPRD},
	model.DocumentUXDD: {model.DocumentPRD},
	model.DocumentSRS:  {model.DocumentPRD, model.DocumentBRD},
	model.DocumentERD:  {model.DocumentPRD},
	model.DocumentDBRD: {model.DocumentERD},
}

// Order 计算线性处理顺序
//
// 有 override 时先取其中属于 requested 的文档，再按 requested 的顺序追加其余文档；
// 否则按 DefaultPrecedence 排序，不在表中的文档保持原顺序排在最后。
// 结果去重。
func Order(requested, override []model.DocumentKind) []model.DocumentKind {
	out := make([]model.DocumentKind, 0, len(requested))
	add := func(k model.DocumentKind) {
		if slices.Contains(requested, k) && !slices.Contains(out, k) {
			out = append(out, k)
		}
	}

	if len(override) > 0 {
		for _, k := range override {
			add(k)
		}
		for _, k := range requested {
			add(k)
		}
		return out
	}

	for _, k := range DefaultPrecedence {
		add(k)
	}
	for _, k := range requested {
		add(k)
	}
	return out
}

// Plan 批次划分结果
type Plan struct {
	Batches [][]model.DocumentKind
	// Forced 因依赖无法满足而被强制提前的文档
	Forced []model.DocumentKind
}

// Batches 按依赖划分批次
//
// 文档只有在其全部依赖已出现在之前的批次时才能进入当前批次；
// 不在本次请求中的依赖视为已满足。每批最多 width 个文档。
// 没有任何文档可入批时（依赖环等），强制加入第一个未处理的文档以保证前进。
// deps 为 nil 时使用 Dependencies。
func Batches(order []model.DocumentKind, deps DependencyTable, width int) Plan {
	if width <= 0 {
		width = DefaultMaxBatchWidth
	}
	if deps == nil {
		deps = Dependencies
	}

	var plan Plan
	done := make(map[model.DocumentKind]bool, len(order))
	remaining := slices.Clone(order)

	for len(remaining) > 0 {
		var batch []model.DocumentKind
		for _, k := range remaining {
			if len(batch) >= width {
				break
			}
			if deps.ready(k, order, done) {
				batch = append(batch, k)
			}
		}
		if len(batch) == 0 {
			batch = []model.DocumentKind{remaining[0]}
			plan.Forced = append(plan.Forced, remaining[0])
		}

		for _, k := range batch {
			done[k] = true
		}
		remaining = slices.DeleteFunc(remaining, func(k model.DocumentKind) bool { return done[k] })
		plan.Batches = append(plan.Batches, batch)
	}
	return plan
}

// ready 依赖是否都已在之前的批次中
func (t DependencyTable) ready(k model.DocumentKind, order []model.DocumentKind, done map[model.DocumentKind]bool) bool {
	for _, dep := range t[k] {
		if slices.Contains(order, dep) && !done[dep] {
			return false
		}
	}
	return true
}

// Sequential 每个文档一个批次
func Sequential(order []model.DocumentKind) Plan {
	plan := Plan{Batches: make([][]model.DocumentKind, 0, len(order))}
	for _, k := range order {
		plan.Batches = append(plan.Batches, []model.DocumentKind{k})
	}
	return plan
}
