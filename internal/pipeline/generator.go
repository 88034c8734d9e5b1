package pipeline

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"agentpm/internal/agent"
	"agentpm/internal/llm"
	"agentpm/internal/shared/model"
)

// ErrNoGenerator 文档类型没有注册生成器
var ErrNoGenerator = errors.New("pipeline: no generator registered")

// GenerationContext 单个文档的生成上下文
type GenerationContext struct {
	ConversationID   string
	ConversationKind model.ConversationKind
	Kind             model.DocumentKind
	// Fields 共享上下文与问答提取字段
	Fields map[string]string
	// Upstream 本次调用中已完成的依赖文档内容
	Upstream map[model.DocumentKind]string
}

// Generator 文档生成器，每种文档类型一个实现
type Generator interface {
	Generate(ctx context.Context, gc GenerationContext) (string, error)
}

// GeneratorFunc 函数适配器
type GeneratorFunc func(ctx context.Context, gc GenerationContext) (string, error)

// Generate 实现 Generator
func (f GeneratorFunc) Generate(ctx context.Context, gc GenerationContext) (string, error) {
	return f(ctx, gc)
}

// Generators 文档类型 → 生成器
type Generators map[model.DocumentKind]Generator

// LLMGenerator 通过大模型生成文档
type LLMGenerator struct {
	kind      model.DocumentKind
	invoker   llm.Invoker
	modelHint string
}

// NewLLMGenerators 为全部文档类型创建基于大模型的生成器
func NewLLMGenerators(invoker llm.Invoker, modelHint string) Generators {
	out := make(Generators, len(model.AllDocumentKinds))
	for _, k := range model.AllDocumentKinds {
		out[k] = &LLMGenerator{kind: k, invoker: invoker, modelHint: modelHint}
	}
	return out
}

// Generate 实现 Generator
func (g *LLMGenerator) Generate(ctx context.Context, gc GenerationContext) (string, error) {
	return g.invoker.Invoke(ctx, GenerationPrompt(gc), g.modelHint)
}

// GenerationPrompt 组装文档生成提示词
func GenerationPrompt(gc GenerationContext) string {
	var b strings.Builder
	producer, _ := agent.Producer(gc.Kind)
	fmt.Fprintf(&b, "You are the %s. Write the %s document in Markdown for a %s project.\n",
		agent.Role(producer), strings.ToUpper(string(gc.Kind)), gc.ConversationKind)

	if secs := RequiredSections[gc.Kind]; len(secs) > 0 {
		b.WriteString("\nInclude a heading for each of these sections: ")
		b.WriteString(strings.Join(secs, ", "))
		b.WriteString(".\n")
	}

	if len(gc.Fields) > 0 {
		keys := make([]string, 0, len(gc.Fields))
		for k := range gc.Fields {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		b.WriteString("\nProject context:\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %s\n", k, gc.Fields[k])
		}
	}

	for _, dep := range Dependencies[gc.Kind] {
		if content, ok := gc.Upstream[dep]; ok {
			fmt.Fprintf(&b, "\nUpstream %s:\n%s\n", strings.ToUpper(string(dep)), content)
		}
	}

	b.WriteString("\nDo not leave placeholder text.")
	return b.String()
}

// ============================================================================
// Enhancer
// ============================================================================

// Enhancer 内容增强接口
type Enhancer interface {
	Enhance(ctx context.Context, kind model.DocumentKind, content string, level model.EnhancementLevel) (string, error)
}

// EnhancementInstruction 各增强级别的指令
func EnhancementInstruction(level model.EnhancementLevel) string {
	switch level {
	case model.EnhancementStandard:
		return "Improve clarity, structure and completeness."
	case model.EnhancementAdvanced:
		return "Improve clarity, structure and completeness. Add concrete examples, edge cases and acceptance criteria."
	default:
		return ""
	}
}

// LLMEnhancer 通过大模型增强文档
type LLMEnhancer struct {
	invoker   llm.Invoker
	modelHint string
}

// NewLLMEnhancer 创建增强器
func NewLLMEnhancer(invoker llm.Invoker, modelHint string) *LLMEnhancer {
	return &LLMEnhancer{invoker: invoker, modelHint: modelHint}
}

// Enhance 实现 Enhancer；级别为 none 时原样返回
func (e *LLMEnhancer) Enhance(ctx context.Context, kind model.DocumentKind, content string, level model.EnhancementLevel) (string, error) {
	instruction := EnhancementInstruction(level)
	if instruction == "" {
		return content, nil
	}
	prompt := fmt.Sprintf("Revise the following %s document. %s Keep every existing section heading.\n\n%s",
		strings.ToUpper(string(kind)), instruction, content)
	return e.invoker.Invoke(ctx, prompt, e.modelHint)
}
