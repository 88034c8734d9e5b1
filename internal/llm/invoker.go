// Package llm 大模型调用接口
//
// 核心流程只依赖 Invoker；模型选择、超时等策略由具体实现负责。
package llm

import (
	"context"
	"errors"
)

// ErrEmptyResponse 模型返回空内容
var ErrEmptyResponse = errors.New("llm: empty response")

// Invoker 大模型调用接口
type Invoker interface {
	// Invoke 发送提示词并返回完整文本，modelHint 为空时使用默认模型
	Invoke(ctx context.Context, prompt, modelHint string) (string, error)
}

// InvokerFunc 函数适配器
type InvokerFunc func(ctx context.Context, prompt, modelHint string) (string, error)

// Invoke 实现 Invoker
func (f InvokerFunc) Invoke(ctx context.Context, prompt, modelHint string) (string, error) {
	return f(ctx, prompt, modelHint)
}

// EstimateTokens 粗略估算 token 数（约 4 字符 / token）
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + 3) / 4
}
