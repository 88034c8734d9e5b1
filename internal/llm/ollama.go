package llm

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	ollama "github.com/ollama/ollama/api"

	"agentpm/internal/config"
)

// OllamaInvoker 基于 Ollama Chat API 的 Invoker
type OllamaInvoker struct {
	client  *ollama.Client
	model   string
	timeout time.Duration
}

var _ Invoker = (*OllamaInvoker)(nil)

// NewOllamaInvoker 创建 Ollama 调用器
//
// cfg.Host 为空时读取 OLLAMA_HOST 环境变量。
func NewOllamaInvoker(cfg config.LLMConfig) (*OllamaInvoker, error) {
	var (
		client *ollama.Client
		err    error
	)
	if cfg.Host != "" {
		base, perr := url.Parse(cfg.Host)
		if perr != nil {
			return nil, fmt.Errorf("invalid ollama host %q: %w", cfg.Host, perr)
		}
		client = ollama.NewClient(base, http.DefaultClient)
	} else {
		client, err = ollama.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("could not create ollama client: %w", err)
		}
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("llm model is required")
	}
	return &OllamaInvoker{client: client, model: cfg.Model, timeout: cfg.Timeout}, nil
}

// Model 默认模型
func (o *OllamaInvoker) Model() string {
	return o.model
}

// Invoke 实现 Invoker
func (o *OllamaInvoker) Invoke(ctx context.Context, prompt, modelHint string) (string, error) {
	model := o.model
	if modelHint != "" {
		model = strings.TrimPrefix(modelHint, "ollama:")
	}

	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	// 上下文窗口略大于提示词，最小 4096
	numCtx := EstimateTokens(prompt) + 1000
	if numCtx < 4096 {
		numCtx = 4096
	}

	stream := false
	req := &ollama.ChatRequest{
		Model:    model,
		Messages: []ollama.Message{{Role: "user", Content: prompt}},
		Stream:   &stream,
		Options: map[string]interface{}{
			"temperature": 0.3,
			"num_ctx":     numCtx,
		},
	}

	var sb strings.Builder
	start := time.Now()
	err := o.client.Chat(ctx, req, func(res ollama.ChatResponse) error {
		sb.WriteString(res.Message.Content)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama chat failed: %w", err)
	}

	out := strings.TrimSpace(sb.String())
	if out == "" {
		return "", ErrEmptyResponse
	}
	log.Printf("[LLM] model=%s prompt_tokens~%d response_tokens~%d elapsed=%s",
		model, EstimateTokens(prompt), EstimateTokens(out), time.Since(start).Round(time.Millisecond))
	return out, nil
}
