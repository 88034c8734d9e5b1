// Package logging 结构化日志
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// ContextKey 上下文键类型
type ContextKey string

const (
	ConversationIDKey ContextKey = "conversation_id"
	PhaseKey          ContextKey = "phase"
	AgentKey          ContextKey = "agent"
	DocumentKindKey   ContextKey = "document_kind"
)

// Logger 结构化日志器
type Logger struct {
	*slog.Logger
	component string
}

// Config 日志配置
type Config struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"` // json or text
	Output    string `yaml:"output"` // stdout, stderr, or file path
	Component string `yaml:"-"`

	// 文件输出时的滚动策略
	MaxSizeMB  int  `yaml:"max_size_mb"`
	MaxBackups int  `yaml:"max_backups"`
	MaxAgeDays int  `yaml:"max_age_days"`
	Compress   bool `yaml:"compress"`
}

// ParseLevel 解析日志级别，未知值按 info 处理
func ParseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New 创建新的日志器
func New(cfg Config) *Logger {
	level := ParseLevel(cfg.Level)

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	output := openOutput(cfg)

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(output, opts)
	} else {
		handler = slog.NewTextHandler(output, opts)
	}

	return &Logger{
		Logger:    slog.New(handler).With(slog.String("component", cfg.Component)),
		component: cfg.Component,
	}
}

// openOutput 文件输出交给 lumberjack 负责滚动
func openOutput(cfg Config) io.Writer {
	switch cfg.Output {
	case "stdout", "":
		return os.Stdout
	case "stderr":
		return os.Stderr
	}

	maxSize := cfg.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 50
	}
	return &lumberjack.Logger{
		Filename:   cfg.Output,
		MaxSize:    maxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
}

// Default 创建默认日志器
func Default(component string) *Logger {
	return New(Config{
		Level:     os.Getenv("LOG_LEVEL"),
		Format:    os.Getenv("LOG_FORMAT"),
		Output:    "stderr",
		Component: component,
	})
}

// Discard 丢弃所有输出，测试使用
func Discard(component string) *Logger {
	return &Logger{
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		component: component,
	}
}

// Component 返回组件名
func (l *Logger) Component() string {
	return l.component
}

// Named 派生子组件日志器
func (l *Logger) Named(component string) *Logger {
	return &Logger{
		Logger:    l.Logger.With(slog.String("subcomponent", component)),
		component: component,
	}
}

func (l *Logger) with(attrs ...any) *Logger {
	return &Logger{
		Logger:    l.Logger.With(attrs...),
		component: l.component,
	}
}

// WithContext 从上下文提取会话信息
func (l *Logger) WithContext(ctx context.Context) *Logger {
	var attrs []any
	for _, key := range []ContextKey{ConversationIDKey, PhaseKey, AgentKey, DocumentKindKey} {
		if v, ok := ctx.Value(key).(string); ok && v != "" {
			attrs = append(attrs, slog.String(string(key), v))
		}
	}
	if len(attrs) == 0 {
		return l
	}
	return l.with(attrs...)
}

// WithConversationID 添加会话 ID
func (l *Logger) WithConversationID(id string) *Logger {
	return l.with(slog.String("conversation_id", id))
}

// WithPhase 添加阶段
func (l *Logger) WithPhase(phase string) *Logger {
	return l.with(slog.String("phase", phase))
}

// WithAgent 添加专家 ID
func (l *Logger) WithAgent(agentID string) *Logger {
	return l.with(slog.String("agent", agentID))
}

// WithDocumentKind 添加文档类型
func (l *Logger) WithDocumentKind(kind string) *Logger {
	return l.with(slog.String("document_kind", kind))
}

// WithError 添加错误信息
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.with(slog.String("error", err.Error()))
}

// WithDuration 添加持续时间
func (l *Logger) WithDuration(d time.Duration) *Logger {
	return l.with(slog.Float64("duration_ms", float64(d.Milliseconds())))
}

// ContextWithConversation 把会话 ID 写入上下文
func ContextWithConversation(ctx context.Context, conversationID string) context.Context {
	return context.WithValue(ctx, ConversationIDKey, conversationID)
}

// ConversationIDFromContext 读取上下文中的会话 ID，不存在时返回空串
func ConversationIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ConversationIDKey).(string)
	return id
}

// PhaseLog 阶段事件日志
func (l *Logger) PhaseLog(action, conversationID, phase string, extra ...any) {
	attrs := []any{
		slog.String("action", action),
		slog.String("conversation_id", conversationID),
		slog.String("phase", phase),
	}
	attrs = append(attrs, extra...)
	l.Logger.Info("phase event", attrs...)
}
