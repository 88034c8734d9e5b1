package agent

import (
	"context"
	"sync"
	"time"

	"agentpm/internal/shared/eventbus"
	"agentpm/internal/shared/metrics"
	"agentpm/internal/shared/model"
	"agentpm/pkg/logging"
)

// TrackableExecution 可观测执行接口
type TrackableExecution interface {
	Specialist
	Stats() ExecutionStats
}

// ExecutionStats 专家执行统计
type ExecutionStats struct {
	Invocations   int           `json:"invocations"`
	Failures      int           `json:"failures"`
	TotalDuration time.Duration `json:"total_duration"`
	LastError     string        `json:"last_error,omitempty"`
}

// Tracked 为 Specialist 添加指标、日志与事件通知的装饰器
type Tracked struct {
	inner    Specialist
	metrics  *metrics.Metrics
	notifier *eventbus.Notifier
	logger   *logging.Logger

	mu    sync.Mutex
	stats ExecutionStats
}

var _ TrackableExecution = (*Tracked)(nil)

// Track 包装专家，metrics 与 notifier 可为 nil
func Track(s Specialist, m *metrics.Metrics, n *eventbus.Notifier, logger *logging.Logger) *Tracked {
	if logger == nil {
		logger = logging.Default("agent")
	}
	return &Tracked{inner: s, metrics: m, notifier: n, logger: logger.WithAgent(s.ID())}
}

// Tracker 返回可用于 Set.Wrap 的装饰函数
func Tracker(m *metrics.Metrics, n *eventbus.Notifier, logger *logging.Logger) func(Specialist) Specialist {
	return func(s Specialist) Specialist {
		return Track(s, m, n, logger)
	}
}

// ID 实现 Specialist
func (t *Tracked) ID() string {
	return t.inner.ID()
}

// Execute 实现 Specialist
func (t *Tracked) Execute(ctx context.Context, item model.WorkItem) (string, error) {
	conversationID := logging.ConversationIDFromContext(ctx)
	logger := t.logger.WithContext(ctx)

	t.notifier.AgentStatus(ctx, conversationID, t.ID(), eventbus.EventAgentStarted, string(item.Delegation.Reason))
	logger.Debug("specialist started", "reason", item.Delegation.Reason)

	start := time.Now()
	out, err := t.inner.Execute(ctx, item)
	elapsed := time.Since(start)

	t.mu.Lock()
	t.stats.Invocations++
	t.stats.TotalDuration += elapsed
	if err != nil {
		t.stats.Failures++
		t.stats.LastError = err.Error()
	}
	t.mu.Unlock()

	t.metrics.ObserveAgent(t.ID(), elapsed, err)

	if err != nil {
		logger.WithError(err).WithDuration(elapsed).Warn("specialist failed")
		t.notifier.AgentStatus(ctx, conversationID, t.ID(), eventbus.EventAgentFailed, err.Error())
		return "", err
	}
	logger.WithDuration(elapsed).Info("specialist completed", "chars", len(out))
	t.notifier.AgentStatus(ctx, conversationID, t.ID(), eventbus.EventAgentCompleted, "")
	return out, nil
}

// Stats 返回统计快照
func (t *Tracked) Stats() ExecutionStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}
