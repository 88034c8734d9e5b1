// Package metrics Prometheus 指标导出
package metrics

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 编排引擎指标
type Metrics struct {
	registry *prometheus.Registry

	// 会话指标
	PhaseTransitions    *prometheus.CounterVec
	ConversationsActive prometheus.Gauge
	CheckpointsTotal    *prometheus.CounterVec

	// 专家指标
	AgentInvocations *prometheus.CounterVec
	AgentDuration    *prometheus.HistogramVec

	// 文档指标
	DocumentsTotal     *prometheus.CounterVec
	DocumentDuration   *prometheus.HistogramVec
	ValidationTotal    *prometheus.CounterVec
	ForcedBatchesTotal prometheus.Counter

	// 质量指标
	RefinementScore      *prometheus.HistogramVec
	RefinementPasses     prometheus.Histogram
	ConsistencyConflicts prometheus.Counter

	// 路由指标
	DelegationsRejected *prometheus.CounterVec
}

// New 创建指标实例，注册到独立的 Registry
func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		PhaseTransitions: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "phase_transitions_total",
				Help:      "Conversation phase transitions",
			},
			[]string{"kind", "from", "to"},
		),
		ConversationsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "conversations_active",
			Help:      "Conversations with a running checkpoint loop",
		}),
		CheckpointsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "checkpoints_total",
				Help:      "Checkpoints created",
			},
			[]string{"result"},
		),
		AgentInvocations: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "agent_invocations_total",
				Help:      "Specialist invocations",
			},
			[]string{"agent", "result"},
		),
		AgentDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "agent_duration_seconds",
				Help:      "Specialist invocation duration in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"agent"},
		),
		DocumentsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "documents_generated_total",
				Help:      "Generated documents by final status",
			},
			[]string{"kind", "status"},
		),
		DocumentDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "document_generation_duration_seconds",
				Help:      "Document generation duration in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"kind"},
		),
		ValidationTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "document_validation_total",
				Help:      "Structural validation outcomes",
			},
			[]string{"kind", "passed"},
		),
		ForcedBatchesTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forced_batches_total",
			Help:      "Batches forced forward because no document had its dependencies satisfied",
		}),
		RefinementScore: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "refinement_final_score",
				Help:      "Authoritative score reported by the final review pass",
				Buckets:   []float64{50, 60, 70, 80, 85, 90, 95, 100},
			},
			[]string{"kind", "level"},
		),
		RefinementPasses: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "refinement_passes",
			Help:      "Review passes run before the final review",
			Buckets:   []float64{1, 2, 3, 4, 5},
		}),
		ConsistencyConflicts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "consistency_conflicts_total",
			Help:      "Cross-document consistency conflicts found",
		}),
		DelegationsRejected: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "delegations_rejected_total",
				Help:      "Delegations rejected by validation",
			},
			[]string{"reason"},
		),
	}
}

// Registry 返回底层 Registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler 返回 /metrics 处理器
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveAgent 记录一次专家调用
func (m *Metrics) ObserveAgent(agent string, d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.AgentInvocations.WithLabelValues(agent, result).Inc()
	m.AgentDuration.WithLabelValues(agent).Observe(d.Seconds())
}

// ObserveDocument 记录一次文档生成
func (m *Metrics) ObserveDocument(kind, status string, d time.Duration, validated, passed bool) {
	if m == nil {
		return
	}
	m.DocumentsTotal.WithLabelValues(kind, status).Inc()
	m.DocumentDuration.WithLabelValues(kind).Observe(d.Seconds())
	if validated {
		p := "false"
		if passed {
			p = "true"
		}
		m.ValidationTotal.WithLabelValues(kind, p).Inc()
	}
}

// ObservePhase 记录一次阶段转换
func (m *Metrics) ObservePhase(kind, from, to string) {
	if m == nil {
		return
	}
	m.PhaseTransitions.WithLabelValues(kind, from, to).Inc()
}

// Serve 启动 /metrics HTTP 服务，ctx 取消时关闭
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Printf("[Metrics] Listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
