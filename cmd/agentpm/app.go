package main

import (
	"context"
	"fmt"
	"log"

	"agentpm/internal/agent"
	"agentpm/internal/config"
	"agentpm/internal/llm"
	"agentpm/internal/orchestrator"
	"agentpm/internal/pipeline"
	"agentpm/internal/quality"
	"agentpm/internal/router"
	"agentpm/internal/shared/eventbus"
	"agentpm/internal/shared/infra"
	"agentpm/internal/shared/metrics"
	"agentpm/pkg/logging"
)

// app 组装好的运行时依赖
type app struct {
	cfg     *config.Config
	logger  *logging.Logger
	infra   *infra.Infrastructure
	metrics *metrics.Metrics
	refiner *quality.Loop
	orch    *orchestrator.Orchestrator
}

// newApp 配置 → 日志 → 基础设施 → 指标 → LLM → 专家 → 路由 → 流水线 → 编排器
func newApp(ctx context.Context) (*app, error) {
	cfg := config.Load()
	cfg.Log.Component = "agentpm"
	logger := logging.New(cfg.Log)
	log.Printf("[agentpm] Config: %s", cfg.String())

	inf, err := infra.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init infrastructure: %w", err)
	}
	if inf.IsDegraded() {
		logger.Warn("running in degraded mode", "components", inf.Degraded)
	}

	invoker, err := llm.NewOllamaInvoker(cfg.LLM)
	if err != nil {
		inf.Close()
		return nil, fmt.Errorf("init llm: %w", err)
	}

	m := metrics.New("agentpm")
	notifier := eventbus.NewNotifier(inf.EventBus)

	registry := agent.DefaultRegistry()
	specialists := agent.NewLLMSet(registry, invoker, "").
		Wrap(agent.Tracker(m, notifier, logger.Named("agent")))

	refiner := quality.New(
		quality.NewHeuristicReviewer(cfg.Quality.Threshold),
		quality.NewLLMImprover(invoker, ""),
		quality.Options{Threshold: cfg.Quality.Threshold, Excellence: cfg.Quality.Excellence},
	).WithObservability(m, notifier, logger.Named("quality"))

	// 未配置 MinIO 时不能把 nil 指针放进接口
	var exporter pipeline.Exporter
	if inf.Exporter != nil {
		exporter = inf.Exporter
	}
	pl := pipeline.New(pipeline.NewLLMGenerators(invoker, ""), pipeline.Options{MaxConcurrency: cfg.Pipeline.MaxConcurrency}).
		WithEnhancer(pipeline.NewLLMEnhancer(invoker, "")).
		WithSink(pipeline.NewStorePersister(inf.Documents, exporter)).
		WithRefiner(refiner).
		WithObservability(m, notifier, logger.Named("pipeline"))

	orch := orchestrator.New(orchestrator.Deps{
		Store:       inf.State,
		Router:      router.New(registry, m, logger.Named("router")),
		Specialists: specialists,
		Pipeline:    pl,
		Metrics:     m,
		Notifier:    notifier,
		Logger:      logger.Named("orchestrator"),
	}, orchestrator.OptionsFromConfig(cfg))

	return &app{
		cfg:     cfg,
		logger:  logger,
		infra:   inf,
		metrics: m,
		refiner: refiner,
		orch:    orch,
	}, nil
}

func (a *app) Close() {
	a.orch.Close()
	if err := a.infra.Close(); err != nil {
		a.logger.WithError(err).Warn("close infrastructure")
	}
}

// withApp 为单条命令创建并关闭运行时
func withApp(ctx context.Context, fn func(context.Context, *app) error) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}
