// Package orchestrator 会话编排
//
// Orchestrator 拥有阶段状态机：discovery → definition → review → completed。
// 每次 Start / Continue 执行当前阶段的工作，满足退出条件后推进并在同一次调用内
// 继续执行下一阶段。状态在每次执行后写入 StateStore；每个活跃会话有一个
// 后台检查点协程，会话完成时停止。
//
// 同一会话 ID 只允许一个编排器实例写入（单写者）。
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"agentpm/internal/agent"
	"agentpm/internal/config"
	"agentpm/internal/pipeline"
	"agentpm/internal/router"
	"agentpm/internal/shared/eventbus"
	"agentpm/internal/shared/metrics"
	"agentpm/internal/shared/model"
	"agentpm/internal/shared/statestore"
	"agentpm/pkg/logging"
)

var (
	// ErrConversationNotFound 会话不存在，且无法从检查点恢复
	ErrConversationNotFound = errors.New("orchestrator: conversation not found")
	// ErrConversationExists 会话 ID 已被使用
	ErrConversationExists = errors.New("orchestrator: conversation already exists")
	// ErrEmptyInput 输入为空
	ErrEmptyInput = errors.New("orchestrator: empty input")
)

// Options 编排配置
type Options struct {
	// MinQuestions discovery 阶段退出所需的已回答问题数
	MinQuestions int
	// MinResultLength 专家结果超过该长度才记录为消息
	MinResultLength int
	// CheckpointInterval 周期检查点间隔，<= 0 时不启动检查点协程
	CheckpointInterval time.Duration

	Enhancement model.EnhancementLevel
	// Quality 为空时文档不做质量精炼
	Quality  model.QualityLevel
	Parallel bool
}

// DefaultOptions 默认配置
func DefaultOptions() Options {
	return Options{
		MinQuestions:       3,
		MinResultLength:    50,
		CheckpointInterval: 5 * time.Minute,
		Enhancement:        model.EnhancementStandard,
		Quality:            model.QualityStandard,
		Parallel:           true,
	}
}

// OptionsFromConfig 由应用配置构建
func OptionsFromConfig(cfg *config.Config) Options {
	opts := Options{
		MinQuestions:       cfg.Orchestrator.MinQuestions,
		MinResultLength:    cfg.Orchestrator.MinResultLength,
		CheckpointInterval: cfg.State.CheckpointInterval,
		Enhancement:        model.ParseEnhancementLevel(cfg.Orchestrator.EnhancementLevel),
		Parallel:           cfg.Pipeline.Parallel,
	}
	if cfg.Orchestrator.RefineDocuments {
		opts.Quality = model.ParseQualityLevel(cfg.Orchestrator.QualityLevel)
	}
	return opts.withDefaults()
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.MinQuestions <= 0 {
		o.MinQuestions = def.MinQuestions
	}
	if o.MinResultLength <= 0 {
		o.MinResultLength = def.MinResultLength
	}
	return o
}

// Deps 编排器依赖，Pipeline/Metrics/Notifier/Logger 可为 nil
type Deps struct {
	Store       statestore.Store
	Router      *router.Router
	Specialists *agent.Set
	Pipeline    *pipeline.Pipeline
	Metrics     *metrics.Metrics
	Notifier    *eventbus.Notifier
	Logger      *logging.Logger
}

// conversation 缓存中的活跃会话
type conversation struct {
	mu    sync.Mutex
	state *model.ConversationState

	cancel   context.CancelFunc
	stopOnce sync.Once
}

// Orchestrator 会话编排器
type Orchestrator struct {
	store       statestore.Store
	router      *router.Router
	specialists *agent.Set
	pipeline    *pipeline.Pipeline
	opts        Options

	metrics  *metrics.Metrics
	notifier *eventbus.Notifier
	logger   *logging.Logger

	mu     sync.Mutex
	active map[string]*conversation

	// 检查点协程的生命周期与编排器一致，不随单次请求取消
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	now func() time.Time
}

// New 创建编排器
func New(deps Deps, opts Options) *Orchestrator {
	if deps.Store == nil {
		deps.Store = statestore.NewMemoryStore(statestore.DefaultOptions())
	}
	if deps.Router == nil {
		deps.Router = router.New(nil, deps.Metrics, nil)
	}
	if deps.Specialists == nil {
		deps.Specialists = agent.NewSet()
	}
	if deps.Logger == nil {
		deps.Logger = logging.Default("orchestrator")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		store:       deps.Store,
		router:      deps.Router,
		specialists: deps.Specialists,
		pipeline:    deps.Pipeline,
		opts:        opts.withDefaults(),
		metrics:     deps.Metrics,
		notifier:    deps.Notifier,
		logger:      deps.Logger,
		active:      make(map[string]*conversation),
		ctx:         ctx,
		cancel:      cancel,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Close 停止所有检查点协程
func (o *Orchestrator) Close() {
	o.mu.Lock()
	for _, conv := range o.active {
		o.deactivate(conv)
	}
	o.mu.Unlock()
	o.cancel()
	o.wg.Wait()
}

// ============================================================================
// Start / Continue
// ============================================================================

// Start 创建会话并执行 discovery 阶段
//
// conversationID 为空时自动生成；kind 未知时按 idea 处理。
func (o *Orchestrator) Start(ctx context.Context, conversationID, userInput, kind string) (*PhaseOutcome, error) {
	if strings.TrimSpace(userInput) == "" {
		return nil, ErrEmptyInput
	}
	if conversationID == "" {
		conversationID = uuid.NewString()
	}

	o.mu.Lock()
	_, cached := o.active[conversationID]
	o.mu.Unlock()
	if cached {
		return nil, fmt.Errorf("%w: %s", ErrConversationExists, conversationID)
	}
	if _, err := o.store.LoadState(ctx, conversationID); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrConversationExists, conversationID)
	}

	now := o.now()
	state := model.NewConversationState(conversationID, model.ParseConversationKind(kind), now)
	state.Context["initial_request"] = userInput
	state.AppendMessage(o.newMessage(model.RoleUser, "", userInput))

	conv := &conversation{state: state}
	o.mu.Lock()
	o.active[conversationID] = conv
	o.activate(conv)
	o.mu.Unlock()

	o.logger.PhaseLog("start", conversationID, string(state.Phase), "kind", state.Kind)

	conv.mu.Lock()
	defer conv.mu.Unlock()
	return o.execute(ctx, conv), nil
}

// Continue 追加用户回复并重新执行当前阶段
//
// 会话不在缓存时从存储加载，加载失败时尝试从最新检查点恢复一次。
// 已完成的会话只追加消息，不再执行阶段。
func (o *Orchestrator) Continue(ctx context.Context, conversationID, userResponse string) (*PhaseOutcome, error) {
	if strings.TrimSpace(userResponse) == "" {
		return nil, ErrEmptyInput
	}
	conv, err := o.load(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	conv.mu.Lock()
	defer conv.mu.Unlock()
	state := conv.state

	// 上一条 assistant 消息视为向用户提出的问题
	if q, ok := state.LastAssistantMessage(); ok {
		state.QAPairs = append(state.QAPairs, model.QAPair{Question: q.Content, Answer: userResponse, AgentID: q.AgentID})
	}
	state.QuestionsAnswered++
	state.AppendMessage(o.newMessage(model.RoleUser, "", userResponse))

	return o.execute(ctx, conv), nil
}

// load 缓存 → 存储 → 最新检查点
func (o *Orchestrator) load(ctx context.Context, conversationID string) (*conversation, error) {
	o.mu.Lock()
	conv, ok := o.active[conversationID]
	o.mu.Unlock()
	if ok {
		return conv, nil
	}

	state, err := o.store.LoadState(ctx, conversationID)
	if err != nil {
		o.logger.WithConversationID(conversationID).WithError(err).Info("state not loadable, trying latest checkpoint")
		state, err = statestore.Restore(ctx, o.store, conversationID, 0)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrConversationNotFound, conversationID, err)
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	// 并发加载时以先放入缓存的为准
	if existing, ok := o.active[conversationID]; ok {
		return existing, nil
	}
	conv = &conversation{state: state}
	o.active[conversationID] = conv
	if !state.Phase.IsTerminal() {
		o.activate(conv)
	}
	return conv, nil
}

func (o *Orchestrator) newMessage(role model.Role, agentID, content string) model.Message {
	return model.Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		AgentID:   agentID,
		Timestamp: o.now(),
		Metadata:  map[string]string{},
	}
}

// persist 保存状态，失败时只记录日志（降级为仅缓存）
func (o *Orchestrator) persist(ctx context.Context, state *model.ConversationState) {
	if err := o.store.SaveState(ctx, state); err != nil {
		o.logger.WithConversationID(state.ID).WithError(err).Warn("save state failed, continuing from cache")
		o.notifier.Error(ctx, state.ID, "statestore", err)
	}
}
