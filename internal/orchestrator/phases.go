package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"agentpm/internal/agent"
	"agentpm/internal/llm"
	"agentpm/internal/router"
	"agentpm/internal/shared/eventbus"
	"agentpm/internal/shared/model"
	"agentpm/pkg/logging"
)

// PhaseTransition 一次阶段推进
type PhaseTransition struct {
	From model.Phase `json:"from"`
	To   model.Phase `json:"to"`
}

// PhaseOutcome 一次 Start / Continue 的结果
type PhaseOutcome struct {
	ConversationID string                   `json:"conversation_id"`
	Kind           model.ConversationKind   `json:"kind"`
	Phase          model.Phase              `json:"phase"`
	Status         model.ConversationStatus `json:"status"`
	Transitions    []PhaseTransition        `json:"transitions,omitempty"`
	// Messages 本次调用中专家产生的消息（按派发顺序）
	Messages  []model.Message                   `json:"messages,omitempty"`
	Documents []*model.DocumentGenerationResult `json:"documents,omitempty"`
	// FailedAgents 执行失败的专家
	FailedAgents []string `json:"failed_agents,omitempty"`
}

// Completed 会话是否已完成
func (p *PhaseOutcome) Completed() bool {
	return p.Phase.IsTerminal()
}

// ============================================================================
// 阶段阈值
// ============================================================================

// MinAgents discovery 阶段退出所需的已咨询专家数
func MinAgents(kind model.ConversationKind) int {
	if kind.IsNarrow() {
		return 2
	}
	return 3
}

// RequiredDocuments definition 阶段退出所需的文档数
func RequiredDocuments(kind model.ConversationKind) int {
	if kind.IsNarrow() {
		return 2
	}
	return 3
}

// nextPhase 当前阶段工作完成后是否可以推进
func (o *Orchestrator) nextPhase(state *model.ConversationState) (model.Phase, bool) {
	switch state.Phase {
	case model.PhaseDiscovery:
		if len(state.AgentsConsulted) >= MinAgents(state.Kind) && state.QuestionsAnswered >= o.opts.MinQuestions {
			return model.PhaseDefinition, true
		}
	case model.PhaseDefinition:
		if len(state.DocumentsGenerated) >= RequiredDocuments(state.Kind) {
			return model.PhaseReview, true
		}
	case model.PhaseReview:
		return model.PhaseCompleted, true
	}
	return "", false
}

// ============================================================================
// 状态机
// ============================================================================

// execute 执行当前阶段，满足条件时推进并继续执行，最后持久化
// 调用方持有 conv.mu
func (o *Orchestrator) execute(ctx context.Context, conv *conversation) *PhaseOutcome {
	state := conv.state
	ctx = logging.ContextWithConversation(ctx, state.ID)
	out := &PhaseOutcome{ConversationID: state.ID, Kind: state.Kind}

	for !state.Phase.IsTerminal() {
		if ctx.Err() != nil {
			break
		}
		switch state.Phase {
		case model.PhaseDiscovery:
			o.runDiscovery(ctx, state, out)
		case model.PhaseDefinition:
			o.runDefinition(ctx, state, out)
		case model.PhaseReview:
			o.runReview(ctx, state, out)
		}

		next, ok := o.nextPhase(state)
		if !ok {
			break
		}
		from := state.Phase
		if !state.AdvancePhase(next, o.now()) {
			break
		}
		out.Transitions = append(out.Transitions, PhaseTransition{From: from, To: next})
		o.metrics.ObservePhase(string(state.Kind), string(from), string(next))
		o.notifier.PhaseChanged(ctx, state.ID, string(from), string(next))
		o.logger.PhaseLog("advance", state.ID, string(next), "from", from)

		if next == model.PhaseCompleted {
			o.complete(ctx, conv)
		}
	}

	o.persist(context.WithoutCancel(ctx), state)
	out.Phase = state.Phase
	out.Status = state.Status
	return out
}

// complete 会话完成：最后一次检查点，停止检查点协程
func (o *Orchestrator) complete(ctx context.Context, conv *conversation) {
	if _, err := o.checkpoint(ctx, conv.state); err != nil {
		o.logger.WithConversationID(conv.state.ID).WithError(err).Warn("final checkpoint failed")
	}
	o.mu.Lock()
	o.deactivate(conv)
	o.mu.Unlock()
	o.notifier.Notify(ctx, conv.state.ID, eventbus.EventConversationDone, map[string]interface{}{
		"documents": len(conv.state.DocumentsGenerated),
	})
}

// ============================================================================
// discovery
// ============================================================================

// runDiscovery 并发派发会话类型对应的 discovery 专家
func (o *Orchestrator) runDiscovery(ctx context.Context, state *model.ConversationState, out *PhaseOutcome) {
	lastInput := latestUserInput(state)
	base := fmt.Sprintf("A user is planning a software %s. Their latest input:\n\n%s\n\n"+
		"Contribute your expertise and end with the single most important question for the user.", state.Kind, lastInput)

	var items []model.WorkItem
	for _, id := range agent.DiscoverySpecialists(state.Kind) {
		reason := model.ReasonNeedsExpertise
		why := fmt.Sprintf("%s perspective is needed", agent.Role(id))
		if state.HasConsulted(id) {
			reason = model.ReasonCollaborationRequired
			why = "follow up on the user's latest answer"
		}
		d := o.router.Delegate(agent.Orchestrator, id, reason, why, lastInput)
		if item, ok := o.delegate(ctx, state, d, base); ok {
			items = append(items, item)
		}
	}
	o.record(ctx, state, o.dispatch(ctx, items), out)
}

// ============================================================================
// definition
// ============================================================================

// runDefinition 为缺失的必需文档委派产出者并执行文档流水线
func (o *Orchestrator) runDefinition(ctx context.Context, state *model.ConversationState, out *PhaseOutcome) {
	missing := router.ContextFromState(state).MissingDocuments()
	if len(missing) == 0 {
		return
	}
	if o.pipeline == nil {
		o.logger.WithConversationID(state.ID).Warn("no document pipeline configured", "missing", len(missing))
		return
	}

	for _, kind := range missing {
		producer, ok := agent.Producer(kind)
		if !ok {
			continue
		}
		d := o.router.Delegate(agent.Orchestrator, producer, model.ReasonPhaseTransition,
			fmt.Sprintf("required document %s is missing", kind),
			fmt.Sprintf("Produce the %s document.", strings.ToUpper(string(kind))))
		d.ExpectedOutputs = []string{string(kind)}
		if err := o.router.Validate(d, state.Delegations); err != nil {
			o.logger.WithConversationID(state.ID).WithError(err).Warn("delegation rejected")
			continue
		}
		state.RecordDelegation(d)
	}

	req := model.DocumentGenerationRequest{
		ConversationID:   state.ID,
		Kinds:            missing,
		ConversationKind: state.Kind,
		Context:          state.Context,
		QA:               state.QAMap(),
		Enhancement:      o.opts.Enhancement,
		Parallel:         o.opts.Parallel,
	}
	results := o.pipeline.Generate(ctx, req, o.opts.Quality)
	out.Documents = append(out.Documents, results...)

	for _, r := range results {
		producer, _ := agent.Producer(r.Kind)
		state.Counters.AgentInvocations++
		if !r.Succeeded() {
			state.Counters.Errors++
			msg := o.newMessage(model.RoleAssistant, producer, fmt.Sprintf("%s generation failed: %s", strings.ToUpper(string(r.Kind)), r.Error))
			msg.Metadata["status"] = "failed"
			msg.Metadata["document_kind"] = string(r.Kind)
			state.AppendMessage(msg)
			out.Messages = append(out.Messages, msg)
			out.FailedAgents = append(out.FailedAgents, producer)
			continue
		}

		state.Drafts[string(r.Kind)] = r.Content
		state.AddGeneratedDocument(string(r.Kind))
		state.AddConsultedAgent(producer)
		state.Counters.TokenUsage += llm.EstimateTokens(r.Content)

		msg := o.newMessage(model.RoleAssistant, producer, fmt.Sprintf("%s generated (%d words, quality %.1f)",
			strings.ToUpper(string(r.Kind)), r.Metadata.WordCount, r.Metadata.QualityScore))
		msg.Metadata["document_kind"] = string(r.Kind)
		msg.Metadata["validation_passed"] = fmt.Sprintf("%t", r.Metadata.ValidationPassed)
		state.AppendMessage(msg)
		out.Messages = append(out.Messages, msg)
	}
}

// ============================================================================
// review
// ============================================================================

// runReview 交给评审专家评审全部草稿
func (o *Orchestrator) runReview(ctx context.Context, state *model.ConversationState, out *PhaseOutcome) {
	d := o.router.SuggestNext(agent.Orchestrator, router.ContextFromState(state))
	if d == nil {
		return
	}

	var b strings.Builder
	b.WriteString("Review the following planning documents for completeness, accuracy and cross-document consistency.")
	for _, kind := range model.AllDocumentKinds {
		if content, ok := state.Drafts[string(kind)]; ok {
			fmt.Fprintf(&b, "\n\n## %s\n\n%s", strings.ToUpper(string(kind)), content)
		}
	}

	if item, ok := o.delegate(ctx, state, *d, b.String()); ok {
		o.record(ctx, state, o.dispatch(ctx, []model.WorkItem{item}), out)
	}
}

// ============================================================================
// 公共步骤
// ============================================================================

// delegate 校验委派、记录历史并构建工作项
func (o *Orchestrator) delegate(_ context.Context, state *model.ConversationState, d model.DelegationContext, base string) (model.WorkItem, bool) {
	if err := o.router.Validate(d, state.Delegations); err != nil {
		o.logger.WithConversationID(state.ID).WithError(err).Warn("delegation rejected", "target", d.Target)
		return model.WorkItem{}, false
	}
	state.RecordDelegation(d)
	return o.router.CreateTask(d, base, state.Context), true
}

// record 按派发顺序记录专家结果
//
// 足够长的结果同时记为消息与文档条目（已存在则不重复）。
func (o *Orchestrator) record(ctx context.Context, state *model.ConversationState, results []dispatchResult, out *PhaseOutcome) {
	for _, r := range results {
		state.Counters.AgentInvocations++
		if r.err != nil {
			state.Counters.Errors++
			msg := o.newMessage(model.RoleAssistant, r.agentID, fmt.Sprintf("%s failed: %v", agent.Role(r.agentID), r.err))
			msg.Metadata["status"] = "failed"
			state.AppendMessage(msg)
			out.Messages = append(out.Messages, msg)
			out.FailedAgents = append(out.FailedAgents, r.agentID)
			o.notifier.Error(ctx, state.ID, r.agentID, r.err)
			continue
		}

		state.AddConsultedAgent(r.agentID)
		state.Counters.TokenUsage += llm.EstimateTokens(r.prompt) + llm.EstimateTokens(r.output)
		if len(strings.TrimSpace(r.output)) <= o.opts.MinResultLength {
			continue
		}
		msg := o.newMessage(model.RoleAssistant, r.agentID, r.output)
		msg.Metadata["phase"] = string(state.Phase)
		state.AppendMessage(msg)
		state.AddGeneratedDocument(contributionID(r.agentID, state.Phase))
		out.Messages = append(out.Messages, msg)
	}
}

// contributionID 专家在某阶段产出的文档条目，如 product_manager_discovery
func contributionID(agentID string, phase model.Phase) string {
	return agentID + "_" + string(phase)
}

func latestUserInput(state *model.ConversationState) string {
	for i := len(state.Messages) - 1; i >= 0; i-- {
		if state.Messages[i].Role == model.RoleUser {
			return state.Messages[i].Content
		}
	}
	return ""
}
