package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"agentpm/internal/shared/eventbus"
	"agentpm/internal/shared/model"
	"agentpm/internal/shared/statestore"
)

// ============================================================================
// 周期检查点
// ============================================================================

// activate 启动会话的检查点协程，调用方持有 o.mu
func (o *Orchestrator) activate(conv *conversation) {
	if o.metrics != nil {
		o.metrics.ConversationsActive.Inc()
	}
	if o.opts.CheckpointInterval <= 0 {
		conv.cancel = func() {}
		return
	}

	ctx, cancel := context.WithCancel(o.ctx)
	conv.cancel = cancel
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.checkpointLoop(ctx, conv)
	}()
}

// deactivate 停止检查点协程，每个会话只生效一次，调用方持有 o.mu
func (o *Orchestrator) deactivate(conv *conversation) {
	conv.stopOnce.Do(func() {
		if conv.cancel != nil {
			conv.cancel()
		}
		if o.metrics != nil {
			o.metrics.ConversationsActive.Dec()
		}
	})
}

func (o *Orchestrator) checkpointLoop(ctx context.Context, conv *conversation) {
	ticker := time.NewTicker(o.opts.CheckpointInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !o.periodicCheckpoint(ctx, conv) {
				return
			}
		}
	}
}

// periodicCheckpoint 执行一次周期检查点，会话已停止时返回 false
func (o *Orchestrator) periodicCheckpoint(ctx context.Context, conv *conversation) bool {
	conv.mu.Lock()
	// 等锁期间会话可能已完成，complete 会取消 ctx
	if ctx.Err() != nil {
		conv.mu.Unlock()
		return false
	}
	snapshot := conv.state.Clone()
	conv.mu.Unlock()

	if _, err := o.checkpoint(ctx, snapshot); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("[Checkpoint] WARNING: periodic checkpoint for %s failed: %v", snapshot.ID, err)
	}
	return true
}

// checkpoint 写入检查点并记录指标
func (o *Orchestrator) checkpoint(ctx context.Context, state *model.ConversationState) (*model.Checkpoint, error) {
	cp, err := o.store.CreateCheckpoint(ctx, state)
	if o.metrics != nil {
		result := "success"
		if err != nil {
			result = "error"
		}
		o.metrics.CheckpointsTotal.WithLabelValues(result).Inc()
	}
	if err != nil {
		return nil, err
	}
	o.notifier.Notify(ctx, state.ID, eventbus.EventCheckpoint, map[string]interface{}{
		"timestamp": cp.Timestamp, "phase": string(state.Phase),
	})
	return cp, nil
}

// ============================================================================
// 按需检查点与恢复
// ============================================================================

// CreateCheckpoint 立即为会话创建检查点
func (o *Orchestrator) CreateCheckpoint(ctx context.Context, conversationID string) (*model.Checkpoint, error) {
	conv, err := o.load(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	conv.mu.Lock()
	snapshot := conv.state.Clone()
	conv.mu.Unlock()

	cp, err := o.checkpoint(ctx, snapshot)
	if err != nil {
		return nil, fmt.Errorf("create checkpoint for %s: %w", conversationID, err)
	}
	return cp, nil
}

// ListCheckpoints 会话的检查点时间戳（升序）
func (o *Orchestrator) ListCheckpoints(ctx context.Context, conversationID string) ([]int64, error) {
	return o.store.ListCheckpoints(ctx, conversationID)
}

// Restore 从检查点恢复会话，timestamp 为 0 时使用最新检查点
//
// 恢复是阶段回退的唯一途径；缓存中的会话被替换。
func (o *Orchestrator) Restore(ctx context.Context, conversationID string, timestamp int64) (*model.ConversationState, error) {
	state, err := statestore.Restore(ctx, o.store, conversationID, timestamp)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConversationNotFound, conversationID, err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if old, ok := o.active[conversationID]; ok {
		o.deactivate(old)
	}
	conv := &conversation{state: state}
	o.active[conversationID] = conv
	if !state.Phase.IsTerminal() {
		o.activate(conv)
	}

	o.logger.PhaseLog("restore", conversationID, string(state.Phase), "timestamp", timestamp)
	return state.Clone(), nil
}
