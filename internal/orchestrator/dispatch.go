package orchestrator

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"agentpm/internal/agent"
	"agentpm/internal/shared/model"
)

// dispatchResult 一次专家调用结果
type dispatchResult struct {
	agentID string
	prompt  string
	output  string
	err     error
}

// dispatch 并发执行工作项，结果顺序与派发顺序一致
//
// 单个专家失败只记录在其结果中，不影响其他专家。
func (o *Orchestrator) dispatch(ctx context.Context, items []model.WorkItem) []dispatchResult {
	results := make([]dispatchResult, len(items))

	var g errgroup.Group
	for i, item := range items {
		results[i] = dispatchResult{agentID: item.AgentID, prompt: agent.BuildPrompt(item.AgentID, item)}
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					results[i].err = fmt.Errorf("specialist panicked: %v", r)
				}
			}()
			sp, ok := o.specialists.Get(item.AgentID)
			if !ok {
				results[i].err = fmt.Errorf("specialist %s is not registered", item.AgentID)
				return nil
			}
			results[i].output, results[i].err = sp.Execute(ctx, item)
			return nil
		})
	}
	g.Wait()
	return results
}
