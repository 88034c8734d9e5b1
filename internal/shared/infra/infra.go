// Package infra 基础设施聚合层
//
// 提供统一的基础设施初始化和依赖注入，包括：
//   - State：会话状态与检查点（Redis / etcd / 内存），附加文件检查点副本
//   - EventBus：会话进度事件（Redis Streams）
//   - Documents：文档持久化（SQLite / PostgreSQL / MongoDB）
//   - Exporter：终稿导出（MinIO，可选）
//
// 外部依赖不可达时降级为进程内实现并记录日志，Degraded 标记降级状态。
package infra

import (
	"agentpm/internal/shared/eventbus"
	objstore "agentpm/internal/shared/minio"
	"agentpm/internal/shared/statestore"
	"agentpm/internal/shared/storage"
)

// Infrastructure 基础设施聚合结构
type Infrastructure struct {
	// State 会话状态存储
	State statestore.Store

	// EventBus 事件总线
	EventBus eventbus.EventBus

	// Documents 文档持久化存储
	Documents storage.DocumentStore

	// Exporter 文档导出，未配置时为 nil
	Exporter *objstore.Client

	// Degraded 列出降级为进程内实现的组件
	Degraded []string
}

// IsDegraded 是否处于降级模式
func (i *Infrastructure) IsDegraded() bool {
	return len(i.Degraded) > 0
}

// Close 关闭所有基础设施连接
func (i *Infrastructure) Close() error {
	var lastErr error

	if i.State != nil {
		if err := i.State.Close(); err != nil {
			lastErr = err
		}
	}

	if i.EventBus != nil {
		if err := i.EventBus.Close(); err != nil {
			lastErr = err
		}
	}

	if i.Documents != nil {
		if err := i.Documents.Close(); err != nil {
			lastErr = err
		}
	}

	return lastErr
}

// NewMemoryInfrastructure 创建进程内基础设施（用于测试与降级）
func NewMemoryInfrastructure(opts statestore.Options) *Infrastructure {
	return &Infrastructure{
		State:     statestore.NewMemoryStore(opts),
		EventBus:  eventbus.NewMemoryEventBus(),
		Documents: storage.NewMemoryDocumentStore(),
	}
}
