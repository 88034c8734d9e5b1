// Package storage 定义文档持久化存储层抽象接口
//
// 调用方只依赖接口，具体实现在子包中：
//   - repository/：SQL 实现（SQLite / PostgreSQL，通过 dbutil.Dialect 屏蔽差异）
//   - mongostore/：MongoDB 实现
//
// 会话状态不在此处，见 statestore 包。
package storage

import (
	"context"

	"agentpm/internal/shared/model"
)

// DocumentStore 生成文档的持久化存储
//
// 同一会话、同一文档类型的草稿与终稿各保存一份，重复保存覆盖旧内容。
type DocumentStore interface {
	// SaveDocument 保存文档（upsert）
	SaveDocument(ctx context.Context, doc *model.StoredDocument) error

	// GetDocument 获取文档，不存在时返回 ErrNotFound
	GetDocument(ctx context.Context, conversationID string, kind model.DocumentKind, final bool) (*model.StoredDocument, error)

	// ListDocuments 列出会话的文档，finalOnly 为 true 时只返回终稿
	ListDocuments(ctx context.Context, conversationID string, finalOnly bool) ([]*model.StoredDocument, error)

	// DeleteConversationDocuments 删除会话的全部文档
	DeleteConversationDocuments(ctx context.Context, conversationID string) error

	Close() error
}
