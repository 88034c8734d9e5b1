package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"agentpm/internal/shared/model"
	"agentpm/internal/shared/storage"
)

// DocumentSink 文档持久化出口
type DocumentSink interface {
	// SaveDraft 单个文档成功后立即保存草稿
	SaveDraft(ctx context.Context, conversationID string, r *model.DocumentGenerationResult) error
	// SaveFinal 整个调用结束后保存终稿
	SaveFinal(ctx context.Context, conversationID string, r *model.DocumentGenerationResult) error
}

// Exporter 终稿导出（objstore.Client 实现）
type Exporter interface {
	ExportDocument(ctx context.Context, conversationID string, kind model.DocumentKind, rendered []byte) error
}

// StorePersister 把渲染后的文档写入 DocumentStore，终稿可选导出
type StorePersister struct {
	docs     storage.DocumentStore
	exporter Exporter
	now      func() time.Time
}

var _ DocumentSink = (*StorePersister)(nil)

// NewStorePersister 创建持久化器，exporter 可为 nil
func NewStorePersister(docs storage.DocumentStore, exporter Exporter) *StorePersister {
	return &StorePersister{docs: docs, exporter: exporter, now: func() time.Time { return time.Now().UTC() }}
}

// SaveDraft 实现 DocumentSink
func (p *StorePersister) SaveDraft(ctx context.Context, conversationID string, r *model.DocumentGenerationResult) error {
	_, err := p.save(ctx, conversationID, r, false)
	return err
}

// SaveFinal 实现 DocumentSink
func (p *StorePersister) SaveFinal(ctx context.Context, conversationID string, r *model.DocumentGenerationResult) error {
	rendered, err := p.save(ctx, conversationID, r, true)
	if err != nil {
		return err
	}
	if p.exporter != nil {
		if err := p.exporter.ExportDocument(ctx, conversationID, r.Kind, rendered); err != nil {
			// 导出失败不影响终稿
			log.Printf("[Pipeline] WARNING: export %s/%s failed: %v", conversationID, r.Kind, err)
		}
	}
	return nil
}

func (p *StorePersister) save(ctx context.Context, conversationID string, r *model.DocumentGenerationResult, final bool) ([]byte, error) {
	rendered, err := Render(conversationID, r)
	if err != nil {
		return nil, err
	}
	now := p.now()
	doc := &model.StoredDocument{
		ID:             model.StoredDocumentID(conversationID, r.Kind, final),
		ConversationID: conversationID,
		Kind:           r.Kind,
		Final:          final,
		Content:        string(rendered),
		Metadata:       r.Metadata,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := p.docs.SaveDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to save %s: %w", doc.ID, err)
	}
	return rendered, nil
}
