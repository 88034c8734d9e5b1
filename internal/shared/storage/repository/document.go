package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"agentpm/internal/shared/model"
	"agentpm/internal/shared/storage"
)

const documentColumns = `id, conversation_id, kind, final, content, metadata, created_at, updated_at`

// SaveDocument 保存文档（按 ID upsert，保留首次创建时间）
func (s *Store) SaveDocument(ctx context.Context, doc *model.StoredDocument) error {
	if doc.ID == "" {
		doc.ID = model.StoredDocumentID(doc.ConversationID, doc.Kind, doc.Final)
	}
	meta, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := s.rebind(`
		INSERT INTO documents (` + documentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		` + s.dialect.UpsertConflict("id", []string{
		"content = EXCLUDED.content",
		"metadata = EXCLUDED.metadata",
		"updated_at = EXCLUDED.updated_at",
	}))
	_, err = s.db.ExecContext(ctx, query,
		doc.ID, doc.ConversationID, string(doc.Kind), doc.Final, doc.Content, string(meta),
		doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save document %s: %w", doc.ID, err)
	}
	return nil
}

// GetDocument 获取文档
func (s *Store) GetDocument(ctx context.Context, conversationID string, kind model.DocumentKind, final bool) (*model.StoredDocument, error) {
	query := s.rebind(`SELECT ` + documentColumns + ` FROM documents WHERE id = $1`)
	row := s.db.QueryRowContext(ctx, query, model.StoredDocumentID(conversationID, kind, final))
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	return doc, err
}

// ListDocuments 列出会话文档
func (s *Store) ListDocuments(ctx context.Context, conversationID string, finalOnly bool) ([]*model.StoredDocument, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE conversation_id = $1`
	args := []interface{}{conversationID}
	if finalOnly {
		query += ` AND final = $2`
		args = append(args, true)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDocuments(rows)
}

// DeleteConversationDocuments 删除会话的全部文档
func (s *Store) DeleteConversationDocuments(ctx context.Context, conversationID string) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM documents WHERE conversation_id = $1`), conversationID)
	return err
}

// scanDocument 辅助函数
func scanDocument(scanner interface {
	Scan(dest ...interface{}) error
}) (*model.StoredDocument, error) {
	doc := &model.StoredDocument{}
	var (
		kind string
		meta *[]byte
	)
	err := scanner.Scan(&doc.ID, &doc.ConversationID, &kind, &doc.Final, &doc.Content, &meta,
		&doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return nil, err
	}
	doc.Kind = model.DocumentKind(kind)
	if meta != nil && len(*meta) > 0 {
		if err := json.Unmarshal(*meta, &doc.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	return doc, nil
}

// scanDocuments 批量扫描
func scanDocuments(rows *sql.Rows) ([]*model.StoredDocument, error) {
	docs := []*model.StoredDocument{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}
