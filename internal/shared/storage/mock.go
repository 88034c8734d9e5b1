package storage

import (
	"context"
	"sort"
	"sync"

	"agentpm/internal/shared/model"
)

// MemoryDocumentStore 进程内文档存储（降级模式与测试）
type MemoryDocumentStore struct {
	mu   sync.Mutex
	docs map[string]model.StoredDocument
}

var _ DocumentStore = (*MemoryDocumentStore)(nil)

// NewMemoryDocumentStore 创建内存文档存储
func NewMemoryDocumentStore() *MemoryDocumentStore {
	return &MemoryDocumentStore{docs: make(map[string]model.StoredDocument)}
}

func (m *MemoryDocumentStore) SaveDocument(_ context.Context, doc *model.StoredDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := *doc
	if d.ID == "" {
		d.ID = model.StoredDocumentID(d.ConversationID, d.Kind, d.Final)
	}
	if prev, ok := m.docs[d.ID]; ok && !prev.CreatedAt.IsZero() {
		d.CreatedAt = prev.CreatedAt
	}
	m.docs[d.ID] = d
	return nil
}

func (m *MemoryDocumentStore) GetDocument(_ context.Context, conversationID string, kind model.DocumentKind, final bool) (*model.StoredDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[model.StoredDocumentID(conversationID, kind, final)]
	if !ok {
		return nil, ErrNotFound
	}
	return &d, nil
}

func (m *MemoryDocumentStore) ListDocuments(_ context.Context, conversationID string, finalOnly bool) ([]*model.StoredDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*model.StoredDocument{}
	for _, d := range m.docs {
		if d.ConversationID != conversationID || (finalOnly && !d.Final) {
			continue
		}
		d := d
		out = append(out, &d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryDocumentStore) DeleteConversationDocuments(_ context.Context, conversationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, d := range m.docs {
		if d.ConversationID == conversationID {
			delete(m.docs, id)
		}
	}
	return nil
}

func (m *MemoryDocumentStore) Close() error {
	return nil
}
