// Package repository SQLite 集成测试
//
// 使用 SQLite 内存数据库验证文档存储，无需外部数据库依赖。
package repository

import (
	"context"
	"testing"
	"time"

	"agentpm/internal/shared/model"
	"agentpm/internal/shared/storage"
	"agentpm/internal/shared/storage/dbutil"
	sqlitedriver "agentpm/internal/shared/storage/driver/sqlite"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestStore 创建用于测试的 SQLite 内存数据库 Store
func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sqlitedriver.Open(":memory:")
	require.NoError(t, err)
	dialect := sqlitedriver.NewDialect()
	require.NoError(t, dialect.AutoMigrate(db))
	store := NewStore(db, dialect)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestDialect(t *testing.T) {
	d := sqlitedriver.NewDialect()
	assert.Equal(t, dbutil.DriverSQLite, d.DriverType())
	assert.Equal(t, "SELECT * FROM t WHERE id = ? AND name = ?",
		d.Rebind("SELECT * FROM t WHERE id = $1 AND name = $2"))
	assert.Equal(t, "UPDATE t SET status = ? WHERE id = ?",
		d.Rebind("UPDATE t SET status = $1::varchar WHERE id = $2"))
	assert.Equal(t, "ON CONFLICT (id) DO UPDATE SET a = EXCLUDED.a, b = EXCLUDED.b",
		d.UpsertConflict("id", dbutil.ExcludedColumns("a", "b")))
}

func newDoc(conv string, kind model.DocumentKind, final bool, content string) *model.StoredDocument {
	now := time.Now().UTC().Truncate(time.Second)
	return &model.StoredDocument{
		ConversationID: conv,
		Kind:           kind,
		Final:          final,
		Content:        content,
		Metadata: model.DocumentMetadata{
			GeneratedAt:      now,
			QualityScore:     82.5,
			ValidationPassed: true,
			WordCount:        321,
			SectionCount:     6,
			Duration:         1500 * time.Millisecond,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestDocumentCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetDocument(ctx, "c1", model.DocumentPRD, false)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	draft := newDoc("c1", model.DocumentPRD, false, "draft body")
	require.NoError(t, s.SaveDocument(ctx, draft))
	assert.Equal(t, "c1:prd:draft", draft.ID)

	got, err := s.GetDocument(ctx, "c1", model.DocumentPRD, false)
	require.NoError(t, err)
	assert.Equal(t, "draft body", got.Content)
	assert.Equal(t, model.DocumentPRD, got.Kind)
	assert.False(t, got.Final)
	assert.Equal(t, 321, got.Metadata.WordCount)
	assert.Equal(t, 1500*time.Millisecond, got.Metadata.Duration)
	assert.True(t, got.Metadata.ValidationPassed)

	// upsert 覆盖内容
	draft.Content = "draft v2"
	require.NoError(t, s.SaveDocument(ctx, draft))
	got, err = s.GetDocument(ctx, "c1", model.DocumentPRD, false)
	require.NoError(t, err)
	assert.Equal(t, "draft v2", got.Content)

	require.NoError(t, s.SaveDocument(ctx, newDoc("c1", model.DocumentPRD, true, "final body")))
	require.NoError(t, s.SaveDocument(ctx, newDoc("c1", model.DocumentERD, true, "erd body")))
	require.NoError(t, s.SaveDocument(ctx, newDoc("c2", model.DocumentPRD, true, "other")))

	all, err := s.ListDocuments(ctx, "c1", false)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	finals, err := s.ListDocuments(ctx, "c1", true)
	require.NoError(t, err)
	require.Len(t, finals, 2)
	assert.Equal(t, "c1:erd:final", finals[0].ID)
	assert.Equal(t, "c1:prd:final", finals[1].ID)

	require.NoError(t, s.DeleteConversationDocuments(ctx, "c1"))
	all, err = s.ListDocuments(ctx, "c1", false)
	require.NoError(t, err)
	assert.Empty(t, all)

	others, err := s.ListDocuments(ctx, "c2", false)
	require.NoError(t, err)
	assert.Len(t, others, 1)
}
