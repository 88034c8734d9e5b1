package mongostore

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"agentpm/internal/shared/model"
)

// SaveDocument 保存文档（按 _id upsert，保留首次创建时间）
func (s *Store) SaveDocument(ctx context.Context, doc *model.StoredDocument) error {
	if doc.ID == "" {
		doc.ID = model.StoredDocumentID(doc.ConversationID, doc.Kind, doc.Final)
	}
	update := bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "conversation_id", Value: doc.ConversationID},
			{Key: "kind", Value: doc.Kind},
			{Key: "final", Value: doc.Final},
			{Key: "content", Value: doc.Content},
			{Key: "metadata", Value: doc.Metadata},
			{Key: "updated_at", Value: doc.UpdatedAt},
		}},
		{Key: "$setOnInsert", Value: bson.D{{Key: "created_at", Value: doc.CreatedAt}}},
	}
	_, err := s.col(ColDocuments).UpdateOne(ctx, bson.D{{Key: "_id", Value: doc.ID}}, update,
		options.UpdateOne().SetUpsert(true))
	return wrapError(err)
}

// GetDocument 获取文档
func (s *Store) GetDocument(ctx context.Context, conversationID string, kind model.DocumentKind, final bool) (*model.StoredDocument, error) {
	return findOne[model.StoredDocument](ctx, s.col(ColDocuments),
		bson.D{{Key: "_id", Value: model.StoredDocumentID(conversationID, kind, final)}})
}

// ListDocuments 列出会话文档
func (s *Store) ListDocuments(ctx context.Context, conversationID string, finalOnly bool) ([]*model.StoredDocument, error) {
	filter := bson.D{{Key: "conversation_id", Value: conversationID}}
	if finalOnly {
		filter = append(filter, bson.E{Key: "final", Value: true})
	}
	return findMany[model.StoredDocument](ctx, s.col(ColDocuments), filter,
		options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
}

// DeleteConversationDocuments 删除会话的全部文档
func (s *Store) DeleteConversationDocuments(ctx context.Context, conversationID string) error {
	_, err := s.col(ColDocuments).DeleteMany(ctx, bson.D{{Key: "conversation_id", Value: conversationID}})
	return wrapError(err)
}
