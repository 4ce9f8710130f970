package mongodb

import (
	"context"

	"regionchat_server/internal/model"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type memberStore struct {
	col *mongo.Collection
}

// BulkInsert 无序批量插入，部分文档失败时其余文档仍会写入，
// 调用方需要重新读取确认实际写入的成员
func (s *memberStore) BulkInsert(ctx context.Context, members []model.ConversationMember) error {
	if len(members) == 0 {
		return nil
	}
	_, err := s.col.InsertMany(ctx, members, options.InsertMany().SetOrdered(false))
	return wrapMongoErrorf(err, "批量添加成员 conversation_id=%s", members[0].ConversationID)
}

// Insert 插入单个成员
func (s *memberStore) Insert(ctx context.Context, member model.ConversationMember) error {
	_, err := s.col.InsertOne(ctx, member)
	return wrapMongoErrorf(err, "添加成员 conversation_id=%s user_id=%s", member.ConversationID, member.UserID)
}

// ListMembers 查询会话全部成员
func (s *memberStore) ListMembers(ctx context.Context, conversationID string) ([]model.ConversationMember, error) {
	cursor, err := s.col.Find(ctx, bson.M{"conversation_id": conversationID})
	if err != nil {
		return nil, wrapMongoErrorf(err, "查询成员 conversation_id=%s", conversationID)
	}
	var members []model.ConversationMember
	if err := cursor.All(ctx, &members); err != nil {
		return nil, wrapMongoErrorf(err, "查询成员 conversation_id=%s", conversationID)
	}
	return members, nil
}
