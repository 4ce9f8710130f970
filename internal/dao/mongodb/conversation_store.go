package mongodb

import (
	"context"

	"regionchat_server/internal/model"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// conversationStore 会话与成员分两个集合存储，读取时按 conversation_id 拼装
type conversationStore struct {
	col     *mongo.Collection
	members *mongo.Collection
}

// FindDirect 按成员键查找私聊会话
func (s *conversationStore) FindDirect(ctx context.Context, memberKey string) ([]model.Conversation, error) {
	filter := bson.M{
		"type":       model.ConversationDirect,
		"member_key": memberKey,
		"deleted_at": bson.M{"$exists": false},
	}
	convs, err := s.find(ctx, filter)
	if err != nil {
		return nil, wrapMongoErrorf(err, "查询私聊会话 member_key=%s", memberKey)
	}
	return convs, nil
}

// FindByID 查询会话及成员
func (s *conversationStore) FindByID(ctx context.Context, id string) (*model.Conversation, error) {
	var conv model.Conversation
	if err := s.col.FindOne(ctx, bson.M{"_id": id}).Decode(&conv); err != nil {
		return nil, wrapMongoErrorf(err, "查询会话 id=%s", id)
	}
	convs := []model.Conversation{conv}
	if err := s.attachMembers(ctx, convs); err != nil {
		return nil, wrapMongoErrorf(err, "查询会话成员 id=%s", id)
	}
	return &convs[0], nil
}

// Create 只插入会话文档，成员由 Provisioner 写入
func (s *conversationStore) Create(ctx context.Context, conv *model.Conversation) error {
	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now()
	}
	_, err := s.col.InsertOne(ctx, conv)
	return wrapMongoErrorf(err, "创建会话 type=%s", conv.Type)
}

// ListForUser 先查成员集合得到会话 id，再批量取会话与成员
// 文档库分区没有工作区，workspaceID 被忽略
func (s *conversationStore) ListForUser(ctx context.Context, userID, _ string) ([]model.Conversation, error) {
	var convIDs []string
	if err := s.members.Distinct(ctx, "conversation_id", bson.M{"user_id": userID}).Decode(&convIDs); err != nil {
		return nil, wrapMongoErrorf(err, "查询会话列表 user_id=%s", userID)
	}
	if len(convIDs) == 0 {
		return []model.Conversation{}, nil
	}
	convs, err := s.find(ctx, bson.M{"_id": bson.M{"$in": convIDs}, "deleted_at": bson.M{"$exists": false}})
	if err != nil {
		return nil, wrapMongoErrorf(err, "查询会话列表 user_id=%s", userID)
	}
	return convs, nil
}

// SetHidden 设置成员隐藏标记
func (s *conversationStore) SetHidden(ctx context.Context, conversationID, userID string, hidden bool) error {
	_, err := s.members.UpdateOne(ctx,
		bson.M{"conversation_id": conversationID, "user_id": userID},
		bson.M{"$set": bson.M{"is_hidden": hidden}},
	)
	return wrapMongoErrorf(err, "更新隐藏标记 conversation_id=%s user_id=%s", conversationID, userID)
}

// MarkMemberDeleted 成员侧删除会话，已删除的保持原删除时间
func (s *conversationStore) MarkMemberDeleted(ctx context.Context, conversationID, userID string) error {
	_, err := s.members.UpdateOne(ctx,
		bson.M{"conversation_id": conversationID, "user_id": userID, "deleted_at": bson.M{"$exists": false}},
		bson.M{"$set": bson.M{"deleted_at": now()}},
	)
	return wrapMongoErrorf(err, "删除会话成员 conversation_id=%s user_id=%s", conversationID, userID)
}

func (s *conversationStore) find(ctx context.Context, filter bson.M) ([]model.Conversation, error) {
	cursor, err := s.col.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	convs := []model.Conversation{}
	if err := cursor.All(ctx, &convs); err != nil {
		return nil, err
	}
	if err := s.attachMembers(ctx, convs); err != nil {
		return nil, err
	}
	return convs, nil
}

// attachMembers 一次查询取回全部成员后按会话分组
func (s *conversationStore) attachMembers(ctx context.Context, convs []model.Conversation) error {
	if len(convs) == 0 {
		return nil
	}
	ids := make(bson.A, 0, len(convs))
	for _, c := range convs {
		ids = append(ids, c.ID)
	}
	cursor, err := s.members.Find(ctx, bson.M{"conversation_id": bson.M{"$in": ids}})
	if err != nil {
		return err
	}
	var members []model.ConversationMember
	if err := cursor.All(ctx, &members); err != nil {
		return err
	}
	byConv := make(map[string][]model.ConversationMember, len(convs))
	for _, m := range members {
		byConv[m.ConversationID] = append(byConv[m.ConversationID], m)
	}
	for i := range convs {
		convs[i].Members = byConv[convs[i].ID]
	}
	return nil
}
