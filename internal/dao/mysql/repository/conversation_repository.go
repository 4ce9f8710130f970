package repository

import (
	"context"

	"regionchat_server/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type conversationRepository struct {
	db *gorm.DB
}

// FindDirect 按成员键查找私聊会话（含全部成员，含已删除成员）
// 成员键上有 (type, member_key) 联合索引，一次查询即可定位，不需要按成员做 JOIN
func (r *conversationRepository) FindDirect(ctx context.Context, memberKey string) ([]model.Conversation, error) {
	var convs []model.Conversation
	err := withDB(ctx, r.db).
		Preload("Members").
		Where("type = ? AND member_key = ? AND deleted_at IS NULL", model.ConversationDirect, memberKey).
		Find(&convs).Error
	if err != nil {
		return nil, wrapDBErrorf(err, "查询私聊会话 member_key=%s", memberKey)
	}
	return convs, nil
}

// FindByID 查询会话及成员
func (r *conversationRepository) FindByID(ctx context.Context, id string) (*model.Conversation, error) {
	var conv model.Conversation
	if err := withDB(ctx, r.db).Preload("Members").First(&conv, "id = ?", id).Error; err != nil {
		return nil, wrapDBErrorf(err, "查询会话 id=%s", id)
	}
	return &conv, nil
}

// Create 只插入会话行，成员由 Provisioner 写入
func (r *conversationRepository) Create(ctx context.Context, conv *model.Conversation) error {
	if conv.ID == "" {
		conv.ID = newID("S")
	}
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now()
	}
	err := withDB(ctx, r.db).Omit(clause.Associations).Create(conv).Error
	return wrapDBErrorf(err, "创建会话 type=%s", conv.Type)
}

// ListForUser 查询用户参与的会话，成员删除状态由调用方显式过滤
func (r *conversationRepository) ListForUser(ctx context.Context, userID, workspaceID string) ([]model.Conversation, error) {
	sub := withDB(ctx, r.db).Model(&model.ConversationMember{}).Select("conversation_id").Where("user_id = ?", userID)
	q := withDB(ctx, r.db).Preload("Members").Where("id IN (?) AND deleted_at IS NULL", sub)
	// 私聊按用户对唯一，不属于任何工作区
	if workspaceID != "" {
		q = q.Where("(workspace_id = ? OR type = ?)", workspaceID, model.ConversationDirect)
	}
	var convs []model.Conversation
	if err := q.Find(&convs).Error; err != nil {
		return nil, wrapDBErrorf(err, "查询会话列表 user_id=%s", userID)
	}
	return convs, nil
}

// SetHidden 设置成员隐藏标记
func (r *conversationRepository) SetHidden(ctx context.Context, conversationID, userID string, hidden bool) error {
	err := withDB(ctx, r.db).Model(&model.ConversationMember{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Update("is_hidden", hidden).Error
	return wrapDBErrorf(err, "更新隐藏标记 conversation_id=%s user_id=%s", conversationID, userID)
}

// MarkMemberDeleted 成员侧删除会话，已删除的保持原删除时间
func (r *conversationRepository) MarkMemberDeleted(ctx context.Context, conversationID, userID string) error {
	err := withDB(ctx, r.db).Model(&model.ConversationMember{}).
		Where("conversation_id = ? AND user_id = ? AND deleted_at IS NULL", conversationID, userID).
		Update("deleted_at", now()).Error
	return wrapDBErrorf(err, "删除会话成员 conversation_id=%s user_id=%s", conversationID, userID)
}
