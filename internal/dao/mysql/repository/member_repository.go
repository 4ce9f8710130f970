package repository

import (
	"context"

	"regionchat_server/internal/model"

	"gorm.io/gorm"
)

type memberRepository struct {
	db *gorm.DB
}

// BulkInsert 单条多值 INSERT，任一行冲突整条语句失败
func (r *memberRepository) BulkInsert(ctx context.Context, members []model.ConversationMember) error {
	if len(members) == 0 {
		return nil
	}
	return wrapDBErrorf(withDB(ctx, r.db).Create(&members).Error, "批量添加成员 conversation_id=%s", members[0].ConversationID)
}

// Insert 插入单个成员
func (r *memberRepository) Insert(ctx context.Context, member model.ConversationMember) error {
	err := withDB(ctx, r.db).Create(&member).Error
	return wrapDBErrorf(err, "添加成员 conversation_id=%s user_id=%s", member.ConversationID, member.UserID)
}

// ListMembers 查询会话全部成员
func (r *memberRepository) ListMembers(ctx context.Context, conversationID string) ([]model.ConversationMember, error) {
	var members []model.ConversationMember
	if err := withDB(ctx, r.db).Where("conversation_id = ?", conversationID).Find(&members).Error; err != nil {
		return nil, wrapDBErrorf(err, "查询成员 conversation_id=%s", conversationID)
	}
	return members, nil
}
