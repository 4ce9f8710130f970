package repository

import (
	"context"
	"errors"

	"regionchat_server/internal/model"
	"regionchat_server/pkg/errorx"

	"gorm.io/gorm"
)

type userRepository struct {
	db *gorm.DB
}

// FindByID 按 id 查找用户
func (r *userRepository) FindByID(ctx context.Context, id string) (*model.UserProfile, error) {
	var user model.UserProfile
	if err := withDB(ctx, r.db).First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errorx.ErrUserNotExist.WithCause(err)
		}
		return nil, wrapDBErrorf(err, "查询用户 id=%s", id)
	}
	return &user, nil
}

// FindByIDs 按 id 列表查找用户
func (r *userRepository) FindByIDs(ctx context.Context, ids []string) ([]model.UserProfile, error) {
	var users []model.UserProfile
	if len(ids) == 0 {
		return users, nil
	}
	if err := withDB(ctx, r.db).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, wrapDBError(err, "批量查询用户")
	}
	return users, nil
}

// IsWorkspaceMember 查询工作区成员关系
func (r *userRepository) IsWorkspaceMember(ctx context.Context, workspaceID, userID string) (bool, error) {
	var count int64
	err := withDB(ctx, r.db).Model(&model.WorkspaceMember{}).
		Where("workspace_id = ? AND user_id = ?", workspaceID, userID).
		Count(&count).Error
	if err != nil {
		return false, wrapDBErrorf(err, "查询工作区成员 workspace_id=%s user_id=%s", workspaceID, userID)
	}
	return count > 0, nil
}
