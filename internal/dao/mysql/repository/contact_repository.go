package repository

import (
	"context"

	"regionchat_server/internal/model"
	"regionchat_server/pkg/errorx"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type contactRepository struct {
	db *gorm.DB
}

// FindBetween 查询两人之间任意方向的联系人行
func (r *contactRepository) FindBetween(ctx context.Context, a, b string) ([]model.Contact, error) {
	var contacts []model.Contact
	err := withDB(ctx, r.db).
		Where("(user_id = ? AND contact_user_id = ?) OR (user_id = ? AND contact_user_id = ?)", a, b, b, a).
		Find(&contacts).Error
	if err != nil {
		return nil, wrapDBErrorf(err, "查询联系人 %s <-> %s", a, b)
	}
	return contacts, nil
}

// ListByUser 按用户ID查找所有联系人
func (r *contactRepository) ListByUser(ctx context.Context, userID string) ([]model.Contact, error) {
	var contacts []model.Contact
	if err := withDB(ctx, r.db).Where("user_id = ?", userID).Order("created_at DESC").Find(&contacts).Error; err != nil {
		return nil, wrapDBErrorf(err, "查询联系人列表 user_id=%s", userID)
	}
	return contacts, nil
}

// CreatePair 双向建立联系人
// 依赖 (user_id, contact_user_id) 唯一索引做 INSERT IGNORE 语义，重复执行无副作用；
// 已存在的拉黑行不会被覆盖
func (r *contactRepository) CreatePair(ctx context.Context, a, b string) error {
	ts := now()
	rows := []model.Contact{
		{ID: newID("C"), UserID: a, ContactUserID: b, CreatedAt: ts, UpdatedAt: ts},
		{ID: newID("C"), UserID: b, ContactUserID: a, CreatedAt: ts, UpdatedAt: ts},
	}
	err := withDB(ctx, r.db).Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
	return wrapDBErrorf(err, "创建联系人 %s <-> %s", a, b)
}

// DeletePair 双向删除联系人（硬删除，"无行即未建立联系"），拉黑行保留
func (r *contactRepository) DeletePair(ctx context.Context, a, b string) error {
	err := withDB(ctx, r.db).
		Where("((user_id = ? AND contact_user_id = ?) OR (user_id = ? AND contact_user_id = ?)) AND is_blocked = ?", a, b, b, a, false).
		Delete(&model.Contact{}).Error
	return wrapDBErrorf(err, "删除联系人 %s <-> %s", a, b)
}

// SetBlocked 设置拉黑标记，行不存在时插入单向行
// 取消拉黑时若对方没有反向行，说明这是拉黑陌生人时插入的单向行，直接删除
func (r *contactRepository) SetBlocked(ctx context.Context, userID, contactID string, blocked bool) error {
	ts := now()
	if !blocked {
		var reverse int64
		if err := withDB(ctx, r.db).Model(&model.Contact{}).
			Where("user_id = ? AND contact_user_id = ?", contactID, userID).
			Count(&reverse).Error; err != nil {
			return wrapDBErrorf(err, "查询联系人 user_id=%s contact_id=%s", contactID, userID)
		}
		q := withDB(ctx, r.db).Where("user_id = ? AND contact_user_id = ?", userID, contactID)
		if reverse == 0 {
			return wrapDBErrorf(q.Delete(&model.Contact{}).Error, "删除单向拉黑 user_id=%s contact_id=%s", userID, contactID)
		}
		err := q.Model(&model.Contact{}).Updates(map[string]any{"is_blocked": false, "updated_at": ts}).Error
		return wrapDBErrorf(err, "取消拉黑 user_id=%s contact_id=%s", userID, contactID)
	}

	row := model.Contact{ID: newID("C"), UserID: userID, ContactUserID: contactID, IsBlocked: true, CreatedAt: ts, UpdatedAt: ts}
	err := withDB(ctx, r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "contact_user_id"}},
		DoUpdates: clause.Assignments(map[string]any{"is_blocked": true, "updated_at": ts}),
	}).Create(&row).Error
	return wrapDBErrorf(err, "更新拉黑状态 user_id=%s contact_id=%s", userID, contactID)
}

// SetFavorite 更新星标
func (r *contactRepository) SetFavorite(ctx context.Context, userID, contactID string, favorite bool) error {
	res := withDB(ctx, r.db).Model(&model.Contact{}).
		Where("user_id = ? AND contact_user_id = ? AND is_blocked = ?", userID, contactID, false).
		Updates(map[string]any{"is_favorite": favorite, "updated_at": now()})
	if res.Error != nil {
		return wrapDBErrorf(res.Error, "更新星标 user_id=%s contact_id=%s", userID, contactID)
	}
	if res.RowsAffected == 0 {
		return errorx.Newf(errorx.CodeNotFound, "联系人不存在 user_id=%s contact_id=%s", userID, contactID)
	}
	return nil
}
