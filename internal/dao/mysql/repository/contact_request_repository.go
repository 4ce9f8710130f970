package repository

import (
	"context"

	"regionchat_server/internal/model"
	"regionchat_server/internal/store"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// contactRequestRepository 好友申请表访问
type contactRequestRepository struct {
	db    *gorm.DB
	repos *Repositories // Accept 需要在同一事务里写联系人表
}

// FindByID 根据 id 查找申请
func (r *contactRequestRepository) FindByID(ctx context.Context, id string) (*model.ContactRequest, error) {
	var req model.ContactRequest
	if err := withDB(ctx, r.db).First(&req, "id = ?", id).Error; err != nil {
		return nil, wrapDBErrorf(err, "查询申请 id=%s", id)
	}
	return &req, nil
}

// FindActiveBetween 查询两人之间任意方向的 pending/accepted 申请
func (r *contactRequestRepository) FindActiveBetween(ctx context.Context, a, b string) ([]model.ContactRequest, error) {
	var reqs []model.ContactRequest
	err := withDB(ctx, r.db).
		Where("((requester_id = ? AND recipient_id = ?) OR (requester_id = ? AND recipient_id = ?)) AND status IN ?",
			a, b, b, a, []model.RequestStatus{model.RequestPending, model.RequestAccepted}).
		Order("created_at ASC").
		Find(&reqs).Error
	if err != nil {
		return nil, wrapDBErrorf(err, "查询有效申请 %s <-> %s", a, b)
	}
	return reqs, nil
}

// Create 插入新申请，active_pair_key 唯一索引冲突时返回 CodeDuplicate
func (r *contactRequestRepository) Create(ctx context.Context, req *model.ContactRequest) error {
	if req.ID == "" {
		req.ID = newID("R")
	}
	ts := now()
	req.CreatedAt, req.UpdatedAt = ts, ts
	req.SyncActivePairKey()
	return wrapDBErrorf(withDB(ctx, r.db).Create(req).Error, "创建申请 %s -> %s", req.RequesterID, req.RecipientID)
}

// Delete 删除申请
func (r *contactRequestRepository) Delete(ctx context.Context, id string) error {
	return wrapDBErrorf(withDB(ctx, r.db).Where("id = ?", id).Delete(&model.ContactRequest{}).Error, "删除申请 id=%s", id)
}

// Transition 条件更新状态，WHERE 带上旧状态，RowsAffected 判断是否抢到
func (r *contactRequestRepository) Transition(ctx context.Context, id string, from, to model.RequestStatus) (bool, error) {
	updates := map[string]any{"status": to, "updated_at": now()}
	if !to.Active() {
		updates["active_pair_key"] = nil
	}
	res := withDB(ctx, r.db).Model(&model.ContactRequest{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, wrapDBErrorf(res.Error, "更新申请状态 id=%s %s->%s", id, from, to)
	}
	return res.RowsAffected == 1, nil
}

// Reopen 把陈旧的 accepted 申请就地改写为新的 pending 申请
// 这一对用户的 active_pair_key 不变，因此不会和唯一索引冲突
func (r *contactRequestRepository) Reopen(ctx context.Context, id string, next *model.ContactRequest) (bool, error) {
	ts := now()
	res := withDB(ctx, r.db).Model(&model.ContactRequest{}).
		Where("id = ? AND status = ?", id, model.RequestAccepted).
		Updates(map[string]any{
			"requester_id": next.RequesterID,
			"recipient_id": next.RecipientID,
			"message":      next.Message,
			"region":       next.Region,
			"status":       model.RequestPending,
			"created_at":   ts,
			"updated_at":   ts,
		})
	if res.Error != nil {
		return false, wrapDBErrorf(res.Error, "重置申请 id=%s", id)
	}
	if res.RowsAffected != 1 {
		return false, nil
	}
	next.ID = id
	next.Status = model.RequestPending
	next.CreatedAt, next.UpdatedAt = ts, ts
	next.SyncActivePairKey()
	return true, nil
}

// Accept 事务内锁定申请行，pending -> accepted 并写入双向联系人
func (r *contactRequestRepository) Accept(ctx context.Context, id string) (bool, error) {
	accepted := false
	err := r.repos.Transaction(ctx, func(tx *Repositories) error {
		var req model.ContactRequest
		if err := tx.db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&req, "id = ?", id).Error; err != nil {
			return wrapDBErrorf(err, "锁定申请 id=%s", id)
		}
		if req.Status != model.RequestPending {
			return nil
		}
		ok, err := tx.Request.Transition(ctx, id, model.RequestPending, model.RequestAccepted)
		if err != nil || !ok {
			return err
		}
		if err := tx.Contact.CreatePair(ctx, req.RequesterID, req.RecipientID); err != nil {
			return err
		}
		accepted = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return accepted, nil
}

// List 按方向与状态列出申请
func (r *contactRequestRepository) List(ctx context.Context, userID string, dir store.Direction, status model.RequestStatus) ([]model.ContactRequest, error) {
	column := "recipient_id"
	if dir == store.DirectionSent {
		column = "requester_id"
	}
	q := withDB(ctx, r.db).Where(column+" = ?", userID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var reqs []model.ContactRequest
	if err := q.Order("created_at DESC").Find(&reqs).Error; err != nil {
		return nil, wrapDBErrorf(err, "查询申请列表 user_id=%s dir=%s", userID, dir)
	}
	return reqs, nil
}
