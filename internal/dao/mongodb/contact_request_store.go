package mongodb

import (
	"context"

	"regionchat_server/internal/model"
	"regionchat_server/internal/store"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"
)

type contactRequestStore struct {
	col      *mongo.Collection
	contacts *contactStore
}

// FindByID 根据 id 查找申请
func (s *contactRequestStore) FindByID(ctx context.Context, id string) (*model.ContactRequest, error) {
	var req model.ContactRequest
	if err := s.col.FindOne(ctx, bson.M{"_id": id}).Decode(&req); err != nil {
		return nil, wrapMongoErrorf(err, "查询申请 id=%s", id)
	}
	return &req, nil
}

// FindActiveBetween 查询两人之间任意方向的 pending/accepted 申请
func (s *contactRequestStore) FindActiveBetween(ctx context.Context, a, b string) ([]model.ContactRequest, error) {
	filter := bson.M{
		"$or": bson.A{
			bson.M{"requester_id": a, "recipient_id": b},
			bson.M{"requester_id": b, "recipient_id": a},
		},
		"status": bson.M{"$in": bson.A{model.RequestPending, model.RequestAccepted}},
	}
	cursor, err := s.col.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, wrapMongoErrorf(err, "查询有效申请 %s <-> %s", a, b)
	}
	var reqs []model.ContactRequest
	if err := cursor.All(ctx, &reqs); err != nil {
		return nil, wrapMongoErrorf(err, "查询有效申请 %s <-> %s", a, b)
	}
	return reqs, nil
}

// Create 插入申请，稀疏唯一索引冲突时返回 CodeDuplicate
func (s *contactRequestStore) Create(ctx context.Context, req *model.ContactRequest) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	ts := now()
	req.CreatedAt, req.UpdatedAt = ts, ts
	req.SyncActivePairKey()
	_, err := s.col.InsertOne(ctx, req)
	return wrapMongoErrorf(err, "创建申请 %s -> %s", req.RequesterID, req.RecipientID)
}

// Delete 删除申请
func (s *contactRequestStore) Delete(ctx context.Context, id string) error {
	_, err := s.col.DeleteOne(ctx, bson.M{"_id": id})
	return wrapMongoErrorf(err, "删除申请 id=%s", id)
}

// Transition 以 {_id, status: from} 为条件的单文档原子更新
// 离开 active 状态时移除 active_pair_key，让出唯一名额
func (s *contactRequestStore) Transition(ctx context.Context, id string, from, to model.RequestStatus) (bool, error) {
	update := bson.M{"$set": bson.M{"status": to, "updated_at": now()}}
	if !to.Active() {
		update["$unset"] = bson.M{"active_pair_key": ""}
	}
	res, err := s.col.UpdateOne(ctx, bson.M{"_id": id, "status": from}, update)
	if err != nil {
		return false, wrapMongoErrorf(err, "更新申请状态 id=%s %s->%s", id, from, to)
	}
	return res.ModifiedCount == 1, nil
}

// Reopen 把陈旧的 accepted 申请就地改写为新的 pending 申请
func (s *contactRequestStore) Reopen(ctx context.Context, id string, next *model.ContactRequest) (bool, error) {
	ts := now()
	res, err := s.col.UpdateOne(ctx,
		bson.M{"_id": id, "status": model.RequestAccepted},
		bson.M{"$set": bson.M{
			"requester_id": next.RequesterID,
			"recipient_id": next.RecipientID,
			"message":      next.Message,
			"region":       next.Region,
			"status":       model.RequestPending,
			"created_at":   ts,
			"updated_at":   ts,
		}},
	)
	if err != nil {
		return false, wrapMongoErrorf(err, "重置申请 id=%s", id)
	}
	if res.ModifiedCount != 1 {
		return false, nil
	}
	next.ID = id
	next.Status = model.RequestPending
	next.CreatedAt, next.UpdatedAt = ts, ts
	next.SyncActivePairKey()
	return true, nil
}

// Accept 单机部署没有多文档事务，按 CAS -> 写联系人 -> 失败回滚状态 的顺序执行
// 联系人 upsert 幂等，回滚失败时留下的 accepted 申请会在下一次提交申请时被修复
func (s *contactRequestStore) Accept(ctx context.Context, id string) (bool, error) {
	req, err := s.FindByID(ctx, id)
	if err != nil {
		return false, err
	}
	ok, err := s.Transition(ctx, id, model.RequestPending, model.RequestAccepted)
	if err != nil || !ok {
		return false, err
	}
	if err := s.contacts.CreatePair(ctx, req.RequesterID, req.RecipientID); err != nil {
		if _, rbErr := s.Transition(context.WithoutCancel(ctx), id, model.RequestAccepted, model.RequestPending); rbErr != nil {
			zap.L().Error("回滚申请状态失败", zap.String("request_id", id), zap.Error(rbErr))
		}
		return false, err
	}
	return true, nil
}

// List 按方向与状态列出申请
func (s *contactRequestStore) List(ctx context.Context, userID string, dir store.Direction, status model.RequestStatus) ([]model.ContactRequest, error) {
	field := "recipient_id"
	if dir == store.DirectionSent {
		field = "requester_id"
	}
	filter := bson.M{field: userID}
	if status != "" {
		filter["status"] = status
	}
	cursor, err := s.col.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, wrapMongoErrorf(err, "查询申请列表 user_id=%s dir=%s", userID, dir)
	}
	var reqs []model.ContactRequest
	if err := cursor.All(ctx, &reqs); err != nil {
		return nil, wrapMongoErrorf(err, "查询申请列表 user_id=%s dir=%s", userID, dir)
	}
	return reqs, nil
}
