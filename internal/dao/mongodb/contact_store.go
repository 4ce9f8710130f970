package mongodb

import (
	"context"

	"regionchat_server/internal/model"
	"regionchat_server/pkg/errorx"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type contactStore struct {
	col *mongo.Collection
}

func pairFilter(a, b string) bson.M {
	return bson.M{"$or": bson.A{
		bson.M{"user_id": a, "contact_user_id": b},
		bson.M{"user_id": b, "contact_user_id": a},
	}}
}

// FindBetween 查询两人之间任意方向的联系人
func (s *contactStore) FindBetween(ctx context.Context, a, b string) ([]model.Contact, error) {
	cursor, err := s.col.Find(ctx, pairFilter(a, b))
	if err != nil {
		return nil, wrapMongoErrorf(err, "查询联系人 %s <-> %s", a, b)
	}
	var contacts []model.Contact
	if err := cursor.All(ctx, &contacts); err != nil {
		return nil, wrapMongoErrorf(err, "查询联系人 %s <-> %s", a, b)
	}
	return contacts, nil
}

// ListByUser 查询用户的联系人
func (s *contactStore) ListByUser(ctx context.Context, userID string) ([]model.Contact, error) {
	cursor, err := s.col.Find(ctx, bson.M{"user_id": userID}, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, wrapMongoErrorf(err, "查询联系人列表 user_id=%s", userID)
	}
	var contacts []model.Contact
	if err := cursor.All(ctx, &contacts); err != nil {
		return nil, wrapMongoErrorf(err, "查询联系人列表 user_id=%s", userID)
	}
	return contacts, nil
}

// CreatePair 双向 upsert，只在插入时写入字段，已有行（包括拉黑行）不受影响
func (s *contactStore) CreatePair(ctx context.Context, a, b string) error {
	for _, dir := range [][2]string{{a, b}, {b, a}} {
		if err := s.insertIfAbsent(ctx, dir[0], dir[1], false); err != nil {
			return err
		}
	}
	return nil
}

func (s *contactStore) insertIfAbsent(ctx context.Context, userID, contactID string, blocked bool) error {
	ts := now()
	_, err := s.col.UpdateOne(ctx,
		bson.M{"user_id": userID, "contact_user_id": contactID},
		bson.M{"$setOnInsert": bson.M{
			"_id":             uuid.NewString(),
			"user_id":         userID,
			"contact_user_id": contactID,
			"is_favorite":     false,
			"is_blocked":      blocked,
			"created_at":      ts,
			"updated_at":      ts,
		}},
		options.UpdateOne().SetUpsert(true),
	)
	// 并发 upsert 可能在唯一索引上相撞，另一方已经插入即达到目的
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return wrapMongoErrorf(err, "创建联系人 %s -> %s", userID, contactID)
	}
	return nil
}

// DeletePair 双向删除，拉黑行保留
func (s *contactStore) DeletePair(ctx context.Context, a, b string) error {
	filter := pairFilter(a, b)
	filter["is_blocked"] = false
	_, err := s.col.DeleteMany(ctx, filter)
	return wrapMongoErrorf(err, "删除联系人 %s <-> %s", a, b)
}

// SetBlocked 设置拉黑标记，语义与关系库一致：
// 拉黑时行不存在则插入单向行；取消拉黑时没有反向行就删除本行
func (s *contactStore) SetBlocked(ctx context.Context, userID, contactID string, blocked bool) error {
	filter := bson.M{"user_id": userID, "contact_user_id": contactID}
	if !blocked {
		reverse, err := s.col.CountDocuments(ctx, bson.M{"user_id": contactID, "contact_user_id": userID})
		if err != nil {
			return wrapMongoErrorf(err, "查询联系人 user_id=%s contact_id=%s", contactID, userID)
		}
		if reverse == 0 {
			_, err := s.col.DeleteOne(ctx, filter)
			return wrapMongoErrorf(err, "删除单向拉黑 user_id=%s contact_id=%s", userID, contactID)
		}
		_, err = s.col.UpdateOne(ctx, filter, bson.M{"$set": bson.M{"is_blocked": false, "updated_at": now()}})
		return wrapMongoErrorf(err, "取消拉黑 user_id=%s contact_id=%s", userID, contactID)
	}

	res, err := s.col.UpdateOne(ctx, filter, bson.M{"$set": bson.M{"is_blocked": true, "updated_at": now()}})
	if err != nil {
		return wrapMongoErrorf(err, "更新拉黑状态 user_id=%s contact_id=%s", userID, contactID)
	}
	if res.MatchedCount > 0 {
		return nil
	}
	if err := s.insertIfAbsent(ctx, userID, contactID, true); err != nil {
		return err
	}
	// 并发下 upsert 可能命中了别人刚插入的未拉黑行，再补一次标记
	_, err = s.col.UpdateOne(ctx, filter, bson.M{"$set": bson.M{"is_blocked": true}})
	return wrapMongoErrorf(err, "更新拉黑状态 user_id=%s contact_id=%s", userID, contactID)
}

// SetFavorite 更新星标
func (s *contactStore) SetFavorite(ctx context.Context, userID, contactID string, favorite bool) error {
	res, err := s.col.UpdateOne(ctx,
		bson.M{"user_id": userID, "contact_user_id": contactID, "is_blocked": false},
		bson.M{"$set": bson.M{"is_favorite": favorite, "updated_at": now()}},
	)
	if err != nil {
		return wrapMongoErrorf(err, "更新星标 user_id=%s contact_id=%s", userID, contactID)
	}
	if res.MatchedCount == 0 {
		return errorx.Newf(errorx.CodeNotFound, "联系人不存在 user_id=%s contact_id=%s", userID, contactID)
	}
	return nil
}
