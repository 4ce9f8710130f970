package mongodb

import (
	"context"
	"errors"
	"time"

	"regionchat_server/internal/model"
	"regionchat_server/pkg/errorx"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// userDoc 文档库中的用户资料，字段名沿用该分区客户端的命名
type userDoc struct {
	ID          string     `bson:"_id"`
	Email       string     `bson:"email"`
	Name        string     `bson:"name"`
	DisplayName string     `bson:"display_name"`
	Avatar      string     `bson:"avatar"`
	Presence    string     `bson:"presence"`
	Region      string     `bson:"region"`
	Privacy     privacyDoc `bson:"privacy"`
	CreatedAt   time.Time  `bson:"created_at"`
}

type privacyDoc struct {
	AllowStrangers *bool `bson:"allow_strangers"`
}

// profile 转换为统一的 UserProfile
// region 缺失时保持为空，由分区路由判定为不匹配
func (d *userDoc) profile() model.UserProfile {
	privacy := model.PrivacyEveryone
	if d.Privacy.AllowStrangers != nil && !*d.Privacy.AllowStrangers {
		privacy = model.PrivacyContactsOnly
	}
	status := d.Presence
	if status == "" {
		status = "offline"
	}
	region, _ := model.ParseRegion(d.Region)
	return model.UserProfile{
		ID:        d.ID,
		Email:     d.Email,
		Username:  d.Name,
		FullName:  d.DisplayName,
		AvatarURL: d.Avatar,
		Status:    status,
		Region:    region,
		Privacy:   privacy,
		CreatedAt: d.CreatedAt,
	}
}

type userStore struct {
	col *mongo.Collection
}

// FindByID 按 id 查找用户
func (s *userStore) FindByID(ctx context.Context, id string) (*model.UserProfile, error) {
	var doc userDoc
	if err := s.col.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, errorx.ErrUserNotExist.WithCause(err)
		}
		return nil, wrapMongoErrorf(err, "查询用户 id=%s", id)
	}
	p := doc.profile()
	return &p, nil
}

// FindByIDs 按 id 列表查找用户
func (s *userStore) FindByIDs(ctx context.Context, ids []string) ([]model.UserProfile, error) {
	users := make([]model.UserProfile, 0, len(ids))
	if len(ids) == 0 {
		return users, nil
	}
	cursor, err := s.col.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, wrapMongoErrorf(err, "批量查询用户")
	}
	var docs []userDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, wrapMongoErrorf(err, "批量查询用户")
	}
	for i := range docs {
		users = append(users, docs[i].profile())
	}
	return users, nil
}

// IsWorkspaceMember 文档库分区没有工作区概念
func (s *userStore) IsWorkspaceMember(context.Context, string, string) (bool, error) {
	return true, nil
}
