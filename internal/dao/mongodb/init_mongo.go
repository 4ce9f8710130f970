// Package mongodb 文档库（MongoDB）后端适配器
// 与关系库实现同一组 store 能力接口；字段命名、唯一约束与原子性差异都在本包内消化
package mongodb

import (
	"context"
	"fmt"
	"time"

	"regionchat_server/internal/config"
	"regionchat_server/internal/store"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

// 集合名
const (
	colUsers         = "users"
	colContacts      = "contacts"
	colRequests      = "contact_requests"
	colConversations = "conversations"
	colMembers       = "conversation_members"
)

// Store 文档库后端，聚合各集合的访问对象
type Store struct {
	client *mongo.Client
	db     *mongo.Database

	Users         *userStore
	Contacts      *contactStore
	Requests      *contactRequestStore
	Conversations *conversationStore
	Members       *memberStore
}

// Connect 建立连接、确认可用并创建索引
// 客户端级 Timeout 让每次操作都有上限，调用方 ctx 更短时以 ctx 为准
func Connect(ctx context.Context, cfg *config.MongoConfig) (*Store, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	client, err := mongo.Connect(options.Client().ApplyURI(cfg.URI).SetTimeout(timeout))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	s := New(client, cfg.DatabaseName)
	if err := s.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

// New 基于已有客户端构造 Store
func New(client *mongo.Client, database string) *Store {
	db := client.Database(database)
	s := &Store{client: client, db: db}
	s.Users = &userStore{col: db.Collection(colUsers)}
	s.Contacts = &contactStore{col: db.Collection(colContacts)}
	s.Requests = &contactRequestStore{col: db.Collection(colRequests), contacts: s.Contacts}
	s.Conversations = &conversationStore{col: db.Collection(colConversations), members: db.Collection(colMembers)}
	s.Members = &memberStore{col: db.Collection(colMembers)}
	return s
}

// EnsureIndexes 创建唯一约束与查询索引，重复执行无副作用
func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		colUsers: {
			{Keys: bson.D{{Key: "name", Value: 1}}},
		},
		colContacts: {
			{
				Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "contact_user_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "contact_user_id", Value: 1}}},
		},
		colRequests: {
			// active_pair_key 只在 pending/accepted 时存在，稀疏唯一索引忽略缺失字段的文档
			{
				Keys:    bson.D{{Key: "active_pair_key", Value: 1}},
				Options: options.Index().SetUnique(true).SetSparse(true).SetName("unique_active_pair"),
			},
			{Keys: bson.D{{Key: "requester_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "recipient_id", Value: 1}, {Key: "created_at", Value: -1}}},
		},
		colConversations: {
			{Keys: bson.D{{Key: "type", Value: 1}, {Key: "member_key", Value: 1}}},
		},
		colMembers: {
			{
				Keys:    bson.D{{Key: "conversation_id", Value: 1}, {Key: "user_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "user_id", Value: 1}}},
		},
	}
	for name, models := range indexes {
		if _, err := s.db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create indexes for %s: %w", name, err)
		}
	}
	return nil
}

// Backend 以能力接口的形式暴露给业务层
func (s *Store) Backend() *store.Backend {
	return &store.Backend{
		Kind:          store.KindDocument,
		Users:         s.Users,
		Contacts:      s.Contacts,
		Requests:      s.Requests,
		Conversations: s.Conversations,
		Members:       s.Members,
	}
}

// Ping 健康检查
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// Close 断开连接
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

var (
	_ store.UserStore           = (*userStore)(nil)
	_ store.ContactStore        = (*contactStore)(nil)
	_ store.ContactRequestStore = (*contactRequestStore)(nil)
	_ store.ConversationStore   = (*conversationStore)(nil)
	_ store.MemberStore         = (*memberStore)(nil)
)
