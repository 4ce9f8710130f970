// Package repository 关系库（MySQL/gorm）后端适配器
// 实现 store 包定义的全部能力接口；后端差异只存在于本包
package repository

import (
	"context"

	"regionchat_server/internal/store"

	"gorm.io/gorm"
)

// Repositories 聚合所有 Repository 实例
type Repositories struct {
	db           *gorm.DB
	User         *userRepository
	Contact      *contactRepository
	Request      *contactRequestRepository
	Conversation *conversationRepository
	Member       *memberRepository
}

// NewRepositories 创建所有 Repository 实例
func NewRepositories(db *gorm.DB) *Repositories {
	r := &Repositories{
		db:           db,
		User:         &userRepository{db: db},
		Contact:      &contactRepository{db: db},
		Conversation: &conversationRepository{db: db},
		Member:       &memberRepository{db: db},
	}
	r.Request = &contactRequestRepository{db: db, repos: r}
	return r
}

// Transaction 在数据库事务中执行函数
// 事务内的所有操作要么全部成功，要么全部回滚
func (r *Repositories) Transaction(ctx context.Context, fn func(txRepos *Repositories) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewRepositories(tx))
	})
}

// Backend 以能力接口的形式暴露给业务层
func (r *Repositories) Backend() *store.Backend {
	return &store.Backend{
		Kind:          store.KindRelational,
		Users:         r.User,
		Contacts:      r.Contact,
		Requests:      r.Request,
		Conversations: r.Conversation,
		Members:       r.Member,
	}
}

var (
	_ store.UserStore           = (*userRepository)(nil)
	_ store.ContactStore        = (*contactRepository)(nil)
	_ store.ContactRequestStore = (*contactRequestRepository)(nil)
	_ store.ConversationStore   = (*conversationRepository)(nil)
	_ store.MemberStore         = (*memberRepository)(nil)
)
