// Package store 定义两个后端共同实现的能力接口
// 业务层只依赖这些接口，关系库/文档库的差异全部收敛在适配器内部
package store

import (
	"context"

	"regionchat_server/internal/model"
)

// Kind 后端类型
type Kind string

const (
	KindRelational Kind = "relational"
	KindDocument   Kind = "document"
)

// Direction 申请列表方向
type Direction string

const (
	DirectionSent     Direction = "sent"
	DirectionReceived Direction = "received"
)

// UserStore 用户资料（只读）
type UserStore interface {
	// FindByID 查询用户资料，不存在返回 CodeUserNotExist
	FindByID(ctx context.Context, id string) (*model.UserProfile, error)
	// FindByIDs 批量查询，不存在的 id 直接忽略
	FindByIDs(ctx context.Context, ids []string) ([]model.UserProfile, error)
	// IsWorkspaceMember 用户是否属于工作区；不支持工作区的后端恒为 true
	IsWorkspaceMember(ctx context.Context, workspaceID, userID string) (bool, error)
}

// ContactStore 联系人关系
type ContactStore interface {
	// FindBetween 返回两人之间任意方向的联系人行
	FindBetween(ctx context.Context, a, b string) ([]model.Contact, error)
	// ListByUser 返回 user_id = userID 的联系人行
	ListByUser(ctx context.Context, userID string) ([]model.Contact, error)
	// CreatePair 双向建立联系人，已存在的方向跳过
	CreatePair(ctx context.Context, a, b string) error
	// DeletePair 双向删除未拉黑的联系人行，拉黑行保留
	DeletePair(ctx context.Context, a, b string) error
	// SetBlocked 设置 userID 对 contactID 的拉黑标记，行不存在时创建单向行
	SetBlocked(ctx context.Context, userID, contactID string, blocked bool) error
	// SetFavorite 设置 userID 一侧的星标，行不存在返回 CodeNotFound
	SetFavorite(ctx context.Context, userID, contactID string, favorite bool) error
}

// ContactRequestStore 好友申请
type ContactRequestStore interface {
	// FindByID 不存在返回 CodeNotFound
	FindByID(ctx context.Context, id string) (*model.ContactRequest, error)
	// FindActiveBetween 返回两人之间任意方向的 active 申请
	FindActiveBetween(ctx context.Context, a, b string) ([]model.ContactRequest, error)
	// Create 插入申请，触发唯一约束时返回 CodeDuplicate
	Create(ctx context.Context, req *model.ContactRequest) error
	// Delete 删除申请，记录不存在不视为错误
	Delete(ctx context.Context, id string) error
	// Transition 条件更新：仅当当前状态为 from 时改为 to，返回是否命中
	Transition(ctx context.Context, id string, from, to model.RequestStatus) (bool, error)
	// Reopen 把一条 accepted 的陈旧申请改写为新的 pending 申请，返回是否命中
	Reopen(ctx context.Context, id string, next *model.ContactRequest) (bool, error)
	// Accept 在后端能力范围内原子地把 pending 申请标记为 accepted 并建立双向联系人
	// 申请已不是 pending 时返回 (false, nil)
	Accept(ctx context.Context, id string) (bool, error)
	// List 按方向与状态列出，status 为空表示全部
	List(ctx context.Context, userID string, dir Direction, status model.RequestStatus) ([]model.ContactRequest, error)
}

// ConversationStore 会话
type ConversationStore interface {
	// FindDirect 返回成员键为 memberKey 且会话本身未删除的私聊会话（含全部成员），不做成员删除过滤
	FindDirect(ctx context.Context, memberKey string) ([]model.Conversation, error)
	// FindByID 返回会话及成员，不存在返回 CodeNotFound
	FindByID(ctx context.Context, id string) (*model.Conversation, error)
	// Create 插入会话行（不含成员），ID 为空时由适配器生成
	Create(ctx context.Context, conv *model.Conversation) error
	// ListForUser 返回用户作为成员的全部会话（含成员）
	// workspaceID 非空时只返回该工作区的会话与私聊，私聊不属于任何工作区
	ListForUser(ctx context.Context, userID, workspaceID string) ([]model.Conversation, error)
	// SetHidden 设置成员的隐藏标记
	SetHidden(ctx context.Context, conversationID, userID string, hidden bool) error
	// MarkMemberDeleted 标记成员删除该会话
	MarkMemberDeleted(ctx context.Context, conversationID, userID string) error
}

// MemberStore 会话成员
type MemberStore interface {
	// BulkInsert 批量插入成员，任一行失败整体返回错误
	BulkInsert(ctx context.Context, members []model.ConversationMember) error
	// Insert 插入单个成员，已存在返回 CodeDuplicate
	Insert(ctx context.Context, member model.ConversationMember) error
	// ListMembers 返回会话的全部成员行
	ListMembers(ctx context.Context, conversationID string) ([]model.ConversationMember, error)
}

// Backend 一个分区后端的全部能力
type Backend struct {
	Kind          Kind
	Users         UserStore
	Contacts      ContactStore
	Requests      ContactRequestStore
	Conversations ConversationStore
	Members       MemberStore
}
