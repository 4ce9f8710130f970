// Package service 定义业务层接口
// 本文件定义所有 Service 接口，供 Handler 层调用
// 每个方法的第一个业务参数都是中间件解析出的 region.Resolution，
// 接口本身不感知调用方落在哪个后端
package service

import (
	"context"

	"regionchat_server/internal/dto/request"
	"regionchat_server/internal/dto/respond"
	"regionchat_server/internal/model"
	"regionchat_server/internal/region"
)

// ContactService 联系人与好友申请业务接口
type ContactService interface {
	// Submit 发起好友申请
	Submit(ctx context.Context, scope *region.Resolution, req request.SubmitContactRequest) (*model.ContactRequestView, error)
	// Respond 接收人接受/拒绝申请
	Respond(ctx context.Context, scope *region.Resolution, requestID string, req request.RespondContactRequest) (*respond.RespondContactResult, error)
	// Cancel 申请人撤回申请
	Cancel(ctx context.Context, scope *region.Resolution, requestID string) (*model.ContactRequestView, error)
	// List 按方向与状态列出申请
	List(ctx context.Context, scope *region.Resolution, query request.ListContactRequestsQuery) ([]model.ContactRequestView, error)
	// ListContacts 获取联系人列表
	ListContacts(ctx context.Context, scope *region.Resolution) ([]model.ContactView, error)
	// DeleteContact 解除联系人关系，并删除双方的私聊
	DeleteContact(ctx context.Context, scope *region.Resolution, contactID string) error
	// SetBlocked 拉黑/取消拉黑
	SetBlocked(ctx context.Context, scope *region.Resolution, contactID string, blocked bool) (*model.ContactView, error)
	// SetFavorite 设置星标
	SetFavorite(ctx context.Context, scope *region.Resolution, contactID string, favorite bool) (*model.ContactView, error)
}

// ConversationService 会话业务接口
type ConversationService interface {
	// Create 创建会话，私聊走 FindOrCreateDirect
	Create(ctx context.Context, scope *region.Resolution, req request.CreateConversationRequest) (*model.Conversation, error)
	// FindOrCreateDirect 查找或创建与 peerID 的私聊
	FindOrCreateDirect(ctx context.Context, scope *region.Resolution, peerID string) (*model.Conversation, error)
	// Get 查询单个会话
	Get(ctx context.Context, scope *region.Resolution, conversationID, workspaceID string) (*model.Conversation, error)
	// List 会话列表，已去重
	List(ctx context.Context, scope *region.Resolution, workspaceID string) ([]model.Conversation, error)
	// Hide 隐藏会话
	Hide(ctx context.Context, scope *region.Resolution, conversationID string) (*model.Conversation, error)
	// Delete 调用方一侧删除会话
	Delete(ctx context.Context, scope *region.Resolution, conversationID string) (*model.Conversation, error)
}
