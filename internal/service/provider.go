// Package service 提供业务逻辑层
// 本文件实现 Service 层的依赖注入和聚合
package service

import (
	"regionchat_server/internal/infrastructure/mq"
	"regionchat_server/internal/region"
	"regionchat_server/internal/service/contact"
	"regionchat_server/internal/service/conversation"
	"regionchat_server/internal/service/listcache"
	"regionchat_server/internal/service/member"
)

// Services 聚合所有 Service 实例
type Services struct {
	Contact      ContactService      // 联系人 Service
	Conversation ConversationService // 会话 Service
}

// Deps Service 层的共享依赖
type Deps struct {
	Router    *region.Router
	Lists     *listcache.Cache  // 可为 nil，缓存关闭
	Publisher mq.EventPublisher // 可为 nil，不发布事件
	Attempts  int               // 有界重试次数
}

// NewServices 创建并注入所有 Service 实例
// 依赖注入流程：
//  1. 两个 Service 共用同一个分区路由、列表缓存和事件发布器
//  2. 成员写入器只由会话 Service 使用
//  3. 返回 Services 聚合
func NewServices(deps Deps) *Services {
	provisioner := member.NewProvisioner(deps.Attempts)
	return &Services{
		Contact:      contact.NewContactService(deps.Router, deps.Lists, deps.Publisher, deps.Attempts),
		Conversation: conversation.NewConversationService(deps.Router, provisioner, deps.Lists, deps.Publisher, deps.Attempts),
	}
}
