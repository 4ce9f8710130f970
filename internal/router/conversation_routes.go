// Package router 提供 HTTP 路由注册
// 本文件定义会话相关的路由
package router

import (
	"github.com/gin-gonic/gin"
)

// RegisterConversationRoutes 注册会话路由（需要认证）
func (rt *Router) RegisterConversationRoutes(rg *gin.RouterGroup) {
	conversationGroup := rg.Group("/conversations")
	{
		conversationGroup.POST("", rt.handlers.Conversation.Create)        // 创建会话（私聊为查找或创建）
		conversationGroup.GET("", rt.handlers.Conversation.Get)            // 单个会话或会话列表
		conversationGroup.POST("/:id/hide", rt.handlers.Conversation.Hide) // 隐藏会话
		conversationGroup.DELETE("/:id", rt.handlers.Conversation.Delete)  // 删除会话（仅自己）
	}
}
