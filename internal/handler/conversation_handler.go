// Package handler 提供 HTTP 请求处理器
// 本文件处理会话相关的 API 请求
package handler

import (
	"regionchat_server/internal/dto/request"
	"regionchat_server/internal/service"

	"github.com/gin-gonic/gin"
)

// ConversationHandler 会话请求处理器
// 通过构造函数注入 ConversationService，遵循依赖倒置原则
type ConversationHandler struct {
	conversationSvc service.ConversationService
}

// NewConversationHandler 创建会话处理器实例
func NewConversationHandler(conversationSvc service.ConversationService) *ConversationHandler {
	return &ConversationHandler{conversationSvc: conversationSvc}
}

// Create 创建会话
// POST /conversations
// 请求体: request.CreateConversationRequest
// 响应: {conversation}；权限规则拒绝为 403 {error, code}
func (h *ConversationHandler) Create(c *gin.Context) {
	scope, ok := mustScope(c)
	if !ok {
		return
	}
	var req request.CreateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	conv, err := h.conversationSvc.Create(c.Request.Context(), scope, req)
	if err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, gin.H{"conversation": conv})
}

// Get 带 conversationId 时返回单个会话，否则返回会话列表
// GET /conversations?conversationId=xxx&workspaceId=xxx
// 响应: {conversation} 或 {conversations}
func (h *ConversationHandler) Get(c *gin.Context) {
	scope, ok := mustScope(c)
	if !ok {
		return
	}
	var query request.GetConversationsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		HandleParamError(c, err)
		return
	}
	if query.ConversationID != "" {
		conv, err := h.conversationSvc.Get(c.Request.Context(), scope, query.ConversationID, query.WorkspaceID)
		if err != nil {
			HandleError(c, err)
			return
		}
		HandleSuccess(c, gin.H{"conversation": conv})
		return
	}
	convs, err := h.conversationSvc.List(c.Request.Context(), scope, query.WorkspaceID)
	if err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, gin.H{"conversations": convs})
}

// Hide 隐藏会话
// POST /conversations/:id/hide
// 响应: {conversation}
func (h *ConversationHandler) Hide(c *gin.Context) {
	scope, ok := mustScope(c)
	if !ok {
		return
	}
	conv, err := h.conversationSvc.Hide(c.Request.Context(), scope, c.Param("id"))
	if err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, gin.H{"conversation": conv})
}

// Delete 删除会话（仅自己一侧）
// DELETE /conversations/:id
// 响应: {conversation}
func (h *ConversationHandler) Delete(c *gin.Context) {
	scope, ok := mustScope(c)
	if !ok {
		return
	}
	conv, err := h.conversationSvc.Delete(c.Request.Context(), scope, c.Param("id"))
	if err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, gin.H{"conversation": conv})
}
