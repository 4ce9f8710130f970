// Package handler 提供 HTTP 请求处理器
// 本文件处理联系人相关的 API 请求
package handler

import (
	"regionchat_server/internal/dto/request"
	"regionchat_server/internal/service"

	"github.com/gin-gonic/gin"
)

// ContactHandler 联系人请求处理器
type ContactHandler struct {
	contactSvc service.ContactService
}

// NewContactHandler 创建联系人处理器实例
func NewContactHandler(contactSvc service.ContactService) *ContactHandler {
	return &ContactHandler{contactSvc: contactSvc}
}

// List 联系人列表
// GET /contacts
// 响应: {contacts}
func (h *ContactHandler) List(c *gin.Context) {
	scope, ok := mustScope(c)
	if !ok {
		return
	}
	views, err := h.contactSvc.ListContacts(c.Request.Context(), scope)
	if err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, gin.H{"contacts": views})
}

// Delete 解除联系人关系
// DELETE /contacts/:contactId
// 响应: {contactId}
func (h *ContactHandler) Delete(c *gin.Context) {
	scope, ok := mustScope(c)
	if !ok {
		return
	}
	contactID := c.Param("contactId")
	if err := h.contactSvc.DeleteContact(c.Request.Context(), scope, contactID); err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, gin.H{"contactId": contactID})
}

// Block 拉黑
// POST /contacts/:contactId/block
// 响应: {contact}
func (h *ContactHandler) Block(c *gin.Context) {
	h.setBlocked(c, true)
}

// Unblock 取消拉黑
// DELETE /contacts/:contactId/block
// 响应: {contact}
func (h *ContactHandler) Unblock(c *gin.Context) {
	h.setBlocked(c, false)
}

func (h *ContactHandler) setBlocked(c *gin.Context, blocked bool) {
	scope, ok := mustScope(c)
	if !ok {
		return
	}
	view, err := h.contactSvc.SetBlocked(c.Request.Context(), scope, c.Param("contactId"), blocked)
	if err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, gin.H{"contact": view})
}

// Favorite 设置星标
// PUT /contacts/:contactId/favorite
// 请求体: request.FavoriteContactRequest
// 响应: {contact}
func (h *ContactHandler) Favorite(c *gin.Context) {
	scope, ok := mustScope(c)
	if !ok {
		return
	}
	var req request.FavoriteContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	view, err := h.contactSvc.SetFavorite(c.Request.Context(), scope, c.Param("contactId"), *req.IsFavorite)
	if err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, gin.H{"contact": view})
}
