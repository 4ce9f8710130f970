// Package handler 提供 HTTP 请求处理器
// 本文件处理好友申请相关的 API 请求
package handler

import (
	"regionchat_server/internal/dto/request"
	"regionchat_server/internal/service"

	"github.com/gin-gonic/gin"
)

// ContactRequestHandler 好友申请请求处理器
type ContactRequestHandler struct {
	contactSvc service.ContactService
}

// NewContactRequestHandler 创建好友申请处理器实例
func NewContactRequestHandler(contactSvc service.ContactService) *ContactRequestHandler {
	return &ContactRequestHandler{contactSvc: contactSvc}
}

// Submit 发起好友申请
// POST /contact-requests
// 请求体: request.SubmitContactRequest
// 响应: {request}；业务规则拒绝为 400 {error, code, errorType?}
func (h *ContactRequestHandler) Submit(c *gin.Context) {
	scope, ok := mustScope(c)
	if !ok {
		return
	}
	var req request.SubmitContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	view, err := h.contactSvc.Submit(c.Request.Context(), scope, req)
	if err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, gin.H{"request": view})
}

// List 好友申请列表
// GET /contact-requests?type=sent|received&status=pending|accepted|rejected|cancelled|all
// 响应: {requests}
func (h *ContactRequestHandler) List(c *gin.Context) {
	scope, ok := mustScope(c)
	if !ok {
		return
	}
	var query request.ListContactRequestsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		HandleParamError(c, err)
		return
	}
	views, err := h.contactSvc.List(c.Request.Context(), scope, query)
	if err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, gin.H{"requests": views})
}

// Respond 接受/拒绝好友申请
// POST /contact-requests/:id/respond
// 请求体: request.RespondContactRequest
// 响应: {request, contact?}
func (h *ContactRequestHandler) Respond(c *gin.Context) {
	scope, ok := mustScope(c)
	if !ok {
		return
	}
	var req request.RespondContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	result, err := h.contactSvc.Respond(c.Request.Context(), scope, c.Param("id"), req)
	if err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, result)
}

// Cancel 撤回自己发出的申请
// DELETE /contact-requests/:id
// 响应: {request}
func (h *ContactRequestHandler) Cancel(c *gin.Context) {
	scope, ok := mustScope(c)
	if !ok {
		return
	}
	view, err := h.contactSvc.Cancel(c.Request.Context(), scope, c.Param("id"))
	if err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, gin.H{"request": view})
}
