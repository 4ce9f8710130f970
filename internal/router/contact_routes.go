// Package router 提供 HTTP 路由注册
// 本文件定义好友申请与联系人相关的路由
package router

import (
	"github.com/gin-gonic/gin"
)

// RegisterContactRequestRoutes 注册好友申请路由（需要认证）
func (rt *Router) RegisterContactRequestRoutes(rg *gin.RouterGroup) {
	requestGroup := rg.Group("/contact-requests")
	{
		requestGroup.POST("", rt.handlers.ContactRequest.Submit)              // 发起好友申请
		requestGroup.GET("", rt.handlers.ContactRequest.List)                 // 申请列表
		requestGroup.POST("/:id/respond", rt.handlers.ContactRequest.Respond) // 接受/拒绝
		requestGroup.DELETE("/:id", rt.handlers.ContactRequest.Cancel)        // 撤回
	}
}

// RegisterContactRoutes 注册联系人路由（需要认证）
func (rt *Router) RegisterContactRoutes(rg *gin.RouterGroup) {
	contactGroup := rg.Group("/contacts")
	{
		contactGroup.GET("", rt.handlers.Contact.List)                         // 联系人列表
		contactGroup.DELETE("/:contactId", rt.handlers.Contact.Delete)         // 解除联系人
		contactGroup.POST("/:contactId/block", rt.handlers.Contact.Block)      // 拉黑
		contactGroup.DELETE("/:contactId/block", rt.handlers.Contact.Unblock)  // 取消拉黑
		contactGroup.PUT("/:contactId/favorite", rt.handlers.Contact.Favorite) // 星标
	}
}
