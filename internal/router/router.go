// Package router 提供 HTTP 路由注册
// 本文件是路由注册的入口，聚合所有子模块的路由
package router

import (
	"time"

	"regionchat_server/internal/config"
	"regionchat_server/internal/handler"
	"regionchat_server/internal/infrastructure/middleware"
	"regionchat_server/internal/region"

	"github.com/gin-gonic/gin"
)

// Router 路由管理器
type Router struct {
	handlers *handler.Handlers
	regions  *region.Router
	gateway  config.GatewayConfig
	timeout  time.Duration
}

// NewRouter 创建路由管理器
func NewRouter(handlers *handler.Handlers, regions *region.Router, gateway config.GatewayConfig, timeout time.Duration) *Router {
	return &Router{
		handlers: handlers,
		regions:  regions,
		gateway:  gateway,
		timeout:  timeout,
	}
}

// RegisterRoutes 注册所有路由
// 在 https_server.Init() 中调用
// 除健康检查外的接口都要求认证，并在进入 handler 前完成分区路由
func (rt *Router) RegisterRoutes(r *gin.Engine) {
	r.GET("/healthz", rt.handlers.Health.Healthz)

	authed := r.Group("/")
	authed.Use(
		middleware.RequestTimeout(rt.timeout),
		middleware.Auth(rt.gateway),
		middleware.RegionScope(rt.regions),
	)
	rt.RegisterContactRequestRoutes(authed) // 好友申请
	rt.RegisterContactRoutes(authed)        // 联系人
	rt.RegisterConversationRoutes(authed)   // 会话
}
