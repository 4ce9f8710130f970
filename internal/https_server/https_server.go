// Package https_server 提供 HTTP/HTTPS 服务器的初始化和配置
// 负责创建 Gin 引擎实例并配置中间件和路由
package https_server

import (
	"slices"

	"regionchat_server/internal/config"                    // 配置管理
	"regionchat_server/internal/handler"                   // Handler 聚合对象
	"regionchat_server/internal/infrastructure/logger"     // 自定义日志中间件
	"regionchat_server/internal/infrastructure/middleware" // TLS 重定向
	"regionchat_server/internal/region"                    // 分区路由
	"regionchat_server/internal/router"                    // 路由注册
	"regionchat_server/pkg/constants"                      // 网关身份头

	"github.com/gin-contrib/cors" // CORS 跨域中间件
	"github.com/gin-gonic/gin"    // Gin Web 框架
)

// Init 初始化 HTTP/HTTPS 服务器并返回 Gin 引擎实例
// 配置顺序：
//  1. 创建 Gin 引擎（空白，不含默认中间件）
//  2. 注册日志和恢复中间件
//  3. 配置 CORS 跨域规则
//  4. 可选的 TLS 重定向
//  5. 注册业务路由
func Init(cfg *config.Config, handlers *handler.Handlers, regions *region.Router) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	// 创建空白 Gin 引擎（不使用 gin.Default() 以便完全控制中间件）
	engine := gin.New()

	engine.Use(logger.GinLogger())
	engine.Use(logger.GinRecovery(true))

	// 配置 CORS 跨域规则
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.AllowOrigins
	if len(cfg.AllowOrigins) == 0 || slices.Contains(cfg.AllowOrigins, "*") {
		corsConfig.AllowOrigins = nil
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{
		"Origin", "Content-Length", "Content-Type", "Authorization",
		constants.HEADER_USER_ID, constants.HEADER_USER_REGION, constants.HEADER_GATEWAY_SECRET,
	}
	engine.Use(cors.New(corsConfig))

	// 由 Nginx 处理 SSL 时保持关闭
	if cfg.TLSRedirect {
		engine.Use(middleware.TlsHandler(cfg.MainConfig))
	}

	rt := router.NewRouter(handlers, regions, cfg.GatewayConfig, cfg.RequestTimeout)
	rt.RegisterRoutes(engine)

	return engine
}
