package middleware

import (
	"strconv"

	"regionchat_server/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/unrolled/secure"
	"go.uber.org/zap"
)

// TlsHandler HTTP -> HTTPS 重定向并附加基础安全响应头
func TlsHandler(cfg config.MainConfig) gin.HandlerFunc {
	// 在返回函数之前初始化，避免每次请求都重复创建对象
	secureMiddleware := secure.New(secure.Options{
		SSLRedirect:        cfg.TLSRedirect,
		SSLHost:            cfg.Host + ":" + strconv.Itoa(cfg.Port),
		FrameDeny:          true,
		ContentTypeNosniff: true,
		IsDevelopment:      cfg.Mode == "dev",
	})

	return func(c *gin.Context) {
		if err := secureMiddleware.Process(c.Writer, c.Request); err != nil {
			// 不要在中间件里用 Fatal，记录日志后终止当前请求
			zap.L().Error("TLS redirection failed", zap.Error(err))
			c.Abort()
			return
		}
		// 重定向时 secure 已写出响应
		if status := c.Writer.Status(); status >= 300 && status < 400 {
			c.Abort()
			return
		}
		c.Next()
	}
}
