package middleware

import (
	"regionchat_server/internal/region"
	"regionchat_server/pkg/errorx"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const scopeKey = "region_scope"

// RegionScope 把 Auth 解析出的身份路由到分区后端，结果存入上下文
// 必须挂在 Auth 之后
func RegionScope(router *region.Router) gin.HandlerFunc {
	return func(c *gin.Context) {
		v, ok := c.Get(identityKey)
		if !ok {
			abort(c, errorx.ErrUnauthorized)
			return
		}
		id, _ := v.(region.Identity)
		scope, err := router.Resolve(c.Request.Context(), id)
		if err != nil {
			zap.L().Info("分区路由失败",
				zap.String("user_id", id.UserID),
				zap.String("region", string(id.Region)),
				zap.Bool("trusted", id.Trusted),
				zap.Error(err),
			)
			abort(c, err)
			return
		}
		c.Set(scopeKey, scope)
		c.Next()
	}
}

// Scope 取出当前请求的分区路由结果，未经过 RegionScope 时返回 false
func Scope(c *gin.Context) (*region.Resolution, bool) {
	v, ok := c.Get(scopeKey)
	if !ok {
		return nil, false
	}
	scope, ok := v.(*region.Resolution)
	return scope, ok && scope != nil
}
