package middleware

import (
	"crypto/subtle"
	"strings"

	"regionchat_server/internal/config"
	"regionchat_server/internal/model"
	"regionchat_server/internal/region"
	"regionchat_server/pkg/constants"
	"regionchat_server/pkg/errorx"
	"regionchat_server/pkg/util/jwt"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const identityKey = "identity"

// Auth 认证中间件
// 优先校验 Bearer Access Token；开启可信网关时，带正确网关密钥的请求可以用
// X-User-Id（或 uid cookie）与 X-User-Region 表明身份，这类身份只能路由到文档库分区
func Auth(gateway config.GatewayConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 1. Bearer Token
		if authHeader := c.GetHeader("Authorization"); authHeader != "" {
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				abort(c, errorx.New(errorx.CodeUnauthorized, "Token 格式错误，请使用 Bearer Token"))
				return
			}
			claims, err := jwt.ParseToken(parts[1])
			if err != nil {
				zap.L().Debug("token 校验失败", zap.Error(err))
				abort(c, errorx.New(errorx.CodeUnauthorized, "Token 已过期或无效，请重新登录"))
				return
			}
			if claims.Subject != constants.ACCESS_TOKEN_SUBJECT {
				abort(c, errorx.New(errorx.CodeUnauthorized, "请使用 Access Token 访问此接口"))
				return
			}
			c.Set(identityKey, region.Identity{UserID: claims.UserID, Region: model.Region(claims.Region)})
			c.Next()
			return
		}

		// 2. 可信网关头
		if id, ok := gatewayIdentity(c, gateway); ok {
			c.Set(identityKey, id)
			c.Next()
			return
		}

		abort(c, errorx.New(errorx.CodeUnauthorized, "请先登录"))
	}
}

// gatewayIdentity 网关密钥必须配置且匹配，否则忽略身份头
func gatewayIdentity(c *gin.Context, gateway config.GatewayConfig) (region.Identity, bool) {
	if !gateway.TrustedHeader || gateway.Secret == "" {
		return region.Identity{}, false
	}
	secret := c.GetHeader(constants.HEADER_GATEWAY_SECRET)
	if subtle.ConstantTimeCompare([]byte(secret), []byte(gateway.Secret)) != 1 {
		return region.Identity{}, false
	}
	userID := c.GetHeader(constants.HEADER_USER_ID)
	if userID == "" {
		userID, _ = c.Cookie(constants.COOKIE_USER_ID)
	}
	if userID == "" {
		return region.Identity{}, false
	}
	r, _ := model.ParseRegion(c.GetHeader(constants.HEADER_USER_REGION))
	return region.Identity{UserID: userID, Region: r, Trusted: true}, true
}

// abort 以统一的错误响应体终止请求
func abort(c *gin.Context, err error) {
	status, body := errorx.ToResponse(err)
	c.AbortWithStatusJSON(status, body)
}
