// Package jwt 访问令牌的签发与校验
// 线上令牌由外部身份服务签发，本服务只校验；签发函数供本地联调和测试使用
package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTConfig JWT 配置
type JWTConfig struct {
	Secret            string
	Issuer            string        // 期望的签发方，空表示不校验
	AccessTokenExpiry time.Duration // Access Token 有效期
}

// 全局配置，由 Init 函数初始化
var jwtConfig = &JWTConfig{AccessTokenExpiry: 15 * time.Minute}

// ErrNotConfigured 未设置签名密钥
var ErrNotConfigured = errors.New("jwt secret not configured")

// Init 初始化 JWT 配置
func Init(secret, issuer string, accessExpiryMinutes int) {
	expiry := time.Duration(accessExpiryMinutes) * time.Minute
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}
	jwtConfig = &JWTConfig{
		Secret:            secret,
		Issuer:            issuer,
		AccessTokenExpiry: expiry,
	}
}

// Claims 自定义 JWT 声明
// Region 是签发时账号所属分区，分区路由以它为准，请求参数里的分区一律不信任
type Claims struct {
	UserID string `json:"user_id"`
	Region string `json:"region"`
	jwt.RegisteredClaims
}

// GenerateAccessToken 生成 Access Token
func GenerateAccessToken(userID, region string) (string, error) {
	if jwtConfig.Secret == "" {
		return "", ErrNotConfigured
	}
	now := time.Now()
	claims := Claims{
		UserID: userID,
		Region: region,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(jwtConfig.AccessTokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    jwtConfig.Issuer,
			Subject:   "access_token",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(jwtConfig.Secret))
}

// ParseToken 解析并验证 Token：签名算法、有效期、签发方
func ParseToken(tokenString string) (*Claims, error) {
	if jwtConfig.Secret == "" {
		return nil, ErrNotConfigured
	}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired()}
	if jwtConfig.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(jwtConfig.Issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(jwtConfig.Secret), nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, jwt.ErrSignatureInvalid
}
