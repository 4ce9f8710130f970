package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// healthTimeout 单个依赖检查的超时
const healthTimeout = 2 * time.Second

// HealthCheck 依赖检查
type HealthCheck func(ctx context.Context) error

// HealthHandler 存活检查
type HealthHandler struct {
	checks map[string]HealthCheck
}

// NewHealthHandler checks 为空时只表示进程存活
func NewHealthHandler(checks map[string]HealthCheck) *HealthHandler {
	return &HealthHandler{checks: checks}
}

// Healthz GET /healthz
// 任一依赖不可用返回 503
func (h *HealthHandler) Healthz(c *gin.Context) {
	results := make(map[string]string, len(h.checks))
	healthy := true
	for name, check := range h.checks {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
		err := check(ctx)
		cancel()
		if err != nil {
			zap.L().Warn("依赖检查失败", zap.String("dependency", name), zap.Error(err))
			results[name] = "down"
			healthy = false
			continue
		}
		results[name] = "ok"
	}
	if !healthy {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "checks": results})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "checks": results})
}
