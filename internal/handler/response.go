package handler

import (
	"errors"
	"net/http"
	"sort"
	"strings"

	"regionchat_server/internal/infrastructure/middleware"
	"regionchat_server/internal/region"
	"regionchat_server/pkg/errorx"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// HandleSuccess 返回成功响应，data 即响应体
func HandleSuccess(c *gin.Context, data any) {
	c.JSON(http.StatusOK, data)
}

// HandleError 通用错误处理方法
// errorx.CodeError 按自身的 HTTP 状态码与规则名返回；其余错误一律 500，细节只进日志
// 使用示例：
//
//	if err := svc.DoSomething(); err != nil {
//	    HandleError(c, err)
//	    return
//	}
func HandleError(c *gin.Context, err error) {
	status, body := errorx.ToResponse(err)
	if status >= http.StatusInternalServerError {
		zap.L().Error("system error",
			zap.String("path", c.Request.URL.Path),
			zap.String("method", c.Request.Method),
			zap.Error(err),
		)
	}
	c.JSON(status, body)
}

// HandleParamError 处理参数绑定错误（带 validator 翻译支持）
func HandleParamError(c *gin.Context, err error) {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && Trans != nil {
		// 翻译后去除结构体名前缀
		fields := RemoveTopStruct(validationErrs.Translate(Trans))
		msgs := make([]string, 0, len(fields))
		for _, msg := range fields {
			msgs = append(msgs, msg)
		}
		sort.Strings(msgs)
		c.JSON(http.StatusBadRequest, gin.H{
			"error": strings.Join(msgs, "; "),
			"code":  "INVALID_PARAM",
		})
		return
	}

	// 非 validator 错误（如 JSON 格式错误）
	zap.L().Debug("param bind error", zap.Error(err))
	_, body := errorx.ToResponse(errorx.ErrInvalidParam)
	c.JSON(http.StatusBadRequest, body)
}

// mustScope 取出分区路由结果；路由没挂 RegionScope 属于程序错误，按 401 处理
func mustScope(c *gin.Context) (*region.Resolution, bool) {
	scope, ok := middleware.Scope(c)
	if !ok {
		HandleError(c, errorx.ErrUnauthorized)
		return nil, false
	}
	return scope, true
}
