package errorx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// CodeError 带业务错误码的自定义错误
// 实现了 error 接口，支持 %w 包装底层错误，且能被 errors.Is/errors.As 识别
type CodeError struct {
	Code   int    // 业务错误码
	Msg    string // 错误消息，直接返回给调用方
	Rule   string // 触发的业务规则名，如 BLOCKED
	Type   string // 客户端分支用的 errorType，如 sent_pending
	Status int    // HTTP 状态码，0 表示按 Code 推断
	cause  error  // 被包装的底层错误
}

// Error 当存在底层错误时，返回格式为 "消息: 底层错误"；否则仅返回消息
func (e *CodeError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.cause)
	}
	return e.Msg
}

// Unwrap 实现 errors.Unwrap 接口，支持 errors.Is/errors.As 向下追溯
func (e *CodeError) Unwrap() error {
	return e.cause
}

// Is 同一业务码视为同一类错误，预定义实例可直接用于 errors.Is 比较
func (e *CodeError) Is(target error) bool {
	var t *CodeError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code && t.Rule == e.Rule && t.Type == e.Type
}

// HTTPStatus 返回该错误对应的 HTTP 状态码
func (e *CodeError) HTTPStatus() int {
	if e.Status != 0 {
		return e.Status
	}
	switch e.Code {
	case CodeInvalidParam:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound, CodeUserNotExist:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// WithStatus 返回指定 HTTP 状态码的副本，原实例不变
func (e *CodeError) WithStatus(status int) *CodeError {
	cp := *e
	cp.Status = status
	return &cp
}

// WithCause 返回包装了底层错误的副本
func (e *CodeError) WithCause(err error) *CodeError {
	cp := *e
	cp.cause = err
	return &cp
}

// New 创建一个新的 CodeError
func New(code int, msg string) *CodeError {
	return &CodeError{
		Code: code,
		Msg:  msg,
	}
}

// Newf 创建一个带格式化消息的 CodeError
func Newf(code int, format string, args ...any) *CodeError {
	return &CodeError{
		Code: code,
		Msg:  fmt.Sprintf(format, args...),
	}
}

// NewRule 创建业务规则类错误，rule 会原样返回给客户端
func NewRule(code int, rule, msg string) *CodeError {
	return &CodeError{
		Code: code,
		Rule: rule,
		Msg:  msg,
	}
}

// Wrap 包装底层错误，添加业务错误码和消息
// 用法: errorx.Wrap(err, CodeNotFound, "用户不存在")
func Wrap(err error, code int, msg string) *CodeError {
	return &CodeError{
		Code:  code,
		Msg:   msg,
		cause: err,
	}
}

// Wrapf 包装底层错误，支持格式化消息
// 用法: errorx.Wrapf(err, CodeNotFound, "用户 %s 不存在", userId)
func Wrapf(err error, code int, format string, args ...any) *CodeError {
	return &CodeError{
		Code:  code,
		Msg:   fmt.Sprintf(format, args...),
		cause: err,
	}
}

// GetCode 从错误中提取业务错误码，如果不是 CodeError 则返回默认码
func GetCode(err error) int {
	var codeErr *CodeError
	if errors.As(err, &codeErr) {
		return codeErr.Code
	}
	return CodeServerBusy // 默认返回服务繁忙
}

// 业务状态码常量定义
const (
	CodeSuccess         = 1000 // 成功
	CodeInvalidParam    = 1001 // 请求参数错误
	CodeUserExist       = 1002 // 用户已存在
	CodeUserNotExist    = 1003 // 用户不存在
	CodeInvalidPassword = 1004 // 密码错误
	CodeServerBusy      = 1005 // 服务繁忙
	CodeUnauthorized    = 1006 // 未授权/认证失败
	CodeForbidden       = 1007 // 无权限
	CodeNotFound        = 1008 // 资源不存在
	CodeConflict        = 1009 // 状态冲突
	CodeDBError         = 1010 // 数据库错误
	CodeCacheError      = 1011 // 缓存错误
	CodeDuplicate       = 1012 // 唯一约束冲突
	CodeMQError         = 1013 // 消息队列错误
)

// 业务规则名，响应体中的 code 字段
const (
	RuleBlocked           = "BLOCKED"
	RulePrivacyRestricted = "PRIVACY_RESTRICTED"
	RuleWorkspaceMismatch = "WORKSPACE_MISMATCH"
	RuleRegionMismatch    = "REGION_MISMATCH"
	RuleContactExists     = "CONTACT_EXISTS"
	RuleRequestSent       = "REQUEST_ALREADY_SENT"
	RuleRequestReceived   = "REQUEST_ALREADY_RECEIVED"
	RuleSelfRequest       = "SELF_REQUEST"
	RuleRequestNotPending = "REQUEST_NOT_PENDING"
	RuleNotRequestParty   = "NOT_REQUEST_PARTY"
	TypeSentPending       = "sent_pending"
	TypeReceivedPending   = "received_pending"
)

// 预定义常用错误实例
// 这些实例既可直接返回，也可用于 errors.Is 比较
var (
	ErrInvalidParam = New(CodeInvalidParam, "请求参数错误")
	ErrServerBusy   = New(CodeServerBusy, "服务繁忙，请稍后重试")
	ErrUnauthorized = New(CodeUnauthorized, "身份认证失败，请重新登录")
	ErrUserNotExist = New(CodeUserNotExist, "用户不存在")
	ErrNotFound     = New(CodeNotFound, "资源不存在")

	ErrSelfRequest     = NewRule(CodeInvalidParam, RuleSelfRequest, "不能向自己发送好友申请")
	ErrRegionMismatch  = NewRule(CodeForbidden, RuleRegionMismatch, "对方与你不在同一地区，无法建立联系")
	ErrBlocked         = NewRule(CodeForbidden, RuleBlocked, "你们之间存在拉黑关系，无法继续操作")
	ErrPrivacy         = NewRule(CodeForbidden, RulePrivacyRestricted, "对方的隐私设置仅允许联系人发起")
	ErrWorkspace       = NewRule(CodeForbidden, RuleWorkspaceMismatch, "对方不在当前工作区中")
	ErrContactExists   = NewRule(CodeConflict, RuleContactExists, "你们已经是联系人")
	ErrRequestSent     = &CodeError{Code: CodeConflict, Rule: RuleRequestSent, Type: TypeSentPending, Msg: "你已发送过好友申请，请等待对方处理"}
	ErrRequestReceived = &CodeError{Code: CodeConflict, Rule: RuleRequestReceived, Type: TypeReceivedPending, Msg: "对方已向你发送好友申请，请直接处理该申请"}
	ErrNotPending      = NewRule(CodeConflict, RuleRequestNotPending, "该申请已被处理")
	ErrNotRequestParty = NewRule(CodeForbidden, RuleNotRequestParty, "无权处理该申请")
)

// IsNotFound 检查错误是否为"未找到"类型
func IsNotFound(err error) bool {
	var codeErr *CodeError
	if errors.As(err, &codeErr) {
		return codeErr.Code == CodeNotFound || codeErr.Code == CodeUserNotExist
	}
	return false
}

// IsDuplicate 检查错误是否为唯一约束冲突
func IsDuplicate(err error) bool {
	var codeErr *CodeError
	return errors.As(err, &codeErr) && codeErr.Code == CodeDuplicate
}

// IsTransient 判断错误是否属于可重试的后端瞬时错误
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var codeErr *CodeError
	if errors.As(err, &codeErr) {
		return codeErr.Code == CodeDBError || codeErr.Code == CodeCacheError
	}
	return false
}

// codeNames 没有业务规则名时响应体 code 字段使用的名称
var codeNames = map[int]string{
	CodeInvalidParam: "INVALID_PARAM",
	CodeUserNotExist: "USER_NOT_FOUND",
	CodeUnauthorized: "UNAUTHORIZED",
	CodeForbidden:    "FORBIDDEN",
	CodeNotFound:     "NOT_FOUND",
	CodeConflict:     "CONFLICT",
}

// Body 错误响应体
type Body struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	ErrorType string `json:"errorType,omitempty"`
}

// ToResponse 把错误转换为 HTTP 状态码与响应体
// 5xx 一律返回通用消息，底层错误只进日志
func ToResponse(err error) (int, Body) {
	var codeErr *CodeError
	if !errors.As(err, &codeErr) {
		return http.StatusInternalServerError, Body{Error: ErrServerBusy.Msg, Code: "INTERNAL"}
	}
	status := codeErr.HTTPStatus()
	if status >= http.StatusInternalServerError {
		return status, Body{Error: ErrServerBusy.Msg, Code: "INTERNAL"}
	}
	code := codeErr.Rule
	if code == "" {
		code = codeNames[codeErr.Code]
	}
	if code == "" {
		code = "ERROR"
	}
	return status, Body{Error: codeErr.Msg, Code: code, ErrorType: codeErr.Type}
}
