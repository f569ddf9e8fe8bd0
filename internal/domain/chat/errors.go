package chat

import (
	"errors"
	"fmt"
)

// 预定义的对话领域错误
var (
	// ErrSendInProgress 已有回答在生成中，需先停止
	ErrSendInProgress = errors.New("a message is still being answered")
	// ErrEmptyMessage 消息内容和文件都为空
	ErrEmptyMessage = errors.New("message is empty")
	// ErrInputsRequired 新会话的提示变量未填写完整
	ErrInputsRequired = errors.New("value of prompt variable is required")
	// ErrSessionNotFound 流式会话不存在或已结束
	ErrSessionNotFound = errors.New("stream session not found")
	// ErrConversationNotFound 会话不存在
	ErrConversationNotFound = errors.New("conversation not found")
	// ErrMessageNotFound 消息不存在
	ErrMessageNotFound = errors.New("message not found")
	// ErrUpstream 后端服务返回错误
	ErrUpstream = errors.New("upstream error")
)

// UpstreamError 后端服务的非 2xx 响应
type UpstreamError struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error 实现 error 接口
func (e *UpstreamError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("upstream returned status %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("upstream returned status %d: %s", e.Status, e.Message)
}

// Unwrap 便于 errors.Is(err, ErrUpstream)
func (e *UpstreamError) Unwrap() error {
	return ErrUpstream
}

// IsNotFound 判断是否为 404
func (e *UpstreamError) IsNotFound() bool {
	return e.Status == 404
}
