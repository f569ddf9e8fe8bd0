package log

import (
	"context"
	"log/slog"
)

type contextKey string

// 上下文键定义
const (
	// RequestContextID HTTP 请求 ID
	RequestContextID contextKey = "request_id"

	// UserContextKey 用户键（app + session）
	UserContextKey contextKey = "user_key"

	// ConversationContextID 会话 ID
	ConversationContextID contextKey = "conversation_id"

	// StreamContextID 流式会话 ID
	StreamContextID contextKey = "stream_id"

	// AppContextID 应用 ID
	AppContextID contextKey = "app_id"
)

// WithRequestID 在上下文中添加请求 ID
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestContextID, requestID)
}

// WithUserKey 在上下文中添加用户键
func WithUserKey(ctx context.Context, userKey string) context.Context {
	return context.WithValue(ctx, UserContextKey, userKey)
}

// WithConversationID 在上下文中添加会话 ID
func WithConversationID(ctx context.Context, conversationID string) context.Context {
	return context.WithValue(ctx, ConversationContextID, conversationID)
}

// WithStreamID 在上下文中添加流式会话 ID
func WithStreamID(ctx context.Context, streamID string) context.Context {
	return context.WithValue(ctx, StreamContextID, streamID)
}

// WithAppID 在上下文中添加应用 ID
func WithAppID(ctx context.Context, appID string) context.Context {
	return context.WithValue(ctx, AppContextID, appID)
}

var contextKeys = []contextKey{
	RequestContextID,
	UserContextKey,
	AppContextID,
	ConversationContextID,
	StreamContextID,
}

// LogCtxFromContext 从上下文中提取日志字段
func LogCtxFromContext(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	var attrs []slog.Attr
	for _, key := range contextKeys {
		if v, ok := ctx.Value(key).(string); ok && v != "" {
			attrs = append(attrs, slog.String(string(key), v))
		}
	}
	return attrs
}

// FromContext 返回附带上下文字段的 logger
func FromContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	attrs := LogCtxFromContext(ctx)
	if len(attrs) == 0 {
		return logger
	}
	args := make([]any, 0, len(attrs))
	for _, a := range attrs {
		args = append(args, a)
	}
	return logger.With(args...)
}
