// Package chat 实现对话记录的流式归并（Reducer）与每个用户的对话控制器
package chat

import (
	"github.com/fanqingsong/dify-chat-ui/internal/domain/events"
	"github.com/fanqingsong/dify-chat-ui/internal/infrastructure/config"

	domainChat "github.com/fanqingsong/dify-chat-ui/internal/domain/chat"
)

// TokenCounter 本地 Token 估算
type TokenCounter interface {
	CountTokens(text string) int
}

// Publisher 事件发布（快照、流生命周期、会话变更）
type Publisher interface {
	Publish(event events.Event)
}

// ConversationStore 记录用户最后查看的会话
type ConversationStore interface {
	GetCurrent(userKey, appID string) (string, error)
	SetCurrent(userKey, appID, conversationID string) error
	Clear(userKey, appID string) error
}

// BackendFactory 按应用配置创建后端客户端
type BackendFactory func(app config.AppConfig) domainChat.Backend
