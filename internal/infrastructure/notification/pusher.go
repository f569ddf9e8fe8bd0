// Package notification 把对话事件推送到用户的 WebSocket 连接
package notification

import (
	"log/slog"
	"sync"

	"github.com/fanqingsong/dify-chat-ui/internal/domain/chat"
	"github.com/fanqingsong/dify-chat-ui/internal/domain/events"
	"github.com/fanqingsong/dify-chat-ui/internal/infrastructure/log"
	"github.com/fanqingsong/dify-chat-ui/internal/infrastructure/websocket"
)

// MessageTranscript 快照推送的消息类型
const MessageTranscript = "transcript"

// Broadcaster 按用户键推送
type Broadcaster interface {
	Broadcast(userKey, msgType string, data any) error
}

// WebSocketPusher 订阅事件总线并推送到 WebSocket
// 事件总线异步分发，同一用户的快照可能乱序到达，按版本号丢弃过期快照。
type WebSocketPusher struct {
	hub    Broadcaster
	logger *slog.Logger

	mu       sync.Mutex
	versions map[string]uint64 // userKey -> 已推送的最大版本
}

// NewWebSocketPusher 创建推送器
func NewWebSocketPusher(hub *websocket.Hub) *WebSocketPusher {
	return newPusher(hub)
}

func newPusher(hub Broadcaster) *WebSocketPusher {
	return &WebSocketPusher{
		hub:      hub,
		logger:   log.NewModuleLogger("notification", "pusher"),
		versions: make(map[string]uint64),
	}
}

// Subscribe 订阅需要推送的事件，返回取消订阅函数
func (p *WebSocketPusher) Subscribe(bus events.EventBus) func() {
	return bus.SubscribeMultiple([]events.EventType{
		events.TranscriptUpdated,
		events.StreamStarted,
		events.StreamCompleted,
		events.StreamFailed,
		events.StreamCancelled,
		events.ConversationCreated,
		events.ConversationSwitched,
	}, p)
}

// HandleEvent 实现 events.Handler
func (p *WebSocketPusher) HandleEvent(event events.Event) error {
	switch e := event.(type) {
	case *events.TranscriptEvent:
		if !p.advance(e.UserKey, e.Transcript.Version) {
			p.logger.Debug("Dropping stale snapshot",
				"user_key", e.UserKey,
				"version", e.Transcript.Version,
			)
			return nil
		}
		return p.hub.Broadcast(e.UserKey, MessageTranscript, e.Transcript)
	case *events.StreamEvent:
		return p.hub.Broadcast(e.Session.UserKey, string(e.EventType), streamPayload{
			Session: e.Session,
			Message: e.Message,
		})
	case *events.ConversationEvent:
		return p.hub.Broadcast(e.UserKey, string(e.EventType), conversationPayload{
			AppID:          e.AppID,
			ConversationID: e.ConversationID,
		})
	}
	return nil
}

// advance 版本号大于已推送版本时记录并返回 true
func (p *WebSocketPusher) advance(userKey string, version uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if last, ok := p.versions[userKey]; ok && version <= last {
		return false
	}
	p.versions[userKey] = version
	return true
}

type streamPayload struct {
	Session chat.StreamSession `json:"session"`
	Message string             `json:"message,omitempty"`
}

type conversationPayload struct {
	AppID          string `json:"app_id"`
	ConversationID string `json:"conversation_id"`
}

// 编译时检查接口实现
var _ events.Handler = (*WebSocketPusher)(nil)
