package events

import (
	"time"

	"github.com/fanqingsong/dify-chat-ui/internal/domain/chat"
)

// TranscriptEvent 对话记录快照事件
// 推送端按 Transcript.Version 丢弃过期快照
type TranscriptEvent struct {
	// UserKey 所属用户键
	UserKey string
	// Transcript 最新快照
	Transcript chat.Transcript
	// EventTime 事件发生时间
	EventTime time.Time
}

// Type 实现 Event 接口
func (e *TranscriptEvent) Type() EventType {
	return TranscriptUpdated
}

// Timestamp 实现 Event 接口
func (e *TranscriptEvent) Timestamp() time.Time {
	return e.EventTime
}

// StreamEvent 流式会话生命周期事件
type StreamEvent struct {
	// EventType started/completed/failed/cancelled
	EventType EventType
	// Session 会话快照
	Session chat.StreamSession
	// Message 出错时的错误信息
	Message string
	// EventTime 事件发生时间
	EventTime time.Time
}

// Type 实现 Event 接口
func (e *StreamEvent) Type() EventType {
	return e.EventType
}

// Timestamp 实现 Event 接口
func (e *StreamEvent) Timestamp() time.Time {
	return e.EventTime
}

// ConversationEvent 会话变更事件
type ConversationEvent struct {
	EventType      EventType
	UserKey        string
	AppID          string
	ConversationID string
	EventTime      time.Time
}

// Type 实现 Event 接口
func (e *ConversationEvent) Type() EventType {
	return e.EventType
}

// Timestamp 实现 Event 接口
func (e *ConversationEvent) Timestamp() time.Time {
	return e.EventTime
}
