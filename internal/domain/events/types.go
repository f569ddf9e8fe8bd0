// Package events 定义领域事件类型和接口
// 用于系统内部的事件驱动通信
package events

import "time"

// EventType 事件类型标识
type EventType string

// 对话记录相关事件类型
const (
	// TranscriptUpdated 对话记录产生新快照
	TranscriptUpdated EventType = "chat.transcript.updated"
	// StreamStarted 流式回答开始
	StreamStarted EventType = "chat.stream.started"
	// StreamCompleted 流式回答正常结束
	StreamCompleted EventType = "chat.stream.completed"
	// StreamFailed 流式回答出错结束
	StreamFailed EventType = "chat.stream.failed"
	// StreamCancelled 流式回答被用户停止
	StreamCancelled EventType = "chat.stream.cancelled"
)

// 会话相关事件类型
const (
	// ConversationCreated 新会话在后端创建完成
	ConversationCreated EventType = "conversation.created"
	// ConversationSwitched 用户切换了当前会话
	ConversationSwitched EventType = "conversation.switched"
)

// 配置相关事件类型
const (
	// ConfigFileChanged 配置文件发生变更
	ConfigFileChanged EventType = "config.file.changed"
)

// Event 领域事件接口
// 所有事件类型都必须实现此接口
type Event interface {
	// Type 返回事件类型
	Type() EventType
	// Timestamp 返回事件发生时间
	Timestamp() time.Time
}
