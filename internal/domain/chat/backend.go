package chat

import (
	"context"
	"time"
)

// ChatRequest 发送给后端的一次对话请求
type ChatRequest struct {
	Query          string         `json:"query"`
	ConversationID string         `json:"conversation_id"` // 新会话为空
	Inputs         map[string]any `json:"inputs"`
	Files          []VisionFile   `json:"files,omitempty"`
	User           string         `json:"user"`
}

// EventStream 一次请求的事件序列，Next 在结束时返回 io.EOF
type EventStream interface {
	Next() (Event, error)
	Close() error
}

// Conversation 后端会话摘要
type Conversation struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Inputs       map[string]any `json:"inputs,omitempty"`
	Status       string         `json:"status,omitempty"`
	Introduction string         `json:"introduction,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// PromptVariable 应用的提示变量（用户输入表单项）
type PromptVariable struct {
	Key       string   `json:"key"`
	Name      string   `json:"name"`
	Type      string   `json:"type"` // string / paragraph / select / number
	Required  bool     `json:"required"`
	MaxLength int      `json:"max_length,omitempty"`
	Options   []string `json:"options,omitempty"`
	Default   string   `json:"default,omitempty"`
}

// Parameters 应用参数
type Parameters struct {
	OpeningStatement   string           `json:"opening_statement"`
	SuggestedQuestions []string         `json:"suggested_questions"`
	PromptVariables    []PromptVariable `json:"prompt_variables"`
	FileUploadEnabled  bool             `json:"file_upload_enabled"`
	SpeechToText       bool             `json:"speech_to_text"`
}

// RequiredKeys 必填变量的 key
func (p *Parameters) RequiredKeys() []string {
	var keys []string
	for _, v := range p.PromptVariables {
		if v.Required {
			keys = append(keys, v.Key)
		}
	}
	return keys
}

// Backend 对话后端（按应用绑定 API Key）
type Backend interface {
	// StreamChat 发送消息并返回流式事件序列，ctx 取消时中断传输
	StreamChat(ctx context.Context, req ChatRequest) (EventStream, error)
	// StopTask 请求后端停止生成
	StopTask(ctx context.Context, taskID, user string) error
	// FetchHistory 拉取会话历史消息（按时间正序）
	FetchHistory(ctx context.Context, conversationID, user string, limit int) ([]HistoryMessage, error)
	// SubmitFeedback 提交评价，rating 为空表示撤销
	SubmitFeedback(ctx context.Context, messageID, rating, user string) error
	// FetchConversations 拉取会话列表
	FetchConversations(ctx context.Context, user string, limit int) ([]Conversation, error)
	// RenameConversation 重命名会话，autoGenerate 为 true 时由后端生成名称
	RenameConversation(ctx context.Context, conversationID, name string, autoGenerate bool, user string) (Conversation, error)
	// FetchParameters 拉取应用参数
	FetchParameters(ctx context.Context, user string) (Parameters, error)
}
