package chat

import "time"

// StreamSession 一次流式请求的关联状态
// 由发起它的 Controller 独占，终止（完成/出错/取消）后销毁。
type StreamSession struct {
	ID                    string    `json:"id"`
	UserKey               string    `json:"user_key"`
	ConversationIDAtStart string    `json:"conversation_id_at_start"`
	QuestionTurnID        string    `json:"question_turn_id"`
	PlaceholderAnswerID   string    `json:"placeholder_answer_id"`
	TaskID                string    `json:"task_id,omitempty"`
	ServerConversationID  string    `json:"server_conversation_id,omitempty"`
	ServerMessageID       string    `json:"server_message_id,omitempty"`
	OffCurrent            bool      `json:"off_current"` // 用户切换过会话，不再更新显示
	StartedAt             time.Time `json:"started_at"`
}

// IsNewConversation 是否在新会话中发起
func (s *StreamSession) IsNewConversation() bool {
	return s.ConversationIDAtStart == NewConversationID
}

// Observe 记录事件中的关联字段（首个非空值生效）
func (s *StreamSession) Observe(c Correlation) {
	if s.TaskID == "" && c.TaskID != "" {
		s.TaskID = c.TaskID
	}
	if s.ServerConversationID == "" && c.ConversationID != "" {
		s.ServerConversationID = c.ConversationID
	}
	if s.ServerMessageID == "" && c.MessageID != "" {
		s.ServerMessageID = c.MessageID
	}
}
