package sse

import (
	"time"

	"github.com/fanqingsong/dify-chat-ui/internal/domain/chat"
)

// frame 后端 SSE data 帧的 JSON 结构（各事件字段的并集）
type frame struct {
	Event          string `json:"event"`
	TaskID         string `json:"task_id"`
	ID             string `json:"id"`
	MessageID      string `json:"message_id"`
	ConversationID string `json:"conversation_id"`
	CreatedAt      int64  `json:"created_at"`

	// message / agent_message / message_replace
	Answer string `json:"answer"`

	// agent_thought
	Position     int      `json:"position"`
	Thought      string   `json:"thought"`
	Observation  string   `json:"observation"`
	Tool         string   `json:"tool"`
	ToolInput    string   `json:"tool_input"`
	MessageFiles []string `json:"message_files"`

	// message_file
	Type      string `json:"type"`
	URL       string `json:"url"`
	BelongsTo string `json:"belongs_to"`

	// message_end
	Metadata *frameMetadata `json:"metadata"`

	// workflow_* / node_*
	WorkflowRunID string     `json:"workflow_run_id"`
	Data          *frameData `json:"data"`

	// error
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type frameMetadata struct {
	Usage           *frameUsage      `json:"usage"`
	AnnotationReply *frameAnnotation `json:"annotation_reply"`
}

type frameUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type frameAnnotation struct {
	ID      string `json:"id"`
	Account struct {
		Name string `json:"name"`
	} `json:"account"`
}

type frameData struct {
	ID          string  `json:"id"`
	NodeID      string  `json:"node_id"`
	NodeType    string  `json:"node_type"`
	Title       string  `json:"title"`
	Index       int     `json:"index"`
	Status      string  `json:"status"`
	Error       string  `json:"error"`
	ElapsedTime float64 `json:"elapsed_time"`
	CreatedAt   int64   `json:"created_at"`
	FinishedAt  int64   `json:"finished_at"`
}

// correlation 提取关联字段
// agent_thought 和 message_file 的 id 分别是思考和文件的 ID，不能当作消息 ID
func (f *frame) correlation() chat.Correlation {
	messageID := f.MessageID
	if messageID == "" {
		switch chat.EventType(f.Event) {
		case chat.EventMessage, chat.EventAgentMessage, chat.EventMessageEnd, chat.EventMessageReplace:
			messageID = f.ID
		}
	}
	return chat.Correlation{
		TaskID:         f.TaskID,
		ConversationID: f.ConversationID,
		MessageID:      messageID,
	}
}

// toEvent 转换为领域事件，不需要的事件返回 false
func (f *frame) toEvent() (chat.Event, bool) {
	c := f.correlation()

	switch chat.EventType(f.Event) {
	case chat.EventMessage, chat.EventAgentMessage:
		return chat.TextDelta{Correlation: c, Text: f.Answer}, true

	case chat.EventAgentThought:
		return chat.AgentThoughtDelta{
			Correlation: c,
			Thought: chat.AgentThought{
				ID:          f.ID,
				MessageID:   c.MessageID,
				Position:    f.Position,
				Thought:     f.Thought,
				Tool:        f.Tool,
				ToolInput:   f.ToolInput,
				Observation: f.Observation,
				FileIDs:     append([]string(nil), f.MessageFiles...),
			},
		}, true

	case chat.EventMessageFile:
		belongsTo := f.BelongsTo
		if belongsTo == "" {
			belongsTo = chat.BelongsToAssistant
		}
		return chat.FileAttached{
			Correlation: c,
			File: chat.VisionFile{
				ID:             f.ID,
				Type:           f.Type,
				TransferMethod: chat.TransferRemoteURL,
				URL:            f.URL,
				BelongsTo:      belongsTo,
			},
		}, true

	case chat.EventMessageEnd:
		ev := chat.MessageEnd{Correlation: c}
		if f.Metadata != nil {
			if u := f.Metadata.Usage; u != nil {
				ev.Metadata.Usage = &chat.Usage{
					PromptTokens:     u.PromptTokens,
					CompletionTokens: u.CompletionTokens,
					TotalTokens:      u.TotalTokens,
				}
			}
			if a := f.Metadata.AnnotationReply; a != nil {
				ev.Metadata.AnnotationReply = &chat.Annotation{
					ID:         a.ID,
					AuthorName: a.Account.Name,
				}
			}
		}
		return ev, true

	case chat.EventMessageReplace:
		return chat.MessageReplace{Correlation: c, NewContent: f.Answer}, true

	case chat.EventWorkflowStarted:
		runID := f.WorkflowRunID
		if runID == "" && f.Data != nil {
			runID = f.Data.ID
		}
		return chat.WorkflowStarted{Correlation: c, WorkflowRunID: runID}, true

	case chat.EventWorkflowFinished:
		ev := chat.WorkflowFinished{Correlation: c, Status: chat.WorkflowSucceeded}
		if f.Data != nil {
			if f.Data.Status != "" {
				ev.Status = chat.WorkflowStatus(f.Data.Status)
			}
			ev.Error = f.Data.Error
		}
		return ev, true

	case chat.EventNodeStarted:
		if f.Data == nil {
			return nil, false
		}
		node := f.Data.toNodeTrace()
		if node.Status == "" {
			node.Status = string(chat.WorkflowRunning)
		}
		return chat.NodeStarted{Correlation: c, Node: node}, true

	case chat.EventNodeFinished:
		if f.Data == nil {
			return nil, false
		}
		return chat.NodeFinished{Correlation: c, Node: f.Data.toNodeTrace()}, true

	case chat.EventError:
		return chat.StreamError{
			Correlation: c,
			Status:      f.Status,
			Code:        f.Code,
			Message:     f.Message,
		}, true
	}

	return nil, false
}

func (d *frameData) toNodeTrace() chat.NodeTrace {
	node := chat.NodeTrace{
		ID:          d.ID,
		NodeID:      d.NodeID,
		NodeType:    d.NodeType,
		Title:       d.Title,
		Index:       d.Index,
		Status:      d.Status,
		Error:       d.Error,
		ElapsedTime: d.ElapsedTime,
	}
	if d.CreatedAt > 0 {
		node.StartedAt = time.Unix(d.CreatedAt, 0)
	}
	if d.FinishedAt > 0 {
		finished := time.Unix(d.FinishedAt, 0)
		node.FinishedAt = &finished
	}
	return node
}
