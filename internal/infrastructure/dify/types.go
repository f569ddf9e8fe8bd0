package dify

import (
	"time"

	"github.com/fanqingsong/dify-chat-ui/internal/domain/chat"
)

// chatMessageRequest POST /chat-messages 请求体
type chatMessageRequest struct {
	Inputs         map[string]any `json:"inputs"`
	Query          string         `json:"query"`
	ResponseMode   string         `json:"response_mode"`
	ConversationID string         `json:"conversation_id"`
	User           string         `json:"user"`
	Files          []requestFile  `json:"files,omitempty"`
}

type requestFile struct {
	Type           string `json:"type"`
	TransferMethod string `json:"transfer_method"`
	URL            string `json:"url"`
	UploadFileID   string `json:"upload_file_id,omitempty"`
}

// toRequestFiles 本地上传的文件只传 upload_file_id，URL 置空
func toRequestFiles(files []chat.VisionFile) []requestFile {
	if len(files) == 0 {
		return nil
	}
	out := make([]requestFile, 0, len(files))
	for _, f := range files {
		rf := requestFile{
			Type:           f.Type,
			TransferMethod: f.TransferMethod,
			URL:            f.URL,
			UploadFileID:   f.UploadFileID,
		}
		if rf.TransferMethod == "" {
			rf.TransferMethod = chat.TransferRemoteURL
		}
		if rf.TransferMethod == chat.TransferLocalFile {
			rf.URL = ""
		}
		out = append(out, rf)
	}
	return out
}

type userRequest struct {
	User string `json:"user"`
}

type feedbackRequest struct {
	Rating *string `json:"rating"` // null 表示撤销
	User   string  `json:"user"`
}

type renameRequest struct {
	Name         string `json:"name,omitempty"`
	AutoGenerate bool   `json:"auto_generate"`
	User         string `json:"user"`
}

// errorResponse 非 2xx 响应体
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

type messageFile struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	URL       string `json:"url"`
	BelongsTo string `json:"belongs_to"`
}

func (f messageFile) toDomain() chat.VisionFile {
	belongsTo := f.BelongsTo
	if belongsTo == "" {
		belongsTo = chat.BelongsToUser
	}
	return chat.VisionFile{
		ID:             f.ID,
		Type:           f.Type,
		TransferMethod: chat.TransferRemoteURL,
		URL:            f.URL,
		BelongsTo:      belongsTo,
	}
}

type agentThought struct {
	ID          string   `json:"id"`
	MessageID   string   `json:"message_id"`
	Position    int      `json:"position"`
	Thought     string   `json:"thought"`
	Tool        string   `json:"tool"`
	ToolInput   string   `json:"tool_input"`
	Observation string   `json:"observation"`
	Files       []string `json:"files"`
}

type historyMessage struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversation_id"`
	Query          string         `json:"query"`
	Answer         string         `json:"answer"`
	MessageFiles   []messageFile  `json:"message_files"`
	AgentThoughts  []agentThought `json:"agent_thoughts"`
	Feedback       *struct {
		Rating string `json:"rating"`
	} `json:"feedback"`
	CreatedAt int64 `json:"created_at"`
}

func (m historyMessage) toDomain() chat.HistoryMessage {
	out := chat.HistoryMessage{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Query:          m.Query,
		Answer:         m.Answer,
		CreatedAt:      unixTime(m.CreatedAt),
	}
	for _, f := range m.MessageFiles {
		out.Files = append(out.Files, f.toDomain())
	}
	for _, th := range m.AgentThoughts {
		out.AgentThoughts = append(out.AgentThoughts, chat.AgentThought{
			ID:          th.ID,
			MessageID:   th.MessageID,
			Position:    th.Position,
			Thought:     th.Thought,
			Tool:        th.Tool,
			ToolInput:   th.ToolInput,
			Observation: th.Observation,
			FileIDs:     th.Files,
		})
	}
	if m.Feedback != nil && m.Feedback.Rating != "" {
		out.Feedback = &chat.Feedback{Rating: m.Feedback.Rating}
	}
	return out
}

type historyResponse struct {
	Limit   int              `json:"limit"`
	HasMore bool             `json:"has_more"`
	Data    []historyMessage `json:"data"`
}

type conversation struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Inputs       map[string]any `json:"inputs"`
	Status       string         `json:"status"`
	Introduction string         `json:"introduction"`
	CreatedAt    int64          `json:"created_at"`
}

func (c conversation) toDomain() chat.Conversation {
	return chat.Conversation{
		ID:           c.ID,
		Name:         c.Name,
		Inputs:       c.Inputs,
		Status:       c.Status,
		Introduction: c.Introduction,
		CreatedAt:    unixTime(c.CreatedAt),
	}
}

type conversationsResponse struct {
	Limit   int            `json:"limit"`
	HasMore bool           `json:"has_more"`
	Data    []conversation `json:"data"`
}

// formItem user_input_form 中的一项，键为控件类型
type formItem map[string]formField

type formField struct {
	Label     string   `json:"label"`
	Variable  string   `json:"variable"`
	Required  bool     `json:"required"`
	MaxLength int      `json:"max_length"`
	Options   []string `json:"options"`
	Default   string   `json:"default"`
}

type enabledFlag struct {
	Enabled bool `json:"enabled"`
}

type parametersResponse struct {
	OpeningStatement   string     `json:"opening_statement"`
	SuggestedQuestions []string   `json:"suggested_questions"`
	UserInputForm      []formItem `json:"user_input_form"`
	FileUpload         struct {
		Image enabledFlag `json:"image"`
	} `json:"file_upload"`
	SpeechToText enabledFlag `json:"speech_to_text"`
}

// promptTypes 控件类型到变量类型的映射
var promptTypes = map[string]string{
	"text-input": "string",
	"paragraph":  "paragraph",
	"select":     "select",
	"number":     "number",
}

func (p parametersResponse) toDomain() chat.Parameters {
	out := chat.Parameters{
		OpeningStatement:   p.OpeningStatement,
		SuggestedQuestions: p.SuggestedQuestions,
		FileUploadEnabled:  p.FileUpload.Image.Enabled,
		SpeechToText:       p.SpeechToText.Enabled,
	}
	for _, item := range p.UserInputForm {
		for kind, field := range item {
			varType, ok := promptTypes[kind]
			if !ok {
				varType = kind
			}
			out.PromptVariables = append(out.PromptVariables, chat.PromptVariable{
				Key:       field.Variable,
				Name:      field.Label,
				Type:      varType,
				Required:  field.Required,
				MaxLength: field.MaxLength,
				Options:   field.Options,
				Default:   field.Default,
			})
		}
	}
	return out
}

func unixTime(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
