// Package chat 定义对话记录（transcript）相关的领域模型
package chat

import "time"

// Role 对话轮次角色
type Role string

const (
	// RoleQuestion 用户提问
	RoleQuestion Role = "question"
	// RoleAnswer 助手回答
	RoleAnswer Role = "answer"
)

// TurnStatus 轮次状态
type TurnStatus string

const (
	// StatusPending 流式生成中（每个会话最多一个）
	StatusPending TurnStatus = "pending"
	// StatusCompleted 已完成，不再变化（message_replace 除外）
	StatusCompleted TurnStatus = "completed"
	// StatusInterrupted 被用户停止，保留已生成的部分内容
	StatusInterrupted TurnStatus = "interrupted"
)

// NewConversationID 新会话的占位 ID
const NewConversationID = "-1"

// WorkflowStatus 工作流运行状态
type WorkflowStatus string

const (
	WorkflowRunning   WorkflowStatus = "running"
	WorkflowSucceeded WorkflowStatus = "succeeded"
	WorkflowFailed    WorkflowStatus = "failed"
	WorkflowStopped   WorkflowStatus = "stopped"
)

// Turn 对话中的一个轮次（提问或回答）
type Turn struct {
	ID                 string           `json:"id"`
	Role               Role             `json:"role"`
	Content            string           `json:"content"`
	Status             TurnStatus       `json:"status"`
	PairID             string           `json:"pair_id,omitempty"` // 配对的提问/回答轮次 ID
	AgentThoughts      []AgentThought   `json:"agent_thoughts,omitempty"`
	WorkflowRunID      string           `json:"workflow_run_id,omitempty"`
	WorkflowProcess    *WorkflowProcess `json:"workflow_process,omitempty"`
	Feedback           *Feedback        `json:"feedback,omitempty"`
	Annotation         *Annotation      `json:"annotation,omitempty"`
	Files              []VisionFile     `json:"message_files,omitempty"`
	Usage              *Usage           `json:"usage,omitempty"`
	IsOpeningStatement bool             `json:"is_opening_statement,omitempty"`
	FeedbackDisabled   bool             `json:"feedback_disabled,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
}

// IsAnswer 是否为回答轮次
func (t *Turn) IsAnswer() bool {
	return t.Role == RoleAnswer
}

// Clone 深拷贝轮次，保证快照之间不共享可变切片
func (t Turn) Clone() Turn {
	c := t
	if t.AgentThoughts != nil {
		c.AgentThoughts = make([]AgentThought, len(t.AgentThoughts))
		for i, th := range t.AgentThoughts {
			c.AgentThoughts[i] = th.Clone()
		}
	}
	if t.WorkflowProcess != nil {
		wp := *t.WorkflowProcess
		wp.Tracing = append([]NodeTrace(nil), t.WorkflowProcess.Tracing...)
		c.WorkflowProcess = &wp
	}
	if t.Feedback != nil {
		fb := *t.Feedback
		c.Feedback = &fb
	}
	if t.Annotation != nil {
		an := *t.Annotation
		c.Annotation = &an
	}
	if t.Usage != nil {
		u := *t.Usage
		c.Usage = &u
	}
	c.Files = append([]VisionFile(nil), t.Files...)
	return c
}

// AgentThought Agent 模式下的一条思考
type AgentThought struct {
	ID          string       `json:"id"`
	MessageID   string       `json:"message_id,omitempty"`
	Position    int          `json:"position"`
	Thought     string       `json:"thought"`
	Tool        string       `json:"tool,omitempty"`
	ToolInput   string       `json:"tool_input,omitempty"`
	Observation string       `json:"observation,omitempty"`
	FileIDs     []string     `json:"files,omitempty"`
	Files       []VisionFile `json:"message_files,omitempty"`
}

// Clone 深拷贝
func (a AgentThought) Clone() AgentThought {
	c := a
	c.FileIDs = append([]string(nil), a.FileIDs...)
	c.Files = append([]VisionFile(nil), a.Files...)
	return c
}

// WorkflowProcess 工作流模式下的执行过程
type WorkflowProcess struct {
	Status  WorkflowStatus `json:"status"`
	Tracing []NodeTrace    `json:"tracing"`
}

// NodeTrace 单个工作流节点的执行记录，以 NodeID 为键
type NodeTrace struct {
	ID          string     `json:"id"`
	NodeID      string     `json:"node_id"`
	NodeType    string     `json:"node_type,omitempty"`
	Title       string     `json:"title,omitempty"`
	Index       int        `json:"index"`
	Status      string     `json:"status"`
	Error       string     `json:"error,omitempty"`
	ElapsedTime float64    `json:"elapsed_time,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}

// Feedback 用户对回答的评价
type Feedback struct {
	Rating string `json:"rating"` // like / dislike / 空表示撤销
}

// Annotation 标注回复
type Annotation struct {
	ID         string `json:"id"`
	AuthorName string `json:"author_name"`
}

// Usage Token 用量
type Usage struct {
	PromptTokens     int  `json:"prompt_tokens"`
	CompletionTokens int  `json:"completion_tokens"`
	TotalTokens      int  `json:"total_tokens"`
	Estimated        bool `json:"estimated,omitempty"` // 后端未返回时本地估算
}

// 文件归属
const (
	BelongsToUser      = "user"
	BelongsToAssistant = "assistant"
)

// 文件传输方式
const (
	TransferLocalFile = "local_file"
	TransferRemoteURL = "remote_url"
)

// VisionFile 消息附带的文件
type VisionFile struct {
	ID             string `json:"id,omitempty"`
	Type           string `json:"type"`
	TransferMethod string `json:"transfer_method,omitempty"`
	URL            string `json:"url,omitempty"`
	UploadFileID   string `json:"upload_file_id,omitempty"`
	BelongsTo      string `json:"belongs_to,omitempty"`
}

// FilterFiles 按归属筛选文件
func FilterFiles(files []VisionFile, belongsTo string) []VisionFile {
	var out []VisionFile
	for _, f := range files {
		if f.BelongsTo == belongsTo {
			out = append(out, f)
		}
	}
	return out
}
