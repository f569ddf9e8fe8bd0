package chat

// EventType 流式事件类型（对应后端 SSE 帧中的 event 字段）
type EventType string

const (
	EventMessage          EventType = "message"
	EventAgentMessage     EventType = "agent_message"
	EventAgentThought     EventType = "agent_thought"
	EventMessageFile      EventType = "message_file"
	EventMessageEnd       EventType = "message_end"
	EventMessageReplace   EventType = "message_replace"
	EventWorkflowStarted  EventType = "workflow_started"
	EventWorkflowFinished EventType = "workflow_finished"
	EventNodeStarted      EventType = "node_started"
	EventNodeFinished     EventType = "node_finished"
	EventError            EventType = "error"
	EventPing             EventType = "ping"
)

// Event 解码后的流式事件
// 具体类型见下方各结构体，使用 type switch 区分
type Event interface {
	Type() EventType
	Correlate() Correlation
}

// Correlation 事件的关联字段
type Correlation struct {
	TaskID         string `json:"task_id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	MessageID      string `json:"message_id,omitempty"`
}

// Correlate 实现 Event 接口
func (c Correlation) Correlate() Correlation {
	return c
}

// TextDelta 普通模式下追加到回答内容的文本片段
type TextDelta struct {
	Correlation
	Text string
}

func (TextDelta) Type() EventType { return EventMessage }

// AgentThoughtDelta Agent 模式下新增或更新的思考
type AgentThoughtDelta struct {
	Correlation
	Thought AgentThought
}

func (AgentThoughtDelta) Type() EventType { return EventAgentThought }

// FileAttached Agent 思考过程中产生的文件
type FileAttached struct {
	Correlation
	ThoughtID string
	File      VisionFile
}

func (FileAttached) Type() EventType { return EventMessageFile }

// MessageEnd 回答结束标记
type MessageEnd struct {
	Correlation
	Metadata MessageEndMetadata
}

func (MessageEnd) Type() EventType { return EventMessageEnd }

// MessageEndMetadata message_end 携带的元数据
type MessageEndMetadata struct {
	AnnotationReply *Annotation
	Usage           *Usage
}

// MessageReplace 用于内容审核的整体替换
type MessageReplace struct {
	Correlation
	NewContent string
}

func (MessageReplace) Type() EventType { return EventMessageReplace }

// WorkflowStarted 工作流开始
type WorkflowStarted struct {
	Correlation
	WorkflowRunID string
}

func (WorkflowStarted) Type() EventType { return EventWorkflowStarted }

// WorkflowFinished 工作流结束（工作流模式下等价于 message_end）
type WorkflowFinished struct {
	Correlation
	Status WorkflowStatus
	Error  string
}

func (WorkflowFinished) Type() EventType { return EventWorkflowFinished }

// NodeStarted 节点开始执行
type NodeStarted struct {
	Correlation
	Node NodeTrace
}

func (NodeStarted) Type() EventType { return EventNodeStarted }

// NodeFinished 节点执行结束
type NodeFinished struct {
	Correlation
	Node NodeTrace
}

func (NodeFinished) Type() EventType { return EventNodeFinished }

// StreamError 终止性错误（后端 error 事件或传输失败）
type StreamError struct {
	Correlation
	Status  int
	Code    string
	Message string
}

func (StreamError) Type() EventType { return EventError }

// IsTerminal 判断事件是否会结束当前回答
func IsTerminal(ev Event) bool {
	switch ev.(type) {
	case MessageEnd, WorkflowFinished, StreamError:
		return true
	}
	return false
}
