package chat

import (
	"log/slog"
	"strings"
	"time"

	"github.com/fanqingsong/dify-chat-ui/internal/infrastructure/log"
	"github.com/google/uuid"

	domainChat "github.com/fanqingsong/dify-chat-ui/internal/domain/chat"
)

// State 一次发送的状态
type State int

const (
	StateIdle State = iota
	StateSending
	StateStreaming
	StateCompleted
	StateErrored
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateErrored:
		return "errored"
	case StateCancelled:
		return "cancelled"
	}
	return "unknown"
}

// Active 是否仍在等待事件
func (s State) Active() bool {
	return s == StateSending || s == StateStreaming
}

// Terminal 是否已结束
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateErrored || s == StateCancelled
}

// Reducer 把一次发送的流式事件归并到对话记录
// 每次发送使用一个新的 Reducer；不做并发保护，由调用方串行调用
type Reducer struct {
	state      State
	questionID string
	answerID   string
	messageID  string // 事件中出现的后端消息 ID
	agentMode  bool
	// workflowDone 工作流模式下 workflow_finished 已结束回答，其后的 message_end 仍需提升 ID
	workflowDone bool
	promoted     bool
	errMessage   string

	tokens TokenCounter
	logger *slog.Logger
}

// NewReducer 创建 Reducer，tokens 为 nil 时不估算用量
func NewReducer(tokens TokenCounter) *Reducer {
	return &Reducer{
		state:  StateIdle,
		tokens: tokens,
		logger: log.NewModuleLogger("chat", "reducer"),
	}
}

// State 当前状态
func (r *Reducer) State() State { return r.state }

// QuestionID 提问轮次当前 ID
func (r *Reducer) QuestionID() string { return r.questionID }

// AnswerID 回答轮次当前 ID（占位 ID 或已提升的消息 ID）
func (r *Reducer) AnswerID() string { return r.answerID }

// MessageID 后端消息 ID，未知时为空
func (r *Reducer) MessageID() string { return r.messageID }

// ErrorMessage 出错结束时的错误信息
func (r *Reducer) ErrorMessage() string { return r.errMessage }

// Begin 在对话记录末尾追加提问轮次和占位回答轮次，进入 Sending
func (r *Reducer) Begin(t domainChat.Transcript, query string, files []domainChat.VisionFile, now time.Time) (domainChat.Transcript, error) {
	if r.state != StateIdle {
		return t, domainChat.ErrSendInProgress
	}
	if t.PendingCount() > 0 {
		return t, domainChat.ErrSendInProgress
	}

	suffix := uuid.New().String()
	r.questionID = "question-" + suffix
	r.answerID = "answer-placeholder-" + suffix

	userFiles := make([]domainChat.VisionFile, 0, len(files))
	for _, f := range files {
		f.BelongsTo = domainChat.BelongsToUser
		userFiles = append(userFiles, f)
	}

	question := domainChat.Turn{
		ID:        r.questionID,
		Role:      domainChat.RoleQuestion,
		Content:   query,
		Status:    domainChat.StatusCompleted,
		PairID:    r.answerID,
		Files:     userFiles,
		CreatedAt: now,
	}
	answer := domainChat.Turn{
		ID:        r.answerID,
		Role:      domainChat.RoleAnswer,
		Status:    domainChat.StatusPending,
		PairID:    r.questionID,
		CreatedAt: now,
	}

	r.state = StateSending
	return t.WithAppended(question, answer), nil
}

// accepts 判断当前状态是否接受该事件
func (r *Reducer) accepts(ev domainChat.Event) bool {
	switch r.state {
	case StateSending, StateStreaming:
		return true
	case StateCompleted:
		switch ev.(type) {
		case domainChat.MessageReplace:
			return true
		case domainChat.MessageEnd:
			return r.workflowDone && !r.promoted
		}
	}
	return false
}

// observe 推进状态机（不涉及对话记录）
func (r *Reducer) observe(ev domainChat.Event) {
	if r.state == StateSending {
		r.state = StateStreaming
	}
	// message_replace 可能指向更早的消息，不用于识别当前回答
	if _, replace := ev.(domainChat.MessageReplace); !replace {
		if id := ev.Correlate().MessageID; id != "" && r.messageID == "" {
			r.messageID = id
		}
	}

	switch e := ev.(type) {
	case domainChat.AgentThoughtDelta:
		r.agentMode = true
	case domainChat.WorkflowFinished:
		if r.state == StateStreaming {
			r.workflowDone = true
			r.state = StateCompleted
		}
	case domainChat.MessageEnd:
		if e.MessageID != "" {
			r.messageID = e.MessageID
		}
		r.state = StateCompleted
	case domainChat.StreamError:
		if r.state == StateStreaming {
			r.errMessage = e.Message
			r.state = StateErrored
		}
	}
}

// Track 只推进状态机，用于会话已被切走（off-current）时继续消费事件
func (r *Reducer) Track(ev domainChat.Event) {
	if !r.accepts(ev) {
		return
	}
	r.observe(ev)
	if _, ok := ev.(domainChat.MessageEnd); ok {
		r.promoted = true
	}
}

// Apply 应用一个事件，返回新的对话记录以及是否有变化
func (r *Reducer) Apply(t domainChat.Transcript, ev domainChat.Event) (domainChat.Transcript, bool) {
	if !r.accepts(ev) {
		r.logger.Debug("Ignoring event", "type", ev.Type(), "state", r.state.String())
		return t, false
	}

	// message_replace 可作用于任何已结束的回答，单独处理
	if e, ok := ev.(domainChat.MessageReplace); ok {
		if r.state.Active() {
			r.observe(ev)
		}
		return r.applyReplace(t, e)
	}

	r.observe(ev)

	i := t.Index(r.answerID)
	if i < 0 {
		r.logger.Debug("Answer turn not in transcript", "answer_id", r.answerID, "type", ev.Type())
		return t, false
	}
	answer := t.Turns[i].Clone()

	switch e := ev.(type) {
	case domainChat.TextDelta:
		if e.Text == "" {
			return t, false
		}
		if r.agentMode && len(answer.AgentThoughts) > 0 {
			last := len(answer.AgentThoughts) - 1
			answer.AgentThoughts[last].Thought += e.Text
		} else {
			answer.Content += e.Text
		}

	case domainChat.AgentThoughtDelta:
		answer.AgentThoughts = mergeThought(answer.AgentThoughts, e.Thought)

	case domainChat.FileAttached:
		if len(answer.AgentThoughts) == 0 {
			r.logger.Warn("Dropping file without agent thought", "file_id", e.File.ID)
			return t, false
		}
		last := &answer.AgentThoughts[len(answer.AgentThoughts)-1]
		last.Files = appendFile(last.Files, e.File)

	case domainChat.WorkflowStarted:
		answer.WorkflowRunID = e.WorkflowRunID
		answer.WorkflowProcess = &domainChat.WorkflowProcess{
			Status:  domainChat.WorkflowRunning,
			Tracing: []domainChat.NodeTrace{},
		}

	case domainChat.NodeStarted:
		ensureWorkflow(&answer)
		answer.WorkflowProcess.Tracing = append(answer.WorkflowProcess.Tracing, e.Node)

	case domainChat.NodeFinished:
		ensureWorkflow(&answer)
		answer.WorkflowProcess.Tracing = replaceNode(answer.WorkflowProcess.Tracing, e.Node)

	case domainChat.WorkflowFinished:
		ensureWorkflow(&answer)
		answer.WorkflowProcess.Status = e.Status
		answer.Status = domainChat.StatusCompleted
		r.fillUsage(t, &answer, nil)

	case domainChat.MessageEnd:
		return r.applyMessageEnd(t, i, answer, e), true

	case domainChat.StreamError:
		r.logger.Warn("Stream failed, dropping placeholder answer",
			"answer_id", r.answerID,
			"code", e.Code,
			"message", e.Message,
		)
		return t.WithRemoved(i), true
	}

	return t.WithReplaced(i, answer), true
}

// applyMessageEnd 结束回答并把占位 ID 提升为后端消息 ID
func (r *Reducer) applyMessageEnd(t domainChat.Transcript, i int, answer domainChat.Turn, e domainChat.MessageEnd) domainChat.Transcript {
	answer.Status = domainChat.StatusCompleted
	if e.Metadata.AnnotationReply != nil {
		an := *e.Metadata.AnnotationReply
		answer.Annotation = &an
	}
	r.fillUsage(t, &answer, e.Metadata.Usage)

	patches := map[int]domainChat.Turn{}
	newID := r.messageID
	if newID != "" && newID != r.answerID && t.Index(newID) < 0 {
		newQuestionID := domainChat.QuestionTurnID(newID)
		answer.ID = newID
		answer.PairID = r.questionID
		if qi := t.Index(r.questionID); qi >= 0 {
			question := t.Turns[qi].Clone()
			question.ID = newQuestionID
			question.PairID = newID
			patches[qi] = question
			answer.PairID = newQuestionID
			r.questionID = newQuestionID
		}
		r.answerID = newID
	}
	r.promoted = true
	patches[i] = answer
	return t.WithPatched(patches)
}

// applyReplace 替换回答内容：优先当前回答，否则按消息 ID 查找
func (r *Reducer) applyReplace(t domainChat.Transcript, e domainChat.MessageReplace) (domainChat.Transcript, bool) {
	target := -1
	if e.MessageID == "" || e.MessageID == r.messageID || e.MessageID == r.answerID {
		target = t.Index(r.answerID)
	}
	if target < 0 && e.MessageID != "" {
		target = t.Index(e.MessageID)
	}
	if target < 0 || !t.Turns[target].IsAnswer() {
		r.logger.Debug("Replace target not found", "message_id", e.MessageID)
		return t, false
	}
	turn := t.Turns[target].Clone()
	turn.Content = e.NewContent
	return t.WithReplaced(target, turn), true
}

// Cancel 停止：保留已生成内容并标记为 interrupted
func (r *Reducer) Cancel(t domainChat.Transcript) (domainChat.Transcript, bool) {
	if !r.state.Active() {
		return t, false
	}
	r.state = StateCancelled

	i := t.Index(r.answerID)
	if i < 0 {
		return t, false
	}
	answer := t.Turns[i].Clone()
	answer.Status = domainChat.StatusInterrupted
	if answer.WorkflowProcess != nil && answer.WorkflowProcess.Status == domainChat.WorkflowRunning {
		answer.WorkflowProcess.Status = domainChat.WorkflowStopped
	}
	return t.WithReplaced(i, answer), true
}

// Finish 流在没有结束事件的情况下正常关闭，按已完成处理
func (r *Reducer) Finish(t domainChat.Transcript) (domainChat.Transcript, bool) {
	if !r.state.Active() {
		return t, false
	}
	r.state = StateCompleted

	i := t.Index(r.answerID)
	if i < 0 {
		return t, false
	}
	answer := t.Turns[i].Clone()
	answer.Status = domainChat.StatusCompleted
	r.fillUsage(t, &answer, nil)
	return t.WithReplaced(i, answer), true
}

// fillUsage 使用后端返回的用量，缺失时本地估算
func (r *Reducer) fillUsage(t domainChat.Transcript, answer *domainChat.Turn, usage *domainChat.Usage) {
	if usage != nil {
		u := *usage
		answer.Usage = &u
		return
	}
	if r.tokens == nil || answer.Usage != nil {
		return
	}

	var b strings.Builder
	b.WriteString(answer.Content)
	for _, th := range answer.AgentThoughts {
		b.WriteString(th.Thought)
	}
	completion := r.tokens.CountTokens(b.String())

	prompt := 0
	if q, ok := t.Find(r.questionID); ok {
		prompt = r.tokens.CountTokens(q.Content)
	}
	answer.Usage = &domainChat.Usage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      prompt + completion,
		Estimated:        true,
	}
}

// mergeThought 只与末尾思考合并：同 ID 时保留已累积的文本并合并文件
func mergeThought(thoughts []domainChat.AgentThought, incoming domainChat.AgentThought) []domainChat.AgentThought {
	n := len(thoughts)
	if n == 0 || thoughts[n-1].ID != incoming.ID {
		return append(thoughts, incoming.Clone())
	}

	tail := thoughts[n-1]
	merged := incoming.Clone()
	if tail.Thought != "" {
		merged.Thought = tail.Thought
	}
	for _, id := range tail.FileIDs {
		if !containsString(merged.FileIDs, id) {
			merged.FileIDs = append(merged.FileIDs, id)
		}
	}
	for _, f := range tail.Files {
		merged.Files = appendFile(merged.Files, f)
	}
	thoughts[n-1] = merged
	return thoughts
}

// appendFile 追加文件，同 ID 的文件不重复
func appendFile(files []domainChat.VisionFile, f domainChat.VisionFile) []domainChat.VisionFile {
	if f.ID != "" {
		for _, existing := range files {
			if existing.ID == f.ID {
				return files
			}
		}
	}
	return append(files, f)
}

// replaceNode 按 NodeID 替换节点记录，不存在时追加
func replaceNode(tracing []domainChat.NodeTrace, node domainChat.NodeTrace) []domainChat.NodeTrace {
	for i := range tracing {
		if tracing[i].NodeID == node.NodeID {
			if node.StartedAt.IsZero() {
				node.StartedAt = tracing[i].StartedAt
			}
			tracing[i] = node
			return tracing
		}
	}
	return append(tracing, node)
}

func ensureWorkflow(answer *domainChat.Turn) {
	if answer.WorkflowProcess == nil {
		answer.WorkflowProcess = &domainChat.WorkflowProcess{Status: domainChat.WorkflowRunning}
	}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
