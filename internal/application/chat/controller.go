package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/fanqingsong/dify-chat-ui/internal/domain/events"
	"github.com/fanqingsong/dify-chat-ui/internal/infrastructure/log"
	"github.com/google/uuid"

	domainChat "github.com/fanqingsong/dify-chat-ui/internal/domain/chat"
)

// ErrControllerClosed 控制器已关闭
var ErrControllerClosed = errors.New("chat controller closed")

const (
	openingStatementID = "opening-statement"
	placeholderPrefix  = "answer-placeholder-"
	defaultTimeout     = 10 * time.Second
)

// SendRequest 用户发送的一条消息
type SendRequest struct {
	Query  string                  `json:"query"`
	Files  []domainChat.VisionFile `json:"files,omitempty"`
	Inputs map[string]any          `json:"inputs,omitempty"`
}

// Defaults 新会话的默认状态
type Defaults struct {
	OpeningStatement string
	Inputs           map[string]string
	RequiredInputs   []string
}

// ControllerConfig 控制器参数
type ControllerConfig struct {
	UserKey        string
	AppID          string
	HistoryLimit   int
	RequestTimeout time.Duration
}

// streamRun 一次进行中的发送
type streamRun struct {
	session   domainChat.StreamSession
	reducer   *Reducer
	stream    domainChat.EventStream
	cancel    context.CancelFunc
	cancelled bool
}

// Controller 一个用户（user_<appId>:<userId>）的对话控制器
// 独占该用户的对话记录，所有修改在 mu 下串行进行，对外只暴露不可变快照。
type Controller struct {
	cfg       ControllerConfig
	tokens    TokenCounter
	publisher Publisher
	store     ConversationStore
	logger    *slog.Logger
	now       func() time.Time

	mu         sync.Mutex
	backend    domainChat.Backend
	transcript domainChat.Transcript
	current    string
	active     *streamRun
	runs       map[*streamRun]struct{} // 仍在读取事件流的发送（含已结束但未读到 EOF 的）
	gen        uint64                  // 每次切换会话或发起全量同步时递增，用于丢弃过期的同步结果
	defaults   Defaults
	closed     bool

	wg sync.WaitGroup
}

// NewController 创建控制器，初始处于新会话 -1
func NewController(cfg ControllerConfig, backend domainChat.Backend, tokens TokenCounter, publisher Publisher, store ConversationStore) *Controller {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultTimeout
	}
	return &Controller{
		cfg:        cfg,
		backend:    backend,
		tokens:     tokens,
		publisher:  publisher,
		store:      store,
		logger:     log.NewModuleLogger("chat", "controller").With("user_key", cfg.UserKey),
		now:        time.Now,
		transcript: domainChat.NewTranscript(domainChat.NewConversationID, nil),
		current:    domainChat.NewConversationID,
		runs:       make(map[*streamRun]struct{}),
	}
}

// UserKey 控制器所属用户键
func (c *Controller) UserKey() string {
	return c.cfg.UserKey
}

// Snapshot 当前对话记录快照
func (c *Controller) Snapshot() domainChat.Transcript {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transcript
}

// CurrentConversationID 当前会话 ID，新会话为 -1
func (c *Controller) CurrentConversationID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// ActiveSession 进行中的流式会话
func (c *Controller) ActiveSession() (domainChat.StreamSession, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return domainChat.StreamSession{}, false
	}
	return c.active.session, true
}

// Configure 设置新会话的开场白和提示变量
// 空闲且处于新会话时，对话记录重置为开场白。
func (c *Controller) Configure(d Defaults) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.defaults = d
	if c.active == nil && c.current == domainChat.NewConversationID {
		c.transcript = c.transcript.Rebased(c.openingTranscript())
		c.publishSnapshot()
	}
}

func (c *Controller) setBackend(b domainChat.Backend) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.backend = b
}

// Send 发送消息并开始流式接收回答
func (c *Controller) Send(ctx context.Context, req SendRequest) (*domainChat.StreamSession, error) {
	if strings.TrimSpace(req.Query) == "" && len(req.Files) == 0 {
		return nil, domainChat.ErrEmptyMessage
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrControllerClosed
	}
	if c.active != nil {
		return nil, domainChat.ErrSendInProgress
	}

	inputs := mergeInputs(c.defaults.Inputs, req.Inputs)
	if c.current == domainChat.NewConversationID {
		for _, key := range c.defaults.RequiredInputs {
			if isBlank(inputs[key]) {
				return nil, fmt.Errorf("%w: %s", domainChat.ErrInputsRequired, key)
			}
		}
	}

	reducer := NewReducer(c.tokens)
	now := c.now()
	next, err := reducer.Begin(c.transcript, req.Query, req.Files, now)
	if err != nil {
		return nil, err
	}
	c.transcript = next

	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	run := &streamRun{
		session: domainChat.StreamSession{
			ID:                    uuid.New().String(),
			UserKey:               c.cfg.UserKey,
			ConversationIDAtStart: c.current,
			QuestionTurnID:        reducer.QuestionID(),
			PlaceholderAnswerID:   reducer.AnswerID(),
			StartedAt:             now,
		},
		reducer: reducer,
		cancel:  cancel,
	}
	c.active = run
	c.runs[run] = struct{}{}
	streamCtx = log.WithStreamID(streamCtx, run.session.ID)

	c.publishSnapshot()
	c.publishStream(events.StreamStarted, run.session, "")
	log.FromContext(streamCtx, c.logger).Info("Stream started",
		"conversation_id", c.current,
	)

	chatReq := domainChat.ChatRequest{
		Query:          req.Query,
		ConversationID: upstreamConversationID(c.current),
		Inputs:         inputs,
		Files:          req.Files,
		User:           c.cfg.UserKey,
	}

	c.wg.Add(1)
	go c.run(streamCtx, run, c.backend, chatReq)

	session := run.session
	return &session, nil
}

// run 在独立 goroutine 中消费事件流
func (c *Controller) run(ctx context.Context, run *streamRun, backend domainChat.Backend, req domainChat.ChatRequest) {
	defer c.wg.Done()
	defer run.cancel()
	defer func() {
		c.mu.Lock()
		delete(c.runs, run)
		c.mu.Unlock()
	}()

	logger := log.FromContext(ctx, c.logger)

	stream, err := backend.StreamChat(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		logger.Warn("Failed to open stream", "error", err)
		c.handle(run, streamErrorFrom(err))
		return
	}

	c.mu.Lock()
	if run.cancelled {
		c.mu.Unlock()
		_ = stream.Close()
		return
	}
	run.stream = stream
	c.mu.Unlock()
	defer stream.Close()

	// 结束事件之后继续读到 EOF，使 message_replace 等迟到事件仍能生效
	for {
		ev, err := stream.Next()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.Warn("Stream read failed", "error", err)
				c.handle(run, domainChat.StreamError{Code: "stream_interrupted", Message: err.Error()})
			}
			c.finish(run)
			return
		}
		c.handle(run, ev)
	}
}

// handle 应用一个事件
func (c *Controller) handle(run *streamRun, ev domainChat.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if run.cancelled || c.closed {
		return
	}
	if _, replace := ev.(domainChat.MessageReplace); !replace {
		run.session.Observe(ev.Correlate())
	}

	before := run.reducer.State()
	if c.isOffCurrent(run) {
		if !run.session.OffCurrent {
			c.logger.Info("Stream is off current conversation, suppressing updates",
				"stream_id", run.session.ID,
				"conversation_id", c.current,
			)
		}
		run.session.OffCurrent = true
		run.reducer.Track(ev)
	} else if next, changed := run.reducer.Apply(c.transcript, ev); changed {
		c.transcript = next
		c.publishSnapshot()
	}

	if !before.Terminal() && run.reducer.State().Terminal() {
		c.onTerminal(run)
	}
}

// finish 流正常关闭但未收到结束事件
func (c *Controller) finish(run *streamRun) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if run.cancelled || c.closed || !run.reducer.State().Active() {
		return
	}
	c.logger.Debug("Stream closed without end event", "stream_id", run.session.ID)

	if c.isOffCurrent(run) {
		run.session.OffCurrent = true
		// 占位 ID 不在其它快照中，只推进状态
		run.reducer.Finish(domainChat.Transcript{})
	} else if next, changed := run.reducer.Finish(c.transcript); changed {
		c.transcript = next
		c.publishSnapshot()
	}
	c.onTerminal(run)
}

// isOffCurrent 会话是否已被切走（粘滞）
func (c *Controller) isOffCurrent(run *streamRun) bool {
	if run.session.OffCurrent {
		return true
	}
	return c.current != run.session.ConversationIDAtStart && c.current != run.session.ServerConversationID
}

// onTerminal 发送结束后的收尾，调用方持有 mu
func (c *Controller) onTerminal(run *streamRun) {
	if c.active == run {
		c.active = nil
	}
	s := run.session

	switch run.reducer.State() {
	case StateCompleted:
		if !s.OffCurrent && s.IsNewConversation() && c.current == domainChat.NewConversationID && s.ServerConversationID != "" {
			c.current = s.ServerConversationID
			c.transcript = c.transcript.WithConversationID(c.current)
			c.persistCurrent(c.current)
			c.publishSnapshot()
			c.publishConversation(events.ConversationCreated, c.current)
			c.logger.Info("Conversation created", "conversation_id", c.current)
		}
		c.publishStream(events.StreamCompleted, s, "")
		c.logger.Info("Stream completed",
			"stream_id", s.ID,
			"message_id", run.reducer.MessageID(),
			"off_current", s.OffCurrent,
		)
	case StateErrored:
		c.publishStream(events.StreamFailed, s, run.reducer.ErrorMessage())
		c.logger.Warn("Stream failed",
			"stream_id", s.ID,
			"error", run.reducer.ErrorMessage(),
		)
	}

	// 被切走的会话在结束时又成为当前会话：用持久化历史全量同步
	if s.OffCurrent && !c.closed && c.current != domainChat.NewConversationID &&
		(c.current == s.ConversationIDAtStart || c.current == s.ServerConversationID) {
		id := c.current
		gen := c.nextGen()
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), c.cfg.RequestTimeout)
			defer cancel()
			if err := c.resync(ctx, id, gen); err != nil {
				c.logger.Warn("Resync after stream end failed", "conversation_id", id, "error", err)
			}
		}()
	}
}

// Cancel 停止指定的流式会话，保留已生成内容
func (c *Controller) Cancel(sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	run := c.active
	if run == nil || run.session.ID != sessionID {
		return domainChat.ErrSessionNotFound
	}

	run.cancelled = true
	run.cancel()
	if run.stream != nil {
		_ = run.stream.Close()
	}

	if c.isOffCurrent(run) {
		run.session.OffCurrent = true
		run.reducer.Cancel(domainChat.Transcript{})
	} else if next, changed := run.reducer.Cancel(c.transcript); changed {
		c.transcript = next
		c.publishSnapshot()
	}
	c.active = nil

	s := run.session
	c.publishStream(events.StreamCancelled, s, "")
	c.logger.Info("Stream cancelled", "stream_id", s.ID, "task_id", s.TaskID)

	if s.TaskID == "" {
		c.logger.Info("Task id not received yet, skip upstream stop", "stream_id", s.ID)
		return nil
	}

	// 通知后端停止生成，不等待结果
	backend := c.backend
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.RequestTimeout)
		defer cancel()
		if err := backend.StopTask(ctx, s.TaskID, c.cfg.UserKey); err != nil {
			c.logger.Warn("Failed to stop upstream task", "task_id", s.TaskID, "error", err)
		}
	}()
	return nil
}

// SwitchConversation 切换当前会话
// 进行中的发送不再更新显示；-1 回到开场白，其它会话从历史全量同步，同步成功后才记为上次会话。
func (c *Controller) SwitchConversation(ctx context.Context, conversationID string) error {
	if conversationID == "" {
		conversationID = domainChat.NewConversationID
	}

	ctx = log.WithConversationID(ctx, conversationID)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrControllerClosed
	}
	if run := c.active; run != nil && !run.session.OffCurrent {
		run.session.OffCurrent = true
		log.FromContext(ctx, c.logger).Info("Conversation switched during stream",
			"stream_id", run.session.ID,
			"to", conversationID,
		)
	}
	c.current = conversationID
	gen := c.nextGen()
	c.publishConversation(events.ConversationSwitched, conversationID)

	if conversationID == domainChat.NewConversationID {
		c.transcript = c.transcript.Rebased(c.openingTranscript())
		c.publishSnapshot()
		c.mu.Unlock()
		return nil
	}
	// 先丢弃内存中的记录，拉取失败时快照与当前会话仍保持一致
	c.transcript = c.transcript.Rebased(domainChat.NewTranscript(conversationID, nil))
	c.publishSnapshot()
	c.mu.Unlock()

	if err := c.resync(ctx, conversationID, gen); err != nil {
		return err
	}

	c.mu.Lock()
	if c.gen == gen {
		c.persistCurrent(conversationID)
	}
	c.mu.Unlock()
	return nil
}

// Resync 重新从历史同步当前会话
func (c *Controller) Resync(ctx context.Context) error {
	c.mu.Lock()
	id := c.current
	if id == domainChat.NewConversationID {
		c.mu.Unlock()
		return nil
	}
	gen := c.nextGen()
	c.mu.Unlock()
	return c.resync(ctx, id, gen)
}

// resync 拉取历史并替换对话记录；期间会话再次切换则丢弃结果
func (c *Controller) resync(ctx context.Context, conversationID string, gen uint64) error {
	c.mu.Lock()
	backend := c.backend
	c.mu.Unlock()

	messages, err := backend.FetchHistory(ctx, conversationID, c.cfg.UserKey, c.cfg.HistoryLimit)
	logger := log.FromContext(log.WithConversationID(ctx, conversationID), c.logger)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gen != gen || c.current != conversationID {
		logger.Debug("Discarding stale history")
		return nil
	}
	if err != nil {
		return fmt.Errorf("fetch history of %s: %w", conversationID, err)
	}

	opening := domainChat.NewOpeningStatement(openingStatementID, c.defaults.OpeningStatement, c.defaults.Inputs, c.now())
	c.transcript = c.transcript.Rebased(domainChat.BuildTranscript(conversationID, opening, messages))
	c.publishSnapshot()
	logger.Debug("Transcript resynced", "messages", len(messages))
	return nil
}

// SubmitFeedback 评价回答，rating 为空表示撤销
func (c *Controller) SubmitFeedback(ctx context.Context, messageID, rating string) error {
	c.mu.Lock()
	turn, ok := c.transcript.Find(messageID)
	backend := c.backend
	c.mu.Unlock()

	if !ok || !turn.IsAnswer() || turn.FeedbackDisabled ||
		turn.Status == domainChat.StatusPending || strings.HasPrefix(turn.ID, placeholderPrefix) {
		return domainChat.ErrMessageNotFound
	}

	if err := backend.SubmitFeedback(ctx, messageID, rating, c.cfg.UserKey); err != nil {
		log.FromContext(ctx, c.logger).Warn("Failed to submit feedback", "message_id", messageID, "error", err)
		return fmt.Errorf("submit feedback: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.transcript.Index(messageID)
	if i < 0 {
		return nil
	}
	updated := c.transcript.Turns[i].Clone()
	if rating == "" {
		updated.Feedback = nil
	} else {
		updated.Feedback = &domainChat.Feedback{Rating: rating}
	}
	c.transcript = c.transcript.WithReplaced(i, updated)
	c.publishSnapshot()
	return nil
}

// Close 停止进行中的发送并等待后台任务结束
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	for run := range c.runs {
		run.cancelled = true
		run.cancel()
		if run.stream != nil {
			_ = run.stream.Close()
		}
	}
	c.active = nil
	c.mu.Unlock()

	c.wg.Wait()
}

// nextGen 调用方持有 mu
func (c *Controller) nextGen() uint64 {
	c.gen++
	return c.gen
}

func (c *Controller) openingTranscript() domainChat.Transcript {
	var turns []domainChat.Turn
	if opening := domainChat.NewOpeningStatement(openingStatementID, c.defaults.OpeningStatement, c.defaults.Inputs, c.now()); opening != nil {
		turns = append(turns, *opening)
	}
	return domainChat.NewTranscript(domainChat.NewConversationID, turns)
}

func (c *Controller) persistCurrent(conversationID string) {
	if c.store == nil {
		return
	}
	if err := c.store.SetCurrent(c.cfg.UserKey, c.cfg.AppID, conversationID); err != nil {
		c.logger.Warn("Failed to persist current conversation",
			"conversation_id", conversationID,
			"error", err,
		)
	}
}

func (c *Controller) publishSnapshot() {
	if c.publisher == nil {
		return
	}
	c.publisher.Publish(&events.TranscriptEvent{
		UserKey:    c.cfg.UserKey,
		Transcript: c.transcript,
		EventTime:  c.now(),
	})
}

func (c *Controller) publishStream(t events.EventType, s domainChat.StreamSession, message string) {
	if c.publisher == nil {
		return
	}
	c.publisher.Publish(&events.StreamEvent{
		EventType: t,
		Session:   s,
		Message:   message,
		EventTime: c.now(),
	})
}

func (c *Controller) publishConversation(t events.EventType, conversationID string) {
	if c.publisher == nil {
		return
	}
	c.publisher.Publish(&events.ConversationEvent{
		EventType:      t,
		UserKey:        c.cfg.UserKey,
		AppID:          c.cfg.AppID,
		ConversationID: conversationID,
		EventTime:      c.now(),
	})
}

// upstreamConversationID 新会话向后端传空
func upstreamConversationID(id string) string {
	if id == domainChat.NewConversationID {
		return ""
	}
	return id
}

// streamErrorFrom 把请求错误转换为终止事件
func streamErrorFrom(err error) domainChat.StreamError {
	var upstream *domainChat.UpstreamError
	if errors.As(err, &upstream) {
		return domainChat.StreamError{Status: upstream.Status, Code: upstream.Code, Message: upstream.Message}
	}
	return domainChat.StreamError{Code: "request_failed", Message: err.Error()}
}

func mergeInputs(defaults map[string]string, inputs map[string]any) map[string]any {
	merged := make(map[string]any, len(defaults)+len(inputs))
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range inputs {
		merged[k] = v
	}
	return merged
}

func isBlank(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	}
	return false
}
