// Package tui 终端对话客户端
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	appChat "github.com/fanqingsong/dify-chat-ui/internal/application/chat"
	"github.com/fanqingsong/dify-chat-ui/internal/application/conversation"
	domainChat "github.com/fanqingsong/dify-chat-ui/internal/domain/chat"
	"github.com/fanqingsong/dify-chat-ui/internal/domain/events"
)

const (
	defaultWidth         = 100
	defaultHeight        = 40
	inputCharLimit       = 4000
	reservedHeight       = 6
	minContentHeight     = 5
	conversationIDLength = 8
	requestTimeout       = 30 * time.Second
)

// Options 启动参数
type Options struct {
	AppID  string
	UserID string
}

// Program 终端对话程序
type Program struct {
	model model
}

// NewProgram 创建程序，publisher 须是 service 所用控制器的事件发布器
func NewProgram(service *conversation.Service, publisher *ChannelPublisher, opts Options) *Program {
	return &Program{model: newModel(service, publisher.Events(), opts)}
}

// Run 运行直到用户退出
func (p *Program) Run() error {
	_, err := tea.NewProgram(p.model, tea.WithAltScreen()).Run()
	return err
}

type model struct {
	service *conversation.Service
	events  <-chan events.Event
	opts    Options

	ctrl          *appChat.Controller
	appName       string
	conversations []domainChat.Conversation
	transcript    domainChat.Transcript
	active        *domainChat.StreamSession
	notice        string
	err           error
	ready         bool

	input  textinput.Model
	view   viewport.Model
	width  int
	height int
}

type (
	initMsg struct {
		ctrl   *appChat.Controller
		result *conversation.InitResult
		err    error
	}
	eventMsg         struct{ ev events.Event }
	eventsClosedMsg  struct{}
	conversationsMsg struct{ list []domainChat.Conversation }
	actionErrMsg     struct{ err error }
	actionDoneMsg    struct{}
)

func newModel(service *conversation.Service, ch <-chan events.Event, opts Options) model {
	input := textinput.New()
	input.Placeholder = "输入消息"
	input.Focus()
	input.CharLimit = inputCharLimit
	input.Width = defaultWidth - 3
	input.Prompt = ""

	return model{
		service: service,
		events:  ch,
		opts:    opts,
		input:   input,
		view:    viewport.New(defaultWidth, defaultHeight-reservedHeight),
		width:   defaultWidth,
		height:  defaultHeight,
	}
}

// Init 实现 tea.Model
func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.initCmd(), waitForEvent(m.events))
}

func (m model) initCmd() tea.Cmd {
	service, opts := m.service, m.opts
	return func() tea.Msg {
		ctrl, _, err := service.Controller(opts.AppID, opts.UserID)
		if err != nil {
			return initMsg{err: err}
		}
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		result, err := service.Init(ctx, opts.AppID, opts.UserID)
		return initMsg{ctrl: ctrl, result: result, err: err}
	}
}

func waitForEvent(ch <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return eventsClosedMsg{}
		}
		return eventMsg{ev: ev}
	}
}

// Update 实现 tea.Model
func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		cmd, quit := m.handleKey(msg)
		if quit {
			return m, tea.Quit
		}
		cmds = append(cmds, cmd)

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		h := msg.Height - reservedHeight
		if h < minContentHeight {
			h = minContentHeight
		}
		m.view.Width = msg.Width
		m.view.Height = h
		m.input.Width = msg.Width - 3
		m.refreshView()

	case initMsg:
		if msg.err != nil {
			m.err = msg.err
			break
		}
		m.ctrl = msg.ctrl
		m.ready = true
		m.appName = msg.result.App.Name
		m.conversations = msg.result.Conversations
		if msg.result.Degraded {
			m.notice = "后端响应超时，使用默认设置"
		}
		m.syncState()

	case eventMsg:
		cmds = append(cmds, m.handleEvent(msg.ev), waitForEvent(m.events))

	case conversationsMsg:
		m.conversations = msg.list

	case actionErrMsg:
		m.err = msg.err
		m.refreshView()

	case actionDoneMsg:
		m.syncState()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m *model) handleKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		return nil, true
	case tea.KeyUp:
		m.view.LineUp(1)
	case tea.KeyDown:
		m.view.LineDown(1)
	case tea.KeyPgUp:
		m.view.ViewUp()
	case tea.KeyPgDown:
		m.view.ViewDown()
	}
	if !m.ready {
		return nil, false
	}

	switch msg.Type {
	case tea.KeyEnter:
		text := strings.TrimSpace(m.input.Value())
		if text == "" || m.active != nil {
			return nil, false
		}
		m.input.Reset()
		m.err = nil
		return m.sendCmd(text), false
	case tea.KeyCtrlS:
		if m.active == nil {
			return nil, false
		}
		return m.stopCmd(m.active.ID), false
	case tea.KeyCtrlN:
		return m.switchCmd(domainChat.NewConversationID), false
	case tea.KeyCtrlO:
		if next, ok := m.nextConversation(); ok {
			return m.switchCmd(next), false
		}
	}
	return nil, false
}

func (m *model) handleEvent(ev events.Event) tea.Cmd {
	if m.ctrl == nil {
		return nil
	}
	var cmd tea.Cmd
	switch e := ev.(type) {
	case *events.StreamEvent:
		if e.EventType == events.StreamFailed {
			m.err = fmt.Errorf("%s", e.Message)
		}
	case *events.ConversationEvent:
		if e.EventType == events.ConversationCreated {
			cmd = m.autoNameCmd(e)
		}
	}
	m.syncState()
	return cmd
}

// syncState 从控制器读取最新状态，事件本身可能被丢弃
func (m *model) syncState() {
	if m.ctrl == nil {
		return
	}
	m.transcript = m.ctrl.Snapshot()
	if s, ok := m.ctrl.ActiveSession(); ok {
		m.active = &s
	} else {
		m.active = nil
	}
	m.refreshView()
}

func (m model) sendCmd(text string) tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		if _, err := ctrl.Send(context.Background(), appChat.SendRequest{Query: text}); err != nil {
			return actionErrMsg{err: err}
		}
		return actionDoneMsg{}
	}
}

func (m model) stopCmd(sessionID string) tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		if err := ctrl.Cancel(sessionID); err != nil {
			return actionErrMsg{err: err}
		}
		return actionDoneMsg{}
	}
}

func (m model) switchCmd(conversationID string) tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		if err := ctrl.SwitchConversation(ctx, conversationID); err != nil {
			return actionErrMsg{err: err}
		}
		return actionDoneMsg{}
	}
}

// autoNameCmd 新会话完成后命名并刷新会话列表
func (m model) autoNameCmd(e *events.ConversationEvent) tea.Cmd {
	service, opts := m.service, m.opts
	return func() tea.Msg {
		if err := service.HandleEvent(e); err != nil {
			return actionErrMsg{err: err}
		}
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		list, err := service.List(ctx, opts.AppID, opts.UserID)
		if err != nil {
			return actionErrMsg{err: err}
		}
		return conversationsMsg{list: list}
	}
}

// nextConversation 会话列表中当前会话的下一个（循环）
func (m *model) nextConversation() (string, bool) {
	if len(m.conversations) == 0 {
		return "", false
	}
	current := m.ctrl.CurrentConversationID()
	for i, c := range m.conversations {
		if c.ID == current {
			return m.conversations[(i+1)%len(m.conversations)].ID, true
		}
	}
	return m.conversations[0].ID, true
}

func (m *model) refreshView() {
	content := renderTranscript(m.transcript, m.view.Width)
	if m.err != nil {
		content += "\n" + errorStyle.Render(fmt.Sprintf("错误: %v", m.err))
	}
	m.view.SetContent(content)
	m.view.GotoBottom()
}

func (m model) conversationLabel() string {
	id := m.transcript.ConversationID
	if m.ctrl != nil {
		id = m.ctrl.CurrentConversationID()
	}
	if id == domainChat.NewConversationID || id == "" {
		return "新会话"
	}
	for _, c := range m.conversations {
		if c.ID == id && c.Name != "" {
			return c.Name
		}
	}
	if len(id) > conversationIDLength {
		return id[:conversationIDLength]
	}
	return id
}

// View 实现 tea.Model
func (m model) View() string {
	if !m.ready {
		if m.err != nil {
			return errorStyle.Render(fmt.Sprintf("初始化失败: %v", m.err)) + "\n" + dimStyle.Render("Esc 退出")
		}
		return dimStyle.Render("加载中...")
	}

	status := dimStyle.Render(fmt.Sprintf("%s • %s", m.appName, m.conversationLabel()))
	if m.active != nil {
		status += dimStyle.Render(" • 生成中...")
	}
	if m.notice != "" {
		status += " " + dimStyle.Render(m.notice)
	}

	inputView := promptStyle.Render("> ") + m.input.View()
	help := dimStyle.Render("Enter 发送 • Ctrl+S 停止 • Ctrl+N 新会话 • Ctrl+O 切换会话 • Esc 退出")

	return lipgloss.JoinVertical(lipgloss.Left, status, "", m.view.View(), "", inputView, help)
}
