package tui

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainChat "github.com/fanqingsong/dify-chat-ui/internal/domain/chat"
	"github.com/fanqingsong/dify-chat-ui/internal/domain/events"
)

func TestRenderTranscript(t *testing.T) {
	tr := domainChat.NewTranscript("c1", []domainChat.Turn{
		{ID: "q1", Role: domainChat.RoleQuestion, Content: "what is go", Status: domainChat.StatusCompleted},
		{
			ID: "a1", Role: domainChat.RoleAnswer, Content: "a language", Status: domainChat.StatusCompleted,
			Usage:    &domainChat.Usage{TotalTokens: 12, Estimated: true},
			Feedback: &domainChat.Feedback{Rating: "like"},
		},
		{ID: "q2", Role: domainChat.RoleQuestion, Content: "search it", Status: domainChat.StatusCompleted},
		{
			ID: "a2", Role: domainChat.RoleAnswer, Status: domainChat.StatusPending,
			AgentThoughts: []domainChat.AgentThought{{ID: "t1", Tool: "web_search", Thought: "looking"}},
		},
	})

	out := renderTranscript(tr, 80)
	assert.Contains(t, out, "what is go")
	assert.Contains(t, out, "a language")
	assert.Contains(t, out, "~12 tokens")
	assert.Contains(t, out, "👍")
	assert.Contains(t, out, "web_search")
	assert.Contains(t, out, "looking")
	assert.Contains(t, out, "生成中")
}

func TestRenderTranscript_Workflow(t *testing.T) {
	tr := domainChat.NewTranscript("c1", []domainChat.Turn{{
		ID: "a1", Role: domainChat.RoleAnswer, Status: domainChat.StatusInterrupted, Content: "partial",
		WorkflowProcess: &domainChat.WorkflowProcess{
			Status:  domainChat.WorkflowStopped,
			Tracing: []domainChat.NodeTrace{{NodeID: "n1", Title: "LLM", Status: "running"}},
		},
	}})

	out := renderTranscript(tr, 0)
	assert.Contains(t, out, "workflow stopped")
	assert.Contains(t, out, "LLM [running]")
	assert.Contains(t, out, "已停止")
	assert.Contains(t, out, "partial")
}

func TestChannelPublisher_NeverBlocks(t *testing.T) {
	p := NewChannelPublisher()

	done := make(chan struct{})
	go func() {
		for i := 0; i < eventBuffer*2; i++ {
			p.Publish(&events.TranscriptEvent{UserKey: "u"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full buffer")
	}
	assert.Len(t, p.Events(), eventBuffer)

	p.Close()
	p.Publish(&events.TranscriptEvent{UserKey: "u"})
	p.Close()
}

func TestModel_ViewBeforeInit(t *testing.T) {
	m := newModel(nil, make(chan events.Event), Options{})
	assert.Contains(t, m.View(), "加载中")

	next, _ := m.Update(initMsg{err: assert.AnError})
	assert.Contains(t, next.(model).View(), "初始化失败")
}

func TestModel_QuitKeys(t *testing.T) {
	m := newModel(nil, make(chan events.Event), Options{})

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestModel_EventsClosed(t *testing.T) {
	ch := make(chan events.Event)
	close(ch)
	assert.Equal(t, eventsClosedMsg{}, waitForEvent(ch)())
}
