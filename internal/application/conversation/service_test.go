package conversation

import (
	"context"
	"sync"
	"testing"
	"time"

	appChat "github.com/fanqingsong/dify-chat-ui/internal/application/chat"
	"github.com/fanqingsong/dify-chat-ui/internal/domain/events"
	"github.com/fanqingsong/dify-chat-ui/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainChat "github.com/fanqingsong/dify-chat-ui/internal/domain/chat"
)

// stubBackend 只实现初始化相关接口
type stubBackend struct {
	mu            sync.Mutex
	conversations []domainChat.Conversation
	params        domainChat.Parameters
	history       map[string][]domainChat.HistoryMessage
	historyErr    error
	slow          bool // FetchParameters 阻塞到 ctx 结束
	renamed       []string
}

func (b *stubBackend) StreamChat(context.Context, domainChat.ChatRequest) (domainChat.EventStream, error) {
	return nil, &domainChat.UpstreamError{Status: 500, Message: "not supported"}
}

func (b *stubBackend) StopTask(context.Context, string, string) error { return nil }

func (b *stubBackend) FetchHistory(_ context.Context, id, _ string, _ int) ([]domainChat.HistoryMessage, error) {
	if b.historyErr != nil {
		return nil, b.historyErr
	}
	return b.history[id], nil
}

func (b *stubBackend) SubmitFeedback(context.Context, string, string, string) error { return nil }

func (b *stubBackend) FetchConversations(context.Context, string, int) ([]domainChat.Conversation, error) {
	return b.conversations, nil
}

func (b *stubBackend) RenameConversation(_ context.Context, id, name string, autoGenerate bool, user string) (domainChat.Conversation, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if autoGenerate {
		name = "auto"
	}
	b.renamed = append(b.renamed, id+"|"+name+"|"+user)
	return domainChat.Conversation{ID: id, Name: name}, nil
}

func (b *stubBackend) FetchParameters(ctx context.Context, _ string) (domainChat.Parameters, error) {
	if b.slow {
		<-ctx.Done()
		return domainChat.Parameters{}, ctx.Err()
	}
	return b.params, nil
}

type memStore struct {
	mu   sync.Mutex
	last map[string]string
}

func (s *memStore) GetCurrent(userKey, appID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last[userKey+"|"+appID], nil
}

func (s *memStore) SetCurrent(userKey, appID, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last[userKey+"|"+appID] = conversationID
	return nil
}

func (s *memStore) Clear(userKey, appID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.last, userKey+"|"+appID)
	return nil
}

func (s *memStore) lastOf(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.last[key]
	return v, ok
}

func newService(t *testing.T, backend *stubBackend, store *memStore) *Service {
	t.Helper()
	chatCfg := &config.ChatConfig{
		InitTimeout:       100 * time.Millisecond,
		HistoryLimit:      100,
		ConversationLimit: 100,
		RequestTimeout:    time.Second,
	}
	registry := config.NewAppRegistry(&config.Config{Apps: []config.AppConfig{
		{ID: "default", AppID: "app1", APIKey: "k", IsDefault: true},
	}})
	manager := appChat.NewManager(nil, nil, store, chatCfg, func(config.AppConfig) domainChat.Backend {
		return backend
	})
	t.Cleanup(manager.Close)
	return NewService(registry, manager, store, chatCfg)
}

func sampleParams() domainChat.Parameters {
	return domainChat.Parameters{
		OpeningStatement: "Hi {{name}}",
		PromptVariables: []domainChat.PromptVariable{
			{Key: "name", Required: true, Default: "Bob"},
			{Key: "topic"},
		},
	}
}

func TestService_InitRestoresLastConversation(t *testing.T) {
	backend := &stubBackend{
		conversations: []domainChat.Conversation{{ID: "c1"}, {ID: "c2"}},
		params:        sampleParams(),
		history: map[string][]domainChat.HistoryMessage{
			"c2": {{ID: "m1", ConversationID: "c2", Query: "q", Answer: "a"}},
		},
	}
	store := &memStore{last: map[string]string{"user_app1:s1|default": "c2"}}
	svc := newService(t, backend, store)

	res, err := svc.Init(context.Background(), "", "s1")
	require.NoError(t, err)
	assert.False(t, res.Degraded)
	assert.Equal(t, "default", res.App.ID)
	assert.Len(t, res.Conversations, 2)
	assert.Equal(t, "c2", res.CurrentConversationID)
	require.Len(t, res.Transcript.Turns, 3, "同步的历史前置开场白")
	assert.True(t, res.Transcript.Turns[0].IsOpeningStatement)
	assert.Equal(t, "Hi Bob", res.Transcript.Turns[0].Content)
	assert.Equal(t, "m1", res.Transcript.Turns[2].ID)
}

func TestService_InitNewConversation(t *testing.T) {
	backend := &stubBackend{
		conversations: []domainChat.Conversation{{ID: "c1"}},
		params:        sampleParams(),
	}
	store := &memStore{last: map[string]string{"user_app1:s1|default": "deleted"}}
	svc := newService(t, backend, store)

	res, err := svc.Init(context.Background(), "default", "s1")
	require.NoError(t, err)
	assert.Equal(t, domainChat.NewConversationID, res.CurrentConversationID, "上次会话已不存在")
	require.Len(t, res.Transcript.Turns, 1)
	assert.Equal(t, "Hi Bob", res.Transcript.Turns[0].Content)

	_, ok := store.lastOf("user_app1:s1|default")
	assert.False(t, ok, "失效的上次会话记录被清除")
}

func TestService_InitRestoreFailureFallsBackToNew(t *testing.T) {
	backend := &stubBackend{
		conversations: []domainChat.Conversation{{ID: "c1"}},
		params:        sampleParams(),
		historyErr:    &domainChat.UpstreamError{Status: 404, Code: "not_found", Message: "Conversation Not Exists."},
	}
	store := &memStore{last: map[string]string{"user_app1:s1|default": "c1"}}
	svc := newService(t, backend, store)

	res, err := svc.Init(context.Background(), "", "s1")
	require.NoError(t, err)
	assert.Equal(t, domainChat.NewConversationID, res.CurrentConversationID)
	assert.Equal(t, domainChat.NewConversationID, res.Transcript.ConversationID)
	require.Len(t, res.Transcript.Turns, 1)
	assert.True(t, res.Transcript.Turns[0].IsOpeningStatement)

	_, ok := store.lastOf("user_app1:s1|default")
	assert.False(t, ok)
}

func TestService_InitDegradedKeepsLastConversation(t *testing.T) {
	backend := &stubBackend{slow: true}
	store := &memStore{last: map[string]string{"user_app1:s1|default": "c1"}}
	svc := newService(t, backend, store)

	res, err := svc.Init(context.Background(), "", "s1")
	require.NoError(t, err)
	assert.True(t, res.Degraded)

	last, ok := store.lastOf("user_app1:s1|default")
	assert.True(t, ok)
	assert.Equal(t, "c1", last, "降级时不清除记录")
}

func TestService_InitDegradesOnTimeout(t *testing.T) {
	backend := &stubBackend{
		conversations: []domainChat.Conversation{{ID: "c1"}},
		slow:          true,
	}
	svc := newService(t, backend, &memStore{last: map[string]string{}})

	start := time.Now()
	res, err := svc.Init(context.Background(), "", "s1")
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.True(t, res.Degraded)
	assert.Empty(t, res.Conversations)
	assert.Empty(t, res.Transcript.Turns)
	assert.Equal(t, domainChat.NewConversationID, res.CurrentConversationID)
}

func TestService_AutoNameOnCreated(t *testing.T) {
	backend := &stubBackend{}
	svc := newService(t, backend, &memStore{last: map[string]string{}})

	err := svc.HandleEvent(&events.ConversationEvent{
		EventType:      events.ConversationCreated,
		UserKey:        "user_app1:s1",
		AppID:          "default",
		ConversationID: "c9",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"c9|auto|user_app1:s1"}, backend.renamed)

	// 其它事件忽略
	require.NoError(t, svc.HandleEvent(&events.ConversationEvent{EventType: events.ConversationSwitched}))
	assert.Len(t, backend.renamed, 1)

	err = svc.HandleEvent(&events.ConversationEvent{EventType: events.ConversationCreated, AppID: "gone"})
	assert.Error(t, err)
}

func TestDefaultsFrom(t *testing.T) {
	d := DefaultsFrom(sampleParams())
	assert.Equal(t, "Hi {{name}}", d.OpeningStatement)
	assert.Equal(t, map[string]string{"name": "Bob"}, d.Inputs)
	assert.Equal(t, []string{"name"}, d.RequiredInputs)
}
