package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	appChat "github.com/fanqingsong/dify-chat-ui/internal/application/chat"
	"github.com/fanqingsong/dify-chat-ui/internal/application/conversation"
	"github.com/fanqingsong/dify-chat-ui/internal/infrastructure/config"
	"github.com/fanqingsong/dify-chat-ui/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainChat "github.com/fanqingsong/dify-chat-ui/internal/domain/chat"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// openStream 在 Close 之前一直阻塞，模拟仍在生成的回答
type openStream struct {
	events chan domainChat.Event
	closed chan struct{}
	once   sync.Once
}

func newOpenStream() *openStream {
	return &openStream{events: make(chan domainChat.Event, 16), closed: make(chan struct{})}
}

func (s *openStream) Next() (domainChat.Event, error) {
	select {
	case ev := <-s.events:
		return ev, nil
	case <-s.closed:
		return nil, io.EOF
	}
}

func (s *openStream) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

type stubBackend struct {
	mu            sync.Mutex
	conversations []domainChat.Conversation
	history       map[string][]domainChat.HistoryMessage
	streamErr     error
	feedbacks     []string
	stream        *openStream
}

func (b *stubBackend) StreamChat(context.Context, domainChat.ChatRequest) (domainChat.EventStream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.streamErr != nil {
		return nil, b.streamErr
	}
	b.stream = newOpenStream()
	return b.stream, nil
}

func (b *stubBackend) StopTask(context.Context, string, string) error { return nil }

func (b *stubBackend) FetchHistory(_ context.Context, id, _ string, _ int) ([]domainChat.HistoryMessage, error) {
	msgs, ok := b.history[id]
	if !ok {
		return nil, &domainChat.UpstreamError{Status: 404, Code: "not_found", Message: "Conversation Not Exists."}
	}
	return msgs, nil
}

func (b *stubBackend) SubmitFeedback(_ context.Context, messageID, rating, _ string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.feedbacks = append(b.feedbacks, messageID+"|"+rating)
	return nil
}

func (b *stubBackend) FetchConversations(context.Context, string, int) ([]domainChat.Conversation, error) {
	return b.conversations, nil
}

func (b *stubBackend) RenameConversation(_ context.Context, id, name string, autoGenerate bool, _ string) (domainChat.Conversation, error) {
	if autoGenerate {
		name = "generated"
	}
	return domainChat.Conversation{ID: id, Name: name}, nil
}

func (b *stubBackend) FetchParameters(context.Context, string) (domainChat.Parameters, error) {
	return domainChat.Parameters{OpeningStatement: "Hello"}, nil
}

type testEnv struct {
	router  *gin.Engine
	backend *stubBackend
	manager *appChat.Manager
	service *conversation.Service
}

func setupRouter(t *testing.T, apps []config.AppConfig) *testEnv {
	t.Helper()
	backend := &stubBackend{
		conversations: []domainChat.Conversation{{ID: "c1", Name: "first"}},
		history: map[string][]domainChat.HistoryMessage{
			"c1": {{ID: "m1", ConversationID: "c1", Query: "q", Answer: "a"}},
		},
	}
	chatCfg := &config.ChatConfig{
		InitTimeout:       time.Second,
		HistoryLimit:      100,
		ConversationLimit: 100,
		RequestTimeout:    time.Second,
	}
	cfg := &config.Config{Apps: apps, AppInfo: config.AppInfo{Title: "Chat APP"}}
	registry := config.NewAppRegistry(cfg)
	manager := appChat.NewManager(nil, nil, nil, chatCfg, func(config.AppConfig) domainChat.Backend {
		return backend
	})
	t.Cleanup(manager.Close)
	service := conversation.NewService(registry, manager, nil, chatCfg)

	chat := NewChatHandler(service)
	conv := NewConversationHandler(service, registry, &cfg.AppInfo)
	admin := NewAdminHandler(manager)

	router := gin.New()
	api := router.Group("/api/v1", middleware.Session(nil, false))
	{
		api.POST("/chat-messages", chat.Send)
		api.POST("/chat-messages/:session_id/stop", chat.Stop)
		api.GET("/transcript", chat.Transcript)
		api.POST("/conversations/switch", chat.Switch)
		api.POST("/messages/:message_id/feedbacks", chat.Feedback)
		api.GET("/init", conv.Init)
		api.GET("/conversations", conv.List)
		api.POST("/conversations/:conversation_id/name", conv.Rename)
		api.GET("/apps", conv.Apps)
		api.GET("/admin/streams", admin.Streams)
		api.POST("/admin/streams/:session_id/stop", admin.Stop)
	}
	return &testEnv{router: router, backend: backend, manager: manager, service: service}
}

func defaultApps() []config.AppConfig {
	return []config.AppConfig{{ID: "default", AppID: "app1", APIKey: "secret", IsDefault: true}}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookie, Value: "browser-1"})
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w, resp
}

func TestChatHandler_SendAndReject(t *testing.T) {
	env := setupRouter(t, defaultApps())

	w, resp := env.do(t, http.MethodPost, "/api/v1/chat-messages", gin.H{"query": "hi"})
	require.Equal(t, http.StatusAccepted, w.Code)
	data, ok := resp["data"].(map[string]interface{})
	require.True(t, ok, "响应应包含 data 字段")
	assert.Equal(t, "user_app1:browser-1", data["user_key"])
	assert.Equal(t, domainChat.NewConversationID, data["conversation_id_at_start"])

	w, resp = env.do(t, http.MethodPost, "/api/v1/chat-messages", gin.H{"query": "again"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, float64(codeSendInProgress), resp["code"])

	w, resp = env.do(t, http.MethodGet, "/api/v1/transcript", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data = resp["data"].(map[string]interface{})
	assert.NotNil(t, data["active_session"])
	turns := data["transcript"].(map[string]interface{})["turns"].([]interface{})
	require.Len(t, turns, 2)
	assert.Equal(t, "hi", turns[0].(map[string]interface{})["content"])
	assert.Equal(t, "pending", turns[1].(map[string]interface{})["status"])
}

func TestChatHandler_SendEmpty(t *testing.T) {
	env := setupRouter(t, defaultApps())

	w, resp := env.do(t, http.MethodPost, "/api/v1/chat-messages", gin.H{"query": "   "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, float64(codeEmptyMessage), resp["code"])
}

func TestChatHandler_SendUpstreamFailure(t *testing.T) {
	env := setupRouter(t, defaultApps())
	env.backend.streamErr = &domainChat.UpstreamError{Status: 400, Code: "invalid_param", Message: "bad"}

	// 流打开失败以错误事件结束，发送本身已受理
	w, _ := env.do(t, http.MethodPost, "/api/v1/chat-messages", gin.H{"query": "hi"})
	assert.Equal(t, http.StatusAccepted, w.Code)

	require.Eventually(t, func() bool {
		_, resp := env.do(t, http.MethodGet, "/api/v1/transcript", nil)
		return resp["data"].(map[string]interface{})["active_session"] == nil
	}, time.Second, 10*time.Millisecond)
}

func TestChatHandler_Stop(t *testing.T) {
	env := setupRouter(t, defaultApps())

	_, resp := env.do(t, http.MethodPost, "/api/v1/chat-messages", gin.H{"query": "hi"})
	id := resp["data"].(map[string]interface{})["id"].(string)

	w, _ := env.do(t, http.MethodPost, "/api/v1/chat-messages/unknown/stop", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = env.do(t, http.MethodPost, "/api/v1/chat-messages/"+id+"/stop", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	_, resp = env.do(t, http.MethodGet, "/api/v1/transcript", nil)
	turns := resp["data"].(map[string]interface{})["transcript"].(map[string]interface{})["turns"].([]interface{})
	assert.Equal(t, "interrupted", turns[1].(map[string]interface{})["status"])
}

func TestChatHandler_SwitchAndFeedback(t *testing.T) {
	env := setupRouter(t, defaultApps())

	w, resp := env.do(t, http.MethodPost, "/api/v1/conversations/switch", gin.H{"conversation_id": "c1"})
	require.Equal(t, http.StatusOK, w.Code)
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, "c1", data["conversation_id"])

	w, _ = env.do(t, http.MethodPost, "/api/v1/messages/m1/feedbacks", gin.H{"rating": "like"})
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = env.do(t, http.MethodPost, "/api/v1/messages/m1/feedbacks", gin.H{"rating": nil})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"m1|like", "m1|"}, env.backend.feedbacks)

	w, _ = env.do(t, http.MethodPost, "/api/v1/messages/m1/feedbacks", gin.H{"rating": "meh"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = env.do(t, http.MethodPost, "/api/v1/messages/question-m1/feedbacks", gin.H{"rating": "like"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestChatHandler_SwitchUnknownConversation(t *testing.T) {
	env := setupRouter(t, defaultApps())

	w, resp := env.do(t, http.MethodPost, "/api/v1/conversations/switch", gin.H{"conversation_id": "missing"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, float64(codeUpstream), resp["code"])
	assert.Equal(t, "not_found", resp["detail"])
}

func TestConversationHandler_Init(t *testing.T) {
	env := setupRouter(t, defaultApps())

	w, resp := env.do(t, http.MethodGet, "/api/v1/init", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, false, data["degraded"])
	assert.Equal(t, domainChat.NewConversationID, data["current_conversation_id"])
	turns := data["transcript"].(map[string]interface{})["turns"].([]interface{})
	require.Len(t, turns, 1)
	assert.Equal(t, "Hello", turns[0].(map[string]interface{})["content"])
}

func TestConversationHandler_NoApps(t *testing.T) {
	env := setupRouter(t, nil)

	w, resp := env.do(t, http.MethodGet, "/api/v1/init", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, float64(codeNoApps), resp["code"])
}

func TestConversationHandler_Rename(t *testing.T) {
	env := setupRouter(t, defaultApps())

	w, _ := env.do(t, http.MethodPost, "/api/v1/conversations/c1/name", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, resp := env.do(t, http.MethodPost, "/api/v1/conversations/c1/name", gin.H{"auto_generate": true})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "generated", resp["data"].(map[string]interface{})["name"])
}

func TestConversationHandler_AppsHidesKeys(t *testing.T) {
	env := setupRouter(t, defaultApps())

	w, _ := env.do(t, http.MethodGet, "/api/v1/apps", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "secret")
	assert.Contains(t, w.Body.String(), "Chat APP")
}

func TestAdminHandler_Streams(t *testing.T) {
	env := setupRouter(t, defaultApps())

	_, resp := env.do(t, http.MethodGet, "/api/v1/admin/streams", nil)
	assert.Empty(t, resp["data"])

	_, resp = env.do(t, http.MethodPost, "/api/v1/chat-messages", gin.H{"query": "hi"})
	id := resp["data"].(map[string]interface{})["id"].(string)

	_, resp = env.do(t, http.MethodGet, "/api/v1/admin/streams", nil)
	require.Len(t, resp["data"], 1)

	w, _ := env.do(t, http.MethodPost, "/api/v1/admin/streams/"+id+"/stop", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = env.do(t, http.MethodPost, "/api/v1/admin/streams/"+id+"/stop", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
