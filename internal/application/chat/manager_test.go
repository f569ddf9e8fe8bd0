package chat

import (
	"context"
	"testing"
	"time"

	"github.com/fanqingsong/dify-chat-ui/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainChat "github.com/fanqingsong/dify-chat-ui/internal/domain/chat"
)

func newTestManager(t *testing.T) (*Manager, *int) {
	t.Helper()
	built := 0
	m := NewManager(nil, &recorder{}, &memoryStore{}, &config.ChatConfig{
		HistoryLimit:   50,
		RequestTimeout: time.Second,
	}, func(app config.AppConfig) domainChat.Backend {
		built++
		return newFakeBackend()
	})
	t.Cleanup(m.Close)
	return m, &built
}

// mustGet 取控制器，失败即终止测试
func mustGet(t *testing.T, m *Manager, app config.AppConfig, userID string) *Controller {
	t.Helper()
	c, err := m.Get(app, userID)
	require.NoError(t, err)
	return c
}

func TestManager_ControllersPerUserKey(t *testing.T) {
	m, built := newTestManager(t)
	app := config.AppConfig{ID: "default", AppID: "app1", APIKey: "k1", APIURL: "https://api.dify.ai/v1"}

	a := mustGet(t, m, app, "alice")
	assert.Same(t, a, mustGet(t, m, app, "alice"))
	assert.Equal(t, "user_app1:alice", a.UserKey())

	b := mustGet(t, m, app, "bob")
	assert.NotSame(t, a, b)
	assert.Equal(t, 1, *built, "同一应用复用后端")

	found, ok := m.Find("user_app1:bob")
	require.True(t, ok)
	assert.Same(t, b, found)

	_, ok = m.Find("user_app1:carol")
	assert.False(t, ok)
}

func TestManager_RebuildsBackendOnConfigChange(t *testing.T) {
	m, built := newTestManager(t)
	app := config.AppConfig{ID: "default", AppID: "app1", APIKey: "k1"}

	first := m.Backend(app)
	assert.Same(t, first, m.Backend(app))

	app.APIKey = "k2"
	second := m.Backend(app)
	assert.NotSame(t, first, second)
	assert.Equal(t, 2, *built)

	c := mustGet(t, m, app, "alice")
	c.mu.Lock()
	assert.Same(t, second, c.backend)
	c.mu.Unlock()
}

func TestManager_ActiveSessions(t *testing.T) {
	m, _ := newTestManager(t)
	app := config.AppConfig{ID: "default", AppID: "app1"}

	c := mustGet(t, m, app, "alice")
	c.backend.(*fakeBackend).stream = newFakeStream()
	mustGet(t, m, app, "bob")

	assert.Empty(t, m.ActiveSessions())

	session, err := c.Send(context.Background(), SendRequest{Query: "Hello"})
	require.NoError(t, err)

	sessions := m.ActiveSessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, session.ID, sessions[0].ID)
	assert.Equal(t, "user_app1:alice", sessions[0].UserKey)
}

func TestManager_GetAfterClose(t *testing.T) {
	m, _ := newTestManager(t)
	app := config.AppConfig{ID: "default", AppID: "app1"}

	existing := mustGet(t, m, app, "alice")
	m.Close()

	_, err := m.Get(app, "bob")
	assert.ErrorIs(t, err, ErrControllerClosed, "关闭后不再创建控制器")
	_, err = m.Get(app, "alice")
	assert.ErrorIs(t, err, ErrControllerClosed)

	_, ok := m.Find("user_app1:bob")
	assert.False(t, ok)
	_, err = existing.Send(context.Background(), SendRequest{Query: "hi"})
	assert.ErrorIs(t, err, ErrControllerClosed)
}
