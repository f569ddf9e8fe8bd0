package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fanqingsong/dify-chat-ui/internal/domain/auth"
	"github.com/fanqingsong/dify-chat-ui/internal/domain/user"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/simplifiedchinese"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubUsers struct {
	users map[string]*user.User
}

func (s *stubUsers) Save(u *user.User) error { return nil }

func (s *stubUsers) FindByID(id string) (*user.User, error) {
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	return nil, user.ErrUserNotFound
}

func (s *stubUsers) FindByEmail(email string) (*user.User, error) { return nil, user.ErrUserNotFound }

func (s *stubUsers) AssignRole(userID, roleName string) error { return nil }

func (s *stubUsers) EnsureRoles(roles []user.Role) error { return nil }

func setupSessionRouter(users user.Repository) *gin.Engine {
	return setupSessionRouterWith(users, true)
}

func setupSessionRouterWith(users user.Repository, trustHeader bool) *gin.Engine {
	router := gin.New()
	router.Use(Session(users, trustHeader))
	router.GET("/whoami", func(c *gin.Context) {
		s := CurrentSession(c)
		c.JSON(http.StatusOK, s)
	})
	admin := router.Group("/admin", RequireAdmin())
	admin.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})
	return router
}

func newUsers() *stubUsers {
	return &stubUsers{users: map[string]*user.User{
		"alice": {ID: "alice", Name: "Alice", IsActive: true, IsAdmin: true},
		"bob":   {ID: "bob", Name: "Bob", IsActive: false},
		"carol": {ID: "carol", Name: "Carol", IsActive: true, Roles: []user.Role{{Name: user.RestrictedRoleName}}},
	}}
}

func decodeSession(t *testing.T, w *httptest.ResponseRecorder) auth.Session {
	t.Helper()
	var s auth.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &s))
	return s
}

func TestSession_AnonymousSetsCookie(t *testing.T) {
	router := setupSessionRouter(newUsers())

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	s := decodeSession(t, w)
	assert.NotEmpty(t, s.UserID)
	assert.False(t, s.IsAdmin)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, SessionCookie, cookies[0].Name)
	assert.Equal(t, s.UserID, cookies[0].Value)
}

func TestSession_AnonymousReusesCookie(t *testing.T) {
	router := setupSessionRouter(newUsers())

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "browser-1"})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "browser-1", decodeSession(t, w).UserID)
	assert.Empty(t, w.Result().Cookies())
}

func TestSession_IdentityHeader(t *testing.T) {
	router := setupSessionRouter(newUsers())

	tests := []struct {
		name     string
		userID   string
		wantCode int
	}{
		{"active user", "alice", http.StatusOK},
		{"unknown user", "mallory", http.StatusUnauthorized},
		{"inactive user", "bob", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			req.Header.Set(UserIDHeader, tt.userID)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, tt.wantCode, w.Code)
		})
	}
}

func TestSession_UntrustedHeaderIgnored(t *testing.T) {
	router := setupSessionRouterWith(newUsers(), false)

	// 未开启信任时伪造管理员 ID 只会得到匿名会话
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set(UserIDHeader, "alice")
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "browser-1"})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	s := decodeSession(t, w)
	assert.Equal(t, "browser-1", s.UserID)
	assert.False(t, s.IsAdmin)

	req = httptest.NewRequest(http.MethodGet, "/admin/ping", nil)
	req.Header.Set(UserIDHeader, "alice")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// 未知用户也不再返回 401
	req = httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set(UserIDHeader, "mallory")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSession_RestrictedRole(t *testing.T) {
	router := setupSessionRouter(newUsers())

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set(UserIDHeader, "carol")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	s := decodeSession(t, w)
	assert.True(t, s.HasGEBRole)
	assert.Equal(t, []string{user.RestrictedRoleName}, s.Roles)
}

func TestRequireAdmin(t *testing.T) {
	router := setupSessionRouter(newUsers())

	req := httptest.NewRequest(http.MethodGet, "/admin/ping", nil)
	req.Header.Set(UserIDHeader, "alice")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/admin/ping", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRequestID(t *testing.T) {
	router := gin.New()
	router.Use(RequestID())
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "req-42", w.Header().Get(RequestIDHeader))
}

func echoRouter() *gin.Engine {
	router := gin.New()
	router.Use(EnsureUTF8Body())
	router.POST("/echo", func(c *gin.Context) {
		body, _ := io.ReadAll(c.Request.Body)
		c.String(http.StatusOK, string(body))
	})
	return router
}

func TestEnsureUTF8Body(t *testing.T) {
	gbk, err := simplifiedchinese.GBK.NewEncoder().Bytes([]byte(`{"query":"你好"}`))
	require.NoError(t, err)

	tests := []struct {
		name        string
		body        []byte
		contentType string
	}{
		{"utf8 untouched", []byte(`{"query":"你好"}`), "application/json"},
		{"undeclared gbk", gbk, "application/json"},
		{"declared gbk", gbk, "application/json; charset=gbk"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/echo", bytes.NewReader(tt.body))
			req.Header.Set("Content-Type", tt.contentType)
			w := httptest.NewRecorder()
			echoRouter().ServeHTTP(w, req)
			assert.Equal(t, `{"query":"你好"}`, w.Body.String())
		})
	}
}
