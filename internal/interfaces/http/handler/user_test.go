package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fanqingsong/dify-chat-ui/internal/domain/user"
	"github.com/fanqingsong/dify-chat-ui/internal/infrastructure/log"
	"github.com/fanqingsong/dify-chat-ui/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memUsers 内存用户库
type memUsers struct {
	users map[string]*user.User
	roles map[string]bool
}

func newMemUsers() *memUsers {
	return &memUsers{
		users: map[string]*user.User{
			"root": {ID: "root", Name: "Root", Email: "root@example.com", IsAdmin: true, IsActive: true},
			"bob":  {ID: "bob", Name: "Bob", Email: "bob@example.com", IsActive: true},
		},
		roles: map[string]bool{user.RestrictedRoleName: true},
	}
}

func (m *memUsers) Save(u *user.User) error {
	if u.ID == "" {
		u.ID = "generated-" + u.Email
	}
	clone := *u
	m.users[u.ID] = &clone
	return nil
}

func (m *memUsers) FindByID(id string) (*user.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, user.ErrUserNotFound
	}
	clone := *u
	return &clone, nil
}

func (m *memUsers) FindByEmail(email string) (*user.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			clone := *u
			return &clone, nil
		}
	}
	return nil, user.ErrUserNotFound
}

func (m *memUsers) AssignRole(userID, roleName string) error {
	if !m.roles[roleName] {
		return user.ErrRoleNotFound
	}
	u, ok := m.users[userID]
	if !ok {
		return user.ErrUserNotFound
	}
	if !u.HasRole(roleName) {
		u.Roles = append(u.Roles, user.Role{Name: roleName})
	}
	return nil
}

func (m *memUsers) EnsureRoles(roles []user.Role) error {
	for _, r := range roles {
		m.roles[r.Name] = true
	}
	return nil
}

func setupUserRouter(users *memUsers) *gin.Engine {
	h := NewUserHandler(users)
	router := gin.New()
	admin := router.Group("/api/v1/admin", middleware.Session(users, true), middleware.RequireAdmin())
	{
		admin.POST("/users", h.Create)
		admin.GET("/users/:user_id", h.Get)
		admin.PUT("/users/:user_id", h.Update)
		admin.POST("/users/:user_id/role", h.AssignRole)
	}
	return router
}

func doAs(t *testing.T, router *gin.Engine, userID, method, path string, body any) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set(middleware.UserIDHeader, userID)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w, resp
}

func TestUserHandler_RequiresAdmin(t *testing.T) {
	router := setupUserRouter(newMemUsers())

	w, _ := doAs(t, router, "bob", http.MethodGet, "/api/v1/admin/users/root", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestUserHandler_CreateRejectsDuplicateEmail(t *testing.T) {
	users := newMemUsers()
	router := setupUserRouter(users)

	w, resp := doAs(t, router, "root", http.MethodPost, "/api/v1/admin/users",
		gin.H{"name": "Carol", "email": "carol@example.com"})
	require.Equal(t, http.StatusOK, w.Code)
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, "Carol", data["name"])
	assert.Equal(t, true, data["is_active"], "默认启用")
	assert.Equal(t, false, data["has_geb_role"])

	stored, err := users.FindByEmail("carol@example.com")
	require.NoError(t, err)
	assert.Equal(t, data["id"], stored.ID)

	w, _ = doAs(t, router, "root", http.MethodPost, "/api/v1/admin/users",
		gin.H{"name": "Other", "email": "carol@example.com"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w, _ = doAs(t, router, "root", http.MethodPost, "/api/v1/admin/users", gin.H{"name": "NoMail"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUserHandler_Update(t *testing.T) {
	users := newMemUsers()
	router := setupUserRouter(users)

	w, resp := doAs(t, router, "root", http.MethodPut, "/api/v1/admin/users/bob", gin.H{"is_active": false})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, resp["data"].(map[string]interface{})["is_active"])
	assert.Equal(t, "Bob", users.users["bob"].Name)
	assert.False(t, users.users["bob"].IsActive)

	w, _ = doAs(t, router, "root", http.MethodPut, "/api/v1/admin/users/root", gin.H{"is_admin": false})
	assert.Equal(t, http.StatusBadRequest, w.Code, "管理员不能修改自己")
	assert.True(t, users.users["root"].IsAdmin)

	w, _ = doAs(t, router, "root", http.MethodPut, "/api/v1/admin/users/ghost", gin.H{"is_active": true})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUserHandler_AssignRole(t *testing.T) {
	users := newMemUsers()
	router := setupUserRouter(users)

	w, resp := doAs(t, router, "root", http.MethodPost, "/api/v1/admin/users/bob/role", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, resp["data"].(map[string]interface{})["has_geb_role"])
	assert.True(t, users.users["bob"].HasRole(user.RestrictedRoleName))

	// 重复添加保持幂等
	w, _ = doAs(t, router, "root", http.MethodPost, "/api/v1/admin/users/bob/role", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, users.users["bob"].Roles, 1)

	w, _ = doAs(t, router, "root", http.MethodGet, "/api/v1/admin/users/bob", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = doAs(t, router, "root", http.MethodPost, "/api/v1/admin/users/ghost/role", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	delete(users.roles, user.RestrictedRoleName)
	users.users["carol"] = &user.User{ID: "carol", IsActive: true}
	w, _ = doAs(t, router, "root", http.MethodPost, "/api/v1/admin/users/carol/role", nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "角色未初始化")
}

func TestChatHandler_ControllerTagsRequestContext(t *testing.T) {
	env := setupRouter(t, defaultApps())
	chat := NewChatHandler(env.service)

	var got map[string]string
	router := gin.New()
	router.GET("/request-context", middleware.Session(nil, false), func(c *gin.Context) {
		if _, ok := chat.controller(c); !ok {
			return
		}
		got = map[string]string{}
		for _, a := range log.LogCtxFromContext(c.Request.Context()) {
			got[a.Key] = a.Value.String()
		}
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/request-context", nil)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookie, Value: "browser-1"})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "default", got["app_id"])
	assert.Equal(t, "user_app1:browser-1", got["user_key"])
}
