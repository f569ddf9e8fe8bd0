// Package auth 定义请求范围内的会话上下文
package auth

import (
	"context"

	"github.com/fanqingsong/dify-chat-ui/internal/domain/user"
)

// Session 当前请求的身份信息
// 由中间件解析，随请求上下文传递，不使用进程级全局状态
type Session struct {
	UserID     string   `json:"user_id"`
	Name       string   `json:"name"`
	IsAdmin    bool     `json:"is_admin"`
	Roles      []string `json:"roles"`
	HasGEBRole bool     `json:"has_geb_role"`
}

// NewSession 由用户构造会话
func NewSession(u *user.User) *Session {
	return &Session{
		UserID:     u.ID,
		Name:       u.Name,
		IsAdmin:    u.IsAdmin,
		Roles:      u.RoleNames(),
		HasGEBRole: u.HasRole(user.RestrictedRoleName),
	}
}

// Anonymous 匿名会话（仅以浏览器会话 ID 区分用户）
func Anonymous(sessionID string) *Session {
	return &Session{UserID: sessionID}
}

type sessionKey struct{}

// WithSession 把会话放入上下文
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// FromContext 从上下文取出会话
func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(*Session)
	return s, ok && s != nil
}

// UserKey 后端用户标识 user_<appId>:<userId>，也是对话控制器的键
func UserKey(appID, userID string) string {
	return "user_" + appID + ":" + userID
}
