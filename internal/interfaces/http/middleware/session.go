package middleware

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/fanqingsong/dify-chat-ui/internal/domain/auth"
	"github.com/fanqingsong/dify-chat-ui/internal/domain/user"
	"github.com/fanqingsong/dify-chat-ui/internal/infrastructure/log"
	"github.com/fanqingsong/dify-chat-ui/internal/interfaces/http/response"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// UserIDHeader 上游认证代理写入的用户 ID
	UserIDHeader = "X-User-Id"
	// SessionCookie 匿名用户的浏览器会话 cookie
	SessionCookie = "session_id"

	sessionCookieMaxAge = 365 * 24 * 3600
)

// Session 解析请求身份并放入请求上下文
// trustHeader 为 true 时按 X-User-Id 从用户库加载（不存在 401，已停用 403）；
// 否则忽略该头，以 session_id cookie 作为匿名用户，没有则生成并写回。
func Session(users user.Repository, trustHeader bool) gin.HandlerFunc {
	logger := log.NewModuleLogger("http", "session")
	if !trustHeader {
		users = nil
	}
	return func(c *gin.Context) {
		s, ok := resolveSession(c, users, logger)
		if !ok {
			return
		}
		c.Request = c.Request.WithContext(auth.WithSession(c.Request.Context(), s))
		c.Next()
	}
}

func resolveSession(c *gin.Context, users user.Repository, logger *slog.Logger) (*auth.Session, bool) {
	id := c.GetHeader(UserIDHeader)
	if id != "" && users == nil {
		logger.Debug("Ignoring untrusted identity header", "user_id", id)
	}
	if id != "" && users != nil {
		u, err := users.FindByID(id)
		switch {
		case errors.Is(err, user.ErrUserNotFound):
			response.Error(c, http.StatusUnauthorized, 401001, "用户不存在")
			c.Abort()
			return nil, false
		case err != nil:
			logger.Error("Failed to load user", "user_id", id, "error", err)
			response.ErrorWithDetail(c, http.StatusInternalServerError, 500001, "加载用户失败", err.Error())
			c.Abort()
			return nil, false
		case !u.IsActive:
			response.Error(c, http.StatusForbidden, 403001, "用户已停用")
			c.Abort()
			return nil, false
		}
		return auth.NewSession(u), true
	}

	sessionID, err := c.Cookie(SessionCookie)
	if err != nil || sessionID == "" {
		sessionID = uuid.New().String()
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(SessionCookie, sessionID, sessionCookieMaxAge, "/", "", false, true)
	}
	return auth.Anonymous(sessionID), true
}

// RequireAdmin 仅允许管理员访问
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		s, ok := auth.FromContext(c.Request.Context())
		if !ok || !s.IsAdmin {
			response.Error(c, http.StatusForbidden, 403002, "需要管理员权限")
			c.Abort()
			return
		}
		c.Next()
	}
}

// CurrentSession 取出中间件解析的会话
func CurrentSession(c *gin.Context) *auth.Session {
	if s, ok := auth.FromContext(c.Request.Context()); ok {
		return s
	}
	return auth.Anonymous("")
}
