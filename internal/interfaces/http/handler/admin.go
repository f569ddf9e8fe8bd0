package handler

import (
	appChat "github.com/fanqingsong/dify-chat-ui/internal/application/chat"
	domainChat "github.com/fanqingsong/dify-chat-ui/internal/domain/chat"
	"github.com/fanqingsong/dify-chat-ui/internal/interfaces/http/response"
	"github.com/gin-gonic/gin"
)

// AdminHandler 管理员查看和停止所有用户的流式会话
type AdminHandler struct {
	manager *appChat.Manager
}

// NewAdminHandler 创建管理处理器
func NewAdminHandler(manager *appChat.Manager) *AdminHandler {
	return &AdminHandler{manager: manager}
}

// Streams 进行中的流式会话
// @Summary 进行中的流式会话
// @Tags 管理
// @Produce json
// @Success 200 {object} response.Response
// @Failure 403 {object} response.ErrorResponse
// @Router /admin/streams [get]
func (h *AdminHandler) Streams(c *gin.Context) {
	sessions := h.manager.ActiveSessions()
	if sessions == nil {
		sessions = []domainChat.StreamSession{}
	}
	response.Success(c, sessions)
}

// Stop 停止任意用户的流式会话
// @Summary 停止流式会话
// @Tags 管理
// @Produce json
// @Param session_id path string true "流式会话 ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse
// @Router /admin/streams/{session_id}/stop [post]
func (h *AdminHandler) Stop(c *gin.Context) {
	id := c.Param("session_id")
	for _, s := range h.manager.ActiveSessions() {
		if s.ID != id {
			continue
		}
		ctrl, ok := h.manager.Find(s.UserKey)
		if !ok {
			break
		}
		if err := ctrl.Cancel(id); err != nil {
			writeError(c, err)
			return
		}
		response.Success(c, gin.H{"result": "success"})
		return
	}
	writeError(c, domainChat.ErrSessionNotFound)
}
