package handler

import (
	"errors"
	"net/http"

	appChat "github.com/fanqingsong/dify-chat-ui/internal/application/chat"
	domainChat "github.com/fanqingsong/dify-chat-ui/internal/domain/chat"
	"github.com/fanqingsong/dify-chat-ui/internal/domain/user"
	"github.com/fanqingsong/dify-chat-ui/internal/infrastructure/config"
	"github.com/fanqingsong/dify-chat-ui/internal/infrastructure/log"
	"github.com/fanqingsong/dify-chat-ui/internal/interfaces/http/response"
	"github.com/gin-gonic/gin"
)

// 错误码
const (
	codeInvalidParams   = 100001
	codeSendInProgress  = 610001
	codeEmptyMessage    = 610002
	codeInputsRequired  = 610003
	codeSessionNotFound = 610004
	codeMessageNotFound = 610005
	codeConversationNF  = 620001
	codeNoApps          = 630001
	codeUpstream        = 700001
	codeInternal        = 100004
	codeUserNotFound    = 640001
	codeEmailTaken      = 640002
	codeRoleNotFound    = 640003
	codeSelfUpdate      = 640004
)

// writeError 把应用层错误映射为 HTTP 响应
func writeError(c *gin.Context, err error) {
	var upstream *domainChat.UpstreamError
	switch {
	case errors.Is(err, domainChat.ErrSendInProgress):
		response.Error(c, http.StatusConflict, codeSendInProgress, err.Error())
	case errors.Is(err, domainChat.ErrEmptyMessage):
		response.Error(c, http.StatusBadRequest, codeEmptyMessage, err.Error())
	case errors.Is(err, domainChat.ErrInputsRequired):
		response.Error(c, http.StatusBadRequest, codeInputsRequired, err.Error())
	case errors.Is(err, domainChat.ErrSessionNotFound):
		response.Error(c, http.StatusNotFound, codeSessionNotFound, err.Error())
	case errors.Is(err, domainChat.ErrMessageNotFound):
		response.Error(c, http.StatusNotFound, codeMessageNotFound, err.Error())
	case errors.Is(err, domainChat.ErrConversationNotFound):
		response.Error(c, http.StatusNotFound, codeConversationNF, err.Error())
	case errors.Is(err, config.ErrNoApps):
		response.Error(c, http.StatusServiceUnavailable, codeNoApps, err.Error())
	case errors.Is(err, user.ErrUserNotFound):
		response.Error(c, http.StatusNotFound, codeUserNotFound, "未找到用户")
	case errors.Is(err, user.ErrEmailTaken):
		response.Error(c, http.StatusConflict, codeEmailTaken, "邮箱已被使用")
	case errors.Is(err, user.ErrRoleNotFound):
		response.Error(c, http.StatusNotFound, codeRoleNotFound, err.Error())
	case errors.Is(err, appChat.ErrControllerClosed):
		response.Error(c, http.StatusServiceUnavailable, codeInternal, err.Error())
	case errors.As(err, &upstream):
		status := http.StatusBadGateway
		if upstream.IsNotFound() {
			status = http.StatusNotFound
		}
		response.ErrorWithDetail(c, status, codeUpstream, upstream.Message, upstream.Code)
	default:
		log.FromContext(c.Request.Context(), log.NewModuleLogger("http", "handler")).
			Error("Request failed", "path", c.FullPath(), "error", err)
		response.ErrorWithDetail(c, http.StatusInternalServerError, codeInternal, "内部错误", err.Error())
	}
}
