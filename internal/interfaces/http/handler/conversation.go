package handler

import (
	"net/http"

	"github.com/fanqingsong/dify-chat-ui/internal/application/conversation"
	"github.com/fanqingsong/dify-chat-ui/internal/domain/auth"
	"github.com/fanqingsong/dify-chat-ui/internal/infrastructure/config"
	"github.com/fanqingsong/dify-chat-ui/internal/interfaces/http/middleware"
	"github.com/fanqingsong/dify-chat-ui/internal/interfaces/http/response"
	"github.com/gin-gonic/gin"
)

// ConversationHandler 会话列表与应用信息处理器
type ConversationHandler struct {
	service  *conversation.Service
	registry *config.AppRegistry
	appInfo  *config.AppInfo
}

// NewConversationHandler 创建会话处理器
func NewConversationHandler(service *conversation.Service, registry *config.AppRegistry, appInfo *config.AppInfo) *ConversationHandler {
	return &ConversationHandler{
		service:  service,
		registry: registry,
		appInfo:  appInfo,
	}
}

// RenameRequest 重命名请求
type RenameRequest struct {
	Name         string `json:"name"`
	AutoGenerate bool   `json:"auto_generate"`
}

// AppsResponse 应用列表
type AppsResponse struct {
	AppInfo config.AppInfo     `json:"app_info"`
	Apps    []config.AppConfig `json:"apps"`
	Session *auth.Session      `json:"session"`
}

// Init 初始化对话状态（会话列表、应用参数、当前会话）
// 后端超时或失败时返回默认状态，degraded 为 true
// @Summary 初始化
// @Tags 会话
// @Produce json
// @Param app_id query string false "应用 ID"
// @Success 200 {object} response.Response
// @Failure 503 {object} response.ErrorResponse
// @Router /init [get]
func (h *ConversationHandler) Init(c *gin.Context) {
	s := middleware.CurrentSession(c)
	result, err := h.service.Init(c.Request.Context(), c.Query("app_id"), s.UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, result)
}

// List 会话列表
// @Summary 会话列表
// @Tags 会话
// @Produce json
// @Param app_id query string false "应用 ID"
// @Success 200 {object} response.Response
// @Failure 502 {object} response.ErrorResponse
// @Router /conversations [get]
func (h *ConversationHandler) List(c *gin.Context) {
	s := middleware.CurrentSession(c)
	list, err := h.service.List(c.Request.Context(), c.Query("app_id"), s.UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, list)
}

// Rename 重命名会话
// @Summary 重命名会话
// @Tags 会话
// @Accept json
// @Produce json
// @Param app_id query string false "应用 ID"
// @Param conversation_id path string true "会话 ID"
// @Param body body RenameRequest true "名称"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.ErrorResponse
// @Router /conversations/{conversation_id}/name [post]
func (h *ConversationHandler) Rename(c *gin.Context) {
	var req RenameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, codeInvalidParams, "参数错误")
		return
	}
	if req.Name == "" && !req.AutoGenerate {
		response.Error(c, http.StatusBadRequest, codeInvalidParams, "name 不能为空")
		return
	}
	s := middleware.CurrentSession(c)
	conv, err := h.service.Rename(c.Request.Context(), c.Query("app_id"), s.UserID,
		c.Param("conversation_id"), req.Name, req.AutoGenerate)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, conv)
}

// Parameters 应用参数
// @Summary 应用参数
// @Tags 会话
// @Produce json
// @Param app_id query string false "应用 ID"
// @Success 200 {object} response.Response
// @Router /parameters [get]
func (h *ConversationHandler) Parameters(c *gin.Context) {
	s := middleware.CurrentSession(c)
	params, err := h.service.Parameters(c.Request.Context(), c.Query("app_id"), s.UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, params)
}

// Apps 可用应用和页面信息
// @Summary 应用列表
// @Tags 会话
// @Produce json
// @Success 200 {object} response.Response
// @Router /apps [get]
func (h *ConversationHandler) Apps(c *gin.Context) {
	response.Success(c, AppsResponse{
		AppInfo: *h.appInfo,
		Apps:    h.registry.List(),
		Session: middleware.CurrentSession(c),
	})
}
