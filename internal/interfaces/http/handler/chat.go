package handler

import (
	"net/http"

	appChat "github.com/fanqingsong/dify-chat-ui/internal/application/chat"
	"github.com/fanqingsong/dify-chat-ui/internal/application/conversation"
	domainChat "github.com/fanqingsong/dify-chat-ui/internal/domain/chat"
	"github.com/fanqingsong/dify-chat-ui/internal/infrastructure/log"
	"github.com/fanqingsong/dify-chat-ui/internal/interfaces/http/middleware"
	"github.com/fanqingsong/dify-chat-ui/internal/interfaces/http/response"
	"github.com/gin-gonic/gin"
)

// ChatHandler 对话处理器
type ChatHandler struct {
	service *conversation.Service
}

// NewChatHandler 创建对话处理器
func NewChatHandler(service *conversation.Service) *ChatHandler {
	return &ChatHandler{service: service}
}

// SendMessageRequest 发送消息请求
type SendMessageRequest struct {
	Query  string                  `json:"query"`
	Files  []domainChat.VisionFile `json:"files"`
	Inputs map[string]any          `json:"inputs"`
}

// TranscriptResponse 当前对话状态
type TranscriptResponse struct {
	ConversationID string                    `json:"conversation_id"`
	Transcript     domainChat.Transcript     `json:"transcript"`
	ActiveSession  *domainChat.StreamSession `json:"active_session,omitempty"`
}

// SwitchConversationRequest 切换会话请求
type SwitchConversationRequest struct {
	ConversationID string `json:"conversation_id" binding:"required"`
}

// FeedbackRequest 评价请求，rating 为 null 表示撤销
type FeedbackRequest struct {
	Rating *string `json:"rating"`
}

func (h *ChatHandler) controller(c *gin.Context) (*appChat.Controller, bool) {
	s := middleware.CurrentSession(c)
	ctrl, app, err := h.service.Controller(c.Query("app_id"), s.UserID)
	if err != nil {
		writeError(c, err)
		return nil, false
	}
	ctx := log.WithAppID(c.Request.Context(), app.ID)
	c.Request = c.Request.WithContext(log.WithUserKey(ctx, ctrl.UserKey()))
	return ctrl, true
}

// Send 发送消息，回答通过 WebSocket 快照推送
// @Summary 发送消息
// @Tags 对话
// @Accept json
// @Produce json
// @Param app_id query string false "应用 ID"
// @Param body body SendMessageRequest true "消息"
// @Success 202 {object} response.Response
// @Failure 400 {object} response.ErrorResponse
// @Failure 409 {object} response.ErrorResponse
// @Router /chat-messages [post]
func (h *ChatHandler) Send(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, codeInvalidParams, "参数错误")
		return
	}
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}

	session, err := ctrl.Send(c.Request.Context(), appChat.SendRequest{
		Query:  req.Query,
		Files:  req.Files,
		Inputs: req.Inputs,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	response.Accepted(c, session)
}

// Stop 停止生成
// @Summary 停止生成
// @Tags 对话
// @Produce json
// @Param app_id query string false "应用 ID"
// @Param session_id path string true "流式会话 ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse
// @Router /chat-messages/{session_id}/stop [post]
func (h *ChatHandler) Stop(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}
	if err := ctrl.Cancel(c.Param("session_id")); err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, gin.H{"result": "success"})
}

// Transcript 当前会话的对话记录
// @Summary 获取对话记录
// @Tags 对话
// @Produce json
// @Param app_id query string false "应用 ID"
// @Success 200 {object} response.Response
// @Router /transcript [get]
func (h *ChatHandler) Transcript(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}
	response.Success(c, transcriptResponse(ctrl))
}

// Switch 切换当前会话，"-1" 表示新会话
// @Summary 切换会话
// @Tags 对话
// @Accept json
// @Produce json
// @Param app_id query string false "应用 ID"
// @Param body body SwitchConversationRequest true "目标会话"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse
// @Failure 502 {object} response.ErrorResponse
// @Router /conversations/switch [post]
func (h *ChatHandler) Switch(c *gin.Context) {
	var req SwitchConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, codeInvalidParams, "参数错误")
		return
	}
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}
	if err := ctrl.SwitchConversation(c.Request.Context(), req.ConversationID); err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, transcriptResponse(ctrl))
}

// Feedback 评价回答
// @Summary 评价回答
// @Tags 对话
// @Accept json
// @Produce json
// @Param app_id query string false "应用 ID"
// @Param message_id path string true "消息 ID"
// @Param body body FeedbackRequest true "评价"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse
// @Router /messages/{message_id}/feedbacks [post]
func (h *ChatHandler) Feedback(c *gin.Context) {
	var req FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, codeInvalidParams, "参数错误")
		return
	}
	rating := ""
	if req.Rating != nil {
		rating = *req.Rating
	}
	if rating != "" && rating != "like" && rating != "dislike" {
		response.Error(c, http.StatusBadRequest, codeInvalidParams, "rating 只能是 like、dislike 或 null")
		return
	}
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}
	if err := ctrl.SubmitFeedback(c.Request.Context(), c.Param("message_id"), rating); err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, gin.H{"result": "success"})
}

func transcriptResponse(ctrl *appChat.Controller) TranscriptResponse {
	resp := TranscriptResponse{
		ConversationID: ctrl.CurrentConversationID(),
		Transcript:     ctrl.Snapshot(),
	}
	if s, ok := ctrl.ActiveSession(); ok {
		resp.ActiveSession = &s
	}
	return resp
}
