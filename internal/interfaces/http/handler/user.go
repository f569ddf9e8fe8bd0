package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/fanqingsong/dify-chat-ui/internal/domain/user"
	"github.com/fanqingsong/dify-chat-ui/internal/infrastructure/log"
	"github.com/fanqingsong/dify-chat-ui/internal/interfaces/http/middleware"
	"github.com/fanqingsong/dify-chat-ui/internal/interfaces/http/response"
	"github.com/gin-gonic/gin"
)

// UserHandler 管理员维护用户与角色
type UserHandler struct {
	users user.Repository
}

// NewUserHandler 创建用户管理处理器
func NewUserHandler(users user.Repository) *UserHandler {
	return &UserHandler{users: users}
}

// CreateUserRequest 创建用户请求
type CreateUserRequest struct {
	ID       string `json:"id"`
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required"`
	IsAdmin  bool   `json:"is_admin"`
	IsActive *bool  `json:"is_active"`
}

// UpdateUserRequest 更新用户请求，未提供的字段保持不变
type UpdateUserRequest struct {
	Name     *string `json:"name"`
	IsAdmin  *bool   `json:"is_admin"`
	IsActive *bool   `json:"is_active"`
}

// UserResponse 用户信息
type UserResponse struct {
	*user.User
	HasGEBRole bool `json:"has_geb_role"`
}

func userResponse(u *user.User) UserResponse {
	return UserResponse{User: u, HasGEBRole: u.HasRole(user.RestrictedRoleName)}
}

// Get 查看用户
// @Summary 查看用户
// @Tags 管理
// @Produce json
// @Param user_id path string true "用户 ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse
// @Router /admin/users/{user_id} [get]
func (h *UserHandler) Get(c *gin.Context) {
	u, err := h.users.FindByID(c.Param("user_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, userResponse(u))
}

// Create 创建用户，邮箱不能重复
// @Summary 创建用户
// @Tags 管理
// @Accept json
// @Produce json
// @Param body body CreateUserRequest true "用户"
// @Success 200 {object} response.Response
// @Failure 409 {object} response.ErrorResponse
// @Router /admin/users [post]
func (h *UserHandler) Create(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, codeInvalidParams, "参数错误")
		return
	}
	email := strings.TrimSpace(req.Email)

	_, err := h.users.FindByEmail(email)
	switch {
	case err == nil:
		writeError(c, user.ErrEmailTaken)
		return
	case !errors.Is(err, user.ErrUserNotFound):
		writeError(c, err)
		return
	}
	if req.ID != "" {
		if _, err := h.users.FindByID(req.ID); err == nil {
			response.Error(c, http.StatusConflict, codeInvalidParams, "用户 ID 已存在")
			return
		}
	}

	u := &user.User{
		ID:       req.ID,
		Name:     strings.TrimSpace(req.Name),
		Email:    email,
		IsAdmin:  req.IsAdmin,
		IsActive: req.IsActive == nil || *req.IsActive,
	}
	if err := h.users.Save(u); err != nil {
		writeError(c, err)
		return
	}
	log.FromContext(c.Request.Context(), log.NewModuleLogger("http", "user")).
		Info("User created", "user_id", u.ID, "is_admin", u.IsAdmin)
	response.Success(c, userResponse(u))
}

// Update 更新用户状态，管理员不能修改自己
// @Summary 更新用户
// @Tags 管理
// @Accept json
// @Produce json
// @Param user_id path string true "用户 ID"
// @Param body body UpdateUserRequest true "更新内容"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /admin/users/{user_id} [put]
func (h *UserHandler) Update(c *gin.Context) {
	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, codeInvalidParams, "参数错误")
		return
	}
	id := c.Param("user_id")
	if middleware.CurrentSession(c).UserID == id {
		response.Error(c, http.StatusBadRequest, codeSelfUpdate, "管理员不能更改自己的状态或角色")
		return
	}

	u, err := h.users.FindByID(id)
	if err != nil {
		writeError(c, err)
		return
	}
	if req.Name != nil {
		u.Name = strings.TrimSpace(*req.Name)
	}
	if req.IsAdmin != nil {
		u.IsAdmin = *req.IsAdmin
	}
	if req.IsActive != nil {
		u.IsActive = *req.IsActive
	}
	if err := h.users.Save(u); err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, userResponse(u))
}

// AssignRole 为用户添加 GEB 角色，已持有时直接返回
// @Summary 添加 GEB 角色
// @Tags 管理
// @Produce json
// @Param user_id path string true "用户 ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse
// @Router /admin/users/{user_id}/role [post]
func (h *UserHandler) AssignRole(c *gin.Context) {
	id := c.Param("user_id")
	u, err := h.users.FindByID(id)
	if err != nil {
		writeError(c, err)
		return
	}
	if u.HasRole(user.RestrictedRoleName) {
		response.Success(c, userResponse(u))
		return
	}
	if err := h.users.AssignRole(id, user.RestrictedRoleName); err != nil {
		writeError(c, err)
		return
	}
	if u, err = h.users.FindByID(id); err != nil {
		writeError(c, err)
		return
	}
	log.FromContext(c.Request.Context(), log.NewModuleLogger("http", "user")).
		Info("Role assigned", "user_id", id, "role", user.RestrictedRoleName)
	response.Success(c, userResponse(u))
}
