// README: User registration and role management handlers.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"taxihub/internal/modules/ban"
	"taxihub/internal/modules/user"
)

type UserHandler struct {
	users *user.Service
	guard *ban.Guard
}

func NewUserHandler(users *user.Service, guard *ban.Guard) *UserHandler {
	return &UserHandler{users: users, guard: guard}
}

type registerReq struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
}

func (h *UserHandler) Register(c *gin.Context) {
	var req registerReq
	if err := c.ShouldBindJSON(&req); err != nil || req.ID <= 0 {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	u, err := h.users.Register(c.Request.Context(), req.ID, req.Username, req.FirstName)
	if err != nil {
		writeUserError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": u.ID, "role": u.Role})
}

func (h *UserHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	u, err := h.users.Get(c.Request.Context(), id)
	if err != nil {
		writeUserError(c, err)
		return
	}
	resp := gin.H{
		"id": u.ID, "username": u.Username, "first_name": u.FirstName,
		"role": u.Role, "available": u.Available,
	}
	if b, err := h.guard.Info(c.Request.Context(), id); err == nil && b != nil {
		resp["banned_until"] = b.BannedUntil
		resp["ban_reason"] = b.Reason
	}
	c.JSON(http.StatusOK, resp)
}
