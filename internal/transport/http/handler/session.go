package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tawarln-chat/internal/app"
	"tawarln-chat/internal/model"
	"tawarln-chat/internal/transport/http/middleware"
	"tawarln-chat/internal/transport/http/response"
)

type SessionHandler struct {
	sessionService *app.SessionService
}

type SaveSessionRequest struct {
	Title           string           `json:"title" binding:"max=256"`
	Messages        []model.ChatTurn `json:"messages"`
	Model           string           `json:"model"`
	ExpectedVersion *int64           `json:"expected_version"`
}

type ShareRequest struct {
	Shared *bool `json:"shared"`
}

func NewSessionHandler(sessionService *app.SessionService) *SessionHandler {
	return &SessionHandler{sessionService: sessionService}
}

func (h *SessionHandler) List(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	sessions, err := h.sessionService.List(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err, "list sessions failed")
		return
	}
	response.OK(c, gin.H{"sessions": sessions})
}

func (h *SessionHandler) Save(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	var req SaveSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}
	session, err := h.sessionService.Save(c.Request.Context(), app.SaveSessionInput{
		UserID:          userID,
		ID:              c.Param("id"),
		Title:           req.Title,
		Messages:        req.Messages,
		Model:           req.Model,
		ExpectedVersion: req.ExpectedVersion,
	})
	if err != nil {
		writeError(c, err, "save session failed")
		return
	}
	response.OK(c, session)
}

func (h *SessionHandler) Delete(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	if err := h.sessionService.Delete(c.Request.Context(), userID, c.Param("id")); err != nil {
		writeError(c, err, "delete session failed")
		return
	}
	response.OK(c, gin.H{"success": true})
}

func (h *SessionHandler) Share(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	var req ShareRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
			return
		}
	}
	shared := true
	if req.Shared != nil {
		shared = *req.Shared
	}
	id := c.Param("id")
	if err := h.sessionService.Share(c.Request.Context(), userID, id, shared); err != nil {
		writeError(c, err, "share session failed")
		return
	}
	response.OK(c, gin.H{"id": id, "shared": shared})
}

// GetShared is public.
func (h *SessionHandler) GetShared(c *gin.Context) {
	shared, err := h.sessionService.GetShared(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err, "load shared session failed")
		return
	}
	response.OK(c, shared)
}
