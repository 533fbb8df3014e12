package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tawarln-chat/internal/app"
	"tawarln-chat/internal/model"
	"tawarln-chat/internal/stream"
	"tawarln-chat/internal/transport/http/middleware"
	"tawarln-chat/internal/transport/http/response"
)

type ChatHandler struct {
	chatService *app.ChatService
	catalog     *app.ModelCatalog
}

type ChatRequest struct {
	Messages     []model.ChatTurn `json:"messages"`
	Model        string           `json:"model"`
	SystemPrompt string           `json:"systemPrompt"`
	Temperature  *float64         `json:"temperature"`
	WebSearch    bool             `json:"webSearch"`
	SessionID    string           `json:"sessionId" binding:"max=64"`
	Title        string           `json:"title" binding:"max=256"`
}

func NewChatHandler(chatService *app.ChatService, catalog *app.ModelCatalog) *ChatHandler {
	return &ChatHandler{chatService: chatService, catalog: catalog}
}

// Chat streams a completion. Every rejection happens before the first byte
// of the body is written.
func (h *ChatHandler) Chat(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	ctx := c.Request.Context()
	prepared, err := h.chatService.Prepare(ctx, app.ChatInput{
		Caller:       app.Caller{UserID: userID, Role: middleware.Role(c)},
		Turns:        req.Messages,
		Model:        req.Model,
		SystemPrompt: req.SystemPrompt,
		Temperature:  req.Temperature,
		WebSearch:    req.WebSearch,
		SessionID:    req.SessionID,
		Title:        req.Title,
	})
	if err != nil {
		writeError(c, err, "chat failed")
		return
	}
	defer prepared.Close()

	em := stream.NewEmitter(c.Writer, c.GetHeader("Accept"))
	out, err := h.chatService.Stream(ctx, prepared, em)
	if err != nil {
		writeError(c, err, "chat failed")
		return
	}
	if out.State == stream.StateErrored {
		if _, plain := em.(*stream.TextEmitter); plain {
			// Plain text has no error frame. Dropping the connection keeps a
			// failed answer from reading as a complete one.
			panic(http.ErrAbortHandler)
		}
	}
}

func (h *ChatHandler) Models(c *gin.Context) {
	response.OK(c, gin.H{
		"models":  h.catalog.List(),
		"default": h.catalog.Default(),
	})
}
