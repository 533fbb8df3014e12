package handler

import (
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"tawarln-chat/internal/app"
	"tawarln-chat/internal/pkg/pdfextract"
	"tawarln-chat/internal/transport/http/middleware"
	"tawarln-chat/internal/transport/http/response"
)

type KnowledgeHandler struct {
	knowledgeService *app.KnowledgeService
}

func NewKnowledgeHandler(knowledgeService *app.KnowledgeService) *KnowledgeHandler {
	return &KnowledgeHandler{knowledgeService: knowledgeService}
}

// Add accepts multipart form data with either a PDF under "file" or a
// "text" note with a "title".
func (h *KnowledgeHandler) Add(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	input := app.IngestInput{
		Caller: app.Caller{UserID: userID, Role: middleware.Role(c)},
		Text:   c.PostForm("text"),
		Title:  c.PostForm("title"),
	}

	if fh, err := c.FormFile("file"); err == nil {
		if fh.Size > pdfextract.MaxSize {
			response.Error(c, http.StatusBadRequest, response.CodePayloadTooLarge, "file exceeds 10 MiB")
			return
		}
		if !strings.EqualFold(filepath.Ext(fh.Filename), ".pdf") && fh.Header.Get("Content-Type") != "application/pdf" {
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "only PDF files are supported")
			return
		}
		f, err := fh.Open()
		if err != nil {
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "read uploaded file failed")
			return
		}
		defer f.Close()
		input.PDF = f
		input.Title = fh.Filename
	}

	result, err := h.knowledgeService.Ingest(c.Request.Context(), input)
	if err != nil {
		writeError(c, err, "add knowledge failed")
		return
	}
	response.OK(c, gin.H{"success": true, "chunks": result.Chunks, "source": result.Source})
}
