package handler

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"tawarln-chat/internal/app"
	"tawarln-chat/internal/transport/http/response"
)

// writeError maps service errors to status codes. fallback is the message
// used for anything unexpected so internals never reach the client.
func writeError(c *gin.Context, err error, fallback string) {
	var limited *app.RateLimitedError
	switch {
	case errors.As(err, &limited):
		secs := int(math.Ceil(limited.RetryAfter.Seconds()))
		if secs < 1 {
			secs = 1
		}
		c.Header("Retry-After", strconv.Itoa(secs))
		response.Error(c, http.StatusTooManyRequests, response.CodeRateLimited, "too many requests")
	case errors.Is(err, app.ErrUnauthorized):
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, err.Error())
	case errors.Is(err, app.ErrForbidden):
		response.Error(c, http.StatusForbidden, response.CodeForbidden, err.Error())
	case errors.Is(err, app.ErrPayloadTooLarge):
		response.Error(c, http.StatusBadRequest, response.CodePayloadTooLarge, err.Error())
	case errors.Is(err, app.ErrInvalidInput),
		errors.Is(err, app.ErrNoKnowledgeInput),
		errors.Is(err, app.ErrNoChunks):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	case errors.Is(err, app.ErrUsernameExists):
		response.Error(c, http.StatusBadRequest, response.CodeUsernameExists, err.Error())
	case errors.Is(err, app.ErrEmailExists):
		response.Error(c, http.StatusBadRequest, response.CodeEmailExists, err.Error())
	case errors.Is(err, app.ErrInvalidCredential):
		response.Error(c, http.StatusUnauthorized, response.CodeInvalidCredentials, err.Error())
	case errors.Is(err, app.ErrUserNotFound):
		response.Error(c, http.StatusNotFound, response.CodeUserNotFound, err.Error())
	case errors.Is(err, app.ErrSessionNotFound):
		response.Error(c, http.StatusNotFound, response.CodeSessionNotFound, err.Error())
	case errors.Is(err, app.ErrSessionConflict):
		response.Error(c, http.StatusConflict, response.CodeSessionConflict, err.Error())
	case errors.Is(err, context.Canceled):
		// Client went away; nothing useful can be written.
		c.Status(499)
	default:
		_ = c.Error(err)
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, fallback)
	}
}
