package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	errx "github.com/Chative-support-agent/server/internal/core/error"
	logx "github.com/Chative-support-agent/server/pkg/logger"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// RespondError maps err to its status and safe message.
func RespondError(c *gin.Context, err error) {
	status, message, code := errx.StatusOf(err)
	if status >= http.StatusInternalServerError {
		logx.Error().Err(err).Str("path", c.FullPath()).Int("status", status).Msg("Request failed")
	}
	c.AbortWithStatusJSON(status, ErrorEnvelope{Error: APIError{Message: message, Code: code}})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}
