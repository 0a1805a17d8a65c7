package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	apperrors "github.com/jwalitptl/trialdata-api/pkg/errors"
)

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	TraceID string `json:"trace_id,omitempty"`
}

// ErrorHandler collects handler errors, logs them with request context, and
// renders the first one if nothing was written yet.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		requestID := c.GetString(ContextRequestID)
		for _, e := range c.Errors {
			log.Error().
				Err(e.Err).
				Str("request_id", requestID).
				Str("path", c.Request.URL.Path).
				Str("method", c.Request.Method).
				Str("client_ip", c.ClientIP()).
				Msg("Request error")
		}

		if c.Writer.Written() {
			return
		}

		err := c.Errors[0].Err
		status := http.StatusInternalServerError
		message := "Internal server error"
		if appErr, ok := err.(*apperrors.AppError); ok {
			message = appErr.Message
			switch appErr.Code {
			case apperrors.ErrNotFound:
				status = http.StatusNotFound
			case apperrors.ErrBadRequest, apperrors.ErrMalformedDate:
				status = http.StatusBadRequest
			case apperrors.ErrUnauthorized:
				status = http.StatusUnauthorized
			case apperrors.ErrConflict, apperrors.ErrDuplicateAnchor:
				status = http.StatusConflict
			}
		}

		c.JSON(status, ErrorResponse{
			Code:    status,
			Message: message,
			TraceID: requestID,
		})
	}
}
