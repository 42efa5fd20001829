package httpserver

import (
	"context"
	"errors"
	"net/http"

	"cedar-commerce/internal/correlation"
	"cedar-commerce/internal/domain"
	"github.com/gin-gonic/gin"
)

// retryAfterSeconds is advertised on 503 responses.
const retryAfterSeconds = "5"

type errorBody struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	CorrelationID string `json:"correlationId,omitempty"`
}

func abortJSON(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, errorBody{
		Error:         code,
		Message:       msg,
		CorrelationID: correlation.FromContext(c.Request.Context()),
	})
}

// writeError is the single place domain errors become HTTP statuses.
func writeError(c *gin.Context, err error) {
	status, code := classify(err)
	msg := err.Error()
	var de *domain.Error
	if errors.As(err, &de) && de.Msg != "" {
		msg = de.Msg
	}
	switch status {
	case http.StatusServiceUnavailable:
		c.Header("Retry-After", retryAfterSeconds)
	case http.StatusInternalServerError:
		msg = "internal error"
	}
	abortJSON(c, status, code, msg)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, domain.ErrInvalidState):
		return http.StatusConflict, "invalid_state"
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, domain.ErrAlreadyExists):
		return http.StatusConflict, "conflict"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrTransient), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "temporarily_unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
