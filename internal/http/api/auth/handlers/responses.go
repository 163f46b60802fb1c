package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/knowva/knowva-server/internal/auth"
)

// ContextUserIDKey is the gin context key holding the authenticated user id.
const ContextUserIDKey = "userID"

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error     string `json:"error"`
	Details   string `json:"details,omitempty"`
	Timestamp string `json:"timestamp"`
}

// SuccessResponse is the body of message-only success replies.
type SuccessResponse struct {
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// NewErrorResponse builds an ErrorResponse stamped with the current time.
func NewErrorResponse(message, details string) ErrorResponse {
	return ErrorResponse{
		Error:     message,
		Details:   details,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
}

// NewSuccessResponse builds a SuccessResponse stamped with the current time.
func NewSuccessResponse(message string) SuccessResponse {
	return SuccessResponse{
		Message:   message,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
}

// respondError writes the uniform error body.
func respondError(c *gin.Context, status int, message, details string) {
	c.JSON(status, NewErrorResponse(message, details))
}

// respondServiceError maps service error types to HTTP statuses. Anything
// unclassified is logged and answered with an opaque 500.
func respondServiceError(c *gin.Context, err error) {
	var validationErr *auth.ValidationError
	var conflictErr *auth.ConflictError
	var unauthorizedErr *auth.UnauthorizedError
	var notFoundErr *auth.NotFoundError

	switch {
	case errors.As(err, &validationErr):
		respondError(c, http.StatusBadRequest, validationErr.Message, validationErr.Details)
	case errors.As(err, &conflictErr):
		respondError(c, http.StatusConflict, conflictErr.Error(), "")
	case errors.As(err, &unauthorizedErr):
		respondError(c, http.StatusUnauthorized, unauthorizedErr.Message, "")
	case errors.As(err, &notFoundErr):
		respondError(c, http.StatusNotFound, notFoundErr.Message, "")
	default:
		log.WithError(err).Error("auth handler: unhandled error")
		respondError(c, http.StatusInternalServerError, "Internal server error", "")
	}
}
