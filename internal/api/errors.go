package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pathakanu/remindbot/internal/schedule"
	"github.com/pathakanu/remindbot/internal/store"
)

// Stable error codes carried in every error body.
const (
	CodeNotFound        = "not_found"
	CodeForbidden       = "forbidden"
	CodeMalformedRule   = "malformed_recurrence_rule"
	CodeInvalidSchedule = "invalid_schedule"
	CodeNoOccurrence    = "no_occurrence"
	CodeValidation      = "validation_error"
	CodeConflict        = "conflict"
	CodeInternal        = "internal"
)

// ErrorBody is the JSON shape of every failed response.
type ErrorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// classify maps an error to its status and code. The malformed-rule check
// comes first because such errors also match ErrInvalidSchedule.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, store.ErrForbidden):
		return http.StatusForbidden, CodeForbidden
	case errors.Is(err, schedule.ErrMalformedRule):
		return http.StatusBadRequest, CodeMalformedRule
	case errors.Is(err, store.ErrInvalidSchedule):
		return http.StatusBadRequest, CodeInvalidSchedule
	case errors.Is(err, schedule.ErrNoOccurrence):
		return http.StatusUnprocessableEntity, CodeNoOccurrence
	case errors.Is(err, store.ErrValidation):
		return http.StatusBadRequest, CodeValidation
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict, CodeConflict
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

func (s *Server) writeError(c *gin.Context, err error) {
	status, code := classify(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		s.log.Printf("api: %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		message = "internal error"
	}
	c.AbortWithStatusJSON(status, ErrorBody{Error: message, Code: code})
}

func (s *Server) badRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorBody{Error: message, Code: CodeValidation})
}
