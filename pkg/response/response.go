package response

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/seminar-hub/backend/internal/apperr"
)

// Body is the standard API response envelope.
type Body struct {
	Success bool           `json:"success"`
	Data    interface{}    `json:"data,omitempty"`
	Message string         `json:"message,omitempty"`
	Issues  []apperr.Issue `json:"issues,omitempty"`
}

// OK sends a 200 JSON response with data.
func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Body{Success: true, Data: data})
}

// Created sends a 201 JSON response with data.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Body{Success: true, Data: data})
}

// NoContent sends 204.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// BadRequest sends 400 with error message.
func BadRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, Body{Success: false, Message: msg})
}

// Unauthorized sends 401.
func Unauthorized(c *gin.Context, msg string) {
	c.JSON(http.StatusUnauthorized, Body{Success: false, Message: msg})
}

// Forbidden sends 403.
func Forbidden(c *gin.Context, msg string) {
	c.JSON(http.StatusForbidden, Body{Success: false, Message: msg})
}

// NotFound sends 404.
func NotFound(c *gin.Context, msg string) {
	c.JSON(http.StatusNotFound, Body{Success: false, Message: msg})
}

// Conflict sends 409.
func Conflict(c *gin.Context, msg string) {
	c.JSON(http.StatusConflict, Body{Success: false, Message: msg})
}

// TooManyRequests sends 429 with a Retry-After header in whole seconds (minimum 1).
func TooManyRequests(c *gin.Context, retryAfterSeconds float64) {
	secs := int(math.Ceil(retryAfterSeconds))
	if secs < 1 {
		secs = 1
	}
	c.Header("Retry-After", strconv.Itoa(secs))
	c.JSON(http.StatusTooManyRequests, Body{Success: false, Message: "too many requests, retry later"})
}

// ServiceUnavailable sends 503.
func ServiceUnavailable(c *gin.Context, msg string) {
	c.JSON(http.StatusServiceUnavailable, Body{Success: false, Message: msg})
}

// Internal sends 500.
func Internal(c *gin.Context, msg string) {
	c.JSON(http.StatusInternalServerError, Body{Success: false, Message: msg})
}

// Error maps a service error to its HTTP status. Untyped errors become a bare 500.
func Error(c *gin.Context, err error) {
	var e *apperr.Error
	if !errors.As(err, &e) {
		Internal(c, "internal server error")
		return
	}
	switch e.Kind {
	case apperr.KindValidation:
		c.JSON(http.StatusBadRequest, Body{Success: false, Message: e.Message, Issues: e.Issues})
	case apperr.KindUnauthorized:
		Unauthorized(c, e.Message)
	case apperr.KindForbidden:
		Forbidden(c, e.Message)
	case apperr.KindNotFound:
		NotFound(c, e.Message)
	case apperr.KindConflict, apperr.KindInvalidTransition:
		Conflict(c, e.Message)
	case apperr.KindRateLimited:
		TooManyRequests(c, e.RetryAfter.Seconds())
	case apperr.KindExternal:
		c.JSON(http.StatusBadGateway, Body{Success: false, Message: e.Message})
	case apperr.KindUnavailable:
		ServiceUnavailable(c, e.Message)
	default:
		Internal(c, "internal server error")
	}
}
