package app

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Error is the JSON error body.
type Error struct {
	Code        string            `json:"code"`
	Message     string            `json:"message"`
	FieldErrors map[string]string `json:"field_errors,omitempty"`
}

// Envelope wraps an error response.
type Envelope struct {
	Error *Error `json:"error"`
}

const errorKey = "app_error"

// AbortError records an error for the Errors middleware and aborts the
// handler chain.
func AbortError(c *gin.Context, status int, code, message string, fields map[string]string) {
	c.Set(errorKey, &Error{Code: code, Message: message, FieldErrors: fields})
	c.AbortWithStatus(status)
}

// BadRequest aborts with 400 and per-field messages.
func BadRequest(c *gin.Context, fields map[string]string) {
	AbortError(c, http.StatusBadRequest, "invalid_request", "invalid request", fields)
}

// Internal aborts with 500, logging err without exposing it.
func Internal(c *gin.Context, err error) {
	log.Ctx(c.Request.Context()).Error().Err(err).Str("path", c.FullPath()).Msg("handler failed")
	AbortError(c, http.StatusInternalServerError, "internal", "internal error", nil)
}

// Errors renders errors recorded via AbortError as an Envelope.
func Errors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		v, ok := c.Get(errorKey)
		if !ok {
			return
		}
		e, ok := v.(*Error)
		if !ok {
			return
		}
		ev := log.Ctx(c.Request.Context()).Warn().Str("code", e.Code)
		for k, msg := range e.FieldErrors {
			ev = ev.Str("field_"+k, msg)
		}
		ev.Msg(e.Message)
		c.JSON(c.Writer.Status(), Envelope{Error: e})
	}
}
