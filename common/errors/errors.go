package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yashrajoria/docstore-service/common/logger"
	"go.uber.org/zap"
)

// Error represents an application error. Only the message reaches the
// client, as {"error": message}.
type Error struct {
	Code    int    `json:"-"`
	Message string `json:"error"`
	Err     error  `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a new Error
func New(code int, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// BadRequest is a 400 carrying message.
func BadRequest(message string, err error) *Error {
	return New(http.StatusBadRequest, message, err)
}

// Unauthorized is a 401 with the standard message.
func Unauthorized(err error) *Error {
	return New(http.StatusUnauthorized, "Unauthorized", err)
}

// FromError returns err when it already is an *Error and a 500 otherwise.
// Services translate their own errors before attaching them to the context.
func FromError(err error) *Error {
	var appErr *Error
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return New(http.StatusInternalServerError, "Internal server error", err)
}

// ErrorMiddleware renders the last error a handler attached with c.Error
// and logs it with its status.
func ErrorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		appErr := FromError(c.Errors.Last().Err)

		fields := []zap.Field{
			zap.Int("status", appErr.Code),
			zap.String("error", appErr.Message),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
		}
		if appErr.Code >= http.StatusInternalServerError {
			logger.Error(c, "request failed", appErr.Err, fields...)
		} else {
			logger.Warn(c, "request rejected", fields...)
		}

		if !c.Writer.Written() {
			c.AbortWithStatusJSON(appErr.Code, appErr)
		}
	}
}
