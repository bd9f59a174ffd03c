// internal/app/features/errors/logger.go
package errors

import (
	"net/http"

	"go.uber.org/zap"
)

// ErrorLogger pairs the JSON error writers with structured logging so
// handlers report a failure in one call. Internal details never reach the
// client; they go to the log with request context attached.
type ErrorLogger struct {
	log *zap.Logger
}

// NewErrorLogger creates an ErrorLogger on the app logger.
func NewErrorLogger(logger *zap.Logger) *ErrorLogger {
	return &ErrorLogger{log: logger}
}

// LogInternal logs err at error level and writes a generic 500.
func (e *ErrorLogger) LogInternal(w http.ResponseWriter, r *http.Request, msg string, err error) {
	e.log.Error(msg,
		zap.Error(err),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path))
	WriteError(w, http.StatusInternalServerError, "something went wrong")
}

// LogBadRequest logs err at warn level and writes a 400 with clientMsg.
func (e *ErrorLogger) LogBadRequest(w http.ResponseWriter, r *http.Request, msg string, err error, clientMsg string) {
	e.log.Warn(msg,
		zap.Error(err),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path))
	WriteError(w, http.StatusBadRequest, clientMsg)
}
