package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/clinic-api/pkg/logger"
)

// Logger stores a request scoped logger in the request context and writes one
// access line per request. Request bodies are not logged: they carry OTP codes,
// passcodes and patient details.
func Logger(base *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		reqLog := base.With("request_id", c.GetString(ContextRequestID))
		c.Request = c.Request.WithContext(reqLog.NewContext(c.Request.Context()))

		c.Next()

		statusCode := c.Writer.Status()

		var event *zerolog.Event
		switch {
		case statusCode >= 500:
			event = reqLog.ZL.Error()
		case statusCode >= 400:
			event = reqLog.ZL.Warn()
		default:
			event = reqLog.ZL.Info()
		}

		if len(c.Errors) > 0 {
			event = event.Str("errors", c.Errors.String())
		}

		event.
			Str("method", c.Request.Method).
			Str("path", path).
			Str("route", c.FullPath()).
			Int("status", statusCode).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Str("user_agent", c.Request.UserAgent()).
			Msg("request processed")
	}
}
