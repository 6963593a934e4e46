package middleware

import (
	"log/slog"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// AccessLogConfig configures the access log middleware.
type AccessLogConfig struct {
	// SkipPaths lists path prefixes that are not logged, such as health
	// probes and static assets.
	SkipPaths []string
}

// Logger returns a gin middleware that logs every request with the provided
// slog.Logger. See LoggerWithConfig.
func Logger(logger *slog.Logger) gin.HandlerFunc {
	return LoggerWithConfig(logger, AccessLogConfig{})
}

// LoggerWithConfig returns a gin middleware that logs each HTTP request: the
// method, path, matched route, status, response size, latency, client IP and
// whether htmx issued it.
//
// The log level follows the status code: Info below 400, Warn for 4xx and
// Error for 5xx. Context-aware logging lets the logger's context middleware
// attach request_id and session_id.
func LoggerWithConfig(logger *slog.Logger, cfg AccessLogConfig) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	skip := cfg.SkipPaths

	return func(c *gin.Context) {
		path := c.Request.URL.Path
		for _, prefix := range skip {
			if strings.HasPrefix(path, prefix) {
				c.Next()
				return
			}
		}

		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		attrs := []slog.Attr{
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.String("route", c.FullPath()),
			slog.Int("status", status),
			slog.Int("bytes", max(c.Writer.Size(), 0)),
			slog.Duration("latency", time.Since(start)),
			slog.String("client_ip", c.ClientIP()),
		}
		if c.GetHeader("HX-Request") == "true" {
			attrs = append(attrs, slog.Bool("htmx", true))
		}

		level := slog.LevelInfo
		switch {
		case status >= 500:
			level = slog.LevelError
		case status >= 400:
			level = slog.LevelWarn
		}
		logger.LogAttrs(c.Request.Context(), level, "request", attrs...)
	}
}
