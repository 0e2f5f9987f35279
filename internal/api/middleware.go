package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"hackcbs/vectorgate/internal/orchestrator"
)

// logAttrsKey holds extra request-log attributes set by handlers.
const logAttrsKey = "vectorgate.log_attrs"

// probePaths are polled by load balancers and kubelets. They are not traced
// and their request lines are logged at debug level.
var probePaths = map[string]bool{
	"/health":      true,
	"/health/deep": true,
	"/ready":       true,
}

func isProbe(r *http.Request) bool {
	return probePaths[r.URL.Path]
}

// withLogAttrs appends key/value pairs to the request log line emitted by
// RequestLogger for this request.
func withLogAttrs(c *gin.Context, args ...any) {
	prev, _ := c.Get(logAttrsKey)
	attrs, _ := prev.([]any)
	c.Set(logAttrsKey, append(attrs, args...))
}

// Recovery turns a handler panic into a 500 with the same body shape as a
// failed bootstrap, and logs the stack against the request's trace.
func Recovery(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			logger.ErrorContext(c.Request.Context(), "handler panicked",
				"panic", fmt.Sprint(r),
				"method", c.Request.Method,
				"route", c.FullPath(),
				"stack", string(debug.Stack()),
			)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"status": orchestrator.StatusError,
				"error":  "internal server error",
			})
		}()
		c.Next()
	}
}

// Tracing starts a server span per request via otelgin, skipping probe
// routes so health polling does not flood the trace backend.
func Tracing(serviceName string) gin.HandlerFunc {
	return otelgin.Middleware(serviceName,
		otelgin.WithFilter(func(r *http.Request) bool { return !isProbe(r) }),
	)
}

// RequestLogger emits one line per request. Probe routes log at debug,
// server errors at warn, everything else at info. Attributes added with
// withLogAttrs (run_id, index) are appended.
func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		level := slog.LevelInfo
		switch {
		case isProbe(c.Request):
			level = slog.LevelDebug
		case status >= http.StatusInternalServerError:
			level = slog.LevelWarn
		}

		args := []any{
			"method", c.Request.Method,
			"route", c.FullPath(),
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
		}
		if extra, ok := c.Get(logAttrsKey); ok {
			if attrs, ok := extra.([]any); ok {
				args = append(args, attrs...)
			}
		}
		logger.Log(c.Request.Context(), level, "request", args...)
	}
}
