package logging

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// RequestIDHeader is read from incoming requests and echoed on responses.
const RequestIDHeader = "X-Request-Id"

const skipKey = "__tlumach_skip_request_logging__"

// GinLogger logs one line per request through logger and propagates the
// request ID into the request context.
func GinLogger(logger log.FieldLogger) gin.HandlerFunc {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		requestID := c.Request.Header.Get(RequestIDHeader)
		if strings.TrimSpace(requestID) == "" {
			requestID = NewRequestID()
		}
		c.Writer.Header().Set(RequestIDHeader, requestID)
		c.Request = c.Request.WithContext(WithRequestID(c.Request.Context(), requestID))

		c.Next()

		if skip, _ := c.Get(skipKey); skip == true {
			return
		}

		latency := time.Since(start).Truncate(time.Millisecond)
		status := c.Writer.Status()
		line := fmt.Sprintf("%3d | %10v | %-7s %s", status, latency, c.Request.Method, path)
		if msg := c.Errors.ByType(gin.ErrorTypePrivate).String(); msg != "" {
			line += " | " + msg
		}

		entry := logger.WithFields(log.Fields{
			"status":     status,
			"latency_ms": latency.Milliseconds(),
			"client_ip":  c.ClientIP(),
			"method":     c.Request.Method,
			"path":       path,
			"request_id": requestID,
		})
		switch {
		case status >= http.StatusInternalServerError:
			entry.Error(line)
		case status >= http.StatusBadRequest:
			entry.Warn(line)
		default:
			entry.Info(line)
		}
	}
}

// GinRecovery turns a panic into a 500 and logs the stack.
func GinRecovery(logger log.FieldLogger) gin.HandlerFunc {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.WithFields(log.Fields{
			"panic": recovered,
			"stack": string(debug.Stack()),
			"path":  c.Request.URL.Path,
		}).Error("recovered from panic")
		c.AbortWithStatus(http.StatusInternalServerError)
	})
}

// SkipRequestLogging suppresses the GinLogger line for this request.
func SkipRequestLogging(c *gin.Context) {
	c.Set(skipKey, true)
}
