package server

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"meeting-insights-go/internal/logger"
)

const logKey = "reqLog"

// requestLogger tags every request with a request id and logs its outcome.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := logger.RequestID(c.Request)
		c.Request.Header.Set("X-Request-ID", id)
		c.Header("X-Request-ID", id)
		entry := s.log.WithRequest(c.Request)
		c.Set(logKey, entry)

		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		s.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()

		e := entry.WithFields(logrus.Fields{
			"status":      status,
			"duration_ms": time.Since(start).Milliseconds(),
		})
		switch {
		case status >= 500:
			e.Warn("request failed")
		case route == "/metrics" || route == "/healthz":
			e.Debug("request completed")
		default:
			e.Info("request completed")
		}
	}
}

func reqLog(c *gin.Context) *logrus.Entry {
	if v, ok := c.Get(logKey); ok {
		if e, ok := v.(*logrus.Entry); ok {
			return e
		}
	}
	return logger.New().WithRequest(c.Request)
}
