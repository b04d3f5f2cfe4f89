package server

import (
	"net/http"
	"time"

	"github.com/zeusync/scenesync/internal/core/observability/log"
)

// withRequestLogging logs every request once the handler returns. For
// upgraded connections that is when the session ends.
func withRequestLogging(logger log.Log, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		logger.Debug("Request started",
			log.String("method", r.Method),
			log.String("path", r.URL.Path),
			log.String("remote_addr", r.RemoteAddr),
			log.String("user_agent", r.UserAgent()))

		next.ServeHTTP(w, r)

		logger.Debug("Request finished",
			log.String("path", r.URL.Path),
			log.String("remote_addr", r.RemoteAddr),
			log.Duration("duration", time.Since(start)))
	})
}
