package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const requestIDHeader = "X-Request-ID"

type requestIDKey struct{}

// withCORS opens the API to browser dashboards and answers pre-flight
// requests itself.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+requestIDHeader)
		if req.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, req)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// withRequestID tags every request with an id, echoed in the response
// header and attached to the access log line.
func withRequestID(next http.Handler, logger *logrus.Entry) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		id := req.Header.Get(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)

		started := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, req.WithContext(context.WithValue(req.Context(), requestIDKey{}, id)))

		logger.WithFields(logrus.Fields{
			"request_id":  id,
			"method":      req.Method,
			"path":        req.URL.Path,
			"status":      rec.status,
			"duration_ms": time.Since(started).Milliseconds(),
		}).Info("HTTP request")
	})
}

func requestLogger(req *http.Request, logger *logrus.Entry) *logrus.Entry {
	if id, ok := req.Context().Value(requestIDKey{}).(string); ok {
		return logger.WithField("request_id", id)
	}
	return logger
}
