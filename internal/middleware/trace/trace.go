// Package trace tags every request with an id and logs its completion.
package trace

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	applog "dailyaed/internal/log"
)

type ContextKey string

const (
	RequestIDKey ContextKey = "request_id"

	// HeaderRequestID is echoed back on every response.
	HeaderRequestID = "X-Request-ID"

	maxRequestIDLen = 64
)

type Middleware struct {
	clientIP func(*http.Request) string
	logger   *applog.Logger
	access   *applog.StructuredLogger
}

// NewMiddleware builds the tracer. clientIP may be nil.
func NewMiddleware(logger *applog.Logger, clientIP func(*http.Request) string) *Middleware {
	logger = logger.WithComponent(applog.ComponentHTTP)
	return &Middleware{
		clientIP: clientIP,
		logger:   logger,
		access:   applog.NewStructuredLogger(logger),
	}
}

// Handler assigns the request id, stores a logger carrying it with
// applog.NewContext, and writes one access entry when next returns.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		id := incomingRequestID(r)
		if id == "" {
			id = GenerateRequestID()
		}
		w.Header().Set(HeaderRequestID, id)

		ctx := context.WithValue(r.Context(), RequestIDKey, id)
		ctx = applog.NewContext(ctx, m.logger.With(applog.FieldRequestID, id))
		r = r.WithContext(ctx)

		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		var ip string
		if m.clientIP != nil {
			ip = m.clientIP(r)
		}
		m.access.LogHTTPEnd(ctx, r, rw.status, time.Since(start).Milliseconds(), ip)
	})
}

// incomingRequestID accepts a caller supplied id when it is short and
// printable.
func incomingRequestID(r *http.Request) string {
	id := r.Header.Get(HeaderRequestID)
	if id == "" || len(id) > maxRequestIDLen {
		return ""
	}
	for _, c := range id {
		if c < 0x21 || c > 0x7e {
			return ""
		}
	}
	return id
}

// statusRecorder remembers the first status written.
type statusRecorder struct {
	http.ResponseWriter
	status  int
	written bool
}

func (rw *statusRecorder) WriteHeader(code int) {
	if !rw.written {
		rw.status = code
		rw.written = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	rw.written = true
	return rw.ResponseWriter.Write(b)
}

func GenerateRequestID() string {
	return "req_" + uuid.NewString()
}

// GetRequestID returns the id Handler stored in ctx, or "".
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}
