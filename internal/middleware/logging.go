// Package middleware contains HTTP middleware functions.
//
// WHAT IS MIDDLEWARE?
// Middleware wraps an HTTP handler to add cross-cutting behaviour (request
// IDs, logging, access records) without modifying the handler itself:
//
//	func MyMiddleware(next http.Handler) http.Handler {
//	    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
//	        // before
//	        next.ServeHTTP(w, r)
//	        // after
//	    })
//	}
package middleware

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/xid"

	"github.com/sakif/snippet-store/internal/model"
)

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

type ctxKey int

const requestIDKey ctxKey = iota

// RequestID gives every request an ID: the caller's X-Request-ID when it
// sent a sane one, otherwise a fresh xid. The ID is echoed in the response
// and stored in the context.
//
// WHY xid?
// xids are 20 characters, sort by creation time and need no coordination,
// so access-log rows for one time window cluster together.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(RequestIDHeader))
		if id == "" || len(id) > 64 {
			id = xid.New().String()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

// GetRequestID returns the ID RequestID stored, or "".
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// status is the code the handler sent. A handler that never calls
// WriteHeader (or writes nothing at all) answered 200.
func status(ww chimw.WrapResponseWriter) int {
	if code := ww.Status(); code != 0 {
		return code
	}
	return http.StatusOK
}

// Recorder stores one access-log entry. service.AccessLogService satisfies
// it.
type Recorder interface {
	Record(ctx context.Context, l *model.AccessLog)
}

// Logger returns middleware that logs each request with slog and, when
// recorder is not nil, stores it as an access-log entry.
//
// The entry is written after the response, on a context detached from the
// request's, so a client hanging up does not cancel the insert.
func Logger(logger *slog.Logger, recorder Recorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			// http.ResponseWriter does not expose the status code once it is
			// written; chi's wrapper records it along with the body size.
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			elapsed := time.Since(start)
			code := status(ww)
			logger.Info("request completed",
				slog.String("request_id", GetRequestID(r.Context())),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", code),
				slog.Duration("duration", elapsed),
				slog.Int("bytes", ww.BytesWritten()),
			)

			if recorder == nil {
				return
			}
			entry := &model.AccessLog{
				RequestID: GetRequestID(r.Context()),
				Method:    r.Method,
				Path:      r.URL.Path,
				Status:    int32(code),
				Duration:  elapsed,
				Bytes:     int64(ww.BytesWritten()),
				RemoteIP:  remoteIP(r),
				UserAgent: r.UserAgent(),
				CreatedAt: start,
			}
			if id, err := uuid.Parse(r.Header.Get("X-User-ID")); err == nil {
				entry.UserID = &id
			}
			recorder.Record(context.WithoutCancel(r.Context()), entry)
		})
	}
}

// remoteIP strips the port from RemoteAddr. chi's RealIP middleware has
// already replaced RemoteAddr with the forwarded address when there is one.
func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
