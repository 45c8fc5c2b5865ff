package httpadapter

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/candidate-rag/internal/core/domain"
)

const (
	requestIDHeader    = "X-Request-Id"
	maxRequestIDLength = 128
)

// requestTrace is shared by the middleware chain and the handlers of one
// request. Handlers fill in the run outcome so the access log line carries it.
type requestTrace struct {
	id       string
	runID    string
	decision domain.Decision
	cacheHit bool
}

type requestTraceKey struct{}

func traceFromContext(ctx context.Context) *requestTrace {
	if ctx == nil {
		return nil
	}
	trace, _ := ctx.Value(requestTraceKey{}).(*requestTrace)
	return trace
}

func requestIDFromContext(ctx context.Context) string {
	if trace := traceFromContext(ctx); trace != nil {
		return trace.id
	}
	return ""
}

// noteQueryResult attaches the pipeline outcome to the current request trace.
func noteQueryResult(ctx context.Context, result *domain.QueryResult) {
	trace := traceFromContext(ctx)
	if trace == nil || result == nil {
		return
	}
	trace.runID = result.RunID
	trace.decision = result.Decision
	trace.cacheHit = result.CacheHit
}

// sanitizeRequestID accepts caller supplied ids made of printable ASCII
// without spaces; anything else is replaced.
func sanitizeRequestID(raw string) string {
	id := strings.TrimSpace(raw)
	if id == "" || len(id) > maxRequestIDLength {
		return ""
	}
	for i := 0; i < len(id); i++ {
		if id[i] <= ' ' || id[i] > '~' {
			return ""
		}
	}
	return id
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := sanitizeRequestID(r.Header.Get(requestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)

		ctx := context.WithValue(r.Context(), requestTraceKey{}, &requestTrace{id: id})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func accessLogMiddleware(next http.Handler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", float64(time.Since(started).Microseconds()) / 1000.0,
			"bytes", rec.written,
			"remote_addr", clientHost(r.RemoteAddr),
		}
		if trace := traceFromContext(r.Context()); trace != nil {
			attrs = append(attrs, "request_id", trace.id)
			if trace.runID != "" {
				attrs = append(attrs,
					"run_id", trace.runID,
					"decision", string(trace.decision),
					"cache_hit", trace.cacheHit,
				)
			}
		}

		level := slog.LevelInfo
		switch {
		case rec.status >= http.StatusInternalServerError:
			level = slog.LevelError
		case rec.status >= http.StatusBadRequest:
			level = slog.LevelWarn
		}
		logger.Log(r.Context(), level, "http_request", attrs...)
	})
}

func clientHost(remoteAddr string) string {
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}

type responseRecorder struct {
	http.ResponseWriter
	status      int
	written     int
	wroteHeader bool
}

func (w *responseRecorder) WriteHeader(status int) {
	if !w.wroteHeader {
		w.status = status
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *responseRecorder) Write(b []byte) (int, error) {
	w.wroteHeader = true
	n, err := w.ResponseWriter.Write(b)
	w.written += n
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *responseRecorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
