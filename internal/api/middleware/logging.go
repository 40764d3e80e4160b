package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"talento-local/internal/api/response"
	"talento-local/internal/common/errors"
	"talento-local/internal/common/logger"
	"talento-local/internal/common/metrics"

	"github.com/gorilla/mux"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	n, err := s.ResponseWriter.Write(b)
	s.bytes += n
	return n, err
}

// routeTemplate keeps metric labels bounded to the registered path templates.
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// AccessLog logs one line per request, records the request duration histogram
// and attaches a request-scoped logger to the context.
func AccessLog(log logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w}

			reqLog := log.With(map[string]interface{}{"requestId": RequestIDFromContext(r.Context())})
			next.ServeHTTP(rec, r.WithContext(logger.NewContext(r.Context(), reqLog)))

			if rec.status == 0 {
				rec.status = http.StatusOK
			}
			route := routeTemplate(r)
			elapsed := time.Since(start)
			metrics.HTTPRequestDuration.
				WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).
				Observe(elapsed.Seconds())

			fields := map[string]interface{}{
				"method":     r.Method,
				"path":       r.URL.Path,
				"route":      route,
				"status":     rec.status,
				"bytes":      rec.bytes,
				"durationMs": elapsed.Milliseconds(),
			}
			if actor, ok := ActorFromContext(r.Context()); ok {
				fields["userId"] = actor.UserID.String()
			}
			if rec.status >= http.StatusInternalServerError {
				reqLog.Warn("request completed", fields)
				return
			}
			reqLog.Info("request completed", fields)
		})
	}
}

// Recover turns a handler panic into a generic 500.
func Recover(log logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if p := recover(); p != nil {
					if p == http.ErrAbortHandler {
						panic(p)
					}
					log.Error("panic in handler", map[string]interface{}{
						"requestId": RequestIDFromContext(r.Context()),
						"path":      r.URL.Path,
						"panic":     fmt.Sprint(p),
						"stack":     string(debug.Stack()),
					})
					response.Error(w, errors.NewInternalError(fmt.Errorf("panic: %v", p)))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
