package api

import (
	"context"
	"net/http"
	"time"

	"talento-local/internal/api/middleware"
	"talento-local/internal/common/auth"
	"talento-local/internal/common/logger"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
)

// RouterOptions carries what the router needs beyond the handler itself.
type RouterOptions struct {
	Verifier           auth.Verifier
	Limiter            middleware.Limiter
	ApplyPerMinute     int
	RequestTimeout     time.Duration
	CORSAllowedOrigins []string
	Checks             map[string]func(ctx context.Context) error
}

// NewRouter wires every route behind request id, recovery, access log and CORS.
// Everything except the ops endpoints requires a bearer token.
func NewRouter(h *Handler, opts RouterOptions, log logger.Logger) http.Handler {
	r := mux.NewRouter()
	r.Use(middleware.RequestID, middleware.Recover(log), middleware.AccessLog(log))

	health := NewHealth(opts.Checks)
	r.HandleFunc("/health", health.Live).Methods(http.MethodGet)
	r.HandleFunc("/ready", health.Ready).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/").Subrouter()
	api.Use(middleware.Authenticate(opts.Verifier, log))
	if opts.RequestTimeout > 0 {
		api.Use(timeout(opts.RequestTimeout))
	}

	// Application endpoints
	apply := api.Path("/applications").Subrouter()
	apply.Use(middleware.RateLimit(opts.Limiter, middleware.ActorKey("ratelimit:apply"), opts.ApplyPerMinute, time.Minute))
	apply.Methods(http.MethodPost).HandlerFunc(h.SubmitApplication)

	api.HandleFunc("/applications/{id}", h.GetApplication).Methods(http.MethodGet)
	api.HandleFunc("/applications/{id}/accept", h.AcceptApplication).Methods(http.MethodPost)
	api.HandleFunc("/applications/{id}/reject", h.RejectApplication).Methods(http.MethodPost)
	api.HandleFunc("/applications/{id}/cancel", h.CancelApplication).Methods(http.MethodPost)

	// Job endpoints
	api.HandleFunc("/jobs", h.CreateJob).Methods(http.MethodPost)
	api.HandleFunc("/jobs/search", h.SearchJobs).Methods(http.MethodGet)
	api.HandleFunc("/jobs/{id}", h.GetJob).Methods(http.MethodGet)
	api.HandleFunc("/jobs/{id}", h.DeleteJob).Methods(http.MethodDelete)
	api.HandleFunc("/jobs/{id}/applications", h.ListJobApplications).Methods(http.MethodGet)
	api.HandleFunc("/jobs/{id}/status", h.UpdateJobStatus).Methods(http.MethodPatch)

	c := cors.New(cors.Options{
		AllowedOrigins:   opts.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders:   []string{middleware.RequestIDHeader},
		AllowCredentials: true,
	})
	return c.Handler(r)
}

func timeout(d time.Duration) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
