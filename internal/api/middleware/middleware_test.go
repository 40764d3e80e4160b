package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"talento-local/internal/common/auth"
	"talento-local/internal/common/errors"
	"talento-local/internal/common/logger"
	"talento-local/internal/common/metrics"
	"talento-local/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeVerifier struct {
	tokens map[string]*auth.Identity
	err    error
}

func (f *fakeVerifier) Verify(ctx context.Context, token string) (*auth.Identity, error) {
	if f.err != nil {
		return nil, f.err
	}
	if id, ok := f.tokens[token]; ok {
		return id, nil
	}
	return nil, errors.NewUnauthorizedError("token is expired, revoked or invalid")
}

func echoActor(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		w.WriteHeader(http.StatusTeapot)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(actor.UserID.String() + "|" + string(actor.Role)))
}

// ==========================
// Authentication
// ==========================

func TestAuthenticate(t *testing.T) {
	userID := uuid.New()
	verifier := &fakeVerifier{tokens: map[string]*auth.Identity{
		"good": {UserID: userID, Role: models.RoleWorker},
	}}
	h := Authenticate(verifier, logger.NewTestLogger(t))(http.HandlerFunc(echoActor))

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic Zm9vOmJhcg==", http.StatusUnauthorized},
		{"empty token", "Bearer  ", http.StatusUnauthorized},
		{"unknown token", "Bearer nope", http.StatusUnauthorized},
		{"valid token", "Bearer good", http.StatusOK},
		{"lowercase scheme", "bearer good", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/jobs/1", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, userID.String()+"|worker", rec.Body.String())
			}
		})
	}
}

func TestAuthenticate_VerifierOutage(t *testing.T) {
	verifier := &fakeVerifier{err: errors.NewExternalServiceError("keycloak", context.DeadlineExceeded)}
	h := Authenticate(verifier, logger.NewTestLogger(t))(http.HandlerFunc(echoActor))

	req := httptest.NewRequest(http.MethodGet, "/jobs/1", nil)
	req.Header.Set("Authorization", "Bearer good")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "keycloak")
}

// ==========================
// Request id, access log, recovery
// ==========================

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "req-42", seen)
	assert.Equal(t, "req-42", rec.Header().Get(RequestIDHeader))
}

func TestRecover(t *testing.T) {
	r := mux.NewRouter()
	r.Use(Recover(logger.NewTestLogger(t)))
	r.HandleFunc("/boom", func(w http.ResponseWriter, r *http.Request) {
		panic("nil map write")
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "nil map")
}

func TestAccessLog_RecordsRouteTemplate(t *testing.T) {
	var route string
	r := mux.NewRouter()
	r.Use(AccessLog(logger.NewTestLogger(t)))
	r.HandleFunc("/jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
		route = routeTemplate(r)
		w.WriteHeader(http.StatusNotFound)
	}).Methods(http.MethodGet)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/"+uuid.NewString(), nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "/jobs/{id}", route)
	assert.GreaterOrEqual(t, testutil.CollectAndCount(metrics.HTTPRequestDuration), 1)
}

// ==========================
// Rate limiting
// ==========================

func newLimitedHandler(t *testing.T, limiter Limiter, limit int) http.Handler {
	t.Helper()
	r := mux.NewRouter()
	sub := r.PathPrefix("/").Subrouter()
	sub.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			id, _ := uuid.Parse(req.Header.Get("X-User"))
			next.ServeHTTP(w, req.WithContext(WithActor(req.Context(), models.Actor{UserID: id, Role: models.RoleWorker})))
		})
	})
	sub.Use(RateLimit(limiter, ActorKey("ratelimit:apply"), limit, time.Minute))
	sub.HandleFunc("/applications", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}).Methods(http.MethodPost)
	return r
}

func post(h http.Handler, user uuid.UUID) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/applications", nil)
	req.Header.Set("X-User", user.String())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimit_PerActorWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	h := newLimitedHandler(t, NewRedisLimiter(client, logger.NewTestLogger(t)), 2)
	worker, other := uuid.New(), uuid.New()

	before := testutil.ToFloat64(metrics.RateLimitRejections.WithLabelValues("/applications"))

	assert.Equal(t, http.StatusCreated, post(h, worker).Code)
	assert.Equal(t, http.StatusCreated, post(h, worker).Code)
	limited := post(h, worker)
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.Equal(t, "60", limited.Header().Get("Retry-After"))
	assert.Equal(t, http.StatusCreated, post(h, other).Code)

	assert.Equal(t, before+1, testutil.ToFloat64(metrics.RateLimitRejections.WithLabelValues("/applications")))

	mr.FastForward(time.Minute + time.Second)
	assert.Equal(t, http.StatusCreated, post(h, worker).Code)
}

func TestRateLimit_FailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	h := newLimitedHandler(t, NewRedisLimiter(client, logger.NewTestLogger(t)), 1)
	worker := uuid.New()

	assert.Equal(t, http.StatusCreated, post(h, worker).Code)
	assert.Equal(t, http.StatusCreated, post(h, worker).Code)
}

func TestRedisLimiter_NilIsPermissive(t *testing.T) {
	var l *RedisLimiter
	assert.True(t, l.Allow(context.Background(), "k", 1, time.Minute))
}
