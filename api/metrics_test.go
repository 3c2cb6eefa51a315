package api_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/request-engine/admission"
	"github.com/warp/request-engine/api"
)

func TestMetricsMiddleware_RecordsRoutePattern(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics, err := api.NewMetrics(api.MetricsOptions{Registerer: registry})
	require.NoError(t, err)

	router := chi.NewRouter()
	router.Use(metrics.Middleware)
	router.Get("/things/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/things/42", nil))
	require.Equal(t, http.StatusAccepted, rec.Code)

	labels := prometheus.Labels{"method": http.MethodGet, "route": "/things/{id}", "status": "202"}
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Requests.With(labels)))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.InFlight))
	assert.NotZero(t, testutil.CollectAndCount(metrics.Duration))
}

func TestMetrics_ReusesRegisteredCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()
	first, err := api.NewMetrics(api.MetricsOptions{Registerer: registry})
	require.NoError(t, err)
	second, err := api.NewMetrics(api.MetricsOptions{Registerer: registry})
	require.NoError(t, err)

	assert.Same(t, first.Requests, second.Requests)
	assert.Same(t, first.Outcomes, second.Outcomes)
}

func TestMetricsMiddleware_NilIsNoop(t *testing.T) {
	var metrics *api.Metrics
	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

// =============================================================================
// AUTH
// =============================================================================

type failingResolver struct{}

func (failingResolver) ResolveCaller(context.Context, admission.UserID) (*admission.Caller, error) {
	return nil, errors.New("db down")
}

func TestAuthenticator_ResolverFailureIs500(t *testing.T) {
	auth := &api.Authenticator{Secret: secret, Resolver: failingResolver{}}
	called := false
	handler := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	tok, err := api.SignToken(secret, "alice", time.Now(), time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.False(t, called)
}

func TestAuthenticator_AttachesCaller(t *testing.T) {
	caller := &admission.Caller{ID: "alice", IsActive: true, Role: admission.NewRole("employee")}
	auth := &api.Authenticator{Secret: secret, Resolver: staticResolver{caller}}

	var seen *admission.Caller
	handler := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = api.CallerFromContext(r.Context())
	}))

	tok, err := api.SignToken(secret, "alice", time.Now(), time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Same(t, caller, seen)
}

type staticResolver struct{ caller *admission.Caller }

func (s staticResolver) ResolveCaller(context.Context, admission.UserID) (*admission.Caller, error) {
	return s.caller, nil
}

func TestSignToken_EmptySecret(t *testing.T) {
	_, err := api.SignToken(nil, "alice", time.Now(), time.Hour)
	assert.Error(t, err)
}
