package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	return rr.Body.String()
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/api/roles/{id}")

	req := httptest.NewRequest(http.MethodGet, "/api/roles/r1", nil)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx)
	req = req.WithContext(ctx)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected status %d, got %d", http.StatusTeapot, rr.Code)
	}

	body := scrape(t, metrics)
	if !strings.Contains(body, `iam_http_requests_total{code="418",route="/api/roles/{id}"} 1`) {
		t.Fatalf("expected metrics to record request, got: %s", body)
	}
	if !strings.Contains(body, `iam_http_request_duration_seconds_bucket{route="/api/roles/{id}"`) {
		t.Fatalf("expected duration histogram to be present, got: %s", body)
	}
}

func TestObserveDecision(t *testing.T) {
	metrics := NewMetrics()
	metrics.ObserveDecision("single", "allowed")
	metrics.ObserveDecision("single", "allowed")
	metrics.ObserveDecision("all", "denied")

	body := scrape(t, metrics)
	if !strings.Contains(body, `iam_authz_decisions_total{mode="single",outcome="allowed"} 2`) {
		t.Fatalf("expected allowed decisions, got: %s", body)
	}
	if !strings.Contains(body, `iam_authz_decisions_total{mode="all",outcome="denied"} 1`) {
		t.Fatalf("expected denied decision, got: %s", body)
	}
}

func TestNilMetricsIsInert(t *testing.T) {
	var metrics *Metrics
	metrics.ObserveDecision("single", "allowed")
	metrics.ObserveCache("hit")

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	if metrics.Middleware(next) == nil {
		t.Fatal("expected passthrough handler")
	}
	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestObserveCache(t *testing.T) {
	metrics := NewMetrics()
	metrics.ObserveCache("miss")
	metrics.ObserveCache("hit")
	metrics.ObserveCache("hit")

	body := scrape(t, metrics)
	if !strings.Contains(body, `iam_permission_cache_total{result="hit"} 2`) {
		t.Fatalf("expected cache hits, got: %s", body)
	}
	if !strings.Contains(body, "go_goroutines") {
		t.Fatalf("expected runtime collectors, got: %s", body)
	}
}
