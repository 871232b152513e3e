package obs

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveCountsOutcomes(t *testing.T) {
	m := NewMetrics()
	m.Observe(context.Background(), "sync", true, 20*time.Millisecond)
	m.Observe(context.Background(), "sync", false, 5*time.Millisecond)
	m.Observe(context.Background(), "sync", true, time.Millisecond)

	if got := testutil.ToFloat64(m.operations.WithLabelValues("sync", "success")); got != 2 {
		t.Fatalf("expected 2 successes, got %v", got)
	}
	if got := testutil.ToFloat64(m.operations.WithLabelValues("sync", "error")); got != 1 {
		t.Fatalf("expected 1 error, got %v", got)
	}
	if n := testutil.CollectAndCount(m.operationDuration); n != 1 {
		t.Fatalf("expected one duration series, got %d", n)
	}
}

func TestInstrumentLabelsByRoutePattern(t *testing.T) {
	m := NewMetrics()
	r := chi.NewRouter()
	r.Use(m.Instrument)
	r.Get("/api/v1/fei/{numero}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Handle("/metrics", m.Handler())

	for _, numero := range []string{"F1", "F2"} {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/fei/"+numero, nil))
	}
	if got := testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("GET", "/api/v1/fei/{numero}", "404")); got != 2 {
		t.Fatalf("expected both requests under the route pattern, got %v", got)
	}
	if got := testutil.ToFloat64(m.httpInFlight); got != 0 {
		t.Fatalf("expected no in-flight requests, got %v", got)
	}

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rr.Body)
	if rr.Code != http.StatusOK || !strings.Contains(string(body), "gibiertrace_http_requests_total") {
		t.Fatalf("expected exposition output, got %d", rr.Code)
	}
}
