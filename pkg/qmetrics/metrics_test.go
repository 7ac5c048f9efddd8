package qmetrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/quatton/qpaper/pkg/qerr"
)

func scrape(t *testing.T, handler http.Handler) string {
	t.Helper()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 from metrics handler, got %d", rec.Code)
	}
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatal(err)
	}
	return string(body)
}

func TestNewMetrics(t *testing.T) {
	t.Parallel()
	metrics, handler, err := NewMetrics(context.Background())
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}
	if metrics == nil || handler == nil {
		t.Fatal("Expected metrics and handler to be non-nil")
	}
	if body := scrape(t, handler); !strings.Contains(body, "go_goroutines") {
		t.Error("Expected runtime metrics on the registry")
	}
}

func TestRecordJobMetrics(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	metrics, handler, err := NewMetrics(ctx)
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}

	metrics.RecordSubmission(ctx, "notebook-exec", nil)
	metrics.RecordSubmission(ctx, "notebook-exec", qerr.Validation("notebook is required"))
	metrics.RecordCancellation(ctx, "notebook-exec", qerr.Conflict("job is already successful"))
	metrics.RecordClusterCall(ctx, "creating job", 40*time.Millisecond, nil)
	metrics.RecordClusterCall(ctx, "getting job", 10*time.Millisecond, errors.New("boom"))

	body := scrape(t, handler)
	for _, want := range []string{
		"jobs_submitted",
		`outcome="validation"`,
		"jobs_cancelled",
		`outcome="conflict"`,
		"cluster_call_duration_seconds",
		`operation="creating job"`,
		`outcome="internal"`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("Expected %q in scrape output", want)
		}
	}
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	t.Parallel()
	metrics, handler, err := NewMetrics(context.Background())
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}

	router := chi.NewRouter()
	router.Use(metrics.Middleware)
	router.Get("/jobs/{jobId}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/jobs/job-42", nil))

	body := scrape(t, handler)
	if !strings.Contains(body, `route="/jobs/{jobId}"`) {
		t.Error("Expected the route pattern as label")
	}
	if strings.Contains(body, "job-42") {
		t.Error("Expected job ids to stay out of labels")
	}
	if !strings.Contains(body, `status="4xx"`) {
		t.Error("Expected grouped status label")
	}
}
