// Package qmetrics exports service metrics in the Prometheus format.
package qmetrics

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Namespace prefixes every exported metric.
const Namespace = "qpaper"

// Metrics holds the instruments of the service:
// - HTTP traffic, latency and errors
// - job submissions and cancellations per process
// - Kubernetes API calls, including retries, per operation
type Metrics struct {
	provider *sdkmetric.MeterProvider

	HTTPRequestDuration metric.Float64Histogram
	HTTPRequestsTotal   metric.Int64Counter

	JobsSubmitted metric.Int64Counter
	JobsCancelled metric.Int64Counter

	ClusterCallDuration metric.Float64Histogram
	ClusterCallsTotal   metric.Int64Counter
}

// NewMetrics creates the instruments on a private registry and returns the
// handler that serves it.
func NewMetrics(ctx context.Context) (*Metrics, http.Handler, error) {
	registry := promclient.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	exporter, err := prometheus.New(
		prometheus.WithRegisterer(registry),
		prometheus.WithNamespace(Namespace),
	)
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter("github.com/quatton/qpaper")
	m := &Metrics{provider: provider}

	m.HTTPRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.JobsSubmitted, err = meter.Int64Counter(
		"jobs_submitted_total",
		metric.WithDescription("Job submissions by process and outcome"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.JobsCancelled, err = meter.Int64Counter(
		"jobs_cancelled_total",
		metric.WithDescription("Job cancellations by process and outcome"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.ClusterCallDuration, err = meter.Float64Histogram(
		"cluster_call_duration_seconds",
		metric.WithDescription("Kubernetes API call latency in seconds, retries included"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30),
	)
	if err != nil {
		return nil, nil, err
	}

	m.ClusterCallsTotal, err = meter.Int64Counter(
		"cluster_calls_total",
		metric.WithDescription("Kubernetes API calls by operation and outcome"),
	)
	if err != nil {
		return nil, nil, err
	}

	return m, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), nil
}

// Shutdown flushes and stops the meter provider.
func (m *Metrics) Shutdown(ctx context.Context) error {
	return m.provider.Shutdown(ctx)
}

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, route string, statusCode int, d time.Duration) {
	attrs := metric.WithAttributes(methodAttr(method), routeAttr(route), statusAttr(statusCode))
	m.HTTPRequestDuration.Record(ctx, d.Seconds(), attrs)
	m.HTTPRequestsTotal.Add(ctx, 1, attrs)
}

// RecordSubmission counts a job submission.
func (m *Metrics) RecordSubmission(ctx context.Context, processID string, err error) {
	m.JobsSubmitted.Add(ctx, 1, metric.WithAttributes(processAttr(processID), outcomeAttr(err)))
}

// RecordCancellation counts a cancellation request.
func (m *Metrics) RecordCancellation(ctx context.Context, processID string, err error) {
	m.JobsCancelled.Add(ctx, 1, metric.WithAttributes(processAttr(processID), outcomeAttr(err)))
}

// RecordClusterCall records one Kubernetes API operation.
func (m *Metrics) RecordClusterCall(ctx context.Context, operation string, d time.Duration, err error) {
	m.ClusterCallDuration.Record(ctx, d.Seconds(), metric.WithAttributes(operationAttr(operation)))
	m.ClusterCallsTotal.Add(ctx, 1, metric.WithAttributes(operationAttr(operation), outcomeAttr(err)))
}

// Middleware records every request under its chi route pattern, so job ids
// never end up in label values.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.RecordHTTPRequest(r.Context(), r.Method, route, status, time.Since(start))
	})
}
