// Package qusage reads the resources a finished job consumed from Prometheus.
package qusage

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/prometheus/client_golang/api"
	promv1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"

	"github.com/quatton/qpaper/pkg/qerr"
)

// Usage is what the notebook container of a job consumed.
type Usage struct {
	MaxMemBytes int64 `json:"max_mem_bytes"`
	CPUSeconds  int64 `json:"cpu_seconds"`
}

// Client queries cAdvisor metrics scraped by Prometheus.
type Client struct {
	api       promv1.API
	namespace string
	container string
}

// New creates a client for the Prometheus server at address.
func New(address, namespace, container string) (*Client, error) {
	c, err := api.NewClient(api.Config{Address: address})
	if err != nil {
		return nil, fmt.Errorf("creating prometheus client: %w", err)
	}
	return &Client{api: promv1.NewAPI(c), namespace: namespace, container: container}, nil
}

// Selector matches the container in the given pods.
func (c *Client) Selector(pods []string) string {
	quoted := make([]string, len(pods))
	for i, p := range pods {
		quoted[i] = regexp.QuoteMeta(p)
	}
	return fmt.Sprintf(`namespace=%q,pod=~%q,container=%q`, c.namespace, strings.Join(quoted, "|"), c.container)
}

// JobUsage evaluates the usage queries at the time the job finished. Memory
// is the peak over the last year so it covers the whole run.
func (c *Client) JobUsage(ctx context.Context, pods []string, finishedAt time.Time) (*Usage, error) {
	if len(pods) == 0 {
		return nil, qerr.NotFound("job has no pods to read usage for")
	}
	selector := c.Selector(pods)

	mem, err := c.scalar(ctx, fmt.Sprintf("max_over_time(container_memory_working_set_bytes{%s}[1y])", selector), finishedAt)
	if err != nil {
		return nil, err
	}
	cpu, err := c.scalar(ctx, fmt.Sprintf("container_cpu_usage_seconds_total{%s}", selector), finishedAt)
	if err != nil {
		return nil, err
	}
	return &Usage{MaxMemBytes: mem, CPUSeconds: cpu}, nil
}

// scalar runs an instant query that must return exactly one sample. Values
// are bytes or seconds, so the fraction is dropped.
func (c *Client) scalar(ctx context.Context, query string, at time.Time) (int64, error) {
	value, _, err := c.api.Query(ctx, query, at)
	if err != nil {
		return 0, qerr.Transient(err, "querying prometheus")
	}
	vector, ok := value.(model.Vector)
	if !ok {
		return 0, qerr.Wrap(qerr.KindInternal, nil, "unexpected prometheus result type %s", value.Type())
	}
	switch len(vector) {
	case 0:
		return 0, qerr.NotFound("no usage recorded")
	case 1:
		return int64(vector[0].Value), nil
	default:
		return 0, qerr.Wrap(qerr.KindInternal, nil, "expected one series, got %d", len(vector))
	}
}
