package qusage

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/quatton/qpaper/pkg/qerr"
)

const instantResult = `{"status":"success","data":{"resultType":"vector","result":[{"metric":{},"value":[1616670308.781,"123.123"]}]}}`

type recordedQuery struct {
	query string
	time  string
}

func fakePrometheus(t *testing.T, body string) (*httptest.Server, *[]recordedQuery) {
	t.Helper()
	var mu sync.Mutex
	var queries []recordedQuery
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("bad form: %v", err)
		}
		mu.Lock()
		queries = append(queries, recordedQuery{query: r.Form.Get("query"), time: r.Form.Get("time")})
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &queries
}

func TestJobUsage(t *testing.T) {
	srv, queries := fakePrometheus(t, instantResult)
	client, err := New(srv.URL, "notebooks", "notebook")
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	finished := time.Date(2020, 1, 1, 4, 0, 0, 0, time.UTC)
	usage, err := client.JobUsage(context.Background(), []string{"pod-of-job-123"}, finished)
	if err != nil {
		t.Fatalf("JobUsage failed: %v", err)
	}
	if usage.CPUSeconds != 123 || usage.MaxMemBytes != 123 {
		t.Errorf("Expected 123/123, got %+v", usage)
	}

	if len(*queries) != 2 {
		t.Fatalf("Expected 2 queries, got %d", len(*queries))
	}
	for _, q := range *queries {
		if !strings.Contains(q.query, `pod=~"pod-of-job-123"`) {
			t.Errorf("Expected pod selector in %s", q.query)
		}
		if !strings.Contains(q.query, `namespace="notebooks"`) || !strings.Contains(q.query, `container="notebook"`) {
			t.Errorf("Expected namespace and container in %s", q.query)
		}
		if q.time != "1577851200" {
			t.Errorf("Expected evaluation at job end, got %s", q.time)
		}
	}
	if !strings.HasPrefix((*queries)[0].query, "max_over_time(container_memory_working_set_bytes{") {
		t.Errorf("Unexpected memory query %s", (*queries)[0].query)
	}
}

func TestJobUsageNoData(t *testing.T) {
	srv, _ := fakePrometheus(t, `{"status":"success","data":{"resultType":"vector","result":[]}}`)
	client, err := New(srv.URL, "notebooks", "notebook")
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	_, err = client.JobUsage(context.Background(), []string{"pod-1"}, time.Now())
	if !errors.Is(err, qerr.ErrNotFound) {
		t.Errorf("Expected not found, got %v", err)
	}
}

func TestJobUsageWithoutPods(t *testing.T) {
	client, err := New("http://127.0.0.1:1", "notebooks", "notebook")
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	if _, err := client.JobUsage(context.Background(), nil, time.Now()); !errors.Is(err, qerr.ErrNotFound) {
		t.Errorf("Expected not found, got %v", err)
	}
}

func TestSelector(t *testing.T) {
	client := &Client{namespace: "ns", container: "notebook"}
	got := client.Selector([]string{"a-1", "b-2"})
	want := `namespace="ns",pod=~"a-1|b-2",container="notebook"`
	if got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}
}
