package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2/humatest"

	"github.com/quatton/qpaper/pkg/qapi/services"
	"github.com/quatton/qpaper/pkg/qconfig"
	"github.com/quatton/qpaper/pkg/qerr"
	"github.com/quatton/qpaper/pkg/qjob"
	"github.com/quatton/qpaper/pkg/qrunner"
	"github.com/quatton/qpaper/pkg/qusage"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type fakeRunner struct {
	jobs map[string]*qjob.Job

	executed   qjob.Parameters
	listFilter qrunner.ListFilter
	logTail    int64
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{jobs: map[string]*qjob.Job{}}
}

func (f *fakeRunner) Execute(_ context.Context, processID string, params qjob.Parameters, jobID string) (*qjob.Job, error) {
	if processID != "notebook-exec" {
		return nil, qerr.NotFound("process %s not found", processID)
	}
	if !params.Has("notebook") {
		return nil, qerr.Validation("notebook is required")
	}
	if _, ok := f.jobs[jobID]; ok {
		return nil, qerr.Conflict("a job with this id already exists").ForJob(jobID)
	}
	if jobID == "" {
		jobID = "generated"
	}
	f.executed = params
	job := &qjob.Job{ID: jobID, ProcessID: processID, Status: qjob.StatusAccepted, Parameters: params.Redact(), CreatedAt: time.Now()}
	f.jobs[jobID] = job
	return job, nil
}

func (f *fakeRunner) GetStatus(_ context.Context, jobID string) (*qjob.Job, error) {
	job, ok := f.jobs[jobID]
	if !ok {
		return nil, qerr.NotFound("job not found").ForJob(jobID)
	}
	return job, nil
}

func (f *fakeRunner) Cancel(ctx context.Context, jobID string) (*qjob.Job, error) {
	job, err := f.GetStatus(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status.Terminal() {
		return nil, qerr.Conflict("job is already %s", job.Status).ForJob(jobID)
	}
	job.Status = qjob.StatusDismissed
	return job, nil
}

func (f *fakeRunner) ListJobs(_ context.Context, filter qrunner.ListFilter) ([]*qjob.Job, error) {
	f.listFilter = filter
	var out []*qjob.Job
	for _, j := range f.jobs {
		out = append(out, j)
	}
	return out, nil
}

func (f *fakeRunner) GetResult(ctx context.Context, jobID string) (*qjob.Result, error) {
	job, err := f.GetStatus(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != qjob.StatusSuccessful {
		return nil, qerr.NotFound("job is %s, no result available", job.Status).ForJob(jobID)
	}
	return job.Result, nil
}

func (f *fakeRunner) Logs(ctx context.Context, jobID string, tail int64) (string, error) {
	if _, err := f.GetStatus(ctx, jobID); err != nil {
		return "", err
	}
	f.logTail = tail
	return "cell 1 done\n", nil
}

func (f *fakeRunner) Resources(ctx context.Context, jobID string) (*qusage.Usage, error) {
	if _, err := f.GetStatus(ctx, jobID); err != nil {
		return nil, err
	}
	return &qusage.Usage{MaxMemBytes: 2048, CPUSeconds: 12}, nil
}

func (f *fakeRunner) Processors() []qconfig.Processor {
	return []qconfig.Processor{{ID: "notebook-exec", Title: "Execute notebook", DefaultImage: "jupyter/base"}}
}

func newTestAPI(t *testing.T, runner qrunner.Runner, secret string) humatest.TestAPI {
	t.Helper()
	_, api := humatest.New(t)
	RegisterAPI(api, &services.Services{Auth: services.NewAuthService(secret), JobRunner: runner})
	return api
}

func decode(t *testing.T, body string, v any) {
	t.Helper()
	if err := json.Unmarshal([]byte(body), v); err != nil {
		t.Fatalf("Failed to decode %s: %v", body, err)
	}
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t, nil, testSecret)
	resp := api.Get("/health")
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected 200 without a token, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), `"ok"`) {
		t.Errorf("Unexpected body %s", resp.Body.String())
	}
}

func TestExecuteProcess(t *testing.T) {
	runner := newFakeRunner()
	api := newTestAPI(t, runner, "")

	resp := api.Post("/processes/notebook-exec/execution", map[string]any{
		"inputs": map[string]any{"notebook": "a.ipynb", "params": map[string]any{"x": 1}},
		"jobId":  "job-42",
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	if got := resp.Header().Get("Location"); got != "/jobs/job-42" {
		t.Errorf("Expected Location /jobs/job-42, got %q", got)
	}

	var job struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	decode(t, resp.Body.String(), &job)
	if job.ID != "job-42" || job.Status != "accepted" {
		t.Errorf("Expected accepted job-42, got %+v", job)
	}
	if !runner.executed.Has("params") {
		t.Errorf("Expected params to reach the runner, got %v", runner.executed.Names())
	}
}

func TestExecuteKeepsInputOrder(t *testing.T) {
	runner := newFakeRunner()
	api := newTestAPI(t, runner, "")

	resp := api.Post("/processes/notebook-exec/execution",
		strings.NewReader(`{"inputs":{"zeta":1,"notebook":"a.ipynb","alpha":2}}`))
	if resp.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	names := runner.executed.Names()
	if strings.Join(names, ",") != "zeta,notebook,alpha" {
		t.Errorf("Expected input order to be kept, got %v", names)
	}
}

func TestExecuteRedactsSecrets(t *testing.T) {
	api := newTestAPI(t, newFakeRunner(), "")

	resp := api.Post("/processes/notebook-exec/execution", map[string]any{
		"inputs": map[string]any{"notebook": "a.ipynb", "api_key": "hunter2"},
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	if strings.Contains(resp.Body.String(), "hunter2") {
		t.Errorf("Expected secret to be redacted, got %s", resp.Body.String())
	}
}

func TestExecuteErrors(t *testing.T) {
	runner := newFakeRunner()
	runner.jobs["taken"] = &qjob.Job{ID: "taken", Status: qjob.StatusRunning}
	api := newTestAPI(t, runner, "")

	tests := []struct {
		name    string
		process string
		body    map[string]any
		want    int
	}{
		{"unknown process", "nope", map[string]any{"inputs": map[string]any{"notebook": "a.ipynb"}}, http.StatusNotFound},
		{"validation", "notebook-exec", map[string]any{"inputs": map[string]any{}}, http.StatusBadRequest},
		{"duplicate id", "notebook-exec", map[string]any{"inputs": map[string]any{"notebook": "a.ipynb"}, "jobId": "taken"}, http.StatusConflict},
		{"missing inputs", "notebook-exec", map[string]any{}, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := api.Post("/processes/"+tt.process+"/execution", tt.body)
			if resp.Code != tt.want {
				t.Errorf("Expected %d, got %d: %s", tt.want, resp.Code, resp.Body.String())
			}
		})
	}
}

func TestListProcesses(t *testing.T) {
	api := newTestAPI(t, newFakeRunner(), "")
	resp := api.Get("/processes")
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.Code)
	}
	var body struct {
		Processes []struct {
			ID     string   `json:"id"`
			Inputs []string `json:"inputs"`
		} `json:"processes"`
	}
	decode(t, resp.Body.String(), &body)
	if len(body.Processes) != 1 || body.Processes[0].ID != "notebook-exec" {
		t.Fatalf("Unexpected processes %+v", body.Processes)
	}
	if len(body.Processes[0].Inputs) == 0 {
		t.Error("Expected recognized inputs to be listed")
	}
}

func TestJobRoutes(t *testing.T) {
	finished := time.Date(2024, 5, 1, 14, 0, 0, 0, time.UTC)
	runner := newFakeRunner()
	runner.jobs["done"] = &qjob.Job{
		ID: "done", ProcessID: "notebook-exec", Status: qjob.StatusSuccessful, FinishedAt: &finished,
		Result: &qjob.Result{
			Path:   "/home/jovyan/out/done/a.ipynb",
			Output: &qjob.Output{Name: "stats", Value: json.RawMessage(`{"mean":2}`)},
		},
	}
	runner.jobs["busy"] = &qjob.Job{ID: "busy", ProcessID: "notebook-exec", Status: qjob.StatusRunning}
	api := newTestAPI(t, runner, "")

	resp := api.Get("/jobs/done")
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), `"successful"`) {
		t.Errorf("Expected successful job, got %d: %s", resp.Code, resp.Body.String())
	}

	resp = api.Get("/jobs/missing")
	if resp.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", resp.Code)
	}

	resp = api.Get("/jobs/done/results")
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), "/home/jovyan/out/done/a.ipynb") {
		t.Errorf("Expected result path, got %d: %s", resp.Code, resp.Body.String())
	}

	var result struct {
		Output struct {
			Name  string          `json:"name"`
			Value json.RawMessage `json:"value"`
		} `json:"output"`
	}
	decode(t, resp.Body.String(), &result)
	if result.Output.Name != "stats" || string(result.Output.Value) != `{"mean":2}` {
		t.Errorf("Expected the stats scrap, got %+v", result.Output)
	}

	resp = api.Get("/jobs/busy/results")
	if resp.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for a running job, got %d", resp.Code)
	}

	resp = api.Get("/jobs/busy/logs?tail=20")
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), "cell 1 done") {
		t.Errorf("Expected logs, got %d: %s", resp.Code, resp.Body.String())
	}
	if runner.logTail != 20 {
		t.Errorf("Expected tail 20, got %d", runner.logTail)
	}

	resp = api.Get("/jobs/done/resources")
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), `"max_mem_bytes":2048`) {
		t.Errorf("Expected usage, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestDismissJob(t *testing.T) {
	runner := newFakeRunner()
	runner.jobs["busy"] = &qjob.Job{ID: "busy", Status: qjob.StatusRunning}
	api := newTestAPI(t, runner, "")

	resp := api.Delete("/jobs/busy")
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), `"dismissed"`) {
		t.Fatalf("Expected dismissed job, got %d: %s", resp.Code, resp.Body.String())
	}

	resp = api.Delete("/jobs/busy")
	if resp.Code != http.StatusConflict {
		t.Errorf("Expected 409 for a dismissed job, got %d", resp.Code)
	}
}

func TestListJobsFilter(t *testing.T) {
	runner := newFakeRunner()
	api := newTestAPI(t, runner, "")

	resp := api.Get("/jobs?processId=notebook-exec&status=running")
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if runner.listFilter.ProcessID != "notebook-exec" || runner.listFilter.Status != qjob.StatusRunning {
		t.Errorf("Unexpected filter %+v", runner.listFilter)
	}

	resp = api.Get("/jobs?status=paused")
	if resp.Code != http.StatusUnprocessableEntity {
		t.Errorf("Expected 422 for an unknown status, got %d", resp.Code)
	}
}

func TestAuth(t *testing.T) {
	api := newTestAPI(t, newFakeRunner(), testSecret)

	if resp := api.Get("/jobs"); resp.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without a token, got %d", resp.Code)
	}
	if resp := api.Get("/jobs", "Authorization: Bearer not-a-token"); resp.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 with a bad token, got %d", resp.Code)
	}

	token, err := services.NewAuthService(testSecret).IssueToken("alice", time.Hour)
	if err != nil {
		t.Fatalf("Failed to issue token: %v", err)
	}
	if resp := api.Get("/jobs", "Authorization: Bearer "+token); resp.Code != http.StatusOK {
		t.Errorf("Expected 200 with a valid token, got %d: %s", resp.Code, resp.Body.String())
	}

	other, err := services.NewAuthService(strings.Repeat("x", 32)).IssueToken("alice", time.Hour)
	if err != nil {
		t.Fatalf("Failed to issue token: %v", err)
	}
	if resp := api.Get("/jobs", "Authorization: Bearer "+other); resp.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 for a token signed with another secret, got %d", resp.Code)
	}
}

func TestNoRunner(t *testing.T) {
	api := newTestAPI(t, nil, "")
	if resp := api.Get("/jobs"); resp.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 without a runner, got %d", resp.Code)
	}
}

func TestWhoAmI(t *testing.T) {
	api := newTestAPI(t, nil, testSecret)
	token, err := services.NewAuthService(testSecret).IssueToken("alice", time.Hour)
	if err != nil {
		t.Fatalf("Failed to issue token: %v", err)
	}

	resp := api.Get("/whoami", "Authorization: Bearer "+token)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var body struct {
		Authenticated bool   `json:"authenticated"`
		Subject       string `json:"subject"`
	}
	decode(t, resp.Body.String(), &body)
	if !body.Authenticated || body.Subject != "alice" {
		t.Errorf("Expected alice, got %+v", body)
	}

	open := newTestAPI(t, nil, "")
	resp = open.Get("/whoami")
	decode(t, resp.Body.String(), &body)
	if resp.Code != http.StatusOK || body.Authenticated {
		t.Errorf("Expected anonymous caller without a secret, got %d %+v", resp.Code, body)
	}
}
