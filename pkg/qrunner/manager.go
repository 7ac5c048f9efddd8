// Package qrunner runs notebook jobs as Kubernetes batch Jobs. The cluster is
// the only store: every read recomputes the job state from live objects.
package qrunner

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/client-go/kubernetes"

	"github.com/quatton/qpaper/pkg/qart"
	"github.com/quatton/qpaper/pkg/qconfig"
	"github.com/quatton/qpaper/pkg/qerr"
	"github.com/quatton/qpaper/pkg/qjob"
	"github.com/quatton/qpaper/pkg/qlog"
	"github.com/quatton/qpaper/pkg/qspec"
	"github.com/quatton/qpaper/pkg/qstatus"
	"github.com/quatton/qpaper/pkg/qusage"
)

// Options configures a Manager. Zero values pick the defaults.
type Options struct {
	Namespace string
	Cluster   ClusterOptions
	Builder   *qspec.Builder
	Locator   *qart.Locator
	Logger    *qlog.Logger
	Metrics   Recorder
	Usage     UsageReader

	Now   func() time.Time
	NewID func() string
}

// Manager is the job orchestrator. It holds no job state of its own and is
// safe for concurrent use.
type Manager struct {
	cluster *Cluster
	config  *qconfig.Config
	builder *qspec.Builder
	locator *qart.Locator
	log     *qlog.Logger
	metrics Recorder
	usage   UsageReader
	now     func() time.Time
	newID   func() string
}

var _ Runner = (*Manager)(nil)

// NewManager creates a Manager for the processors in cfg.
func NewManager(client kubernetes.Interface, cfg *qconfig.Config, opts Options) *Manager {
	if opts.Builder == nil {
		opts.Builder = qspec.NewBuilder()
	}
	if opts.Locator == nil {
		opts.Locator = qart.NewLocator(nil, qart.LocatorConfig{})
	}
	if opts.Logger == nil {
		opts.Logger = qlog.NewDiscard()
	}
	if opts.Metrics == nil {
		opts.Metrics = nopRecorder{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = qjob.NewID
	}
	if opts.Namespace == "" {
		opts.Namespace = "default"
	}

	return &Manager{
		cluster: NewCluster(client, opts.Namespace, opts.Cluster, opts.Metrics),
		config:  cfg,
		builder: opts.Builder,
		locator: opts.Locator,
		log:     opts.Logger,
		metrics: opts.Metrics,
		usage:   opts.Usage,
		now:     opts.Now,
		newID:   opts.NewID,
	}
}

// Processors lists the configured processes.
func (m *Manager) Processors() []qconfig.Processor {
	return m.config.Processors
}

// Execute builds the manifest for a process and creates the Job. The job id
// is desiredJobID when given; an existing job with that id is a conflict and
// is never touched.
func (m *Manager) Execute(ctx context.Context, processID string, params qjob.Parameters, desiredJobID string) (*qjob.Job, error) {
	job, err := m.execute(ctx, processID, params, desiredJobID)
	m.metrics.RecordSubmission(ctx, processID, err)
	return job, err
}

func (m *Manager) execute(ctx context.Context, processID string, params qjob.Parameters, jobID string) (*qjob.Job, error) {
	p, ok := m.config.Lookup(processID)
	if !ok {
		return nil, qerr.NotFound("process %s not found", processID)
	}
	if jobID == "" {
		jobID = m.newID()
	}

	requestUID := uuid.NewString()
	manifest, err := m.builder.Build(qspec.BuildInput{
		Processor:  p,
		JobID:      jobID,
		Parameters: params,
		Now:        m.now(),
		RequestUID: requestUID,
	})
	if err != nil {
		return nil, err
	}

	log := m.log.With("job_id", jobID, "process_id", processID)
	created, err := m.cluster.CreateJob(ctx, manifest)
	if err != nil {
		if !apierrors.IsAlreadyExists(err) {
			log.Warn("creating job failed", "error", err)
			return nil, qerr.Wrap(qerr.KindOf(err), err, "submitting job").ForJob(jobID)
		}
		// A create that timed out may have gone through before it was retried.
		existing, getErr := m.cluster.GetJob(ctx, jobID)
		if getErr != nil || existing.Annotations[qspec.AnnotationRequest] != requestUID {
			return nil, qerr.Conflict("a job with this id already exists").ForJob(jobID)
		}
		created = existing
	}

	log.Info("job created", "parameters", string(mustJSON(params.Redact())))
	return &qjob.Job{
		ID:         created.Name,
		ProcessID:  processID,
		Status:     qjob.StatusAccepted,
		Parameters: params.Redact(),
		CreatedAt:  createdAt(created),
	}, nil
}

// GetStatus returns the current state of a job.
func (m *Manager) GetStatus(ctx context.Context, jobID string) (*qjob.Job, error) {
	job, obs, err := m.observe(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return toJob(job, obs), nil
}

// observe reads the job and its pods and maps them to an Observation. Events
// are only read when nothing else explains why a job is still accepted.
func (m *Manager) observe(ctx context.Context, jobID string) (*batchv1.Job, qstatus.Observation, error) {
	job, err := m.getManaged(ctx, jobID)
	if err != nil {
		return nil, qstatus.Observation{}, err
	}
	pods, err := m.cluster.GetJobPods(ctx, job.Name)
	if err != nil {
		return nil, qstatus.Observation{}, qerr.Wrap(qerr.KindOf(err), err, "reading pods").ForJob(jobID)
	}

	obs := qstatus.Map(job, pods, nil)
	if obs.Status == qjob.StatusAccepted && obs.Message == "" {
		names := []string{job.Name}
		if pod := qstatus.NewestPod(pods); pod != nil {
			names = append(names, pod.Name)
		}
		events, err := m.cluster.ListEvents(ctx, names...)
		if err != nil {
			m.log.Debug("listing events failed", "job_id", jobID, "error", err)
		} else {
			obs = qstatus.Map(job, pods, events)
		}
	}
	return job, obs, nil
}

func (m *Manager) getManaged(ctx context.Context, jobID string) (*batchv1.Job, error) {
	if err := qjob.ValidateID(jobID); err != nil {
		return nil, qerr.NotFound("job not found").ForJob(jobID)
	}
	job, err := m.cluster.GetJob(ctx, jobID)
	if err != nil {
		if qerr.IsKind(err, qerr.KindNotFound) {
			return nil, qerr.NotFound("job not found").ForJob(jobID)
		}
		return nil, qerr.Wrap(qerr.KindOf(err), err, "reading job").ForJob(jobID)
	}
	if job.Labels[qspec.LabelManaged] != "true" {
		return nil, qerr.NotFound("job not found").ForJob(jobID)
	}
	return job, nil
}

// Cancel deletes a running or accepted job together with its pods. It
// returns once the API server accepted the deletion. GetStatus reports
// dismissed only while the foreground deletion is pending; after that the
// job is gone and reads return not_found.
func (m *Manager) Cancel(ctx context.Context, jobID string) (*qjob.Job, error) {
	job, obs, err := m.observe(ctx, jobID)
	if err != nil {
		m.metrics.RecordCancellation(ctx, "", err)
		return nil, err
	}
	processID := job.Annotations[qspec.AnnotationProcess]
	if obs.Status.Terminal() {
		err := qerr.Conflict("job is already %s", obs.Status).ForJob(jobID)
		m.metrics.RecordCancellation(ctx, processID, err)
		return nil, err
	}

	if err := m.cluster.DeleteJob(ctx, job.Name); err != nil {
		m.metrics.RecordCancellation(ctx, processID, err)
		if qerr.IsKind(err, qerr.KindNotFound) {
			return nil, qerr.NotFound("job not found").ForJob(jobID)
		}
		return nil, qerr.Wrap(qerr.KindOf(err), err, "cancelling job").ForJob(jobID)
	}
	m.metrics.RecordCancellation(ctx, processID, nil)
	m.log.Info("job cancelled", "job_id", jobID, "previous_status", string(obs.Status))

	now := m.now()
	obs.Status = qjob.StatusDismissed
	obs.Message = "job was cancelled"
	obs.FinishedAt = &now
	if obs.StartedAt != nil && now.Before(*obs.StartedAt) {
		obs.FinishedAt = obs.StartedAt
	}
	return toJob(job, obs), nil
}

// ListJobs lists managed jobs with a single job list and a single pod list.
func (m *Manager) ListJobs(ctx context.Context, filter ListFilter) ([]*qjob.Job, error) {
	selector := qspec.LabelManaged + "=true"
	jobs, err := m.cluster.ListJobs(ctx, selector)
	if err != nil {
		return nil, err
	}
	pods, err := m.cluster.ListPods(ctx, selector)
	if err != nil {
		return nil, err
	}

	podsByJob := map[string][]corev1.Pod{}
	for _, pod := range pods {
		name := pod.Labels[qspec.LabelJobName]
		podsByJob[name] = append(podsByJob[name], pod)
	}

	out := make([]*qjob.Job, 0, len(jobs))
	for i := range jobs {
		job := &jobs[i]
		j := toJob(job, qstatus.Map(job, podsByJob[job.Name], nil))
		if filter.matches(j) {
			out = append(out, j)
		}
	}
	sort.SliceStable(out, func(a, b int) bool {
		if out[a].CreatedAt.Equal(out[b].CreatedAt) {
			return out[a].ID < out[b].ID
		}
		return out[a].CreatedAt.After(out[b].CreatedAt)
	})
	return out, nil
}

// GetResult returns the output notebook of a successful job once it is
// visible to the configured store.
func (m *Manager) GetResult(ctx context.Context, jobID string) (*qjob.Result, error) {
	job, obs, err := m.observe(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if obs.Status != qjob.StatusSuccessful {
		return nil, qerr.NotFound("job is %s, no result available", obs.Status).ForJob(jobID)
	}
	return m.locator.Locate(ctx, job)
}

// Logs returns the tail of the notebook container logs.
func (m *Manager) Logs(ctx context.Context, jobID string, tailLines int64) (string, error) {
	job, err := m.getManaged(ctx, jobID)
	if err != nil {
		return "", err
	}
	pods, err := m.cluster.GetJobPods(ctx, job.Name)
	if err != nil {
		return "", qerr.Wrap(qerr.KindOf(err), err, "reading pods").ForJob(jobID)
	}
	pod := qstatus.NewestPod(pods)
	if pod == nil {
		return "", qerr.NotFound("job has no pod yet").ForJob(jobID)
	}
	logs, err := m.cluster.GetPodLogs(ctx, pod.Name, qspec.MainContainerName, tailLines)
	if err != nil {
		return "", qerr.Wrap(qerr.KindOf(err), err, "reading logs").ForJob(jobID)
	}
	return logs, nil
}

// Resources reports what a successful job consumed.
func (m *Manager) Resources(ctx context.Context, jobID string) (*qusage.Usage, error) {
	job, obs, err := m.observe(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if obs.Status != qjob.StatusSuccessful || obs.FinishedAt == nil {
		return nil, qerr.Validation("job is %s", obs.Status).ForJob(jobID)
	}
	if m.usage == nil {
		return nil, qerr.NotFound("resource usage is not configured")
	}
	pods, err := m.cluster.GetJobPods(ctx, job.Name)
	if err != nil {
		return nil, qerr.Wrap(qerr.KindOf(err), err, "reading pods").ForJob(jobID)
	}
	names := make([]string, 0, len(pods))
	for _, pod := range pods {
		names = append(names, pod.Name)
	}
	return m.usage.JobUsage(ctx, names, *obs.FinishedAt)
}

func toJob(job *batchv1.Job, obs qstatus.Observation) *qjob.Job {
	j := &qjob.Job{
		ID:         job.Name,
		ProcessID:  job.Annotations[qspec.AnnotationProcess],
		Status:     obs.Status,
		Message:    obs.Message,
		ExitCode:   obs.ExitCode,
		CreatedAt:  obs.CreatedAt,
		StartedAt:  obs.StartedAt,
		FinishedAt: obs.FinishedAt,
	}
	if j.CreatedAt.IsZero() {
		j.CreatedAt = createdAt(job)
	}
	if raw := job.Annotations[qspec.AnnotationParams]; raw != "" {
		var params qjob.Parameters
		// truncated annotations are dropped
		if err := json.Unmarshal([]byte(raw), &params); err == nil {
			j.Parameters = params
		}
	}
	if obs.Status == qjob.StatusSuccessful {
		if path := job.Annotations[qspec.AnnotationResult]; path != "" {
			j.Result = &qjob.Result{Path: path, Link: job.Annotations[qspec.AnnotationLink]}
		}
	}
	return j
}

func createdAt(job *batchv1.Job) time.Time {
	if !job.CreationTimestamp.IsZero() {
		return job.CreationTimestamp.Time
	}
	t, _ := time.Parse(time.RFC3339, job.Annotations[qspec.AnnotationCreated])
	return t
}

func mustJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}
