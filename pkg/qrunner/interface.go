package qrunner

import (
	"context"
	"time"

	"github.com/quatton/qpaper/pkg/qconfig"
	"github.com/quatton/qpaper/pkg/qjob"
	"github.com/quatton/qpaper/pkg/qusage"
)

// Runner is the process execution contract served over HTTP and the CLI.
type Runner interface {
	// Execute submits a notebook job for a configured process.
	Execute(ctx context.Context, processID string, params qjob.Parameters, desiredJobID string) (*qjob.Job, error)

	// GetStatus recomputes the state of a job from the cluster.
	GetStatus(ctx context.Context, jobID string) (*qjob.Job, error)

	// Cancel dismisses a job that has not finished yet.
	Cancel(ctx context.Context, jobID string) (*qjob.Job, error)

	// ListJobs lists managed jobs, newest first.
	ListJobs(ctx context.Context, filter ListFilter) ([]*qjob.Job, error)

	// GetResult locates the output notebook of a successful job.
	GetResult(ctx context.Context, jobID string) (*qjob.Result, error)

	// Logs returns the notebook container logs.
	Logs(ctx context.Context, jobID string, tailLines int64) (string, error)

	// Resources reports what a successful job consumed.
	Resources(ctx context.Context, jobID string) (*qusage.Usage, error)

	// Processors lists the configured processes.
	Processors() []qconfig.Processor
}

// UsageReader reads resource usage of finished pods.
type UsageReader interface {
	JobUsage(ctx context.Context, pods []string, finishedAt time.Time) (*qusage.Usage, error)
}

// ListFilter narrows ListJobs. Zero values match everything.
type ListFilter struct {
	ProcessID string
	Status    qjob.Status
}

func (f ListFilter) matches(j *qjob.Job) bool {
	if f.ProcessID != "" && j.ProcessID != f.ProcessID {
		return false
	}
	return f.Status == "" || j.Status == f.Status
}

// Recorder receives measurements from the manager.
type Recorder interface {
	RecordSubmission(ctx context.Context, processID string, err error)
	RecordCancellation(ctx context.Context, processID string, err error)
	RecordClusterCall(ctx context.Context, operation string, d time.Duration, err error)
}

type nopRecorder struct{}

func (nopRecorder) RecordSubmission(context.Context, string, error) {}
func (nopRecorder) RecordCancellation(context.Context, string, error) {}
func (nopRecorder) RecordClusterCall(context.Context, string, time.Duration, error) {}
