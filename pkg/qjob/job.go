// Package qjob holds the abstract job model exposed by the orchestrator.
package qjob

import (
	"encoding/json"
	"time"

	"github.com/quatton/qpaper/pkg/qerr"
)

// Status is the abstract lifecycle state of a job.
type Status string

const (
	StatusAccepted   Status = "accepted"
	StatusRunning    Status = "running"
	StatusSuccessful Status = "successful"
	StatusFailed     Status = "failed"
	StatusDismissed  Status = "dismissed"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{StatusAccepted, StatusRunning, StatusSuccessful, StatusFailed, StatusDismissed}

// ParseStatus validates a user supplied status string.
func ParseStatus(s string) (Status, error) {
	for _, st := range Statuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", qerr.Validation("unknown job status %q", s)
}

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusSuccessful || s == StatusFailed || s == StatusDismissed
}

// CanTransitionTo reports whether the lifecycle allows moving from s to next.
// Staying in the same state is always allowed.
func (s Status) CanTransitionTo(next Status) bool {
	if s == next {
		return true
	}
	switch s {
	case StatusAccepted:
		return next == StatusRunning || next.Terminal()
	case StatusRunning:
		return next.Terminal()
	default:
		return false
	}
}

// Result points at the executed notebook of a successful job.
type Result struct {
	Path        string  `json:"path"`
	Link        string  `json:"link,omitempty"`
	DownloadURL string  `json:"download_url,omitempty"`
	Output      *Output `json:"output,omitempty"`
}

// Output is a value the notebook published for its caller. Value holds JSON
// data; Content holds file or display bytes of MediaType.
type Output struct {
	Name      string          `json:"name,omitempty"`
	MediaType string          `json:"media_type,omitempty"`
	Value     json.RawMessage `json:"value,omitempty"`
	Content   []byte          `json:"content,omitempty"`
}

// Job is the state of a single notebook execution, recomputed from the
// cluster on every read.
type Job struct {
	ID         string     `json:"id"`
	ProcessID  string     `json:"process_id"`
	Status     Status     `json:"status"`
	Message    string     `json:"message,omitempty"`
	ExitCode   *int32     `json:"exit_code,omitempty"`
	Parameters Parameters `json:"parameters,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Result     *Result    `json:"result,omitempty"`
}

// Err returns a workload failure error for failed jobs and nil otherwise.
func (j *Job) Err() error {
	if j == nil || j.Status != StatusFailed {
		return nil
	}
	msg := j.Message
	if msg == "" {
		msg = "notebook execution failed"
	}
	if j.ExitCode != nil {
		return qerr.WorkloadFailure(j.ID, "%s (exit code %d)", msg, *j.ExitCode)
	}
	return qerr.WorkloadFailure(j.ID, "%s", msg)
}
