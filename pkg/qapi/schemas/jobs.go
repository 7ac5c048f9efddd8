package schemas

import (
	"encoding/json"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/quatton/qpaper/pkg/qjob"
	"github.com/quatton/qpaper/pkg/qusage"
)

// Inputs is a JSON object whose key order is kept.
type Inputs struct {
	qjob.Parameters
}

func (Inputs) Schema(r huma.Registry) *huma.Schema {
	return &huma.Schema{
		Type:                 huma.TypeObject,
		AdditionalProperties: true,
		Description:          "Process inputs. Keys look like notebook (or path), params, cpu_limit, node_purpose",
	}
}

func (i *Inputs) UnmarshalJSON(data []byte) error {
	return i.Parameters.UnmarshalJSON(data)
}

func (i Inputs) MarshalJSON() ([]byte, error) {
	return i.Parameters.MarshalJSON()
}

// ExecuteRequest asks for a new job of a process.
type ExecuteRequest struct {
	Inputs Inputs `json:"inputs" doc:"Process inputs"`
	JobID  string `json:"jobId,omitempty" doc:"Desired job id, generated when empty" maxLength:"63"`
}

// JobResult points at the executed notebook.
type JobResult struct {
	Path        string     `json:"path" doc:"Notebook path inside the job pod"`
	Link        string     `json:"link,omitempty" doc:"Viewer link"`
	DownloadURL string     `json:"download_url,omitempty" doc:"Presigned download link"`
	Output      *JobOutput `json:"output,omitempty" doc:"Value the notebook published with scrapbook"`
}

// RawValue is arbitrary JSON passed through unchanged.
type RawValue json.RawMessage

func (RawValue) Schema(r huma.Registry) *huma.Schema {
	return &huma.Schema{Description: "Any JSON value"}
}

func (v RawValue) MarshalJSON() ([]byte, error) {
	if len(v) == 0 {
		return []byte("null"), nil
	}
	return v, nil
}

// JobOutput is a scrap, or the file a result-file scrap points at.
type JobOutput struct {
	Name      string   `json:"name,omitempty" doc:"Scrap name"`
	MediaType string   `json:"media_type,omitempty" doc:"Media type of content"`
	Value     RawValue `json:"value,omitempty" doc:"JSON data of the scrap"`
	Content   []byte   `json:"content,omitempty" doc:"Base64 encoded file or display content"`
}

// JobResponse represents the state of a notebook job
type JobResponse struct {
	ID         string     `json:"id" doc:"Job ID"`
	ProcessID  string     `json:"process_id" doc:"Process the job runs"`
	Status     string     `json:"status" doc:"Job status" enum:"accepted,running,successful,failed,dismissed"`
	Message    string     `json:"message,omitempty" doc:"Scheduling or failure details"`
	ExitCode   *int32     `json:"exit_code,omitempty" doc:"Notebook container exit code"`
	Parameters Inputs     `json:"parameters" doc:"Inputs with secret values redacted"`
	CreatedAt  time.Time  `json:"created_at" doc:"Creation timestamp"`
	StartedAt  *time.Time `json:"started_at,omitempty" doc:"Start timestamp"`
	FinishedAt *time.Time `json:"finished_at,omitempty" doc:"Finish timestamp"`
	Result     *JobResult `json:"result,omitempty" doc:"Result notebook, once successful"`
}

func NewJobResponse(j *qjob.Job) JobResponse {
	resp := JobResponse{
		ID:         j.ID,
		ProcessID:  j.ProcessID,
		Status:     string(j.Status),
		Message:    j.Message,
		ExitCode:   j.ExitCode,
		Parameters: Inputs{Parameters: j.Parameters.Redact()},
		CreatedAt:  j.CreatedAt,
		StartedAt:  j.StartedAt,
		FinishedAt: j.FinishedAt,
	}
	if j.Result != nil {
		resp.Result = NewJobResult(j.Result)
	}
	return resp
}

func NewJobResult(r *qjob.Result) *JobResult {
	result := &JobResult{Path: r.Path, Link: r.Link, DownloadURL: r.DownloadURL}
	if o := r.Output; o != nil {
		result.Output = &JobOutput{
			Name:      o.Name,
			MediaType: o.MediaType,
			Value:     RawValue(o.Value),
			Content:   o.Content,
		}
	}
	return result
}

// UsageResponse is what a finished job consumed.
type UsageResponse struct {
	MaxMemBytes int64 `json:"max_mem_bytes" doc:"Peak working set of the notebook container"`
	CPUSeconds  int64 `json:"cpu_seconds" doc:"CPU time of the notebook container"`
}

func NewUsageResponse(u *qusage.Usage) UsageResponse {
	return UsageResponse{MaxMemBytes: u.MaxMemBytes, CPUSeconds: u.CPUSeconds}
}
