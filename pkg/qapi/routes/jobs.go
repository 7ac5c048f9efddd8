package routes

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/quatton/qpaper/pkg/qapi/schemas"
	"github.com/quatton/qpaper/pkg/qjob"
	"github.com/quatton/qpaper/pkg/qrunner"
)

// JobInput identifies a job
type JobInput struct {
	JobID string `path:"jobId" doc:"Job ID" maxLength:"63"`
}

// JobOutput is the response for a single job
type JobOutput struct {
	Body schemas.JobResponse
}

// ListJobsInput defines the input for listing jobs
type ListJobsInput struct {
	ProcessID string `query:"processId" doc:"Filter by process" required:"false"`
	Status    string `query:"status" doc:"Filter by status" required:"false" enum:"accepted,running,successful,failed,dismissed"`
}

// ListJobsOutput is the response for listing jobs
type ListJobsOutput struct {
	Body struct {
		Jobs []schemas.JobResponse `json:"jobs" doc:"Jobs, newest first"`
	}
}

// JobResultOutput is the response for a job result
type JobResultOutput struct {
	Body schemas.JobResult
}

// JobLogsInput defines the input for reading job logs
type JobLogsInput struct {
	JobID string `path:"jobId" doc:"Job ID" maxLength:"63"`
	Tail  int64  `query:"tail" doc:"Only return the last lines" minimum:"0" required:"false"`
}

// JobLogsOutput is the response for job logs
type JobLogsOutput struct {
	Body struct {
		Logs string `json:"logs" doc:"Notebook container logs"`
	}
}

// JobResourcesOutput is the response for job resource usage
type JobResourcesOutput struct {
	Body schemas.UsageResponse
}

// RegisterJobs registers job-related routes
func RegisterJobs(api huma.API, runner qrunner.Runner) {
	huma.Register(api, huma.Operation{
		OperationID: "list-jobs",
		Method:      http.MethodGet,
		Path:        "/jobs",
		Summary:     "List jobs",
		Description: "Get the notebook jobs in the namespace, newest first",
		Tags:        []string{TagJobs.String()},
		Security:    BearerAuth,
	}, func(ctx context.Context, input *ListJobsInput) (*ListJobsOutput, error) {
		if runner == nil {
			return nil, errNoRunner()
		}
		filter := qrunner.ListFilter{ProcessID: input.ProcessID}
		if input.Status != "" {
			status, err := qjob.ParseStatus(input.Status)
			if err != nil {
				return nil, apiError(err)
			}
			filter.Status = status
		}

		jobs, err := runner.ListJobs(ctx, filter)
		if err != nil {
			return nil, apiError(err)
		}

		resp := &ListJobsOutput{}
		resp.Body.Jobs = make([]schemas.JobResponse, len(jobs))
		for i, job := range jobs {
			resp.Body.Jobs[i] = schemas.NewJobResponse(job)
		}
		return resp, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-job",
		Method:      http.MethodGet,
		Path:        "/jobs/{jobId}",
		Summary:     "Get job status",
		Description: "Get the current state of a job, recomputed from the cluster",
		Tags:        []string{TagJobs.String()},
		Security:    BearerAuth,
	}, func(ctx context.Context, input *JobInput) (*JobOutput, error) {
		if runner == nil {
			return nil, errNoRunner()
		}
		job, err := runner.GetStatus(ctx, input.JobID)
		if err != nil {
			return nil, apiError(err)
		}
		return &JobOutput{Body: schemas.NewJobResponse(job)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "dismiss-job",
		Method:      http.MethodDelete,
		Path:        "/jobs/{jobId}",
		Summary:     "Dismiss a job",
		Description: "Cancel a job that has not finished. Its pods are removed with the job.",
		Tags:        []string{TagJobs.String()},
		Security:    BearerAuth,
	}, func(ctx context.Context, input *JobInput) (*JobOutput, error) {
		if runner == nil {
			return nil, errNoRunner()
		}
		job, err := runner.Cancel(ctx, input.JobID)
		if err != nil {
			return nil, apiError(err)
		}
		return &JobOutput{Body: schemas.NewJobResponse(job)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-job-result",
		Method:      http.MethodGet,
		Path:        "/jobs/{jobId}/results",
		Summary:     "Get job result",
		Description: "Locate the executed notebook of a successful job and the output it published with scrapbook",
		Tags:        []string{TagJobs.String()},
		Security:    BearerAuth,
	}, func(ctx context.Context, input *JobInput) (*JobResultOutput, error) {
		if runner == nil {
			return nil, errNoRunner()
		}
		result, err := runner.GetResult(ctx, input.JobID)
		if err != nil {
			return nil, apiError(err)
		}
		return &JobResultOutput{Body: *schemas.NewJobResult(result)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-job-logs",
		Method:      http.MethodGet,
		Path:        "/jobs/{jobId}/logs",
		Summary:     "Get job logs",
		Description: "Read the logs of the notebook container",
		Tags:        []string{TagJobs.String()},
		Security:    BearerAuth,
	}, func(ctx context.Context, input *JobLogsInput) (*JobLogsOutput, error) {
		if runner == nil {
			return nil, errNoRunner()
		}
		logs, err := runner.Logs(ctx, input.JobID, input.Tail)
		if err != nil {
			return nil, apiError(err)
		}
		resp := &JobLogsOutput{}
		resp.Body.Logs = logs
		return resp, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-job-resources",
		Method:      http.MethodGet,
		Path:        "/jobs/{jobId}/resources",
		Summary:     "Get job resource usage",
		Description: "Report peak memory and CPU time of a successful job",
		Tags:        []string{TagJobs.String()},
		Security:    BearerAuth,
	}, func(ctx context.Context, input *JobInput) (*JobResourcesOutput, error) {
		if runner == nil {
			return nil, errNoRunner()
		}
		usage, err := runner.Resources(ctx, input.JobID)
		if err != nil {
			return nil, apiError(err)
		}
		return &JobResourcesOutput{Body: schemas.NewUsageResponse(usage)}, nil
	})
}
