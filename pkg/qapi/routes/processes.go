package routes

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/quatton/qpaper/pkg/qapi/schemas"
	"github.com/quatton/qpaper/pkg/qrunner"
)

// ListProcessesOutput is the response for listing processes
type ListProcessesOutput struct {
	Body struct {
		Processes []schemas.Process `json:"processes" doc:"Configured processes"`
	}
}

// ExecuteInput defines the input for executing a process
type ExecuteInput struct {
	ProcessID string `path:"processId" doc:"Process ID"`
	Body      schemas.ExecuteRequest
}

// ExecuteOutput is the response for executing a process
type ExecuteOutput struct {
	Location string `header:"Location" doc:"Job URL"`
	Body     schemas.JobResponse
}

// RegisterProcesses registers process listing and execution
func RegisterProcesses(api huma.API, runner qrunner.Runner) {
	huma.Register(api, huma.Operation{
		OperationID: "list-processes",
		Method:      http.MethodGet,
		Path:        "/processes",
		Summary:     "List processes",
		Description: "Get the notebook processes this service can execute",
		Tags:        []string{TagProcesses.String()},
		Security:    BearerAuth,
	}, func(ctx context.Context, input *struct{}) (*ListProcessesOutput, error) {
		if runner == nil {
			return nil, errNoRunner()
		}
		processors := runner.Processors()
		resp := &ListProcessesOutput{}
		resp.Body.Processes = make([]schemas.Process, len(processors))
		for i := range processors {
			resp.Body.Processes[i] = schemas.NewProcess(&processors[i])
		}
		return resp, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "execute-process",
		Method:        http.MethodPost,
		Path:          "/processes/{processId}/execution",
		Summary:       "Execute a process",
		Description:   "Submit a notebook job. The job runs asynchronously, poll /jobs/{jobId} for its state.",
		Tags:          []string{TagProcesses.String()},
		Security:      BearerAuth,
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *ExecuteInput) (*ExecuteOutput, error) {
		if runner == nil {
			return nil, errNoRunner()
		}
		job, err := runner.Execute(ctx, input.ProcessID, input.Body.Inputs.Parameters, input.Body.JobID)
		if err != nil {
			return nil, apiError(err)
		}
		return &ExecuteOutput{
			Location: "/jobs/" + job.ID,
			Body:     schemas.NewJobResponse(job),
		}, nil
	})
}
