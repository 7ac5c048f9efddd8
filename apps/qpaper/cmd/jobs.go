package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/quatton/qpaper/pkg/qjob"
	"github.com/quatton/qpaper/pkg/qrunner"
)

var (
	submitInputs  string
	submitInput   []string
	submitJobID   string
	submitWait    bool
	waitTimeout   time.Duration
	waitInterval  time.Duration
	listProcessID string
	listStatus    string
	logsTail      int64
)

var jobsCmd = &cobra.Command{
	Use:     "jobs",
	Aliases: []string{"job"},
	Short:   "Submit and inspect notebook jobs",
}

var submitCmd = &cobra.Command{
	Use:   "submit <process-id>",
	Short: "Submit a notebook job",
	Long: `Submit a notebook job for a configured process.

Examples:
  # Run a notebook with structured parameters
  qpaper jobs submit notebook-exec --inputs '{"notebook": "a.ipynb", "params": {"x": 1}}'

  # Same, one input at a time, and wait for the result
  qpaper jobs submit notebook-exec --input notebook=a.ipynb --input cpu_limit=2 --id job-42 --wait`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		params, err := parseInputs(submitInputs, submitInput)
		if err != nil {
			return err
		}
		m, err := newManager()
		if err != nil {
			return err
		}

		job, err := m.Execute(cmd.Context(), args[0], params, submitJobID)
		if err != nil {
			return explain(err)
		}
		if !submitWait {
			return printJSON(cmd.OutOrStdout(), job)
		}

		job, err = waitForJob(cmd.Context(), m, job.ID)
		if err != nil {
			return explain(err)
		}
		if err := printJSON(cmd.OutOrStdout(), job); err != nil {
			return err
		}
		return job.Err()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show the state of a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := newManager()
		if err != nil {
			return err
		}
		job, err := m.GetStatus(cmd.Context(), args[0])
		if err != nil {
			return explain(err)
		}
		return printJSON(cmd.OutOrStdout(), job)
	},
}

var cancelCmd = &cobra.Command{
	Use:     "cancel <job-id>",
	Aliases: []string{"dismiss"},
	Short:   "Dismiss a job that has not finished",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := newManager()
		if err != nil {
			return err
		}
		job, err := m.Cancel(cmd.Context(), args[0])
		if err != nil {
			return explain(err)
		}
		return printJSON(cmd.OutOrStdout(), job)
	},
}

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List jobs, newest first",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		filter := qrunner.ListFilter{ProcessID: listProcessID}
		if listStatus != "" {
			status, err := qjob.ParseStatus(listStatus)
			if err != nil {
				return err
			}
			filter.Status = status
		}
		m, err := newManager()
		if err != nil {
			return err
		}
		jobs, err := m.ListJobs(cmd.Context(), filter)
		if err != nil {
			return explain(err)
		}
		return printJobTable(cmd.OutOrStdout(), jobs)
	},
}

var resultCmd = &cobra.Command{
	Use:   "result <job-id>",
	Short: "Locate the output notebook of a successful job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := newManager()
		if err != nil {
			return err
		}
		result, err := m.GetResult(cmd.Context(), args[0])
		if err != nil {
			return explain(err)
		}
		return printJSON(cmd.OutOrStdout(), result)
	},
}

var logsCmd = &cobra.Command{
	Use:   "logs <job-id>",
	Short: "Print the notebook container logs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := newManager()
		if err != nil {
			return err
		}
		logs, err := m.Logs(cmd.Context(), args[0], logsTail)
		if err != nil {
			return explain(err)
		}
		_, err = io.WriteString(cmd.OutOrStdout(), logs)
		return err
	},
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.AddCommand(submitCmd, statusCmd, cancelCmd, listCmd, resultCmd, logsCmd)

	jobsCmd.PersistentFlags().StringVar(&resultsDir, "results-dir", "", "local mount of the home volume, used to verify result notebooks")

	submitCmd.Flags().StringVar(&submitInputs, "inputs", "", "inputs as a JSON object")
	submitCmd.Flags().StringArrayVarP(&submitInput, "input", "i", nil, "single input as name=value; JSON values are kept, anything else is a string")
	submitCmd.Flags().StringVar(&submitJobID, "id", "", "desired job id (generated when empty)")
	submitCmd.Flags().BoolVarP(&submitWait, "wait", "w", false, "wait until the job finishes")
	submitCmd.Flags().DurationVar(&waitTimeout, "timeout", 2*time.Hour, "how long --wait waits")
	submitCmd.Flags().DurationVar(&waitInterval, "interval", 5*time.Second, "how often --wait polls")

	listCmd.Flags().StringVar(&listProcessID, "process", "", "only jobs of this process")
	listCmd.Flags().StringVar(&listStatus, "status", "", "only jobs in this status (accepted, running, successful, failed, dismissed)")

	logsCmd.Flags().Int64Var(&logsTail, "tail", 0, "only the last lines")
}

// parseInputs merges the JSON object with name=value pairs, which win.
func parseInputs(raw string, pairs []string) (qjob.Parameters, error) {
	var params qjob.Parameters
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &params); err != nil {
			return nil, fmt.Errorf("parsing --inputs: %w", err)
		}
	}
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("input %q is not name=value", pair)
		}
		var v json.RawMessage
		if json.Valid([]byte(value)) {
			v = json.RawMessage(value)
		} else {
			v, _ = json.Marshal(value)
		}
		params = params.Set(name, v)
	}
	return params, nil
}

func waitForJob(ctx context.Context, runner qrunner.Runner, jobID string) (*qjob.Job, error) {
	var job *qjob.Job
	err := wait.PollUntilContextTimeout(ctx, waitInterval, waitTimeout, true, func(ctx context.Context) (bool, error) {
		var err error
		job, err = runner.GetStatus(ctx, jobID)
		if err != nil {
			return false, err
		}
		return job.Status.Terminal(), nil
	})
	if err != nil {
		return job, fmt.Errorf("waiting for job %s: %w", jobID, err)
	}
	return job, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printJobTable(w io.Writer, jobs []*qjob.Job) error {
	if _, err := fmt.Fprintf(w, "%-40s %-20s %-11s %s\n", "ID", "PROCESS", "STATUS", "CREATED"); err != nil {
		return err
	}
	for _, j := range jobs {
		if _, err := fmt.Fprintf(w, "%-40s %-20s %-11s %s\n", j.ID, j.ProcessID, j.Status, j.CreatedAt.Format(time.RFC3339)); err != nil {
			return err
		}
	}
	return nil
}
