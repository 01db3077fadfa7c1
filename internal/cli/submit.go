package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/raphaelgruber/homework-marker/internal/client"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	submitStudent string
	submitTitle   string
	submitWait    bool
	submitOut     string
)

var submitCmd = &cobra.Command{
	Use:   "submit <marking-criteria.pdf> <homework.pdf>",
	Short: "Upload homework for marking",
	Long: `Upload a marking criteria PDF and a homework PDF to the marking server.

The server marks the submission in the background. With --wait the command
follows the job until it finishes and downloads the feedback report.

Examples:
  marker submit rubric.pdf essay.pdf
  marker submit rubric.pdf essay.pdf --student "Jane Doe" --title "Essay 1"
  marker submit rubric.pdf essay.pdf --wait --out jane_feedback.pdf`,
	Args: cobra.ExactArgs(2),
	RunE: runSubmit,
}

func init() {
	submitCmd.Flags().StringVarP(&submitStudent, "student", "s", "", "student name")
	submitCmd.Flags().StringVarP(&submitTitle, "title", "t", "", "assignment title")
	submitCmd.Flags().BoolVarP(&submitWait, "wait", "w", false, "wait for marking to finish and download the report")
	submitCmd.Flags().StringVarP(&submitOut, "out", "o", "", "report output path (default <job-id>_feedback.pdf)")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	resp, err := apiClient.Upload(ctx, client.Submission{
		CriteriaPath:    args[0],
		HomeworkPath:    args[1],
		StudentName:     submitStudent,
		AssignmentTitle: submitTitle,
	})
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}

	fmt.Printf("Job %s submitted.\n", resp.JobID)
	if !submitWait {
		fmt.Printf("Use 'marker jobs %s' to check status and 'marker fetch %s' to download the report.\n",
			resp.JobID, resp.JobID)
		return nil
	}

	job, detached, err := waitForJob(ctx, resp.JobID)
	if err != nil {
		return err
	}
	if detached {
		return nil
	}
	if job.Status != "completed" {
		return fmt.Errorf("job %s ended as %s", job.ID, job.Status)
	}

	return downloadReport(ctx, resp.JobID, submitOut)
}

// waitForJob follows a job with the progress UI on a terminal and plain
// polling otherwise.
func waitForJob(ctx context.Context, jobID string) (*client.Job, bool, error) {
	if term.IsTerminal(int(os.Stdout.Fd())) {
		return RunJobProgress(apiClient, jobID)
	}

	lastStage := ""
	job, err := apiClient.WaitForJob(ctx, jobID, pollInterval, func(j *client.Job) {
		if j.Stage != lastStage {
			lastStage = j.Stage
			fmt.Printf("  [%d/%d] %s\n", j.Progress, j.Total, j.Stage)
		}
	})
	if err != nil {
		return nil, false, fmt.Errorf("wait for job: %w", err)
	}
	if job.Status == "failed" {
		return job, false, fmt.Errorf("marking failed: %s", job.Error)
	}

	fmt.Print(completedSummary(defaultTheme, job))
	return job, false, nil
}

func downloadReport(ctx context.Context, jobID, out string) error {
	if out == "" {
		out = jobID + "_feedback.pdf"
	}
	if dir := filepath.Dir(out); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}

	status, err := apiClient.DownloadResult(ctx, jobID, out)
	if err != nil {
		return fmt.Errorf("download report: %w", err)
	}

	switch status.Status {
	case "completed":
		fmt.Printf("Report saved to %s\n", out)
		return nil
	case "failed":
		return fmt.Errorf("marking failed: %s", status.Error)
	default:
		fmt.Println(status.Message)
		return nil
	}
}
