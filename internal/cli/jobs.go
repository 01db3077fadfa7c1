package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/raphaelgruber/homework-marker/internal/models"
	"github.com/spf13/cobra"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs [job-id]",
	Short: "List or inspect marking jobs",
	Long: `List all marking jobs or inspect a specific job by ID.

Examples:
  marker jobs                                         # List all jobs
  marker jobs 8f14e45f-ceea-4e7a-9b1c-2f0c8f1f5a01    # Show one job`,
	Args: cobra.MaximumNArgs(1),
	RunE: runJobs,
}

func runJobs(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if len(args) == 1 {
		return showJob(ctx, args[0])
	}
	return listJobs(ctx)
}

func listJobs(ctx context.Context) error {
	jobs, err := apiClient.ListJobs(ctx)
	if err != nil {
		return fmt.Errorf("list jobs: %w", err)
	}

	if len(jobs) == 0 {
		fmt.Println("No jobs found")
		return nil
	}

	fmt.Printf("%-36s  %-10s  %-10s  %-6s  %-20s  %s\n", "ID", "STATUS", "STAGE", "MARK", "STUDENT", "STARTED")
	fmt.Println("--------------------------------------------------------------------------------------------------------")

	for _, job := range jobs {
		mark := job.Mark
		if mark == "" {
			mark = "-"
		}
		fmt.Printf("%-36s  %-10s  %-10s  %-6s  %-20s  %s\n",
			job.ID, job.Status, job.Stage, mark,
			models.Truncate(job.StudentName, 20), job.StartedAt.Local().Format("01-02 15:04:05"))
	}

	return nil
}

func showJob(ctx context.Context, id string) error {
	job, err := apiClient.GetJob(ctx, id)
	if err != nil {
		return fmt.Errorf("get job: %w", err)
	}
	if job == nil {
		return fmt.Errorf("job not found: %s", id)
	}

	fmt.Printf("Job: %s\n", job.ID)
	fmt.Printf("  Status: %s\n", job.Status)
	fmt.Printf("  Stage: %s (%d/%d)\n", job.Stage, job.Progress, job.Total)
	if job.StudentName != "" {
		fmt.Printf("  Student: %s\n", job.StudentName)
	}
	if job.AssignmentTitle != "" {
		fmt.Printf("  Assignment: %s\n", job.AssignmentTitle)
	}
	fmt.Printf("  Started: %s\n", job.StartedAt.Format(time.RFC3339))
	if job.CompletedAt != nil {
		fmt.Printf("  Completed: %s\n", job.CompletedAt.Format(time.RFC3339))
		fmt.Printf("  Duration: %s\n", job.CompletedAt.Sub(job.StartedAt).Round(time.Second))
	}
	if job.Mark != "" {
		fmt.Printf("  Mark: %s\n", job.Mark)
	}
	if job.Error != "" {
		fmt.Printf("  Error: %s\n", job.Error)
	}
	if job.Status == "completed" {
		fmt.Printf("\nDownload the report with 'marker fetch %s'\n", job.ID)
	}

	return nil
}
