package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/raphaelgruber/homework-marker/internal/client"
	"github.com/spf13/cobra"
)

var fetchOut string

var fetchCmd = &cobra.Command{
	Use:   "fetch <job-id>",
	Short: "Download the feedback report of a job",
	Long: `Download the feedback report PDF of a marking job. If the job is still
running, its current status is printed instead.

Examples:
  marker fetch 8f14e45f-ceea-4e7a-9b1c-2f0c8f1f5a01
  marker fetch 8f14e45f-ceea-4e7a-9b1c-2f0c8f1f5a01 -o reports/jane.pdf`,
	Args: cobra.ExactArgs(1),
	RunE: runFetch,
}

func init() {
	fetchCmd.Flags().StringVarP(&fetchOut, "out", "o", "", "report output path (default <job-id>_feedback.pdf)")
}

func runFetch(cmd *cobra.Command, args []string) error {
	err := downloadReport(context.Background(), args[0], fetchOut)
	if errors.Is(err, client.ErrNotFound) {
		return fmt.Errorf("job not found: %s", args[0])
	}
	return err
}
