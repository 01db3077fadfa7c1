package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/raphaelgruber/homework-marker/internal/app"
	"github.com/raphaelgruber/homework-marker/internal/models"
	"github.com/raphaelgruber/homework-marker/internal/service"
	"github.com/spf13/cobra"
)

var (
	gradeStudent string
	gradeTitle   string
	gradeOut     string
)

var gradeCmd = &cobra.Command{
	Use:   "grade <marking-criteria.pdf> <homework.pdf>",
	Short: "Mark homework locally without a server",
	Long: `Run the marking pipeline in-process: extract both PDFs, retrieve related
rubric passages, generate a mark and feedback with the configured language
model, and write the feedback report.

Backends and model providers come from the same environment variables the
server reads.

Examples:
  marker grade rubric.pdf essay.pdf
  marker grade rubric.pdf essay.pdf --student "Jane Doe" --title "Essay 1" -o jane.pdf`,
	Args: cobra.ExactArgs(2),
	RunE: runGrade,
}

func init() {
	gradeCmd.Flags().StringVarP(&gradeStudent, "student", "s", "", "student name")
	gradeCmd.Flags().StringVarP(&gradeTitle, "title", "t", "", "assignment title")
	gradeCmd.Flags().StringVarP(&gradeOut, "out", "o", "", "report output path (default <homework>_feedback.pdf)")
}

func runGrade(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for _, path := range args {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
	}

	out := gradeOut
	if out == "" {
		base := strings.TrimSuffix(filepath.Base(args[1]), filepath.Ext(args[1]))
		out = base + "_feedback.pdf"
	}

	a, err := app.New(ctx, cfg, logger, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(context.Background()); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close backends: %v\n", err)
		}
	}()

	job := models.JobRecord{
		ID:              uuid.NewString(),
		StudentName:     gradeStudent,
		AssignmentTitle: gradeTitle,
		CriteriaPath:    args[0],
		HomeworkPath:    args[1],
		ResultPath:      out,
		Total:           service.TotalStages,
	}

	step := 0
	outcome, err := a.Pipeline.Process(ctx, job, func(stage service.JobStage) {
		step++
		fmt.Printf("  [%d/%d] %s\n", step, job.Total, stage)
	})
	if err != nil {
		return fmt.Errorf("marking failed: %w", err)
	}

	fmt.Print(completedSummary(defaultTheme, nil))
	fmt.Printf("  Mark:   %s\n", outcome.Mark)
	fmt.Printf("  Report: %s\n", outcome.ResultPath)
	return nil
}
