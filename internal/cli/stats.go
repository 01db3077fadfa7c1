package cli

import (
	"context"
	"fmt"

	"github.com/raphaelgruber/homework-marker/internal/metrics"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show server statistics",
	Long: `Show the worker pool state, job counts and per-operation timings and
token usage of the marking server since its last restart.`,
	Args: cobra.NoArgs,
	RunE: runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	stats, err := apiClient.Stats(context.Background())
	if err != nil {
		return fmt.Errorf("get server stats: %w", err)
	}

	fmt.Printf("Server Statistics (in-memory, since restart)\n")
	fmt.Printf("═══════════════════════════════════════════════\n")
	fmt.Printf("Workers: %d, queued: %d\n", stats.Workers, stats.Queued)

	snap := stats.Metrics
	if snap == nil {
		return nil
	}
	fmt.Printf("Uptime: %.1f seconds\n", snap.UptimeSeconds)

	if len(snap.Jobs) > 0 {
		fmt.Printf("\nJobs:\n")
		for _, status := range []string{"submitted", "completed", "failed", "rejected"} {
			if n, ok := snap.Jobs[status]; ok {
				fmt.Printf("  %-10s %d\n", status, n)
			}
		}
	}

	printOp("PDF Extract", snap.PDFExtract)
	printOp("Embeddings", snap.Embedding)
	printOp("Retrieval", snap.Retrieval)
	printOp("LLM Generate", snap.LLMGenerate)
	printTokenStats(snap.LLMGenerate)
	printOp("Report Render", snap.ReportRender)
	printOp("DB Query", snap.DBQuery)
	printOp("DB Search", snap.DBSearch)

	return nil
}

// printOp displays timing statistics for an operation.
func printOp(name string, op *metrics.OperationSnapshot) {
	if op == nil {
		return
	}
	fmt.Printf("\n%s:\n", name)
	fmt.Printf("  Calls: %d, Total: %dms\n", op.Count, op.TotalTimeMs)
	fmt.Printf("  Time: avg %.1fms, min %dms, max %dms\n", op.AvgTimeMs, op.MinTimeMs, op.MaxTimeMs)
}

// printTokenStats displays token statistics if available.
func printTokenStats(op *metrics.OperationSnapshot) {
	if op == nil || op.TotalInputTokens == nil || op.TotalOutputTokens == nil {
		return
	}
	fmt.Printf("  Tokens In:  %d total", *op.TotalInputTokens)
	if op.AvgInputTokens != nil {
		fmt.Printf(", avg %.0f", *op.AvgInputTokens)
	}
	if op.MinInputTokens != nil && op.MaxInputTokens != nil {
		fmt.Printf(", min %d, max %d", *op.MinInputTokens, *op.MaxInputTokens)
	}
	fmt.Println()

	fmt.Printf("  Tokens Out: %d total", *op.TotalOutputTokens)
	if op.AvgOutputTokens != nil {
		fmt.Printf(", avg %.0f", *op.AvgOutputTokens)
	}
	if op.MinOutputTokens != nil && op.MaxOutputTokens != nil {
		fmt.Printf(", min %d, max %d", *op.MinOutputTokens, *op.MaxOutputTokens)
	}
	fmt.Println()
}
