// Package cli provides the command-line interface for the marking service.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/raphaelgruber/homework-marker/internal/client"
	"github.com/raphaelgruber/homework-marker/internal/config"
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose   bool
	serverURL string

	// Global config and API client
	cfg       *config.Config
	apiClient *client.Client
	logger    *slog.Logger
	closeLog  func() error
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "marker",
	Short: "Automated homework marking",
	Long: `Marker grades homework PDFs against a marking criteria PDF.

Submissions are sent to a marking server which extracts the text, retrieves
related rubric passages, asks a language model for a mark and feedback, and
renders a PDF report. Use 'marker grade' to run the same pipeline locally.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		cfg = config.Load()
		if serverURL != "" {
			cfg.ServerURL = serverURL
		}

		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		logger, closeLog = config.SetupLogger(cfg.LogFile, level)
		slog.SetDefault(logger)

		apiClient = client.New(cfg.ServerURL, cfg.ClientTimeout)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if closeLog != nil {
			if err := closeLog(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close log file: %v\n", err)
			}
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "marking server URL (default $MARKER_SERVER_URL)")

	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(gradeCmd)
	rootCmd.AddCommand(statsCmd)
}
