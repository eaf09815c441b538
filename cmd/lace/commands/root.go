// Package commands implements the lace CLI's cobra command tree.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/runlace/core/internal/logging"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
)

var (
	flagPrintLogs bool
	flagLogLevel  string
	flagLogFile   string
	flagModel     string
)

var rootCmd = &cobra.Command{
	Use:     "lace",
	Short:   "lace is a multi-agent coding assistant",
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := logging.DefaultConfig()
		if flagLogLevel != "" {
			cfg.Level = logging.ParseLevel(flagLogLevel)
		}
		cfg.Pretty = flagPrintLogs
		if flagLogFile != "" {
			cfg.LogToFile = true
			cfg.LogDir = flagLogFile
		}
		logging.Init(cfg)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&flagPrintLogs, "print-logs", false, "write human-readable console logs instead of JSON")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "override the configured log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&flagLogFile, "log-file", "", "also write logs to a timestamped lace-*.log file in this directory")
	rootCmd.PersistentFlags().StringVarP(&flagModel, "model", "m", "", "override the default model for this invocation")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(agentCmd)
}

// Execute runs the root command, returning any error for main to report.
func Execute() error {
	return rootCmd.Execute()
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
