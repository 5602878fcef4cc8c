package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/gantryhq/gantry/internal/errors"
	"github.com/gantryhq/gantry/internal/logging"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Read the structured log file back",
	Long: `Read the JSON log written during runs, filter it, and print or export
it. Useful for debugging a run after the fact.

Examples:
  # Everything from one run
  gantry logs --run 1a2b3c4d

  # One item's fetch trouble, warnings and up
  gantry logs --item libpng@1.6.43 --stage fetch --level warn

  # Entries from the last half hour, matching a substring
  gantry logs --since 30m --grep "digest"

  # Export as CSV for a spreadsheet
  gantry logs --format csv --output run.csv`,
	Args: cobra.NoArgs,
	RunE: runLogs,
}

var (
	logsFile   string
	logsLevel  string
	logsRun    string
	logsItem   string
	logsStage  string
	logsSince  string
	logsGrep   string
	logsFormat string
	logsOutput string
)

func init() {
	rootCmd.AddCommand(logsCmd)

	logsCmd.Flags().StringVar(&logsFile, "file", "", "log file to read (default: the configured log.file)")
	logsCmd.Flags().StringVar(&logsLevel, "level", "", "minimum level: debug, info, warn, error")
	logsCmd.Flags().StringVar(&logsRun, "run", "", "only entries from this run ID")
	logsCmd.Flags().StringVar(&logsItem, "item", "", "only entries about this item key")
	logsCmd.Flags().StringVar(&logsStage, "stage", "", "only entries from this stage")
	logsCmd.Flags().StringVar(&logsSince, "since", "", "only entries newer than this, e.g. 30m or 2h")
	logsCmd.Flags().StringVar(&logsGrep, "grep", "", "only entries whose message contains this substring")
	logsCmd.Flags().StringVar(&logsFormat, "format", "text", "output format: text, json, csv")
	logsCmd.Flags().StringVar(&logsOutput, "output", "", "write to a file instead of stdout")
}

func runLogs(cmd *cobra.Command, args []string) error {
	cfg, err := loadedConfig()
	if err != nil {
		return err
	}

	path := logsFile
	if path == "" {
		path = cfg.Log.File
	}
	if path == "" {
		return errors.NewConfigError("no log file configured; pass --file or set log.file").
			WithField("log.file")
	}

	entries, err := logging.ReadLogs(path)
	if err != nil {
		return err
	}

	filter := logging.LogFilter{
		Level:           logsLevel,
		RunID:           logsRun,
		Item:            logsItem,
		Stage:           logsStage,
		MessageContains: logsGrep,
	}
	if logsSince != "" {
		d, err := time.ParseDuration(logsSince)
		if err != nil {
			return errors.NewConfigError("invalid duration").
				WithField("since").WithValue(logsSince).WithCause(err)
		}
		filter.StartTime = time.Now().Add(-d)
	}
	entries = logging.FilterLogs(entries, filter)

	if logsOutput != "" {
		if err := logging.ExportLogEntries(entries, logsOutput, logsFormat); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %d entries to %s\n", len(entries), logsOutput)
		return nil
	}
	return logging.WriteLogEntries(cmd.OutOrStdout(), entries, logsFormat)
}
