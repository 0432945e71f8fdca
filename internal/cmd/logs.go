package cmd

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/config"
	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/logging"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "View engine logs",
	Long: `View, filter and export the engine log.

Reads engine.log from logging.dir together with its rotated backups.
Logging to a file must be enabled (set logging.dir) for this command to
have anything to show.

Examples:
  # Show the last 50 entries
  mesched logs

  # Show all warnings and errors of one work order
  mesched logs -n 0 --level warn --work-order wo-1

  # Show logs from the last hour for the selected tenant
  mesched logs --since 1h -t acme

  # Export everything as CSV
  mesched logs -n 0 --format csv > engine.csv

  # Search for specific patterns
  mesched logs --grep "cycle|rejected"`,
	Args: cobra.NoArgs,
	RunE: runLogs,
}

var (
	logsDir       string
	logsTail      int
	logsLevel     string
	logsSince     string
	logsUntil     string
	logsWorkOrder string
	logsOperation string
	logsGrep      string
	logsFormat    string
)

func init() {
	rootCmd.AddCommand(logsCmd)

	logsCmd.Flags().StringVar(&logsDir, "dir", "", "Log directory (default: logging.dir)")
	logsCmd.Flags().IntVarP(&logsTail, "tail", "n", 50, "Number of entries to show (0 for all)")
	logsCmd.Flags().StringVar(&logsLevel, "level", "", "Filter by minimum level (debug/info/warn/error)")
	logsCmd.Flags().StringVar(&logsSince, "since", "", "Show logs since duration ago (e.g., 1h, 30m)")
	logsCmd.Flags().StringVar(&logsUntil, "until", "", "Show logs until duration ago (e.g., 10m)")
	logsCmd.Flags().StringVarP(&logsWorkOrder, "work-order", "w", "", "Filter by work order")
	logsCmd.Flags().StringVar(&logsOperation, "operation", "", "Filter by operation (e.g., AddDependency, balance)")
	logsCmd.Flags().StringVar(&logsGrep, "grep", "", "Filter logs matching pattern (regex)")
	logsCmd.Flags().StringVar(&logsFormat, "format", "text", fmt.Sprintf("Output format (%s)", strings.Join(logging.ExportFormats(), ", ")))
}

func runLogs(cmd *cobra.Command, args []string) error {
	dir := logsDir
	if dir == "" {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		dir = cfg.Logging.Dir
	}
	if dir == "" {
		return fmt.Errorf("file logging is disabled; set logging.dir or pass --dir")
	}

	// Parse filter options
	f := logging.Filter{
		WorkOrderID: logsWorkOrder,
		Operation:   logsOperation,
	}
	if logsLevel != "" {
		f.Level = logging.ParseLevel(logsLevel)
	}
	if cmd.Flags().Changed("tenant") {
		f.TenantID = viper.GetString("tenant")
	}
	now := time.Now()
	if logsSince != "" {
		d, err := time.ParseDuration(logsSince)
		if err != nil {
			return fmt.Errorf("invalid duration format: %w", err)
		}
		f.Since = now.Add(-d)
	}
	if logsUntil != "" {
		d, err := time.ParseDuration(logsUntil)
		if err != nil {
			return fmt.Errorf("invalid duration format: %w", err)
		}
		f.Until = now.Add(-d)
	}

	var grepRegex *regexp.Regexp
	if logsGrep != "" {
		var err error
		grepRegex, err = regexp.Compile(logsGrep)
		if err != nil {
			return fmt.Errorf("invalid grep pattern: %w", err)
		}
	}

	entries, err := logging.ReadEntries(dir)
	if err != nil {
		return err
	}
	entries = logging.FilterEntries(entries, f)
	if grepRegex != nil {
		entries = grepEntries(entries, grepRegex)
	}

	// Apply tail limit
	if logsTail > 0 && len(entries) > logsTail {
		entries = entries[len(entries)-logsTail:]
	}

	out := cmd.OutOrStdout()
	if len(entries) == 0 && logsFormat == "text" {
		fmt.Fprintln(out, "No matching log entries found.")
		return nil
	}
	return logging.WriteEntries(out, entries, logsFormat)
}

// grepEntries keeps entries whose message or attributes match re.
func grepEntries(entries []logging.Entry, re *regexp.Regexp) []logging.Entry {
	var out []logging.Entry
	for _, e := range entries {
		searchText := e.Message
		for _, v := range e.Attrs {
			searchText += " " + fmt.Sprintf("%v", v)
		}
		if re.MatchString(searchText) {
			out = append(out, e)
		}
	}
	return out
}
