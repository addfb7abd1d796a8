// unified-agent-replay inspects a session's canonical JSONL event log
// offline, without needing a running gateway (spec §4.13).
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ronaldeddings/unified-agent/internal/eventlog"
)

func newRootCommand() *cobra.Command {
	var dataDir string

	cmd := &cobra.Command{
		Use:   "unified-agent-replay",
		Short: "Inspect a gateway session's canonical JSONL event log",
	}
	cmd.PersistentFlags().StringVar(&dataDir, "data-dir", "./data", "gateway data directory (containing events/<metaSessionId>.jsonl)")

	cmd.AddCommand(newReportCommand(&dataDir))
	return cmd
}

func newReportCommand(dataDir *string) *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "report <metaSessionId>",
		Short: "Summarize one session's event log: counts by type and ordering warnings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			metaSessionID := args[0]
			if path == "" {
				path = fmt.Sprintf("%s/events/%s.jsonl", *dataDir, metaSessionID)
			}

			report, err := eventlog.ReplayFile(path)
			if err != nil {
				return fmt.Errorf("replay %s: %w", path, err)
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
	cmd.Flags().StringVar(&path, "file", "", "explicit path to a session's .jsonl file, overriding --data-dir")
	return cmd
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
