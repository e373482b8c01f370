package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/freight-quotes/internal/model"
	"github.com/sells-group/freight-quotes/internal/runlog"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List logged quote attempts",
	Long:  "Lists attempts from the SQLite run log, newest first.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		rl, err := openRunLog(ctx)
		if err != nil {
			return err
		}
		defer rl.Close() //nolint:errcheck

		carrierName, _ := cmd.Flags().GetString("carrier")
		status, _ := cmd.Flags().GetString("status")
		runID, _ := cmd.Flags().GetString("run")
		since, _ := cmd.Flags().GetDuration("since")
		limit, _ := cmd.Flags().GetInt("limit")

		filter := runlog.Filter{
			RunID:   runID,
			Carrier: carrierName,
			Limit:   limit,
		}
		if status != "" {
			filter.Status = model.ParseStatus(status)
		}
		if since > 0 {
			filter.Since = time.Now().Add(-since)
		}

		entries, err := rl.List(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "runs")
		}
		if len(entries) == 0 {
			fmt.Fprintln(os.Stderr, "No attempts found.")
			return nil
		}

		formatAttempts(os.Stdout, entries)
		return nil
	},
}

// formatAttempts writes a tabular list of logged attempts to w.
func formatAttempts(out io.Writer, entries []runlog.Entry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "RUN\tCARRIER\tROUTE\tSTATUS\tCODE\tRETRIES\tFINISHED\tDURATION")
	for _, e := range entries {
		code := e.Code
		if code == "" {
			code = "-"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			truncateID(e.RunID),
			e.Carrier,
			e.Key,
			e.Status,
			code,
			e.Retries,
			e.FinishedAt.UTC().Format("2006-01-02 15:04:05"),
			formatDuration(e.FinishedAt.Sub(e.StartedAt)),
		)
	}
	_ = w.Flush()
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return d.Round(100 * time.Millisecond).String()
}

func init() {
	runsCmd.Flags().String("carrier", "", "filter by carrier")
	runsCmd.Flags().String("status", "", "filter by status (success, no_quote, error)")
	runsCmd.Flags().String("run", "", "filter by run id")
	runsCmd.Flags().Duration("since", 0, "only attempts finished within this window (e.g. 24h)")
	runsCmd.Flags().Int("limit", 50, "max number of attempts to display")
	rootCmd.AddCommand(runsCmd)
}
