package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/freight-quotes/internal/model"
	"github.com/sells-group/freight-quotes/internal/runner"
)

var (
	quoteCarrier string
	quoteJobs    string
	quoteOutput  string
	quoteLimit   int
	quoteOffline string
)

var quoteCmd = &cobra.Command{
	Use:   "quote",
	Short: "Quote every route for one carrier",
	Long:  "Reads the route list, orders it by staleness and quotes each route on the carrier portal. Every outcome is written to the carrier's result table before the next route starts.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		sum, err := runCarrier(ctx, quoteCarrier, pipelineOpts{
			Jobs:    quoteJobs,
			Output:  quoteOutput,
			Limit:   quoteLimit,
			Offline: quoteOffline,
		})
		if err != nil {
			return err
		}
		formatRunSummary(os.Stdout, sum)
		return nil
	},
}

// runCarrier loads the jobs, builds the carrier pipeline and runs it once.
func runCarrier(ctx context.Context, name string, opts pipelineOpts) (runner.Summary, error) {
	jobList, err := loadJobs(opts.Jobs)
	if err != nil {
		return runner.Summary{}, eris.Wrapf(err, "%s: load jobs", name)
	}

	env, err := initPipeline(ctx, name, opts)
	if err != nil {
		return runner.Summary{}, err
	}
	defer env.Close(context.WithoutCancel(ctx))

	sum, err := env.Runner.Run(ctx, jobList)
	if err != nil {
		return sum, err
	}
	if sum.Interrupted {
		zap.L().Warn("quote: run interrupted", zap.String("carrier", name), zap.Int("attempted", len(sum.Routes)))
	}
	return sum, nil
}

// formatRunSummary writes the per-route outcomes and totals of a run.
func formatRunSummary(out io.Writer, sum runner.Summary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ROUTE\tSTATUS\tRETRIES\tELAPSED\tMESSAGE")
	for _, r := range sum.Routes {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			r.Key, r.Status, r.Retries, r.Elapsed.Round(time.Second), r.Message)
	}
	_ = w.Flush()

	statuses := make([]string, 0, len(sum.ByStatus))
	for s := range sum.ByStatus {
		statuses = append(statuses, string(s))
	}
	sort.Strings(statuses)

	_, _ = fmt.Fprintf(out, "\n%s run %s: %d of %d routes attempted", sum.Carrier, truncateID(sum.RunID), len(sum.Routes), sum.Planned)
	for _, s := range statuses {
		_, _ = fmt.Fprintf(out, ", %s=%d", s, sum.ByStatus[model.Status(s)])
	}
	if sum.Interrupted {
		_, _ = fmt.Fprint(out, " (interrupted)")
	}
	_, _ = fmt.Fprintln(out)
}

// truncateID shortens a UUID for display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	quoteCmd.Flags().StringVar(&quoteCarrier, "carrier", "", "carrier to quote (cma, hapag, maersk)")
	quoteCmd.Flags().StringVar(&quoteJobs, "jobs", "", "route list (.xlsx or .csv); defaults to jobs.path")
	quoteCmd.Flags().StringVar(&quoteOutput, "output", "", "result table path; defaults to the carrier's store")
	quoteCmd.Flags().IntVar(&quoteLimit, "limit", 0, "max routes to attempt (0 = all)")
	quoteCmd.Flags().StringVar(&quoteOffline, "offline", "", "scenario YAML driving a scripted portal instead of a browser")
	_ = quoteCmd.MarkFlagRequired("carrier")
	rootCmd.AddCommand(quoteCmd)
}
