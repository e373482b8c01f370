package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/freight-quotes/internal/schedule"
)

var (
	planCarrier string
	planJobs    string
	planOutput  string
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Print the order routes would be quoted in",
	Long:  "Classifies every route against the carrier's result table and prints the run order without touching the portal.",
	RunE: func(_ *cobra.Command, _ []string) error {
		return printPlan(os.Stdout, planCarrier, planJobs, planOutput)
	},
}

// printPlan orders the jobs against a carrier's store and writes the plan.
func printPlan(out io.Writer, name, jobsPath, output string) error {
	if _, err := cfg.Carrier(name); err != nil {
		return err
	}
	jobList, err := loadJobs(jobsPath)
	if err != nil {
		return eris.Wrapf(err, "%s: load jobs", name)
	}
	store, err := loadStore(name, output)
	if err != nil {
		return err
	}

	entries := schedule.Order(jobList, store, cfg.SuccessOrder())
	_, _ = fmt.Fprintf(out, "%s: %d routes (%s)\n", name, len(entries), cfg.SuccessOrder())
	formatPlan(out, entries)
	return nil
}

// formatPlan writes a tabular run order to w.
func formatPlan(out io.Writer, entries []schedule.Entry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "#\tROUTE\tBUCKET\tSINCE")
	for i, e := range entries {
		since := "-"
		if !e.Ref.IsZero() {
			since = e.Ref.UTC().Format(time.RFC3339)
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", i+1, e.Job.Key(), e.Bucket, since)
	}
	_ = w.Flush()
}

func init() {
	planCmd.Flags().StringVar(&planCarrier, "carrier", "", "carrier to plan for")
	planCmd.Flags().StringVar(&planJobs, "jobs", "", "route list (.xlsx or .csv); defaults to jobs.path")
	planCmd.Flags().StringVar(&planOutput, "output", "", "result table path; defaults to the carrier's store")
	_ = planCmd.MarkFlagRequired("carrier")
	rootCmd.AddCommand(planCmd)
}
