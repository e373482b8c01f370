package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/freight-quotes/internal/model"
	"github.com/sells-group/freight-quotes/internal/resultstore"
)

var (
	statusCarrier string
	statusOutput  string
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Summarize a carrier's result table",
	RunE: func(_ *cobra.Command, _ []string) error {
		if _, err := cfg.Carrier(statusCarrier); err != nil {
			return err
		}
		store, err := loadStore(statusCarrier, statusOutput)
		if err != nil {
			return err
		}
		formatStoreStatus(os.Stdout, store)
		return nil
	},
}

// formatStoreStatus writes the table summary followed by the routes whose
// latest attempt did not succeed.
func formatStoreStatus(out io.Writer, t *resultstore.Table) {
	s := t.Summarize()

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Store:\t%s\n", t.Path())
	_, _ = fmt.Fprintf(w, "Routes:\t%d\n", s.Total)
	_, _ = fmt.Fprintf(w, "  success:\t%d\n", s.ByStatus[model.StatusSuccess])
	_, _ = fmt.Fprintf(w, "  no_quote:\t%d\n", s.ByStatus[model.StatusNoQuote])
	_, _ = fmt.Fprintf(w, "  error:\t%d\n", s.ByStatus[model.StatusError])
	_, _ = fmt.Fprintf(w, "With a quote:\t%d\n", s.Quoted)
	_, _ = fmt.Fprintf(w, "Oldest quote:\t%s\n", formatTime(s.OldestQuote))
	_, _ = fmt.Fprintf(w, "Newest quote:\t%s\n", formatTime(s.NewestQuote))
	_, _ = fmt.Fprintf(w, "Last attempt:\t%s\n", formatTime(s.LastAttempt))
	_, _ = fmt.Fprintf(w, "Charge columns:\t%d\n", s.ChargeColumn)
	_ = w.Flush()

	var failing []model.AttemptRecord
	for _, rec := range t.Records() {
		if rec.Status != model.StatusSuccess && rec.HasHistory() {
			failing = append(failing, rec)
		}
	}
	if len(failing) == 0 {
		return
	}

	_, _ = fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ROUTE\tSTATUS\tLAST_ATTEMPT\tQUOTED_AT\tMESSAGE")
	for _, rec := range failing {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			rec.Key, rec.Status, formatTime(rec.LastAttemptAt), formatTime(rec.QuotedAt), rec.Message)
	}
	_ = w.Flush()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func init() {
	statusCmd.Flags().StringVar(&statusCarrier, "carrier", "", "carrier whose table to summarize")
	statusCmd.Flags().StringVar(&statusOutput, "output", "", "result table path; defaults to the carrier's store")
	_ = statusCmd.MarkFlagRequired("carrier")
	rootCmd.AddCommand(statusCmd)
}
