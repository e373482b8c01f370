package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/freight-quotes/internal/diag"
	"github.com/sells-group/freight-quotes/internal/model"
	"github.com/sells-group/freight-quotes/internal/monitoring"
	"github.com/sells-group/freight-quotes/internal/runner"
)

var dailyDryRun bool

var dailyCmd = &cobra.Command{
	Use:   "daily",
	Short: "Run every enabled carrier pipeline",
	Long:  "Prunes old diagnostics, then runs the configured carriers side by side, each with its own browser session and result table. Exits non-zero if any pipeline failed.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		carriers := dailyCarriers()
		if len(carriers) == 0 {
			return eris.New("daily: no enabled carriers")
		}

		if dailyDryRun {
			for _, name := range carriers {
				if err := printPlan(os.Stdout, name, "", ""); err != nil {
					return err
				}
			}
			return nil
		}

		pruneDiagnostics(time.Now())

		results := runDaily(ctx, carriers, cfg.Daily.MaxConcurrent, func(ctx context.Context, name string) (runner.Summary, error) {
			return runCarrier(ctx, name, pipelineOpts{})
		})
		formatDailyResults(os.Stdout, results)

		var failed []string
		aborted := make(map[string]error)
		for _, r := range results {
			if r.Err != nil {
				failed = append(failed, r.Carrier)
				aborted[r.Carrier] = r.Err
			}
		}
		checkHealth(context.WithoutCancel(ctx), aborted)

		if len(failed) > 0 {
			return eris.Errorf("daily: %d pipeline(s) failed: %s", len(failed), strings.Join(failed, ", "))
		}
		return nil
	},
}

// dailyResult is the outcome of one carrier pipeline.
type dailyResult struct {
	Carrier string
	Summary runner.Summary
	Err     error
}

// dailyCarriers returns the configured daily carriers that are enabled.
func dailyCarriers() []string {
	var out []string
	for _, name := range cfg.Daily.Carriers {
		cc, err := cfg.Carrier(name)
		if err != nil || !cc.Enabled {
			continue
		}
		out = append(out, strings.ToLower(name))
	}
	return out
}

// runDaily runs fn for every carrier with at most limit running at once. A
// failing pipeline never cancels the others. Results keep carrier order.
func runDaily(ctx context.Context, carriers []string, limit int, fn func(context.Context, string) (runner.Summary, error)) []dailyResult {
	results := make([]dailyResult, len(carriers))
	var mu sync.Mutex

	g := new(errgroup.Group)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, name := range carriers {
		g.Go(func() error {
			sum, err := fn(ctx, name)
			if err != nil {
				zap.L().Error("daily: pipeline failed", zap.String("carrier", name), zap.Error(err))
			}
			mu.Lock()
			results[i] = dailyResult{Carrier: name, Summary: sum, Err: err}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// checkHealth raises alerts for aborted pipelines and for carriers whose
// logged error rate is over the threshold.
func checkHealth(ctx context.Context, aborted map[string]error) []monitoring.Alert {
	if !cfg.RunLog.Enabled {
		return nil
	}
	rl, err := openRunLog(ctx)
	if err != nil {
		zap.L().Warn("daily: open run log for health check", zap.Error(err))
		return nil
	}
	defer rl.Close() //nolint:errcheck

	checker := monitoring.NewChecker(
		monitoring.NewCollector(rl),
		monitoring.NewAlerter(cfg.Monitoring),
		cfg.Monitoring,
	)
	return checker.Check(ctx, aborted)
}

func pruneDiagnostics(now time.Time) {
	if !cfg.Diag.Enabled || cfg.Diag.Dir == "" {
		return
	}
	keep := time.Duration(cfg.Diag.RetentionDays) * 24 * time.Hour
	removed, failed, err := diag.Prune(cfg.Diag.Dir, keep, now)
	if err != nil {
		zap.L().Warn("daily: prune diagnostics", zap.Error(err))
		return
	}
	zap.L().Info("daily: pruned diagnostics", zap.Int("removed", removed), zap.Int("failed", failed))
}

// formatDailyResults writes one line per pipeline.
func formatDailyResults(out io.Writer, results []dailyResult) {
	sorted := make([]dailyResult, len(results))
	copy(sorted, results)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Carrier < sorted[j].Carrier })

	for _, r := range sorted {
		if r.Err != nil {
			_, _ = fmt.Fprintf(out, "%-8s FAILED  %v\n", r.Carrier, r.Err)
			continue
		}
		_, _ = fmt.Fprintf(out, "%-8s ok      %d/%d routes, success=%d no_quote=%d error=%d\n",
			r.Carrier, len(r.Summary.Routes), r.Summary.Planned,
			r.Summary.ByStatus[model.StatusSuccess], r.Summary.ByStatus[model.StatusNoQuote], r.Summary.ByStatus[model.StatusError])
	}
}

func init() {
	dailyCmd.Flags().BoolVar(&dailyDryRun, "dry-run", false, "print each carrier's plan without opening sessions")
	rootCmd.AddCommand(dailyCmd)
}
