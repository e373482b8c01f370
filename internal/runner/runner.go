// Package runner is the run loop: it orders a carrier's routes, attempts
// them one at a time through a single session and persists every outcome
// before moving on.
package runner

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/freight-quotes/internal/fx"
	"github.com/sells-group/freight-quotes/internal/model"
	"github.com/sells-group/freight-quotes/internal/quote"
	"github.com/sells-group/freight-quotes/internal/resultstore"
	"github.com/sells-group/freight-quotes/internal/runlog"
	"github.com/sells-group/freight-quotes/internal/schedule"
)

// Recorder receives a copy of every attempt. The run log implements it.
type Recorder interface {
	Append(ctx context.Context, e runlog.Entry) (string, error)
}

// Config tunes a run.
type Config struct {
	Carrier      string
	SuccessOrder schedule.SuccessOrder
	// Limit caps the routes attempted; zero means all.
	Limit int
	// Pace is the minimum gap between route starts; zero disables pacing.
	Pace time.Duration
}

// Option configures a Runner.
type Option func(*Runner)

// WithNormalizer converts charges before they are stored.
func WithNormalizer(n *fx.Normalizer) Option {
	return func(r *Runner) { r.fx = n }
}

// WithRecorder mirrors attempts into rec.
func WithRecorder(rec Recorder) Option {
	return func(r *Runner) { r.rec = rec }
}

// Runner owns one carrier pipeline: its adapter, session and result store.
type Runner struct {
	cfg     Config
	adapter quote.Adapter
	driver  *quote.Driver
	store   *resultstore.Table
	fx      *fx.Normalizer
	rec     Recorder
	limiter *rate.Limiter
}

// New creates a runner. driver must wrap adapter.
func New(cfg Config, adapter quote.Adapter, driver *quote.Driver, store *resultstore.Table, opts ...Option) *Runner {
	if cfg.Carrier == "" {
		cfg.Carrier = adapter.Name()
	}
	r := &Runner{cfg: cfg, adapter: adapter, driver: driver, store: store}
	if cfg.Pace > 0 {
		r.limiter = rate.NewLimiter(rate.Every(cfg.Pace), 1)
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RouteResult is the stored outcome of one route in a run.
type RouteResult struct {
	Key     string
	Status  model.Status
	Message string
	Retries int
	Elapsed time.Duration
}

// Summary reports a finished (or interrupted) run.
type Summary struct {
	RunID       string
	Carrier     string
	Planned     int
	Routes      []RouteResult
	ByStatus    map[model.Status]int
	Interrupted bool
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Plan returns the run order for jobs against the current store, capped by
// the configured limit.
func (r *Runner) Plan(jobs []model.RouteJob) []schedule.Entry {
	plan := schedule.Order(jobs, r.store, r.cfg.SuccessOrder)
	if r.cfg.Limit > 0 && len(plan) > r.cfg.Limit {
		plan = plan[:r.cfg.Limit]
	}
	return plan
}

// Run attempts every planned route. A login failure aborts before any route
// runs, and a store flush failure aborts the run since outcomes could no
// longer be persisted. Every other failure is recorded against its route.
// Cancelling ctx stops the run between routes; the route in flight always
// finishes and is stored.
func (r *Runner) Run(ctx context.Context, jobs []model.RouteJob) (Summary, error) {
	plan := r.Plan(jobs)
	sum := Summary{
		RunID:     runlog.NewRunID(),
		Carrier:   r.cfg.Carrier,
		Planned:   len(plan),
		ByStatus:  make(map[model.Status]int),
		StartedAt: time.Now().UTC(),
	}
	log := zap.L().With(zap.String("carrier", r.cfg.Carrier), zap.String("run_id", sum.RunID))
	log.Info("runner: starting run", zap.Int("jobs", len(jobs)), zap.Int("planned", len(plan)))

	if err := r.adapter.Login(ctx); err != nil {
		return sum, eris.Wrapf(err, "runner: %s login", r.cfg.Carrier)
	}

	for i, entry := range plan {
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				sum.Interrupted = true
				break
			}
		}
		if ctx.Err() != nil {
			sum.Interrupted = true
			break
		}

		log.Info("runner: route",
			zap.Int("n", i+1),
			zap.Int("of", len(plan)),
			zap.String("key", entry.Job.Key()),
			zap.String("bucket", entry.Bucket.String()),
		)
		res, err := r.runOne(ctx, sum.RunID, entry.Job)
		if err != nil {
			sum.FinishedAt = time.Now().UTC()
			return sum, err
		}
		sum.Routes = append(sum.Routes, res)
		sum.ByStatus[res.Status]++
	}

	sum.FinishedAt = time.Now().UTC()
	log.Info("runner: run finished",
		zap.Int("attempted", len(sum.Routes)),
		zap.Int("success", sum.ByStatus[model.StatusSuccess]),
		zap.Int("no_quote", sum.ByStatus[model.StatusNoQuote]),
		zap.Int("error", sum.ByStatus[model.StatusError]),
		zap.Bool("interrupted", sum.Interrupted),
	)
	return sum, nil
}

// runOne attempts a route, merges and flushes. The attempt is detached from
// ctx cancellation so it ends only through its own timeouts.
func (r *Runner) runOne(ctx context.Context, runID string, job model.RouteJob) (RouteResult, error) {
	rctx := context.WithoutCancel(ctx)

	out := r.driver.Run(rctx, job)
	attempt := BuildAttempt(rctx, job, out, r.fx)
	r.store.Merge(attempt)
	if err := r.store.Flush(); err != nil {
		return RouteResult{}, eris.Wrapf(err, "runner: persist %s", job.Key())
	}

	r.record(rctx, runID, job, out, attempt)

	if err := r.adapter.Reset(rctx); err != nil {
		zap.L().Warn("runner: reset failed",
			zap.String("carrier", r.cfg.Carrier),
			zap.String("key", job.Key()),
			zap.Error(err),
		)
	}

	return RouteResult{
		Key:     job.Key(),
		Status:  out.Status,
		Message: attempt.Message,
		Retries: out.Retries,
		Elapsed: out.FinishedAt.Sub(out.StartedAt),
	}, nil
}

func (r *Runner) record(ctx context.Context, runID string, job model.RouteJob, out quote.Outcome, a model.Attempt) {
	if r.rec == nil {
		return
	}
	e := runlog.Entry{
		RunID:      runID,
		Carrier:    r.cfg.Carrier,
		Key:        job.Key(),
		Status:     out.Status,
		Message:    a.Message,
		Retries:    out.Retries,
		Target:     out.Target,
		StartedAt:  out.StartedAt,
		FinishedAt: out.FinishedAt,
		Values:     a.Values,
	}
	if out.Err != nil {
		e.Code = out.Err.Code()
	}
	if out.Quote != nil {
		e.Charges = len(out.Quote.Charges)
	}
	if _, err := r.rec.Append(ctx, e); err != nil {
		zap.L().Warn("runner: run log append failed", zap.String("key", job.Key()), zap.Error(err))
	}
}

// BuildAttempt turns an outcome into the record merged into the store. On
// success the charges are converted by n (when set) and rendered into
// columns together with the journey metadata.
func BuildAttempt(ctx context.Context, job model.RouteJob, out quote.Outcome, n *fx.Normalizer) model.Attempt {
	a := model.Attempt{
		Key:         job.Key(),
		Origin:      job.Origin,
		Destination: job.Destination,
		At:          out.FinishedAt,
		Status:      out.Status,
		Message:     out.Message(),
	}
	if out.Status != model.StatusSuccess || out.Quote == nil {
		return a
	}

	a.QuotedAt = out.FinishedAt
	lines := out.Quote.Charges
	if n != nil {
		lines = n.Normalize(ctx, lines)
	}
	a.Values = make(map[string]string)
	for _, line := range lines {
		for col, v := range line.Columns() {
			a.Values[col] = v
		}
	}
	for col, v := range out.Quote.Journey.Columns() {
		a.Values[col] = v
	}
	return a
}
