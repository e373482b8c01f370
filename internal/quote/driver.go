package quote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/freight-quotes/internal/diag"
	"github.com/sells-group/freight-quotes/internal/model"
)

// Clock abstracts time so the driver can be tested without real waiting.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration)
}

// SystemClock is the wall clock.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now() }

// Sleep implements Clock.
func (SystemClock) Sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Config tunes the driver for one carrier.
type Config struct {
	Wait WaitConfig
	// MaxFallbackOpens caps how many ranked candidates are tried when opening
	// details fails. Default: 3.
	MaxFallbackOpens int
	Defaults         Defaults
}

// Outcome is the terminal result of one attempt.
type Outcome struct {
	Status  model.Status
	Quote   *model.Quote
	Err     *Error
	Retries int
	// Target is the departure date searched for.
	Target time.Time
	Chosen *Candidate
	// Path lists the states visited, in order.
	Path       []State
	StartedAt  time.Time
	FinishedAt time.Time
}

// Message is the human-readable outcome stored with the route.
func (o Outcome) Message() string {
	switch o.Status {
	case model.StatusSuccess:
		if o.Quote != nil {
			return fmt.Sprintf("ok: %d charges", len(o.Quote.Charges))
		}
		return "ok"
	case model.StatusNoQuote:
		return "no_quote: no offers for " + o.Target.Format("2006-01-02")
	default:
		if o.Err != nil {
			return o.Err.Error()
		}
		return string(KindUnexpected)
	}
}

// Option configures a Driver.
type Option func(*Driver)

// WithClock sets the clock.
func WithClock(c Clock) Option {
	return func(d *Driver) { d.clock = c }
}

// WithSink sets the diagnostics sink.
func WithSink(s diag.Sink) Option {
	return func(d *Driver) { d.sink = s }
}

// Driver runs route attempts through one adapter, one at a time.
type Driver struct {
	adapter Adapter
	cfg     Config
	clock   Clock
	sink    diag.Sink
}

// NewDriver creates a driver over adapter.
func NewDriver(adapter Adapter, cfg Config, opts ...Option) *Driver {
	if cfg.MaxFallbackOpens <= 0 {
		cfg.MaxFallbackOpens = 3
	}
	d := &Driver{adapter: adapter, cfg: cfg, clock: SystemClock{}, sink: diag.Nop{}}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

type attempt struct {
	job     model.RouteJob
	path    []State
	retries int
	target  time.Time
	chosen  *Candidate
	started time.Time
}

func (a *attempt) enter(s State) {
	if n := len(a.path); n > 0 && a.path[n-1] == s {
		return
	}
	a.path = append(a.path, s)
}

// Run drives job to a terminal state. It never panics and never returns an
// error: every failure is classified into the Outcome.
func (d *Driver) Run(ctx context.Context, job model.RouteJob) (out Outcome) {
	a := &attempt{job: job, started: d.clock.Now()}
	a.enter(StateInit)

	defer func() {
		if r := recover(); r != nil {
			out = d.fail(ctx, a, Fail(KindUnexpected, eris.Errorf("panic: %v", r)))
		}
	}()

	form, err := d.adapter.OpenForm(ctx)
	if err != nil {
		zap.L().Warn("quote: form not ready, recovering",
			zap.String("carrier", d.adapter.Name()),
			zap.String("key", job.Key()),
			zap.Error(err),
		)
		if rerr := d.adapter.Recover(ctx); rerr != nil {
			return d.fail(ctx, a, Fail(KindFormUnavailable, eris.Wrap(rerr, "recover")))
		}
		if form, err = d.adapter.OpenForm(ctx); err != nil {
			return d.fail(ctx, a, Fail(KindFormUnavailable, err))
		}
	}
	a.enter(StateFormReady)

	req, offset := d.cfg.Defaults.Resolve(job)
	a.target = TargetDate(d.clock.Now(), offset, form.MinDate, form.MaxDate)
	req.Date = a.target
	if err := d.adapter.FillForm(ctx, req); err != nil {
		return d.fail(ctx, a, Classify(err, KindUnexpected))
	}
	a.enter(StateFieldsFilled)

	if err := d.adapter.Search(ctx); err != nil {
		return d.fail(ctx, a, Classify(err, KindUnexpected))
	}
	a.enter(StateAwaitingResults)

	step := d.awaitResults(ctx, a)
	switch step.Action {
	case ActionNoQuote:
		return d.finish(ctx, a, StateNoQuote, nil, nil)
	case ActionFail:
		return d.fail(ctx, a, &Error{Kind: KindResultsTimeout, Retries: a.retries})
	}

	ranked, err := d.rank(ctx, a)
	if errors.Is(err, ErrNoCandidates) {
		return d.finish(ctx, a, StateNoQuote, nil, nil)
	}
	if err != nil {
		return d.fail(ctx, a, Classify(err, KindUnexpected))
	}

	if err := d.openDetails(ctx, a, ranked); err != nil {
		return d.fail(ctx, a, err)
	}
	a.enter(StateDetailsOpen)

	q, err := d.adapter.ExtractBreakdown(ctx)
	if err != nil {
		return d.fail(ctx, a, Classify(err, KindExtraction))
	}
	if q == nil {
		q = &model.Quote{}
	}
	a.enter(StateExtracted)

	return d.finish(ctx, a, StateSuccess, q, nil)
}

func (d *Driver) awaitResults(ctx context.Context, a *attempt) Step {
	w := NewResultsWait(d.cfg.Wait, d.clock.Now())
	for {
		obs, err := d.adapter.Observe(ctx)
		if err != nil {
			zap.L().Debug("quote: observe failed", zap.String("key", a.job.Key()), zap.Error(err))
			obs = SeenNothing
		}

		step := w.Tick(obs, d.clock.Now())
		a.enter(step.State)
		a.retries = w.Retries()

		switch step.Action {
		case ActionPoll:
			d.clock.Sleep(ctx, step.Delay)
		case ActionClickRetry:
			zap.L().Info("quote: retry button shown",
				zap.String("carrier", d.adapter.Name()),
				zap.String("key", a.job.Key()),
				zap.Int("retry", w.Retries()),
				zap.Int("max", d.cfg.Wait.MaxRetries),
			)
			d.clock.Sleep(ctx, step.Delay)
			if err := d.adapter.ClickRetry(ctx); err != nil {
				zap.L().Warn("quote: retry click failed", zap.String("key", a.job.Key()), zap.Error(err))
			}
		default:
			return step
		}
	}
}

// rank lists candidates, expanding the layout once when none is actionable.
func (d *Driver) rank(ctx context.Context, a *attempt) ([]Candidate, error) {
	cands, err := d.adapter.Candidates(ctx, a.target)
	if err != nil {
		return nil, err
	}
	if len(cands) == 0 {
		return nil, ErrNoCandidates
	}
	ranked := Rank(cands, a.target)
	if len(ranked) > 0 {
		return ranked, nil
	}

	expanded, err := d.adapter.Expand(ctx)
	if err != nil {
		zap.L().Warn("quote: expand failed", zap.String("key", a.job.Key()), zap.Error(err))
	}
	if expanded {
		if more, err := d.adapter.Candidates(ctx, a.target); err == nil {
			cands = more
			ranked = Rank(cands, a.target)
		}
	}
	if len(ranked) == 0 {
		return nil, Fail(KindNoActionableOffer, eris.Errorf("%d offers, none actionable", len(cands)))
	}
	return ranked, nil
}

func (d *Driver) openDetails(ctx context.Context, a *attempt, ranked []Candidate) *Error {
	limit := min(len(ranked), d.cfg.MaxFallbackOpens)
	var lastErr error
	for i := 0; i < limit; i++ {
		c := ranked[i]
		if err := d.adapter.OpenDetails(ctx, c); err != nil {
			lastErr = err
			zap.L().Warn("quote: open details failed",
				zap.String("key", a.job.Key()),
				zap.Int("candidate", c.Index),
				zap.Error(err),
			)
			continue
		}
		a.chosen = &c
		return nil
	}
	return Fail(KindNoActionableOffer, eris.Wrapf(lastErr, "opened none of %d candidates", limit))
}

func (d *Driver) fail(ctx context.Context, a *attempt, err *Error) Outcome {
	return d.finish(ctx, a, StateError, nil, err)
}

func (d *Driver) finish(ctx context.Context, a *attempt, terminal State, q *model.Quote, err *Error) Outcome {
	a.enter(terminal)
	out := Outcome{
		Quote:      q,
		Err:        err,
		Retries:    a.retries,
		Target:     a.target,
		Chosen:     a.chosen,
		Path:       a.path,
		StartedAt:  a.started,
		FinishedAt: d.clock.Now(),
	}
	switch terminal {
	case StateSuccess:
		out.Status = model.StatusSuccess
	case StateNoQuote:
		out.Status = model.StatusNoQuote
	default:
		out.Status = model.StatusError
	}

	stage := terminal.String()
	if err != nil {
		stage = err.Code()
	}
	d.capture(ctx, a, stage, out.Message())

	zap.L().Info("quote: attempt finished",
		zap.String("carrier", d.adapter.Name()),
		zap.String("key", a.job.Key()),
		zap.String("status", string(out.Status)),
		zap.String("stage", stage),
		zap.Int("retries", out.Retries),
		zap.Duration("elapsed", out.FinishedAt.Sub(out.StartedAt)),
	)
	return out
}

// capture is best-effort: failures and panics are logged and swallowed.
func (d *Driver) capture(ctx context.Context, a *attempt, stage, msg string) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Warn("quote: diagnostic capture panicked", zap.Any("panic", r))
		}
	}()

	entry, err := d.adapter.Snapshot(ctx)
	if err != nil {
		zap.L().Debug("quote: snapshot failed", zap.String("key", a.job.Key()), zap.Error(err))
	}
	entry.Carrier = d.adapter.Name()
	entry.Key = a.job.Key()
	entry.Stage = stage
	entry.At = d.clock.Now()
	entry.Message = msg
	if entry.Fields == nil {
		entry.Fields = map[string]any{}
	}
	entry.Fields["retries"] = a.retries
	entry.Fields["target_date"] = a.target.Format("2006-01-02")
	if a.chosen != nil {
		entry.Fields["candidate"] = a.chosen.Index
	}

	if err := d.sink.Capture(ctx, entry); err != nil {
		zap.L().Warn("quote: diagnostic capture failed", zap.String("key", a.job.Key()), zap.Error(err))
	}
}
