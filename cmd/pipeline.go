package main

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/freight-quotes/internal/carrier"
	"github.com/sells-group/freight-quotes/internal/config"
	"github.com/sells-group/freight-quotes/internal/diag"
	"github.com/sells-group/freight-quotes/internal/fx"
	"github.com/sells-group/freight-quotes/internal/jobs"
	"github.com/sells-group/freight-quotes/internal/model"
	"github.com/sells-group/freight-quotes/internal/quote"
	"github.com/sells-group/freight-quotes/internal/resilience"
	"github.com/sells-group/freight-quotes/internal/resultstore"
	"github.com/sells-group/freight-quotes/internal/runlog"
	"github.com/sells-group/freight-quotes/internal/runner"
	"github.com/sells-group/freight-quotes/internal/session"
	"github.com/sells-group/freight-quotes/pkg/browser"
	"github.com/sells-group/freight-quotes/pkg/frankfurter"
)

// pipelineOpts are the per-invocation overrides shared by quote, plan and daily.
type pipelineOpts struct {
	Jobs    string
	Output  string
	Limit   int
	Offline string // scenario file; empty means a live browser session
}

// pipelineEnv holds everything one carrier pipeline owns. Each pipeline has
// its own session and store so pipelines can run side by side.
type pipelineEnv struct {
	Carrier string
	Runner  *runner.Runner
	Store   *resultstore.Table

	sess   session.Session // nil offline
	runLog *runlog.Log     // may be nil
}

// Close releases the session and the run log.
func (pe *pipelineEnv) Close(ctx context.Context) {
	if pe.sess != nil {
		if err := pe.sess.Close(ctx); err != nil {
			zap.L().Warn("pipeline: close session", zap.String("carrier", pe.Carrier), zap.Error(err))
		}
	}
	if pe.runLog != nil {
		_ = pe.runLog.Close()
	}
}

// loadStore opens the result table for a carrier, honoring --output.
func loadStore(name, output string) (*resultstore.Table, error) {
	path := output
	if path == "" {
		path = cfg.StorePath(name)
	}
	return resultstore.Load(path)
}

// loadJobs reads the route list, honoring --jobs.
func loadJobs(path string) ([]model.RouteJob, error) {
	if path == "" {
		path = cfg.Jobs.Path
	}
	return jobs.Read(path, jobs.Options{SheetName: cfg.Jobs.Sheet})
}

// initPipeline builds the runner for one carrier. Callers should defer
// env.Close().
func initPipeline(ctx context.Context, name string, opts pipelineOpts) (*pipelineEnv, error) {
	cc, err := cfg.Carrier(name)
	if err != nil {
		return nil, err
	}
	name = strings.ToLower(name)

	store, err := loadStore(name, opts.Output)
	if err != nil {
		return nil, err
	}

	env := &pipelineEnv{Carrier: name, Store: store}

	var adapter quote.Adapter
	if opts.Offline != "" {
		sc, err := carrier.LoadScenario(opts.Offline)
		if err != nil {
			return nil, err
		}
		adapter = carrier.NewStub(name, sc)
	} else {
		sess, err := openSession(ctx, name)
		if err != nil {
			return nil, err
		}
		env.sess = sess
		adapter, err = carrier.New(name, sess, cc.PortalConfig())
		if err != nil {
			env.Close(ctx)
			return nil, err
		}
	}

	driver := quote.NewDriver(adapter, cc.DriverConfig(), quote.WithSink(newSink()))

	runOpts := []runner.Option{runner.WithNormalizer(newNormalizer(cfg.FX))}
	if cfg.RunLog.Enabled {
		rl, err := openRunLog(ctx)
		if err != nil {
			env.Close(ctx)
			return nil, err
		}
		env.runLog = rl
		runOpts = append(runOpts, runner.WithRecorder(rl))
	}

	env.Runner = runner.New(runner.Config{
		Carrier:      name,
		SuccessOrder: cfg.SuccessOrder(),
		Limit:        opts.Limit,
		Pace:         cfg.Pace(),
	}, adapter, driver, store, runOpts...)

	return env, nil
}

// openSession starts a sidecar page with a per-carrier browser profile.
func openSession(ctx context.Context, name string) (*browser.Session, error) {
	bc := cfg.Browser
	client := browser.NewClient(bc.SidecarURL, browser.WithTimeout(time.Duration(bc.TimeoutSecs)*time.Second))
	opts := browser.Options{Headless: bc.Headless, Locale: bc.Locale}
	if bc.ProfileDir != "" {
		opts.UserDataDir = filepath.Join(bc.ProfileDir, name)
	}
	sess, err := client.Open(ctx, opts)
	if err != nil {
		return nil, eris.Wrapf(err, "open %s session", name)
	}
	zap.L().Info("pipeline: session opened", zap.String("carrier", name), zap.String("session", sess.ID()))
	return sess, nil
}

func openRunLog(ctx context.Context) (*runlog.Log, error) {
	rl, err := runlog.Open(cfg.RunLog.Path)
	if err != nil {
		return nil, err
	}
	if err := rl.Migrate(ctx); err != nil {
		_ = rl.Close()
		return nil, eris.Wrap(err, "migrate run log")
	}
	return rl, nil
}

func newSink() diag.Sink {
	if !cfg.Diag.Enabled || cfg.Diag.Dir == "" {
		return diag.Nop{}
	}
	return diag.NewFileSink(cfg.Diag.Dir)
}

// newNormalizer wires the rate client, its retry and breaker policy, the
// cache and the fallback table into a Normalizer.
func newNormalizer(fc config.FXConfig) *fx.Normalizer {
	clientOpts := []frankfurter.Option{}
	if fc.BaseURL != "" {
		clientOpts = append(clientOpts, frankfurter.WithBaseURL(fc.BaseURL))
	}
	if fc.TimeoutSecs > 0 {
		clientOpts = append(clientOpts, frankfurter.WithTimeout(time.Duration(fc.TimeoutSecs)*time.Second))
	}

	retry := resilience.DefaultRetryConfig()
	if fc.RetryAttempts > 0 {
		retry.MaxAttempts = fc.RetryAttempts
	}
	breaker := resilience.CircuitBreakerConfig{
		FailureThreshold: fc.BreakerThreshold,
		ResetTimeout:     time.Duration(fc.BreakerResetSecs) * time.Second,
	}

	var provider fx.RateProvider = fx.NewHTTPProvider(frankfurter.NewClient(clientOpts...), retry, breaker)
	if fc.CacheTTLMins > 0 {
		provider = fx.NewCachedProvider(provider, time.Duration(fc.CacheTTLMins)*time.Minute, fc.CacheSize)
	}

	opts := []fx.Option{fx.WithExempt(fc.Exempt...)}
	for cur, rate := range fc.Fallbacks {
		opts = append(opts, fx.WithFallback(cur, rate))
	}
	return fx.NewNormalizer(provider, fc.Target, opts...)
}
