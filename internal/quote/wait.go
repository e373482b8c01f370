package quote

import (
	"time"

	"github.com/sells-group/freight-quotes/internal/resilience"
)

// Observation is what one poll of the results area saw.
type Observation int

const (
	// SeenNothing means neither results nor a retry button are visible yet.
	SeenNothing Observation = iota
	SeenResults
	// SeenEmpty means the portal states no offers exist for the search.
	SeenEmpty
	// SeenRetry means the portal shows its "retry" button after a transient failure.
	SeenRetry
)

func (o Observation) String() string {
	switch o {
	case SeenResults:
		return "results"
	case SeenEmpty:
		return "empty"
	case SeenRetry:
		return "retry"
	default:
		return "nothing"
	}
}

// Action is what the driver must do after a tick.
type Action int

const (
	ActionPoll Action = iota
	ActionClickRetry
	ActionProceed
	ActionNoQuote
	ActionFail
)

// WaitConfig bounds the results wait.
type WaitConfig struct {
	// Timeout bounds the whole wait, measured from the search.
	Timeout time.Duration
	// MaxRetries caps retry clicks.
	MaxRetries int
	// Backoff is the pause before each retry click.
	Backoff resilience.Backoff
	// PollInterval is the pause between polls when nothing is visible.
	PollInterval time.Duration
}

// DefaultWaitConfig returns the 45s / 10 retries / 0.6s*1.5 capped 2s policy.
func DefaultWaitConfig() WaitConfig {
	return WaitConfig{
		Timeout:    45 * time.Second,
		MaxRetries: 10,
		Backoff: resilience.Backoff{
			Initial:    600 * time.Millisecond,
			Max:        2 * time.Second,
			Multiplier: 1.5,
		},
		PollInterval: 250 * time.Millisecond,
	}
}

// Step is the outcome of one Tick.
type Step struct {
	Action Action
	// Delay is how long to wait before performing Action.
	Delay time.Duration
	State State
}

// ResultsWait is the AWAITING_RESULTS / RETRYING state machine. It does no
// I/O: the driver feeds observations and timestamps and performs the returned
// actions, so the retry bound and backoff schedule are testable without waiting.
type ResultsWait struct {
	cfg     WaitConfig
	started time.Time
	retries int
	state   State
}

// NewResultsWait starts a wait at start.
func NewResultsWait(cfg WaitConfig, start time.Time) *ResultsWait {
	return &ResultsWait{cfg: cfg, started: start, state: StateAwaitingResults}
}

// Retries returns the number of retry clicks requested so far.
func (w *ResultsWait) Retries() int {
	return w.retries
}

// State returns the current state.
func (w *ResultsWait) State() State {
	return w.state
}

// Tick advances the machine with one observation taken at now.
func (w *ResultsWait) Tick(obs Observation, now time.Time) Step {
	if w.state.Terminal() || w.state == StateResultsReady {
		return w.final()
	}

	switch obs {
	case SeenResults:
		w.state = StateResultsReady
		return Step{Action: ActionProceed, State: w.state}
	case SeenEmpty:
		w.state = StateNoQuote
		return Step{Action: ActionNoQuote, State: w.state}
	}

	if now.Sub(w.started) >= w.cfg.Timeout {
		w.state = StateError
		return Step{Action: ActionFail, State: w.state}
	}

	if obs == SeenRetry {
		if w.retries >= w.cfg.MaxRetries {
			w.state = StateError
			return Step{Action: ActionFail, State: w.state}
		}
		w.retries++
		w.state = StateRetrying
		return Step{Action: ActionClickRetry, Delay: w.cfg.Backoff.Delay(w.retries), State: w.state}
	}

	w.state = StateAwaitingResults
	return Step{Action: ActionPoll, Delay: w.cfg.PollInterval, State: w.state}
}

func (w *ResultsWait) final() Step {
	switch w.state {
	case StateResultsReady:
		return Step{Action: ActionProceed, State: w.state}
	case StateNoQuote:
		return Step{Action: ActionNoQuote, State: w.state}
	default:
		return Step{Action: ActionFail, State: w.state}
	}
}
