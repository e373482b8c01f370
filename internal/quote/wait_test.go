package quote

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResultsWait_RetryBound(t *testing.T) {
	t.Parallel()

	cfg := DefaultWaitConfig()
	cfg.Timeout = time.Hour
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	w := NewResultsWait(cfg, now)

	var clicks int
	var delays []time.Duration
	for i := 0; i < 100; i++ {
		step := w.Tick(SeenRetry, now)
		if step.Action != ActionClickRetry {
			assert.Equal(t, ActionFail, step.Action)
			assert.Equal(t, StateError, step.State)
			break
		}
		assert.Equal(t, StateRetrying, step.State)
		clicks++
		delays = append(delays, step.Delay)
		now = now.Add(step.Delay)
	}

	assert.Equal(t, cfg.MaxRetries, clicks)
	assert.Equal(t, cfg.MaxRetries, w.Retries())
	require.Len(t, delays, 10)
	assert.Equal(t, 600*time.Millisecond, delays[0])
	assert.Equal(t, 900*time.Millisecond, delays[1])
	assert.Equal(t, 1350*time.Millisecond, delays[2])
	for _, d := range delays[3:] {
		assert.Equal(t, 2*time.Second, d)
	}

	// Terminal states are sticky.
	assert.Equal(t, ActionFail, w.Tick(SeenResults, now).Action)
}

func TestResultsWait_TimeoutWithNothingVisible(t *testing.T) {
	t.Parallel()

	cfg := DefaultWaitConfig()
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	w := NewResultsWait(cfg, start)

	step := w.Tick(SeenNothing, start.Add(44*time.Second))
	assert.Equal(t, ActionPoll, step.Action)
	assert.Equal(t, cfg.PollInterval, step.Delay)
	assert.Equal(t, StateAwaitingResults, step.State)

	step = w.Tick(SeenNothing, start.Add(45*time.Second))
	assert.Equal(t, ActionFail, step.Action)
	assert.Zero(t, w.Retries())
}

func TestResultsWait_TimeoutBoundsRetries(t *testing.T) {
	t.Parallel()

	cfg := DefaultWaitConfig()
	cfg.MaxRetries = 1000
	cfg.Timeout = 5 * time.Second
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	w := NewResultsWait(cfg, now)

	var ticks int
	for ; ticks < 1000; ticks++ {
		step := w.Tick(SeenRetry, now)
		if step.Action == ActionFail {
			break
		}
		now = now.Add(step.Delay)
	}
	assert.Less(t, ticks, 10)
	assert.Equal(t, StateError, w.State())
}

func TestResultsWait_RetryThenResults(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	w := NewResultsWait(DefaultWaitConfig(), now)

	assert.Equal(t, ActionPoll, w.Tick(SeenNothing, now).Action)
	assert.Equal(t, ActionClickRetry, w.Tick(SeenRetry, now).Action)
	assert.Equal(t, StateAwaitingResults, w.Tick(SeenNothing, now).State)
	step := w.Tick(SeenResults, now)
	assert.Equal(t, ActionProceed, step.Action)
	assert.Equal(t, StateResultsReady, step.State)
	assert.Equal(t, 1, w.Retries())
	assert.Equal(t, ActionProceed, w.Tick(SeenRetry, now).Action)
}

func TestResultsWait_EmptyIsNoQuote(t *testing.T) {
	t.Parallel()

	now := time.Now()
	w := NewResultsWait(DefaultWaitConfig(), now)
	step := w.Tick(SeenEmpty, now.Add(time.Hour))
	assert.Equal(t, ActionNoQuote, step.Action)
	assert.Equal(t, StateNoQuote, step.State)
}

func TestObservationAndStateNames(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "retry", SeenRetry.String())
	assert.Equal(t, "nothing", SeenNothing.String())
	assert.Equal(t, "awaiting_results", StateAwaitingResults.String())
	assert.Equal(t, "unknown", State(99).String())
	assert.True(t, StateNoQuote.Terminal())
	assert.False(t, StateRetrying.Terminal())
}
