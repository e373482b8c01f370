//go:build !integration

package main

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/freight-quotes/internal/config"
	"github.com/sells-group/freight-quotes/internal/runner"
)

func withConfig(t *testing.T, c *config.Config) {
	t.Helper()
	prev := cfg
	cfg = c
	t.Cleanup(func() { cfg = prev })
}

func TestDailyCarriers_SkipsDisabledAndUnknown(t *testing.T) {
	withConfig(t, &config.Config{
		Daily: config.DailyConfig{Carriers: []string{"Maersk", "cma", "msc", "hapag"}},
		Carriers: map[string]config.CarrierConfig{
			"maersk": {Enabled: true},
			"cma":    {Enabled: false},
			"hapag":  {Enabled: true},
		},
	})

	assert.Equal(t, []string{"maersk", "hapag"}, dailyCarriers())
}

func TestRunDaily_FailureDoesNotCancelOthers(t *testing.T) {
	carriers := []string{"cma", "hapag", "maersk"}

	results := runDaily(context.Background(), carriers, 3, func(ctx context.Context, name string) (runner.Summary, error) {
		if name == "cma" {
			return runner.Summary{}, errors.New("login failed")
		}
		// a failing sibling must not cancel this pipeline
		select {
		case <-ctx.Done():
			return runner.Summary{}, ctx.Err()
		case <-time.After(20 * time.Millisecond):
		}
		return runner.Summary{Carrier: name, Planned: 1}, nil
	})

	require.Len(t, results, 3)
	assert.Equal(t, "cma", results[0].Carrier)
	assert.Error(t, results[0].Err)
	assert.NoError(t, results[1].Err)
	assert.Equal(t, "hapag", results[1].Summary.Carrier)
	assert.NoError(t, results[2].Err)
	assert.Equal(t, "maersk", results[2].Carrier)
}

func TestRunDaily_RespectsConcurrencyLimit(t *testing.T) {
	var inFlight, peak atomic.Int32
	carriers := []string{"a", "b", "c", "d"}

	results := runDaily(context.Background(), carriers, 2, func(context.Context, string) (runner.Summary, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		inFlight.Add(-1)
		return runner.Summary{}, nil
	})

	assert.Len(t, results, 4)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestPruneDiagnostics_DisabledIsNoop(t *testing.T) {
	withConfig(t, &config.Config{Diag: config.DiagConfig{Enabled: false, Dir: "/nonexistent"}})
	pruneDiagnostics(time.Now())
}
