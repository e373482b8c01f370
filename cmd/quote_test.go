//go:build !integration

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/freight-quotes/internal/config"
	"github.com/sells-group/freight-quotes/internal/model"
	"github.com/sells-group/freight-quotes/internal/resultstore"
	"github.com/sells-group/freight-quotes/internal/runlog"
)

const offlineScenario = `
default:
  transit_time: "14 days"
  candidates:
    - {offset_days: 0, actionable: true, label: weekly}
  charges:
    - {name: Ocean Freight, currency: USD, total: 1500, unit: 1500, quantity: 1}
    - {name: Bill of Lading Fee, currency: EUR, total: 50, unit: 50, quantity: 1}
routes:
  "BRSSZ|USMIA":
    invalid_field: destination
`

// offlineEnv loads the default config from an empty directory and points it
// at a fake rate API.
func offlineEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/latest", r.URL.Path)
		assert.Equal(t, "USD", r.URL.Query().Get("base"))
		assert.Equal(t, "EUR", r.URL.Query().Get("symbols"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"amount": 1, "base": "USD", "date": "2025-03-01",
			"rates": map[string]float64{"EUR": 0.5},
		})
	}))
	t.Cleanup(srv.Close)

	c, err := config.Load()
	require.NoError(t, err)
	c.FX.BaseURL = srv.URL
	c.Schedule.PaceSecs = 0
	c.Diag.Enabled = false
	c.RunLog.Path = filepath.Join(dir, "runs.db")
	withConfig(t, c)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "scenario.yaml"), []byte(offlineScenario), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "jobs.csv"), []byte("Origin,Destination\nBRSSZ,USMIA\nBRSSZ,USNYC\n"), 0o600))
	return dir
}

func TestRunCarrier_Offline(t *testing.T) {
	dir := offlineEnv(t)
	output := filepath.Join(dir, "out", "maersk.csv")

	sum, err := runCarrier(context.Background(), "maersk", pipelineOpts{
		Jobs:    filepath.Join(dir, "jobs.csv"),
		Output:  output,
		Offline: filepath.Join(dir, "scenario.yaml"),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Planned)
	assert.Equal(t, 1, sum.ByStatus[model.StatusSuccess])
	assert.Equal(t, 1, sum.ByStatus[model.StatusError])

	tbl, err := resultstore.Load(output)
	require.NoError(t, err)
	require.Equal(t, 2, tbl.Len())

	ok, found := tbl.Get("BRSSZ|USNYC")
	require.True(t, found)
	assert.Equal(t, model.StatusSuccess, ok.Status)
	assert.Equal(t, "1500", ok.Values["USD Ocean Freight"])
	assert.Equal(t, "100", ok.Values["USD Bill of Lading Fee"])
	assert.Equal(t, "14 days", ok.Values[model.ColTransitTime])
	assert.False(t, ok.QuotedAt.IsZero())

	bad, found := tbl.Get("BRSSZ|USMIA")
	require.True(t, found)
	assert.Equal(t, model.StatusError, bad.Status)
	assert.Contains(t, bad.Message, "destination")
	assert.True(t, bad.QuotedAt.IsZero())

	rl, err := runlog.Open(cfg.RunLog.Path)
	require.NoError(t, err)
	defer rl.Close() //nolint:errcheck
	entries, err := rl.List(context.Background(), runlog.Filter{RunID: sum.RunID})
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	// The next plan refreshes the quoted route before the failed one.
	var buf bytes.Buffer
	require.NoError(t, printPlan(&buf, "maersk", filepath.Join(dir, "jobs.csv"), output))
	out := buf.String()
	assert.Less(t, strings.Index(out, "BRSSZ|USNYC"), strings.Index(out, "BRSSZ|USMIA"))
	assert.Contains(t, out, "had_success")
	assert.Contains(t, out, "only_failed")
}

func TestRunCarrier_Limit(t *testing.T) {
	dir := offlineEnv(t)
	output := filepath.Join(dir, "maersk.csv")

	sum, err := runCarrier(context.Background(), "maersk", pipelineOpts{
		Jobs:    filepath.Join(dir, "jobs.csv"),
		Output:  output,
		Limit:   1,
		Offline: filepath.Join(dir, "scenario.yaml"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Planned)
	assert.Len(t, sum.Routes, 1)
}

func TestRunCarrier_Errors(t *testing.T) {
	dir := offlineEnv(t)

	_, err := runCarrier(context.Background(), "msc", pipelineOpts{
		Jobs:    filepath.Join(dir, "jobs.csv"),
		Offline: filepath.Join(dir, "scenario.yaml"),
	})
	require.Error(t, err)

	_, err = runCarrier(context.Background(), "maersk", pipelineOpts{
		Jobs:    filepath.Join(dir, "missing.xlsx"),
		Offline: filepath.Join(dir, "scenario.yaml"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load jobs")

	_, err = runCarrier(context.Background(), "maersk", pipelineOpts{
		Jobs:    filepath.Join(dir, "jobs.csv"),
		Output:  filepath.Join(dir, "maersk.csv"),
		Offline: filepath.Join(dir, "missing.yaml"),
	})
	require.Error(t, err)
}

func TestNewNormalizer_UsesConfig(t *testing.T) {
	n := newNormalizer(config.FXConfig{
		Target:    "usd",
		Exempt:    []string{"Terminal Handling Service - Destination"},
		Fallbacks: map[string]float64{"cop": 4000},
		// unroutable; the fallback must answer
		BaseURL:       "http://127.0.0.1:1",
		RetryAttempts: 1,
	})
	assert.Equal(t, "USD", n.Target())
	assert.True(t, n.IsExempt("terminal handling service - destination"))

	v, ok := n.ToTarget(context.Background(), 8000, "COP")
	require.True(t, ok)
	assert.InDelta(t, 2.0, v, 1e-9)
}
