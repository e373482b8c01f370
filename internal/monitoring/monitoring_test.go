package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/freight-quotes/internal/config"
	"github.com/sells-group/freight-quotes/internal/model"
	"github.com/sells-group/freight-quotes/internal/runlog"
)

type fakeLister struct {
	entries []runlog.Entry
	err     error
	got     runlog.Filter
}

func (f *fakeLister) List(_ context.Context, filter runlog.Filter) ([]runlog.Entry, error) {
	f.got = filter
	return f.entries, f.err
}

func entry(carrier string, status model.Status, code string) runlog.Entry {
	return runlog.Entry{Carrier: carrier, Status: status, Code: code}
}

func TestCollector_Collect(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	lister := &fakeLister{entries: []runlog.Entry{
		entry("maersk", model.StatusSuccess, ""),
		entry("maersk", model.StatusNoQuote, ""),
		entry("maersk", model.StatusError, "results_timeout"),
		entry("maersk", model.StatusError, "results_timeout"),
		entry("cma", model.StatusError, "invalid_destination"),
	}}
	c := NewCollector(lister)
	c.nowFunc = func() time.Time { return now }

	snap, err := c.Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, now.Add(-24*time.Hour), lister.got.Since)
	assert.Equal(t, 24, snap.LookbackHours)

	m := snap.Carriers["maersk"]
	assert.Equal(t, 4, m.Attempts)
	assert.Equal(t, 1, m.Success)
	assert.Equal(t, 1, m.NoQuote)
	assert.Equal(t, 2, m.Errors)
	assert.InDelta(t, 0.5, m.ErrorRate, 1e-9)
	assert.Equal(t, "results_timeout", m.TopCode())

	assert.InDelta(t, 1.0, snap.Carriers["cma"].ErrorRate, 1e-9)
}

func TestCollector_ListError(t *testing.T) {
	c := NewCollector(&fakeLister{err: errors.New("db locked")})
	_, err := c.Collect(context.Background(), 24)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list attempts")
}

func TestCarrierStats_TopCodeTieBreak(t *testing.T) {
	s := CarrierStats{Codes: map[string]int{"results_timeout": 2, "login": 2, "extraction": 1}}
	assert.Equal(t, "login", s.TopCode())
	assert.Empty(t, CarrierStats{}.TopCode())
}

func TestAlerter_Evaluate(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{ErrorRateThreshold: 0.5, MinAttempts: 3})
	snap := &MetricsSnapshot{
		LookbackHours: 24,
		Carriers: map[string]CarrierStats{
			"maersk": {Attempts: 10, Errors: 8, ErrorRate: 0.8, Codes: map[string]int{"results_timeout": 8}},
			"hapag":  {Attempts: 10, Errors: 5, ErrorRate: 0.5},
			"cma":    {Attempts: 2, Errors: 2, ErrorRate: 1.0},
		},
	}

	alerts := a.Evaluate(snap, map[string]error{"cma": errors.New("login failed")})
	require.Len(t, alerts, 2)

	assert.Equal(t, AlertPipelineFailed, alerts[0].Type)
	assert.Equal(t, "cma", alerts[0].Carrier)
	assert.Contains(t, alerts[0].Message, "login failed")

	assert.Equal(t, AlertCarrierErrorRate, alerts[1].Type)
	assert.Equal(t, "maersk", alerts[1].Carrier)
	assert.Contains(t, alerts[1].Message, "80.0%")
	assert.Equal(t, "results_timeout", alerts[1].Details["top_code"])
}

func TestAlerter_SendAlerts(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var got Alert
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		hits.Add(1)
		if got.Carrier == "cma" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: srv.URL})
	sent := a.SendAlerts(context.Background(), []Alert{
		{Type: AlertPipelineFailed, Carrier: "cma"},
		{Type: AlertCarrierErrorRate, Carrier: "maersk"},
	})
	assert.Equal(t, 1, sent)
	assert.Equal(t, int32(2), hits.Load())
}

func TestAlerter_SendAlertsWithoutWebhook(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{})
	assert.Zero(t, a.SendAlerts(context.Background(), []Alert{{Type: AlertPipelineFailed}}))
}

func TestChecker_CollectFailureStillReportsAborts(t *testing.T) {
	cfg := config.MonitoringConfig{ErrorRateThreshold: 0.5}
	checker := NewChecker(NewCollector(&fakeLister{err: errors.New("gone")}), NewAlerter(cfg), cfg)

	alerts := checker.Check(context.Background(), map[string]error{"hapag": errors.New("session closed")})
	require.Len(t, alerts, 1)
	assert.Equal(t, "hapag", alerts[0].Carrier)
}

func TestChecker_NoAlerts(t *testing.T) {
	cfg := config.MonitoringConfig{ErrorRateThreshold: 0.5}
	lister := &fakeLister{entries: []runlog.Entry{entry("maersk", model.StatusSuccess, "")}}
	checker := NewChecker(NewCollector(lister), NewAlerter(cfg), cfg)

	assert.Empty(t, checker.Check(context.Background(), nil))
	assert.False(t, lister.got.Since.IsZero())
}
