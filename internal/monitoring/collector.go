// Package monitoring turns the run log into per-carrier health figures and
// posts alerts to a webhook when a carrier degrades.
package monitoring

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/freight-quotes/internal/model"
	"github.com/sells-group/freight-quotes/internal/runlog"
)

// CarrierStats counts one carrier's attempts inside the lookback window.
type CarrierStats struct {
	Attempts  int            `json:"attempts"`
	Success   int            `json:"success"`
	NoQuote   int            `json:"no_quote"`
	Errors    int            `json:"errors"`
	ErrorRate float64        `json:"error_rate"`
	Codes     map[string]int `json:"codes,omitempty"`
}

// TopCode returns the most frequent error code, ties broken by name.
func (s CarrierStats) TopCode() string {
	codes := make([]string, 0, len(s.Codes))
	for c := range s.Codes {
		codes = append(codes, c)
	}
	sort.Slice(codes, func(i, j int) bool {
		if s.Codes[codes[i]] != s.Codes[codes[j]] {
			return s.Codes[codes[i]] > s.Codes[codes[j]]
		}
		return codes[i] < codes[j]
	})
	if len(codes) == 0 {
		return ""
	}
	return codes[0]
}

// MetricsSnapshot holds a point-in-time view of carrier health.
type MetricsSnapshot struct {
	Carriers      map[string]CarrierStats `json:"carriers"`
	LookbackHours int                     `json:"lookback_hours"`
	CollectedAt   time.Time               `json:"collected_at"`
}

// Lister is the run log query the collector needs.
type Lister interface {
	List(ctx context.Context, f runlog.Filter) ([]runlog.Entry, error)
}

// Collector gathers metrics from the run log.
type Collector struct {
	log     Lister
	nowFunc func() time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector(log Lister) *Collector {
	return &Collector{log: log, nowFunc: time.Now}
}

// Collect gathers a snapshot over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.nowFunc().UTC()
	snap := &MetricsSnapshot{
		Carriers:      make(map[string]CarrierStats),
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}

	entries, err := c.log.List(ctx, runlog.Filter{
		Since: now.Add(-time.Duration(lookbackHours) * time.Hour),
		Limit: 100000,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list attempts")
	}

	for _, e := range entries {
		s := snap.Carriers[e.Carrier]
		s.Attempts++
		switch e.Status {
		case model.StatusSuccess:
			s.Success++
		case model.StatusNoQuote:
			s.NoQuote++
		default:
			s.Errors++
			if e.Code != "" {
				if s.Codes == nil {
					s.Codes = make(map[string]int)
				}
				s.Codes[e.Code]++
			}
		}
		snap.Carriers[e.Carrier] = s
	}

	for name, s := range snap.Carriers {
		if s.Attempts > 0 {
			s.ErrorRate = float64(s.Errors) / float64(s.Attempts)
		}
		snap.Carriers[name] = s
	}
	return snap, nil
}
