package resultstore

import (
	"time"

	"github.com/sells-group/freight-quotes/internal/model"
)

// Summary aggregates a table for reporting.
type Summary struct {
	Total        int
	ByStatus     map[model.Status]int
	Quoted       int
	OldestQuote  time.Time
	NewestQuote  time.Time
	LastAttempt  time.Time
	ChargeColumn int
}

// Summarize computes a Summary over every record.
func (t *Table) Summarize() Summary {
	s := Summary{
		Total:        len(t.records),
		ByStatus:     make(map[model.Status]int),
		ChargeColumn: len(t.dynamic),
	}
	for _, rec := range t.records {
		s.ByStatus[rec.Status]++
		if rec.LastAttemptAt.After(s.LastAttempt) {
			s.LastAttempt = rec.LastAttemptAt
		}
		if rec.QuotedAt.IsZero() {
			continue
		}
		s.Quoted++
		if s.OldestQuote.IsZero() || rec.QuotedAt.Before(s.OldestQuote) {
			s.OldestQuote = rec.QuotedAt
		}
		if rec.QuotedAt.After(s.NewestQuote) {
			s.NewestQuote = rec.QuotedAt
		}
	}
	return s
}
