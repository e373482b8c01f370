package model

import (
	"strings"
	"time"
)

// Status is the outcome class of a quote attempt.
type Status string

const (
	StatusSuccess Status = "success"
	StatusNoQuote Status = "no_quote"
	StatusError   Status = "error"
)

// ParseStatus maps a stored status cell to a Status. Older stores wrote "ok"
// for a successful quote.
func ParseStatus(s string) Status {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "success", "ok":
		return StatusSuccess
	case "no_quote", "noquote", "no quote":
		return StatusNoQuote
	case "":
		return ""
	default:
		return StatusError
	}
}

// TimeLayout is the timestamp format written to the result store.
const TimeLayout = time.RFC3339

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTime parses a stored timestamp. Blank values yield the zero time.
func ParseTime(s string) (time.Time, bool) {
	if IsBlank(s) {
		return time.Time{}, false
	}
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FormatTime renders a timestamp for the result store.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(TimeLayout)
}

// AttemptRecord is the durable, one-per-key record in the result store.
// Values holds the dynamic columns (charges and journey metadata).
type AttemptRecord struct {
	Key           string
	Origin        string
	Destination   string
	LastAttemptAt time.Time
	QuotedAt      time.Time
	Status        Status
	Message       string
	Values        map[string]string
}

// Clone returns a deep copy of the record.
func (r AttemptRecord) Clone() AttemptRecord {
	out := r
	out.Values = make(map[string]string, len(r.Values))
	for k, v := range r.Values {
		out.Values[k] = v
	}
	return out
}

// HasHistory reports whether any attempt was ever recorded for the key.
func (r AttemptRecord) HasHistory() bool {
	return !r.LastAttemptAt.IsZero() || !r.QuotedAt.IsZero()
}

// Attempt is the outcome of one route attempt, ready to be merged.
// QuotedAt and Values are only meaningful when Status is StatusSuccess.
type Attempt struct {
	Key         string
	Origin      string
	Destination string
	At          time.Time
	Status      Status
	Message     string
	QuotedAt    time.Time
	Values      map[string]string
}
