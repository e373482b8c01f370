// Package schedule computes the order in which a run attempts its routes.
package schedule

import (
	"sort"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/freight-quotes/internal/model"
)

// Bucket classifies a job against its stored history.
type Bucket int

const (
	NeverAttempted Bucket = iota
	HadSuccess
	OnlyFailed
)

func (b Bucket) String() string {
	switch b {
	case NeverAttempted:
		return "never_attempted"
	case HadSuccess:
		return "had_success"
	case OnlyFailed:
		return "only_failed"
	default:
		return "unknown"
	}
}

// SuccessOrder decides how routes with a stored success are refreshed.
type SuccessOrder string

const (
	// OldestFirst refreshes the stalest successful quote first.
	OldestFirst SuccessOrder = "oldest_first"
	// NewestFirst re-checks the most recently quoted routes first.
	NewestFirst SuccessOrder = "newest_first"
)

// ParseSuccessOrder validates a configured success order. Empty means OldestFirst.
func ParseSuccessOrder(s string) (SuccessOrder, error) {
	switch SuccessOrder(s) {
	case "", OldestFirst:
		return OldestFirst, nil
	case NewestFirst:
		return NewestFirst, nil
	}
	return "", eris.Errorf("schedule: unknown success order %q", s)
}

// History is the read-only view of the result store the scheduler needs.
type History interface {
	Get(key string) (model.AttemptRecord, bool)
}

// Entry is one scheduled job with the classification that placed it.
type Entry struct {
	Job    model.RouteJob
	Bucket Bucket
	// Ref is the bucket's reference timestamp (quoted_at or last_attempt_at).
	Ref time.Time
}

// Classify places a job into its priority bucket.
func Classify(job model.RouteJob, history History) (Bucket, time.Time) {
	rec, ok := history.Get(job.Key())
	if !ok || !rec.HasHistory() {
		return NeverAttempted, time.Time{}
	}
	// A route whose latest attempt failed waits with the failures, by
	// last_attempt_at, even when it kept an older quote.
	if rec.Status == model.StatusSuccess && !rec.QuotedAt.IsZero() {
		return HadSuccess, rec.QuotedAt
	}
	return OnlyFailed, rec.LastAttemptAt
}

// Order returns the jobs in run order. Neither jobs nor history are modified.
func Order(jobs []model.RouteJob, history History, dir SuccessOrder) []Entry {
	entries := make([]Entry, len(jobs))
	pos := make([]int, len(jobs))
	for i, job := range jobs {
		b, ref := Classify(job, history)
		entries[i] = Entry{Job: job, Bucket: b, Ref: ref}
		pos[i] = i
	}

	sort.SliceStable(pos, func(a, b int) bool {
		return less(entries[pos[a]], entries[pos[b]], pos[a], pos[b], dir)
	})

	out := make([]Entry, len(pos))
	for i, p := range pos {
		out[i] = entries[p]
	}
	return out
}

// Jobs strips the classification from an ordered entry list.
func Jobs(entries []Entry) []model.RouteJob {
	out := make([]model.RouteJob, len(entries))
	for i, e := range entries {
		out[i] = e.Job
	}
	return out
}

func less(a, b Entry, ia, ib int, dir SuccessOrder) bool {
	if a.Bucket != b.Bucket {
		return a.Bucket < b.Bucket
	}
	if a.Bucket != NeverAttempted && !a.Ref.Equal(b.Ref) {
		if a.Bucket == HadSuccess && dir == NewestFirst {
			return a.Ref.After(b.Ref)
		}
		return a.Ref.Before(b.Ref)
	}
	return ia < ib
}
