package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/freight-quotes/internal/model"
)

type mapHistory map[string]model.AttemptRecord

func (m mapHistory) Get(key string) (model.AttemptRecord, bool) {
	r, ok := m[key]
	return r, ok
}

var t0 = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func job(i int, o, d string) model.RouteJob {
	return model.RouteJob{Origin: o, Destination: d, Index: i}
}

func keys(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Job.Key()
	}
	return out
}

func TestOrder_BucketsAcrossInputOrders(t *testing.T) {
	t.Parallel()

	h := mapHistory{
		"B|X": {Key: "B|X", Status: model.StatusSuccess, QuotedAt: t0, LastAttemptAt: t0},
		"C|X": {Key: "C|X", Status: model.StatusError, LastAttemptAt: t0.Add(time.Hour)},
	}
	a, b, c := job(0, "A", "X"), job(1, "B", "X"), job(2, "C", "X")

	perms := [][]model.RouteJob{{a, b, c}, {c, b, a}, {b, c, a}, {c, a, b}}
	for _, jobs := range perms {
		got := keys(Order(jobs, h, OldestFirst))
		assert.Equal(t, []string{"A|X", "B|X", "C|X"}, got)
	}
}

func TestOrder_FailedOldestAttemptFirst(t *testing.T) {
	t.Parallel()

	h := mapHistory{
		"C1|X": {Status: model.StatusError, LastAttemptAt: t0.Add(2 * time.Hour)},
		"C2|X": {Status: model.StatusNoQuote, LastAttemptAt: t0.Add(time.Hour)},
	}
	got := keys(Order([]model.RouteJob{job(0, "C1", "X"), job(1, "C2", "X")}, h, OldestFirst))
	assert.Equal(t, []string{"C2|X", "C1|X"}, got)
}

func TestOrder_SuccessDirection(t *testing.T) {
	t.Parallel()

	h := mapHistory{
		"OLD|X": {Status: model.StatusSuccess, QuotedAt: t0},
		"NEW|X": {Status: model.StatusSuccess, QuotedAt: t0.Add(24 * time.Hour)},
	}
	jobs := []model.RouteJob{job(0, "NEW", "X"), job(1, "OLD", "X")}

	assert.Equal(t, []string{"OLD|X", "NEW|X"}, keys(Order(jobs, h, OldestFirst)))
	assert.Equal(t, []string{"NEW|X", "OLD|X"}, keys(Order(jobs, h, NewestFirst)))
}

func TestOrder_TieBreakByInputIndex(t *testing.T) {
	t.Parallel()

	h := mapHistory{
		"B|X": {Status: model.StatusError, LastAttemptAt: t0},
		"A|X": {Status: model.StatusError, LastAttemptAt: t0},
	}
	jobs := []model.RouteJob{job(0, "N2", "X"), job(1, "B", "X"), job(2, "N1", "X"), job(3, "A", "X")}
	assert.Equal(t, []string{"N2|X", "N1|X", "B|X", "A|X"}, keys(Order(jobs, h, OldestFirst)))
}

func TestClassify(t *testing.T) {
	t.Parallel()

	h := mapHistory{
		"EMPTY|X":  {Key: "EMPTY|X"},
		"SUCC|X":   {Status: model.StatusSuccess, QuotedAt: t0, LastAttemptAt: t0},
		"REFAIL|X": {Status: model.StatusError, QuotedAt: t0, LastAttemptAt: t0.Add(time.Hour)},
		"FAIL|X":   {Status: model.StatusError, LastAttemptAt: t0},
	}

	tests := []struct {
		key  string
		want Bucket
		ref  time.Time
	}{
		{"MISSING|X", NeverAttempted, time.Time{}},
		{"EMPTY|X", NeverAttempted, time.Time{}},
		{"SUCC|X", HadSuccess, t0},
		{"REFAIL|X", OnlyFailed, t0.Add(time.Hour)},
		{"FAIL|X", OnlyFailed, t0},
	}
	for _, tt := range tests {
		o, d, ok := model.SplitKey(tt.key)
		require.True(t, ok)
		b, ref := Classify(model.RouteJob{Origin: o, Destination: d}, h)
		assert.Equal(t, tt.want, b, tt.key)
		assert.True(t, tt.ref.Equal(ref), tt.key)
	}
}

func TestOrder_FailureAfterSuccessQueuesWithFailures(t *testing.T) {
	t.Parallel()

	h := mapHistory{
		"QUOTED|X":  {Status: model.StatusSuccess, QuotedAt: t0.Add(48 * time.Hour), LastAttemptAt: t0.Add(48 * time.Hour)},
		"REFAIL|X":  {Status: model.StatusError, QuotedAt: t0, LastAttemptAt: t0.Add(2 * time.Hour)},
		"FAILED|X":  {Status: model.StatusError, LastAttemptAt: t0.Add(time.Hour)},
		"NOQUOTE|X": {Status: model.StatusNoQuote, QuotedAt: t0, LastAttemptAt: t0.Add(3 * time.Hour)},
	}
	jobs := []model.RouteJob{job(0, "NOQUOTE", "X"), job(1, "REFAIL", "X"), job(2, "FAILED", "X"), job(3, "QUOTED", "X")}

	got := Order(jobs, h, OldestFirst)
	assert.Equal(t, []string{"QUOTED|X", "FAILED|X", "REFAIL|X", "NOQUOTE|X"}, keys(got))
	assert.Equal(t, OnlyFailed, got[2].Bucket)
	assert.True(t, got[2].Ref.Equal(t0.Add(2*time.Hour)), "ordered by the failed attempt, not the old quote")
}

func TestOrder_DoesNotMutateInput(t *testing.T) {
	t.Parallel()

	h := mapHistory{"B|X": {Status: model.StatusError, LastAttemptAt: t0}}
	jobs := []model.RouteJob{job(0, "B", "X"), job(1, "A", "X")}
	_ = Order(jobs, h, OldestFirst)
	assert.Equal(t, "B|X", jobs[0].Key())
	assert.Len(t, h, 1)
	assert.Equal(t, []model.RouteJob{jobs[1], jobs[0]}, Jobs(Order(jobs, h, OldestFirst)))
}

func TestParseSuccessOrder(t *testing.T) {
	t.Parallel()

	o, err := ParseSuccessOrder("")
	require.NoError(t, err)
	assert.Equal(t, OldestFirst, o)

	o, err = ParseSuccessOrder("newest_first")
	require.NoError(t, err)
	assert.Equal(t, NewestFirst, o)

	_, err = ParseSuccessOrder("random")
	assert.Error(t, err)
	assert.Equal(t, "only_failed", OnlyFailed.String())
}
