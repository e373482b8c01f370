package runlog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/freight-quotes/internal/model"
)

func newTestLog(t *testing.T) *Log {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() }) //nolint:errcheck
	require.NoError(t, l.Migrate(context.Background()))
	return l
}

func TestLog_AppendAndList(t *testing.T) {
	l := newTestLog(t)
	ctx := context.Background()
	run := NewRunID()
	t0 := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	id, err := l.Append(ctx, Entry{
		RunID: run, Carrier: "maersk", Key: "BRSSZ|USNYC",
		Status: model.StatusSuccess, Message: "ok: 2 charges", Charges: 2,
		Target:    time.Date(2025, 3, 8, 0, 0, 0, 0, time.UTC),
		StartedAt: t0, FinishedAt: t0.Add(time.Minute),
		Values: map[string]string{"USD Ocean Freight": "100"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	_, err = l.Append(ctx, Entry{
		RunID: run, Carrier: "maersk", Key: "BRSSZ|USHOU",
		Status: model.StatusError, Code: "results_timeout", Message: "results_timeout (retries=10)", Retries: 10,
		StartedAt: t0.Add(time.Minute), FinishedAt: t0.Add(2 * time.Minute),
	})
	require.NoError(t, err)

	all, err := l.List(ctx, Filter{RunID: run})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "BRSSZ|USHOU", all[0].Key, "newest first")
	assert.Equal(t, 10, all[0].Retries)
	assert.True(t, all[0].Target.IsZero())
	assert.Nil(t, all[0].Values)

	ok := all[1]
	assert.Equal(t, id, ok.ID)
	assert.Equal(t, model.StatusSuccess, ok.Status)
	assert.Equal(t, map[string]string{"USD Ocean Freight": "100"}, ok.Values)
	assert.True(t, ok.Target.Equal(time.Date(2025, 3, 8, 0, 0, 0, 0, time.UTC)))
	assert.True(t, ok.StartedAt.Equal(t0))
}

func TestLog_ListFilters(t *testing.T) {
	l := newTestLog(t)
	ctx := context.Background()
	t0 := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	for i, c := range []string{"cma", "hapag", "cma"} {
		status := model.StatusSuccess
		if i == 2 {
			status = model.StatusNoQuote
		}
		_, err := l.Append(ctx, Entry{
			RunID: "r1", Carrier: c, Key: "BRSSZ|USNYC", Status: status,
			StartedAt: t0.Add(time.Duration(i) * time.Hour), FinishedAt: t0.Add(time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
	}

	got, err := l.List(ctx, Filter{Carrier: "cma"})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = l.List(ctx, Filter{Carrier: "cma", Status: model.StatusNoQuote})
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = l.List(ctx, Filter{Since: t0.Add(90 * time.Minute)})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, model.StatusNoQuote, got[0].Status)

	got, err = l.List(ctx, Filter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "hapag", got[0].Carrier)
}

func TestLog_MigrateIsIdempotent(t *testing.T) {
	l := newTestLog(t)
	require.NoError(t, l.Migrate(context.Background()))
}
