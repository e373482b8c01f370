// Package resultstore keeps the durable one-row-per-route record of quote
// attempts and persists it as a CSV file.
package resultstore

import (
	"sort"

	"github.com/sells-group/freight-quotes/internal/model"
)

// Fixed leading columns of the store file.
const (
	ColKey           = "key"
	ColOrigin        = "origin"
	ColDestination   = "destination"
	ColLastAttemptAt = "last_attempt_at"
	ColQuotedAt      = "quoted_at"
	ColStatus        = "status"
	ColMessage       = "message"
)

// FixedColumns is the leading column set, in file order.
var FixedColumns = []string{
	ColKey, ColOrigin, ColDestination, ColLastAttemptAt, ColQuotedAt, ColStatus, ColMessage,
}

var fixedSet = func() map[string]struct{} {
	m := make(map[string]struct{}, len(FixedColumns))
	for _, c := range FixedColumns {
		m[c] = struct{}{}
	}
	return m
}()

// Table is the in-memory result store. It has a single writer (the run loop)
// and is not safe for concurrent use.
type Table struct {
	path    string
	records map[string]*model.AttemptRecord
	// dynamic is the monotonic universe of charge and journey columns.
	dynamic map[string]struct{}
}

// New creates an empty table that flushes to path.
func New(path string) *Table {
	return &Table{
		path:    path,
		records: make(map[string]*model.AttemptRecord),
		dynamic: make(map[string]struct{}),
	}
}

// Path returns the file the table flushes to.
func (t *Table) Path() string {
	return t.path
}

// Len returns the number of records.
func (t *Table) Len() int {
	return len(t.records)
}

// Get returns a copy of the record stored under key.
func (t *Table) Get(key string) (model.AttemptRecord, bool) {
	rec, ok := t.records[key]
	if !ok {
		return model.AttemptRecord{}, false
	}
	return rec.Clone(), true
}

// Keys returns every key in sorted order.
func (t *Table) Keys() []string {
	keys := make([]string, 0, len(t.records))
	for k := range t.records {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Records returns copies of every record sorted by key.
func (t *Table) Records() []model.AttemptRecord {
	keys := t.Keys()
	out := make([]model.AttemptRecord, len(keys))
	for i, k := range keys {
		out[i] = t.records[k].Clone()
	}
	return out
}

// DynamicColumns returns the sorted charge and journey columns.
func (t *Table) DynamicColumns() []string {
	cols := make([]string, 0, len(t.dynamic))
	for c := range t.dynamic {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

// Columns returns the full header: fixed columns then sorted dynamic ones.
func (t *Table) Columns() []string {
	return append(append([]string{}, FixedColumns...), t.DynamicColumns()...)
}

// Merge folds an attempt into the record for its key and returns the result.
// last_attempt_at, status and message always change. quoted_at and the
// dynamic columns change only on success, and a success replaces the whole
// previous snapshot.
func (t *Table) Merge(a model.Attempt) model.AttemptRecord {
	rec, ok := t.records[a.Key]
	if !ok {
		rec = &model.AttemptRecord{Key: a.Key, Values: make(map[string]string)}
		t.records[a.Key] = rec
	}
	if a.Origin != "" {
		rec.Origin = a.Origin
	}
	if a.Destination != "" {
		rec.Destination = a.Destination
	}
	if rec.Origin == "" && rec.Destination == "" {
		rec.Origin, rec.Destination, _ = model.SplitKey(a.Key)
	}

	rec.LastAttemptAt = a.At
	rec.Status = a.Status
	rec.Message = a.Message

	if a.Status == model.StatusSuccess {
		rec.QuotedAt = a.QuotedAt
		if rec.QuotedAt.IsZero() {
			rec.QuotedAt = a.At
		}
		rec.Values = make(map[string]string, len(a.Values))
		for col, v := range a.Values {
			t.addColumn(col)
			if v != "" {
				rec.Values[col] = v
			}
		}
	}
	return rec.Clone()
}

func (t *Table) addColumn(col string) {
	if col == "" {
		return
	}
	if _, fixed := fixedSet[col]; fixed {
		return
	}
	t.dynamic[col] = struct{}{}
}
