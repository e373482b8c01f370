package resultstore

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/freight-quotes/internal/model"
)

// Load reads a store file. A missing file yields an empty table.
// Duplicate rows for one key are folded: the latest attempt supplies the
// volatile fields and the latest success supplies quoted_at and the values.
func Load(path string) (*Table, error) {
	t := New(path)

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return t, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "resultstore: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	if err := t.read(f); err != nil {
		return nil, eris.Wrapf(err, "resultstore: read %s", path)
	}
	return t, nil
}

func (t *Table) read(r io.Reader) error {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return eris.Wrap(err, "read header")
	}
	for i := range header {
		header[i] = trimBOM(header[i])
		t.addColumn(header[i])
	}

	line := 1
	for {
		row, err := reader.Read()
		if err == io.EOF {
			return nil
		}
		line++
		if err != nil {
			return eris.Wrapf(err, "read row %d", line)
		}

		rec, ok := parseRow(header, row)
		if !ok {
			zap.L().Warn("resultstore: skipping row without key", zap.Int("line", line))
			continue
		}
		t.fold(rec)
	}
}

func parseRow(header, row []string) (model.AttemptRecord, bool) {
	rec := model.AttemptRecord{Values: make(map[string]string)}
	var rawKey string
	for i, col := range header {
		if i >= len(row) {
			break
		}
		v := row[i]
		switch col {
		case ColKey:
			rawKey = v
		case ColOrigin:
			rec.Origin = cell(v)
		case ColDestination:
			rec.Destination = cell(v)
		case ColLastAttemptAt:
			rec.LastAttemptAt, _ = model.ParseTime(v)
		case ColQuotedAt:
			rec.QuotedAt, _ = model.ParseTime(v)
		case ColStatus:
			rec.Status = model.ParseStatus(v)
		case ColMessage:
			rec.Message = cell(v)
		default:
			if !model.IsBlank(v) {
				rec.Values[col] = v
			}
		}
	}

	if rec.Origin == "" || rec.Destination == "" {
		o, d, ok := model.SplitKey(rawKey)
		if !ok {
			return rec, false
		}
		if rec.Origin == "" {
			rec.Origin = o
		}
		if rec.Destination == "" {
			rec.Destination = d
		}
	}
	rec.Key = model.Key(rec.Origin, rec.Destination)
	return rec, true
}

// fold merges a loaded row into the table without touching the column universe.
func (t *Table) fold(row model.AttemptRecord) {
	cur, ok := t.records[row.Key]
	if !ok {
		t.records[row.Key] = &row
		return
	}
	if !row.LastAttemptAt.Before(cur.LastAttemptAt) {
		cur.LastAttemptAt = row.LastAttemptAt
		cur.Status = row.Status
		cur.Message = row.Message
	}
	if !row.QuotedAt.IsZero() && !row.QuotedAt.Before(cur.QuotedAt) {
		cur.QuotedAt = row.QuotedAt
		cur.Values = row.Values
	}
}

// Flush writes every record, sorted by key, replacing the file atomically.
func (t *Table) Flush() error {
	dir := filepath.Dir(t.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "resultstore: create dir %s", dir)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(t.path)+".*.tmp")
	if err != nil {
		return eris.Wrap(err, "resultstore: create temp file")
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if err := t.Write(tmp); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return eris.Wrap(err, "resultstore: sync temp file")
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return eris.Wrap(err, "resultstore: close temp file")
	}
	if err := os.Rename(tmpName, t.path); err != nil {
		cleanup()
		return eris.Wrapf(err, "resultstore: replace %s", t.path)
	}
	return nil
}

// Write serializes the table as CSV.
func (t *Table) Write(w io.Writer) error {
	cw := csv.NewWriter(w)
	dynamic := t.DynamicColumns()

	if err := cw.Write(t.Columns()); err != nil {
		return eris.Wrap(err, "resultstore: write header")
	}
	row := make([]string, len(FixedColumns)+len(dynamic))
	for _, key := range t.Keys() {
		rec := t.records[key]
		row[0] = rec.Key
		row[1] = rec.Origin
		row[2] = rec.Destination
		row[3] = model.FormatTime(rec.LastAttemptAt)
		row[4] = model.FormatTime(rec.QuotedAt)
		row[5] = string(rec.Status)
		row[6] = rec.Message
		for i, col := range dynamic {
			row[len(FixedColumns)+i] = rec.Values[col]
		}
		if err := cw.Write(row); err != nil {
			return eris.Wrapf(err, "resultstore: write row %s", key)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return eris.Wrap(err, "resultstore: flush csv")
	}
	return nil
}

func cell(v string) string {
	if model.IsBlank(v) {
		return ""
	}
	return v
}

func trimBOM(s string) string {
	return strings.TrimPrefix(s, "\ufeff")
}
