// Package diag stores best-effort diagnostic artifacts (screenshots and
// JSON state dumps) for post-mortem debugging of route attempts.
package diag

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Entry is one diagnostic capture, keyed by carrier, route and stage.
type Entry struct {
	Carrier    string         `json:"carrier"`
	Key        string         `json:"key"`
	Stage      string         `json:"stage"`
	At         time.Time      `json:"at"`
	URL        string         `json:"url,omitempty"`
	Message    string         `json:"message,omitempty"`
	Fields     map[string]any `json:"fields,omitempty"`
	Screenshot []byte         `json:"-"`
	HTML       string         `json:"-"`
}

// Sink accepts diagnostic captures. Callers treat every error as non-fatal.
type Sink interface {
	Capture(ctx context.Context, e Entry) error
}

// Nop discards every capture.
type Nop struct{}

// Capture implements Sink.
func (Nop) Capture(context.Context, Entry) error { return nil }

// FileSink writes captures under a directory.
type FileSink struct {
	dir string
}

// NewFileSink creates a sink rooted at dir.
func NewFileSink(dir string) *FileSink {
	return &FileSink{dir: dir}
}

// Dir returns the sink's root directory.
func (s *FileSink) Dir() string {
	return s.dir
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Name builds the file stem for an entry: carrier_origin_destination_stage_timestamp.
func Name(e Entry) string {
	parts := []string{e.Carrier}
	parts = append(parts, strings.Split(e.Key, "|")...)
	parts = append(parts, e.Stage, e.At.Format("20060102_150405"))
	for i, p := range parts {
		parts[i] = strings.Trim(unsafeChars.ReplaceAllString(p, "-"), "-")
	}
	return strings.Join(parts, "_")
}

// Capture writes the JSON state, the screenshot and the page HTML when present.
func (s *FileSink) Capture(_ context.Context, e Entry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return eris.Wrapf(err, "diag: create dir %s", s.dir)
	}
	stem := filepath.Join(s.dir, Name(e))

	state, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return eris.Wrap(err, "diag: marshal state")
	}
	if err := os.WriteFile(stem+".json", state, 0o644); err != nil {
		return eris.Wrap(err, "diag: write state")
	}
	if len(e.Screenshot) > 0 {
		if err := os.WriteFile(stem+".png", e.Screenshot, 0o644); err != nil {
			return eris.Wrap(err, "diag: write screenshot")
		}
	}
	if e.HTML != "" {
		if err := os.WriteFile(stem+".html", []byte(e.HTML), 0o644); err != nil {
			return eris.Wrap(err, "diag: write html")
		}
	}
	return nil
}
