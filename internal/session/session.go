// Package session defines the browser-session capability the quote engine
// drives. Implementations live outside the engine: the HTTP bridge in
// pkg/browser, and the scriptable fake in sessiontest.
package session

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
)

// Ref addresses one element: the Nth match (0-based) of a CSS selector.
// Selectors may pierce shadow roots with ">>>" when the backend supports it.
type Ref struct {
	Selector string `json:"selector"`
	Nth      int    `json:"nth,omitempty"`
}

// Sel is shorthand for the first match of selector.
func Sel(selector string) Ref {
	return Ref{Selector: selector}
}

// State is an element state a wait can target.
type State string

const (
	Visible  State = "visible"
	Attached State = "attached"
	Hidden   State = "hidden"
)

// Condition is something WaitFor blocks on. The condition holds when any of
// the selectors reaches State.
type Condition struct {
	Selectors []string `json:"selectors"`
	State     State    `json:"state"`
}

// VisibleAny builds a Condition satisfied when any selector is visible.
func VisibleAny(selectors ...string) Condition {
	return Condition{Selectors: selectors, State: Visible}
}

// ErrNotFound is returned when a Ref matches nothing.
var ErrNotFound = eris.New("session: element not found")

// Session is the automation capability a carrier adapter drives. Every call
// blocks until done or until its bounded timeout elapses.
type Session interface {
	Navigate(ctx context.Context, url string) error
	Fill(ctx context.Context, ref Ref, value string) error
	Click(ctx context.Context, ref Ref) error
	// WaitFor reports whether cond held before timeout. A false result is not an error.
	WaitFor(ctx context.Context, cond Condition, timeout time.Duration) (bool, error)
	ReadText(ctx context.Context, ref Ref) (string, error)
	// ReadHTML returns the outer HTML of ref. An empty selector means the whole page.
	ReadHTML(ctx context.Context, ref Ref) (string, error)
	URL(ctx context.Context) (string, error)
	Screenshot(ctx context.Context) ([]byte, error)
	Close(ctx context.Context) error
}
