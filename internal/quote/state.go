// Package quote drives one route through a carrier portal: form, results
// wait with retries, offer selection and breakdown extraction.
package quote

// State is a step of a route attempt.
type State int

const (
	StateInit State = iota
	StateFormReady
	StateFieldsFilled
	StateAwaitingResults
	StateRetrying
	StateResultsReady
	StateDetailsOpen
	StateExtracted
	StateSuccess
	StateNoQuote
	StateError
)

var stateNames = [...]string{
	"init",
	"form_ready",
	"fields_filled",
	"awaiting_results",
	"retrying",
	"results_ready",
	"details_open",
	"extracted",
	"success",
	"no_quote",
	"error",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateSuccess || s == StateNoQuote || s == StateError
}
