package quote

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Kind classifies a failed attempt.
type Kind string

const (
	KindFormUnavailable   Kind = "form_unavailable"
	KindInvalidField      Kind = "invalid_field"
	KindResultsTimeout    Kind = "results_timeout"
	KindNoActionableOffer Kind = "no_actionable_offer"
	KindExtraction        Kind = "breakdown_extract_error"
	KindUnexpected        Kind = "unexpected_exception"
	// KindLogin is raised before any route runs and aborts the whole run.
	KindLogin Kind = "login_failed"
)

// Error is a classified attempt failure.
type Error struct {
	Kind Kind
	// Field and Value identify a rejected form input (KindInvalidField).
	Field string
	Value string
	// Retries is the number of retry clicks used (KindResultsTimeout).
	Retries int
	Err     error
}

// Code is the short machine-readable classification, e.g. "invalid_origin".
func (e *Error) Code() string {
	if e.Kind == KindInvalidField && e.Field != "" {
		return "invalid_" + e.Field
	}
	return string(e.Kind)
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Code())
	switch e.Kind {
	case KindInvalidField:
		fmt.Fprintf(&b, ": %s=%q not accepted", e.Field, e.Value)
	case KindResultsTimeout:
		fmt.Fprintf(&b, " (retries=%d)", e.Retries)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Fail builds a classified error.
func Fail(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// InvalidField reports a form input the portal did not accept.
func InvalidField(field, value string, err error) *Error {
	return &Error{Kind: KindInvalidField, Field: field, Value: value, Err: err}
}

// Classify returns the classified error inside err, wrapping unknown errors
// as fallback.
func Classify(err error, fallback Kind) *Error {
	if err == nil {
		return nil
	}
	var qe *Error
	if errors.As(err, &qe) {
		return qe
	}
	return Fail(fallback, err)
}

// ErrNoCandidates is returned by adapters when the result list has no entries.
var ErrNoCandidates = eris.New("quote: result list is empty")
