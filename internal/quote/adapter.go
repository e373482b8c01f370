package quote

import (
	"context"
	"time"

	"github.com/sells-group/freight-quotes/internal/diag"
	"github.com/sells-group/freight-quotes/internal/model"
)

// Request is a fully resolved form submission for one route.
type Request struct {
	Origin        string
	Destination   string
	Commodity     string
	ContainerType string
	WeightKg      float64
	PriceOwner    string
	Date          time.Time
}

// FormInfo is what an open quote form declares about itself.
type FormInfo struct {
	// MinDate and MaxDate bound the departure date picker. Zero when absent.
	MinDate time.Time
	MaxDate time.Time
}

// Adapter is the carrier-specific half of an attempt. The driver owns the
// sequencing, the retry policy and the classification; adapters only touch
// the portal. Every method must respect its own bounded timeout.
type Adapter interface {
	// Name identifies the carrier, e.g. "maersk".
	Name() string
	// Login establishes the authenticated session. Failure is run-fatal.
	Login(ctx context.Context) error
	// OpenForm navigates to the quote form and waits for its inputs.
	OpenForm(ctx context.Context) (FormInfo, error)
	// Recover re-authenticates or reloads after OpenForm failed.
	Recover(ctx context.Context) error
	// FillForm submits every field. Rejected inputs return InvalidField.
	FillForm(ctx context.Context, req Request) error
	// Search triggers the query.
	Search(ctx context.Context) error
	// Observe polls the results area once.
	Observe(ctx context.Context) (Observation, error)
	// ClickRetry presses the portal's retry control.
	ClickRetry(ctx context.Context) error
	// Candidates lists the result entries.
	Candidates(ctx context.Context, target time.Time) ([]Candidate, error)
	// Expand performs a layout's extra "show offers" step. It reports false
	// when the layout has no such step.
	Expand(ctx context.Context) (bool, error)
	// OpenDetails opens the price breakdown of c.
	OpenDetails(ctx context.Context, c Candidate) error
	// ExtractBreakdown parses the open breakdown.
	ExtractBreakdown(ctx context.Context) (*model.Quote, error)
	// Reset returns the session to a neutral page between routes.
	Reset(ctx context.Context) error
	// Snapshot collects best-effort diagnostics of the current page.
	Snapshot(ctx context.Context) (diag.Entry, error)
}
