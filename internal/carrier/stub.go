package carrier

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/freight-quotes/internal/diag"
	"github.com/sells-group/freight-quotes/internal/model"
	"github.com/sells-group/freight-quotes/internal/quote"
)

// Scenario scripts a portal for offline runs. Routes are keyed by
// "ORIGIN|DESTINATION"; routes not listed use Default.
type Scenario struct {
	LoginError string               `yaml:"login_error"`
	Default    StubRoute            `yaml:"default"`
	Routes     map[string]StubRoute `yaml:"routes"`
}

// StubRoute scripts one route.
type StubRoute struct {
	// Observations are returned by successive polls; the last one repeats.
	// Values: nothing, results, empty, retry.
	Observations []string        `yaml:"observations"`
	Candidates   []StubCandidate `yaml:"candidates"`
	// Expanded replaces Candidates after an expand step, when set.
	Expanded []StubCandidate `yaml:"expanded"`
	Charges  []StubCharge    `yaml:"charges"`
	Transit  string          `yaml:"transit_time"`

	FormUnavailable bool   `yaml:"form_unavailable"`
	InvalidField    string `yaml:"invalid_field"`
	OpenFails       []int  `yaml:"open_fails"`
	ExtractError    string `yaml:"extract_error"`
}

// StubCandidate is one scripted result entry. OffsetDays is relative to the
// searched date.
type StubCandidate struct {
	OffsetDays *int   `yaml:"offset_days"`
	Actionable bool   `yaml:"actionable"`
	Label      string `yaml:"label"`
}

// StubCharge is one scripted breakdown line.
type StubCharge struct {
	Name      string  `yaml:"name"`
	Currency  string  `yaml:"currency"`
	Total     float64 `yaml:"total"`
	Unit      float64 `yaml:"unit"`
	Quantity  float64 `yaml:"quantity"`
	Basis     string  `yaml:"basis"`
	Group     string  `yaml:"group"`
	Dimension string  `yaml:"dimension"`
}

// LoadScenario reads a YAML scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "carrier: read scenario %s", path)
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, eris.Wrapf(err, "carrier: parse scenario %s", path)
	}
	return &sc, nil
}

// Stub is a quote.Adapter that plays a Scenario instead of driving a portal.
type Stub struct {
	name     string
	scenario *Scenario

	route    StubRoute
	target   time.Time
	polls    int
	expanded bool
	retries  int
	chosen   quote.Candidate
}

// NewStub creates a scripted adapter reporting itself as name.
func NewStub(name string, sc *Scenario) *Stub {
	if sc == nil {
		sc = &Scenario{}
	}
	return &Stub{name: name, scenario: sc}
}

// Name implements quote.Adapter.
func (s *Stub) Name() string { return s.name }

// Login implements quote.Adapter.
func (s *Stub) Login(context.Context) error {
	if s.scenario.LoginError != "" {
		return quote.Fail(quote.KindLogin, eris.New(s.scenario.LoginError))
	}
	return nil
}

// OpenForm implements quote.Adapter. Forms are unavailable only for routes
// that say so, which are known after FillForm; a scenario-wide default applies
// here.
func (s *Stub) OpenForm(context.Context) (quote.FormInfo, error) {
	if s.scenario.Default.FormUnavailable {
		return quote.FormInfo{}, eris.New("stub: form unavailable")
	}
	return quote.FormInfo{}, nil
}

// Recover implements quote.Adapter.
func (s *Stub) Recover(context.Context) error { return nil }

// FillForm implements quote.Adapter and selects the route script.
func (s *Stub) FillForm(_ context.Context, req quote.Request) error {
	s.route = s.scenario.Default
	if r, ok := s.scenario.Routes[model.Key(req.Origin, req.Destination)]; ok {
		s.route = r
	}
	s.target = req.Date
	s.polls = 0
	s.expanded = false
	s.chosen = quote.Candidate{}

	if s.route.FormUnavailable {
		return quote.Fail(quote.KindFormUnavailable, eris.New("stub: form unavailable"))
	}
	if f := s.route.InvalidField; f != "" {
		value := req.Destination
		if f == "origin" {
			value = req.Origin
		}
		return quote.InvalidField(f, value, ErrNoSuggestion)
	}
	return nil
}

// Search implements quote.Adapter.
func (s *Stub) Search(context.Context) error { return nil }

// Observe implements quote.Adapter.
func (s *Stub) Observe(context.Context) (quote.Observation, error) {
	obs := s.route.Observations
	if len(obs) == 0 {
		return quote.SeenResults, nil
	}
	i := min(s.polls, len(obs)-1)
	s.polls++
	switch strings.ToLower(strings.TrimSpace(obs[i])) {
	case "results":
		return quote.SeenResults, nil
	case "empty":
		return quote.SeenEmpty, nil
	case "retry":
		return quote.SeenRetry, nil
	default:
		return quote.SeenNothing, nil
	}
}

// ClickRetry implements quote.Adapter.
func (s *Stub) ClickRetry(context.Context) error {
	s.retries++
	return nil
}

// Candidates implements quote.Adapter.
func (s *Stub) Candidates(_ context.Context, target time.Time) ([]quote.Candidate, error) {
	src := s.route.Candidates
	if s.expanded && s.route.Expanded != nil {
		src = s.route.Expanded
	}
	out := make([]quote.Candidate, 0, len(src))
	for i, c := range src {
		cand := quote.Candidate{Index: i, Actionable: c.Actionable, Label: c.Label}
		if c.OffsetDays != nil {
			cand.Date = target.AddDate(0, 0, *c.OffsetDays)
		}
		out = append(out, cand)
	}
	return out, nil
}

// Expand implements quote.Adapter.
func (s *Stub) Expand(context.Context) (bool, error) {
	if s.route.Expanded == nil || s.expanded {
		return false, nil
	}
	s.expanded = true
	return true, nil
}

// OpenDetails implements quote.Adapter.
func (s *Stub) OpenDetails(_ context.Context, c quote.Candidate) error {
	for _, i := range s.route.OpenFails {
		if i == c.Index {
			return eris.Errorf("stub: candidate %d did not open", c.Index)
		}
	}
	s.chosen = c
	return nil
}

// ExtractBreakdown implements quote.Adapter.
func (s *Stub) ExtractBreakdown(context.Context) (*model.Quote, error) {
	if s.route.ExtractError != "" {
		return nil, quote.Fail(quote.KindExtraction, eris.New(s.route.ExtractError))
	}
	departure := s.chosen.Date
	if departure.IsZero() {
		departure = s.target
	}
	q := &model.Quote{Journey: model.Journey{Departure: departure, TransitTime: s.route.Transit}}
	for _, c := range s.route.Charges {
		q.Charges = append(q.Charges, model.ChargeLine{
			Name:       c.Name,
			Basis:      c.Basis,
			Quantity:   c.Quantity,
			Currency:   strings.ToUpper(c.Currency),
			UnitPrice:  c.Unit,
			TotalPrice: c.Total,
			Group:      c.Group,
			Dimension:  c.Dimension,
		})
	}
	return q, nil
}

// Reset implements quote.Adapter.
func (s *Stub) Reset(context.Context) error {
	s.route = StubRoute{}
	return nil
}

// Snapshot implements quote.Adapter.
func (s *Stub) Snapshot(context.Context) (diag.Entry, error) {
	return diag.Entry{URL: "stub://" + s.name}, nil
}

// Retries reports how many retry clicks the stub received.
func (s *Stub) Retries() int { return s.retries }

var _ quote.Adapter = (*Stub)(nil)
