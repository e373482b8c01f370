package carrier

import (
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sells-group/freight-quotes/internal/quote"
	"github.com/sells-group/freight-quotes/internal/session"
)

// Factory builds an adapter over a live session.
type Factory func(sess session.Session, cfg Config) quote.Adapter

var factories = map[string]Factory{
	"cma":    func(s session.Session, c Config) quote.Adapter { return NewCMA(s, c) },
	"hapag":  func(s session.Session, c Config) quote.Adapter { return NewHapag(s, c) },
	"maersk": func(s session.Session, c Config) quote.Adapter { return NewMaersk(s, c) },
}

// ErrUnknownCarrier is returned for names with no adapter.
var ErrUnknownCarrier = eris.New("carrier: unknown carrier")

// Names lists the supported carriers in sorted order.
func Names() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New builds the named carrier's adapter.
func New(name string, sess session.Session, cfg Config) (quote.Adapter, error) {
	f, ok := factories[name]
	if !ok {
		return nil, eris.Wrapf(ErrUnknownCarrier, "%q", name)
	}
	return f(sess, cfg), nil
}
