// Package fx converts charge amounts into the run's target currency.
package fx

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/freight-quotes/internal/model"
)

// MultiCurrency marks a breakdown total that mixes currencies. It is never converted.
const MultiCurrency = "MULTI"

// RateProvider looks up exchange rates. The returned rate r means
// 1 target = r source, so an amount converts as amount / r.
type RateProvider interface {
	Rate(ctx context.Context, source, target string) (float64, error)
}

// Normalizer converts charges to a target currency with policy exemptions.
type Normalizer struct {
	provider  RateProvider
	target    string
	exempt    map[string]struct{}
	fallbacks map[string]float64
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithExempt sets charge names that are never converted (case-insensitive).
func WithExempt(names ...string) Option {
	return func(n *Normalizer) {
		for _, name := range names {
			n.exempt[normName(name)] = struct{}{}
		}
	}
}

// WithFallback sets an approximate rate (1 target = rate source) used for a
// currency when the provider fails.
func WithFallback(currency string, rate float64) Option {
	return func(n *Normalizer) {
		if rate > 0 {
			n.fallbacks[strings.ToUpper(strings.TrimSpace(currency))] = rate
		}
	}
}

// NewNormalizer creates a Normalizer converting into target.
func NewNormalizer(provider RateProvider, target string, opts ...Option) *Normalizer {
	n := &Normalizer{
		provider:  provider,
		target:    strings.ToUpper(strings.TrimSpace(target)),
		exempt:    make(map[string]struct{}),
		fallbacks: make(map[string]float64),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Target returns the target currency code.
func (n *Normalizer) Target() string {
	return n.target
}

// IsExempt reports whether a charge name is excluded from conversion.
func (n *Normalizer) IsExempt(chargeName string) bool {
	_, ok := n.exempt[normName(chargeName)]
	return ok
}

// ToTarget converts amount from source into the target currency. ok is false
// when no rate could be obtained; the caller keeps the original pair.
func (n *Normalizer) ToTarget(ctx context.Context, amount float64, source string) (float64, bool) {
	rate, ok := n.rate(ctx, source)
	if !ok {
		return 0, false
	}
	return amount / rate, true
}

// rate resolves "1 target = r source". Identity pairs yield 1.
func (n *Normalizer) rate(ctx context.Context, source string) (float64, bool) {
	source = strings.ToUpper(strings.TrimSpace(source))
	if source == "" || source == n.target || source == MultiCurrency {
		return 1, true
	}

	if n.provider != nil {
		rate, err := n.provider.Rate(ctx, source, n.target)
		if err == nil && rate > 0 {
			return rate, true
		}
		zap.L().Warn("fx: rate lookup failed",
			zap.String("source", source),
			zap.String("target", n.target),
			zap.Error(err),
		)
	}

	if rate, ok := n.fallbacks[source]; ok {
		zap.L().Info("fx: using fallback rate",
			zap.String("source", source),
			zap.Float64("rate", rate),
		)
		return rate, true
	}
	return 0, false
}

// Normalize converts every convertible line to the target currency. Exempt
// lines and lines without an obtainable rate keep their original currency.
func (n *Normalizer) Normalize(ctx context.Context, lines []model.ChargeLine) []model.ChargeLine {
	out := make([]model.ChargeLine, 0, len(lines))
	for _, line := range lines {
		if n.IsExempt(line.Name) {
			out = append(out, line)
			continue
		}
		cur := strings.ToUpper(strings.TrimSpace(line.Currency))
		if cur == "" || cur == n.target || cur == MultiCurrency {
			out = append(out, line)
			continue
		}
		rate, ok := n.rate(ctx, cur)
		if !ok {
			out = append(out, line)
			continue
		}
		line.TotalPrice /= rate
		line.UnitPrice /= rate
		line.Currency = n.target
		out = append(out, line)
	}
	return out
}

func normName(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
