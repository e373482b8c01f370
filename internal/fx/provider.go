package fx

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/freight-quotes/internal/resilience"
	"github.com/sells-group/freight-quotes/pkg/frankfurter"
)

// HTTPProvider answers rate lookups from the Frankfurter API, guarded by a
// retry policy and a circuit breaker.
type HTTPProvider struct {
	client  frankfurter.Client
	retry   resilience.RetryConfig
	breaker *resilience.CircuitBreaker
}

// NewHTTPProvider creates a provider over client.
func NewHTTPProvider(client frankfurter.Client, retry resilience.RetryConfig, breaker resilience.CircuitBreakerConfig) *HTTPProvider {
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger("frankfurter", "latest")
	}
	if breaker.OnStateChange == nil {
		breaker.OnStateChange = func(from, to resilience.CircuitState) {
			zap.L().Warn("fx: circuit state change",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		}
	}
	return &HTTPProvider{
		client:  client,
		retry:   retry,
		breaker: resilience.NewCircuitBreaker(breaker),
	}
}

// Rate asks for base=target, symbols=source, so rates[source] is "1 target = r source".
func (p *HTTPProvider) Rate(ctx context.Context, source, target string) (float64, error) {
	source = strings.ToUpper(source)
	target = strings.ToUpper(target)

	return resilience.ExecuteVal(ctx, p.breaker, func(ctx context.Context) (float64, error) {
		return resilience.DoVal(ctx, p.retry, func(ctx context.Context) (float64, error) {
			resp, err := p.client.Latest(ctx, target, source)
			if err != nil {
				return 0, err
			}
			rate, ok := resp.Rates[source]
			if !ok || rate <= 0 {
				return 0, eris.Errorf("fx: no rate for %s in %s response", source, target)
			}
			return rate, nil
		})
	})
}
