package marketdata

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// QuoteProvider defines the interface for fetching instrument quotes.
type QuoteProvider interface {
	// Ticker returns the quote for one instrument. Failures surface as a
	// Quote without a mark price, never as an error.
	Ticker(ctx context.Context, instrument string) Quote
}

// Ensure DeribitClient implements QuoteProvider at compile time.
var _ QuoteProvider = (*DeribitClient)(nil)

// errNoMark lets the breaker count degraded quotes as failures even
// though Ticker itself never returns an error.
var errNoMark = errors.New("quote missing mark price")

// CircuitBreakerProvider wraps a QuoteProvider with circuit breaker
// functionality. While the breaker is open, fetches short-circuit to the
// degraded quote without hitting the network.
type CircuitBreakerProvider struct {
	provider QuoteProvider
	breaker  *gobreaker.CircuitBreaker
	logger   *logrus.Logger
}

// CircuitBreakerSettings configures circuit breaker behavior
type CircuitBreakerSettings struct {
	MaxRequests  uint32        // Max requests when half-open
	Interval     time.Duration // Reset counts interval
	Timeout      time.Duration // Open circuit duration
	MinRequests  uint32        // Min requests before tripping
	FailureRatio float64       // Failure ratio threshold
}

// NewCircuitBreakerProvider creates a CircuitBreakerProvider with sensible defaults
func NewCircuitBreakerProvider(provider QuoteProvider, logger *logrus.Logger) *CircuitBreakerProvider {
	return NewCircuitBreakerProviderWithSettings(provider, logger, CircuitBreakerSettings{
		MaxRequests:  3,                // Allow 3 requests when half-open
		Interval:     60 * time.Second, // Reset counts every minute
		Timeout:      30 * time.Second, // Open circuit for 30 seconds
		MinRequests:  5,                // Minimum requests before tripping
		FailureRatio: 0.6,              // Trip if 60% failure rate
	})
}

// NewCircuitBreakerProviderWithSettings creates a CircuitBreakerProvider with custom settings
func NewCircuitBreakerProviderWithSettings(
	provider QuoteProvider,
	logger *logrus.Logger,
	settings CircuitBreakerSettings,
) *CircuitBreakerProvider {
	if logger == nil {
		logger = logrus.New()
	}
	gbSettings := gobreaker.Settings{
		Name:        "QuoteProviderCircuitBreaker",
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 || counts.Requests < settings.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= settings.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("circuit breaker state changed")
		},
	}
	return &CircuitBreakerProvider{
		provider: provider,
		breaker:  gobreaker.NewCircuitBreaker(gbSettings),
		logger:   logger,
	}
}

// Ensure CircuitBreakerProvider implements QuoteProvider at compile time.
var _ QuoteProvider = (*CircuitBreakerProvider)(nil)

// Ticker wraps the underlying fetch with the circuit breaker. Open-state
// refusals and failed fetches both come back as the degraded quote the
// caller already handles.
func (c *CircuitBreakerProvider) Ticker(ctx context.Context, instrument string) Quote {
	res, err := c.breaker.Execute(func() (interface{}, error) {
		q := c.provider.Ticker(ctx, instrument)
		if !q.HasMark() {
			return q, errNoMark
		}
		return q, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			c.logger.WithField("instrument", instrument).Warn("quote fetch refused by open circuit breaker")
		}
		return Quote{Instrument: instrument}
	}
	q, ok := res.(Quote)
	if !ok {
		return Quote{Instrument: instrument}
	}
	return q
}
