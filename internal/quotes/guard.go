package quotes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"MarketHarvest/internal/model"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrSourceUnavailable is returned while a source's breaker is open.
var ErrSourceUnavailable = errors.New("source temporarily unavailable")

// BreakerSettings configures the per-source circuit breaker.
type BreakerSettings struct {
	ConsecutiveFailures uint32        // trips the breaker; 0 disables it
	OpenTimeout         time.Duration // time spent open before a half-open trial
}

// RateSettings configures the per-source request limiter.
type RateSettings struct {
	RPS   float64 // 0 disables limiting
	Burst int
}

// guard wraps one source with a circuit breaker and a request limiter.
type guard struct {
	breaker *gobreaker.CircuitBreaker[[]model.PriceRecord]
	limiter *rate.Limiter
}

func newGuard(name string, bs BreakerSettings, rs RateSettings, logger *zap.Logger) *guard {
	g := &guard{}
	if bs.ConsecutiveFailures > 0 {
		threshold := bs.ConsecutiveFailures
		g.breaker = gobreaker.NewCircuitBreaker[[]model.PriceRecord](gobreaker.Settings{
			Name:        name,
			MaxRequests: 1,
			Timeout:     bs.OpenTimeout,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= threshold
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("source breaker state changed",
					zap.String("source", name), zap.Stringer("from", from), zap.Stringer("to", to))
			},
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
			},
		})
	}
	if rs.RPS > 0 {
		burst := rs.Burst
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(rs.RPS), burst)
	}
	return g
}

func (g *guard) do(ctx context.Context, fn func() ([]model.PriceRecord, error)) ([]model.PriceRecord, error) {
	if g.breaker != nil && g.breaker.State() == gobreaker.StateOpen {
		return nil, ErrSourceUnavailable
	}
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	if g.breaker == nil {
		return fn()
	}
	recs, err := g.breaker.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	return recs, err
}
