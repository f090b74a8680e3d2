package generator

import (
	"context"
	"errors"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/pario-ai/supportdesk/pkg/config"
	"github.com/pario-ai/supportdesk/pkg/models"
)

// ErrUnavailable wraps calls rejected while the breaker is open.
var ErrUnavailable = errors.New("generator unavailable")

// Breaker stops calling a failing generator until it has had time to recover.
type Breaker struct {
	next Generator
	cb   *gobreaker.CircuitBreaker
}

// NewBreaker wraps next. The breaker opens after cfg.MaxFailures consecutive
// failures and half-opens after cfg.OpenTimeout.
func NewBreaker(next Generator, cfg config.BreakerConfig, logger *zap.Logger) *Breaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}
	name := "generator"
	if n, ok := next.(Named); ok {
		name = n.Name()
	}
	st := gobreaker.Settings{
		Name:    name,
		Timeout: cfg.OpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("generator breaker state change",
				zap.String("name", name), zap.Stringer("from", from), zap.Stringer("to", to))
		},
	}
	return &Breaker{next: next, cb: gobreaker.NewCircuitBreaker(st)}
}

// Name implements Named.
func (b *Breaker) Name() string { return b.cb.Name() }

// State reports the breaker state for health output.
func (b *Breaker) State() string { return b.cb.State().String() }

// Generate implements Generator.
func (b *Breaker) Generate(ctx context.Context, query string, docs []models.Document) (string, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.Generate(ctx, query, docs)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", errors.Join(ErrUnavailable, err)
	}
	if err != nil {
		return "", err
	}
	return out.(string), nil
}
