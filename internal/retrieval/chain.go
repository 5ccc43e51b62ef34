package retrieval

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Observer receives one callback per strategy attempt.
type Observer interface {
	ObserveAttempt(strategy, outcome string, duration time.Duration)
}

// Attempt outcomes reported to the Observer.
const (
	OutcomeSuccess = "success"
	OutcomeEmpty   = "empty"
	OutcomeError   = "error"
)

// Chain tries strategies in order and returns the first non-empty text.
type Chain struct {
	strategies []Strategy
	observer   Observer
	logger     *zap.Logger
}

// NewChain builds a chain over strategies in priority order.
func NewChain(strategies []Strategy, observer Observer, logger *zap.Logger) *Chain {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chain{
		strategies: append([]Strategy(nil), strategies...),
		observer:   observer,
		logger:     logger,
	}
}

// Strategies returns the configured strategy names in order.
func (c *Chain) Strategies() []string {
	names := make([]string, 0, len(c.strategies))
	for _, s := range c.strategies {
		names = append(names, s.Name())
	}
	return names
}

// Load returns the text of the first strategy that succeeds with non-empty text.
// Later strategies are never invoked once one succeeds.
func (c *Chain) Load(ctx context.Context, url string) (Outcome, error) {
	exhausted := &ChainExhaustedError{URL: url}
	for _, strategy := range c.strategies {
		if err := ctx.Err(); err != nil {
			exhausted.Attempts = append(exhausted.Attempts, NewError(strategy.Name(), url, err))
			break
		}
		name := strategy.Name()
		c.logger.Info("loading url", zap.String("strategy", name), zap.String("url", url))

		start := time.Now()
		text, err := strategy.Attempt(ctx, url)
		elapsed := time.Since(start)

		switch {
		case err != nil:
			c.observe(name, OutcomeError, elapsed)
			c.logger.Info("strategy failed",
				zap.String("strategy", name),
				zap.String("url", url),
				zap.Duration("elapsed", elapsed),
				zap.Error(err),
			)
			exhausted.Attempts = append(exhausted.Attempts, asStrategyError(name, url, err))
		case len(text) == 0:
			c.observe(name, OutcomeEmpty, elapsed)
			c.logger.Info("strategy returned empty text", zap.String("strategy", name), zap.String("url", url))
			exhausted.Attempts = append(exhausted.Attempts, NewError(name, url, ErrEmptyText))
		default:
			c.observe(name, OutcomeSuccess, elapsed)
			c.logger.Info("strategy succeeded",
				zap.String("strategy", name),
				zap.String("url", url),
				zap.Int("text_length", len(text)),
				zap.Duration("elapsed", elapsed),
			)
			return Outcome{Text: text, Strategy: name}, nil
		}
	}
	return Outcome{}, exhausted
}

func (c *Chain) observe(strategy, outcome string, elapsed time.Duration) {
	if c.observer != nil {
		c.observer.ObserveAttempt(strategy, outcome, elapsed)
	}
}

func asStrategyError(name, url string, err error) error {
	var serr *Error
	if errors.As(err, &serr) {
		return serr
	}
	return NewError(name, url, err)
}
