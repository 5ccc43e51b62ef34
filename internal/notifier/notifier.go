// Package notifier defines where rendered change messages are delivered.
package notifier

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// Notifier delivers one rendered message.
type Notifier interface {
	Post(ctx context.Context, text string) error
}

// Multi posts to every notifier and joins their errors.
type Multi []Notifier

// Post implements Notifier.
func (m Multi) Post(ctx context.Context, text string) error {
	var errs []error
	for _, n := range m {
		if err := n.Post(ctx, text); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Log writes messages to a logger. It is used when no chat or bus target is configured.
type Log struct {
	Logger *zap.Logger
}

// Post implements Notifier.
func (l Log) Post(_ context.Context, text string) error {
	logger := l.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("notification", zap.String("text", text))
	return nil
}
