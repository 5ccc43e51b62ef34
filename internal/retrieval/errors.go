package retrieval

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyText marks an attempt that completed but produced no text.
var ErrEmptyText = errors.New("empty text")

// Error is a single strategy failure.
type Error struct {
	Strategy string
	URL      string
	Err      error
}

// NewError wraps err as a failure of strategy for url.
func NewError(strategy, url string, err error) *Error {
	return &Error{Strategy: strategy, URL: url, Err: err}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: load %s: %v", e.Strategy, e.URL, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ChainExhaustedError is returned when no strategy produced text for URL.
type ChainExhaustedError struct {
	URL      string
	Attempts []error
}

func (e *ChainExhaustedError) Error() string {
	if len(e.Attempts) == 0 {
		return fmt.Sprintf("failed to load URL %s: no strategies configured", e.URL)
	}
	msgs := make([]string, 0, len(e.Attempts))
	for _, err := range e.Attempts {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("failed to load URL %s: %s", e.URL, strings.Join(msgs, "; "))
}

// Unwrap exposes every per-strategy error to errors.Is and errors.As.
func (e *ChainExhaustedError) Unwrap() []error {
	return e.Attempts
}
