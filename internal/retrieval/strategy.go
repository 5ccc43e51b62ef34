// Package retrieval implements the ordered fallback chain used to turn a URL
// into page text.
package retrieval

import (
	"context"
)

// Strategy is one method of fetching a page's text.
//
// Attempt returns normalized text or an error. Implementations must enforce
// their own timeout. The chain treats empty text as a failed attempt
// (ErrEmptyText), so implementations may return "" with a nil error.
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, url string) (string, error)
}

// Outcome is the result of a successful chain load.
type Outcome struct {
	Text     string
	Strategy string
}
