// Package seen defines the persistent set of change keys already announced.
package seen

import "context"

// Store is a key-value set used to suppress repeat notifications.
type Store interface {
	Exists(ctx context.Context, key string) (bool, error)
	Set(ctx context.Context, key, value string) error
}
