package retrieval

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
)

// Factory constructs a configured strategy.
type Factory func() (Strategy, error)

// Registry maps strategy names used in configuration to their constructors.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds or replaces the factory for name.
func (r *Registry) Register(name string, factory Factory) {
	r.factories[strings.ToLower(strings.TrimSpace(name))] = factory
}

// Names returns every registered strategy name, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build constructs strategies in the given order. Only the named strategies
// are constructed, so expensive ones (browsers) start only when configured.
func (r *Registry) Build(names []string) ([]Strategy, error) {
	if len(names) == 0 {
		return nil, errors.New("at least one retrieval strategy is required")
	}
	seen := make(map[string]struct{}, len(names))
	out := make([]Strategy, 0, len(names))
	for _, raw := range names {
		name := strings.ToLower(strings.TrimSpace(raw))
		if _, dup := seen[name]; dup {
			_ = CloseAll(out)
			return nil, fmt.Errorf("retrieval strategy %q listed twice", name)
		}
		seen[name] = struct{}{}
		factory, ok := r.factories[name]
		if !ok {
			_ = CloseAll(out)
			return nil, fmt.Errorf("unknown retrieval strategy %q (known: %s)", name, strings.Join(r.Names(), ", "))
		}
		strategy, err := factory()
		if err != nil {
			_ = CloseAll(out)
			return nil, fmt.Errorf("init strategy %s: %w", name, err)
		}
		out = append(out, strategy)
	}
	return out, nil
}

// CloseAll releases strategies that hold resources such as browser processes.
func CloseAll(strategies []Strategy) error {
	var errs []error
	for _, s := range strategies {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", s.Name(), err))
			}
		}
	}
	return errors.Join(errs...)
}
