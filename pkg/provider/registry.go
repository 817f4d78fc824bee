package provider

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Settings carries everything a provider factory needs: the integration's
// free-form configuration map and its decrypted credentials. Credentials
// are already decrypted by the caller; the registry never sees the vault.
type Settings struct {
	Config      map[string]any
	Credentials map[string]string
	Logger      *slog.Logger
}

// Factory constructs a provider for one integration.
type Factory func(settings Settings) (Provider, error)

// Registry maps integration types to provider constructors. Register the
// supported types once at process start.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory for an integration type. Registering the same
// type twice panics: it is a wiring bug, not a runtime condition.
func (r *Registry) Register(integrationType string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[integrationType]; exists {
		panic(fmt.Sprintf("provider type %q registered twice", integrationType))
	}
	r.factories[integrationType] = factory
}

// New instantiates a provider for the given integration type. An
// unsupported type is a configuration error, fatal to the sync.
func (r *Registry) New(integrationType string, settings Settings) (Provider, error) {
	r.mu.RLock()
	factory, ok := r.factories[integrationType]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported integration type %q (supported: %v)", integrationType, r.Types())
	}
	return factory(settings)
}

// Types returns the registered integration types, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
