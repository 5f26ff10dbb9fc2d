package ocr

import (
	"os"
	"strings"
	"sync"
)

// EnvProviderOrder is the environment variable holding the comma-separated
// provider try-order. Unknown and empty entries are ignored.
const EnvProviderOrder = "OCR_PROVIDERS"

// DefaultOrder is the try-order used when OCR_PROVIDERS is unset.
var DefaultOrder = []string{"gemini", "openai", "openrouter"}

// Registry is a name-keyed table of providers. It is passed explicitly to
// the orchestrator rather than living as package state, so tests and
// multi-tenant setups can run independent configurations in one process.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register inserts a provider, overwriting any previous registration with
// the same name. Re-registering the same set of providers is therefore a
// no-op, which keeps duplicate startup wiring harmless.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Get looks up a provider by name.
func (r *Registry) Get(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

// Names returns the registered provider names in unspecified order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}

// All returns all registered providers in unspecified order.
func (r *Registry) All() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		all = append(all, p)
	}
	return all
}

// Reset removes all registrations. It exists for test isolation only.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers = make(map[string]Provider)
}

// TryOrder resolves the configured provider try-order from the environment.
// The variable is re-read on every call so a live configuration change takes
// effect without a restart. Tokens are trimmed and empty ones dropped; if
// nothing remains, the default order is returned.
func TryOrder() []string {
	raw := os.Getenv(EnvProviderOrder)
	if raw == "" {
		return DefaultOrder
	}
	var order []string
	for _, token := range strings.Split(raw, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		order = append(order, token)
	}
	if len(order) == 0 {
		return DefaultOrder
	}
	return order
}
