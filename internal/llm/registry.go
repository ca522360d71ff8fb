package llm

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/af-corp/querysmith/internal/config"
	"github.com/af-corp/querysmith/internal/llm/adapters"
)

// Registry manages provider adapters by configured provider name.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]adapters.Adapter
}

func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[string]adapters.Adapter),
	}
}

func (r *Registry) Register(name string, adapter adapters.Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[name] = adapter
}

func (r *Registry) Get(name string) (adapters.Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[name]
	return a, ok
}

// Replace swaps in the adapters of other. Used on config reload so callers
// holding this registry see the new providers.
func (r *Registry) Replace(other *Registry) {
	other.mu.RLock()
	next := make(map[string]adapters.Adapter, len(other.adapters))
	for n, a := range other.adapters {
		next[n] = a
	}
	other.mu.RUnlock()

	r.mu.Lock()
	r.adapters = next
	r.mu.Unlock()
}

// Names lists registered providers in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters))
	for n := range r.adapters {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// BuildFromConfig builds provider adapters from the providers config. A
// provider that cannot be constructed is logged and left out; routes to it are
// skipped at call time.
func BuildFromConfig(ctx context.Context, provCfg *config.ProvidersConfig) *Registry {
	registry := NewRegistry()
	for name, cfg := range provCfg.Providers {
		if cfg.Disabled {
			continue
		}
		client := &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        cfg.MaxConcurrent,
				MaxIdleConnsPerHost: cfg.MaxConcurrent,
				IdleConnTimeout:     90 * time.Second,
				ForceAttemptHTTP2:   true,
			},
		}

		var adapter adapters.Adapter
		switch cfg.Type {
		case "anthropic":
			adapter = adapters.NewAnthropicAdapter(cfg, client)
		case "gemini":
			g, err := adapters.NewGeminiAdapter(ctx, cfg, client)
			if err != nil {
				slog.Warn("provider disabled", "provider", name, "error", err)
				continue
			}
			adapter = g
		default:
			// OpenAI-compatible is the lingua franca for self-hosted models.
			adapter = adapters.NewOpenAIAdapter(cfg, client)
		}
		registry.Register(name, adapter)
	}
	return registry
}
