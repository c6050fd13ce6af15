package provider

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"clarabot/internal/config"
	"clarabot/internal/domain"
)

// Constructor creates a provider from a config entry.
type Constructor func(ctx context.Context, pc config.ProviderConfig, logger *slog.Logger) (domain.Provider, error)

// Factory creates and caches generative backends from config. Provider
// clients are long-lived and shared by every conversation.
type Factory struct {
	cfg          *config.Config
	logger       *slog.Logger
	constructors map[string]Constructor
	cache        map[string]domain.Provider
	mu           sync.RWMutex
}

// NewFactory creates a provider factory with the built-in constructors
// registered.
func NewFactory(cfg *config.Config, logger *slog.Logger) *Factory {
	f := &Factory{
		cfg:          cfg,
		logger:       logger,
		constructors: make(map[string]Constructor),
		cache:        make(map[string]domain.Provider),
	}
	f.registerDefaults()
	return f
}

// RegisterConstructor adds (or replaces) a provider constructor by
// name, so test doubles can be injected.
func (f *Factory) RegisterConstructor(name string, ctor Constructor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.constructors[name] = ctor
}

func (f *Factory) registerDefaults() {
	f.constructors["gemini"] = func(ctx context.Context, pc config.ProviderConfig, logger *slog.Logger) (domain.Provider, error) {
		return NewGemini(ctx, GeminiConfig{APIKey: pc.APIKey, Model: pc.Model, Logger: logger})
	}

	f.constructors["openai"] = func(_ context.Context, pc config.ProviderConfig, logger *slog.Logger) (domain.Provider, error) {
		return NewOpenAI(OpenAIConfig{APIKey: pc.APIKey, APIBase: pc.APIBase, Model: pc.Model, Logger: logger}), nil
	}

	f.constructors["ollama"] = func(_ context.Context, pc config.ProviderConfig, logger *slog.Logger) (domain.Provider, error) {
		return NewOllama(OllamaConfig{APIBase: pc.APIBase, Model: pc.Model, Logger: logger}), nil
	}
}

// Get returns the provider with the given name, or the configured
// default if name is empty. Created providers are cached so the same
// instance is reused across calls. Double-check locking avoids TOCTOU
// races.
func (f *Factory) Get(ctx context.Context, name string) (domain.Provider, error) {
	if name == "" {
		name = f.cfg.General.Provider
	}

	f.mu.RLock()
	if p, ok := f.cache[name]; ok {
		f.mu.RUnlock()
		return p, nil
	}
	f.mu.RUnlock()

	f.mu.Lock()
	defer f.mu.Unlock()

	if p, ok := f.cache[name]; ok {
		return p, nil
	}

	ctor, ok := f.constructors[name]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", name)
	}

	pc, ok := f.cfg.Providers[name]
	if !ok {
		return nil, fmt.Errorf("provider %q not configured", name)
	}

	p, err := ctor(ctx, pc, f.logger)
	if err != nil {
		return nil, fmt.Errorf("provider %q: %w", name, err)
	}

	f.cache[name] = p
	f.logger.Info("provider initialized", "name", name)
	return p, nil
}
