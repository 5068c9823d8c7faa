package service

import (
	"fmt"
	"sync"

	"github.com/quernlabs/quern/internal/config"
	"github.com/quernlabs/quern/internal/logger"
)

// EmbeddingRegistry manages the embedding providers available for builds,
// keyed by llm_type. A build request selects a provider by name; an empty
// name resolves to the default.
type EmbeddingRegistry struct {
	configs     map[string]*config.EmbeddingConfig
	providers   map[string]EmbeddingProvider
	names       []string
	defaultName string
	logger      *logger.Logger
	mu          sync.RWMutex
}

// EmbeddingRegistryConfig holds configuration for creating an EmbeddingRegistry.
type EmbeddingRegistryConfig struct {
	Embeddings  []config.EmbeddingConfig
	DefaultName string // Overrides per-config IsDefault when set
	Logger      *logger.Logger
}

// NewEmbeddingRegistry creates a new registry with all configured embeddings.
// Invalid configurations are logged and skipped rather than causing failure.
func NewEmbeddingRegistry(cfg *EmbeddingRegistryConfig) (*EmbeddingRegistry, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	r := &EmbeddingRegistry{
		configs:   make(map[string]*config.EmbeddingConfig),
		providers: make(map[string]EmbeddingProvider),
		logger:    cfg.Logger,
	}

	if len(cfg.Embeddings) == 0 {
		return nil, fmt.Errorf("at least one embedding configuration is required")
	}

	for i := range cfg.Embeddings {
		embCfg := cfg.Embeddings[i].Clone()

		// Resolve environment variables
		embCfg.ResolveEnvVars()

		if err := embCfg.Validate(); err != nil {
			logger.Warn("Skipping invalid embedding config: index=%d, error=%v", i, err)
			continue
		}

		// Check API key is available. Keyless operation is permitted only for
		// OpenAI-compatible providers pointed at a local endpoint.
		if embCfg.APIKey == "" {
			if embCfg.Provider != ProviderOpenAICompatible || embCfg.BaseURL == "" {
				logger.Warn("Skipping embedding config: no API key configured, name=%s, api_key_env=%s",
					embCfg.Name, embCfg.APIKeyEnv)
				continue
			}
		}

		provider, err := NewEmbeddingProvider(&EmbeddingProviderConfig{
			Provider:   embCfg.Provider,
			Model:      embCfg.Model,
			APIKey:     embCfg.APIKey,
			BaseURL:    embCfg.BaseURL,
			Dimensions: embCfg.Dimensions,
		})
		if err != nil {
			logger.Warn("Failed to create embedding provider, skipping: name=%s, error=%v",
				embCfg.Name, err)
			continue
		}

		r.configs[embCfg.Name] = embCfg
		r.providers[embCfg.Name] = provider
		r.names = append(r.names, embCfg.Name)

		if embCfg.IsDefault {
			if r.defaultName != "" {
				logger.Warn("Multiple default embeddings configured, using latest: existing=%s, new=%s",
					r.defaultName, embCfg.Name)
			}
			r.defaultName = embCfg.Name
		}

		logger.Info("Registered embedding: name=%s, provider=%s, model=%s, dim=%d, default=%v",
			embCfg.Name, embCfg.Provider, embCfg.Model, embCfg.Dimensions, embCfg.IsDefault)
	}

	if len(r.configs) == 0 {
		return nil, fmt.Errorf("no valid embedding configurations found")
	}

	// Explicit default from config wins over per-config flags
	if cfg.DefaultName != "" {
		if _, ok := r.configs[cfg.DefaultName]; ok {
			r.defaultName = cfg.DefaultName
		} else {
			logger.Warn("Configured default embedding is not registered: name=%s", cfg.DefaultName)
		}
	}

	// If no default was resolved, use the first registered one
	if r.defaultName == "" {
		r.defaultName = r.names[0]
		logger.Info("Using first embedding as default: name=%s", r.defaultName)
	}

	return r, nil
}

// Default returns the default embedding provider.
func (r *EmbeddingRegistry) Default() EmbeddingProvider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.providers[r.defaultName]
}

// DefaultName returns the name of the default embedding configuration.
func (r *EmbeddingRegistry) DefaultName() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultName
}

// GetProvider returns the embedding provider for the given llm_type.
// If name is empty, returns the default provider.
func (r *EmbeddingRegistry) GetProvider(name string) (EmbeddingProvider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if name == "" {
		name = r.defaultName
	}

	provider, ok := r.providers[name]
	return provider, ok
}

// GetConfig returns the embedding configuration for the given llm_type.
// If name is empty, returns the default configuration.
func (r *EmbeddingRegistry) GetConfig(name string) (*config.EmbeddingConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if name == "" {
		name = r.defaultName
	}

	cfg, ok := r.configs[name]
	return cfg, ok
}

// Names returns all registered llm_type names in registration order.
func (r *EmbeddingRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.names))
	copy(names, r.names)
	return names
}

// Count returns the number of registered embeddings.
func (r *EmbeddingRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.configs)
}

// Has checks if an embedding with the given llm_type is registered.
func (r *EmbeddingRegistry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.configs[name]
	return ok
}
