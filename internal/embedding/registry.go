package embedding

import (
	"fmt"
	"sync"
)

// ProviderConfig describes one configured embedding provider. The catalog is
// data-driven: providers come from the config file at startup, not from a
// hardcoded list.
type ProviderConfig struct {
	ID           string `yaml:"id" json:"id"`
	Family       string `yaml:"family" json:"family"` // openai | siliconflow | zhipu | local | mock
	BaseURL      string `yaml:"base_url" json:"base_url"`
	APIKey       string `yaml:"api_key" json:"-"`
	Model        string `yaml:"model" json:"model"`
	Dimensions   int    `yaml:"dimensions" json:"dimensions"`
	MaxBatchSize int    `yaml:"max_batch_size" json:"max_batch_size,omitempty"`
	// ModelPath and MaxTokens apply to the local (ONNX) family only.
	ModelPath string `yaml:"model_path" json:"model_path,omitempty"`
	MaxTokens int    `yaml:"max_tokens" json:"max_tokens,omitempty"`
}

// Registry resolves a knowledge base's embedding_config_ref to a live
// Embedder. Instances are built lazily and shared: all imports and queries
// against the same provider reuse one client (and its cache).
type Registry struct {
	providers map[string]ProviderConfig
	cacheSize int

	mu        sync.Mutex
	instances map[string]Embedder
}

// NewRegistry creates a registry over the configured providers.
func NewRegistry(providers []ProviderConfig, cacheSize int) *Registry {
	m := make(map[string]ProviderConfig, len(providers))
	for _, p := range providers {
		m[p.ID] = p
	}
	return &Registry{
		providers: m,
		cacheSize: cacheSize,
		instances: make(map[string]Embedder),
	}
}

// Lookup returns the provider config for ref.
func (r *Registry) Lookup(ref string) (ProviderConfig, bool) {
	cfg, ok := r.providers[ref]
	return cfg, ok
}

// EmbedderFor returns the embedder for the given config ref, building it on
// first use.
func (r *Registry) EmbedderFor(ref string) (Embedder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.instances[ref]; ok {
		return e, nil
	}
	cfg, ok := r.providers[ref]
	if !ok {
		return nil, fmt.Errorf("unknown embedding provider config %q", ref)
	}
	e, err := r.build(cfg)
	if err != nil {
		return nil, err
	}
	r.instances[ref] = e
	return e, nil
}

func (r *Registry) build(cfg ProviderConfig) (Embedder, error) {
	switch cfg.Family {
	case "openai", "siliconflow", "zhipu":
		return NewClient(cfg, r.cacheSize)
	case "local":
		return NewONNXEmbedder(cfg.ModelPath, cfg.Dimensions, cfg.MaxTokens, r.cacheSize)
	case "mock":
		return NewMockEmbedder(cfg.Dimensions), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider family %q", cfg.Family)
	}
}

// Close closes all built embedders.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	for ref, e := range r.instances {
		if err := e.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close embedder %q: %w", ref, err)
		}
		delete(r.instances, ref)
	}
	return firstErr
}
