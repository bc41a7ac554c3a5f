// Package config provides configuration loading and structs for the kioku engine.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kaiwa-app/kioku/internal/embedding"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Watch     []WatchFolder   `yaml:"watch"`
}

// ServerConfig holds HTTP server settings. The server binds to loopback by
// default: this is a local engine for a desktop client, not a network service.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds paths for the metadata database and the keyword index.
type StorageConfig struct {
	DatabasePath   string `yaml:"database_path"`
	BleveIndexPath string `yaml:"bleve_index_path"`
}

// EmbeddingConfig holds the provider catalog and shared cache size.
type EmbeddingConfig struct {
	CacheSize int                        `yaml:"cache_size"`
	Providers []embedding.ProviderConfig `yaml:"providers"`
}

// RetrievalConfig holds retrieval defaults applied when a request leaves
// them unset.
type RetrievalConfig struct {
	DefaultTopK         int     `yaml:"default_top_k"`
	DefaultMode         string  `yaml:"default_mode"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
}

// WatchFolder maps a directory to a knowledge base: files appearing there are
// imported automatically, removed files are deleted from the knowledge base.
type WatchFolder struct {
	Directory  string   `yaml:"directory"`
	KBID       string   `yaml:"kb_id"`
	Extensions []string `yaml:"extensions"`
}

// Load reads and parses the config file at path, expands paths, and applies
// defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	ApplyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.BleveIndexPath = expandPath(cfg.Storage.BleveIndexPath, configDir)
	for i := range cfg.Embedding.Providers {
		if p := cfg.Embedding.Providers[i].ModelPath; p != "" {
			cfg.Embedding.Providers[i].ModelPath = expandPath(p, configDir)
		}
	}
	for i := range cfg.Watch {
		cfg.Watch[i].Directory = expandPath(cfg.Watch[i].Directory, configDir)
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	seen := make(map[string]bool, len(cfg.Embedding.Providers))
	for _, p := range cfg.Embedding.Providers {
		if p.ID == "" {
			return fmt.Errorf("embedding provider missing id")
		}
		if seen[p.ID] {
			return fmt.Errorf("duplicate embedding provider id %q", p.ID)
		}
		seen[p.ID] = true
		if p.Dimensions <= 0 {
			return fmt.Errorf("embedding provider %q: dimensions must be positive", p.ID)
		}
	}
	for _, w := range cfg.Watch {
		if w.Directory == "" || w.KBID == "" {
			return fmt.Errorf("watch folder needs both directory and kb_id")
		}
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are
// relative to configDir; other relative paths are relative to the home
// directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
