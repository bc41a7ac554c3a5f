package config

import "github.com/kaiwa-app/kioku/internal/models"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8321
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = ".kioku/data/kioku.db"
	}
	if cfg.Storage.BleveIndexPath == "" {
		cfg.Storage.BleveIndexPath = ".kioku/data/chunks.bleve"
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Retrieval.DefaultTopK == 0 {
		cfg.Retrieval.DefaultTopK = models.DefaultTopK
	}
	if cfg.Retrieval.DefaultMode == "" {
		cfg.Retrieval.DefaultMode = string(models.ModeHybrid)
	}
	for i := range cfg.Watch {
		if cfg.Watch[i].Extensions == nil {
			cfg.Watch[i].Extensions = []string{".txt", ".md", ".pdf", ".docx", ".xlsx", ".csv", ".html"}
		}
	}
}
