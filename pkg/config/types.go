package config

import (
	"fmt"
	"strconv"
)

// Config represents the persistent engram configuration stored as
// config.toml in the .engram/ directory. The TOML layout uses sections for
// logical grouping.
type Config struct {
	Version     int               `toml:"version"`
	Storage     StorageConfig     `toml:"storage"`
	VectorStore VectorStoreConfig `toml:"vector_store"`
	Embedding   EmbeddingConfig   `toml:"embedding"`
	API         APIConfig         `toml:"api"`
	Client      ClientConfig      `toml:"client"`
	Search      SearchConfig      `toml:"search"`
	Curation    CurationConfig    `toml:"curation"`
	Hooks       HooksConfig       `toml:"hooks"`
	Events      EventsConfig      `toml:"events"`
	Watcher     WatcherConfig     `toml:"watcher"`
}

// StorageConfig holds record store settings.
type StorageConfig struct {
	Provider    string `toml:"provider,omitempty"`
	SQLitePath  string `toml:"sqlite_path,omitempty"`
	PostgresDSN string `toml:"postgres_dsn,omitempty"`
}

// VectorStoreConfig holds similarity index settings.
type VectorStoreConfig struct {
	Provider   string `toml:"provider,omitempty"`
	Path       string `toml:"path,omitempty"`
	Host       string `toml:"host,omitempty"`
	Port       int    `toml:"port,omitempty"`
	Collection string `toml:"collection,omitempty"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider   string `toml:"provider,omitempty"`
	Target     string `toml:"target,omitempty"`
	Model      string `toml:"model,omitempty"`
	Dimensions uint   `toml:"dimensions,omitempty"`
}

// APIConfig holds API server settings.
type APIConfig struct {
	Listen string `toml:"listen,omitempty"`
}

// ClientConfig holds settings for CLI commands that connect to a running
// engine (e.g. engram search, engram hook). Values are full URLs.
type ClientConfig struct {
	APITarget string `toml:"api_target,omitempty"`
}

// SearchConfig holds retrieval ranking settings.
type SearchConfig struct {
	MinSimilarity    float64 `toml:"min_similarity,omitempty"`
	SimilarityWeight float64 `toml:"similarity_weight,omitempty"`
	RecencyWeight    float64 `toml:"recency_weight,omitempty"`
	ComplexityWeight float64 `toml:"complexity_weight,omitempty"`
}

// CurationConfig holds curation engine settings.
type CurationConfig struct {
	DuplicateThreshold float64 `toml:"duplicate_threshold,omitempty"`
	ArchiveDays        int     `toml:"archive_days,omitempty"`
}

// HooksConfig holds hook protocol settings.
type HooksConfig struct {
	TimeoutSeconds int `toml:"timeout_seconds,omitempty"`
}

// EventsConfig holds event stream publisher settings.
type EventsConfig struct {
	Provider string   `toml:"provider,omitempty"`
	Brokers  []string `toml:"brokers,omitempty"`
	Topic    string   `toml:"topic,omitempty"`
}

// WatcherConfig holds file watcher settings.
type WatcherConfig struct {
	Enabled          bool    `toml:"enabled,omitempty"`
	Root             string  `toml:"root,omitempty"`
	RateLimitSeconds int     `toml:"rate_limit_seconds,omitempty"`
	MinSimilarity    float64 `toml:"min_similarity,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"storage.provider": {
		get: func(c *Config) string { return c.Storage.Provider },
		set: func(c *Config, v string) error { c.Storage.Provider = v; return nil },
	},
	"storage.sqlite_path": {
		get: func(c *Config) string { return c.Storage.SQLitePath },
		set: func(c *Config, v string) error { c.Storage.SQLitePath = v; return nil },
	},
	"storage.postgres_dsn": {
		get: func(c *Config) string { return c.Storage.PostgresDSN },
		set: func(c *Config, v string) error { c.Storage.PostgresDSN = v; return nil },
	},
	"vector_store.provider": {
		get: func(c *Config) string { return c.VectorStore.Provider },
		set: func(c *Config, v string) error { c.VectorStore.Provider = v; return nil },
	},
	"vector_store.path": {
		get: func(c *Config) string { return c.VectorStore.Path },
		set: func(c *Config, v string) error { c.VectorStore.Path = v; return nil },
	},
	"vector_store.host": {
		get: func(c *Config) string { return c.VectorStore.Host },
		set: func(c *Config, v string) error { c.VectorStore.Host = v; return nil },
	},
	"vector_store.port": {
		get: func(c *Config) string {
			if c.VectorStore.Port == 0 {
				return ""
			}
			return strconv.Itoa(c.VectorStore.Port)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid value for vector_store.port: %w", err)
			}
			c.VectorStore.Port = n
			return nil
		},
	},
	"vector_store.collection": {
		get: func(c *Config) string { return c.VectorStore.Collection },
		set: func(c *Config, v string) error { c.VectorStore.Collection = v; return nil },
	},
	"embedding.provider": {
		get: func(c *Config) string { return c.Embedding.Provider },
		set: func(c *Config, v string) error { c.Embedding.Provider = v; return nil },
	},
	"embedding.target": {
		get: func(c *Config) string { return c.Embedding.Target },
		set: func(c *Config, v string) error { c.Embedding.Target = v; return nil },
	},
	"embedding.model": {
		get: func(c *Config) string { return c.Embedding.Model },
		set: func(c *Config, v string) error { c.Embedding.Model = v; return nil },
	},
	"embedding.dimensions": {
		get: func(c *Config) string {
			if c.Embedding.Dimensions == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(c.Embedding.Dimensions), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for embedding.dimensions: %w", err)
			}
			c.Embedding.Dimensions = uint(n)
			return nil
		},
	},
	"api.listen": {
		get: func(c *Config) string { return c.API.Listen },
		set: func(c *Config, v string) error { c.API.Listen = v; return nil },
	},
	"client.api_target": {
		get: func(c *Config) string { return c.Client.APITarget },
		set: func(c *Config, v string) error { c.Client.APITarget = v; return nil },
	},
	"search.min_similarity": {
		get: func(c *Config) string { return formatFloat(c.Search.MinSimilarity) },
		set: func(c *Config, v string) error {
			return setFloat(&c.Search.MinSimilarity, "search.min_similarity", v)
		},
	},
	"search.similarity_weight": {
		get: func(c *Config) string { return formatFloat(c.Search.SimilarityWeight) },
		set: func(c *Config, v string) error {
			return setFloat(&c.Search.SimilarityWeight, "search.similarity_weight", v)
		},
	},
	"search.recency_weight": {
		get: func(c *Config) string { return formatFloat(c.Search.RecencyWeight) },
		set: func(c *Config, v string) error {
			return setFloat(&c.Search.RecencyWeight, "search.recency_weight", v)
		},
	},
	"search.complexity_weight": {
		get: func(c *Config) string { return formatFloat(c.Search.ComplexityWeight) },
		set: func(c *Config, v string) error {
			return setFloat(&c.Search.ComplexityWeight, "search.complexity_weight", v)
		},
	},
	"curation.duplicate_threshold": {
		get: func(c *Config) string { return formatFloat(c.Curation.DuplicateThreshold) },
		set: func(c *Config, v string) error {
			return setFloat(&c.Curation.DuplicateThreshold, "curation.duplicate_threshold", v)
		},
	},
	"curation.archive_days": {
		get: func(c *Config) string {
			if c.Curation.ArchiveDays == 0 {
				return ""
			}
			return strconv.Itoa(c.Curation.ArchiveDays)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid value for curation.archive_days: %w", err)
			}
			c.Curation.ArchiveDays = n
			return nil
		},
	},
	"hooks.timeout_seconds": {
		get: func(c *Config) string {
			if c.Hooks.TimeoutSeconds == 0 {
				return ""
			}
			return strconv.Itoa(c.Hooks.TimeoutSeconds)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid value for hooks.timeout_seconds: %w", err)
			}
			c.Hooks.TimeoutSeconds = n
			return nil
		},
	},
	"events.provider": {
		get: func(c *Config) string { return c.Events.Provider },
		set: func(c *Config, v string) error { c.Events.Provider = v; return nil },
	},
	"events.topic": {
		get: func(c *Config) string { return c.Events.Topic },
		set: func(c *Config, v string) error { c.Events.Topic = v; return nil },
	},
	"watcher.enabled": {
		get: func(c *Config) string { return strconv.FormatBool(c.Watcher.Enabled) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for watcher.enabled: %w", err)
			}
			c.Watcher.Enabled = b
			return nil
		},
	},
	"watcher.root": {
		get: func(c *Config) string { return c.Watcher.Root },
		set: func(c *Config, v string) error { c.Watcher.Root = v; return nil },
	},
}

func formatFloat(f float64) string {
	if f == 0 {
		return ""
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func setFloat(dst *float64, key, v string) error {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dst = f
	return nil
}
