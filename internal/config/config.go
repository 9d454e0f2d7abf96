// Package config loads fathom's declarative configuration: one provider
// selection per feature (llm, embedding, vector_db, file_loader,
// web_crawler) plus query tuning. Precedence: defaults -> TOML file ->
// FATHOM_* env vars.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	LLM        LLMConfig        `toml:"llm"`
	Embedding  EmbeddingConfig  `toml:"embedding"`
	VectorDB   VectorDBConfig   `toml:"vector_db"`
	FileLoader FileLoaderConfig `toml:"file_loader"`
	WebCrawler WebCrawlerConfig `toml:"web_crawler"`
	Query      QueryConfig      `toml:"query"`
	Server     ServerConfig     `toml:"server"`
	Observer   ObserverConfig   `toml:"observer"`
}

type LLMConfig struct {
	Provider string `toml:"provider"`
	Model    string `toml:"model"`
	APIKey   string `toml:"api_key"`
	BaseURL  string `toml:"base_url"`

	// RPM/TPM cap outbound requests and tokens per minute. Zero disables
	// the respective budget.
	RPM int `toml:"rpm"`
	TPM int `toml:"tpm"`
}

type EmbeddingConfig struct {
	Provider   string `toml:"provider"`
	Model      string `toml:"model"`
	APIKey     string `toml:"api_key"`
	BaseURL    string `toml:"base_url"`
	Dimensions int    `toml:"dimensions"`
}

type VectorDBConfig struct {
	Provider string `toml:"provider"` // "chromem", "sqlite", "postgres", "qdrant"

	// Path locates the database file for the embedded stores. Empty means
	// in-memory for chromem.
	Path string `toml:"path"`

	// DSN is the postgres connection string.
	DSN string `toml:"dsn"`

	// Host/Port/APIKey/UseTLS configure the qdrant connection.
	Host   string `toml:"host"`
	Port   int    `toml:"port"`
	APIKey string `toml:"api_key"`
	UseTLS bool   `toml:"use_tls"`

	// Collection is the default collection name.
	Collection  string `toml:"collection"`
	Description string `toml:"description"`
}

type FileLoaderConfig struct {
	// Provider selects the loading strategy. "auto" detects by file
	// extension.
	Provider string `toml:"provider"`
}

type WebCrawlerConfig struct {
	Provider string `toml:"provider"` // "readability"
}

type QueryConfig struct {
	MaxIter         int  `toml:"max_iter"`
	TopK            int  `toml:"top_k"`
	RouteCollection bool `toml:"route_collection"`
	EarlyStopping   bool `toml:"early_stopping"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

type ObserverConfig struct {
	Enabled bool `toml:"enabled"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		LLM:        LLMConfig{Provider: "openai", Model: "gpt-4o-mini"},
		Embedding:  EmbeddingConfig{Provider: "openai", Model: "text-embedding-3-small", Dimensions: 1536},
		VectorDB:   VectorDBConfig{Provider: "chromem", Path: "fathom.db", Collection: "fathom"},
		FileLoader: FileLoaderConfig{Provider: "auto"},
		WebCrawler: WebCrawlerConfig{Provider: "readability"},
		Query:      QueryConfig{MaxIter: 3, TopK: 5, RouteCollection: true},
		Server:     ServerConfig{Addr: ":8000"},
	}
}

// Load reads config: defaults -> TOML file -> env vars (env wins).
func Load(path string) Config {
	cfg := Default()

	if path == "" {
		path = "fathom.toml"
	}

	if data, err := os.ReadFile(path); err == nil {
		_ = toml.Unmarshal(data, &cfg)
	}

	// Env overrides
	if v := os.Getenv("FATHOM_LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = v
	}
	if v := os.Getenv("FATHOM_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("FATHOM_LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("FATHOM_EMBEDDING_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
	}
	if v := os.Getenv("FATHOM_VECTOR_DB_DSN"); v != "" {
		cfg.VectorDB.DSN = v
	}
	if v := os.Getenv("FATHOM_VECTOR_DB_API_KEY"); v != "" {
		cfg.VectorDB.APIKey = v
	}
	if v := os.Getenv("FATHOM_SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("FATHOM_QUERY_MAX_ITER"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 1 {
			cfg.Query.MaxIter = n
		}
	}
	if os.Getenv("FATHOM_OBSERVER_ENABLED") == "true" || os.Getenv("FATHOM_OBSERVER_ENABLED") == "1" {
		cfg.Observer.Enabled = true
	}

	// Fallbacks: the embedding feature usually shares the chat key when it
	// talks to the same provider.
	if cfg.Embedding.APIKey == "" && cfg.Embedding.Provider == cfg.LLM.Provider {
		cfg.Embedding.APIKey = cfg.LLM.APIKey
	}

	return cfg
}

// Feature names accepted by SetProvider and the /set-provider-config
// endpoint.
const (
	FeatureLLM        = "llm"
	FeatureEmbedding  = "embedding"
	FeatureVectorDB   = "vector_db"
	FeatureFileLoader = "file_loader"
	FeatureWebCrawler = "web_crawler"
)

// SetProvider swaps one feature's provider and applies its free-form
// options. Option keys mirror the TOML field names; unknown keys are
// ignored so callers can pass provider-specific extras without breaking.
func (c *Config) SetProvider(feature, provider string, options map[string]any) error {
	switch feature {
	case FeatureLLM:
		c.LLM.Provider = provider
		c.LLM.Model = optString(options, "model", c.LLM.Model)
		c.LLM.APIKey = optString(options, "api_key", c.LLM.APIKey)
		c.LLM.BaseURL = optString(options, "base_url", c.LLM.BaseURL)
		c.LLM.RPM = optInt(options, "rpm", c.LLM.RPM)
		c.LLM.TPM = optInt(options, "tpm", c.LLM.TPM)
	case FeatureEmbedding:
		c.Embedding.Provider = provider
		c.Embedding.Model = optString(options, "model", c.Embedding.Model)
		c.Embedding.APIKey = optString(options, "api_key", c.Embedding.APIKey)
		c.Embedding.BaseURL = optString(options, "base_url", c.Embedding.BaseURL)
		c.Embedding.Dimensions = optInt(options, "dimensions", c.Embedding.Dimensions)
	case FeatureVectorDB:
		c.VectorDB.Provider = provider
		c.VectorDB.Path = optString(options, "path", c.VectorDB.Path)
		c.VectorDB.DSN = optString(options, "dsn", c.VectorDB.DSN)
		c.VectorDB.Host = optString(options, "host", c.VectorDB.Host)
		c.VectorDB.Port = optInt(options, "port", c.VectorDB.Port)
		c.VectorDB.APIKey = optString(options, "api_key", c.VectorDB.APIKey)
		c.VectorDB.UseTLS = optBool(options, "use_tls", c.VectorDB.UseTLS)
		c.VectorDB.Collection = optString(options, "collection", c.VectorDB.Collection)
		c.VectorDB.Description = optString(options, "description", c.VectorDB.Description)
	case FeatureFileLoader:
		c.FileLoader.Provider = provider
	case FeatureWebCrawler:
		c.WebCrawler.Provider = provider
	default:
		return fmt.Errorf("unknown feature %q (valid: %s)", feature,
			strings.Join([]string{FeatureLLM, FeatureEmbedding, FeatureVectorDB, FeatureFileLoader, FeatureWebCrawler}, ", "))
	}
	return nil
}

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	if c.LLM.Provider == "" {
		return fmt.Errorf("llm.provider is required")
	}
	if c.Embedding.Provider == "" {
		return fmt.Errorf("embedding.provider is required")
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding.dimensions must be positive, got %d", c.Embedding.Dimensions)
	}
	if c.VectorDB.Provider == "" {
		return fmt.Errorf("vector_db.provider is required")
	}
	if c.Query.MaxIter < 1 {
		return fmt.Errorf("query.max_iter must be >= 1, got %d", c.Query.MaxIter)
	}
	return nil
}

func optString(m map[string]any, key, fallback string) string {
	if v, ok := m[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func optInt(m map[string]any, key string, fallback int) int {
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64: // JSON numbers decode as float64
		return int(v)
	}
	return fallback
}

func optBool(m map[string]any, key string, fallback bool) bool {
	if v, ok := m[key].(bool); ok {
		return v
	}
	return fallback
}
