// Package resolve builds fathom collaborators from provider-agnostic
// configuration: one factory per feature (chat LLM, embeddings, vector
// store, web crawler). Known hosted providers get default base URLs and
// env-var API key fallbacks, so a minimal config is just a provider name.
package resolve

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	fathom "github.com/fathomhq/fathom"
	"github.com/fathomhq/fathom/ingest"
	"github.com/fathomhq/fathom/provider/gemini"
	"github.com/fathomhq/fathom/provider/openaicompat"
	"github.com/fathomhq/fathom/store/chromem"
	"github.com/fathomhq/fathom/store/postgres"
	"github.com/fathomhq/fathom/store/qdrant"
	"github.com/fathomhq/fathom/store/sqlite"
)

// Config holds provider-agnostic configuration for creating a chat Provider.
type Config struct {
	Provider string // "gemini", "openai", "groq", "deepseek", "together", "mistral", "ollama"
	APIKey   string
	Model    string
	BaseURL  string // required for unknown openai-compat hosts; auto-filled for known providers

	// Common cross-provider options (nil = use provider default).
	Temperature *float64
	TopP        *float64
}

// EmbeddingConfig holds provider-agnostic configuration for creating an
// EmbeddingProvider.
type EmbeddingConfig struct {
	Provider   string
	APIKey     string
	Model      string
	BaseURL    string
	Dimensions int
}

// VectorDBConfig holds provider-agnostic configuration for creating a
// VectorDB.
type VectorDBConfig struct {
	Provider string // "chromem", "sqlite", "postgres", "qdrant"

	Path string // chromem/sqlite database location
	DSN  string // postgres connection string

	// qdrant connection
	Host   string
	Port   int
	APIKey string
	UseTLS bool

	Collection  string
	Description string
}

// Provider creates a fathom.Provider from a provider-agnostic Config.
// A missing APIKey falls back to the provider's conventional env var
// (OPENAI_API_KEY, DEEPSEEK_API_KEY, ...).
func Provider(cfg Config) (fathom.Provider, error) {
	if cfg.APIKey == "" {
		cfg.APIKey = apiKeyFromEnv(cfg.Provider)
	}
	switch cfg.Provider {
	case "gemini":
		return geminiProvider(cfg), nil
	case "openai", "groq", "deepseek", "together", "mistral", "ollama":
		return openaiCompatProvider(cfg), nil
	default:
		return nil, fmt.Errorf("resolve: unknown llm provider %q (valid: gemini, openai, groq, deepseek, together, mistral, ollama)", cfg.Provider)
	}
}

// EmbeddingProvider creates a fathom.EmbeddingProvider from a
// provider-agnostic EmbeddingConfig.
func EmbeddingProvider(cfg EmbeddingConfig) (fathom.EmbeddingProvider, error) {
	if cfg.APIKey == "" {
		cfg.APIKey = apiKeyFromEnv(cfg.Provider)
	}
	switch cfg.Provider {
	case "gemini":
		var opts []gemini.EmbeddingOption
		if cfg.Dimensions > 0 {
			opts = append(opts, gemini.WithEmbeddingDimensions(cfg.Dimensions))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, gemini.WithEmbeddingBaseURL(cfg.BaseURL))
		}
		return gemini.NewEmbedding(cfg.APIKey, cfg.Model, opts...), nil
	case "openai", "groq", "deepseek", "together", "mistral", "ollama":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = defaultBaseURL(cfg.Provider)
		}
		opts := []openaicompat.EmbeddingOption{openaicompat.WithEmbeddingName(cfg.Provider)}
		if cfg.Dimensions > 0 {
			opts = append(opts, openaicompat.WithDimensions(cfg.Dimensions))
		}
		return openaicompat.NewEmbedding(cfg.APIKey, cfg.Model, baseURL, opts...), nil
	default:
		return nil, fmt.Errorf("resolve: unknown embedding provider %q (valid: gemini, openai, groq, deepseek, together, mistral, ollama)", cfg.Provider)
	}
}

// VectorDB creates a fathom.VectorDB from a provider-agnostic
// VectorDBConfig. The postgres backend connects and bootstraps its schema,
// so it needs a context.
func VectorDB(ctx context.Context, cfg VectorDBConfig) (fathom.VectorDB, error) {
	switch cfg.Provider {
	case "chromem":
		var opts []chromem.StoreOption
		if cfg.Collection != "" {
			opts = append(opts, chromem.WithDefaultCollection(cfg.Collection))
		}
		return chromem.New(cfg.Path, opts...)
	case "sqlite":
		path := cfg.Path
		if path == "" {
			path = "fathom.db"
		}
		var opts []sqlite.StoreOption
		if cfg.Collection != "" {
			opts = append(opts, sqlite.WithDefaultCollection(cfg.Collection))
		}
		return sqlite.New(path, opts...)
	case "postgres":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("resolve: postgres vector db requires a dsn")
		}
		pool, err := pgxpool.New(ctx, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("resolve: connect postgres: %w", err)
		}
		var opts []postgres.Option
		if cfg.Collection != "" {
			opts = append(opts, postgres.WithDefaultCollection(cfg.Collection))
		}
		store := postgres.New(pool, opts...)
		if err := store.Init(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("resolve: init postgres schema: %w", err)
		}
		return store, nil
	case "qdrant":
		var opts []qdrant.StoreOption
		if cfg.Collection != "" {
			opts = append(opts, qdrant.WithDefaultCollection(cfg.Collection))
		}
		return qdrant.New(qdrant.Config{
			Host:   cfg.Host,
			Port:   cfg.Port,
			APIKey: cfg.APIKey,
			UseTLS: cfg.UseTLS,
		}, opts...)
	default:
		return nil, fmt.Errorf("resolve: unknown vector db provider %q (valid: chromem, sqlite, postgres, qdrant)", cfg.Provider)
	}
}

// Crawler creates an ingest.Crawler by provider name.
func Crawler(name string) (ingest.Crawler, error) {
	switch name {
	case "", "readability":
		return ingest.NewReadabilityCrawler(), nil
	default:
		return nil, fmt.Errorf("resolve: unknown web crawler %q (valid: readability)", name)
	}
}

func geminiProvider(cfg Config) fathom.Provider {
	var opts []gemini.Option
	if cfg.Temperature != nil {
		opts = append(opts, gemini.WithTemperature(*cfg.Temperature))
	}
	if cfg.TopP != nil {
		opts = append(opts, gemini.WithTopP(*cfg.TopP))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, gemini.WithBaseURL(cfg.BaseURL))
	}
	return gemini.New(cfg.APIKey, cfg.Model, opts...)
}

func openaiCompatProvider(cfg Config) fathom.Provider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL(cfg.Provider)
	}
	var provOpts []openaicompat.ProviderOption
	provOpts = append(provOpts, openaicompat.WithName(cfg.Provider))

	var reqOpts []openaicompat.Option
	if cfg.Temperature != nil {
		reqOpts = append(reqOpts, openaicompat.WithTemperature(*cfg.Temperature))
	}
	if cfg.TopP != nil {
		reqOpts = append(reqOpts, openaicompat.WithTopP(*cfg.TopP))
	}
	if len(reqOpts) > 0 {
		provOpts = append(provOpts, openaicompat.WithOptions(reqOpts...))
	}
	return openaicompat.NewProvider(cfg.APIKey, cfg.Model, baseURL, provOpts...)
}

func defaultBaseURL(provider string) string {
	switch provider {
	case "openai":
		return "https://api.openai.com/v1"
	case "groq":
		return "https://api.groq.com/openai/v1"
	case "deepseek":
		return "https://api.deepseek.com/v1"
	case "together":
		return "https://api.together.xyz/v1"
	case "mistral":
		return "https://api.mistral.ai/v1"
	case "ollama":
		return "http://localhost:11434/v1"
	default:
		return ""
	}
}

func apiKeyFromEnv(provider string) string {
	switch provider {
	case "gemini":
		return os.Getenv("GEMINI_API_KEY")
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	case "groq":
		return os.Getenv("GROQ_API_KEY")
	case "deepseek":
		return os.Getenv("DEEPSEEK_API_KEY")
	case "together":
		return os.Getenv("TOGETHER_API_KEY")
	case "mistral":
		return os.Getenv("MISTRAL_API_KEY")
	default:
		return ""
	}
}
