package fathom

import "context"

// Provider abstracts the chat LLM backend.
type Provider interface {
	// Chat sends the messages and returns the complete response with its
	// token usage. Implementations must be safe for concurrent calls.
	Chat(ctx context.Context, messages []ChatMessage) (ChatResponse, error)
	// Name returns the provider name (e.g. "openai", "deepseek").
	Name() string
}

// EmbeddingProvider abstracts text embedding.
type EmbeddingProvider interface {
	// EmbedQuery returns the embedding vector for a single query string.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	// EmbedDocuments returns embedding vectors for the given texts, in order.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	// Dimensions returns the embedding vector size. Stable for the
	// provider's lifetime.
	Dimensions() int
	// Name returns the provider name.
	Name() string
}
