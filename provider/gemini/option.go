package gemini

import "net/http"

// Option configures a Gemini chat provider.
type Option func(*Gemini)

// WithTemperature sets the sampling temperature (default 0.1).
func WithTemperature(t float64) Option {
	return func(g *Gemini) { g.temperature = t }
}

// WithTopP sets nucleus sampling top-p (default 0.9).
func WithTopP(p float64) Option {
	return func(g *Gemini) { g.topP = p }
}

// WithMaxOutputTokens caps the response length. Zero leaves the model
// default in place.
func WithMaxOutputTokens(n int) Option {
	return func(g *Gemini) { g.maxOutputTokens = n }
}

// WithBaseURL overrides the API endpoint, e.g. for a proxy or tests.
func WithBaseURL(url string) Option {
	return func(g *Gemini) { g.baseURL = url }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(g *Gemini) { g.httpClient = c }
}

// EmbeddingOption configures a Gemini embedding provider.
type EmbeddingOption func(*Embedding)

// WithEmbeddingDimensions requests truncated output vectors of the given
// size. Only models that support outputDimensionality honor it.
func WithEmbeddingDimensions(d int) EmbeddingOption {
	return func(e *Embedding) {
		e.dim = d
		e.sendDim = true
	}
}

// WithEmbeddingBaseURL overrides the API endpoint.
func WithEmbeddingBaseURL(url string) EmbeddingOption {
	return func(e *Embedding) { e.baseURL = url }
}

// WithEmbeddingHTTPClient sets a custom HTTP client.
func WithEmbeddingHTTPClient(c *http.Client) EmbeddingOption {
	return func(e *Embedding) { e.httpClient = c }
}

// WithEmbeddingBatchSize overrides the batchEmbedContents request size.
func WithEmbeddingBatchSize(n int) EmbeddingOption {
	return func(e *Embedding) {
		if n > 0 {
			e.batch = n
		}
	}
}
