package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	fathom "github.com/fathomhq/fathom"
)

// embeddingBatch caps the inputs sent per embeddings request.
const embeddingBatch = 256

// modelDimensions maps known embedding models to their native vector size.
var modelDimensions = map[string]int{
	"text-embedding-ada-002": 1536,
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
}

// Embedding implements fathom.EmbeddingProvider for any OpenAI-compatible
// embeddings API. The /embeddings path is appended to baseURL automatically.
type Embedding struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
	name    string
	dim     int
	// sendDim controls whether the request carries the dimensions field.
	// Only v3-style models accept it.
	sendDim bool
	batch   int
}

// EmbeddingOption configures an Embedding instance.
type EmbeddingOption func(*Embedding)

// WithDimensions overrides the vector size and asks the backend to shorten
// vectors to it. Use only with models that accept the dimensions parameter.
func WithDimensions(n int) EmbeddingOption {
	return func(e *Embedding) {
		e.dim = n
		e.sendDim = true
	}
}

// WithKnownDimensions sets the vector size reported by Dimensions without
// sending it to the backend, for models whose size the registry does not
// know.
func WithKnownDimensions(n int) EmbeddingOption {
	return func(e *Embedding) {
		e.dim = n
		e.sendDim = false
	}
}

// WithEmbeddingName sets the provider name returned by Name.
func WithEmbeddingName(name string) EmbeddingOption {
	return func(e *Embedding) { e.name = name }
}

// WithEmbeddingHTTPClient sets a custom HTTP client.
func WithEmbeddingHTTPClient(c *http.Client) EmbeddingOption {
	return func(e *Embedding) { e.client = c }
}

// WithBatchSize caps the inputs per request (default 256).
func WithBatchSize(n int) EmbeddingOption {
	return func(e *Embedding) {
		if n >= 1 {
			e.batch = n
		}
	}
}

// NewEmbedding creates an OpenAI-compatible embedding provider. Dimensions
// default from the known-model table (1536 otherwise).
func NewEmbedding(apiKey, model, baseURL string, opts ...EmbeddingOption) *Embedding {
	e := &Embedding{
		apiKey:  apiKey,
		model:   model,
		baseURL: baseURL,
		client:  &http.Client{},
		name:    "openai",
		batch:   embeddingBatch,
	}
	if dim, ok := modelDimensions[model]; ok {
		e.dim = dim
	} else {
		e.dim = 1536
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Embedding) Name() string    { return e.name }
func (e *Embedding) Dimensions() int { return e.dim }

// EmbedQuery embeds a single query string.
func (e *Embedding) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedDocuments embeds texts in request batches, preserving input order.
func (e *Embedding) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batch {
		end := start + e.batch
		if end > len(texts) {
			end = len(texts)
		}
		vectors, err := e.embed(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vectors...)
	}
	return out, nil
}

func (e *Embedding) embed(ctx context.Context, input []string) ([][]float32, error) {
	body := EmbeddingRequest{Model: e.model, Input: input}
	if e.sendDim {
		body.Dimensions = e.dim
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &fathom.ErrLLM{Provider: e.name, Message: fmt.Sprintf("marshal request: %v", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, &fathom.ErrLLM{Provider: e.name, Message: fmt.Sprintf("create request: %v", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, httpErr(resp)
	}

	var embResp EmbeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&embResp); err != nil {
		return nil, &fathom.ErrLLM{Provider: e.name, Message: fmt.Sprintf("decode response: %v", err)}
	}
	if len(embResp.Data) != len(input) {
		return nil, &fathom.ErrLLM{Provider: e.name, Message: fmt.Sprintf("got %d embeddings for %d inputs", len(embResp.Data), len(input))}
	}

	// The API may return data out of order; the index field is
	// authoritative.
	vectors := make([][]float32, len(input))
	for _, d := range embResp.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, &fathom.ErrLLM{Provider: e.name, Message: fmt.Sprintf("embedding index %d out of range", d.Index)}
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}

var _ fathom.EmbeddingProvider = (*Embedding)(nil)
