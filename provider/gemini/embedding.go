package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	fathom "github.com/fathomhq/fathom"
)

// batchEmbedContents accepts at most 100 requests per call.
const embeddingBatch = 100

var modelDimensions = map[string]int{
	"text-embedding-004":   768,
	"embedding-001":        768,
	"gemini-embedding-001": 3072,
}

// Embedding implements fathom.EmbeddingProvider on the Gemini embedContent
// API.
type Embedding struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client

	dim     int
	sendDim bool
	batch   int
}

// NewEmbedding creates a Gemini embedding provider. Dimensions default from
// the model name; use WithEmbeddingDimensions to request a truncated size.
func NewEmbedding(apiKey, model string, opts ...EmbeddingOption) *Embedding {
	e := &Embedding{
		apiKey:     apiKey,
		model:      model,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{},
		batch:      embeddingBatch,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.dim == 0 {
		if d, ok := modelDimensions[model]; ok {
			e.dim = d
		} else {
			e.dim = 768
		}
	}
	return e
}

// Name returns "gemini".
func (e *Embedding) Name() string { return "gemini" }

// Dimensions returns the embedding vector size.
func (e *Embedding) Dimensions() int { return e.dim }

// EmbedQuery embeds a single query string via embedContent.
func (e *Embedding) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	url := fmt.Sprintf("%s/models/%s:embedContent?key=%s", e.baseURL, e.model, e.apiKey)
	respBody, err := postJSON(ctx, e.httpClient, url, e.contentRequest(text, false))
	if err != nil {
		return nil, err
	}

	var parsed embedResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, wrapErr("parse response: " + err.Error())
	}
	if parsed.Embedding == nil || len(parsed.Embedding.Values) == 0 {
		return nil, wrapErr("empty embedding in response")
	}
	return parsed.Embedding.Values, nil
}

// EmbedDocuments embeds texts in API-sized batches via batchEmbedContents.
func (e *Embedding) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batch {
		end := start + e.batch
		if end > len(texts) {
			end = len(texts)
		}
		vectors, err := e.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vectors...)
	}
	return out, nil
}

func (e *Embedding) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	requests := make([]map[string]any, len(texts))
	for i, t := range texts {
		requests[i] = e.contentRequest(t, true)
	}
	url := fmt.Sprintf("%s/models/%s:batchEmbedContents?key=%s", e.baseURL, e.model, e.apiKey)
	respBody, err := postJSON(ctx, e.httpClient, url, map[string]any{"requests": requests})
	if err != nil {
		return nil, err
	}

	var parsed batchEmbedResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, wrapErr("parse response: " + err.Error())
	}
	if len(parsed.Embeddings) != len(texts) {
		return nil, wrapErr(fmt.Sprintf("embedding count mismatch: got %d, want %d", len(parsed.Embeddings), len(texts)))
	}

	vectors := make([][]float32, len(texts))
	for i, emb := range parsed.Embeddings {
		vectors[i] = emb.Values
	}
	return vectors, nil
}

// contentRequest builds one embedContent request body. Batched requests must
// repeat the model name; single requests take it from the URL.
func (e *Embedding) contentRequest(text string, withModel bool) map[string]any {
	req := map[string]any{
		"content": map[string]any{
			"parts": []map[string]any{{"text": text}},
		},
	}
	if withModel {
		req["model"] = "models/" + e.model
	}
	if e.sendDim {
		req["outputDimensionality"] = e.dim
	}
	return req
}

type embedResponse struct {
	Embedding *embedValues `json:"embedding"`
}

type batchEmbedResponse struct {
	Embeddings []embedValues `json:"embeddings"`
}

type embedValues struct {
	Values []float32 `json:"values"`
}

// Compile-time interface check.
var _ fathom.EmbeddingProvider = (*Embedding)(nil)
