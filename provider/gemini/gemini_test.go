package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	fathom "github.com/fathomhq/fathom"
)

type wirePart struct {
	Text    string `json:"text"`
	Thought bool   `json:"thought,omitempty"`
}

type wireContent struct {
	Role  string     `json:"role,omitempty"`
	Parts []wirePart `json:"parts"`
}

func TestGemini_Chat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Verify request.
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/models/gemini-2.0-flash:generateContent" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.URL.Query().Get("key") != "test-key" {
			t.Errorf("unexpected key param: %s", r.URL.Query().Get("key"))
		}

		var req struct {
			Contents          []wireContent  `json:"contents"`
			SystemInstruction *wireContent   `json:"systemInstruction"`
			GenerationConfig  map[string]any `json:"generationConfig"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if len(req.Contents) != 2 {
			t.Fatalf("expected 2 contents, got %d", len(req.Contents))
		}
		if req.Contents[0].Role != "user" || req.Contents[0].Parts[0].Text != "Hi" {
			t.Errorf("unexpected first content: %+v", req.Contents[0])
		}
		if req.Contents[1].Role != "model" || req.Contents[1].Parts[0].Text != "Yes?" {
			t.Errorf("assistant turn should use the model role: %+v", req.Contents[1])
		}
		if req.SystemInstruction == nil || req.SystemInstruction.Parts[0].Text != "Be brief." {
			t.Errorf("unexpected system instruction: %+v", req.SystemInstruction)
		}
		if req.GenerationConfig["temperature"] != 0.1 {
			t.Errorf("unexpected temperature: %v", req.GenerationConfig["temperature"])
		}
		if req.GenerationConfig["topP"] != 0.9 {
			t.Errorf("unexpected topP: %v", req.GenerationConfig["topP"])
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{{
				"content": map[string]any{
					"role":  "model",
					"parts": []map[string]any{{"text": "Hello!"}},
				},
			}},
			"usageMetadata": map[string]any{
				"promptTokenCount":     9,
				"candidatesTokenCount": 2,
				"totalTokenCount":      11,
			},
		})
	}))
	defer srv.Close()

	g := New("test-key", "gemini-2.0-flash", WithBaseURL(srv.URL))
	resp, err := g.Chat(context.Background(), []fathom.ChatMessage{
		{Role: fathom.RoleSystem, Content: "Be brief."},
		{Role: fathom.RoleUser, Content: "Hi"},
		{Role: fathom.RoleAssistant, Content: "Yes?"},
	})
	if err != nil {
		t.Fatalf("Chat returned error: %v", err)
	}
	if resp.Content != "Hello!" {
		t.Errorf("expected content 'Hello!', got %q", resp.Content)
	}
	if resp.TotalTokens != 11 {
		t.Errorf("expected 11 total tokens, got %d", resp.TotalTokens)
	}
}

func TestGemini_ChatSkipsThoughtParts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{{
				"content": map[string]any{
					"parts": []map[string]any{
						{"text": "Let me think about this.", "thought": true},
						{"text": "The answer is 42."},
					},
				},
			}},
		})
	}))
	defer srv.Close()

	g := New("k", "gemini-2.5-flash", WithBaseURL(srv.URL))
	resp, err := g.Chat(context.Background(), fathom.UserMessage("Hi"))
	if err != nil {
		t.Fatalf("Chat returned error: %v", err)
	}
	if resp.Content != "The answer is 42." {
		t.Errorf("thought part leaked into content: %q", resp.Content)
	}
}

func TestGemini_ChatSumsPartialUsage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{{
				"content": map[string]any{
					"parts": []map[string]any{{"text": "ok"}},
				},
			}},
			"usageMetadata": map[string]any{
				"promptTokenCount":     7,
				"candidatesTokenCount": 5,
			},
		})
	}))
	defer srv.Close()

	g := New("k", "gemini-2.0-flash", WithBaseURL(srv.URL))
	resp, err := g.Chat(context.Background(), fathom.UserMessage("Hi"))
	if err != nil {
		t.Fatalf("Chat returned error: %v", err)
	}
	if resp.TotalTokens != 12 {
		t.Errorf("expected 12 total tokens, got %d", resp.TotalTokens)
	}
}

func TestGemini_ChatEmptyCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"candidates": []any{}})
	}))
	defer srv.Close()

	g := New("k", "gemini-2.0-flash", WithBaseURL(srv.URL))
	_, err := g.Chat(context.Background(), fathom.UserMessage("Hi"))
	var llmErr *fathom.ErrLLM
	if !errors.As(err, &llmErr) {
		t.Fatalf("expected ErrLLM, got %v", err)
	}
	if llmErr.Provider != "gemini" {
		t.Errorf("expected provider gemini, got %s", llmErr.Provider)
	}
}

func TestGemini_ChatHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": {"message": "quota exceeded"}}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	g := New("k", "gemini-2.0-flash", WithBaseURL(srv.URL))
	_, err := g.Chat(context.Background(), fathom.UserMessage("Hi"))
	var httpErr *fathom.ErrHTTP
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected ErrHTTP, got %v", err)
	}
	if httpErr.Status != http.StatusTooManyRequests {
		t.Errorf("expected status 429, got %d", httpErr.Status)
	}
}

func TestGemini_ChatMaxOutputTokens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			GenerationConfig map[string]any `json:"generationConfig"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.GenerationConfig["maxOutputTokens"] != float64(2048) {
			t.Errorf("unexpected maxOutputTokens: %v", req.GenerationConfig["maxOutputTokens"])
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{{
				"content": map[string]any{"parts": []map[string]any{{"text": "ok"}}},
			}},
		})
	}))
	defer srv.Close()

	g := New("k", "gemini-2.0-flash", WithBaseURL(srv.URL), WithMaxOutputTokens(2048))
	if _, err := g.Chat(context.Background(), fathom.UserMessage("Hi")); err != nil {
		t.Fatalf("Chat returned error: %v", err)
	}
}

func TestEmbedding_EmbedQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models/text-embedding-004:embedContent" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		var req struct {
			Content wireContent `json:"content"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if len(req.Content.Parts) != 1 || req.Content.Parts[0].Text != "hello" {
			t.Errorf("unexpected content: %+v", req.Content)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"embedding": map[string]any{"values": []float64{0.5, 0.25, 0.125}},
		})
	}))
	defer srv.Close()

	e := NewEmbedding("k", "text-embedding-004", WithEmbeddingBaseURL(srv.URL))
	vec, err := e.EmbedQuery(context.Background(), "hello")
	if err != nil {
		t.Fatalf("EmbedQuery returned error: %v", err)
	}
	want := []float32{0.5, 0.25, 0.125}
	if len(vec) != len(want) {
		t.Fatalf("expected %d values, got %d", len(want), len(vec))
	}
	for i := range want {
		if vec[i] != want[i] {
			t.Errorf("value %d: expected %f, got %f", i, want[i], vec[i])
		}
	}
}

func TestEmbedding_EmbedDocumentsBatches(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path != "/models/text-embedding-004:batchEmbedContents" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		var req struct {
			Requests []struct {
				Model   string      `json:"model"`
				Content wireContent `json:"content"`
			} `json:"requests"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}

		// Echo one value per text so order is checkable.
		embeddings := make([]map[string]any, len(req.Requests))
		for i, sub := range req.Requests {
			if sub.Model != "models/text-embedding-004" {
				t.Errorf("batched request missing model: %+v", sub)
			}
			embeddings[i] = map[string]any{
				"values": []float64{float64(len(sub.Content.Parts[0].Text))},
			}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"embeddings": embeddings})
	}))
	defer srv.Close()

	e := NewEmbedding("k", "text-embedding-004",
		WithEmbeddingBaseURL(srv.URL),
		WithEmbeddingBatchSize(2),
	)
	vecs, err := e.EmbedDocuments(context.Background(), []string{"a", "bb", "ccc"})
	if err != nil {
		t.Fatalf("EmbedDocuments returned error: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 batch requests, got %d", calls.Load())
	}
	if len(vecs) != 3 {
		t.Fatalf("expected 3 vectors, got %d", len(vecs))
	}
	for i, want := range []float32{1, 2, 3} {
		if vecs[i][0] != want {
			t.Errorf("vector %d: expected %f, got %f", i, want, vecs[i][0])
		}
	}
}

func TestEmbedding_SendsOutputDimensionality(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req["outputDimensionality"] != float64(256) {
			t.Errorf("unexpected outputDimensionality: %v", req["outputDimensionality"])
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"embedding": map[string]any{"values": []float64{0.1}},
		})
	}))
	defer srv.Close()

	e := NewEmbedding("k", "gemini-embedding-001",
		WithEmbeddingBaseURL(srv.URL),
		WithEmbeddingDimensions(256),
	)
	if e.Dimensions() != 256 {
		t.Errorf("expected 256 dimensions, got %d", e.Dimensions())
	}
	if _, err := e.EmbedQuery(context.Background(), "hello"); err != nil {
		t.Fatalf("EmbedQuery returned error: %v", err)
	}
}

func TestEmbedding_ModelDimensions(t *testing.T) {
	tests := []struct {
		model string
		want  int
	}{
		{"text-embedding-004", 768},
		{"embedding-001", 768},
		{"gemini-embedding-001", 3072},
		{"some-future-model", 768},
	}
	for _, tt := range tests {
		if got := NewEmbedding("k", tt.model).Dimensions(); got != tt.want {
			t.Errorf("%s: expected %d dimensions, got %d", tt.model, tt.want, got)
		}
	}
}

func TestEmbedding_CountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"embeddings": []map[string]any{{"values": []float64{0.1}}},
		})
	}))
	defer srv.Close()

	e := NewEmbedding("k", "text-embedding-004", WithEmbeddingBaseURL(srv.URL))
	_, err := e.EmbedDocuments(context.Background(), []string{"a", "b"})
	var llmErr *fathom.ErrLLM
	if !errors.As(err, &llmErr) {
		t.Fatalf("expected ErrLLM, got %v", err)
	}
}
