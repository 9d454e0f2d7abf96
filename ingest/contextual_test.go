package ingest

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	fathom "github.com/fathomhq/fathom"
)

type contextProvider struct {
	calls atomic.Int32
	reply func(prompt string) (string, error)
}

var _ fathom.Provider = (*contextProvider)(nil)

func (p *contextProvider) Chat(_ context.Context, msgs []fathom.ChatMessage) (fathom.ChatResponse, error) {
	p.calls.Add(1)
	content, err := p.reply(msgs[len(msgs)-1].Content)
	if err != nil {
		return fathom.ChatResponse{}, err
	}
	return fathom.ChatResponse{Content: content, TotalTokens: 10}, nil
}

func (p *contextProvider) Name() string { return "context-mock" }

func TestEnrichChunksPrependsContext(t *testing.T) {
	provider := &contextProvider{reply: func(prompt string) (string, error) {
		return "  This chunk covers billing.  ", nil
	}}
	chunks := []fathom.Chunk{
		{Text: "Invoices are issued monthly."},
		{Text: "Refunds take five days."},
	}

	enrichChunksWithContext(context.Background(), provider, chunks, "full document", 4, nopLogger)

	for i, c := range chunks {
		if !strings.HasPrefix(c.Text, "This chunk covers billing.\n\n") {
			t.Errorf("chunk %d not enriched: %q", i, c.Text)
		}
	}
	if got := provider.calls.Load(); got != 2 {
		t.Errorf("provider calls = %d, want 2", got)
	}
}

func TestEnrichChunksPromptCarriesDocumentAndChunk(t *testing.T) {
	var captured string
	provider := &contextProvider{reply: func(prompt string) (string, error) {
		captured = prompt
		return "ctx", nil
	}}
	chunks := []fathom.Chunk{{Text: "the chunk body"}}

	enrichChunksWithContext(context.Background(), provider, chunks, "the whole document", 1, nopLogger)

	if !strings.Contains(captured, "the whole document") {
		t.Error("prompt missing document text")
	}
	if !strings.Contains(captured, "the chunk body") {
		t.Error("prompt missing chunk text")
	}
}

func TestEnrichChunksProviderFailureKeepsText(t *testing.T) {
	provider := &contextProvider{reply: func(string) (string, error) {
		return "", errors.New("rate limited")
	}}
	chunks := []fathom.Chunk{{Text: "original text"}}

	enrichChunksWithContext(context.Background(), provider, chunks, "doc", 2, nopLogger)

	if chunks[0].Text != "original text" {
		t.Errorf("failed enrichment must keep original text, got %q", chunks[0].Text)
	}
}

func TestEnrichChunksEmptyReplyKeepsText(t *testing.T) {
	provider := &contextProvider{reply: func(string) (string, error) {
		return "   ", nil
	}}
	chunks := []fathom.Chunk{{Text: "original text"}}

	enrichChunksWithContext(context.Background(), provider, chunks, "doc", 1, nopLogger)

	if chunks[0].Text != "original text" {
		t.Errorf("empty reply must keep original text, got %q", chunks[0].Text)
	}
}

func TestEnrichChunksCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	provider := &contextProvider{reply: func(string) (string, error) {
		return "ctx", nil
	}}
	chunks := []fathom.Chunk{{Text: "a"}, {Text: "b"}, {Text: "c"}}

	enrichChunksWithContext(ctx, provider, chunks, "doc", 2, nopLogger)

	for i, c := range chunks {
		if strings.Contains(c.Text, "\n\n") {
			t.Errorf("chunk %d enriched despite cancelled context: %q", i, c.Text)
		}
	}
}

func TestEnrichChunksNoChunks(t *testing.T) {
	provider := &contextProvider{reply: func(string) (string, error) {
		return "ctx", nil
	}}

	enrichChunksWithContext(context.Background(), provider, nil, "doc", 4, nopLogger)

	if got := provider.calls.Load(); got != 0 {
		t.Errorf("provider calls = %d, want 0", got)
	}
}

func TestIngestorContextualEnrichment(t *testing.T) {
	store := &mockStore{}
	provider := &contextProvider{reply: func(string) (string, error) {
		return "Situating context.", nil
	}}
	ing := NewIngestor(store, &mockEmbedding{},
		WithContextualEnrichment(provider),
		WithContextWorkers(2),
	)

	if _, err := ing.LoadText(context.Background(), "Plain body text.", "src", LoadOptions{}); err != nil {
		t.Fatal(err)
	}
	if len(store.chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(store.chunks))
	}
	if !strings.HasPrefix(store.chunks[0].Text, "Situating context.\n\n") {
		t.Errorf("stored chunk not enriched: %q", store.chunks[0].Text)
	}
}

func TestTruncateDocText(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		maxBytes int
		want     string
	}{
		{"fits", "short text", 100, "short text"},
		{"zero disables", "anything at all", 0, "anything at all"},
		{"cut at boundary", "alpha beta gamma", 10, "alpha beta"},
		{"cut mid word steps back", "alpha beta gamma", 13, "alpha beta"},
		{"no space hard cut", strings.Repeat("x", 20), 10, strings.Repeat("x", 10)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := truncateDocText(tt.text, tt.maxBytes); got != tt.want {
				t.Errorf("truncateDocText(%q, %d) = %q, want %q", tt.text, tt.maxBytes, got, tt.want)
			}
		})
	}
}
