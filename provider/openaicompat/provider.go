package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	fathom "github.com/fathomhq/fathom"
)

// Provider implements fathom.Provider for any OpenAI-compatible chat API.
//
// baseURL is the API base (e.g. "https://api.openai.com/v1",
// "https://api.deepseek.com", "http://localhost:11434/v1"). The
// /chat/completions path is appended automatically.
type Provider struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
	name    string
	opts    []Option
	counter *fathom.TokenCounter
}

// NewProvider creates an OpenAI-compatible chat provider. Request-level
// options (WithTemperature, etc.) given through WithOptions apply to every
// request.
func NewProvider(apiKey, model, baseURL string, opts ...ProviderOption) *Provider {
	p := &Provider{
		apiKey:  apiKey,
		model:   model,
		baseURL: baseURL,
		client:  &http.Client{},
		name:    "openai",
	}
	for _, opt := range opts {
		opt(p)
	}
	// Counter for backends that omit usage figures. Best effort: without
	// an encoding we fall back to a character estimate.
	p.counter, _ = fathom.NewTokenCounter(model)
	return p
}

// Name returns the provider name (default "openai", configurable via
// WithName).
func (p *Provider) Name() string { return p.name }

// Chat sends a chat completion request and returns the reply with its total
// token usage. Backends that omit usage get an estimated count instead.
func (p *Provider) Chat(ctx context.Context, messages []fathom.ChatMessage) (fathom.ChatResponse, error) {
	body := ChatRequest{Model: p.model, Messages: convertMessages(messages)}
	for _, opt := range p.opts {
		opt(&body)
	}

	resp, err := p.sendHTTP(ctx, "/chat/completions", body)
	if err != nil {
		return fathom.ChatResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fathom.ChatResponse{}, httpErr(resp)
	}

	var chatResp ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return fathom.ChatResponse{}, &fathom.ErrLLM{Provider: p.name, Message: fmt.Sprintf("decode response: %v", err)}
	}
	return p.parseResponse(messages, chatResp)
}

// parseResponse extracts choices[0] and the token total. A missing or zero
// usage block is filled in from the local counter so searchers always see
// real numbers.
func (p *Provider) parseResponse(messages []fathom.ChatMessage, resp ChatResponse) (fathom.ChatResponse, error) {
	var out fathom.ChatResponse
	if len(resp.Choices) == 0 {
		return out, &fathom.ErrLLM{Provider: p.name, Message: "empty choices in response"}
	}
	if msg := resp.Choices[0].Message; msg != nil {
		out.Content = msg.Content
	}

	switch {
	case resp.Usage != nil && resp.Usage.TotalTokens > 0:
		out.TotalTokens = resp.Usage.TotalTokens
	case resp.Usage != nil && resp.Usage.PromptTokens+resp.Usage.CompletionTokens > 0:
		out.TotalTokens = resp.Usage.PromptTokens + resp.Usage.CompletionTokens
	case p.counter != nil:
		out.TotalTokens = p.counter.CountMessages(messages) + p.counter.Count(out.Content)
	default:
		for _, m := range messages {
			out.TotalTokens += fathom.EstimateTokens(m.Content)
		}
		out.TotalTokens += fathom.EstimateTokens(out.Content)
	}
	return out, nil
}

// sendHTTP marshals body and posts it to baseURL+path.
func (p *Provider) sendHTTP(ctx context.Context, path string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &fathom.ErrLLM{Provider: p.name, Message: fmt.Sprintf("marshal request: %v", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, &fathom.ErrLLM{Provider: p.name, Message: fmt.Sprintf("create request: %v", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	return p.client.Do(httpReq)
}

func convertMessages(messages []fathom.ChatMessage) []Message {
	out := make([]Message, len(messages))
	for i, m := range messages {
		out[i] = Message{Role: m.Role, Content: m.Content}
	}
	return out
}

// httpErr reads the response body into an ErrHTTP.
func httpErr(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	return &fathom.ErrHTTP{Status: resp.StatusCode, Body: string(body)}
}

// Compile-time interface check.
var _ fathom.Provider = (*Provider)(nil)
