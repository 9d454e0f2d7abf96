// Package gemini implements the Google Gemini chat and embedding providers.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	fathom "github.com/fathomhq/fathom"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Gemini implements fathom.Provider for Google Gemini models.
type Gemini struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client

	temperature     float64
	topP            float64
	maxOutputTokens int
}

// New creates a new Gemini chat provider with functional options.
func New(apiKey, model string, opts ...Option) *Gemini {
	g := &Gemini{
		apiKey:      apiKey,
		model:       model,
		baseURL:     defaultBaseURL,
		httpClient:  &http.Client{},
		temperature: 0.1,
		topP:        0.9,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Name returns "gemini".
func (g *Gemini) Name() string { return "gemini" }

// Chat sends a generateContent request and returns the reply with its total
// token usage.
func (g *Gemini) Chat(ctx context.Context, messages []fathom.ChatMessage) (fathom.ChatResponse, error) {
	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", g.baseURL, g.model, g.apiKey)
	respBody, err := postJSON(ctx, g.httpClient, url, g.buildBody(messages))
	if err != nil {
		return fathom.ChatResponse{}, err
	}

	var parsed geminiResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return fathom.ChatResponse{}, wrapErr("parse response: " + err.Error())
	}
	if len(parsed.Candidates) == 0 {
		return fathom.ChatResponse{}, wrapErr("empty candidates in response")
	}

	var content strings.Builder
	for _, part := range parsed.Candidates[0].Content.Parts {
		// Thought parts are internal reasoning, not the reply.
		if part.Thought {
			continue
		}
		content.WriteString(part.Text)
	}

	out := fathom.ChatResponse{Content: content.String()}
	if u := parsed.UsageMetadata; u != nil {
		out.TotalTokens = u.TotalTokenCount
		if out.TotalTokens == 0 {
			out.TotalTokens = u.PromptTokenCount + u.CandidatesTokenCount
		}
	}
	return out, nil
}

// buildBody constructs the generateContent request from chat messages.
// System messages become the systemInstruction; assistant turns map to the
// "model" role.
func (g *Gemini) buildBody(messages []fathom.ChatMessage) map[string]any {
	var systemParts []map[string]any
	var contents []map[string]any

	for _, m := range messages {
		if m.Role == fathom.RoleSystem {
			systemParts = append(systemParts, map[string]any{"text": m.Content})
			continue
		}
		role := "user"
		if m.Role == fathom.RoleAssistant {
			role = "model"
		}
		contents = append(contents, map[string]any{
			"role":  role,
			"parts": []map[string]any{{"text": m.Content}},
		})
	}

	genConfig := map[string]any{
		"temperature": g.temperature,
		"topP":        g.topP,
	}
	if g.maxOutputTokens > 0 {
		genConfig["maxOutputTokens"] = g.maxOutputTokens
	}

	body := map[string]any{
		"contents":         contents,
		"generationConfig": genConfig,
	}
	if len(systemParts) > 0 {
		body["systemInstruction"] = map[string]any{"parts": systemParts}
	}
	return body
}

// postJSON sends body as JSON and returns the raw response body. Non-2xx
// statuses come back as fathom.ErrHTTP.
func postJSON(ctx context.Context, client *http.Client, url string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, wrapErr("marshal body: " + err.Error())
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(payload)))
	if err != nil {
		return nil, wrapErr("create request: " + err.Error())
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, wrapErr("request failed: " + err.Error())
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, wrapErr("read response body: " + err.Error())
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &fathom.ErrHTTP{Status: resp.StatusCode, Body: string(respBody)}
	}
	return respBody, nil
}

func wrapErr(msg string) error {
	return &fathom.ErrLLM{Provider: "gemini", Message: msg}
}

// ---- Response parsing types ----

type geminiResponse struct {
	Candidates    []geminiCandidate `json:"candidates"`
	UsageMetadata *geminiUsage      `json:"usageMetadata"`
}

type geminiCandidate struct {
	Content geminiContent `json:"content"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
	Role  string       `json:"role"`
}

type geminiPart struct {
	Text    string `json:"text,omitempty"`
	Thought bool   `json:"thought,omitempty"`
}

type geminiUsage struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

// Compile-time interface check.
var _ fathom.Provider = (*Gemini)(nil)
