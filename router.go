package fathom

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// AgentRouter picks one searcher per query by matching the question against
// each registered searcher's self-description, then delegates to it.
type AgentRouter struct {
	llm       Provider
	searchers []Searcher
	logger    *slog.Logger
}

// NewAgentRouter builds a router over the given searchers. Registry order
// matters: the LLM replies with a 1-based index into it.
func NewAgentRouter(llm Provider, searchers []Searcher, opts ...SearcherOption) (*AgentRouter, error) {
	if len(searchers) == 0 {
		return nil, fmt.Errorf("agent router: no searchers registered")
	}
	cfg := defaultSearcherConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &AgentRouter{llm: llm, searchers: searchers, logger: cfg.logger}, nil
}

var _ Searcher = (*AgentRouter)(nil)

func (r *AgentRouter) Name() string { return "router" }

func (r *AgentRouter) Description() string {
	return "Routes each query to the registered searcher whose strengths best match it."
}

// Retrieve routes and delegates, adding only the routing call's tokens.
func (r *AgentRouter) Retrieve(ctx context.Context, query string, opts ...QueryOption) (RetrievalOutput, error) {
	chosen, tokens, err := r.route(ctx, query)
	if err != nil {
		return RetrievalOutput{Tokens: tokens}, err
	}
	out, err := chosen.Retrieve(ctx, query, opts...)
	out.Tokens += tokens
	return out, err
}

// Query routes and delegates, adding only the routing call's tokens.
func (r *AgentRouter) Query(ctx context.Context, query string, opts ...QueryOption) (Answer, error) {
	chosen, tokens, err := r.route(ctx, query)
	if err != nil {
		return Answer{Tokens: tokens}, err
	}
	answer, err := chosen.Query(ctx, query, opts...)
	answer.Tokens += tokens
	return answer, err
}

func (r *AgentRouter) route(ctx context.Context, query string) (Searcher, int, error) {
	descriptions := make([]string, len(r.searchers))
	for i, s := range r.searchers {
		descriptions[i] = s.Description()
	}
	resp, err := r.llm.Chat(ctx, UserMessage(agentRoutePrompt(query, descriptions)))
	if err != nil {
		return nil, 0, fmt.Errorf("route agent: %w", err)
	}
	idx, err := parseAgentIndex(resp.Content)
	if err != nil {
		return nil, resp.TotalTokens, fmt.Errorf("route agent: %w", err)
	}
	idx-- // replies are 1-based
	if idx < 0 || idx >= len(r.searchers) {
		return nil, resp.TotalTokens, fmt.Errorf("route agent: index %d out of range", idx+1)
	}
	chosen := r.searchers[idx]
	r.logger.Debug("selected searcher", "query", query, "searcher", chosen.Name())
	return chosen, resp.TotalTokens, nil
}

// parseAgentIndex reads the reply as an integer, falling back to the last
// decimal digit anywhere in it.
func parseAgentIndex(content string) (int, error) {
	s := strings.TrimSpace(content)
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] >= '0' && s[i] <= '9' {
			return int(s[i] - '0'), nil
		}
	}
	return 0, &ErrParse{Raw: content}
}
