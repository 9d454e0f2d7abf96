package fathom

import (
	"context"
	"log/slog"
)

// Engine wires the deep, chain, and naive searchers behind an agent router
// and exposes the process-level entrypoints. Construct one per provider
// configuration; it is safe for concurrent use.
type Engine struct {
	router *AgentRouter
	naive  *NaiveSearch
	logger *slog.Logger
}

// NewEngine assembles the searcher registry in routing order: deep search,
// chain of RAG, naive search. The options are applied to every searcher;
// per-searcher defaults (like the naive top-k) still hold where an option is
// not given.
func NewEngine(llm Provider, embedder EmbeddingProvider, db VectorDB, opts ...SearcherOption) (*Engine, error) {
	cfg := defaultSearcherConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	deep := NewDeepSearch(llm, embedder, db, opts...)
	chain := NewChainOfRAG(llm, embedder, db, opts...)
	naive := NewNaiveSearch(llm, embedder, db, opts...)

	router, err := NewAgentRouter(llm, []Searcher{deep, chain, naive}, opts...)
	if err != nil {
		return nil, err
	}
	return &Engine{router: router, naive: naive, logger: cfg.logger}, nil
}

// Query answers the question through the agent router: pick a searcher,
// retrieve, summarize. The answer carries deduplicated citations and the
// total LLM tokens spent on the request.
func (e *Engine) Query(ctx context.Context, question string, opts ...QueryOption) (Answer, error) {
	return e.router.Query(ctx, question, opts...)
}

// Retrieve gathers citations for the question through the agent router
// without synthesizing an answer.
func (e *Engine) Retrieve(ctx context.Context, question string, opts ...QueryOption) (RetrievalOutput, error) {
	return e.router.Retrieve(ctx, question, opts...)
}

// NaiveQuery bypasses the agent router and answers with the single-pass
// searcher.
func (e *Engine) NaiveQuery(ctx context.Context, question string, opts ...QueryOption) (Answer, error) {
	return e.naive.Query(ctx, question, opts...)
}

// NaiveRetrieve bypasses the agent router and retrieves with the
// single-pass searcher.
func (e *Engine) NaiveRetrieve(ctx context.Context, question string, opts ...QueryOption) (RetrievalOutput, error) {
	return e.naive.Retrieve(ctx, question, opts...)
}
