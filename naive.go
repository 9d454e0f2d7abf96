package fathom

import (
	"context"
	"fmt"
)

// NaiveTopK is the naive searcher's total result budget, split evenly across
// the selected collections.
const NaiveTopK = 10

// NaiveSearch is the single-shot baseline: route, embed once, search every
// selected collection, and summarize in one LLM call. It doubles as the
// control for evaluating the iterative searchers.
type NaiveSearch struct {
	llm      Provider
	embedder EmbeddingProvider
	db       VectorDB
	router   *CollectionRouter
	cfg      searcherConfig
}

func NewNaiveSearch(llm Provider, embedder EmbeddingProvider, db VectorDB, opts ...SearcherOption) *NaiveSearch {
	cfg := defaultSearcherConfig()
	cfg.topK = NaiveTopK
	for _, opt := range opts {
		opt(&cfg)
	}
	return &NaiveSearch{
		llm:      llm,
		embedder: embedder,
		db:       db,
		router:   &CollectionRouter{llm: llm, db: db, logger: cfg.logger},
		cfg:      cfg,
	}
}

var _ Searcher = (*NaiveSearch)(nil)

func (s *NaiveSearch) Name() string { return "naive-search" }

func (s *NaiveSearch) Description() string {
	return "This agent performs a single retrieval pass over the knowledge base and summarizes the results. It is suitable for simple factual lookups where one search suffices."
}

// Retrieve performs one routed search. The per-collection depth is the
// configured top-k divided across the selected collections, floored at one.
func (s *NaiveSearch) Retrieve(ctx context.Context, query string, opts ...QueryOption) (RetrievalOutput, error) {
	var out RetrievalOutput

	collections, tokens, err := routeOrAll(ctx, s.router, s.cfg.routeCollection, query, s.embedder.Dimensions())
	out.Tokens += tokens
	if err != nil {
		return out, err
	}
	if len(collections) == 0 {
		return out, nil
	}

	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return out, fmt.Errorf("embed %q: %w", query, err)
	}

	perCollection := s.cfg.topK / len(collections)
	if perCollection < 1 {
		perCollection = 1
	}
	var all []RetrievalResult
	for _, collection := range collections {
		results, err := s.db.Search(ctx, collection, vector, perCollection)
		if err != nil {
			out.Results = DedupeResults(all)
			return out, fmt.Errorf("search %s: %w", collection, err)
		}
		all = append(all, results...)
	}
	out.Results = DedupeResults(all)
	return out, nil
}

// Query retrieves once and summarizes the results.
func (s *NaiveSearch) Query(ctx context.Context, query string, opts ...QueryOption) (Answer, error) {
	out, err := s.Retrieve(ctx, query, opts...)
	if err != nil {
		return Answer{Tokens: out.Tokens}, err
	}
	if len(out.Results) == 0 {
		return Answer{Text: noInfoAnswer(query), Tokens: out.Tokens}, nil
	}

	chunkTexts := make([]string, len(out.Results))
	for i, r := range out.Results {
		if s.cfg.textWindow {
			chunkTexts[i] = r.WiderText()
		} else {
			chunkTexts[i] = r.Text
		}
	}
	resp, err := s.llm.Chat(ctx, UserMessage(naiveSummaryPrompt(query, formatChunkTexts(chunkTexts))))
	if err != nil {
		return Answer{Results: out.Results, Tokens: out.Tokens}, fmt.Errorf("summarize: %w", err)
	}
	return Answer{
		Text:    resp.Content,
		Results: out.Results,
		Tokens:  out.Tokens + resp.TotalTokens,
	}, nil
}
