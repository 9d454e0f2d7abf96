package fathom

import (
	"context"
	"fmt"
	"strings"
)

// ChainOfRAG answers multi-hop questions one hop at a time: generate a
// follow-up question, retrieve and answer it from the store, keep the chunks
// that support the answer, and optionally stop early once the gathered
// context is judged sufficient. Hops are strictly sequential.
type ChainOfRAG struct {
	llm      Provider
	embedder EmbeddingProvider
	db       VectorDB
	router   *CollectionRouter
	cfg      searcherConfig
}

func NewChainOfRAG(llm Provider, embedder EmbeddingProvider, db VectorDB, opts ...SearcherOption) *ChainOfRAG {
	cfg := defaultSearcherConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &ChainOfRAG{
		llm:      llm,
		embedder: embedder,
		db:       db,
		router:   &CollectionRouter{llm: llm, db: db, logger: cfg.logger},
		cfg:      cfg,
	}
}

var _ Searcher = (*ChainOfRAG)(nil)

func (c *ChainOfRAG) Name() string { return "chain-of-rag" }

func (c *ChainOfRAG) Description() string {
	return "This agent can decompose complex queries and gradually find the fact information of sub-queries. It is very suitable for handling concrete factual queries and multi-hop questions."
}

// Retrieve runs up to max_iter hops, building the intermediate context and
// accumulating the supporting chunks. Token counts are reported on the
// output even when an error cuts the request short.
func (c *ChainOfRAG) Retrieve(ctx context.Context, query string, opts ...QueryOption) (RetrievalOutput, error) {
	o := resolveQueryOptions(c.cfg.maxIter, opts)
	var out RetrievalOutput
	var accumulated []RetrievalResult

	fail := func(err error) (RetrievalOutput, error) {
		out.Results = DedupeResults(accumulated)
		return out, err
	}

	for hop := 0; hop < o.maxIter; hop++ {
		c.cfg.logger.Debug("chain hop", "hop", hop+1, "query", query)

		followup, n, err := c.followupQuery(ctx, query, out.Intermediate)
		out.Tokens += n
		if err != nil {
			return fail(err)
		}
		answer, results, n, err := c.retrieveAndAnswer(ctx, followup)
		out.Tokens += n
		if err != nil {
			return fail(err)
		}
		supported, n, err := c.supportedResults(ctx, results, followup, answer)
		out.Tokens += n
		if err != nil {
			return fail(err)
		}
		accumulated = append(accumulated, supported...)

		idx := len(out.Intermediate)/2 + 1
		out.Intermediate = append(out.Intermediate,
			fmt.Sprintf("Intermediate query%d: %s", idx, followup),
			fmt.Sprintf("Intermediate answer%d: %s", idx, answer))

		if c.cfg.earlyStopping {
			enough, n, err := c.hasEnoughInfo(ctx, query, out.Intermediate)
			out.Tokens += n
			if err != nil {
				return fail(err)
			}
			if enough {
				c.cfg.logger.Debug("context judged sufficient", "hops", hop+1)
				break
			}
		}
	}

	out.Results = DedupeResults(accumulated)
	return out, nil
}

// Query retrieves hop by hop, then synthesizes the final answer from the
// intermediate context and the supporting chunks. The final call runs even
// when no chunks survived filtering; the intermediate answers alone can
// carry the answer.
func (c *ChainOfRAG) Query(ctx context.Context, query string, opts ...QueryOption) (Answer, error) {
	out, err := c.Retrieve(ctx, query, opts...)
	if err != nil {
		return Answer{Tokens: out.Tokens}, err
	}

	docs := formatDocuments(out.Results, c.cfg.textWindow)
	resp, err := c.llm.Chat(ctx, UserMessage(finalAnswerPrompt(query, docs, out.Intermediate)))
	if err != nil {
		return Answer{Results: out.Results, Tokens: out.Tokens}, fmt.Errorf("final answer: %w", err)
	}
	return Answer{
		Text:    StripThink(resp.Content),
		Results: out.Results,
		Tokens:  out.Tokens + resp.TotalTokens,
	}, nil
}

func (c *ChainOfRAG) followupQuery(ctx context.Context, query string, intermediate []string) (string, int, error) {
	resp, err := c.llm.Chat(ctx, UserMessage(followupPrompt(query, intermediate)))
	if err != nil {
		return "", 0, fmt.Errorf("follow-up: %w", err)
	}
	return StripThink(resp.Content), resp.TotalTokens, nil
}

// retrieveAndAnswer routes and searches the follow-up, then has the LLM
// answer it strictly from the retrieved documents.
func (c *ChainOfRAG) retrieveAndAnswer(ctx context.Context, followup string) (string, []RetrievalResult, int, error) {
	collections, tokens, err := routeOrAll(ctx, c.router, c.cfg.routeCollection, followup, c.embedder.Dimensions())
	if err != nil {
		return "", nil, tokens, err
	}

	vector, err := c.embedder.EmbedQuery(ctx, followup)
	if err != nil {
		return "", nil, tokens, fmt.Errorf("embed %q: %w", followup, err)
	}

	var all []RetrievalResult
	for _, collection := range collections {
		results, err := c.db.Search(ctx, collection, vector, c.cfg.topK)
		if err != nil {
			return "", nil, tokens, fmt.Errorf("search %s: %w", collection, err)
		}
		all = append(all, results...)
	}
	all = DedupeResults(all)

	resp, err := c.llm.Chat(ctx, UserMessage(
		intermediateAnswerPrompt(formatDocuments(all, c.cfg.textWindow), followup)))
	if err != nil {
		return "", all, tokens, fmt.Errorf("intermediate answer: %w", err)
	}
	tokens += resp.TotalTokens
	return StripThink(resp.Content), all, tokens, nil
}

// supportedResults asks the LLM which retrieved chunks support the Q-A pair
// and keeps only those. An unparseable index list drops the supporting set
// for the hop; the hop itself continues.
func (c *ChainOfRAG) supportedResults(ctx context.Context, results []RetrievalResult, query, answer string) ([]RetrievalResult, int, error) {
	if len(results) == 0 || strings.Contains(answer, "No relevant information found") {
		return nil, 0, nil
	}

	resp, err := c.llm.Chat(ctx, UserMessage(
		supportedDocsPrompt(formatDocuments(results, c.cfg.textWindow), query, answer)))
	if err != nil {
		return nil, 0, fmt.Errorf("supporting docs: %w", err)
	}
	indices, err := ParseIntList(resp.Content)
	if err != nil {
		c.cfg.logger.Warn("unparseable supporting indices, dropping hop's chunks", "error", err)
		return nil, resp.TotalTokens, nil
	}

	var supported []RetrievalResult
	for _, i := range indices {
		if i >= 0 && i < len(results) {
			supported = append(supported, results[i])
		}
	}
	return supported, resp.TotalTokens, nil
}

func (c *ChainOfRAG) hasEnoughInfo(ctx context.Context, query string, intermediate []string) (bool, int, error) {
	resp, err := c.llm.Chat(ctx, UserMessage(sufficiencyPrompt(query, intermediate)))
	if err != nil {
		return false, 0, fmt.Errorf("sufficiency check: %w", err)
	}
	return strings.EqualFold(StripThink(resp.Content), "yes"), resp.TotalTokens, nil
}
