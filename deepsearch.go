package fathom

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// DeepSearch answers broad questions by decomposing them into sub-queries,
// retrieving and judging chunks for each in parallel, and reflecting on what
// is still missing across bounded iterations.
type DeepSearch struct {
	llm      Provider
	embedder EmbeddingProvider
	db       VectorDB
	router   *CollectionRouter
	cfg      searcherConfig
}

func NewDeepSearch(llm Provider, embedder EmbeddingProvider, db VectorDB, opts ...SearcherOption) *DeepSearch {
	cfg := defaultSearcherConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &DeepSearch{
		llm:      llm,
		embedder: embedder,
		db:       db,
		router:   &CollectionRouter{llm: llm, db: db, logger: cfg.logger},
		cfg:      cfg,
	}
}

var _ Searcher = (*DeepSearch)(nil)

func (d *DeepSearch) Name() string { return "deep-search" }

func (d *DeepSearch) Description() string {
	return "This agent is suitable for handling general and simple queries, such as given a topic and then writing a report, survey, or article."
}

// Retrieve decomposes the query, then iterates: fan out one retrieval task
// per active sub-query, judge and accumulate the hits, and reflect for gap
// queries until none remain or the iteration cap is hit. Token counts are
// reported on the output even when an error cuts the request short.
func (d *DeepSearch) Retrieve(ctx context.Context, query string, opts ...QueryOption) (RetrievalOutput, error) {
	o := resolveQueryOptions(d.cfg.maxIter, opts)
	var out RetrievalOutput

	subQueries, n, err := d.generateSubQueries(ctx, query)
	out.Tokens += n
	if err != nil {
		return out, err
	}
	if len(subQueries) == 0 {
		d.cfg.logger.Info("llm produced no sub-queries", "query", query)
		return out, nil
	}
	d.cfg.logger.Debug("decomposed query", "query", query, "sub_queries", subQueries)
	out.SubQueries = append(out.SubQueries, subQueries...)

	var accumulated []RetrievalResult
	active := subQueries
	for iter := 0; iter < o.maxIter; iter++ {
		judgeQueries := append([]string{query}, out.SubQueries...)
		results, n, err := d.searchIteration(ctx, active, judgeQueries)
		out.Tokens += n
		if err != nil {
			out.Results = DedupeResults(accumulated)
			return out, err
		}
		accumulated = append(accumulated, results...)

		if iter == o.maxIter-1 {
			d.cfg.logger.Debug("iteration cap reached", "iterations", o.maxIter)
			break
		}

		gap, n, err := d.reflect(ctx, query, out.SubQueries, accumulated)
		out.Tokens += n
		if err != nil {
			out.Results = DedupeResults(accumulated)
			return out, err
		}
		if len(gap) == 0 {
			d.cfg.logger.Debug("no gap queries, stopping", "iteration", iter+1)
			break
		}
		d.cfg.logger.Debug("gap queries for next iteration", "queries", gap)
		active = gap
		out.SubQueries = append(out.SubQueries, gap...)
	}

	out.Results = DedupeResults(accumulated)
	return out, nil
}

// Query retrieves and then summarizes the accepted chunks into an answer,
// preferring each chunk's sentence-window context when available.
func (d *DeepSearch) Query(ctx context.Context, query string, opts ...QueryOption) (Answer, error) {
	out, err := d.Retrieve(ctx, query, opts...)
	if err != nil {
		return Answer{Tokens: out.Tokens}, err
	}
	if len(out.Results) == 0 {
		return Answer{Text: noInfoAnswer(query), Tokens: out.Tokens}, nil
	}

	chunkTexts := make([]string, len(out.Results))
	for i, r := range out.Results {
		if d.cfg.textWindow {
			chunkTexts[i] = r.WiderText()
		} else {
			chunkTexts[i] = r.Text
		}
	}
	d.cfg.logger.Debug("summarizing", "chunks", len(out.Results))
	resp, err := d.llm.Chat(ctx, UserMessage(summaryPrompt(query, out.SubQueries, formatChunkTexts(chunkTexts))))
	if err != nil {
		return Answer{Results: out.Results, Tokens: out.Tokens}, fmt.Errorf("summarize: %w", err)
	}
	return Answer{
		Text:    resp.Content,
		Results: out.Results,
		Tokens:  out.Tokens + resp.TotalTokens,
	}, nil
}

func (d *DeepSearch) generateSubQueries(ctx context.Context, originalQuery string) ([]string, int, error) {
	resp, err := d.llm.Chat(ctx, UserMessage(subQueryPrompt(originalQuery)))
	if err != nil {
		return nil, 0, fmt.Errorf("generate sub-queries: %w", err)
	}
	queries, err := ParseStringList(resp.Content)
	if err != nil {
		return nil, resp.TotalTokens, fmt.Errorf("generate sub-queries: %w", err)
	}
	return queries, resp.TotalTokens, nil
}

// searchIteration runs one retrieval task per active sub-query, bounded by
// the configured concurrency. All launched tasks complete before it returns;
// tokens from completed calls are summed even when a task fails.
func (d *DeepSearch) searchIteration(ctx context.Context, active, judgeQueries []string) ([]RetrievalResult, int, error) {
	concurrency := d.cfg.concurrency
	if concurrency <= 0 || concurrency > len(active) {
		concurrency = len(active)
	}

	type taskResult struct {
		results []RetrievalResult
		tokens  int
		err     error
	}
	slots := make([]taskResult, len(active))
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	var cancelled bool
	for i, subQuery := range active {
		select {
		case <-ctx.Done():
			cancelled = true
		case sem <- struct{}{}:
		}
		if cancelled {
			break
		}
		wg.Add(1)
		go func(i int, subQuery string) {
			defer wg.Done()
			defer func() { <-sem }()
			results, tokens, err := d.searchChunks(ctx, subQuery, judgeQueries)
			slots[i] = taskResult{results: results, tokens: tokens, err: err}
		}(i, subQuery)
	}
	wg.Wait()

	var merged []RetrievalResult
	tokens := 0
	var firstErr error
	for _, s := range slots {
		tokens += s.tokens
		merged = append(merged, s.results...)
		if s.err != nil && firstErr == nil {
			firstErr = s.err
		}
	}
	if cancelled && firstErr == nil {
		firstErr = ctx.Err()
	}
	return DedupeResults(merged), tokens, firstErr
}

// searchChunks runs one retrieval task: route the sub-query, embed it,
// search each selected collection, and keep the hits the judge accepts for
// any of judgeQueries. A failed judge call drops the hit, not the task.
func (d *DeepSearch) searchChunks(ctx context.Context, query string, judgeQueries []string) ([]RetrievalResult, int, error) {
	collections, tokens, err := routeOrAll(ctx, d.router, d.cfg.routeCollection, query, d.embedder.Dimensions())
	if err != nil {
		return nil, tokens, err
	}

	vector, err := d.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, tokens, fmt.Errorf("embed %q: %w", query, err)
	}

	var accepted []RetrievalResult
	for _, collection := range collections {
		results, err := d.db.Search(ctx, collection, vector, d.cfg.topK)
		if err != nil {
			return accepted, tokens, fmt.Errorf("search %s: %w", collection, err)
		}
		if len(results) == 0 {
			d.cfg.logger.Debug("no chunks found", "collection", collection, "query", query)
			continue
		}
		acceptedHere := 0
		for _, result := range results {
			resp, err := d.llm.Chat(ctx, UserMessage(rerankPrompt(judgeQueries, result.Text)))
			if err != nil {
				if ctx.Err() != nil {
					return accepted, tokens, ctx.Err()
				}
				d.cfg.logger.Warn("judge call failed, dropping chunk", "collection", collection, "error", err)
				continue
			}
			tokens += resp.TotalTokens
			reply := StripThink(resp.Content)
			if strings.Contains(reply, "YES") && !strings.Contains(reply, "NO") {
				accepted = append(accepted, result)
				acceptedHere++
			}
		}
		d.cfg.logger.Debug("judged chunks", "collection", collection, "accepted", acceptedHere, "returned", len(results))
	}
	return accepted, tokens, nil
}

// reflect asks the LLM which gaps remain after this iteration and returns up
// to three follow-up queries, or none when the context is judged complete.
func (d *DeepSearch) reflect(ctx context.Context, query string, subQueries []string, results []RetrievalResult) ([]string, int, error) {
	chunkStr := "NO RELATED CHUNKS FOUND."
	if len(results) > 0 {
		texts := make([]string, len(results))
		for i, r := range results {
			texts[i] = r.Text
		}
		chunkStr = formatChunkTexts(texts)
	}
	resp, err := d.llm.Chat(ctx, UserMessage(reflectPrompt(query, subQueries, chunkStr)))
	if err != nil {
		return nil, 0, fmt.Errorf("reflect: %w", err)
	}
	gap, err := ParseStringList(resp.Content)
	if err != nil {
		return nil, resp.TotalTokens, fmt.Errorf("reflect: %w", err)
	}
	return gap, resp.TotalTokens, nil
}

func noInfoAnswer(query string) string {
	return fmt.Sprintf("No relevant information found for query '%s'.", query)
}
