package fathom

import (
	"context"
	"fmt"
	"log/slog"
)

// CollectionRouter picks the vector collections a query should hit. With
// more than one collection visible it asks the LLM to match descriptions
// against the question; the store's default collection and collections
// without descriptions are always included.
type CollectionRouter struct {
	llm    Provider
	db     VectorDB
	logger *slog.Logger
}

func NewCollectionRouter(llm Provider, db VectorDB, opts ...SearcherOption) *CollectionRouter {
	cfg := defaultSearcherConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &CollectionRouter{llm: llm, db: db, logger: cfg.logger}
}

// Route returns the collection names to search for query, restricted to
// collections visible at the given embedding dimension, plus the LLM tokens
// spent choosing them. Zero visible collections routes nowhere; exactly one
// routes there without an LLM call.
func (cr *CollectionRouter) Route(ctx context.Context, query string, dim int) ([]string, int, error) {
	infos, err := cr.db.ListCollections(ctx, dim)
	if err != nil {
		return nil, 0, fmt.Errorf("list collections: %w", err)
	}
	if len(infos) == 0 {
		cr.logger.Warn("no collections visible", "dim", dim)
		return []string{}, 0, nil
	}
	if len(infos) == 1 {
		return []string{infos[0].Name}, 0, nil
	}

	resp, err := cr.llm.Chat(ctx, UserMessage(collectionRoutePrompt(query, infos)))
	if err != nil {
		return nil, 0, fmt.Errorf("route collections: %w", err)
	}
	selected, err := ParseStringList(resp.Content)
	if err != nil {
		return nil, resp.TotalTokens, fmt.Errorf("route collections: %w", err)
	}

	def := cr.db.DefaultCollection()
	for _, info := range infos {
		if info.Description == "" {
			selected = append(selected, info.Name)
		}
		if info.Name == def {
			selected = append(selected, info.Name)
		}
	}
	selected = dedupeStrings(selected)
	cr.logger.Debug("routed query", "query", query, "collections", selected)
	return selected, resp.TotalTokens, nil
}

// routeOrAll routes the query when route is set, otherwise lists every
// visible collection without spending tokens.
func routeOrAll(ctx context.Context, cr *CollectionRouter, route bool, query string, dim int) ([]string, int, error) {
	if route {
		return cr.Route(ctx, query, dim)
	}
	names, err := cr.allCollections(ctx, dim)
	return names, 0, err
}

// allCollections lists every collection visible at dim, for searchers
// configured to skip routing.
func (cr *CollectionRouter) allCollections(ctx context.Context, dim int) ([]string, error) {
	infos, err := cr.db.ListCollections(ctx, dim)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = info.Name
	}
	return names, nil
}

func dedupeStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
