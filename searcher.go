package fathom

import (
	"context"
	"log/slog"
)

// Searcher is one retrieval strategy over the vector store. Implementations
// are process-scoped, hold only immutable configuration after construction,
// and are safe for concurrent use.
type Searcher interface {
	// Name identifies the searcher in logs and routing output.
	Name() string
	// Description is the natural-language summary the agent router
	// chooses by.
	Description() string
	// Retrieve gathers relevant results for the query without
	// synthesizing an answer. The token count covers every LLM call made
	// on the way and is reported even when an error is returned.
	Retrieve(ctx context.Context, query string, opts ...QueryOption) (RetrievalOutput, error)
	// Query retrieves and then synthesizes a final answer with citations.
	Query(ctx context.Context, query string, opts ...QueryOption) (Answer, error)
}

// DefaultMaxIter bounds searcher iterations/hops unless configured or
// overridden per call.
const DefaultMaxIter = 3

// QueryOption tunes a single Retrieve/Query call.
type QueryOption func(*queryOptions)

type queryOptions struct {
	maxIter int
}

// WithMaxIter overrides the searcher's iteration or hop cap for this call.
// Values below 1 are ignored.
func WithMaxIter(n int) QueryOption {
	return func(o *queryOptions) {
		if n >= 1 {
			o.maxIter = n
		}
	}
}

func resolveQueryOptions(defaultMaxIter int, opts []QueryOption) queryOptions {
	o := queryOptions{maxIter: defaultMaxIter}
	for _, opt := range opts {
		opt(&o)
	}
	if o.maxIter < 1 {
		o.maxIter = 1
	}
	return o
}

// searcherConfig is shared by the concrete searchers; each applies the
// subset that matters to it.
type searcherConfig struct {
	maxIter         int
	topK            int
	routeCollection bool
	textWindow      bool
	earlyStopping   bool
	concurrency     int
	logger          *slog.Logger
}

func defaultSearcherConfig() searcherConfig {
	return searcherConfig{
		maxIter:         DefaultMaxIter,
		topK:            SearchTopK,
		routeCollection: true,
		textWindow:      true,
		logger:          nopLogger,
	}
}

// SearcherOption configures a searcher at construction time.
type SearcherOption func(*searcherConfig)

// MaxIter sets the default iteration/hop cap. Callers can still override it
// per call with WithMaxIter.
func MaxIter(n int) SearcherOption {
	return func(c *searcherConfig) {
		if n >= 1 {
			c.maxIter = n
		}
	}
}

// TopK sets the per-collection search depth.
func TopK(n int) SearcherOption {
	return func(c *searcherConfig) {
		if n >= 1 {
			c.topK = n
		}
	}
}

// DisableRouting makes the searcher query every collection instead of
// consulting the collection router.
func DisableRouting() SearcherOption {
	return func(c *searcherConfig) { c.routeCollection = false }
}

// DisableTextWindow makes summarization use chunk texts verbatim instead of
// preferring their sentence-window context.
func DisableTextWindow() SearcherOption {
	return func(c *searcherConfig) { c.textWindow = false }
}

// EarlyStopping lets the chain searcher stop hopping once the LLM judges the
// gathered context sufficient.
func EarlyStopping(enabled bool) SearcherOption {
	return func(c *searcherConfig) { c.earlyStopping = enabled }
}

// Concurrency caps parallel retrieval tasks (and with them, outbound LLM
// calls) within one deep-search iteration. Zero means one task per active
// sub-query.
func Concurrency(n int) SearcherOption {
	return func(c *searcherConfig) { c.concurrency = n }
}

// WithLogger sets a structured logger. The default discards all output.
func WithLogger(l *slog.Logger) SearcherOption {
	return func(c *searcherConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// nopLogger discards all log output.
var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
