package ingest

import (
	"log/slog"

	"github.com/fathomhq/fathom"
)

// Option configures an Ingestor.
type Option func(*Ingestor)

// WithChunker sets the chunker used for splitting documents.
func WithChunker(c Chunker) Option {
	return func(ing *Ingestor) { ing.chunker = c }
}

// WithExtractor registers an Extractor for a given ContentType, replacing
// the built-in one.
func WithExtractor(ct ContentType, e Extractor) Option {
	return func(ing *Ingestor) { ing.extractors[ct] = e }
}

// WithCrawler sets the crawler used by LoadWebsite.
func WithCrawler(c Crawler) Option {
	return func(ing *Ingestor) { ing.crawler = c }
}

// WithBatchSize sets the number of chunks per embed and insert batch
// (default 256).
func WithBatchSize(n int) Option {
	return func(ing *Ingestor) {
		if n > 0 {
			ing.batchSize = n
		}
	}
}

// WithWindow sets how many bytes of surrounding text each chunk carries in
// its wider-text metadata on each side (default 300). Zero disables the
// expansion; chunks then carry only their own text.
func WithWindow(n int) Option {
	return func(ing *Ingestor) { ing.window = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(ing *Ingestor) {
		if l != nil {
			ing.logger = l
		}
	}
}

// WithContextualEnrichment enables LLM contextual enrichment: each chunk is
// sent to the provider alongside its document and the returned context is
// prepended to the chunk text before embedding.
func WithContextualEnrichment(p fathom.Provider) Option {
	return func(ing *Ingestor) { ing.enrich = p }
}

// WithContextWorkers sets the number of concurrent enrichment workers
// (default 4).
func WithContextWorkers(n int) Option {
	return func(ing *Ingestor) {
		if n > 0 {
			ing.enrichWorkers = n
		}
	}
}
