// Package ingest loads local files and websites into a vector store:
// extract text, split into chunks, embed, insert. Each chunk carries a
// wider window of its surrounding text in metadata so retrieval can hand
// the LLM more context than was embedded.
package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fathomhq/fathom"
)

// loadableExtensions are the file extensions picked up when loading a
// directory. Explicit file paths are always loaded regardless of extension.
var loadableExtensions = map[string]bool{
	"txt": true, "md": true, "markdown": true,
	"html": true, "htm": true,
	"csv": true, "json": true, "jsonl": true, "ndjson": true,
	"docx": true, "pdf": true,
}

// maxEnrichDocBytes caps the document text included in each contextual
// enrichment prompt (32 KB).
const maxEnrichDocBytes = 32 << 10

var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// LoadOptions controls where loaded chunks go.
type LoadOptions struct {
	// Collection is the target collection. Empty means the store default.
	// Spaces and dashes are normalized to underscores.
	Collection string

	// Description is stored with the collection when it is created.
	Description string

	// Force drops and recreates the collection before loading.
	Force bool
}

// Ingestor provides end-to-end ingestion: extract, chunk, embed, insert.
type Ingestor struct {
	db         fathom.VectorDB
	embedding  fathom.EmbeddingProvider
	chunker    Chunker
	extractors map[ContentType]Extractor
	crawler    Crawler
	batchSize  int
	window     int
	logger     *slog.Logger

	enrich        fathom.Provider
	enrichWorkers int
}

// NewIngestor creates an Ingestor with sensible defaults: recursive
// chunking, extractors for every supported content type, and a readability
// crawler for websites.
func NewIngestor(db fathom.VectorDB, emb fathom.EmbeddingProvider, opts ...Option) *Ingestor {
	ing := &Ingestor{
		db:        db,
		embedding: emb,
		chunker:   NewRecursiveChunker(),
		extractors: map[ContentType]Extractor{
			TypePlainText: PlainTextExtractor{},
			TypeHTML:      HTMLExtractor{},
			TypeMarkdown:  NewMarkdownExtractor(),
			TypeCSV:       NewCSVExtractor(),
			TypeJSON:      NewJSONExtractor(),
			TypeDOCX:      NewDOCXExtractor(),
			TypePDF:       NewPDFExtractor(),
		},
		batchSize:     256,
		window:        300,
		logger:        nopLogger,
		enrichWorkers: 4,
	}
	for _, o := range opts {
		o(ing)
	}
	if ing.crawler == nil {
		ing.crawler = NewReadabilityCrawler(WithCrawlerLogger(ing.logger))
	}
	return ing
}

// LoadFiles loads local files or directories into the collection and returns
// the number of chunks inserted. Directories are walked recursively, picking
// up files with supported extensions.
func (ing *Ingestor) LoadFiles(ctx context.Context, paths []string, opts LoadOptions) (int, error) {
	collection, err := ing.prepareCollection(ctx, opts)
	if err != nil {
		return 0, err
	}

	var docs []sourceDoc
	for _, p := range paths {
		ds, err := ing.loadPath(p)
		if err != nil {
			return 0, err
		}
		docs = append(docs, ds...)
	}

	return ing.ingest(ctx, collection, docs)
}

// LoadWebsite crawls the URLs and loads the page contents into the
// collection, returning the number of chunks inserted.
func (ing *Ingestor) LoadWebsite(ctx context.Context, urls []string, opts LoadOptions) (int, error) {
	collection, err := ing.prepareCollection(ctx, opts)
	if err != nil {
		return 0, err
	}

	pages, err := ing.crawler.Crawl(ctx, urls)
	if err != nil {
		return 0, fmt.Errorf("crawl: %w", err)
	}

	docs := make([]sourceDoc, len(pages))
	for i, page := range pages {
		docs[i] = sourceDoc{doc: page}
	}

	return ing.ingest(ctx, collection, docs)
}

// LoadText loads raw text into the collection under the given reference.
func (ing *Ingestor) LoadText(ctx context.Context, text, reference string, opts LoadOptions) (int, error) {
	collection, err := ing.prepareCollection(ctx, opts)
	if err != nil {
		return 0, err
	}
	doc := fathom.Document{Text: text, Reference: reference}
	return ing.ingest(ctx, collection, []sourceDoc{{doc: doc}})
}

// prepareCollection normalizes the collection name and creates the
// collection sized for the embedding model.
func (ing *Ingestor) prepareCollection(ctx context.Context, opts LoadOptions) (string, error) {
	collection := normalizeCollection(opts.Collection, ing.db.DefaultCollection())
	dim := ing.embedding.Dimensions()
	if err := ing.db.InitCollection(ctx, dim, collection, opts.Description, opts.Force); err != nil {
		return "", fmt.Errorf("init collection: %w", err)
	}
	return collection, nil
}

// normalizeCollection falls back to def for empty names and replaces spaces
// and dashes with underscores.
func normalizeCollection(name, def string) string {
	if name == "" {
		name = def
	}
	name = strings.ReplaceAll(name, " ", "_")
	name = strings.ReplaceAll(name, "-", "_")
	return name
}

// sourceDoc pairs a document with the extraction metadata for its text.
type sourceDoc struct {
	doc  fathom.Document
	meta []PageMeta
}

// loadPath loads a single file, or walks a directory collecting every file
// with a supported extension.
func (ing *Ingestor) loadPath(path string) ([]sourceDoc, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	if !info.IsDir() {
		doc, err := ing.loadFile(path)
		if err != nil {
			return nil, err
		}
		return []sourceDoc{doc}, nil
	}

	var docs []sourceDoc
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.TrimPrefix(filepath.Ext(p), ".")
		if !loadableExtensions[strings.ToLower(ext)] {
			return nil
		}
		doc, err := ing.loadFile(p)
		if err != nil {
			ing.logger.Warn("ingest: load failed", "path", p, "error", err)
			return nil
		}
		docs = append(docs, doc)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", path, err)
	}
	return docs, nil
}

// loadFile reads and extracts one file into a document.
func (ing *Ingestor) loadFile(path string) (sourceDoc, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return sourceDoc{}, fmt.Errorf("read %s: %w", path, err)
	}

	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	ct := ContentTypeFromExtension(ext)
	extractor, ok := ing.extractors[ct]
	if !ok {
		extractor = PlainTextExtractor{}
	}

	var text string
	var meta []PageMeta
	if me, ok := extractor.(MetadataExtractor); ok {
		result, err := me.ExtractWithMeta(content)
		if err != nil {
			return sourceDoc{}, fmt.Errorf("extract %s: %w", path, err)
		}
		text, meta = result.Text, result.Meta
	} else {
		text, err = extractor.Extract(content)
		if err != nil {
			return sourceDoc{}, fmt.Errorf("extract %s: %w", path, err)
		}
	}

	return sourceDoc{
		doc: fathom.Document{
			Text:      text,
			Reference: path,
			Metadata:  map[string]any{fathom.MetaTitle: filepath.Base(path)},
		},
		meta: meta,
	}, nil
}

// ingest chunks all documents, optionally enriches them, then embeds and
// inserts in batches.
func (ing *Ingestor) ingest(ctx context.Context, collection string, docs []sourceDoc) (int, error) {
	start := time.Now()

	var chunks []fathom.Chunk
	for _, sd := range docs {
		cs, err := ing.chunkDocument(ctx, sd)
		if err != nil {
			return 0, err
		}
		chunks = append(chunks, cs...)
	}
	if len(chunks) == 0 {
		ing.logger.Debug("ingest: nothing to insert", "collection", collection, "documents", len(docs))
		return 0, nil
	}

	inserted, err := ing.embedAndInsert(ctx, collection, chunks)
	if err != nil {
		return inserted, err
	}

	ing.logger.Debug("ingest: load ok",
		"collection", collection,
		"documents", len(docs),
		"chunks", inserted,
		"duration", time.Since(start))
	return inserted, nil
}

// chunkDocument splits one document into chunks carrying the document
// metadata, a wider text window, and any page or heading metadata whose
// byte range covers the chunk.
func (ing *Ingestor) chunkDocument(ctx context.Context, sd sourceDoc) ([]fathom.Chunk, error) {
	text := strings.TrimSpace(sd.doc.Text)
	if text == "" {
		return nil, nil
	}

	var pieces []string
	if cc, ok := ing.chunker.(ContextChunker); ok {
		var err error
		pieces, err = cc.ChunkContext(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("chunk %s: %w", sd.doc.Reference, err)
		}
	} else {
		pieces = ing.chunker.Chunk(text)
	}

	chunks := make([]fathom.Chunk, 0, len(pieces))
	for _, piece := range pieces {
		metadata := make(map[string]any, len(sd.doc.Metadata)+3)
		maps.Copy(metadata, sd.doc.Metadata)

		if start, end, ok := locateChunk(text, piece); ok {
			metadata[fathom.MetaWiderText] = window(text, start, end, ing.window)
			if pm, found := metaForRange(sd.meta, start, end); found {
				if pm.PageNumber > 0 {
					metadata["page"] = pm.PageNumber
				}
				if pm.Heading != "" {
					metadata["heading"] = pm.Heading
				}
			}
		}

		chunks = append(chunks, fathom.Chunk{
			Text:      piece,
			Reference: sd.doc.Reference,
			Metadata:  metadata,
		})
	}

	if ing.enrich != nil {
		docText := truncateDocText(text, maxEnrichDocBytes)
		enrichChunksWithContext(ctx, ing.enrich, chunks, docText, ing.enrichWorkers, ing.logger)
	}

	return chunks, nil
}

// metaForRange returns the first page/section metadata whose byte range
// overlaps [start, end).
func metaForRange(meta []PageMeta, start, end int) (PageMeta, bool) {
	for _, pm := range meta {
		if start < pm.EndByte && end > pm.StartByte {
			return pm, true
		}
	}
	return PageMeta{}, false
}

// embedAndInsert embeds and inserts chunks in batches of ing.batchSize.
func (ing *Ingestor) embedAndInsert(ctx context.Context, collection string, chunks []fathom.Chunk) (int, error) {
	inserted := 0
	for i := 0; i < len(chunks); i += ing.batchSize {
		end := min(i+ing.batchSize, len(chunks))
		batch := chunks[i:end]

		texts := make([]string, len(batch))
		for j, c := range batch {
			texts[j] = c.Text
		}

		embeddings, err := ing.embedding.EmbedDocuments(ctx, texts)
		if err != nil {
			return inserted, fmt.Errorf("embed batch %d-%d: %w", i, end, err)
		}
		for j := range batch {
			if j < len(embeddings) {
				batch[j].Embedding = embeddings[j]
			}
		}

		if err := ing.db.Insert(ctx, collection, batch); err != nil {
			return inserted, fmt.Errorf("insert batch %d-%d: %w", i, end, err)
		}
		inserted += len(batch)
	}
	return inserted, nil
}
