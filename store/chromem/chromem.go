// Package chromem implements fathom.VectorDB using chromem-go, an embedded
// pure-Go vector database with optional gob persistence. It needs no
// external service, which makes it the default backend for local use.
//
// chromem-go keeps collection metadata private, so the store maintains its
// own registry of collection descriptions and embedding dimensions. With
// persistence enabled the registry lives in collections.json next to the
// chromem data.
package chromem

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/philippgille/chromem-go"

	fathom "github.com/fathomhq/fathom"
)

// metaReference is the reserved chromem metadata key carrying a chunk's
// source reference.
const metaReference = "_reference"

const registryFile = "collections.json"

// StoreOption configures a chromem Store.
type StoreOption func(*Store)

// WithLogger sets a structured logger for the store. If not set, no logs
// are emitted.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// WithDefaultCollection overrides the collection used when a caller passes
// an empty collection name.
func WithDefaultCollection(name string) StoreOption {
	return func(s *Store) {
		if name != "" {
			s.def = name
		}
	}
}

// WithCompression enables gzip compression of persisted collection data.
func WithCompression(on bool) StoreOption {
	return func(s *Store) { s.compress = on }
}

type collectionMeta struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Dim         int    `json:"dim"`
}

// Store implements fathom.VectorDB backed by chromem-go.
type Store struct {
	db       *chromem.DB
	path     string
	compress bool
	def      string
	logger   *slog.Logger
	embedFn  chromem.EmbeddingFunc

	mu    sync.RWMutex
	colls []collectionMeta
}

var _ fathom.VectorDB = (*Store)(nil)

var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// New creates a Store. path is the persistence directory; an empty path
// keeps everything in memory.
func New(path string, opts ...StoreOption) (*Store, error) {
	s := &Store{path: path, def: fathom.DefaultCollection, logger: nopLogger}
	for _, o := range opts {
		o(s)
	}

	// Vectors arrive pre-computed; chromem must never embed on its own.
	s.embedFn = func(ctx context.Context, text string) ([]float32, error) {
		return nil, errors.New("chromem: embedding requested but vectors are pre-computed")
	}

	if path == "" {
		s.db = chromem.NewDB()
		s.logger.Debug("chromem: in-memory store created")
		return s, nil
	}

	db, err := chromem.NewPersistentDB(path, s.compress)
	if err != nil {
		return nil, fmt.Errorf("chromem: open persistent db: %w", err)
	}
	s.db = db

	if err := s.loadRegistry(); err != nil {
		return nil, err
	}
	s.logger.Debug("chromem: persistent store opened", "path", path, "collections", len(s.colls))
	return s, nil
}

// DefaultCollection returns the collection used when a caller passes an
// empty name.
func (s *Store) DefaultCollection() string { return s.def }

func (s *Store) collection(name string) string {
	if name == "" {
		return s.def
	}
	return name
}

// InitCollection creates the collection if missing. force drops and
// recreates an existing collection.
func (s *Store) InitCollection(ctx context.Context, dim int, collection, description string, force bool) error {
	collection = s.collection(collection)
	s.logger.Debug("chromem: init collection", "collection", collection, "dim", dim, "force", force)

	s.mu.Lock()
	defer s.mu.Unlock()

	if force {
		if c := s.db.GetCollection(collection, s.embedFn); c != nil {
			if err := s.db.DeleteCollection(collection); err != nil {
				return fmt.Errorf("chromem: drop collection: %w", err)
			}
		}
		s.removeMetaLocked(collection)
	}

	if _, err := s.db.GetOrCreateCollection(collection, map[string]string{"description": description}, s.embedFn); err != nil {
		return fmt.Errorf("chromem: create collection: %w", err)
	}

	if s.findMetaLocked(collection) == nil {
		s.colls = append(s.colls, collectionMeta{Name: collection, Description: description, Dim: dim})
		if err := s.saveRegistryLocked(); err != nil {
			return err
		}
	}
	return nil
}

// Insert writes chunks (with embeddings) into the collection.
func (s *Store) Insert(ctx context.Context, collection string, chunks []fathom.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	collection = s.collection(collection)
	s.logger.Debug("chromem: insert", "collection", collection, "chunks", len(chunks))

	col, err := s.db.GetOrCreateCollection(collection, nil, s.embedFn)
	if err != nil {
		return fmt.Errorf("chromem: get collection: %w", err)
	}

	docs := make([]chromem.Document, len(chunks))
	for i, chunk := range chunks {
		meta := make(map[string]string, len(chunk.Metadata)+1)
		for k, v := range chunk.Metadata {
			meta[k] = fmt.Sprint(v)
		}
		if chunk.Reference != "" {
			meta[metaReference] = chunk.Reference
		}
		docs[i] = chromem.Document{
			ID:        fathom.NewID(),
			Content:   chunk.Text,
			Metadata:  meta,
			Embedding: chunk.Embedding,
		}
	}

	if err := col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("chromem: add documents: %w", err)
	}
	return nil
}

// Search returns the topK nearest chunks to vector, best first. An unknown
// collection yields no results.
func (s *Store) Search(ctx context.Context, collection string, vector []float32, topK int) ([]fathom.RetrievalResult, error) {
	collection = s.collection(collection)

	col := s.db.GetCollection(collection, s.embedFn)
	if col == nil {
		return nil, nil
	}

	// chromem rejects nResults beyond the document count.
	count := col.Count()
	if count == 0 {
		return nil, nil
	}
	if topK > count {
		topK = count
	}

	found, err := col.QueryEmbedding(ctx, vector, topK, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem: query: %w", err)
	}

	results := make([]fathom.RetrievalResult, len(found))
	for i, r := range found {
		var reference string
		var meta map[string]any
		if len(r.Metadata) > 0 {
			meta = make(map[string]any, len(r.Metadata))
			for k, v := range r.Metadata {
				if k == metaReference {
					reference = v
					continue
				}
				meta[k] = v
			}
			if len(meta) == 0 {
				meta = nil
			}
		}
		results[i] = fathom.RetrievalResult{
			Embedding: r.Embedding,
			Text:      r.Content,
			Reference: reference,
			Metadata:  meta,
			Score:     r.Similarity,
		}
	}
	return results, nil
}

// ListCollections reports collections matching the given embedding
// dimension, in creation order. dim <= 0 lists all.
func (s *Store) ListCollections(ctx context.Context, dim int) ([]fathom.CollectionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var infos []fathom.CollectionInfo
	for _, m := range s.colls {
		if dim > 0 && m.Dim != dim {
			continue
		}
		infos = append(infos, fathom.CollectionInfo{Name: m.Name, Description: m.Description})
	}
	return infos, nil
}

// Clear drops the collection.
func (s *Store) Clear(ctx context.Context, collection string) error {
	collection = s.collection(collection)
	s.logger.Debug("chromem: clear", "collection", collection)

	s.mu.Lock()
	defer s.mu.Unlock()

	if c := s.db.GetCollection(collection, s.embedFn); c != nil {
		if err := s.db.DeleteCollection(collection); err != nil {
			return fmt.Errorf("chromem: delete collection: %w", err)
		}
	}
	s.removeMetaLocked(collection)
	return s.saveRegistryLocked()
}

func (s *Store) findMetaLocked(name string) *collectionMeta {
	for i := range s.colls {
		if s.colls[i].Name == name {
			return &s.colls[i]
		}
	}
	return nil
}

func (s *Store) removeMetaLocked(name string) {
	for i := range s.colls {
		if s.colls[i].Name == name {
			s.colls = append(s.colls[:i], s.colls[i+1:]...)
			return
		}
	}
}

func (s *Store) loadRegistry() error {
	data, err := os.ReadFile(filepath.Join(s.path, registryFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("chromem: read registry: %w", err)
	}
	if err := json.Unmarshal(data, &s.colls); err != nil {
		return fmt.Errorf("chromem: parse registry: %w", err)
	}
	return nil
}

func (s *Store) saveRegistryLocked() error {
	if s.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(s.colls, "", "  ")
	if err != nil {
		return fmt.Errorf("chromem: encode registry: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.path, registryFile), data, 0o644); err != nil {
		return fmt.Errorf("chromem: write registry: %w", err)
	}
	return nil
}
