// Package qdrant implements fathom.VectorDB backed by a Qdrant server,
// reached over its gRPC interface.
//
// Chunks are stored as points whose payload carries the text, reference and
// metadata fields. Qdrant has no native collection description, so
// ListCollections reports each collection's name as its description.
package qdrant

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/qdrant/go-client/qdrant"

	fathom "github.com/fathomhq/fathom"
)

const (
	payloadText      = "text"
	payloadReference = "reference"
	payloadMetadata  = "metadata"

	insertBatch = 256
)

// Config holds the connection settings for a Qdrant server.
type Config struct {
	// Host is the Qdrant server hostname. Defaults to "localhost".
	Host string

	// Port is the gRPC port. Defaults to 6334.
	Port int

	// APIKey authenticates against Qdrant Cloud. Optional.
	APIKey string

	// UseTLS enables TLS for the connection.
	UseTLS bool
}

// StoreOption configures a qdrant Store.
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

// Store is a Qdrant-backed vector store.
type Store struct {
	client *qdrant.Client
	def    string
	logger *slog.Logger
}

var _ fathom.VectorDB = (*Store)(nil)

// New connects to the Qdrant server described by cfg.
func New(cfg Config, opts ...StoreOption) (*Store, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("connect qdrant %s:%d: %w", cfg.Host, cfg.Port, err)
	}

	s := &Store{
		client: client,
		def:    fathom.DefaultCollection,
		logger: nopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger.Debug("qdrant: connected", "host", cfg.Host, "port", cfg.Port)
	return s, nil
}

// DefaultCollection returns the collection used when none is named.
func (s *Store) DefaultCollection() string { return s.def }

func (s *Store) collection(name string) string {
	if name == "" {
		return s.def
	}
	return name
}

// InitCollection ensures a collection with the given dimensionality exists.
// With force set, an existing collection is dropped and recreated. The
// description is accepted for interface parity but not stored; Qdrant has
// no field for it.
func (s *Store) InitCollection(ctx context.Context, dim int, collection, description string, force bool) error {
	collection = s.collection(collection)
	start := time.Now()
	s.logger.Debug("qdrant: init collection", "collection", collection, "dim", dim, "force", force)

	exists, err := s.client.CollectionExists(ctx, collection)
	if err != nil {
		return fmt.Errorf("check collection %s: %w", collection, err)
	}
	if force && exists {
		if err := s.client.DeleteCollection(ctx, collection); err != nil {
			return fmt.Errorf("drop collection %s: %w", collection, err)
		}
		exists = false
	}
	if !exists {
		err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dim),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			s.logger.Error("qdrant: init collection failed", "collection", collection, "error", err)
			return fmt.Errorf("create collection %s: %w", collection, err)
		}
	}
	s.logger.Debug("qdrant: init collection ok", "collection", collection, "duration", time.Since(start))
	return nil
}

// Insert upserts chunks into the collection in batches.
func (s *Store) Insert(ctx context.Context, collection string, chunks []fathom.Chunk) error {
	collection = s.collection(collection)
	start := time.Now()
	s.logger.Debug("qdrant: insert", "collection", collection, "chunks", len(chunks))

	for i := 0; i < len(chunks); i += insertBatch {
		end := min(i+insertBatch, len(chunks))

		points := make([]*qdrant.PointStruct, 0, end-i)
		for _, chunk := range chunks[i:end] {
			payload := map[string]*qdrant.Value{
				payloadText:      {Kind: &qdrant.Value_StringValue{StringValue: chunk.Text}},
				payloadReference: {Kind: &qdrant.Value_StringValue{StringValue: chunk.Reference}},
			}
			if len(chunk.Metadata) > 0 {
				val, err := qdrant.NewValue(chunk.Metadata)
				if err != nil {
					return fmt.Errorf("convert metadata: %w", err)
				}
				payload[payloadMetadata] = val
			}
			points = append(points, &qdrant.PointStruct{
				Id:      qdrant.NewID(fathom.NewID()),
				Vectors: qdrant.NewVectors(chunk.Embedding...),
				Payload: payload,
			})
		}

		if _, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: collection,
			Points:         points,
		}); err != nil {
			s.logger.Error("qdrant: insert failed", "collection", collection, "error", err)
			return fmt.Errorf("upsert points: %w", err)
		}
	}
	s.logger.Debug("qdrant: insert ok", "collection", collection, "chunks", len(chunks), "duration", time.Since(start))
	return nil
}

// Search returns the topK chunks most similar to the query vector.
func (s *Store) Search(ctx context.Context, collection string, vector []float32, topK int) ([]fathom.RetrievalResult, error) {
	collection = s.collection(collection)
	start := time.Now()
	s.logger.Debug("qdrant: search", "collection", collection, "top_k", topK, "embedding_dim", len(vector))

	resp, err := s.client.GetPointsClient().Search(ctx, &qdrant.SearchPoints{
		CollectionName: collection,
		Vector:         vector,
		Limit:          uint64(topK),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		s.logger.Error("qdrant: search failed", "collection", collection, "error", err)
		return nil, fmt.Errorf("search points: %w", err)
	}

	results := make([]fathom.RetrievalResult, 0, len(resp.Result))
	for _, point := range resp.Result {
		results = append(results, pointToResult(point))
	}
	s.logger.Debug("qdrant: search ok", "collection", collection, "returned", len(results), "duration", time.Since(start))
	return results, nil
}

// ListCollections lists collections on the server. With dim > 0, only
// collections of that dimensionality are returned.
func (s *Store) ListCollections(ctx context.Context, dim int) ([]fathom.CollectionInfo, error) {
	names, err := s.client.ListCollections(ctx)
	if err != nil {
		s.logger.Error("qdrant: list collections failed", "error", err)
		return nil, fmt.Errorf("list collections: %w", err)
	}

	infos := make([]fathom.CollectionInfo, 0, len(names))
	for _, name := range names {
		if dim > 0 {
			info, err := s.client.GetCollectionInfo(ctx, name)
			if err != nil {
				return nil, fmt.Errorf("get collection %s: %w", name, err)
			}
			if info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize() != uint64(dim) {
				continue
			}
		}
		infos = append(infos, fathom.CollectionInfo{Name: name, Description: name})
	}
	return infos, nil
}

// Clear drops the collection. Missing collections are ignored.
func (s *Store) Clear(ctx context.Context, collection string) error {
	collection = s.collection(collection)
	s.logger.Debug("qdrant: clear", "collection", collection)

	exists, err := s.client.CollectionExists(ctx, collection)
	if err != nil {
		return fmt.Errorf("check collection %s: %w", collection, err)
	}
	if !exists {
		return nil
	}
	if err := s.client.DeleteCollection(ctx, collection); err != nil {
		s.logger.Error("qdrant: clear failed", "collection", collection, "error", err)
		return fmt.Errorf("drop collection %s: %w", collection, err)
	}
	return nil
}

// Close releases the underlying gRPC connection.
func (s *Store) Close() error {
	return s.client.Close()
}

func pointToResult(point *qdrant.ScoredPoint) fathom.RetrievalResult {
	r := fathom.RetrievalResult{Score: point.Score}

	if point.Vectors != nil {
		if out := point.Vectors.GetVector(); out != nil {
			if dense, ok := out.Vector.(*qdrant.VectorOutput_Dense); ok && dense.Dense != nil {
				r.Embedding = dense.Dense.Data
			}
		}
	}

	for key, value := range point.Payload {
		switch key {
		case payloadText:
			r.Text = value.GetStringValue()
		case payloadReference:
			r.Reference = value.GetStringValue()
		case payloadMetadata:
			if m, ok := valueToAny(value).(map[string]any); ok {
				r.Metadata = m
			}
		}
	}
	return r
}

// valueToAny converts a Qdrant payload value back into plain Go data.
func valueToAny(value *qdrant.Value) any {
	switch v := value.GetKind().(type) {
	case *qdrant.Value_BoolValue:
		return v.BoolValue
	case *qdrant.Value_IntegerValue:
		return v.IntegerValue
	case *qdrant.Value_DoubleValue:
		return v.DoubleValue
	case *qdrant.Value_StringValue:
		return v.StringValue
	case *qdrant.Value_ListValue:
		values := v.ListValue.GetValues()
		list := make([]any, len(values))
		for i, item := range values {
			list[i] = valueToAny(item)
		}
		return list
	case *qdrant.Value_StructValue:
		fields := v.StructValue.GetFields()
		m := make(map[string]any, len(fields))
		for key, item := range fields {
			m[key] = valueToAny(item)
		}
		return m
	default:
		return nil
	}
}

func nopLogger() *slog.Logger {
	return slog.New(discardHandler{})
}

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (discardHandler) WithAttrs([]slog.Attr) slog.Handler        { return discardHandler{} }
func (discardHandler) WithGroup(string) slog.Handler             { return discardHandler{} }
