// Package sqlite implements fathom.VectorDB using pure-Go SQLite
// with in-process brute-force vector search. Zero CGO required.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	fathom "github.com/fathomhq/fathom"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// StoreOption configures a SQLite Store.
type StoreOption func(*Store)

// WithLogger sets a structured logger for the store.
// When set, the store emits debug logs for every operation including
// timing, row counts, and key parameters. If not set, no logs are emitted.
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

// Store implements fathom.VectorDB backed by a local SQLite file.
// Embeddings are stored as JSON text and vector search is done
// in-process using brute-force cosine similarity.
type Store struct {
	db     *sql.DB
	def    string
	logger *slog.Logger
}

var _ fathom.VectorDB = (*Store)(nil)

// nopLogger is a logger that discards all output.
var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// New creates a Store using a local SQLite file at dbPath and prepares its
// schema. It opens a single shared connection pool with SetMaxOpenConns(1)
// so that all goroutines serialize through one connection, eliminating
// SQLITE_BUSY errors caused by concurrent writers opening independent
// connections.
func New(dbPath string, opts ...StoreOption) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db, def: fathom.DefaultCollection, logger: nopLogger}
	for _, o := range opts {
		o(s)
	}

	tables := []string{
		`CREATE TABLE IF NOT EXISTS collections (
			name TEXT PRIMARY KEY,
			description TEXT NOT NULL DEFAULT '',
			dim INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS chunks (
			id TEXT PRIMARY KEY,
			collection TEXT NOT NULL,
			text TEXT NOT NULL,
			reference TEXT NOT NULL DEFAULT '',
			metadata TEXT,
			embedding TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_collection ON chunks(collection)`,
	}
	for _, ddl := range tables {
		if _, err := db.Exec(ddl); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: create schema: %w", err)
		}
	}

	s.logger.Debug("sqlite: store opened", "path", dbPath)
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

// InitCollection creates the collection if missing. force drops any existing
// chunks and recreates the collection row with the new description and
// dimension.
func (s *Store) InitCollection(ctx context.Context, dim int, collection, description string, force bool) error {
	start := time.Now()
	collection = s.collection(collection)
	s.logger.Debug("sqlite: init collection", "collection", collection, "dim", dim, "force", force)

	if force {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE collection = ?`, collection); err != nil {
			return fmt.Errorf("drop chunks: %w", err)
		}
		if _, err := s.db.ExecContext(ctx, `DELETE FROM collections WHERE name = ?`, collection); err != nil {
			return fmt.Errorf("drop collection: %w", err)
		}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO collections (name, description, dim, created_at) VALUES (?, ?, ?, ?)`,
		collection, description, dim, fathom.NowUnix(),
	)
	if err != nil {
		s.logger.Error("sqlite: init collection failed", "collection", collection, "error", err)
		return fmt.Errorf("init collection: %w", err)
	}
	s.logger.Debug("sqlite: init collection ok", "collection", collection, "duration", time.Since(start))
	return nil
}

// Insert writes chunks into the collection in a single transaction.
func (s *Store) Insert(ctx context.Context, collection string, chunks []fathom.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	start := time.Now()
	collection = s.collection(collection)
	s.logger.Debug("sqlite: insert", "collection", collection, "chunks", len(chunks))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, chunk := range chunks {
		var metaJSON *string
		if len(chunk.Metadata) > 0 {
			data, _ := json.Marshal(chunk.Metadata)
			v := string(data)
			metaJSON = &v
		}
		_, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO chunks (id, collection, text, reference, metadata, embedding)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			fathom.NewID(), collection, chunk.Text, chunk.Reference, metaJSON, serializeEmbedding(chunk.Embedding),
		)
		if err != nil {
			s.logger.Error("sqlite: insert chunk failed", "collection", collection, "error", err)
			return fmt.Errorf("insert chunk: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		s.logger.Error("sqlite: insert commit failed", "collection", collection, "error", err)
		return fmt.Errorf("commit tx: %w", err)
	}
	s.logger.Debug("sqlite: insert ok", "collection", collection, "chunks", len(chunks), "duration", time.Since(start))
	return nil
}

// Search performs brute-force cosine similarity search over the collection's
// chunks and returns the topK best matches, best first.
func (s *Store) Search(ctx context.Context, collection string, vector []float32, topK int) ([]fathom.RetrievalResult, error) {
	start := time.Now()
	collection = s.collection(collection)
	s.logger.Debug("sqlite: search", "collection", collection, "top_k", topK, "embedding_dim", len(vector))

	rows, err := s.db.QueryContext(ctx,
		`SELECT text, reference, metadata, embedding FROM chunks WHERE collection = ?`, collection)
	if err != nil {
		s.logger.Error("sqlite: search failed", "collection", collection, "error", err)
		return nil, fmt.Errorf("search: %w", err)
	}
	defer rows.Close()

	var results []fathom.RetrievalResult
	scanned := 0

	for rows.Next() {
		var r fathom.RetrievalResult
		var metaJSON sql.NullString
		var embJSON string
		if err := rows.Scan(&r.Text, &r.Reference, &metaJSON, &embJSON); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		scanned++
		if metaJSON.Valid {
			_ = json.Unmarshal([]byte(metaJSON.String), &r.Metadata)
		}
		stored, err := deserializeEmbedding(embJSON)
		if err != nil {
			continue
		}
		r.Embedding = stored
		r.Score = cosineSimilarity(vector, stored)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if len(results) > topK {
		results = results[:topK]
	}
	s.logger.Debug("sqlite: search ok", "collection", collection, "scanned", scanned, "returned", len(results), "duration", time.Since(start))
	return results, nil
}

// ListCollections reports collections matching the given embedding
// dimension, in creation order. dim <= 0 lists all.
func (s *Store) ListCollections(ctx context.Context, dim int) ([]fathom.CollectionInfo, error) {
	start := time.Now()
	s.logger.Debug("sqlite: list collections", "dim", dim)

	query := `SELECT name, description FROM collections`
	var args []any
	if dim > 0 {
		query += ` WHERE dim = ?`
		args = append(args, dim)
	}
	query += ` ORDER BY rowid`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		s.logger.Error("sqlite: list collections failed", "error", err)
		return nil, fmt.Errorf("list collections: %w", err)
	}
	defer rows.Close()

	var infos []fathom.CollectionInfo
	for rows.Next() {
		var info fathom.CollectionInfo
		if err := rows.Scan(&info.Name, &info.Description); err != nil {
			return nil, fmt.Errorf("scan collection: %w", err)
		}
		infos = append(infos, info)
	}
	s.logger.Debug("sqlite: list collections ok", "count", len(infos), "duration", time.Since(start))
	return infos, rows.Err()
}

// Clear drops the collection and all of its chunks.
func (s *Store) Clear(ctx context.Context, collection string) error {
	start := time.Now()
	collection = s.collection(collection)
	s.logger.Debug("sqlite: clear", "collection", collection)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE collection = ?`, collection); err != nil {
		return fmt.Errorf("clear chunks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM collections WHERE name = ?`, collection); err != nil {
		return fmt.Errorf("clear collection: %w", err)
	}
	if err := tx.Commit(); err != nil {
		s.logger.Error("sqlite: clear commit failed", "collection", collection, "error", err)
		return err
	}
	s.logger.Debug("sqlite: clear ok", "collection", collection, "duration", time.Since(start))
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	s.logger.Debug("sqlite: closing store")
	err := s.db.Close()
	if err != nil {
		s.logger.Error("sqlite: close failed", "error", err)
	}
	return err
}

// --- Vector math ---

// cosineSimilarity computes the cosine similarity between two vectors.
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return float32(dot / denom)
}

// serializeEmbedding converts []float32 to a JSON array string.
func serializeEmbedding(embedding []float32) string {
	data, _ := json.Marshal(embedding)
	return string(data)
}

// deserializeEmbedding parses a JSON array string back to []float32.
func deserializeEmbedding(s string) ([]float32, error) {
	var v []float32
	err := json.Unmarshal([]byte(s), &v)
	return v, err
}
