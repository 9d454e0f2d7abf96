// Package postgres implements fathom.VectorDB using PostgreSQL with
// pgvector for native vector similarity search.
//
// The Store accepts an externally-owned *pgxpool.Pool via constructor
// injection. The caller creates and closes the pool. Each collection gets
// its own table with a typed vector(N) column and an HNSW cosine index, so
// collections with different embedding dimensions can coexist.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	fathom "github.com/fathomhq/fathom"
)

// Store implements fathom.VectorDB backed by PostgreSQL with pgvector.
type Store struct {
	pool *pgxpool.Pool
	def  string
	cfg  pgConfig
}

// pgConfig holds store configuration set via Option functions.
type pgConfig struct {
	hnswM              int // 0 = pgvector default (16)
	hnswEFConstruction int // 0 = pgvector default (64)
	hnswEFSearch       int // 0 = pgvector default (40)
}

// Option configures a PostgreSQL Store.
type Option func(*Store)

// WithHNSWM sets the HNSW m parameter (max connections per node).
// Higher values improve recall at the cost of memory. Default: pgvector's 16.
// Only affects index creation (CREATE INDEX IF NOT EXISTS).
func WithHNSWM(m int) Option {
	return func(s *Store) { s.cfg.hnswM = m }
}

// WithEFConstruction sets the HNSW ef_construction parameter (build-time
// candidate list size). Higher values improve index quality at the cost of
// slower builds. Default: pgvector's 64.
// Only affects index creation (CREATE INDEX IF NOT EXISTS).
func WithEFConstruction(ef int) Option {
	return func(s *Store) { s.cfg.hnswEFConstruction = ef }
}

// WithEFSearch sets the HNSW ef_search parameter (query-time candidate list
// size). Higher values improve recall at the cost of latency. Default:
// pgvector's 40. Applied during Init().
func WithEFSearch(ef int) Option {
	return func(s *Store) { s.cfg.hnswEFSearch = ef }
}

// WithDefaultCollection overrides the collection used when a caller passes
// an empty collection name.
func WithDefaultCollection(name string) Option {
	return func(s *Store) {
		if name != "" {
			s.def = name
		}
	}
}

var _ fathom.VectorDB = (*Store)(nil)

// New creates a Store using an existing pgxpool.Pool.
// The caller owns the pool and is responsible for closing it.
// Call Init before first use.
func New(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{pool: pool, def: fathom.DefaultCollection}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Init creates the pgvector extension and the collection registry.
// Safe to call multiple times (all statements are idempotent).
func (s *Store) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS collections (
			name TEXT PRIMARY KEY,
			description TEXT NOT NULL DEFAULT '',
			dim INTEGER NOT NULL,
			created_at BIGINT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: init: %w", err)
		}
	}

	if s.cfg.hnswEFSearch > 0 {
		if _, err := s.pool.Exec(ctx, fmt.Sprintf("SET hnsw.ef_search = %d", s.cfg.hnswEFSearch)); err != nil {
			return fmt.Errorf("postgres: set ef_search: %w", err)
		}
	}
	return nil
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

// chunkTable returns the quoted per-collection table identifier.
func chunkTable(collection string) string {
	return pgx.Identifier{"chunks_" + collection}.Sanitize()
}

// hnswWithClause returns the WITH (...) clause for HNSW index creation,
// or an empty string if no tuning params are set.
func (s *Store) hnswWithClause() string {
	var parts []string
	if s.cfg.hnswM > 0 {
		parts = append(parts, fmt.Sprintf("m = %d", s.cfg.hnswM))
	}
	if s.cfg.hnswEFConstruction > 0 {
		parts = append(parts, fmt.Sprintf("ef_construction = %d", s.cfg.hnswEFConstruction))
	}
	if len(parts) == 0 {
		return ""
	}
	return " WITH (" + strings.Join(parts, ", ") + ")"
}

// InitCollection registers the collection and creates its chunk table with
// a typed vector(dim) column and HNSW cosine index. force drops any
// existing table first.
func (s *Store) InitCollection(ctx context.Context, dim int, collection, description string, force bool) error {
	collection = s.collection(collection)
	table := chunkTable(collection)

	if force {
		if _, err := s.pool.Exec(ctx, `DROP TABLE IF EXISTS `+table); err != nil {
			return fmt.Errorf("postgres: drop collection table: %w", err)
		}
		if _, err := s.pool.Exec(ctx, `DELETE FROM collections WHERE name = $1`, collection); err != nil {
			return fmt.Errorf("postgres: drop collection: %w", err)
		}
	}

	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			text TEXT NOT NULL,
			reference TEXT NOT NULL DEFAULT '',
			metadata JSONB,
			embedding vector(%d) NOT NULL
		)`, table, dim),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s USING hnsw (embedding vector_cosine_ops)%s`,
			pgx.Identifier{"chunks_" + collection + "_embedding_idx"}.Sanitize(), table, s.hnswWithClause()),
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: init collection: %w", err)
		}
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO collections (name, description, dim, created_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (name) DO NOTHING`,
		collection, description, dim, fathom.NowUnix())
	if err != nil {
		return fmt.Errorf("postgres: register collection: %w", err)
	}
	return nil
}

// Insert writes chunks into the collection in a single transaction.
func (s *Store) Insert(ctx context.Context, collection string, chunks []fathom.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	collection = s.collection(collection)
	table := chunkTable(collection)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	stmt := fmt.Sprintf(`INSERT INTO %s (id, text, reference, metadata, embedding)
		 VALUES ($1, $2, $3, $4::jsonb, $5::vector)`, table)
	for _, chunk := range chunks {
		var metaJSON *string
		if len(chunk.Metadata) > 0 {
			data, _ := json.Marshal(chunk.Metadata)
			v := string(data)
			metaJSON = &v
		}
		_, err := tx.Exec(ctx, stmt,
			fathom.NewID(), chunk.Text, chunk.Reference, metaJSON, serializeEmbedding(chunk.Embedding))
		if err != nil {
			return fmt.Errorf("postgres: insert chunk: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit tx: %w", err)
	}
	return nil
}

// Search performs vector similarity search over the collection using
// pgvector's cosine distance operator with the HNSW index.
func (s *Store) Search(ctx context.Context, collection string, vector []float32, topK int) ([]fathom.RetrievalResult, error) {
	collection = s.collection(collection)
	embStr := serializeEmbedding(vector)

	q := fmt.Sprintf(`SELECT text, reference, metadata,
	        1 - (embedding <=> $1::vector) AS score
	 FROM %s
	 ORDER BY embedding <=> $1::vector
	 LIMIT $2`, chunkTable(collection))

	rows, err := s.pool.Query(ctx, q, embStr, topK)
	if err != nil {
		return nil, fmt.Errorf("postgres: search: %w", err)
	}
	defer rows.Close()

	var results []fathom.RetrievalResult
	for rows.Next() {
		var r fathom.RetrievalResult
		var metaJSON []byte
		if err := rows.Scan(&r.Text, &r.Reference, &metaJSON, &r.Score); err != nil {
			return nil, fmt.Errorf("postgres: scan chunk: %w", err)
		}
		if metaJSON != nil {
			_ = json.Unmarshal(metaJSON, &r.Metadata)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// ListCollections reports registered collections matching the given
// embedding dimension, in creation order. dim <= 0 lists all.
func (s *Store) ListCollections(ctx context.Context, dim int) ([]fathom.CollectionInfo, error) {
	q := `SELECT name, description FROM collections`
	var args []any
	if dim > 0 {
		q += ` WHERE dim = $1`
		args = append(args, dim)
	}
	q += ` ORDER BY created_at, name`

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list collections: %w", err)
	}
	defer rows.Close()

	var infos []fathom.CollectionInfo
	for rows.Next() {
		var info fathom.CollectionInfo
		if err := rows.Scan(&info.Name, &info.Description); err != nil {
			return nil, fmt.Errorf("postgres: scan collection: %w", err)
		}
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

// Clear drops the collection's table and removes it from the registry.
func (s *Store) Clear(ctx context.Context, collection string) error {
	collection = s.collection(collection)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DROP TABLE IF EXISTS `+chunkTable(collection)); err != nil {
		return fmt.Errorf("postgres: drop collection table: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM collections WHERE name = $1`, collection); err != nil {
		return fmt.Errorf("postgres: delete collection: %w", err)
	}
	return tx.Commit(ctx)
}

// Close is a no-op. The caller owns the pool and manages its lifecycle.
func (s *Store) Close() error {
	return nil
}

// serializeEmbedding converts []float32 to a string like "[0.1,0.2,0.3]"
// suitable for pgvector's text input format.
func serializeEmbedding(embedding []float32) string {
	parts := make([]string, len(embedding))
	for i, v := range embedding {
		parts[i] = strconv.FormatFloat(float64(v), 'f', -1, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
