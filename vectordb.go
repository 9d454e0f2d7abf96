package fathom

import "context"

// DefaultCollection is the collection name stores fall back to when none is
// configured. It is always unioned into routing results when visible.
const DefaultCollection = "fathom"

// VectorDB abstracts the vector store backend. Implementations must be safe
// for concurrent use; searchers share one instance across parallel tasks.
type VectorDB interface {
	// InitCollection creates the collection if missing. force drops and
	// recreates an existing collection.
	InitCollection(ctx context.Context, dim int, collection, description string, force bool) error
	// Insert writes chunks (with embeddings) into the collection.
	Insert(ctx context.Context, collection string, chunks []Chunk) error
	// Search returns the topK nearest chunks to vector, best first.
	Search(ctx context.Context, collection string, vector []float32, topK int) ([]RetrievalResult, error)
	// ListCollections reports collections visible to the given embedding
	// dimension. dim <= 0 lists all.
	ListCollections(ctx context.Context, dim int) ([]CollectionInfo, error)
	// Clear drops the collection.
	Clear(ctx context.Context, collection string) error
	// DefaultCollection returns the store's configured fallback collection
	// name.
	DefaultCollection() string
}

// SearchTopK is the per-collection result count searchers use unless a
// caller tunes it.
const SearchTopK = 5
