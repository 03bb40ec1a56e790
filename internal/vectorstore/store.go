// Package vectorstore defines the persistence capability the chat service
// depends on: named collections of embedded records with similarity and
// metadata retrieval.
package vectorstore

import "context"

// Record is a stored chunk: an id, its embedding, the raw text and opaque
// string metadata.
type Record struct {
	ID       string
	Vector   []float32
	Text     string
	Metadata map[string]string
}

// ScoredRecord is a record returned by similarity search. Distance is the
// store's measure; lower means more relevant.
type ScoredRecord struct {
	Record
	Distance float64
}

// Store persists vectors plus metadata. No transactional guarantees are
// assumed across calls.
type Store interface {
	CreateCollection(ctx context.Context, name string, metadata map[string]string) error
	DeleteCollection(ctx context.Context, name string) error
	ListCollections(ctx context.Context) ([]string, error)
	CollectionExists(ctx context.Context, name string) (bool, error)
	CollectionMetadata(ctx context.Context, name string) (map[string]string, error)
	Count(ctx context.Context, collection string) (int, error)

	Upsert(ctx context.Context, collection string, records []Record) error
	// Query returns up to k records ranked by ascending distance to the query
	// vector, restricted to records matching every filter entry exactly.
	Query(ctx context.Context, collection string, vector []float32, k int, filter map[string]string) ([]ScoredRecord, error)
	// GetByMetadata returns all records matching the filter, in no particular order.
	GetByMetadata(ctx context.Context, collection string, filter map[string]string) ([]Record, error)
	Delete(ctx context.Context, collection string, ids []string) error

	Close() error
}
