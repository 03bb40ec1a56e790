package service

import (
	"context"
	"fmt"

	"github.com/doctalk/doctalk/internal/domain"
)

// Retrieve returns the top-k most similar chunks for the query, ordered by
// descending relevance (ascending distance). Retrieval never mutates chunk
// metadata.
func (s *Service) Retrieve(ctx context.Context, collectionName, query string, k int) ([]domain.RetrievedChunk, error) {
	if k <= 0 {
		k = s.config.DefaultK
	}

	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	results, err := s.store.Query(ctx, collectionName, vectors[0], k, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query collection: %w", err)
	}

	chunks := make([]domain.RetrievedChunk, 0, len(results))
	for _, r := range results {
		chunks = append(chunks, domain.RetrievedChunk{
			ID:       r.ID,
			Text:     r.Text,
			Metadata: r.Metadata,
			Score:    r.Distance,
		})
	}
	return chunks, nil
}
