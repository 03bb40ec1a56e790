package service

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/doctalk/doctalk/internal/chunker"
	"github.com/doctalk/doctalk/internal/domain"
	"github.com/doctalk/doctalk/internal/vectorstore"
)

// CreateCollection creates a new document collection.
func (s *Service) CreateCollection(ctx context.Context, name string, metadata map[string]string) error {
	return s.store.CreateCollection(ctx, name, metadata)
}

// GetCollection returns name, record count and creation metadata.
func (s *Service) GetCollection(ctx context.Context, name string) (*domain.CollectionInfo, error) {
	count, err := s.store.Count(ctx, name)
	if err != nil {
		return nil, err
	}
	metadata, err := s.store.CollectionMetadata(ctx, name)
	if err != nil {
		return nil, err
	}
	return &domain.CollectionInfo{Name: name, Count: count, Metadata: metadata}, nil
}

// ListCollections lists all collection names.
func (s *Service) ListCollections(ctx context.Context) ([]string, error) {
	return s.store.ListCollections(ctx)
}

// DeleteCollection deletes a collection and all of its documents.
func (s *Service) DeleteCollection(ctx context.Context, name string) error {
	return s.store.DeleteCollection(ctx, name)
}

// AddDocuments splits the documents into chunks, embeds them and upserts the
// chunks into the collection. Returns the ids of the stored chunks.
func (s *Service) AddDocuments(ctx context.Context, collectionName string, docs []domain.DocumentInput, chunkSize, chunkOverlap int) ([]string, error) {
	exists, err := s.store.CollectionExists(ctx, collectionName)
	if err != nil {
		return nil, fmt.Errorf("failed to check collection: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", domain.ErrCollectionNotFound, collectionName)
	}

	splitter := chunker.New(chunkSize, chunkOverlap)
	var texts []string
	var metadatas []map[string]string
	for docIdx, doc := range docs {
		for chunkIdx, text := range splitter.Split(doc.Content) {
			meta := make(map[string]string, len(doc.Metadata)+2)
			for k, v := range doc.Metadata {
				meta[k] = v
			}
			meta["docIndex"] = strconv.Itoa(docIdx)
			meta["chunkIndex"] = strconv.Itoa(chunkIdx)
			texts = append(texts, text)
			metadatas = append(metadatas, meta)
		}
	}
	if len(texts) == 0 {
		return nil, nil
	}

	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(texts))
	records := make([]vectorstore.Record, len(texts))
	for i := range texts {
		ids[i] = uuid.New().String()
		records[i] = vectorstore.Record{
			ID:       ids[i],
			Vector:   vectors[i],
			Text:     texts[i],
			Metadata: metadatas[i],
		}
	}
	if err := s.store.Upsert(ctx, collectionName, records); err != nil {
		return nil, fmt.Errorf("failed to store chunks: %w", err)
	}
	return ids, nil
}

// DeleteDocuments removes chunks by id from a collection.
func (s *Service) DeleteDocuments(ctx context.Context, collectionName string, ids []string) error {
	return s.store.Delete(ctx, collectionName, ids)
}
