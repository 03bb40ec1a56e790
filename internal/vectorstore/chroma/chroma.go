// Package chroma implements the vector store on a ChromaDB server via its
// REST API. Data operations address collections by server-assigned id, so the
// client keeps a small name-to-id cache.
package chroma

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/doctalk/doctalk/internal/domain"
	"github.com/doctalk/doctalk/internal/vectorstore"
)

// Store is a minimal REST client to ChromaDB.
type Store struct {
	url    string
	client *http.Client

	mu  sync.Mutex
	ids map[string]string // collection name -> id
}

var _ vectorstore.Store = (*Store)(nil)

// Config contains connection details for a ChromaDB server.
type Config struct {
	URL     string
	Timeout time.Duration
}

// New creates a ChromaDB-backed vector store.
func New(cfg Config) *Store {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Store{
		url:    strings.TrimSuffix(cfg.URL, "/"),
		client: &http.Client{Timeout: timeout},
		ids:    make(map[string]string),
	}
}

// Close releases client resources. The HTTP client keeps no open state.
func (s *Store) Close() error { return nil }

type collectionResponse struct {
	ID       string                 `json:"id"`
	Name     string                 `json:"name"`
	Metadata map[string]interface{} `json:"metadata"`
}

// CreateCollection creates a new named collection.
func (s *Store) CreateCollection(ctx context.Context, name string, metadata map[string]string) error {
	body := map[string]interface{}{"name": name}
	if len(metadata) > 0 {
		body["metadata"] = metadata
	}
	var col collectionResponse
	status, err := s.do(ctx, http.MethodPost, "/api/v1/collections", body, &col)
	if err != nil {
		return err
	}
	if status == http.StatusConflict {
		return fmt.Errorf("%w: %s", domain.ErrCollectionExists, name)
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return fmt.Errorf("%w: create collection: status %d", domain.ErrStore, status)
	}
	s.cacheID(name, col.ID)
	return nil
}

// DeleteCollection removes a collection and all of its records.
func (s *Store) DeleteCollection(ctx context.Context, name string) error {
	status, err := s.do(ctx, http.MethodDelete, "/api/v1/collections/"+name, nil, nil)
	if err != nil {
		return err
	}
	if status == http.StatusNotFound {
		return fmt.Errorf("%w: %s", domain.ErrCollectionNotFound, name)
	}
	if status != http.StatusOK {
		return fmt.Errorf("%w: delete collection: status %d", domain.ErrStore, status)
	}
	s.mu.Lock()
	delete(s.ids, name)
	s.mu.Unlock()
	return nil
}

// ListCollections lists all collection names.
func (s *Store) ListCollections(ctx context.Context) ([]string, error) {
	var cols []collectionResponse
	status, err := s.do(ctx, http.MethodGet, "/api/v1/collections", nil, &cols)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%w: list collections: status %d", domain.ErrStore, status)
	}
	names := make([]string, 0, len(cols))
	for _, c := range cols {
		names = append(names, c.Name)
		s.cacheID(c.Name, c.ID)
	}
	return names, nil
}

// CollectionExists reports whether the named collection exists.
func (s *Store) CollectionExists(ctx context.Context, name string) (bool, error) {
	_, err := s.collectionID(ctx, name)
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, err
}

// CollectionMetadata returns the metadata attached at collection creation.
func (s *Store) CollectionMetadata(ctx context.Context, name string) (map[string]string, error) {
	var col collectionResponse
	status, err := s.do(ctx, http.MethodGet, "/api/v1/collections/"+name, nil, &col)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK || col.ID == "" {
		return nil, fmt.Errorf("%w: %s", domain.ErrCollectionNotFound, name)
	}
	s.cacheID(name, col.ID)
	return stringMetadata(col.Metadata), nil
}

// Count returns the number of records in a collection.
func (s *Store) Count(ctx context.Context, collection string) (int, error) {
	id, err := s.collectionID(ctx, collection)
	if err != nil {
		return 0, err
	}
	var n int
	status, err := s.do(ctx, http.MethodGet, "/api/v1/collections/"+id+"/count", nil, &n)
	if err != nil {
		return 0, err
	}
	if status != http.StatusOK {
		return 0, fmt.Errorf("%w: count: status %d", domain.ErrStore, status)
	}
	return n, nil
}

// Upsert writes records into a collection, replacing records with the same id.
func (s *Store) Upsert(ctx context.Context, collection string, records []vectorstore.Record) error {
	if len(records) == 0 {
		return nil
	}
	id, err := s.collectionID(ctx, collection)
	if err != nil {
		return err
	}
	ids := make([]string, len(records))
	embeddings := make([][]float32, len(records))
	documents := make([]string, len(records))
	metadatas := make([]map[string]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
		embeddings[i] = r.Vector
		documents[i] = r.Text
		metadatas[i] = r.Metadata
	}
	body := map[string]interface{}{
		"ids":        ids,
		"embeddings": embeddings,
		"documents":  documents,
		"metadatas":  metadatas,
	}
	status, err := s.do(ctx, http.MethodPost, "/api/v1/collections/"+id+"/upsert", body, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return fmt.Errorf("%w: upsert: status %d", domain.ErrStore, status)
	}
	return nil
}

type queryResponse struct {
	IDs       [][]string                 `json:"ids"`
	Documents [][]string                 `json:"documents"`
	Metadatas [][]map[string]interface{} `json:"metadatas"`
	Distances [][]float64                `json:"distances"`
}

// Query returns up to k records ranked by ascending distance.
func (s *Store) Query(ctx context.Context, collection string, vector []float32, k int, filter map[string]string) ([]vectorstore.ScoredRecord, error) {
	id, err := s.collectionID(ctx, collection)
	if err != nil {
		return nil, err
	}
	body := map[string]interface{}{
		"query_embeddings": [][]float32{vector},
		"n_results":        k,
		"include":          []string{"documents", "metadatas", "distances"},
	}
	if w := whereClause(filter); w != nil {
		body["where"] = w
	}
	var res queryResponse
	status, err := s.do(ctx, http.MethodPost, "/api/v1/collections/"+id+"/query", body, &res)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%w: query: status %d", domain.ErrStore, status)
	}
	if len(res.IDs) == 0 {
		return nil, nil
	}
	out := make([]vectorstore.ScoredRecord, 0, len(res.IDs[0]))
	for i, rid := range res.IDs[0] {
		rec := vectorstore.ScoredRecord{Record: vectorstore.Record{ID: rid}}
		if i < len(res.Documents[0]) {
			rec.Text = res.Documents[0][i]
		}
		if i < len(res.Metadatas[0]) {
			rec.Metadata = stringMetadata(res.Metadatas[0][i])
		}
		if i < len(res.Distances[0]) {
			rec.Distance = res.Distances[0][i]
		}
		out = append(out, rec)
	}
	return out, nil
}

type getResponse struct {
	IDs       []string                 `json:"ids"`
	Documents []string                 `json:"documents"`
	Metadatas []map[string]interface{} `json:"metadatas"`
}

// GetByMetadata returns all records matching the filter.
func (s *Store) GetByMetadata(ctx context.Context, collection string, filter map[string]string) ([]vectorstore.Record, error) {
	id, err := s.collectionID(ctx, collection)
	if err != nil {
		return nil, err
	}
	body := map[string]interface{}{
		"include": []string{"documents", "metadatas"},
	}
	if w := whereClause(filter); w != nil {
		body["where"] = w
	}
	var res getResponse
	status, err := s.do(ctx, http.MethodPost, "/api/v1/collections/"+id+"/get", body, &res)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%w: get: status %d", domain.ErrStore, status)
	}
	out := make([]vectorstore.Record, 0, len(res.IDs))
	for i, rid := range res.IDs {
		rec := vectorstore.Record{ID: rid}
		if i < len(res.Documents) {
			rec.Text = res.Documents[i]
		}
		if i < len(res.Metadatas) {
			rec.Metadata = stringMetadata(res.Metadatas[i])
		}
		out = append(out, rec)
	}
	return out, nil
}

// Delete removes records by id; unknown ids are ignored.
func (s *Store) Delete(ctx context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	id, err := s.collectionID(ctx, collection)
	if err != nil {
		return err
	}
	status, err := s.do(ctx, http.MethodPost, "/api/v1/collections/"+id+"/delete", map[string]interface{}{"ids": ids}, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("%w: delete: status %d", domain.ErrStore, status)
	}
	return nil
}

func (s *Store) collectionID(ctx context.Context, name string) (string, error) {
	s.mu.Lock()
	if id, ok := s.ids[name]; ok {
		s.mu.Unlock()
		return id, nil
	}
	s.mu.Unlock()

	var col collectionResponse
	status, err := s.do(ctx, http.MethodGet, "/api/v1/collections/"+name, nil, &col)
	if err != nil {
		return "", err
	}
	// Chroma reports a missing collection with varying status codes across
	// versions; anything other than a collection payload means not found.
	if status != http.StatusOK || col.ID == "" {
		return "", fmt.Errorf("%w: %s", domain.ErrCollectionNotFound, name)
	}
	s.cacheID(name, col.ID)
	return col.ID, nil
}

func (s *Store) cacheID(name, id string) {
	if id == "" {
		return
	}
	s.mu.Lock()
	s.ids[name] = id
	s.mu.Unlock()
}

func (s *Store) do(ctx context.Context, method, path string, body, out interface{}) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("%w: encode request: %v", domain.ErrStore, err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.url+path, reader)
	if err != nil {
		return 0, fmt.Errorf("%w: build request: %v", domain.ErrStore, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrStore, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("%w: read response: %v", domain.ErrStore, err)
	}
	if out != nil && resp.StatusCode < 300 && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("%w: decode response: %v", domain.ErrStore, err)
		}
	}
	return resp.StatusCode, nil
}

func stringMetadata(meta map[string]interface{}) map[string]string {
	if len(meta) == 0 {
		return nil
	}
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		out[k] = fmt.Sprint(v)
	}
	return out
}

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrCollectionNotFound)
}

// whereClause builds Chroma's metadata filter. Multiple conditions need an
// explicit $and.
func whereClause(filter map[string]string) map[string]interface{} {
	if len(filter) == 0 {
		return nil
	}
	if len(filter) == 1 {
		for k, v := range filter {
			return map[string]interface{}{k: v}
		}
	}
	var conds []map[string]interface{}
	for k, v := range filter {
		conds = append(conds, map[string]interface{}{k: v})
	}
	return map[string]interface{}{"$and": conds}
}
