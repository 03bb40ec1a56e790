// Package sqlite implements the vector store on an embedded SQLite database.
// Similarity search is brute-force cosine distance over the collection, which
// is fine for the collection sizes this service targets.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/doctalk/doctalk/internal/domain"
	"github.com/doctalk/doctalk/internal/vectorstore"
)

// Store implements vectorstore.Store using SQLite.
type Store struct {
	db *sql.DB
}

var _ vectorstore.Store = (*Store)(nil)

// New opens (or creates) a SQLite-backed vector store.
func New(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS collections (
			name TEXT PRIMARY KEY,
			metadata TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS records (
			collection TEXT NOT NULL,
			record_id TEXT NOT NULL,
			vector TEXT NOT NULL,
			text TEXT NOT NULL,
			metadata TEXT,
			PRIMARY KEY (collection, record_id),
			FOREIGN KEY (collection) REFERENCES collections(name)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_records_collection ON records(collection)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateCollection creates a new named collection.
func (s *Store) CreateCollection(ctx context.Context, name string, metadata map[string]string) error {
	exists, err := s.CollectionExists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", domain.ErrCollectionExists, name)
	}
	meta, _ := json.Marshal(metadata)
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO collections (name, metadata) VALUES (?, ?)`,
		name, string(meta)); err != nil {
		return fmt.Errorf("%w: create collection: %v", domain.ErrStore, err)
	}
	return nil
}

// DeleteCollection removes a collection and all of its records.
func (s *Store) DeleteCollection(ctx context.Context, name string) error {
	exists, err := s.CollectionExists(ctx, name)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", domain.ErrCollectionNotFound, name)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE collection = ?`, name); err != nil {
		return fmt.Errorf("%w: delete records: %v", domain.ErrStore, err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM collections WHERE name = ?`, name); err != nil {
		return fmt.Errorf("%w: delete collection: %v", domain.ErrStore, err)
	}
	return nil
}

// ListCollections lists all collection names.
func (s *Store) ListCollections(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM collections ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("%w: list collections: %v", domain.ErrStore, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("%w: scan collection: %v", domain.ErrStore, err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// CollectionExists reports whether the named collection exists.
func (s *Store) CollectionExists(ctx context.Context, name string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM collections WHERE name = ?`, name).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: collection exists: %v", domain.ErrStore, err)
	}
	return true, nil
}

// CollectionMetadata returns the metadata attached at collection creation.
func (s *Store) CollectionMetadata(ctx context.Context, name string) (map[string]string, error) {
	var meta sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT metadata FROM collections WHERE name = ?`, name).Scan(&meta)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", domain.ErrCollectionNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: collection metadata: %v", domain.ErrStore, err)
	}
	var out map[string]string
	if meta.Valid && meta.String != "" {
		_ = json.Unmarshal([]byte(meta.String), &out)
	}
	return out, nil
}

// Count returns the number of records in a collection.
func (s *Store) Count(ctx context.Context, collection string) (int, error) {
	if err := s.requireCollection(ctx, collection); err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM records WHERE collection = ?`, collection).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count records: %v", domain.ErrStore, err)
	}
	return n, nil
}

// Upsert writes records into a collection, replacing records with the same id.
func (s *Store) Upsert(ctx context.Context, collection string, records []vectorstore.Record) error {
	if err := s.requireCollection(ctx, collection); err != nil {
		return err
	}
	for _, r := range records {
		vec, err := json.Marshal(r.Vector)
		if err != nil {
			return fmt.Errorf("%w: encode vector: %v", domain.ErrStore, err)
		}
		meta, _ := json.Marshal(r.Metadata)
		if _, err := s.db.ExecContext(ctx,
			`INSERT OR REPLACE INTO records (collection, record_id, vector, text, metadata) VALUES (?, ?, ?, ?, ?)`,
			collection, r.ID, string(vec), r.Text, string(meta)); err != nil {
			return fmt.Errorf("%w: upsert record: %v", domain.ErrStore, err)
		}
	}
	return nil
}

// Query returns up to k records ranked by ascending cosine distance.
func (s *Store) Query(ctx context.Context, collection string, vector []float32, k int, filter map[string]string) ([]vectorstore.ScoredRecord, error) {
	records, err := s.GetByMetadata(ctx, collection, filter)
	if err != nil {
		return nil, err
	}

	scored := make([]vectorstore.ScoredRecord, 0, len(records))
	for _, r := range records {
		scored = append(scored, vectorstore.ScoredRecord{
			Record:   r,
			Distance: cosineDistance(vector, r.Vector),
		})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Distance < scored[j].Distance
	})
	if k > 0 && len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

// GetByMetadata returns all records whose metadata matches every filter entry.
func (s *Store) GetByMetadata(ctx context.Context, collection string, filter map[string]string) ([]vectorstore.Record, error) {
	if err := s.requireCollection(ctx, collection); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT record_id, vector, text, metadata FROM records WHERE collection = ?`, collection)
	if err != nil {
		return nil, fmt.Errorf("%w: query records: %v", domain.ErrStore, err)
	}
	defer rows.Close()

	var out []vectorstore.Record
	for rows.Next() {
		var r vectorstore.Record
		var vec string
		var meta sql.NullString
		if err := rows.Scan(&r.ID, &vec, &r.Text, &meta); err != nil {
			return nil, fmt.Errorf("%w: scan record: %v", domain.ErrStore, err)
		}
		if err := json.Unmarshal([]byte(vec), &r.Vector); err != nil {
			return nil, fmt.Errorf("%w: decode vector: %v", domain.ErrStore, err)
		}
		if meta.Valid && meta.String != "" {
			_ = json.Unmarshal([]byte(meta.String), &r.Metadata)
		}
		if !matchesFilter(r.Metadata, filter) {
			continue
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Delete removes records by id; unknown ids are ignored.
func (s *Store) Delete(ctx context.Context, collection string, ids []string) error {
	if err := s.requireCollection(ctx, collection); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	placeholders := make([]string, len(ids))
	args := []interface{}{collection}
	for i, id := range ids {
		placeholders[i] = "?"
		args = append(args, id)
	}
	query := fmt.Sprintf(`DELETE FROM records WHERE collection = ? AND record_id IN (%s)`,
		strings.Join(placeholders, ","))
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%w: delete records: %v", domain.ErrStore, err)
	}
	return nil
}

func (s *Store) requireCollection(ctx context.Context, name string) error {
	exists, err := s.CollectionExists(ctx, name)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", domain.ErrCollectionNotFound, name)
	}
	return nil
}

func matchesFilter(metadata, filter map[string]string) bool {
	for k, v := range filter {
		if metadata[k] != v {
			return false
		}
	}
	return true
}

func cosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 1
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}
