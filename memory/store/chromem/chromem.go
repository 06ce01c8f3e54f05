// Package chromem implements memory.Store on chromem-go, a pure Go embedded
// vector database. Each user gets a dedicated collection, so user isolation
// holds at the storage level.
package chromem

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"

	"github.com/becomeliminal/recall/core"
	"github.com/becomeliminal/recall/memory"
)

// Config configures the store.
type Config struct {
	// Path is the persistence directory. Empty keeps everything in memory.
	Path string

	// Compress gzips persisted documents.
	Compress bool

	// CollectionPrefix namespaces per-user collections. Default: "user_".
	CollectionPrefix string

	// Dimensions of the stored embeddings. Needed to enumerate collections
	// loaded from disk before anything was added in this process.
	Dimensions int
}

// Store wraps chromem-go for vector storage.
type Store struct {
	db          *chromem.DB
	prefix      string
	collections map[string]*chromem.Collection // Per-user collections
	dims        int
	mu          sync.RWMutex
}

var _ memory.Store = (*Store)(nil)

// New creates a chromem-based store.
func New(cfg Config) (*Store, error) {
	var db *chromem.DB
	if cfg.Path == "" {
		db = chromem.NewDB()
	} else {
		var err error
		db, err = chromem.NewPersistentDB(cfg.Path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("open chromem db %s: %w", cfg.Path, err)
		}
	}
	prefix := cfg.CollectionPrefix
	if prefix == "" {
		prefix = "user_"
	}

	slog.Info("chromem store opened",
		"component", "chromem",
		"path", cfg.Path,
		"collections", len(db.ListCollections()),
	)

	return &Store{
		db:          db,
		prefix:      prefix,
		collections: make(map[string]*chromem.Collection),
		dims:        cfg.Dimensions,
	}, nil
}

func (s *Store) collectionName(userID string) string {
	return s.prefix + userID
}

// collection returns the user's collection, creating it when create is set.
// A nil collection with a nil error means the user has no memories.
func (s *Store) collection(userID string, create bool) (*chromem.Collection, error) {
	s.mu.RLock()
	col, exists := s.collections[userID]
	s.mu.RUnlock()
	if exists {
		return col, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Double-check after acquiring write lock
	if col, exists := s.collections[userID]; exists {
		return col, nil
	}

	name := s.collectionName(userID)
	if col := s.db.GetCollection(name, nil); col != nil {
		s.collections[userID] = col
		return col, nil
	}
	if !create {
		return nil, nil
	}

	col, err := s.db.CreateCollection(name, map[string]string{"user_id": userID}, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	s.collections[userID] = col
	return col, nil
}

func (s *Store) learnDimensions(n int) {
	s.mu.Lock()
	if s.dims == 0 {
		s.dims = n
	}
	s.mu.Unlock()
}

// Add saves a record with its embedding.
func (s *Store) Add(ctx context.Context, rec *memory.Record) error {
	if rec.UserID == "" {
		return core.ErrMissingUser
	}
	if len(rec.Embedding) == 0 {
		return errors.New("record has no embedding")
	}
	col, err := s.collection(rec.UserID, true)
	if err != nil {
		return err
	}
	s.learnDimensions(len(rec.Embedding))

	doc := chromem.Document{
		ID:        rec.ID,
		Content:   rec.Text,
		Embedding: rec.Embedding,
		Metadata: map[string]string{
			"user_id":    rec.UserID,
			"role":       string(rec.Role),
			"created_at": rec.CreatedAt.Format(time.RFC3339Nano),
		},
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("add document: %w", err)
	}
	return nil
}

// Search retrieves the user's records by vector similarity.
func (s *Store) Search(ctx context.Context, userID string, embedding []float32, limit int) ([]*memory.Record, error) {
	col, err := s.collection(userID, false)
	if err != nil || col == nil {
		return nil, err
	}
	s.learnDimensions(len(embedding))

	// chromem-go requires nResults <= collection size
	n := col.Count()
	if n == 0 || limit <= 0 {
		return nil, nil
	}
	if limit > n {
		limit = n
	}

	results, err := col.QueryEmbedding(ctx, embedding, limit, map[string]string{"user_id": userID}, nil)
	if err != nil {
		if isInsufficientDocsError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("chromem query: %w", err)
	}
	return toRecords(results), nil
}

// List returns every record in the user's collection.
func (s *Store) List(ctx context.Context, userID string) ([]*memory.Record, error) {
	col, err := s.collection(userID, false)
	if err != nil || col == nil {
		return nil, err
	}
	n := col.Count()
	if n == 0 {
		return nil, nil
	}

	s.mu.RLock()
	dims := s.dims
	s.mu.RUnlock()
	if dims == 0 {
		return nil, errors.New("chromem: embedding dimensions unknown, cannot enumerate collection")
	}

	// chromem-go has no scan API; query with an arbitrary unit vector for all documents.
	probe := make([]float32, dims)
	probe[0] = 1
	results, err := col.QueryEmbedding(ctx, probe, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem list: %w", err)
	}
	records := toRecords(results)
	for _, rec := range records {
		rec.Score = 0
	}
	return records, nil
}

// Get finds a record by ID across all collections.
func (s *Store) Get(ctx context.Context, id string) (*memory.Record, error) {
	_, doc, ok := s.find(ctx, id)
	if !ok {
		return nil, core.ErrNotFound
	}
	return toRecord(doc.ID, doc.Content, doc.Metadata, doc.Embedding, 0), nil
}

// Delete removes a record by ID.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	col, _, ok := s.find(ctx, id)
	if !ok {
		return false, nil
	}
	if err := col.Delete(ctx, nil, nil, id); err != nil {
		return false, fmt.Errorf("delete document: %w", err)
	}
	return true, nil
}

func (s *Store) find(ctx context.Context, id string) (*chromem.Collection, chromem.Document, bool) {
	if id == "" {
		return nil, chromem.Document{}, false
	}
	for name, col := range s.db.ListCollections() {
		if !strings.HasPrefix(name, s.prefix) {
			continue
		}
		doc, err := col.GetByID(ctx, id)
		if err == nil {
			return col, doc, true
		}
	}
	return nil, chromem.Document{}, false
}

// DeleteAll drops the user's collection.
func (s *Store) DeleteAll(ctx context.Context, userID string) error {
	if userID == "" {
		return core.ErrMissingUser
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.collections, userID)
	if err := s.db.DeleteCollection(s.collectionName(userID)); err != nil {
		return fmt.Errorf("delete collection: %w", err)
	}
	return nil
}

// Close releases resources. Persistent databases write on every change.
func (s *Store) Close() error {
	return nil
}

func toRecords(results []chromem.Result) []*memory.Record {
	records := make([]*memory.Record, 0, len(results))
	for _, r := range results {
		records = append(records, toRecord(r.ID, r.Content, r.Metadata, r.Embedding, float64(r.Similarity)))
	}
	return records
}

func toRecord(id, content string, metadata map[string]string, embedding []float32, score float64) *memory.Record {
	createdAt, _ := time.Parse(time.RFC3339Nano, metadata["created_at"])
	return &memory.Record{
		ID:        id,
		UserID:    metadata["user_id"],
		Role:      core.Role(metadata["role"]),
		Text:      content,
		CreatedAt: createdAt,
		Score:     score,
		Embedding: embedding,
	}
}

// isInsufficientDocsError checks if error is due to insufficient documents.
func isInsufficientDocsError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "nResults must be") || strings.Contains(msg, "number of documents")
}
