// Package pgvector stores memories in PostgreSQL with the pgvector extension.
package pgvector

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/pkg/errors"

	"github.com/becomeliminal/recall/core"
	"github.com/becomeliminal/recall/memory"
)

// Config configures the PostgreSQL store.
type Config struct {
	// DSN is a lib/pq connection string.
	DSN string

	// Table holds the records. Default: "memories"
	Table string

	// Dimensions fixes the vector column size. Required.
	Dimensions int
}

// Store implements memory.Store on PostgreSQL.
type Store struct {
	db    *sql.DB
	table string
}

var _ memory.Store = (*Store)(nil)

// New connects, enables the vector extension and creates the table if needed.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, errors.New("pgvector: DSN is required")
	}
	if cfg.Dimensions <= 0 {
		return nil, errors.New("pgvector: dimensions must be positive")
	}
	if cfg.Table == "" {
		cfg.Table = "memories"
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open postgres")
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to ping postgres")
	}

	s := &Store{db: db, table: cfg.Table}
	if err := s.migrate(ctx, cfg.Dimensions); err != nil {
		db.Close()
		return nil, err
	}
	slog.Info("pgvector store ready", "component", "memory", "table", cfg.Table, "dimensions", cfg.Dimensions)
	return s, nil
}

func (s *Store) migrate(ctx context.Context, dims int) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			role TEXT NOT NULL,
			text TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			embedding vector(%d) NOT NULL
		)`, s.table, dims),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_user_id ON %s (user_id)`, s.table, s.table),
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "failed to migrate memory table")
		}
	}
	return nil
}

// Add inserts a record.
func (s *Store) Add(ctx context.Context, rec *memory.Record) error {
	if len(rec.Embedding) == 0 {
		return errors.New("pgvector: record has no embedding")
	}
	stmt := `INSERT INTO ` + s.table + ` (id, user_id, role, text, created_at, embedding)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := s.db.ExecContext(ctx, stmt,
		rec.ID,
		rec.UserID,
		string(rec.Role),
		rec.Text,
		rec.CreatedAt,
		pgvector.NewVector(rec.Embedding),
	)
	if err != nil {
		return errors.Wrap(err, "failed to insert memory")
	}
	return nil
}

// Search orders the user's records by cosine distance.
// The <=> operator yields 1 - cosine similarity.
func (s *Store) Search(ctx context.Context, userID string, embedding []float32, limit int) ([]*memory.Record, error) {
	if limit <= 0 {
		return []*memory.Record{}, nil
	}
	query := `
		SELECT id, user_id, role, text, created_at, 1 - (embedding <=> $2) AS score
		FROM ` + s.table + `
		WHERE user_id = $1
		ORDER BY embedding <=> $2
		LIMIT $3`

	rows, err := s.db.QueryContext(ctx, query, userID, pgvector.NewVector(embedding), limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to search memories")
	}
	defer rows.Close()

	list := []*memory.Record{}
	for rows.Next() {
		var rec memory.Record
		var role string
		if err := rows.Scan(&rec.ID, &rec.UserID, &role, &rec.Text, &rec.CreatedAt, &rec.Score); err != nil {
			return nil, errors.Wrap(err, "failed to scan memory")
		}
		rec.Role = core.Role(role)
		list = append(list, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

// List returns the user's records, oldest first.
func (s *Store) List(ctx context.Context, userID string) ([]*memory.Record, error) {
	query := `
		SELECT id, user_id, role, text, created_at, embedding
		FROM ` + s.table + `
		WHERE user_id = $1
		ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list memories")
	}
	defer rows.Close()

	list := []*memory.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

// Get returns a record by ID.
func (s *Store) Get(ctx context.Context, id string) (*memory.Record, error) {
	query := `SELECT id, user_id, role, text, created_at, embedding FROM ` + s.table + ` WHERE id = $1`
	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, id))
	if errors.Cause(err) == sql.ErrNoRows {
		return nil, core.ErrNotFound
	}
	return rec, err
}

// Delete removes a record, reporting whether a row existed.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM `+s.table+` WHERE id = $1`, id)
	if err != nil {
		return false, errors.Wrap(err, "failed to delete memory")
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to read affected rows")
	}
	return n > 0, nil
}

// DeleteAll removes every record owned by the user.
func (s *Store) DeleteAll(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM `+s.table+` WHERE user_id = $1`, userID); err != nil {
		return errors.Wrap(err, "failed to delete user memories")
	}
	return nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*memory.Record, error) {
	var rec memory.Record
	var role string
	var vector pgvector.Vector
	if err := row.Scan(&rec.ID, &rec.UserID, &role, &rec.Text, &rec.CreatedAt, &vector); err != nil {
		return nil, errors.Wrap(err, "failed to scan memory")
	}
	rec.Role = core.Role(role)
	rec.Embedding = vector.Slice()
	return &rec, nil
}
