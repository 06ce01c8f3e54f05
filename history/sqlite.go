package history

import (
	"context"
	"database/sql"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/becomeliminal/recall/core"
)

// SQLiteStore persists transcripts in a SQLite file.
type SQLiteStore struct {
	db *sql.DB

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens or creates the database at path. ":memory:" is accepted.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.Wrap(err, "failed to create history dir")
		}
		dsn = path + "?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open history database")
	}
	// Single writer; also keeps ":memory:" on one connection.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{
		db:      db,
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS turns (
		id          TEXT PRIMARY KEY,
		user_id     TEXT NOT NULL,
		role        TEXT NOT NULL,
		content     TEXT NOT NULL,
		created_at  TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_turns_user ON turns(user_id, id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return errors.Wrap(err, "failed to migrate history schema")
	}
	return nil
}

func (s *SQLiteStore) newID(t time.Time) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), s.entropy).String()
}

func (s *SQLiteStore) Append(ctx context.Context, userID string, msg core.Message) error {
	if userID == "" {
		return core.ErrMissingUser
	}
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO turns (id, user_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		s.newID(now), userID, string(msg.Role), msg.Content, now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return errors.Wrap(err, "failed to append turn")
	}
	return nil
}

// Recent relies on ULIDs sorting by creation time.
func (s *SQLiteStore) Recent(ctx context.Context, userID string, n int) ([]Turn, error) {
	query := `SELECT id, user_id, role, content, created_at FROM turns WHERE user_id = ? ORDER BY id DESC`
	args := []any{userID}
	if n > 0 {
		query += ` LIMIT ?`
		args = append(args, n)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query turns")
	}
	defer rows.Close()

	turns := []Turn{}
	for rows.Next() {
		var t Turn
		var role, created string
		if err := rows.Scan(&t.ID, &t.UserID, &role, &t.Content, &created); err != nil {
			return nil, errors.Wrap(err, "failed to scan turn")
		}
		t.Role = core.Role(role)
		t.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

func (s *SQLiteStore) Count(ctx context.Context, userID string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM turns WHERE user_id = ?`, userID).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "failed to count turns")
	}
	return n, nil
}

func (s *SQLiteStore) Clear(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM turns WHERE user_id = ?`, userID); err != nil {
		return errors.Wrap(err, "failed to clear turns")
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
