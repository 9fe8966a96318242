package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS embeddings (
	collection TEXT NOT NULL,
	id         TEXT NOT NULL,
	text       TEXT,
	link       TEXT,
	vector     BLOB NOT NULL,
	added_at   INTEGER NOT NULL,
	PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS idx_embeddings_added ON embeddings(collection, added_at);
`

// sqliteIndex implements Index on a single SQLite table.
type sqliteIndex struct {
	db         *sql.DB
	collection string
	ttl        time.Duration
	sweep      *sweeper
	now        func() time.Time
}

func openSQLite(path string, opts Options) (*sqliteIndex, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create index directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// single writer
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init embeddings table: %w", err)
	}

	return &sqliteIndex{
		db:         db,
		collection: opts.Collection,
		ttl:        opts.TTL,
		sweep:      newSweeper(opts.CleanupInterval, time.Now()),
		now:        time.Now,
	}, nil
}

func (s *sqliteIndex) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *sqliteIndex) Add(ctx context.Context, doc Document) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}

	now := s.now()
	if err := s.sweep.maybeRun(now, s.cleanupFunc(ctx)); err != nil {
		return err
	}

	doc, err := prepareDocument(doc, s.collection, now)
	if err != nil {
		return err
	}
	vec, err := json.Marshal(doc.Vector)
	if err != nil {
		return fmt.Errorf("encode vector %s: %w", doc.ID, err)
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO embeddings(collection, id, text, link, vector, added_at)
		VALUES(?, ?, ?, ?, ?, ?)
		ON CONFLICT(collection, id) DO UPDATE SET
			text = excluded.text,
			link = excluded.link,
			vector = excluded.vector,
			added_at = excluded.added_at`,
		doc.Collection, doc.ID, doc.Text, doc.Link, vec, doc.AddedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert embedding %s: %w", doc.ID, err)
	}
	return nil
}

func (s *sqliteIndex) Search(ctx context.Context, vector []float64, k int) ([]Neighbor, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}
	if err := validateQuery(vector, k); err != nil {
		return nil, err
	}

	now := s.now()
	if err := s.sweep.maybeRun(now, s.cleanupFunc(ctx)); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, text, link, vector, added_at FROM embeddings WHERE collection = ? AND added_at > ?`,
		s.collection, s.cutoff(now),
	)
	if err != nil {
		return nil, fmt.Errorf("query embeddings: %w", err)
	}
	defer rows.Close()

	r := newRanker(vector, k)
	for rows.Next() {
		var (
			doc     = Document{Collection: s.collection}
			vecJSON []byte
			added   int64
		)
		if err := rows.Scan(&doc.ID, &doc.Text, &doc.Link, &vecJSON, &added); err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}
		if err := json.Unmarshal(vecJSON, &doc.Vector); err != nil {
			continue
		}
		doc.AddedAt = time.Unix(0, added).UTC()
		r.consider(doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate embeddings: %w", err)
	}
	return r.result(), nil
}

func (s *sqliteIndex) Count(ctx context.Context) (int, error) {
	if s == nil || s.db == nil {
		return 0, ErrClosed
	}
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM embeddings WHERE collection = ? AND added_at > ?`,
		s.collection, s.cutoff(s.now()),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count embeddings: %w", err)
	}
	return n, nil
}

// cutoff is the oldest added_at (exclusive) still considered live.
func (s *sqliteIndex) cutoff(now time.Time) int64 {
	return now.Add(-s.ttl).UnixNano()
}

func (s *sqliteIndex) cleanupFunc(ctx context.Context) func(time.Time) error {
	return func(now time.Time) error {
		_, err := s.db.ExecContext(ctx,
			`DELETE FROM embeddings WHERE collection = ? AND added_at <= ?`,
			s.collection, s.cutoff(now),
		)
		if err != nil {
			return fmt.Errorf("purge expired embeddings: %w", err)
		}
		return nil
	}
}
