package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

// boltIndex implements Index backed by BoltDB, one bucket per collection.
type boltIndex struct {
	db     *bolt.DB
	bucket []byte
	ttl    time.Duration
	sweep  *sweeper
	now    func() time.Time
}

// openBolt initializes a BoltDB-backed Index.
func openBolt(path string, opts Options) (*boltIndex, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create index directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bbolt db: %w", err)
	}
	bucket := []byte(opts.Collection)
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("init bucket: %w", err)
	}

	return &boltIndex{
		db:     db,
		bucket: bucket,
		ttl:    opts.TTL,
		sweep:  newSweeper(opts.CleanupInterval, time.Now()),
		now:    time.Now,
	}, nil
}

// Close closes the BoltDB file.
func (b *boltIndex) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	err := b.db.Close()
	b.db = nil
	return err
}

// Add stores doc, replacing any document with the same id.
func (b *boltIndex) Add(ctx context.Context, doc Document) error {
	if b == nil || b.db == nil {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	now := b.now()
	if err := b.sweep.maybeRun(now, b.cleanupExpired); err != nil {
		return err
	}

	doc, err := prepareDocument(doc, string(b.bucket), now)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document %s: %w", doc.ID, err)
	}

	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(b.bucket)
		if bucket == nil {
			return fmt.Errorf("collection bucket %s missing", b.bucket)
		}
		return bucket.Put([]byte(doc.ID), raw)
	})
}

// Search scans the collection and returns the k nearest live documents.
func (b *boltIndex) Search(ctx context.Context, vector []float64, k int) ([]Neighbor, error) {
	if b == nil || b.db == nil {
		return nil, ErrClosed
	}
	if err := validateQuery(vector, k); err != nil {
		return nil, err
	}

	now := b.now()
	if err := b.sweep.maybeRun(now, b.cleanupExpired); err != nil {
		return nil, err
	}

	r := newRanker(vector, k)
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(b.bucket)
		if bucket == nil {
			return fmt.Errorf("collection bucket %s missing", b.bucket)
		}
		return bucket.ForEach(func(k, v []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			doc, ok := decodeDocument(v)
			if !ok || expired(doc.AddedAt, b.ttl, now) {
				return nil
			}
			r.consider(doc)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return r.result(), nil
}

// Count returns the number of live documents in the collection.
func (b *boltIndex) Count(ctx context.Context) (int, error) {
	if b == nil || b.db == nil {
		return 0, ErrClosed
	}
	now := b.now()
	count := 0
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(b.bucket)
		if bucket == nil {
			return fmt.Errorf("collection bucket %s missing", b.bucket)
		}
		return bucket.ForEach(func(_, v []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if doc, ok := decodeDocument(v); ok && !expired(doc.AddedAt, b.ttl, now) {
				count++
			}
			return nil
		})
	})
	return count, err
}

// cleanupExpired removes expired or undecodable entries.
func (b *boltIndex) cleanupExpired(now time.Time) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(b.bucket)
		if bucket == nil {
			return fmt.Errorf("collection bucket %s missing", b.bucket)
		}

		cursor := bucket.Cursor()
		for k, v := cursor.First(); k != nil; k, v = cursor.Next() {
			doc, ok := decodeDocument(v)
			if !ok || expired(doc.AddedAt, b.ttl, now) {
				if err := cursor.Delete(); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func decodeDocument(value []byte) (Document, bool) {
	var doc Document
	if err := json.Unmarshal(value, &doc); err != nil {
		return Document{}, false
	}
	if doc.AddedAt.IsZero() || len(doc.Vector) == 0 {
		return Document{}, false
	}
	return doc, true
}
