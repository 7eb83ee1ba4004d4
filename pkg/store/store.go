// Package store provides the engine's durable backing: one bbolt file per
// workspace, with ACID transactions, write-ahead logging, and fsync-on-commit
// handled by bbolt itself. db.Update gives the single-writer/many-reader
// discipline the engine's concurrency model (spec §5) requires; db.View
// gives lock-free snapshot reads that never block behind the current
// writer.
package store

import (
	"os"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/kvstash/kvstash/pkg/kverrors"
)

// Bucket names. One bbolt file holds all of them; workspace isolation comes
// from using a distinct file per workspace, not from bucket namespacing.
const (
	BucketEntries     = "entries"
	BucketItems       = "items"
	BucketHistory     = "history"
	BucketArchive     = "archive"
	BucketReplication = "replication"
	BucketMetadata    = "metadata"
	BucketFTSTokens   = "fts_tokens" // token -> nested bucket of key -> marker
	BucketFTSDocs     = "fts_docs"   // key -> JSON array of tokens indexed for that key
)

// Metadata keys stored in BucketMetadata.
const (
	MetaWorkspaceType = "workspace_type"
	MetaSchemaVersion = "schema_version"
)

// SchemaVersion is the current on-disk schema version written to new
// workspace files. Bumping it and adding a migration step in Open lets
// future releases evolve the bucket layout without breaking old files.
const SchemaVersion = 1

var allBuckets = []string{
	BucketEntries,
	BucketItems,
	BucketHistory,
	BucketArchive,
	BucketReplication,
	BucketMetadata,
	BucketFTSTokens,
	BucketFTSDocs,
}

// Store is a single workspace's backing file.
type Store struct {
	db      *bolt.DB
	Path    string
	timeout time.Duration
}

// Open opens (creating if absent) the workspace file at path. timeout bounds
// how long bbolt waits to acquire the OS file lock before giving up — a
// second process holding the same file fails fast with kverrors.ErrLocked,
// matching spec §5's "single writer per file" requirement.
func Open(path string, timeout time.Duration) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: timeout})
	if err != nil {
		if err == bolt.ErrTimeout {
			return nil, kverrors.New(kverrors.ErrLocked, "workspace file is held by another process").WithWorkspace(path)
		}
		return nil, err
	}

	s := &Store{db: db, Path: path, timeout: timeout}
	if err := s.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		meta := tx.Bucket([]byte(BucketMetadata))
		if meta.Get([]byte(MetaSchemaVersion)) == nil {
			return meta.Put([]byte(MetaSchemaVersion), []byte{SchemaVersion})
		}
		return nil
	})
}

// Close releases the file handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Update runs fn inside a read-write transaction. bbolt serializes all
// writers for this file internally; the engine layers its own deadline
// check on top (see pkg/engine) so a caller can bound how long it is
// willing to wait for the write lock.
func (s *Store) Update(fn func(tx *bolt.Tx) error) error {
	return s.db.Update(fn)
}

// View runs fn inside a read-only transaction against a consistent
// snapshot that never blocks on the current writer.
func (s *Store) View(fn func(tx *bolt.Tx) error) error {
	return s.db.View(fn)
}

// Vacuum reclaims space left behind by deleted history/archive/replication
// records: it copies the live B+tree into a fresh file via bolt.Compact,
// then swaps that file in under the same path. Compact runs against a
// consistent snapshot, so the caller need not hold a write transaction open
// across the call; it should still be the only writer in flight, which the
// engine's per-workspace serialization already guarantees.
func (s *Store) Vacuum() error {
	tmpPath := s.Path + ".compact.tmp"
	_ = os.Remove(tmpPath)

	dst, err := bolt.Open(tmpPath, 0o600, nil)
	if err != nil {
		return err
	}
	if err := bolt.Compact(dst, s.db, 0); err != nil {
		_ = dst.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}

	if err := s.db.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, s.Path); err != nil {
		return err
	}

	db, err := bolt.Open(s.Path, 0o600, &bolt.Options{Timeout: s.timeout})
	if err != nil {
		return err
	}
	s.db = db
	return nil
}
