// Package replication implements the engine's replication journal: a local,
// strictly-ordered, append-only log of committed mutations (spec §4.9).
// Shipping the log to another host is the caller's concern — the engine
// only produces and retains it. Retention follows the same policy as
// history and archive (spec §9's open-question resolution), so Compact
// here is called alongside history.Compact/history.CompactArchive from the
// same engine-level compact operation.
package replication

import (
	"encoding/binary"
	"encoding/json"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/kvstash/kvstash/pkg/codec"
	"github.com/kvstash/kvstash/pkg/store"
)

// Entry is one committed mutation in the replication journal. CorrelationID
// ties entries from the same caller-level batch together (e.g. a SaveMany
// call or a single Save), so a downstream consumer of Stream can group
// entries that committed as one logical unit even though they occupy
// distinct sequence numbers.
type Entry struct {
	Seq           uint64       `json:"seq"`
	Op            string       `json:"op"`
	Key           string       `json:"key"`
	ValueAfter    codec.Stored `json:"value_after"`
	Timestamp     time.Time    `json:"timestamp"`
	CorrelationID string       `json:"correlation_id,omitempty"`
}

func seqKey(seq uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, seq)
	return buf
}

// Append records one committed mutation, assigning it the next seq.
// correlationID is opaque to this package; pass "" when the caller has none.
func Append(tx *bolt.Tx, op, key string, valueAfter codec.Stored, ts time.Time, correlationID string) error {
	b := tx.Bucket([]byte(store.BucketReplication))
	seq, err := b.NextSequence()
	if err != nil {
		return err
	}
	entry := Entry{Seq: seq, Op: op, Key: key, ValueAfter: valueAfter, Timestamp: ts, CorrelationID: correlationID}
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return b.Put(seqKey(seq), raw)
}

// Stream returns every entry with Seq > lastID, in seq order.
func Stream(tx *bolt.Tx, lastID uint64) ([]Entry, error) {
	b := tx.Bucket([]byte(store.BucketReplication))
	c := b.Cursor()
	var out []Entry
	for k, v := c.Seek(seqKey(lastID + 1)); k != nil; k, v = c.Next() {
		var entry Entry
		if err := json.Unmarshal(v, &entry); err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, nil
}

// Compact deletes journal entries older than cutoff, returning the count
// removed.
func Compact(tx *bolt.Tx, cutoff time.Time) (int, error) {
	b := tx.Bucket([]byte(store.BucketReplication))
	c := b.Cursor()
	var toDelete [][]byte
	for k, v := c.First(); k != nil; k, v = c.Next() {
		var entry Entry
		if err := json.Unmarshal(v, &entry); err != nil {
			return 0, err
		}
		if entry.Timestamp.Before(cutoff) {
			dup := make([]byte, len(k))
			copy(dup, k)
			toDelete = append(toDelete, dup)
		}
	}
	for _, k := range toDelete {
		if err := b.Delete(k); err != nil {
			return 0, err
		}
	}
	return len(toDelete), nil
}
