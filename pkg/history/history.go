// Package history implements the engine's append-only audit log and its
// paired tombstone buffer (the archive), per spec §4.5. Every committed
// mutation appends one Record inside the same bbolt transaction as the
// entry write it accompanies; every delete writes one ArchiveRecord so
// restore can revive a key without walking the whole history log.
package history

import (
	"encoding/binary"
	"encoding/json"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/kvstash/kvstash/pkg/codec"
	"github.com/kvstash/kvstash/pkg/store"
)

// Mutation kinds recorded against a key.
const (
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
	OpExpire = "expire"
)

// Record is one entry in the append-only audit log.
type Record struct {
	Seq       uint64      `json:"seq"`
	Key       string      `json:"key"`
	Value     codec.Stored `json:"value"`
	Op        string      `json:"op"`
	Timestamp time.Time   `json:"timestamp"`
}

func seqKey(seq uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, seq)
	return buf
}

// Append writes one Record to the history bucket, assigning it the next
// monotone sequence number for the workspace.
func Append(tx *bolt.Tx, key string, value codec.Stored, op string, ts time.Time) error {
	b := tx.Bucket([]byte(store.BucketHistory))
	seq, err := b.NextSequence()
	if err != nil {
		return err
	}
	rec := Record{Seq: seq, Key: key, Value: value, Op: op, Timestamp: ts}
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return b.Put(seqKey(seq), raw)
}

// All returns every history record in the workspace, newest-first.
func All(tx *bolt.Tx) ([]Record, error) {
	return scan(tx, "", false)
}

// ForKey returns the history records for a single key, newest-first.
func ForKey(tx *bolt.Tx, key string) ([]Record, error) {
	return scan(tx, key, true)
}

func scan(tx *bolt.Tx, key string, filterByKey bool) ([]Record, error) {
	b := tx.Bucket([]byte(store.BucketHistory))
	var out []Record
	c := b.Cursor()
	for k, v := c.Last(); k != nil; k, v = c.Prev() {
		var rec Record
		if err := json.Unmarshal(v, &rec); err != nil {
			return nil, err
		}
		if filterByKey && rec.Key != key {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// Newest returns the most recent record for key, if any.
func Newest(tx *bolt.Tx, key string) (Record, bool, error) {
	recs, err := ForKey(tx, key)
	if err != nil || len(recs) == 0 {
		return Record{}, false, err
	}
	return recs[0], true, nil
}

// AtOrBefore returns the newest record for key with Timestamp <= at.
func AtOrBefore(tx *bolt.Tx, key string, at time.Time) (Record, bool, error) {
	recs, err := ForKey(tx, key)
	if err != nil {
		return Record{}, false, err
	}
	for _, rec := range recs {
		if !rec.Timestamp.After(at) {
			return rec, true, nil
		}
	}
	return Record{}, false, nil
}

// Compact deletes history records older than cutoff, returning the count
// removed.
func Compact(tx *bolt.Tx, cutoff time.Time) (int, error) {
	b := tx.Bucket([]byte(store.BucketHistory))
	c := b.Cursor()
	var toDelete [][]byte
	for k, v := c.First(); k != nil; k, v = c.Next() {
		var rec Record
		if err := json.Unmarshal(v, &rec); err != nil {
			return 0, err
		}
		if rec.Timestamp.Before(cutoff) {
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
