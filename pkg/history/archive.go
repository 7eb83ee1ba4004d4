package history

import (
	"encoding/json"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/kvstash/kvstash/pkg/codec"
	"github.com/kvstash/kvstash/pkg/store"
)

// ArchiveRecord is the short-lived tombstone written on delete, letting
// restore revive a key without consulting history.
type ArchiveRecord struct {
	Key       string       `json:"key"`
	Value     codec.Stored `json:"value"`
	DeletedAt time.Time    `json:"deleted_at"`
}

// PutArchive writes (or overwrites) the tombstone for key.
func PutArchive(tx *bolt.Tx, key string, value codec.Stored, deletedAt time.Time) error {
	rec := ArchiveRecord{Key: key, Value: value, DeletedAt: deletedAt}
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return tx.Bucket([]byte(store.BucketArchive)).Put([]byte(key), raw)
}

// GetArchive returns the tombstone for key, if one exists.
func GetArchive(tx *bolt.Tx, key string) (ArchiveRecord, bool, error) {
	raw := tx.Bucket([]byte(store.BucketArchive)).Get([]byte(key))
	if raw == nil {
		return ArchiveRecord{}, false, nil
	}
	var rec ArchiveRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return ArchiveRecord{}, false, err
	}
	return rec, true, nil
}

// DeleteArchive removes the tombstone for key (called on restore).
func DeleteArchive(tx *bolt.Tx, key string) error {
	return tx.Bucket([]byte(store.BucketArchive)).Delete([]byte(key))
}

// CompactArchive deletes tombstones older than cutoff, returning the count
// removed.
func CompactArchive(tx *bolt.Tx, cutoff time.Time) (int, error) {
	b := tx.Bucket([]byte(store.BucketArchive))
	c := b.Cursor()
	var toDelete [][]byte
	for k, v := c.First(); k != nil; k, v = c.Next() {
		var rec ArchiveRecord
		if err := json.Unmarshal(v, &rec); err != nil {
			return 0, err
		}
		if rec.DeletedAt.Before(cutoff) {
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
