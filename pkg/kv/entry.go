// Package kv implements the key-value operations of spec §4.7: save,
// patch, push, remove, delete, restore, listkeys, getkey, and their batch
// variant. Every exported function here takes an open bbolt transaction —
// the caller (pkg/engine) owns transaction boundaries, write-lock
// discipline, and the encryption/history/FTS/replication fan-out that must
// happen alongside each mutation.
package kv

import (
	"encoding/json"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/kvstash/kvstash/pkg/codec"
	"github.com/kvstash/kvstash/pkg/kverrors"
	"github.com/kvstash/kvstash/pkg/store"
)

// Entry is the persisted record for one kv-mode key.
type Entry struct {
	Key       string       `json:"key"`
	Value     codec.Stored `json:"value"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
	ExpiresAt time.Time    `json:"expires_at,omitempty"`
}

// SaveOutcome reports what save actually did, per spec §4.7.
type SaveOutcome string

const (
	SaveCreated     SaveOutcome = "created"
	SaveOverwritten SaveOutcome = "overwritten"
	SaveNoChange    SaveOutcome = "nochange"
)

func getRaw(tx *bolt.Tx, key string) (Entry, bool, error) {
	raw := tx.Bucket([]byte(store.BucketEntries)).Get([]byte(key))
	if raw == nil {
		return Entry{}, false, nil
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return Entry{}, false, err
	}
	return e, true, nil
}

func putRaw(tx *bolt.Tx, e Entry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return tx.Bucket([]byte(store.BucketEntries)).Put([]byte(e.Key), raw)
}

func deleteRaw(tx *bolt.Tx, key string) error {
	return tx.Bucket([]byte(store.BucketEntries)).Delete([]byte(key))
}

// Overwrite writes entry verbatim, bypassing the nochange/created/
// overwritten bookkeeping Save does. Used by the engine to rewrap an
// entry's Value between plaintext and its encryption envelope without
// disturbing CreatedAt/UpdatedAt or re-running Save's validation.
func Overwrite(tx *bolt.Tx, entry Entry) error {
	return putRaw(tx, entry)
}

// Get returns the live entry for key, or ok=false if absent. It does not
// perform TTL eviction — callers go through pkg/ttl first (the engine
// layers that check above this package so a single lazy-eviction path
// serves every read entry point).
func Get(tx *bolt.Tx, key string) (Entry, bool, error) {
	if strings.TrimSpace(key) == "" {
		return Entry{}, false, kverrors.New(kverrors.ErrValidation, "key must not be empty")
	}
	return getRaw(tx, key)
}

// Delete removes an entry outright, bypassing archive — used by TTL
// expiry, which per spec §4.6 purges with no archive record.
func Delete(tx *bolt.Tx, key string) error {
	return deleteRaw(tx, key)
}

// Save creates or overwrites the value at key. expiresAt is the zero Time
// when no TTL applies. Returns the outcome and the entry as committed (or
// as it already stood, for SaveNoChange).
func Save(tx *bolt.Tx, key string, value codec.Stored, now time.Time, expiresAt time.Time) (SaveOutcome, Entry, error) {
	if strings.TrimSpace(key) == "" {
		return "", Entry{}, kverrors.New(kverrors.ErrValidation, "key must not be empty")
	}
	if value.Kind == codec.KindText && len(value.Raw) == 0 {
		return "", Entry{}, kverrors.New(kverrors.ErrValidation, "value must not be empty string").WithKey(key)
	}

	existing, found, err := getRaw(tx, key)
	if err != nil {
		return "", Entry{}, err
	}

	if found && !existing.Value.Encrypted && !value.Encrypted && existing.Value.Encoded().Equal(value.Encoded()) {
		return SaveNoChange, existing, nil
	}

	entry := Entry{Key: key, Value: value, UpdatedAt: now, ExpiresAt: expiresAt}
	outcome := SaveCreated
	if found {
		entry.CreatedAt = existing.CreatedAt
		outcome = SaveOverwritten
	} else {
		entry.CreatedAt = now
	}

	if err := putRaw(tx, entry); err != nil {
		return "", Entry{}, err
	}
	return outcome, entry, nil
}

// Patch replaces the sub-path subSegments of the mapping/sequence stored at
// key with newVal (the whole value when subSegments is empty),
// re-encoding and storing the whole value. Fails with
// ErrSubpathNotFound if any intermediate segment does not exist or has
// the wrong shape.
func Patch(tx *bolt.Tx, key string, subSegments []string, newVal any, now time.Time) (Entry, error) {
	existing, found, err := getRaw(tx, key)
	if err != nil {
		return Entry{}, err
	}
	if !found {
		return Entry{}, kverrors.New(kverrors.ErrNotFound, "key not found").WithKey(key)
	}

	decoded, err := codec.Decode(existing.Value.Encoded())
	if err != nil {
		return Entry{}, err
	}

	if len(subSegments) == 0 {
		decoded = newVal
	} else {
		decoded, err = codec.SetPath(decoded, subSegments, newVal)
		if err != nil {
			return Entry{}, kverrors.New(kverrors.ErrSubpathNotFound, err.Error()).WithKey(key)
		}
	}

	enc, err := codec.Encode(decoded)
	if err != nil {
		return Entry{}, err
	}

	existing.Value = codec.FromEncoded(enc)
	existing.UpdatedAt = now
	if err := putRaw(tx, existing); err != nil {
		return Entry{}, err
	}
	return existing, nil
}

// Push appends newVal to the sequence stored at key, creating an empty
// list first if key is absent. With unique set, a value already present
// in the list yields ok=false (nochange) rather than a duplicate append.
func Push(tx *bolt.Tx, key string, newVal any, unique bool, now time.Time) (Entry, bool, error) {
	existing, found, err := getRaw(tx, key)
	if err != nil {
		return Entry{}, false, err
	}

	var list []any
	if found {
		decoded, err := codec.Decode(existing.Value.Encoded())
		if err != nil {
			return Entry{}, false, err
		}
		l, ok := decoded.([]any)
		if !ok {
			return Entry{}, false, kverrors.New(kverrors.ErrTypeMismatch, "value at key is not a sequence").WithKey(key)
		}
		list = l
	}

	if unique {
		for _, v := range list {
			if valuesEqual(v, newVal) {
				return existing, false, nil
			}
		}
	}

	list = append(list, newVal)
	enc, err := codec.Encode(list)
	if err != nil {
		return Entry{}, false, err
	}

	entry := Entry{Key: key, Value: codec.FromEncoded(enc), UpdatedAt: now}
	if found {
		entry.CreatedAt = existing.CreatedAt
	} else {
		entry.CreatedAt = now
	}
	if err := putRaw(tx, entry); err != nil {
		return Entry{}, false, err
	}
	return entry, true, nil
}

// Remove deletes every element equal to target from the sequence stored
// at key.
func Remove(tx *bolt.Tx, key string, target any, now time.Time) (Entry, error) {
	existing, found, err := getRaw(tx, key)
	if err != nil {
		return Entry{}, err
	}
	if !found {
		return Entry{}, kverrors.New(kverrors.ErrNotFound, "key not found").WithKey(key)
	}

	decoded, err := codec.Decode(existing.Value.Encoded())
	if err != nil {
		return Entry{}, err
	}
	list, ok := decoded.([]any)
	if !ok {
		return Entry{}, kverrors.New(kverrors.ErrTypeMismatch, "value at key is not a sequence").WithKey(key)
	}

	kept := make([]any, 0, len(list))
	for _, v := range list {
		if !valuesEqual(v, target) {
			kept = append(kept, v)
		}
	}

	enc, err := codec.Encode(kept)
	if err != nil {
		return Entry{}, err
	}
	existing.Value = codec.FromEncoded(enc)
	existing.UpdatedAt = now
	if err := putRaw(tx, existing); err != nil {
		return Entry{}, err
	}
	return existing, nil
}

func valuesEqual(a, b any) bool {
	ea, errA := codec.Encode(a)
	eb, errB := codec.Encode(b)
	if errA != nil || errB != nil {
		return false
	}
	return ea.Equal(eb)
}
