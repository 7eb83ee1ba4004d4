package kv

import (
	"regexp"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/kvstash/kvstash/pkg/codec"
	"github.com/kvstash/kvstash/pkg/history"
	"github.com/kvstash/kvstash/pkg/kverrors"
	"github.com/kvstash/kvstash/pkg/store"
)

// ListKeys returns every live key, optionally filtered to those whose name
// matches pattern as a substring regular expression. Results are sorted
// for deterministic output.
func ListKeys(tx *bolt.Tx, pattern string) ([]string, error) {
	var re *regexp.Regexp
	if pattern != "" {
		compiled, err := regexp.Compile(pattern)
		if err != nil {
			return nil, kverrors.New(kverrors.ErrValidation, "invalid pattern: "+err.Error())
		}
		re = compiled
	}

	var keys []string
	err := tx.Bucket([]byte(store.BucketEntries)).ForEach(func(k, _ []byte) error {
		key := string(k)
		if re == nil || re.MatchString(key) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

// GetKeyResult is what GetKey returns: either a decoded/raw value, or one
// of the two distinguished not-found states spec §4.7 calls for.
type GetKeyResult struct {
	Found         bool
	SubpathFound  bool
	Value         any
	Raw           codec.Stored
}

// GetKey traverses key's value along subSegments and returns it either
// decoded (deserialize=true) or as the raw stored text (deserialize=false,
// segments must be empty in that case — raw mode only applies to the
// whole value).
func GetKey(tx *bolt.Tx, key string, subSegments []string, deserialize bool) (GetKeyResult, error) {
	entry, found, err := getRaw(tx, key)
	if err != nil {
		return GetKeyResult{}, err
	}
	if !found {
		return GetKeyResult{Found: false}, nil
	}

	if !deserialize && len(subSegments) == 0 {
		return GetKeyResult{Found: true, SubpathFound: true, Raw: entry.Value}, nil
	}

	decoded, err := codec.Decode(entry.Value.Encoded())
	if err != nil {
		return GetKeyResult{}, err
	}

	if len(subSegments) == 0 {
		return GetKeyResult{Found: true, SubpathFound: true, Value: decoded, Raw: entry.Value}, nil
	}

	sub, ok := codec.GetPath(decoded, subSegments)
	if !ok {
		return GetKeyResult{Found: true, SubpathFound: false}, nil
	}
	return GetKeyResult{Found: true, SubpathFound: true, Value: sub}, nil
}

// DeleteResult carries the entry that was archived, for callers (e.g. the
// engine) that need to fan the value out to history before it is gone.
type DeleteResult struct {
	Entry Entry
}

// DeleteToArchive moves the live entry at key to the archive bucket and
// removes it from entries, inside tx. The caller is responsible for appending the
// accompanying history record.
func DeleteToArchive(tx *bolt.Tx, key string, now time.Time) (DeleteResult, error) {
	entry, found, err := getRaw(tx, key)
	if err != nil {
		return DeleteResult{}, err
	}
	if !found {
		return DeleteResult{}, kverrors.New(kverrors.ErrNotFound, "key not found").WithKey(key)
	}

	if err := history.PutArchive(tx, key, entry.Value, now); err != nil {
		return DeleteResult{}, err
	}
	if err := deleteRaw(tx, key); err != nil {
		return DeleteResult{}, err
	}
	return DeleteResult{Entry: entry}, nil
}

// Restore revives key from the archive tombstone (if no timestamp is
// given) or from the newest history record at or before timestamp.
// Reinstating the value also clears the archive tombstone, since the key
// is live again.
func Restore(tx *bolt.Tx, key string, at *time.Time, now time.Time) (Entry, error) {
	var value codec.Stored
	var createdAt time.Time

	if at != nil {
		rec, ok, err := history.AtOrBefore(tx, key, *at)
		if err != nil {
			return Entry{}, err
		}
		if !ok {
			return Entry{}, kverrors.New(kverrors.ErrNotFound, "no history at or before timestamp").WithKey(key)
		}
		value = rec.Value
		createdAt = rec.Timestamp
	} else {
		archived, ok, err := history.GetArchive(tx, key)
		if err == nil && ok {
			value = archived.Value
			createdAt = archived.DeletedAt
		} else {
			if err != nil {
				return Entry{}, err
			}
			rec, ok, err := history.Newest(tx, key)
			if err != nil {
				return Entry{}, err
			}
			if !ok {
				return Entry{}, kverrors.New(kverrors.ErrNotFound, "no history to restore from").WithKey(key)
			}
			value = rec.Value
			createdAt = rec.Timestamp
		}
	}

	entry := Entry{Key: key, Value: value, CreatedAt: createdAt, UpdatedAt: now}
	if err := putRaw(tx, entry); err != nil {
		return Entry{}, err
	}
	if err := history.DeleteArchive(tx, key); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// SaveItem is one element of a SaveMany batch.
type SaveItem struct {
	Key       string
	Value     codec.Stored
	ExpiresAt time.Time
}

// SaveMany applies every item in items inside the already-open tx,
// stopping and returning an error on the first failure — the caller rolls
// back the whole batch by returning that error from its bbolt Update
// callback.
func SaveMany(tx *bolt.Tx, items []SaveItem, now time.Time) ([]SaveOutcome, error) {
	outcomes := make([]SaveOutcome, 0, len(items))
	for _, item := range items {
		outcome, _, err := Save(tx, item.Key, item.Value, now, item.ExpiresAt)
		if err != nil {
			return nil, err
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, nil
}
