package engine

import (
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/kvstash/kvstash/pkg/codec"
	"github.com/kvstash/kvstash/pkg/history"
	"github.com/kvstash/kvstash/pkg/index"
	"github.com/kvstash/kvstash/pkg/kv"
	"github.com/kvstash/kvstash/pkg/log"
	"github.com/kvstash/kvstash/pkg/replication"
	"github.com/kvstash/kvstash/pkg/ttl"
)

// reindex re-reads key's current plaintext value and refreshes its FTS
// document. Called after any mutation so the index never drifts from
// Entries (spec §3 invariant 2).
func (e *Engine) reindex(tx *bolt.Tx, key string) error {
	entry, found, err := kv.Get(tx, key)
	if err != nil {
		return err
	}
	if !found {
		return index.RemoveKey(tx, key)
	}
	enc, ok, err := e.openValue(entry.Value)
	if err != nil {
		return err
	}
	if !ok {
		// Encrypted with no key available: can't stringify plaintext, so
		// leave the prior index entry alone rather than indexing ciphertext.
		return nil
	}
	decoded, err := codec.Decode(enc)
	if err != nil {
		return err
	}
	text, err := codec.Stringify(decoded)
	if err != nil {
		return err
	}
	return index.IndexKey(tx, key, text)
}

// Save creates or overwrites the value at key, per spec §4.7. value may be
// textual (promoted the same way a CLI argument would be) or an
// already-structured Go value. ttlExpr is "" for no expiry.
func (e *Engine) Save(workspaceName, key string, value any, ttlExpr string) (kv.SaveOutcome, error) {
	if s, ok := value.(string); ok {
		value = codec.Promote(s)
	}
	enc, err := codec.Encode(value)
	if err != nil {
		return "", err
	}

	var expiresAt time.Time
	if ttlExpr != "" {
		expiresAt, err = ttl.ExpiresAt(ttlExpr, time.Now())
		if err != nil {
			return "", err
		}
	}

	var outcome kv.SaveOutcome
	err = e.update(workspaceName, "save", func(tx *bolt.Tx) error {
		now := time.Now()
		if err := requireKVMode(tx); err != nil {
			return err
		}
		if _, err := evictIfExpired(tx, key, now); err != nil {
			return err
		}

		stored, err := e.sealValue(enc)
		if err != nil {
			return err
		}

		var entry kv.Entry
		outcome, entry, err = kv.Save(tx, key, stored, now, expiresAt)
		if err != nil {
			return err
		}
		if outcome == kv.SaveNoChange {
			return nil
		}

		op := history.OpUpdate
		if outcome == kv.SaveCreated {
			op = history.OpCreate
		}
		if err := history.Append(tx, key, entry.Value, op, now); err != nil {
			return err
		}
		if err := replication.Append(tx, op, key, entry.Value, now, uuid.NewString()); err != nil {
			return err
		}
		text, err := codec.Stringify(value)
		if err != nil {
			return err
		}
		return index.IndexKey(tx, key, text)
	})
	return outcome, err
}

// Patch updates a sub-path within the mapping/sequence stored at key.
func (e *Engine) Patch(workspaceName, key string, subpath string, value any) error {
	if s, ok := value.(string); ok {
		value = codec.Promote(s)
	}
	segments := codec.SplitPath(subpath)

	return e.update(workspaceName, "patch", func(tx *bolt.Tx) error {
		now := time.Now()
		if err := requireKVMode(tx); err != nil {
			return err
		}
		if _, err := evictIfExpired(tx, key, now); err != nil {
			return err
		}

		wasEncrypted, err := e.decryptEntryForMutation(tx, key)
		if err != nil {
			return err
		}
		entry, err := kv.Patch(tx, key, segments, value, now)
		if err != nil {
			return err
		}
		if err := e.reencryptEntry(tx, key, wasEncrypted); err != nil {
			return err
		}
		if err := history.Append(tx, key, entry.Value, history.OpUpdate, now); err != nil {
			return err
		}
		if err := replication.Append(tx, history.OpUpdate, key, entry.Value, now, uuid.NewString()); err != nil {
			return err
		}
		return e.reindex(tx, key)
	})
}

// Push appends value to the sequence stored at key, creating it if
// absent. Returns false if unique was set and value was already present.
func (e *Engine) Push(workspaceName, key string, value any, unique bool) (bool, error) {
	if s, ok := value.(string); ok {
		value = codec.Promote(s)
	}

	var changed bool
	err := e.update(workspaceName, "push", func(tx *bolt.Tx) error {
		now := time.Now()
		if err := requireKVMode(tx); err != nil {
			return err
		}
		if _, err := evictIfExpired(tx, key, now); err != nil {
			return err
		}

		wasEncrypted, err := e.decryptEntryForMutation(tx, key)
		if err != nil {
			return err
		}
		var entry kv.Entry
		entry, changed, err = kv.Push(tx, key, value, unique, now)
		if err != nil {
			return err
		}
		if err := e.reencryptEntry(tx, key, wasEncrypted); err != nil {
			return err
		}
		if !changed {
			return nil
		}
		if err := history.Append(tx, key, entry.Value, history.OpUpdate, now); err != nil {
			return err
		}
		if err := replication.Append(tx, history.OpUpdate, key, entry.Value, now, uuid.NewString()); err != nil {
			return err
		}
		return e.reindex(tx, key)
	})
	return changed, err
}

// Remove deletes every element equal to value from the sequence at key.
func (e *Engine) Remove(workspaceName, key string, value any) error {
	if s, ok := value.(string); ok {
		value = codec.Promote(s)
	}

	return e.update(workspaceName, "remove", func(tx *bolt.Tx) error {
		now := time.Now()
		if err := requireKVMode(tx); err != nil {
			return err
		}
		if _, err := evictIfExpired(tx, key, now); err != nil {
			return err
		}

		wasEncrypted, err := e.decryptEntryForMutation(tx, key)
		if err != nil {
			return err
		}
		entry, err := kv.Remove(tx, key, value, now)
		if err != nil {
			return err
		}
		if err := e.reencryptEntry(tx, key, wasEncrypted); err != nil {
			return err
		}
		if err := history.Append(tx, key, entry.Value, history.OpUpdate, now); err != nil {
			return err
		}
		if err := replication.Append(tx, history.OpUpdate, key, entry.Value, now, uuid.NewString()); err != nil {
			return err
		}
		return e.reindex(tx, key)
	})
}

// Delete moves key's entry to the archive, per spec §4.7.
func (e *Engine) Delete(workspaceName, key string) error {
	return e.update(workspaceName, "delete", func(tx *bolt.Tx) error {
		now := time.Now()
		if err := requireKVMode(tx); err != nil {
			return err
		}
		if _, err := evictIfExpired(tx, key, now); err != nil {
			return err
		}

		result, err := kv.DeleteToArchive(tx, key, now)
		if err != nil {
			return err
		}
		if err := history.Append(tx, key, result.Entry.Value, history.OpDelete, now); err != nil {
			return err
		}
		if err := replication.Append(tx, history.OpDelete, key, result.Entry.Value, now, uuid.NewString()); err != nil {
			return err
		}
		return index.RemoveKey(tx, key)
	})
}

// Restore revives key from its archive tombstone, or from the newest
// history record at or before at if at is non-nil.
func (e *Engine) Restore(workspaceName, key string, at *time.Time) error {
	return e.update(workspaceName, "restore", func(tx *bolt.Tx) error {
		now := time.Now()
		if err := requireKVMode(tx); err != nil {
			return err
		}
		entry, err := kv.Restore(tx, key, at, now)
		if err != nil {
			return err
		}
		if err := history.Append(tx, key, entry.Value, history.OpCreate, now); err != nil {
			return err
		}
		if err := replication.Append(tx, history.OpCreate, key, entry.Value, now, uuid.NewString()); err != nil {
			return err
		}
		log.WithKey(key).Debug().Msg("restored")
		return e.reindex(tx, key)
	})
}

// ListKeys returns live keys, optionally filtered by pattern (substring
// regular expression).
func (e *Engine) ListKeys(workspaceName, pattern string) ([]string, error) {
	var keys []string
	err := e.update(workspaceName, "listkeys", func(tx *bolt.Tx) error {
		if _, err := sweepExpired(tx, time.Now()); err != nil {
			return err
		}
		var err error
		keys, err = kv.ListKeys(tx, pattern)
		return err
	})
	return keys, err
}

// GetKey returns the value at key (optionally traversing a dotted
// subpath), evicting it first if its TTL has passed. When the stored
// value is encrypted and no passphrase is configured, Value holds
// crypto.Placeholder instead of failing the read.
func (e *Engine) GetKey(workspaceName, key, subpath string, deserialize bool) (kv.GetKeyResult, error) {
	segments := codec.SplitPath(subpath)

	var result kv.GetKeyResult
	err := e.update(workspaceName, "getkey", func(tx *bolt.Tx) error {
		now := time.Now()
		if _, err := evictIfExpired(tx, key, now); err != nil {
			return err
		}

		entry, found, err := kv.Get(tx, key)
		if err != nil {
			return err
		}
		if !found {
			result = kv.GetKeyResult{Found: false}
			return nil
		}

		enc, unlocked, err := e.openValue(entry.Value)
		if err != nil {
			return err
		}
		if !unlocked {
			result = kv.GetKeyResult{Found: true, SubpathFound: true, Value: string(enc.Raw), Raw: codec.FromEncoded(enc)}
			return nil
		}

		if !deserialize && len(segments) == 0 {
			result = kv.GetKeyResult{Found: true, SubpathFound: true, Value: string(enc.Raw), Raw: codec.FromEncoded(enc)}
			return nil
		}

		decoded, err := codec.Decode(enc)
		if err != nil {
			return err
		}
		if len(segments) == 0 {
			result = kv.GetKeyResult{Found: true, SubpathFound: true, Value: decoded, Raw: codec.FromEncoded(enc)}
			return nil
		}
		sub, ok := codec.GetPath(decoded, segments)
		result = kv.GetKeyResult{Found: true, SubpathFound: ok, Value: sub}
		return nil
	})
	return result, err
}

// SaveMany applies every (key, value, ttl) item in a single transaction;
// the whole batch rolls back on the first error.
type SaveManyItem struct {
	Key   string
	Value any
	TTL   string
}

func (e *Engine) SaveMany(workspaceName string, items []SaveManyItem) ([]kv.SaveOutcome, error) {
	batchID := uuid.NewString()
	batchLog := log.WithCorrelation(batchID)

	var outcomes []kv.SaveOutcome
	err := e.update(workspaceName, "save_many", func(tx *bolt.Tx) error {
		now := time.Now()
		if err := requireKVMode(tx); err != nil {
			return err
		}

		outcomes = make([]kv.SaveOutcome, 0, len(items))
		for _, item := range items {
			value := item.Value
			if s, ok := value.(string); ok {
				value = codec.Promote(s)
			}
			enc, err := codec.Encode(value)
			if err != nil {
				return err
			}
			var expiresAt time.Time
			if item.TTL != "" {
				expiresAt, err = ttl.ExpiresAt(item.TTL, now)
				if err != nil {
					return err
				}
			}
			stored, err := e.sealValue(enc)
			if err != nil {
				return err
			}
			outcome, entry, err := kv.Save(tx, item.Key, stored, now, expiresAt)
			if err != nil {
				return err
			}
			outcomes = append(outcomes, outcome)
			if outcome == kv.SaveNoChange {
				continue
			}
			op := history.OpUpdate
			if outcome == kv.SaveCreated {
				op = history.OpCreate
			}
			if err := history.Append(tx, item.Key, entry.Value, op, now); err != nil {
				return err
			}
			if err := replication.Append(tx, op, item.Key, entry.Value, now, batchID); err != nil {
				return err
			}
			text, err := codec.Stringify(value)
			if err != nil {
				return err
			}
			if err := index.IndexKey(tx, item.Key, text); err != nil {
				return err
			}
		}
		return nil
	})
	batchLog.Debug().Str("op", "save_many").Int("count", len(outcomes)).Msg("batch save committed")
	return outcomes, err
}
