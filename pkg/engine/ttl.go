package engine

import (
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/kvstash/kvstash/pkg/history"
	"github.com/kvstash/kvstash/pkg/index"
	"github.com/kvstash/kvstash/pkg/kv"
	"github.com/kvstash/kvstash/pkg/ttl"
)

// evictIfExpired checks key's TTL and, if it has passed, removes the entry
// inside tx with no archive record and a history entry tagged expire —
// spec §4.6's lazy eviction path. Returns true if key was evicted.
func evictIfExpired(tx *bolt.Tx, key string, now time.Time) (bool, error) {
	entry, found, err := kv.Get(tx, key)
	if err != nil || !found {
		return false, err
	}
	if !ttl.Expired(entry.ExpiresAt, now) {
		return false, nil
	}
	if err := kv.Delete(tx, key); err != nil {
		return false, err
	}
	if err := index.RemoveKey(tx, key); err != nil {
		return false, err
	}
	if err := history.Append(tx, key, entry.Value, history.OpExpire, now); err != nil {
		return false, err
	}
	return true, nil
}

// sweepExpired scans every live entry and evicts the ones past their TTL.
// Each Engine runs this once per workspace, the first time it opens that
// workspace (see Engine.sweepOnFirstOpen), and otherwise relies on the
// lazy per-read eviction in evictIfExpired/ListKeys; spec §4.6 allows removal to lag a
// bounded grace window between sweeps, which this satisfies without a
// background ticker.
func sweepExpired(tx *bolt.Tx, now time.Time) (int, error) {
	keys, err := kv.ListKeys(tx, "")
	if err != nil {
		return 0, err
	}
	swept := 0
	for _, key := range keys {
		evicted, err := evictIfExpired(tx, key, now)
		if err != nil {
			return swept, err
		}
		if evicted {
			swept++
		}
	}
	return swept, nil
}
