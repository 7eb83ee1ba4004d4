package engine

import (
	bolt "go.etcd.io/bbolt"

	"github.com/kvstash/kvstash/pkg/codec"
	"github.com/kvstash/kvstash/pkg/index"
	"github.com/kvstash/kvstash/pkg/kv"
)

// SearchResult pairs a matched key with its current value, unless
// keysOnly was requested.
type SearchResult struct {
	Key   string
	Value any
}

// Search returns at most limit keys whose indexed document matches query,
// per spec §4.4.
func (e *Engine) Search(workspaceName, query string, limit int, keysOnly bool) ([]SearchResult, error) {
	var results []SearchResult
	err := e.view(workspaceName, "search", func(tx *bolt.Tx) error {
		keys, err := index.Search(tx, query, limit, keysOnly)
		if err != nil {
			return err
		}
		results = make([]SearchResult, 0, len(keys))
		for _, key := range keys {
			if keysOnly {
				results = append(results, SearchResult{Key: key})
				continue
			}
			entry, found, err := kv.Get(tx, key)
			if err != nil {
				return err
			}
			if !found {
				continue
			}
			enc, unlocked, err := e.openValue(entry.Value)
			if err != nil {
				return err
			}
			var value any
			if unlocked {
				value, err = codec.Decode(enc)
				if err != nil {
					return err
				}
			}
			results = append(results, SearchResult{Key: key, Value: value})
		}
		return nil
	})
	return results, err
}

// OptimizeIndex rebuilds the inverted index for compactness and query
// speed.
func (e *Engine) OptimizeIndex(workspaceName string) error {
	return e.update(workspaceName, "optimize_index", func(tx *bolt.Tx) error {
		return index.Optimize(tx)
	})
}
