// Package index maintains the engine's full-text search structures: an
// inverted index (token -> set of keys) kept inside the same bbolt
// transaction as the entry it indexes, per spec §4.4 ("the old document, if
// any, is removed and the new one inserted in the same transaction"). No
// library in the example corpus ships a turnkey embedded inverted index
// over bbolt, so this token -> keys mapping is hand-built, as spec §9
// anticipates ("if no library supplies FTS, maintain a token->keys mapping
// table").
package index

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"

	bolt "go.etcd.io/bbolt"

	"github.com/kvstash/kvstash/pkg/store"
)

var wordPattern = regexp.MustCompile(`[\p{L}\p{N}]+`)

// Tokenize splits text on Unicode word boundaries and case-folds the
// result. It is the same tokenizer used both to index a value and to parse
// a search query, so indexing and querying stay consistent.
func Tokenize(text string) []string {
	return wordPattern.FindAllString(strings.ToLower(text), -1)
}

// IndexKey replaces key's indexed document with the tokens of text, inside
// tx. Safe to call for a key that has never been indexed before.
func IndexKey(tx *bolt.Tx, key string, text string) error {
	if err := RemoveKey(tx, key); err != nil {
		return err
	}

	tokens := dedupe(Tokenize(text))
	if len(tokens) == 0 {
		return nil
	}

	tokensBucket := tx.Bucket([]byte(store.BucketFTSTokens))
	for _, tok := range tokens {
		b, err := tokensBucket.CreateBucketIfNotExists([]byte(tok))
		if err != nil {
			return err
		}
		if err := b.Put([]byte(key), []byte{1}); err != nil {
			return err
		}
	}

	docsBucket := tx.Bucket([]byte(store.BucketFTSDocs))
	raw, err := json.Marshal(tokens)
	if err != nil {
		return err
	}
	return docsBucket.Put([]byte(key), raw)
}

// RemoveKey removes key's indexed document, if one exists.
func RemoveKey(tx *bolt.Tx, key string) error {
	docsBucket := tx.Bucket([]byte(store.BucketFTSDocs))
	raw := docsBucket.Get([]byte(key))
	if raw == nil {
		return nil
	}

	var tokens []string
	if err := json.Unmarshal(raw, &tokens); err != nil {
		return err
	}

	tokensBucket := tx.Bucket([]byte(store.BucketFTSTokens))
	for _, tok := range tokens {
		b := tokensBucket.Bucket([]byte(tok))
		if b == nil {
			continue
		}
		if err := b.Delete([]byte(key)); err != nil {
			return err
		}
		if b.Stats().KeyN == 0 {
			if err := tokensBucket.DeleteBucket([]byte(tok)); err != nil {
				return err
			}
		}
	}
	return docsBucket.Delete([]byte(key))
}

// match accumulates, per candidate key, how many distinct query tokens it
// matched — the relevance signal used to order results.
type match struct {
	key   string
	score int
}

// Search returns at most limit keys whose indexed document matches any
// token of query, ordered by relevance (number of matched tokens)
// descending, tied-broken by key ascending. keysOnly is accepted for
// interface symmetry with callers that only need the key list — the
// returned value here is always just keys; the engine attaches values.
func Search(tx *bolt.Tx, query string, limit int, keysOnly bool) ([]string, error) {
	tokens := dedupe(Tokenize(query))
	if len(tokens) == 0 {
		return nil, nil
	}

	tokensBucket := tx.Bucket([]byte(store.BucketFTSTokens))
	scores := make(map[string]int)
	for _, tok := range tokens {
		b := tokensBucket.Bucket([]byte(tok))
		if b == nil {
			continue
		}
		_ = b.ForEach(func(k, _ []byte) error {
			scores[string(k)]++
			return nil
		})
	}

	matches := make([]match, 0, len(scores))
	for k, score := range scores {
		matches = append(matches, match{key: k, score: score})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].score != matches[j].score {
			return matches[i].score > matches[j].score
		}
		return matches[i].key < matches[j].key
	})

	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}

	keys := make([]string, len(matches))
	for i, m := range matches {
		keys[i] = m.key
	}
	return keys, nil
}

// Optimize rebuilds the inverted index from BucketFTSDocs (the source of
// truth for which tokens belong to which key), discarding any token
// buckets left over from partially-applied writes and compacting the
// per-token bucket layout.
func Optimize(tx *bolt.Tx) error {
	if err := tx.DeleteBucket([]byte(store.BucketFTSTokens)); err != nil && err != bolt.ErrBucketNotFound {
		return err
	}
	tokensBucket, err := tx.CreateBucket([]byte(store.BucketFTSTokens))
	if err != nil {
		return err
	}

	docsBucket := tx.Bucket([]byte(store.BucketFTSDocs))
	return docsBucket.ForEach(func(key, raw []byte) error {
		var tokens []string
		if err := json.Unmarshal(raw, &tokens); err != nil {
			return err
		}
		for _, tok := range tokens {
			b, err := tokensBucket.CreateBucketIfNotExists([]byte(tok))
			if err != nil {
				return err
			}
			if err := b.Put(key, []byte{1}); err != nil {
				return err
			}
		}
		return nil
	})
}

func dedupe(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
