package engine

import (
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/kvstash/kvstash/pkg/codec"
	"github.com/kvstash/kvstash/pkg/crypto"
	"github.com/kvstash/kvstash/pkg/kv"
	"github.com/kvstash/kvstash/pkg/kverrors"
	"github.com/kvstash/kvstash/pkg/store"
)

// RotateMasterKey re-encrypts every encrypted entry under newPassphrase,
// in batches of batchSize entries per transaction (spec §4.2). A failure
// partway through a batch rolls back that batch only; batches already
// committed stay rotated. Returns the total number of entries rewritten.
func (e *Engine) RotateMasterKey(workspaceName, oldPassphrase, newPassphrase string, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 100
	}

	s, err := e.workspaces.Open(workspaceName)
	if err != nil {
		return 0, err
	}

	var keys []string
	err = s.View(func(tx *bolt.Tx) error {
		var err error
		keys, err = kv.ListKeys(tx, "")
		return err
	})
	if err != nil {
		return 0, err
	}

	total := 0
	for start := 0; start < len(keys); start += batchSize {
		end := start + batchSize
		if end > len(keys) {
			end = len(keys)
		}
		batch := keys[start:end]

		n, err := rotateBatch(s, batch, oldPassphrase, newPassphrase)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func rotateBatch(s *store.Store, keys []string, oldPassphrase, newPassphrase string) (int, error) {
	rewritten := 0
	err := s.Update(func(tx *bolt.Tx) error {
		for _, key := range keys {
			entry, found, err := kv.Get(tx, key)
			if err != nil {
				return err
			}
			if !found || !entry.Value.Encrypted {
				continue
			}

			plain, err := crypto.Decrypt(oldPassphrase, entry.Value.Raw)
			if err != nil {
				return kverrors.New(kverrors.ErrWrongKey, "rotate: decrypt under old passphrase failed").WithKey(key)
			}
			envelope, err := crypto.Encrypt(newPassphrase, plain)
			if err != nil {
				return err
			}
			entry.Value = codec.Stored{Kind: entry.Value.Kind, Raw: envelope, Encrypted: true}
			entry.UpdatedAt = time.Now()
			if err := kv.Overwrite(tx, entry); err != nil {
				return err
			}
			rewritten++
		}
		return nil
	})
	return rewritten, err
}
