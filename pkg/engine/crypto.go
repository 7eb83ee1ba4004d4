package engine

import (
	bolt "go.etcd.io/bbolt"

	"github.com/kvstash/kvstash/pkg/codec"
	"github.com/kvstash/kvstash/pkg/crypto"
	"github.com/kvstash/kvstash/pkg/kv"
	"github.com/kvstash/kvstash/pkg/kverrors"
)

// sealValue turns a canonical encoding into its persisted Stored form,
// sealing it under the engine's passphrase when one is configured.
func (e *Engine) sealValue(enc codec.Encoded) (codec.Stored, error) {
	if e.opts.Passphrase == "" {
		return codec.FromEncoded(enc), nil
	}
	envelope, err := crypto.Encrypt(e.opts.Passphrase, enc.Raw)
	if err != nil {
		return codec.Stored{}, err
	}
	return codec.Stored{Kind: enc.Kind, Raw: envelope, Encrypted: true}, nil
}

// openValue reverses sealValue: it returns the plaintext Encoded for a
// Stored value, or the opaque placeholder if the value is encrypted and
// no passphrase was supplied.
func (e *Engine) openValue(stored codec.Stored) (codec.Encoded, bool, error) {
	if !stored.Encrypted {
		return stored.Encoded(), true, nil
	}
	if e.opts.Passphrase == "" {
		return codec.Encoded{Kind: codec.KindText, Raw: []byte(crypto.Placeholder)}, false, nil
	}
	plain, err := crypto.Decrypt(e.opts.Passphrase, stored.Raw)
	if err != nil {
		return codec.Encoded{}, false, err
	}
	return codec.Encoded{Kind: stored.Kind, Raw: plain}, true, nil
}

// decryptEntryForMutation temporarily rewrites key's entry to hold
// plaintext, so kv.Patch/Push/Remove (which are not crypto-aware) can
// operate on it directly. Returns whether the entry was encrypted, so the
// caller knows to re-seal it afterward with reencryptEntry.
func (e *Engine) decryptEntryForMutation(tx *bolt.Tx, key string) (bool, error) {
	entry, found, err := kv.Get(tx, key)
	if err != nil || !found || !entry.Value.Encrypted {
		return false, err
	}
	if e.opts.Passphrase == "" {
		return false, kverrors.New(kverrors.ErrKeyRequired, "value is encrypted; master key required").WithKey(key)
	}
	plain, err := crypto.Decrypt(e.opts.Passphrase, entry.Value.Raw)
	if err != nil {
		return false, err
	}
	entry.Value = codec.Stored{Kind: entry.Value.Kind, Raw: plain, Encrypted: false}
	return true, kv.Overwrite(tx, entry)
}

// reencryptEntry re-seals key's entry after a mutation performed on its
// temporarily-decrypted plaintext.
func (e *Engine) reencryptEntry(tx *bolt.Tx, key string, wasEncrypted bool) error {
	if !wasEncrypted {
		return nil
	}
	entry, found, err := kv.Get(tx, key)
	if err != nil || !found {
		return err
	}
	envelope, err := crypto.Encrypt(e.opts.Passphrase, entry.Value.Raw)
	if err != nil {
		return err
	}
	entry.Value = codec.Stored{Kind: entry.Value.Kind, Raw: envelope, Encrypted: true}
	return kv.Overwrite(tx, entry)
}
