// Package crypto implements the engine's at-rest encryption envelope: a
// password-derived key (via Argon2id) and authenticated encryption
// (ChaCha20-Poly1305) over each stored payload, one salt and nonce per
// value. The wire layout is magic(2B) ‖ salt(16B) ‖ nonce(12B) ‖
// ciphertext(var) ‖ tag(16B); the AEAD's Seal output already places the
// 16-byte Poly1305 tag at the end of the ciphertext, so no separate framing
// is needed for it.
package crypto

import (
	"crypto/rand"
	"fmt"

	"github.com/kvstash/kvstash/pkg/kverrors"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

var magic = [2]byte{'k', 'v'}

const (
	saltSize = 16

	// Argon2id parameters calibrated for tens-of-milliseconds-per-derivation
	// on commodity hardware: a single pass over 64MiB with 4 lanes.
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = chacha20poly1305.KeySize
)

// Placeholder is returned in place of a value's plaintext when the caller
// reads an encrypted entry without supplying a master key.
const Placeholder = "Encrypted — key required"

// DeriveKey stretches a passphrase and salt into a symmetric key via
// Argon2id. The returned key should be zeroed by the caller once the AEAD
// built from it is no longer needed.
func DeriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
}

// Encrypt seals plaintext under a key derived from passphrase, returning
// the full envelope (magic ‖ salt ‖ nonce ‖ ciphertext ‖ tag).
func Encrypt(passphrase string, plaintext []byte) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("crypto: generate salt: %w", err)
	}

	key := DeriveKey(passphrase, salt)
	defer zero(key)

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: build aead: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: generate nonce: %w", err)
	}

	sealed := aead.Seal(nil, nonce, plaintext, nil)

	out := make([]byte, 0, 2+saltSize+len(nonce)+len(sealed))
	out = append(out, magic[0], magic[1])
	out = append(out, salt...)
	out = append(out, nonce...)
	out = append(out, sealed...)
	return out, nil
}

// Decrypt opens an envelope produced by Encrypt. A wrong passphrase yields
// kverrors.ErrWrongKey rather than silent corruption, because
// ChaCha20-Poly1305 authentication fails before any plaintext is released.
func Decrypt(passphrase string, envelope []byte) ([]byte, error) {
	if !IsEncrypted(envelope) {
		return nil, kverrors.New(kverrors.ErrCorruptStore, "payload is not a recognized envelope")
	}

	nonceSize := chacha20poly1305.NonceSize
	minLen := 2 + saltSize + nonceSize
	if len(envelope) < minLen {
		return nil, kverrors.New(kverrors.ErrCorruptStore, "envelope is truncated")
	}

	salt := envelope[2 : 2+saltSize]
	nonce := envelope[2+saltSize : minLen]
	ciphertext := envelope[minLen:]

	key := DeriveKey(passphrase, salt)
	defer zero(key)

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: build aead: %w", err)
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, kverrors.New(kverrors.ErrWrongKey, "authentication failed")
	}
	return plaintext, nil
}

// IsEncrypted reports whether payload carries the envelope's magic prefix.
func IsEncrypted(payload []byte) bool {
	return len(payload) >= 2 && payload[0] == magic[0] && payload[1] == magic[1]
}

// zero best-effort wipes key material. Go's garbage collector may still
// retain copies made before this call (e.g. by escape analysis or prior
// slices); this is defense in depth, not a guarantee.
func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
