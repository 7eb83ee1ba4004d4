package codec

// Stored is the physical, persisted form of a value: its canonical Encoded
// form, or — when encryption is enabled — the encryption envelope bytes in
// place of Raw, with Encrypted set so readers know to run the bytes through
// the crypto package before calling Decode. This is the shape shared by
// entries, history records, archive records, and replication entries: all
// four record "what was stored", not just "what was current".
type Stored struct {
	Kind      Kind   `json:"kind"`
	Raw       []byte `json:"raw"`
	Encrypted bool   `json:"encrypted"`
}

// FromEncoded wraps a plaintext Encoded as an unencrypted Stored value.
func FromEncoded(e Encoded) Stored {
	return Stored{Kind: e.Kind, Raw: e.Raw}
}

// Encoded extracts the Encoded view of an unencrypted Stored value. Callers
// holding an encrypted Stored must decrypt Raw first and build the Encoded
// themselves from the decrypted bytes and Kind.
func (s Stored) Encoded() Encoded {
	return Encoded{Kind: s.Kind, Raw: s.Raw}
}
