// Package hashing provides the domain-separated 256-bit digest used
// throughout the ledger core: state trie nodes, ledger headers, and
// transaction identifiers all hash through Hasher rather than calling a
// digest function directly, so that a leaf can never collide with an inner
// node or a header under the same bytes.
package hashing

import (
	"hash"

	"golang.org/x/crypto/blake2b"
)

// Hash256 is a 32-byte digest. Zero value is the canonical "empty" hash used
// as the sentinel for absent subtrees and for the genesis parent hash.
type Hash256 [32]byte

// IsZero reports whether h is the all-zero sentinel.
func (h Hash256) IsZero() bool {
	return h == Hash256{}
}

func (h Hash256) Bytes() []byte {
	return h[:]
}

// Domain tags. Distinct per structural role so that, e.g., a serialized leaf
// can never be mistaken for a serialized inner node even if their raw byte
// payloads happened to coincide.
const (
	TagTrieLeaf    byte = 0x4C // 'L'
	TagTrieInner   byte = 0x49 // 'I'
	TagLedgerHead  byte = 0x48 // 'H'
	TagTransaction byte = 0x54 // 'T'
	TagAccountID   byte = 0x41 // 'A'
	TagProposal    byte = 0x50 // 'P'
	TagValidation  byte = 0x56 // 'V'
)

// Hasher is a streaming, domain-tagged digest. The tag is mixed in first so
// that two different domains never produce the same digest for the same
// remaining input.
type Hasher struct {
	h hash.Hash
}

// New starts a new digest for the given domain tag.
func New(tag byte) *Hasher {
	h, err := blake2b.New256(nil)
	if err != nil {
		// blake2b.New256 only fails for an oversized key; we pass none.
		panic("hashing: blake2b init: " + err.Error())
	}
	hh := &Hasher{h: h}
	hh.h.Write([]byte{tag})
	return hh
}

// Write implements io.Writer, feeding more bytes into the streaming digest.
func (hh *Hasher) Write(p []byte) (int, error) {
	return hh.h.Write(p)
}

// WriteHash256 appends a fixed-size hash field, matching the inner-node rule
// of writing 32 zero bytes for an absent child.
func (hh *Hasher) WriteHash256(h Hash256) {
	hh.h.Write(h[:])
}

// Sum returns the digest of everything written so far. As with any
// hash.Hash, the underlying blake2b state is left unchanged, so later writes
// continue the same stream.
func (hh *Hasher) Sum() Hash256 {
	var out Hash256
	copy(out[:], hh.h.Sum(nil))
	return out
}

// Sum256 is a one-shot convenience: hash tag||data under the given domain.
func Sum256(tag byte, data ...[]byte) Hash256 {
	hh := New(tag)
	for _, d := range data {
		hh.Write(d)
	}
	return hh.Sum()
}

// ZeroHash is the canonical sentinel for an empty subtree or genesis parent.
var ZeroHash Hash256
