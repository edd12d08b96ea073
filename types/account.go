// Package types holds the small, shared value types referenced by every
// other ledger-core package: account identities and the tagged state-entry
// union that the state trie stores at its leaves.
package types

import (
	"encoding/binary"
	"fmt"

	"github.com/holiman/uint256"

	"ledgerd/hashing"
)

// AccountID is a 160-bit identity derived from a signer's public key,
// matching the size convention of spec.md §3 (AccountID). It is computed as
// the low 20 bytes of the domain-tagged hash of the compressed public key,
// adapted from the teacher's Ed25519-hex-encoded addresses to a fixed-size
// binary identity so it can be used directly as a trie key component.
type AccountID [20]byte

// AccountIDFromPubKey derives an AccountID from a public key's compressed
// byte encoding.
func AccountIDFromPubKey(pubKey []byte) AccountID {
	h := hashing.Sum256(hashing.TagAccountID, pubKey)
	var id AccountID
	copy(id[:], h[12:]) // low 20 bytes of the 32-byte digest
	return id
}

func (a AccountID) String() string {
	return fmt.Sprintf("%x", a[:])
}

// StateKey maps an AccountID onto a 256-bit trie key: left-padded with
// zeroes. Directory and skip-list entries use their own deterministic key
// derivations (see skipListRollingKey and skipListBucketKey in package
// ledger).
func (a AccountID) StateKey() hashing.Hash256 {
	var key hashing.Hash256
	copy(key[12:], a[:])
	return key
}

// EntryType tags the variant stored in a StateEntry's body, replacing the
// teacher's polymorphic state-entry class hierarchy (per SPEC_FULL.md §9,
// deep inheritance maps onto a tagged union) with a single byte discriminant
// plus capability dispatch in the apply engine.
type EntryType byte

const (
	EntryAccountRoot   EntryType = 1
	EntryDirectoryNode EntryType = 2
	EntrySkipList      EntryType = 3
)

// AccountRoot is the canonical per-account leaf payload: balance, sequence
// number (replay protection), owner count (reserve accounting), and a flags
// word (freeze, amendment-gated feature bits, etc).
type AccountRoot struct {
	Balance    *uint256.Int
	Sequence   uint64
	OwnerCount uint32
	Flags      uint32
}

// Encode serializes an AccountRoot to its fixed-layout wire form:
// balance (32B BE) | sequence (8B BE) | owner_count (4B BE) | flags (4B BE).
func (a *AccountRoot) Encode() []byte {
	out := make([]byte, 32+8+4+4)
	bal := a.Balance
	if bal == nil {
		bal = uint256.NewInt(0)
	}
	balBytes := bal.Bytes32()
	copy(out[0:32], balBytes[:])
	binary.BigEndian.PutUint64(out[32:40], a.Sequence)
	binary.BigEndian.PutUint32(out[40:44], a.OwnerCount)
	binary.BigEndian.PutUint32(out[44:48], a.Flags)
	return out
}

// DecodeAccountRoot parses the wire form produced by Encode.
func DecodeAccountRoot(b []byte) (*AccountRoot, error) {
	if len(b) != 48 {
		return nil, fmt.Errorf("types: account root wire length %d, want 48", len(b))
	}
	var balArr [32]byte
	copy(balArr[:], b[0:32])
	return &AccountRoot{
		Balance:    new(uint256.Int).SetBytes32(balArr[:]),
		Sequence:   binary.BigEndian.Uint64(b[32:40]),
		OwnerCount: binary.BigEndian.Uint32(b[40:44]),
		Flags:      binary.BigEndian.Uint32(b[44:48]),
	}, nil
}

// StateEntry is the opaque-to-the-trie, typed-to-the-caller value stored at
// one trie leaf: a 256-bit key, a type tag, and the serialized body.
type StateEntry struct {
	Key  hashing.Hash256
	Type EntryType
	Body []byte
}

// Clone returns an independent copy, used when a StateEntry crosses from one
// Open View's modification map into another (copy-on-write branching).
func (e *StateEntry) Clone() *StateEntry {
	body := make([]byte, len(e.Body))
	copy(body, e.Body)
	return &StateEntry{Key: e.Key, Type: e.Type, Body: body}
}
