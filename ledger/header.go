// Package ledger implements the immutable Ledger object of SPEC_FULL.md §4.2:
// a sequence-numbered, hash-chained state snapshot with two committed trie
// roots, plus the append-only LedgerChain registry and its embedded skip
// list for logarithmic historical lookup.
package ledger

import (
	"encoding/binary"
	"fmt"

	"ledgerd/errors"
	"ledgerd/hashing"
)

// Flag bits stored in the header's single flags byte.
const (
	FlagNoConsensusTime uint8 = 1 << 0
)

// Header is the fixed-size on-wire record of SPEC_FULL.md §6: sequence (u32),
// coins_total (u64), parent_hash (32B), tx_trie_root (32B), state_trie_root
// (32B), parent_close_time (u32), close_time (u32), close_resolution (u8),
// flags (u8). CoinsTotal is a u64 both on the wire and in Header;
// Ledger.CoinsTotal widens it to a uint256.Int to match the teacher's
// uint256-typed balance arithmetic, and the uint256 sums built by NewGenesis
// and the open view's Commit are narrowed back with Uint64(), which keeps
// only the low 64 bits.
type Header struct {
	Seq              uint32
	CoinsTotal       uint64
	ParentHash       hashing.Hash256
	TxTrieRoot       hashing.Hash256
	StateTrieRoot    hashing.Hash256
	ParentCloseTime  uint32
	CloseTime        uint32
	CloseResolution  uint8
	Flags            uint8
}

// HeaderSize is the fixed wire size of an encoded Header.
const HeaderSize = 4 + 8 + 32 + 32 + 32 + 4 + 4 + 1 + 1

// Encode writes the canonical big-endian wire form.
func (h *Header) Encode() []byte {
	out := make([]byte, HeaderSize)
	off := 0
	binary.BigEndian.PutUint32(out[off:], h.Seq)
	off += 4
	binary.BigEndian.PutUint64(out[off:], h.CoinsTotal)
	off += 8
	copy(out[off:], h.ParentHash.Bytes())
	off += 32
	copy(out[off:], h.TxTrieRoot.Bytes())
	off += 32
	copy(out[off:], h.StateTrieRoot.Bytes())
	off += 32
	binary.BigEndian.PutUint32(out[off:], h.ParentCloseTime)
	off += 4
	binary.BigEndian.PutUint32(out[off:], h.CloseTime)
	off += 4
	out[off] = h.CloseResolution
	off++
	out[off] = h.Flags
	return out
}

// DecodeHeader parses the wire form produced by Encode.
func DecodeHeader(b []byte) (*Header, error) {
	if len(b) != HeaderSize {
		return nil, fmt.Errorf("ledger: header wire length %d, want %d", len(b), HeaderSize)
	}
	h := &Header{}
	off := 0
	h.Seq = binary.BigEndian.Uint32(b[off:])
	off += 4
	h.CoinsTotal = binary.BigEndian.Uint64(b[off:])
	off += 8
	copy(h.ParentHash[:], b[off:off+32])
	off += 32
	copy(h.TxTrieRoot[:], b[off:off+32])
	off += 32
	copy(h.StateTrieRoot[:], b[off:off+32])
	off += 32
	h.ParentCloseTime = binary.BigEndian.Uint32(b[off:])
	off += 4
	h.CloseTime = binary.BigEndian.Uint32(b[off:])
	off += 4
	h.CloseResolution = b[off]
	off++
	h.Flags = b[off]
	return h, nil
}

// SelfHash computes the ledger self-hash: a domain-tagged digest over the
// encoded header fields.
func (h *Header) SelfHash() hashing.Hash256 {
	return hashing.Sum256(hashing.TagLedgerHead, h.Encode())
}

func (h *Header) HasFlag(f uint8) bool { return h.Flags&f != 0 }

// validateHeader checks the structural invariants of spec.md §4.2's
// validate() beyond the self-hash (checked by the caller once tries are
// available to compare roots against).
func validateHeader(h *Header) error {
	if h.Seq == 0 {
		return errors.New(errors.CodeLocal, "ledger: seq must be > 0")
	}
	if h.Seq > 1 && h.ParentHash.IsZero() {
		return errors.New(errors.CodeLocal, "ledger: non-genesis ledger must have a non-zero parent hash")
	}
	if !isAllowedResolution(h.CloseResolution) {
		return errors.New(errors.CodeLocal, "ledger: close_resolution out of allowed set")
	}
	return nil
}
