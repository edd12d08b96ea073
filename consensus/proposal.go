package consensus

import (
	"encoding/binary"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"

	"ledgerd/clock"
	"ledgerd/hashing"
)

// Proposal is one validator's current working set and close time for an
// in-progress round, grounded on the teacher's consensus.Vote shape (voter
// identity, round/slot, hash, signature) but carrying a set hash and close
// time instead of a block vote type.
type Proposal struct {
	Validator ValidatorID
	Round     uint64
	PrevHash  hashing.Hash256
	SetHash   hashing.Hash256
	CloseTime uint32
	Seq       uint64
	Signature []byte

	receivedAt time.Time // local arrival time, not part of the signed payload
}

func (p *Proposal) signingPayload() []byte {
	out := make([]byte, 0, 8+32+32+4+8)
	out = appendUint64(out, p.Round)
	out = append(out, p.PrevHash[:]...)
	out = append(out, p.SetHash[:]...)
	out = appendUint32(out, p.CloseTime)
	out = appendUint64(out, p.Seq)
	return out
}

// Sign signs the proposal's payload with priv.
func (p *Proposal) Sign(priv *secp256k1.PrivateKey) {
	digest := hashing.Sum256(hashing.TagProposal, p.signingPayload())
	sig := ecdsa.Sign(priv, digest[:])
	p.Signature = sig.Serialize()
}

// Verify checks the proposal's signature against pub.
func (p *Proposal) Verify(pub *secp256k1.PublicKey) bool {
	sig, err := ecdsa.ParseDERSignature(p.Signature)
	if err != nil {
		return false
	}
	digest := hashing.Sum256(hashing.TagProposal, p.signingPayload())
	return sig.Verify(digest[:], pub)
}

// IsFresh reports whether p arrived within window of now and is not stale
// relative to a previously seen sequence for the same validator, per
// spec.md §4.6's definition of proposal freshness.
func (p *Proposal) IsFresh(now time.Time, window time.Duration, lastSeenSeq uint64, hasLastSeen bool) bool {
	if hasLastSeen && p.Seq <= lastSeenSeq {
		return false
	}
	return now.Sub(p.receivedAt) <= window
}

// MarkReceived stamps the proposal's local arrival time; callers set this
// immediately on receipt, using the injected clock rather than time.Now.
func (p *Proposal) MarkReceived(c clock.Clock) {
	p.receivedAt = c.Now()
}

func appendUint64(b []byte, v uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	return append(b, tmp[:]...)
}

func appendUint32(b []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(b, tmp[:]...)
}
