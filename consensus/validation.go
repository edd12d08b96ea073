package consensus

import (
	"sync"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"

	"ledgerd/clock"
	"ledgerd/hashing"
)

// Validation is a validator's signature on an accepted ledger's hash,
// broadcast at lower frequency than proposals, per spec.md §4.7.
type Validation struct {
	Validator   ValidatorID
	Seq         uint32
	Hash        hashing.Hash256
	CloseTime   uint32
	SigningTime uint32
	Signature   []byte

	receivedAt time.Time
}

func (v *Validation) signingPayload() []byte {
	out := make([]byte, 0, 4+32+4+4)
	out = appendUint32(out, v.Seq)
	out = append(out, v.Hash[:]...)
	out = appendUint32(out, v.CloseTime)
	out = appendUint32(out, v.SigningTime)
	return out
}

func (v *Validation) Sign(priv *secp256k1.PrivateKey) {
	digest := hashing.Sum256(hashing.TagValidation, v.signingPayload())
	sig := ecdsa.Sign(priv, digest[:])
	v.Signature = sig.Serialize()
}

func (v *Validation) Verify(pub *secp256k1.PublicKey) bool {
	sig, err := ecdsa.ParseDERSignature(v.Signature)
	if err != nil {
		return false
	}
	digest := hashing.Sum256(hashing.TagValidation, v.signingPayload())
	return sig.Verify(digest[:], pub)
}

func (v *Validation) MarkReceived(c clock.Clock) {
	v.receivedAt = c.Now()
}

// withinWindow reports whether v is still inside its validity window: up to
// ValidationValidWall after its local arrival time, or up to
// ValidationValidEarly before it when that arrival time lies in the future.
// Of the three window tunables only these two are applied;
// ValidationValidLocal is not consulted.
func (v *Validation) withinWindow(now time.Time, t Tunables) bool {
	age := now.Sub(v.receivedAt)
	if age < 0 {
		return age >= -t.ValidationValidEarly
	}
	return age <= t.ValidationValidWall
}

// Tracker retains validations across rounds to detect network agreement on
// a (seq, hash) pair against a trusted validator set, per spec.md §4.7.
// Grounded on the teacher's Collector (votes map[slot]map[voterID]*Vote,
// mutex-guarded), generalized from per-slot block votes to per-(seq,hash)
// ledger validations with an age-based eviction policy the source's simpler
// structure does not need.
type Tracker struct {
	mu sync.Mutex

	trusted map[ValidatorID]*secp256k1.PublicKey
	quorumPercent int

	// byKey[seq][hash][validator] = validation
	byKey map[uint32]map[hashing.Hash256]map[ValidatorID]*Validation
}

func NewTracker(trusted map[ValidatorID]*secp256k1.PublicKey, quorumPercent int) *Tracker {
	return &Tracker{
		trusted:       trusted,
		quorumPercent: quorumPercent,
		byKey:         make(map[uint32]map[hashing.Hash256]map[ValidatorID]*Validation),
	}
}

// Record stores a verified validation. Callers must verify the signature
// against the claimed validator's known public key before calling this.
func (tr *Tracker) Record(v *Validation) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	byHash, ok := tr.byKey[v.Seq]
	if !ok {
		byHash = make(map[hashing.Hash256]map[ValidatorID]*Validation)
		tr.byKey[v.Seq] = byHash
	}
	byValidator, ok := byHash[v.Hash]
	if !ok {
		byValidator = make(map[ValidatorID]*Validation)
		byHash[v.Hash] = byValidator
	}
	byValidator[v.Validator] = v
}

// FullyValidated reports whether a quorum of the trusted validator set has
// produced matching validations for hash at seq, per spec.md §4.7.
func (tr *Tracker) FullyValidated(seq uint32, hash hashing.Hash256) bool {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	if len(tr.trusted) == 0 {
		return false
	}
	byValidator := tr.byKey[seq][hash]
	count := 0
	for id := range tr.trusted {
		if _, ok := byValidator[id]; ok {
			count++
		}
	}
	return count*100 >= tr.quorumPercent*len(tr.trusted)
}

// Prune drops validations outside their validity windows.
func (tr *Tracker) Prune(now time.Time, t Tunables) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	for seq, byHash := range tr.byKey {
		for hash, byValidator := range byHash {
			for id, v := range byValidator {
				if !v.withinWindow(now, t) {
					delete(byValidator, id)
				}
			}
			if len(byValidator) == 0 {
				delete(byHash, hash)
			}
		}
		if len(byHash) == 0 {
			delete(tr.byKey, seq)
		}
	}
}
