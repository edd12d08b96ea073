// Package txn holds the reference transaction type and transactor the apply
// engine's tests exercise: a plain balance transfer with a sequence check,
// grounded on the teacher's applyTx/LedgerView.ApplyTx balance-and-nonce
// logic, generalized from an in-memory account map onto the state trie.
package txn

import (
	"crypto/ed25519"

	"github.com/holiman/uint256"

	"ledgerd/amendment"
	"ledgerd/applyengine"
	"ledgerd/errors"
	"ledgerd/feemetrics"
	"ledgerd/hashing"
	"ledgerd/openview"
	"ledgerd/types"
)

// PaymentTag is the type tag Payment registers under.
const PaymentTag byte = 1

// BaseFeeDrops is the actual-currency cost of one fee level unit at
// feemetrics.BaseLevel, i.e. the network's minimum transaction cost.
const BaseFeeDrops = 10

// Payment is a signed balance transfer from the signer to Dest.
type Payment struct {
	SenderPubKey ed25519.PublicKey
	Sig          [64]byte
	Seq          uint64
	FeeLvl       uint64
	Dest         types.AccountID
	Amount       *uint256.Int
}

func (p *Payment) signingPayload() []byte {
	out := make([]byte, 0, 1+len(p.SenderPubKey)+8+8+20+32)
	out = append(out, PaymentTag)
	out = append(out, p.SenderPubKey...)
	out = appendUint64(out, p.Seq)
	out = appendUint64(out, p.FeeLvl)
	out = append(out, p.Dest[:]...)
	amt := p.Amount
	if amt == nil {
		amt = uint256.NewInt(0)
	}
	b32 := amt.Bytes32()
	out = append(out, b32[:]...)
	return out
}

// Sign sets p.Sig from priv over the transaction's signing payload.
func (p *Payment) Sign(priv ed25519.PrivateKey) {
	sig := ed25519.Sign(priv, p.signingPayload())
	copy(p.Sig[:], sig)
}

// Encode is the canonical on-wire form: signing payload followed by the
// 64-byte signature.
func (p *Payment) Encode() []byte {
	return append(p.signingPayload(), p.Sig[:]...)
}

// DecodePayment parses the wire form produced by Encode.
func DecodePayment(b []byte) (*Payment, error) {
	const fixedLen = 1 + ed25519.PublicKeySize + 8 + 8 + 20 + 32 + 64
	if len(b) != fixedLen {
		return nil, errors.New(errors.CodeMalformed, "txn: malformed payment wire length")
	}
	off := 0
	if b[off] != PaymentTag {
		return nil, errors.New(errors.CodeMalformed, "txn: wrong type tag for payment")
	}
	off++
	p := &Payment{SenderPubKey: append(ed25519.PublicKey(nil), b[off:off+ed25519.PublicKeySize]...)}
	off += ed25519.PublicKeySize
	p.Seq = readUint64(b[off:])
	off += 8
	p.FeeLvl = readUint64(b[off:])
	off += 8
	copy(p.Dest[:], b[off:off+20])
	off += 20
	p.Amount = new(uint256.Int).SetBytes(b[off : off+32])
	off += 32
	copy(p.Sig[:], b[off:off+64])
	return p, nil
}

func (p *Payment) Hash() hashing.Hash256 { return hashing.Sum256(hashing.TagTransaction, p.Encode()) }

func (p *Payment) TypeTag() byte { return PaymentTag }

func (p *Payment) Signer() types.AccountID { return types.AccountIDFromPubKey(p.SenderPubKey) }

func (p *Payment) Sequence() uint64 { return p.Seq }

func (p *Payment) FeeLevel() uint64 { return p.FeeLvl }

// FeeDrops converts the dimensionless fee level into actual currency units.
func (p *Payment) FeeDrops() *uint256.Int {
	return uint256.NewInt(BaseFeeDrops * p.FeeLvl / feemetrics.BaseLevel)
}

func appendUint64(b []byte, v uint64) []byte {
	return append(b,
		byte(v>>56), byte(v>>48), byte(v>>40), byte(v>>32),
		byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

func readUint64(b []byte) uint64 {
	return uint64(b[0])<<56 | uint64(b[1])<<48 | uint64(b[2])<<40 | uint64(b[3])<<32 |
		uint64(b[4])<<24 | uint64(b[5])<<16 | uint64(b[6])<<8 | uint64(b[7])
}

// PaymentTransactor is the capability implementation registered into the
// apply engine under PaymentTag.
type PaymentTransactor struct{}

func (PaymentTransactor) Preflight(tx applyengine.Tx, _ amendment.Switch, _ uint32) error {
	p, ok := tx.(*Payment)
	if !ok {
		return errors.New(errors.CodeMalformed, "txn: not a payment")
	}
	if p.Amount == nil || p.Amount.IsZero() {
		return errors.New(errors.CodeMalformed, "txn: payment amount must be positive")
	}
	if !ed25519.Verify(p.SenderPubKey, p.signingPayload(), p.Sig[:]) {
		return errors.New(errors.CodeMalformed, "txn: bad signature")
	}
	return nil
}

func (PaymentTransactor) Preclaim(view *openview.View, tx applyengine.Tx) (applyengine.Classification, error) {
	p := tx.(*Payment)
	senderEntry, err := view.Get(p.Signer().StateKey())
	if err != nil {
		return applyengine.ClassGood, err
	}
	if senderEntry == nil {
		return applyengine.ClassTerminalBad, nil
	}
	sender, err := types.DecodeAccountRoot(senderEntry.Body)
	if err != nil {
		return applyengine.ClassGood, err
	}
	switch {
	case p.Seq < sender.Sequence:
		return applyengine.ClassTerminalBad, nil
	case p.Seq > sender.Sequence:
		return applyengine.ClassRetry, nil
	}
	total := new(uint256.Int).Add(p.Amount, p.FeeDrops())
	if sender.Balance.Lt(total) {
		return applyengine.ClassTerminalBad, nil
	}
	return applyengine.ClassGood, nil
}

func (PaymentTransactor) Apply(view *openview.View, tx applyengine.Tx) (applyengine.ResultCode, []byte, *uint256.Int, error) {
	p := tx.(*Payment)
	senderKey := p.Signer().StateKey()

	senderEntry, err := view.Get(senderKey)
	if err != nil {
		return applyengine.ResultLocal, nil, nil, err
	}
	sender, err := types.DecodeAccountRoot(senderEntry.Body)
	if err != nil {
		return applyengine.ResultLocal, nil, nil, err
	}

	fee := p.FeeDrops()
	sender.Sequence++

	// Preclaim already confirmed balance covers amount+fee; apply debits
	// the fee unconditionally (claimed even on downstream failure) and the
	// transfer amount, which cannot underflow given that guarantee.
	sender.Balance = new(uint256.Int).Sub(sender.Balance, fee)
	if err := view.Put(&types.StateEntry{Key: senderKey, Type: types.EntryAccountRoot, Body: sender.Encode()}); err != nil {
		return applyengine.ResultLocal, nil, nil, err
	}
	if sender.Balance.Lt(p.Amount) {
		return applyengine.ResultClaimedFee, nil, fee, nil
	}
	sender.Balance = new(uint256.Int).Sub(sender.Balance, p.Amount)
	if err := view.Put(&types.StateEntry{Key: senderKey, Type: types.EntryAccountRoot, Body: sender.Encode()}); err != nil {
		return applyengine.ResultLocal, nil, nil, err
	}

	destKey := p.Dest.StateKey()
	destEntry, err := view.Get(destKey)
	if err != nil {
		return applyengine.ResultLocal, nil, nil, err
	}
	var dest *types.AccountRoot
	if destEntry == nil {
		dest = &types.AccountRoot{Balance: uint256.NewInt(0)}
	} else {
		dest, err = types.DecodeAccountRoot(destEntry.Body)
		if err != nil {
			return applyengine.ResultLocal, nil, nil, err
		}
	}
	dest.Balance = new(uint256.Int).Add(dest.Balance, p.Amount)
	if err := view.Put(&types.StateEntry{Key: destKey, Type: types.EntryAccountRoot, Body: dest.Encode()}); err != nil {
		return applyengine.ResultLocal, nil, nil, err
	}

	return applyengine.ResultSuccess, nil, fee, nil
}
