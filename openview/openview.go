// Package openview implements the mutable overlay of SPEC_FULL.md §4.3: a
// write set layered over a parent ledger's state trie, accumulating the
// tentative effects of candidate transactions until Commit seals a child
// Ledger or Discard throws the work away.
package openview

import (
	"github.com/holiman/uint256"

	"ledgerd/hashing"
	"ledgerd/ledger"
	"ledgerd/statetrie"
	"ledgerd/store"
	"ledgerd/types"
)

// TxOutcome is one applied-or-rejected transaction's record within a view,
// paired into the tx trie on Commit.
type TxOutcome struct {
	TxHash   hashing.Hash256
	TxBody   []byte
	Code     int
	Metadata []byte
}

// View is an Open View: a snapshot of the parent's state trie, mutated in
// place by the apply engine, plus the ordered list of outcomes that will
// become the child ledger's transaction trie.
type View struct {
	Parent *ledger.Ledger

	StateTrie *statetrie.Trie
	header    *ledger.Header

	outcomes   []TxOutcome
	coinsDelta *uint256.Int // total coin destroyed by recorded outcomes; Commit subtracts it from the parent's coins_total

	totalBalance *uint256.Int // running Σbalances across every AccountRoot entry, kept current by Put/Erase

	store store.NodeStore
}

// New opens a view on top of parent, with a provisional close time and
// resolution for the child it will eventually seal.
func New(parent *ledger.Ledger, backing store.NodeStore, closeTime uint32, closeResolution uint8) (*View, error) {
	snapshot, header, err := ledger.NewChildSkeleton(parent, closeTime, closeResolution)
	if err != nil {
		return nil, err
	}
	return &View{
		Parent:       parent,
		StateTrie:    snapshot,
		header:       header,
		coinsDelta:   uint256.NewInt(0),
		totalBalance: parent.CoinsTotal(),
		store:        backing,
	}, nil
}

// Get reads an entry through the overlay (which is just the live trie: puts
// and erases already mutated it in place relative to the parent's, which
// remains untouched by copy-on-write sharing).
func (v *View) Get(key hashing.Hash256) (*types.StateEntry, error) {
	return v.StateTrie.Get(key)
}

func (v *View) Put(entry *types.StateEntry) error {
	if entry.Type == types.EntryAccountRoot {
		if err := v.adjustTotalBalance(entry.Key, entry.Body); err != nil {
			return err
		}
	}
	return v.StateTrie.Put(entry)
}

func (v *View) Erase(key hashing.Hash256) (bool, error) {
	existing, err := v.StateTrie.Get(key)
	if err != nil {
		return false, err
	}
	if existing != nil && existing.Type == types.EntryAccountRoot {
		root, err := types.DecodeAccountRoot(existing.Body)
		if err != nil {
			return false, err
		}
		v.totalBalance.Sub(v.totalBalance, root.Balance)
	}
	return v.StateTrie.Erase(key)
}

// adjustTotalBalance folds an about-to-be-written AccountRoot's
// balance delta into the view's running Σbalances, comparing against
// whatever was at key before this write (zero if the account is new).
func (v *View) adjustTotalBalance(key hashing.Hash256, newBody []byte) error {
	newRoot, err := types.DecodeAccountRoot(newBody)
	if err != nil {
		return err
	}
	oldBalance := uint256.NewInt(0)
	existing, err := v.StateTrie.Get(key)
	if err != nil {
		return err
	}
	if existing != nil && existing.Type == types.EntryAccountRoot {
		oldRoot, err := types.DecodeAccountRoot(existing.Body)
		if err != nil {
			return err
		}
		oldBalance = oldRoot.Balance
	}
	if newRoot.Balance.Gt(oldBalance) {
		v.totalBalance.Add(v.totalBalance, new(uint256.Int).Sub(newRoot.Balance, oldBalance))
	} else {
		v.totalBalance.Sub(v.totalBalance, new(uint256.Int).Sub(oldBalance, newRoot.Balance))
	}
	return nil
}

// TotalBalance returns a snapshot of the view's current Σbalances across
// every AccountRoot entry, for the apply engine's per-transaction
// conservation check.
func (v *View) TotalBalance() *uint256.Int {
	return new(uint256.Int).Set(v.totalBalance)
}

// RecordOutcome appends a transaction's terminal outcome to the view's
// pending transaction trie contents and folds its fee/destruction effect
// into the running coin-supply delta.
func (v *View) RecordOutcome(o TxOutcome, coinsDestroyed *uint256.Int) {
	v.outcomes = append(v.outcomes, o)
	if coinsDestroyed != nil {
		v.coinsDelta.Add(v.coinsDelta, coinsDestroyed)
	}
}

// Outcomes returns the outcomes recorded so far, in application order.
func (v *View) Outcomes() []TxOutcome {
	return v.outcomes
}

// Discard abandons the view. Because every mutation was copy-on-write, the
// parent ledger's state trie is never touched; there is nothing to undo.
func (v *View) Discard() {
	v.outcomes = nil
}

// Commit builds the transaction trie from recorded outcomes and seals a new
// child Ledger from the view's mutated state trie.
func (v *View) Commit() (*ledger.Ledger, error) {
	txTrie := statetrie.New(v.store)
	for _, o := range v.outcomes {
		if err := txTrie.Put(&types.StateEntry{
			Key:  o.TxHash,
			Type: types.EntryType(0), // tx-trie entries are opaque to the trie; type tag unused here
			Body: encodeOutcome(o),
		}); err != nil {
			return nil, err
		}
	}

	coinsTotal := new(uint256.Int).Set(v.Parent.CoinsTotal())
	coinsTotal.Sub(coinsTotal, v.coinsDelta)
	v.header.CoinsTotal = coinsTotal.Uint64()

	return ledger.New(v.header, v.StateTrie, txTrie)
}

// encodeOutcome packs a TxOutcome's fields into the tx trie leaf body:
// code (4B BE) | len(body) (4B BE) | body | metadata.
func encodeOutcome(o TxOutcome) []byte {
	out := make([]byte, 0, 8+len(o.TxBody)+len(o.Metadata))
	var buf [4]byte
	putUint32(buf[:], uint32(o.Code))
	out = append(out, buf[:]...)
	putUint32(buf[:], uint32(len(o.TxBody)))
	out = append(out, buf[:]...)
	out = append(out, o.TxBody...)
	out = append(out, o.Metadata...)
	return out
}

func putUint32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}
