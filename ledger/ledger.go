package ledger

import (
	"github.com/holiman/uint256"

	"ledgerd/errors"
	"ledgerd/hashing"
	"ledgerd/statetrie"
	"ledgerd/store"
	"ledgerd/types"
)

// Ledger is the immutable record of spec.md §4.2: a header plus the two
// tries it commits to. Once constructed through New or Reconstruct, nothing
// about it changes; a "next" ledger is always a fresh value built from a
// snapshot of this one's state trie.
type Ledger struct {
	Header    *Header
	Hash      hashing.Hash256
	StateTrie *statetrie.Trie
	TxTrie    *statetrie.Trie
}

// NewGenesis builds the seq=1 ledger: parent hash and tx trie are empty, and
// the state trie is seeded with the given accounts.
func NewGenesis(backing store.NodeStore, accounts map[types.AccountID]*types.AccountRoot, closeTime uint32, closeResolution uint8) (*Ledger, error) {
	stateTrie := statetrie.New(backing)
	coinsTotal := uint256.NewInt(0)
	for id, root := range accounts {
		if err := stateTrie.Put(&types.StateEntry{
			Key:  id.StateKey(),
			Type: types.EntryAccountRoot,
			Body: root.Encode(),
		}); err != nil {
			return nil, err
		}
		bal := root.Balance
		if bal == nil {
			bal = uint256.NewInt(0)
		}
		coinsTotal.Add(coinsTotal, bal)
	}

	header := &Header{
		Seq:             1,
		CoinsTotal:      coinsTotal.Uint64(),
		ParentHash:      hashing.ZeroHash,
		ParentCloseTime: 0,
		CloseTime:       closeTime,
		CloseResolution: closeResolution,
	}
	return New(header, stateTrie, statetrie.New(backing))
}

// NewChildSkeleton prepares the inputs for the ledger that will follow
// parent: a copy-on-write snapshot of parent's state trie with its skip-list
// entries updated, and a header with everything but the trie roots and
// coins_total filled in (those are only known once the Apply Engine has run
// against the snapshot). Callers mutate the returned trie via the apply
// engine, then call New to seal the result.
func NewChildSkeleton(parent *Ledger, closeTime uint32, closeResolution uint8) (*statetrie.Trie, *Header, error) {
	snapshot := parent.StateTrie.Snapshot()
	nextSeq := parent.Header.Seq + 1
	if err := updateSkipList(snapshot, nextSeq, parent.Hash); err != nil {
		return nil, nil, err
	}
	header := &Header{
		Seq:             nextSeq,
		ParentHash:      parent.Hash,
		ParentCloseTime: parent.Header.CloseTime,
		CloseTime:       closeTime,
		CloseResolution: closeResolution,
	}
	return snapshot, header, nil
}

// New flushes stateTrie and txTrie, fills their roots into header, computes
// the self-hash, and validates the result.
func New(header *Header, stateTrie, txTrie *statetrie.Trie) (*Ledger, error) {
	stateRoot, err := stateTrie.Flush()
	if err != nil {
		return nil, err
	}
	txRoot, err := txTrie.Flush()
	if err != nil {
		return nil, err
	}
	header.StateTrieRoot = stateRoot
	header.TxTrieRoot = txRoot

	l := &Ledger{
		Header:    header,
		Hash:      header.SelfHash(),
		StateTrie: stateTrie,
		TxTrie:    txTrie,
	}
	if err := l.validate(); err != nil {
		return nil, err
	}
	return l, nil
}

// Reconstruct rebuilds a Ledger from a header fetched off the wire plus its
// two tries, fetched separately by root hash (the catch-up construction path
// of spec.md §4.2, item 3). It verifies the self-hash and both trie roots
// rather than recomputing them.
func Reconstruct(header *Header, stateTrie, txTrie *statetrie.Trie) (*Ledger, error) {
	l := &Ledger{
		Header:    header,
		Hash:      header.SelfHash(),
		StateTrie: stateTrie,
		TxTrie:    txTrie,
	}
	if err := l.validate(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Ledger) validate() error {
	if err := validateHeader(l.Header); err != nil {
		return err
	}
	if l.Hash != l.Header.SelfHash() {
		return errors.New(errors.CodeCorruption, "ledger: self-hash does not match header fields")
	}
	stateRoot, err := l.StateTrie.RootHash()
	if err != nil {
		return err
	}
	if stateRoot != l.Header.StateTrieRoot {
		return errors.New(errors.CodeCorruption, "ledger: state_trie_root does not match computed trie hash")
	}
	txRoot, err := l.TxTrie.RootHash()
	if err != nil {
		return err
	}
	if txRoot != l.Header.TxTrieRoot {
		return errors.New(errors.CodeCorruption, "ledger: tx_trie_root does not match computed trie hash")
	}
	return nil
}

// CoinsTotal returns the ledger's coin supply as a uint256, widened from the
// header's u64 wire field.
func (l *Ledger) CoinsTotal() *uint256.Int {
	return uint256.NewInt(l.Header.CoinsTotal)
}
