package ledger

import (
	"testing"

	"github.com/holiman/uint256"

	"ledgerd/statetrie"
	"ledgerd/store"
	"ledgerd/types"
)

func oneOnesPubKey() []byte {
	pk := make([]byte, 33)
	for i := range pk {
		pk[i] = 0xFF
	}
	return pk
}

func TestGenesisHashDeterministic(t *testing.T) {
	accountA := types.AccountIDFromPubKey(oneOnesPubKey())
	accounts := map[types.AccountID]*types.AccountRoot{
		accountA: {Balance: uint256.NewInt(100000), Sequence: 0},
	}

	g1, err := NewGenesis(store.NewMemNodeStore(), accounts, 0, 30)
	if err != nil {
		t.Fatal(err)
	}
	g2, err := NewGenesis(store.NewMemNodeStore(), accounts, 0, 30)
	if err != nil {
		t.Fatal(err)
	}

	if g1.Hash != g2.Hash {
		t.Fatalf("genesis hash not deterministic: %x != %x", g1.Hash, g2.Hash)
	}
	if g1.Header.Seq != 1 || !g1.Header.ParentHash.IsZero() || g1.Header.CloseResolution != 30 {
		t.Fatalf("unexpected genesis header: %+v", g1.Header)
	}

	// A fresh single-account trie built directly should produce the same
	// state root as the genesis ledger's.
	directTrie := statetrie.New(store.NewMemNodeStore())
	if err := directTrie.Put(&types.StateEntry{
		Key:  accountA.StateKey(),
		Type: types.EntryAccountRoot,
		Body: accounts[accountA].Encode(),
	}); err != nil {
		t.Fatal(err)
	}
	expect, err := directTrie.RootHash()
	if err != nil {
		t.Fatal(err)
	}
	if expect != g1.Header.StateTrieRoot {
		t.Fatalf("state root mismatch")
	}
}

func buildChain(t *testing.T, n int) (*Ledger, *LedgerChain) {
	t.Helper()
	backing := store.NewMemNodeStore()
	accountA := types.AccountIDFromPubKey(oneOnesPubKey())
	accounts := map[types.AccountID]*types.AccountRoot{
		accountA: {Balance: uint256.NewInt(100000)},
	}
	genesis, err := NewGenesis(backing, accounts, 0, 30)
	if err != nil {
		t.Fatal(err)
	}
	chain := NewLedgerChain(genesis)
	cur := genesis
	for i := 1; i < n; i++ {
		snapshot, header, err := NewChildSkeleton(cur, uint32(i*30), 30)
		if err != nil {
			t.Fatal(err)
		}
		header.CoinsTotal = cur.Header.CoinsTotal
		next, err := New(header, snapshot, statetrie.New(backing))
		if err != nil {
			t.Fatal(err)
		}
		if err := chain.Append(next); err != nil {
			t.Fatal(err)
		}
		cur = next
	}
	return cur, chain
}

func TestSkipListLookupAcross300Ledgers(t *testing.T) {
	head, chain := buildChain(t, 300)

	h, ok, err := head.HashOfSeq(299)
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if h != head.Header.ParentHash {
		t.Fatalf("hash_of_seq(300, 299) should equal parent hash")
	}

	h44, ok, err := head.HashOfSeq(44)
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	ledger44, ok := chain.BySeq(44)
	if !ok {
		t.Fatalf("chain missing ledger 44")
	}
	if h44 != ledger44.Hash {
		t.Fatalf("hash_of_seq(300, 44) = %x, want ledger 44's actual hash %x", h44, ledger44.Hash)
	}
}

func TestChainAppendRejectsOutOfOrder(t *testing.T) {
	genesis, chain := buildChain(t, 1)
	snapshot, header, err := NewChildSkeleton(genesis, 30, 30)
	if err != nil {
		t.Fatal(err)
	}
	header.CoinsTotal = genesis.Header.CoinsTotal
	header.Seq = 5 // wrong: should be 2
	bad, err := New(header, snapshot, statetrie.New(store.NewMemNodeStore()))
	if err != nil {
		t.Fatal(err)
	}
	if err := chain.Append(bad); err == nil {
		t.Fatalf("expected out-of-order append to fail")
	}
}

func TestValidateRejectsTamperedHeader(t *testing.T) {
	accountA := types.AccountIDFromPubKey(oneOnesPubKey())
	accounts := map[types.AccountID]*types.AccountRoot{
		accountA: {Balance: uint256.NewInt(1)},
	}
	g, err := NewGenesis(store.NewMemNodeStore(), accounts, 0, 30)
	if err != nil {
		t.Fatal(err)
	}
	g.Header.CoinsTotal = 999999 // tamper without recomputing hash
	if err := g.validate(); err == nil {
		t.Fatalf("expected validate to reject a tampered header")
	}
}
