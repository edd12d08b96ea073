package statetrie

import (
	"testing"

	lerrors "ledgerd/errors"
	"ledgerd/hashing"
	"ledgerd/store"
	"ledgerd/types"
)

func keyFrom(b byte) hashing.Hash256 {
	var h hashing.Hash256
	h[31] = b
	return h
}

func entryFor(key hashing.Hash256, balance uint64) *types.StateEntry {
	return &types.StateEntry{
		Key:  key,
		Type: types.EntryAccountRoot,
		Body: []byte{byte(balance)},
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	tr := New(store.NewMemNodeStore())
	k := keyFrom(1)
	if err := tr.Put(entryFor(k, 7)); err != nil {
		t.Fatal(err)
	}
	got, err := tr.Get(k)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Body[0] != 7 {
		t.Fatalf("got %v", got)
	}
}

func TestGetAbsentReturnsNilNotError(t *testing.T) {
	tr := New(store.NewMemNodeStore())
	got, err := tr.Get(keyFrom(9))
	if err != nil || got != nil {
		t.Fatalf("got %v, %v", got, err)
	}
}

func TestPutOverwriteChangesValue(t *testing.T) {
	tr := New(store.NewMemNodeStore())
	k := keyFrom(1)
	_ = tr.Put(entryFor(k, 1))
	_ = tr.Put(entryFor(k, 2))
	got, _ := tr.Get(k)
	if got.Body[0] != 2 {
		t.Fatalf("want 2, got %v", got.Body)
	}
}

func TestReplaceRequiresExistingKey(t *testing.T) {
	tr := New(store.NewMemNodeStore())
	err := tr.Replace(entryFor(keyFrom(1), 1))
	if lerrors.CodeOf(err) != lerrors.CodeLocal {
		t.Fatalf("expected CodeLocal, got %v", err)
	}
}

func TestSingleKeyRootIsDirectLeaf(t *testing.T) {
	tr := New(store.NewMemNodeStore())
	_ = tr.Put(entryFor(keyFrom(5), 1))
	root, err := tr.getRoot()
	if err != nil {
		t.Fatal(err)
	}
	if root.kind != nodeLeaf {
		t.Fatalf("expected root to be a bare leaf with one key, got kind %v", root.kind)
	}
}

func TestInsertThenEraseRestoresOriginalShapeAndHash(t *testing.T) {
	backing := store.NewMemNodeStore()
	trA := New(backing)
	_ = trA.Put(entryFor(keyFrom(1), 1))
	hashBefore, err := trA.RootHash()
	if err != nil {
		t.Fatal(err)
	}

	_ = trA.Put(entryFor(keyFrom(2), 2)) // forces a split
	removed, err := trA.Erase(keyFrom(2))
	if err != nil || !removed {
		t.Fatalf("erase: removed=%v err=%v", removed, err)
	}

	hashAfter, err := trA.RootHash()
	if err != nil {
		t.Fatal(err)
	}
	if hashBefore != hashAfter {
		t.Fatalf("root hash after insert+erase %x != fresh-insert hash %x", hashAfter, hashBefore)
	}

	root, err := trA.getRoot()
	if err != nil {
		t.Fatal(err)
	}
	if root.kind != nodeLeaf {
		t.Fatalf("expected collapsed root to be a bare leaf, got kind %v", root.kind)
	}
}

func TestEraseAbsentKeyReportsNotFound(t *testing.T) {
	tr := New(store.NewMemNodeStore())
	_ = tr.Put(entryFor(keyFrom(1), 1))
	removed, err := tr.Erase(keyFrom(9))
	if err != nil || removed {
		t.Fatalf("removed=%v err=%v", removed, err)
	}
}

func TestInsertionOrderDoesNotAffectRootHash(t *testing.T) {
	keys := []byte{1, 2, 3, 4, 5, 200, 201, 17}

	trA := New(store.NewMemNodeStore())
	for _, k := range keys {
		_ = trA.Put(entryFor(keyFrom(k), uint64(k)))
	}
	hashA, err := trA.RootHash()
	if err != nil {
		t.Fatal(err)
	}

	trB := New(store.NewMemNodeStore())
	for i := len(keys) - 1; i >= 0; i-- {
		k := keys[i]
		_ = trB.Put(entryFor(keyFrom(k), uint64(k)))
	}
	hashB, err := trB.RootHash()
	if err != nil {
		t.Fatal(err)
	}

	if hashA != hashB {
		t.Fatalf("root hash depends on insertion order: %x != %x", hashA, hashB)
	}
}

func TestSnapshotIsolatesLaterMutations(t *testing.T) {
	tr := New(store.NewMemNodeStore())
	k := keyFrom(1)
	_ = tr.Put(entryFor(k, 1))

	snap := tr.Snapshot()

	_ = tr.Put(entryFor(k, 2))
	_, _ = tr.Erase(keyFrom(1))

	got, err := snap.Get(k)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Body[0] != 1 {
		t.Fatalf("snapshot should still see original value, got %v", got)
	}
}

func TestSuccessorOrdering(t *testing.T) {
	tr := New(store.NewMemNodeStore())
	for _, k := range []byte{5, 10, 15, 250} {
		_ = tr.Put(entryFor(keyFrom(k), uint64(k)))
	}

	next, err := tr.Successor(keyFrom(5))
	if err != nil {
		t.Fatal(err)
	}
	if next == nil || next.Key != keyFrom(10) {
		t.Fatalf("want successor of 5 to be 10, got %v", next)
	}

	last, err := tr.Successor(keyFrom(250))
	if err != nil {
		t.Fatal(err)
	}
	if last != nil {
		t.Fatalf("want no successor past the max key, got %v", last)
	}
}

func TestFlushThenOpenReproducesSameRootHashAndValues(t *testing.T) {
	backing := store.NewMemNodeStore()
	trA := New(backing)
	for _, k := range []byte{1, 2, 3, 250} {
		_ = trA.Put(entryFor(keyFrom(k), uint64(k)))
	}
	rootHash, err := trA.Flush()
	if err != nil {
		t.Fatal(err)
	}

	trB := Open(backing, rootHash)
	for _, k := range []byte{1, 2, 3, 250} {
		got, err := trB.Get(keyFrom(k))
		if err != nil {
			t.Fatal(err)
		}
		if got == nil || got.Body[0] != k {
			t.Fatalf("key %d: got %v", k, got)
		}
	}
	reopenedHash, err := trB.RootHash()
	if err != nil {
		t.Fatal(err)
	}
	if reopenedHash != rootHash {
		t.Fatalf("reopened root hash %x != original %x", reopenedHash, rootHash)
	}
}

func TestOpenWithMissingNodeSurfacesMissingNodeError(t *testing.T) {
	tr := Open(store.NewMemNodeStore(), hashFromByte(0x42))
	_, err := tr.Get(keyFrom(1))
	if _, ok := err.(*lerrors.MissingNode); !ok {
		t.Fatalf("expected *errors.MissingNode, got %v", err)
	}
}

func TestCorruptStoredBytesSurfaceCorruptionError(t *testing.T) {
	backing := store.NewMemNodeStore()
	tr := New(backing)
	_ = tr.Put(entryFor(keyFrom(1), 1))
	rootHash, err := tr.Flush()
	if err != nil {
		t.Fatal(err)
	}

	_ = backing.Put(rootHash, []byte{byte(nodeLeaf), 0xFF}) // too short to decode, but present

	tr2 := Open(backing, rootHash)
	_, err = tr2.Get(keyFrom(1))
	if _, ok := err.(*lerrors.Corruption); !ok {
		t.Fatalf("expected *errors.Corruption, got %v", err)
	}
}

func hashFromByte(b byte) hashing.Hash256 {
	var h hashing.Hash256
	h[0] = b
	return h
}
