// Package statetrie implements the authenticated radix-16 state trie of
// SPEC_FULL.md §4.1: every account and directory entry lives at a leaf keyed
// by a 256-bit hash, every inner node commits to exactly 16 children, and the
// root hash authenticates the whole key/value set. Mutation is copy-on-write:
// put/replace/erase allocate new nodes along the touched path and leave
// everything else, including any outstanding Snapshot, untouched.
package statetrie

import (
	"bytes"

	lerrors "ledgerd/errors"
	"ledgerd/hashing"
	"ledgerd/store"
	"ledgerd/types"
)

// nodeFetcher is the subset of store.NodeStore a node needs to rehash itself
// after resolving stub children. store.NodeStore satisfies it directly.
type nodeFetcher interface {
	Get(hash hashing.Hash256) ([]byte, bool, error)
}

// Trie is a single mutable handle over a state trie. It is not safe for
// concurrent mutation from multiple goroutines; concurrent readers should
// call Snapshot and use the returned handle, which never observes later
// mutations made through the original handle.
type Trie struct {
	root  *childLink // nil means the empty trie
	store store.NodeStore
}

// New returns an empty trie backed by store.
func New(backing store.NodeStore) *Trie {
	return &Trie{store: backing}
}

// Open returns a handle onto the trie rooted at rootHash, resolving nodes
// from store lazily as operations touch them.
func Open(backing store.NodeStore, rootHash hashing.Hash256) *Trie {
	if rootHash.IsZero() {
		return New(backing)
	}
	return &Trie{root: &childLink{hash: rootHash}, store: backing}
}

// Snapshot returns an independent handle sharing the current node graph.
// Because mutations never edit a node in place, subsequent puts/erases on
// either handle are invisible to the other.
func (t *Trie) Snapshot() *Trie {
	return &Trie{root: t.root, store: t.store}
}

func (t *Trie) resolve(c *childLink) (*node, error) {
	if c == nil {
		return nil, nil
	}
	if c.resolved != nil {
		return c.resolved, nil
	}
	raw, ok, err := t.store.Get(c.hash)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &lerrors.MissingNode{Hash: [32]byte(c.hash)}
	}
	n, decErr := decodeNode(raw)
	if decErr != nil {
		return nil, &lerrors.Corruption{Hash: [32]byte(c.hash)}
	}
	gotHash, err := n.hash(t.store)
	if err != nil {
		return nil, err
	}
	if gotHash != c.hash {
		return nil, &lerrors.Corruption{Hash: [32]byte(c.hash)}
	}
	c.resolved = n
	return n, nil
}

func (t *Trie) getRoot() (*node, error) {
	return t.resolve(t.root)
}

// Get returns the entry stored at key, or (nil, nil) if absent.
func (t *Trie) Get(key hashing.Hash256) (*types.StateEntry, error) {
	n, err := t.getRoot()
	if err != nil {
		return nil, err
	}
	for depth := 0; depth < keyNibbles; depth++ {
		if n == nil {
			return nil, nil
		}
		if n.kind == nodeLeaf {
			if n.entry.Key == key {
				return n.entry, nil
			}
			return nil, nil
		}
		child := n.children[nibble(key, depth)]
		n, err = t.resolve(child)
		if err != nil {
			return nil, err
		}
	}
	if n != nil && n.kind == nodeLeaf && n.entry.Key == key {
		return n.entry, nil
	}
	return nil, nil
}

// Put inserts or overwrites the entry at entry.Key.
func (t *Trie) Put(entry *types.StateEntry) error {
	root, err := t.getRoot()
	if err != nil {
		return err
	}
	newRoot, err := t.putAt(root, 0, entry)
	if err != nil {
		return err
	}
	t.root = &childLink{resolved: newRoot}
	return nil
}

// Replace overwrites the entry at entry.Key, failing if no entry is present
// there yet. Distinct from Put, which upserts.
func (t *Trie) Replace(entry *types.StateEntry) error {
	existing, err := t.Get(entry.Key)
	if err != nil {
		return err
	}
	if existing == nil {
		return lerrors.New(lerrors.CodeLocal, "statetrie: replace of absent key")
	}
	return t.Put(entry)
}

func (t *Trie) putAt(n *node, depth int, entry *types.StateEntry) (*node, error) {
	if n == nil {
		return newLeaf(entry), nil
	}
	if n.kind == nodeLeaf {
		if n.entry.Key == entry.Key {
			return newLeaf(entry), nil
		}
		return splitLeaves(n.entry, entry, depth)
	}
	cp := n.clone()
	idx := nibble(entry.Key, depth)
	childNode, err := t.resolve(cp.children[idx])
	if err != nil {
		return nil, err
	}
	newChild, err := t.putAt(childNode, depth+1, entry)
	if err != nil {
		return nil, err
	}
	cp.children[idx] = &childLink{resolved: newChild}
	return cp, nil
}

// splitLeaves builds the chain of inner nodes needed to disambiguate two
// colliding leaves starting at depth, down to the first nibble at which
// their keys diverge.
func splitLeaves(existing, incoming *types.StateEntry, depth int) (*node, error) {
	root := newInner()
	cur := root
	d := depth
	for {
		if d >= keyNibbles {
			return nil, errCorruptEncoding // identical keys should never reach here
		}
		a := nibble(existing.Key, d)
		b := nibble(incoming.Key, d)
		if a != b {
			cur.children[a] = &childLink{resolved: newLeaf(existing)}
			cur.children[b] = &childLink{resolved: newLeaf(incoming)}
			return root, nil
		}
		next := newInner()
		cur.children[a] = &childLink{resolved: next}
		cur = next
		d++
	}
}

// Erase removes the entry at key, collapsing inner nodes that drop to zero
// children, and promoting an inner node's single remaining child up a level
// when that child is itself a leaf (so a trie that has had a key inserted
// and erased is structurally identical to one that never saw the insert).
// An inner node whose sole remaining child is itself an inner node is left
// in place: promoting it would shift the nibble depth its own children were
// indexed at, which this trie has no extension-node mechanism to record.
// Reports whether key was present.
func (t *Trie) Erase(key hashing.Hash256) (bool, error) {
	root, err := t.getRoot()
	if err != nil {
		return false, err
	}
	newRoot, removed, err := t.eraseAt(root, 0, key)
	if err != nil {
		return false, err
	}
	if !removed {
		return false, nil
	}
	if newRoot == nil {
		t.root = nil
	} else {
		t.root = &childLink{resolved: newRoot}
	}
	return true, nil
}

func (t *Trie) eraseAt(n *node, depth int, key hashing.Hash256) (*node, bool, error) {
	if n == nil {
		return nil, false, nil
	}
	if n.kind == nodeLeaf {
		if n.entry.Key == key {
			return nil, true, nil
		}
		return n, false, nil
	}
	idx := nibble(key, depth)
	childNode, err := t.resolve(n.children[idx])
	if err != nil {
		return nil, false, err
	}
	newChild, removed, err := t.eraseAt(childNode, depth+1, key)
	if err != nil {
		return nil, false, err
	}
	if !removed {
		return n, false, nil
	}
	cp := n.clone()
	if newChild == nil {
		cp.children[idx] = nil
	} else {
		cp.children[idx] = &childLink{resolved: newChild}
	}
	remaining, onlyIdx := 0, -1
	for i := 0; i < 16; i++ {
		if cp.children[i] != nil {
			remaining++
			onlyIdx = i
		}
	}
	switch remaining {
	case 0:
		return nil, true, nil
	case 1:
		only, err := t.resolve(cp.children[onlyIdx])
		if err != nil {
			return nil, false, err
		}
		if only != nil && only.kind == nodeLeaf {
			return only, true, nil
		}
	}
	return cp, true, nil
}

// Successor returns the entry with the smallest key strictly greater than
// key, or (nil, nil) if key has no successor.
func (t *Trie) Successor(key hashing.Hash256) (*types.StateEntry, error) {
	root, err := t.getRoot()
	if err != nil {
		return nil, err
	}
	return t.successorAt(root, 0, key)
}

func (t *Trie) successorAt(n *node, depth int, key hashing.Hash256) (*types.StateEntry, error) {
	if n == nil {
		return nil, nil
	}
	if n.kind == nodeLeaf {
		if compareHash(n.entry.Key, key) > 0 {
			return n.entry, nil
		}
		return nil, nil
	}
	idx := nibble(key, depth)
	if child := n.children[idx]; child != nil {
		childNode, err := t.resolve(child)
		if err != nil {
			return nil, err
		}
		res, err := t.successorAt(childNode, depth+1, key)
		if err != nil {
			return nil, err
		}
		if res != nil {
			return res, nil
		}
	}
	for i := idx + 1; i < 16; i++ {
		if n.children[i] == nil {
			continue
		}
		childNode, err := t.resolve(n.children[i])
		if err != nil {
			return nil, err
		}
		res, err := t.leftmost(childNode)
		if err != nil {
			return nil, err
		}
		if res != nil {
			return res, nil
		}
	}
	return nil, nil
}

func (t *Trie) leftmost(n *node) (*types.StateEntry, error) {
	if n == nil {
		return nil, nil
	}
	if n.kind == nodeLeaf {
		return n.entry, nil
	}
	for i := 0; i < 16; i++ {
		if n.children[i] == nil {
			continue
		}
		child, err := t.resolve(n.children[i])
		if err != nil {
			return nil, err
		}
		res, err := t.leftmost(child)
		if err != nil {
			return nil, err
		}
		if res != nil {
			return res, nil
		}
	}
	return nil, nil
}

// RootHash returns the trie's current authenticating hash without writing
// anything to store. An empty trie hashes to hashing.ZeroHash.
func (t *Trie) RootHash() (hashing.Hash256, error) {
	n, err := t.getRoot()
	if err != nil {
		return hashing.ZeroHash, err
	}
	return n.hash(t.store)
}

// Flush computes the root hash and persists every node reachable from the
// root that is held in memory (hash-only stubs, never loaded, are skipped),
// so the trie can be reopened from store by RootHash alone.
func (t *Trie) Flush() (hashing.Hash256, error) {
	n, err := t.getRoot()
	if err != nil {
		return hashing.ZeroHash, err
	}
	if err := t.flushNode(n); err != nil {
		return hashing.ZeroHash, err
	}
	return n.hash(t.store)
}

func (t *Trie) flushNode(n *node) error {
	if n == nil {
		return nil
	}
	if n.kind == nodeInner {
		for i := 0; i < 16; i++ {
			c := n.children[i]
			if c == nil || c.resolved == nil {
				continue
			}
			if err := t.flushNode(c.resolved); err != nil {
				return err
			}
		}
	}
	h, err := n.hash(t.store)
	if err != nil {
		return err
	}
	return t.store.Put(h, n.encode())
}

func compareHash(a, b hashing.Hash256) int {
	return bytes.Compare(a[:], b[:])
}
