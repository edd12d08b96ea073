package statetrie

import (
	"ledgerd/hashing"
	"ledgerd/types"
)

type nodeKind uint8

const (
	nodeLeaf  nodeKind = 1
	nodeInner nodeKind = 2
)

// childLink is one of an inner node's 16 slots: either an in-memory resolved
// node, a hash-only stub awaiting a node-store fetch, or empty (nil link).
type childLink struct {
	hash     hashing.Hash256
	resolved *node
}

func (c *childLink) effectiveHash() hashing.Hash256 {
	if c == nil {
		return hashing.ZeroHash
	}
	if c.resolved != nil && c.resolved.hashDirty {
		panic("statetrie: effectiveHash called on dirty child; call hash() first")
	}
	return c.hash
}

// node is a trie node: a leaf (full StateEntry) or an inner node (16 child
// links). Nodes are treated as immutable once their hash has been computed
// and shared; a mutation always allocates a new node rather than editing one
// in place, giving copy-on-write snapshot sharing for free through Go's
// garbage collector instead of manual reference counting.
type node struct {
	kind nodeKind

	// valid when kind == nodeLeaf
	entry *types.StateEntry

	// valid when kind == nodeInner
	children [16]*childLink

	cachedHash hashing.Hash256
	hashDirty  bool
}

func newLeaf(entry *types.StateEntry) *node {
	return &node{kind: nodeLeaf, entry: entry, hashDirty: true}
}

func newInner() *node {
	return &node{kind: nodeInner, hashDirty: true}
}

// clone returns a shallow copy suitable for a copy-on-write mutation: the
// children array is copied (so the new node's slots can be edited
// independently) but each childLink and its resolved subtree is shared.
func (n *node) clone() *node {
	cp := &node{kind: n.kind, entry: n.entry, hashDirty: true}
	if n.kind == nodeInner {
		for i := 0; i < 16; i++ {
			cp.children[i] = n.children[i]
		}
	}
	return cp
}

// nibble returns nibble i (0-63) of a 256-bit key, high nibble first.
func nibble(key hashing.Hash256, i int) byte {
	b := key[i/2]
	if i%2 == 0 {
		return b >> 4
	}
	return b & 0x0F
}

const keyNibbles = 64

// hash computes (and caches) this node's hash bottom-up, recursing into
// resolved children and taking a hash-only stub child's recorded hash as is.
// It neither fetches from nor writes to store; writing is flush's job.
func (n *node) hash(store nodeFetcher) (hashing.Hash256, error) {
	if n == nil {
		return hashing.ZeroHash, nil
	}
	if !n.hashDirty {
		return n.cachedHash, nil
	}
	switch n.kind {
	case nodeLeaf:
		h := hashing.New(hashing.TagTrieLeaf)
		h.WriteHash256(n.entry.Key)
		h.Write([]byte{byte(n.entry.Type)})
		h.Write(n.entry.Body)
		n.cachedHash = h.Sum()
	case nodeInner:
		h := hashing.New(hashing.TagTrieInner)
		for i := 0; i < 16; i++ {
			c := n.children[i]
			if c == nil {
				h.WriteHash256(hashing.ZeroHash)
				continue
			}
			if c.resolved != nil {
				childHash, err := c.resolved.hash(store)
				if err != nil {
					return hashing.ZeroHash, err
				}
				c.hash = childHash
			}
			h.WriteHash256(c.hash)
		}
		n.cachedHash = h.Sum()
	}
	n.hashDirty = false
	return n.cachedHash, nil
}

// encode serializes a node to its node-store wire form. Leaves:
// tag | key(32) | entryType(1) | body. Inner: tag | 16*32 child hashes.
func (n *node) encode() []byte {
	switch n.kind {
	case nodeLeaf:
		out := make([]byte, 0, 1+32+1+len(n.entry.Body))
		out = append(out, byte(nodeLeaf))
		out = append(out, n.entry.Key.Bytes()...)
		out = append(out, byte(n.entry.Type))
		out = append(out, n.entry.Body...)
		return out
	case nodeInner:
		out := make([]byte, 0, 1+16*32)
		out = append(out, byte(nodeInner))
		for i := 0; i < 16; i++ {
			out = append(out, n.children[i].effectiveHash().Bytes()...)
		}
		return out
	}
	return nil
}

// decodeNode parses the wire form produced by encode, for a node fetched
// from the store by hash.
func decodeNode(b []byte) (*node, error) {
	if len(b) == 0 {
		return nil, errCorruptEncoding
	}
	switch nodeKind(b[0]) {
	case nodeLeaf:
		if len(b) < 1+32+1 {
			return nil, errCorruptEncoding
		}
		var key hashing.Hash256
		copy(key[:], b[1:33])
		entry := &types.StateEntry{
			Key:  key,
			Type: types.EntryType(b[33]),
			Body: append([]byte(nil), b[34:]...),
		}
		n := newLeaf(entry)
		n.hashDirty = true
		return n, nil
	case nodeInner:
		if len(b) != 1+16*32 {
			return nil, errCorruptEncoding
		}
		n := newInner()
		off := 1
		for i := 0; i < 16; i++ {
			var h hashing.Hash256
			copy(h[:], b[off:off+32])
			off += 32
			if !h.IsZero() {
				n.children[i] = &childLink{hash: h}
			}
		}
		n.hashDirty = true
		return n, nil
	default:
		return nil, errCorruptEncoding
	}
}
