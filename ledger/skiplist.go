package ledger

import (
	"encoding/binary"

	"ledgerd/errors"
	"ledgerd/hashing"
	"ledgerd/statetrie"
	"ledgerd/types"
)

// Allowed close_resolution values, per spec.md §4.6/§8.
var allowedResolutions = [...]uint8{10, 20, 30, 60, 90, 120}

func isAllowedResolution(r uint8) bool {
	for _, v := range allowedResolutions {
		if v == r {
			return true
		}
	}
	return false
}

const rollingWindowSize = 256

// skipListRollingKey is the single fixed trie key under which every ledger's
// rolling window of its last 256 ancestor hashes is stored. It is derived
// from a label rather than any ledger-specific data, so every ledger's state
// trie resolves it to the same key and inherits the slot the parent wrote
// unless this ledger overwrites one entry.
func skipListRollingKey() hashing.Hash256 {
	return hashing.Sum256(hashing.TagTrieLeaf, []byte("skiplist/rolling"))
}

// skipListBucketKey derives the trie key for the every-256th bucket entry
// recording the hash of the ledger at exactly seq (seq must be a multiple
// of 256).
func skipListBucketKey(seq uint32) hashing.Hash256 {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], seq)
	return hashing.Sum256(hashing.TagTrieLeaf, []byte("skiplist/bucket"), buf[:])
}

type rollingWindow [rollingWindowSize]hashing.Hash256

func (w *rollingWindow) encode() []byte {
	out := make([]byte, 0, rollingWindowSize*32)
	for _, h := range w {
		out = append(out, h.Bytes()...)
	}
	return out
}

func decodeRollingWindow(b []byte) (*rollingWindow, error) {
	if len(b) != rollingWindowSize*32 {
		return nil, errors.New(errors.CodeLocal, "ledger: malformed rolling window entry")
	}
	var w rollingWindow
	for i := range w {
		copy(w[i][:], b[i*32:(i+1)*32])
	}
	return &w, nil
}

func readRollingWindow(trie *statetrie.Trie) (*rollingWindow, error) {
	entry, err := trie.Get(skipListRollingKey())
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return &rollingWindow{}, nil
	}
	return decodeRollingWindow(entry.Body)
}

// updateSkipList writes the skip-list entries this ledger is responsible
// for: the rolling-window slot for its own parent, and (when the parent's
// own sequence is a multiple of 256) the every-256th bucket for it. trie is
// mutated in place; it is expected to already be a copy-on-write snapshot of
// the parent's state trie, so every other slot is inherited for free.
func updateSkipList(trie *statetrie.Trie, seq uint32, parentHash hashing.Hash256) error {
	if seq <= 1 {
		return nil // genesis has no parent to record
	}
	parentSeq := seq - 1

	window, err := readRollingWindow(trie)
	if err != nil {
		return err
	}
	window[parentSeq%rollingWindowSize] = parentHash
	if err := trie.Put(&types.StateEntry{
		Key:  skipListRollingKey(),
		Type: types.EntrySkipList,
		Body: window.encode(),
	}); err != nil {
		return err
	}

	if parentSeq%rollingWindowSize == 0 {
		if err := trie.Put(&types.StateEntry{
			Key:  skipListBucketKey(parentSeq),
			Type: types.EntrySkipList,
			Body: parentHash.Bytes(),
		}); err != nil {
			return err
		}
	}
	return nil
}

// HashOfSeq answers hash_of_seq(ledger, targetSeq) from spec.md §4.2: the
// hash of the ledger at targetSeq, as seen from l. Returns ok=false if
// targetSeq falls outside the skip list's coverage (older than the rolling
// window and not an exact multiple of 256).
func (l *Ledger) HashOfSeq(targetSeq uint32) (hash hashing.Hash256, ok bool, err error) {
	if targetSeq == l.Header.Seq {
		return l.Hash, true, nil
	}
	if targetSeq == l.Header.Seq-1 {
		return l.Header.ParentHash, true, nil
	}
	if targetSeq < l.Header.Seq && l.Header.Seq-targetSeq <= rollingWindowSize {
		window, err := readRollingWindow(l.StateTrie)
		if err != nil {
			return hashing.ZeroHash, false, err
		}
		h := window[targetSeq%rollingWindowSize]
		if h.IsZero() {
			return hashing.ZeroHash, false, nil
		}
		return h, true, nil
	}
	if targetSeq%rollingWindowSize == 0 {
		entry, err := l.StateTrie.Get(skipListBucketKey(targetSeq))
		if err != nil {
			return hashing.ZeroHash, false, err
		}
		if entry == nil {
			return hashing.ZeroHash, false, nil
		}
		var h hashing.Hash256
		copy(h[:], entry.Body)
		return h, true, nil
	}
	return hashing.ZeroHash, false, nil
}
