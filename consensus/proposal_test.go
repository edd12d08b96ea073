package consensus

import (
	"testing"
	"time"

	"ledgerd/hashing"
)

func TestProposalSignAndVerify(t *testing.T) {
	priv, pub := genKey(t)
	p := &Proposal{Validator: "v1", Round: 1, PrevHash: hashing.Sum256(hashing.TagLedgerHead, []byte("p")), SetHash: hashing.Sum256(hashing.TagTransaction, []byte("s")), CloseTime: 100, Seq: 1}
	p.Sign(priv)
	if !p.Verify(pub) {
		t.Fatal("want valid signature to verify")
	}
	p.Seq = 2
	if p.Verify(pub) {
		t.Fatal("want tampered payload to fail verification")
	}
}

func TestProposalFreshnessRejectsStaleSeq(t *testing.T) {
	now := time.Unix(1000, 0)
	p := &Proposal{Seq: 3}
	p.MarkReceived(fixedClock{now})

	if p.IsFresh(now, time.Second, 5, true) {
		t.Fatal("want stale seq (3 <= last seen 5) rejected")
	}
	if !p.IsFresh(now, time.Second, 2, true) {
		t.Fatal("want fresher seq (3 > last seen 2) within the freshness window accepted")
	}
	if p.IsFresh(now.Add(2*time.Second), time.Second, 2, true) {
		t.Fatal("want a proposal outside the freshness window rejected")
	}
}
