package transport

import (
	"context"
	"testing"
	"time"

	"ledgerd/consensus"
	"ledgerd/hashing"
	"ledgerd/store"
)

func TestLoopbackFansOutProposals(t *testing.T) {
	bus := NewLoopback(nil, nil)
	ch1 := bus.SubscribeProposals()
	ch2 := bus.SubscribeProposals()

	p := &consensus.Proposal{Validator: "v1", Round: 1}
	bus.PublishProposal(p)

	for _, ch := range []<-chan *consensus.Proposal{ch1, ch2} {
		select {
		case got := <-ch:
			if got.Validator != "v1" {
				t.Fatalf("want validator v1, got %s", got.Validator)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for fanout")
		}
	}
}

func TestLoopbackGetNodeAnswersFromStore(t *testing.T) {
	mem := store.NewMemNodeStore()
	h := hashing.Sum256(hashing.TagLedgerHead, []byte("node"))
	if err := mem.Put(h, []byte("body")); err != nil {
		t.Fatal(err)
	}
	bus := NewLoopback(mem, nil)

	body, ok, err := bus.GetNode(context.Background(), h)
	if err != nil {
		t.Fatal(err)
	}
	if !ok || string(body) != "body" {
		t.Fatalf("want (body, true), got (%q, %v)", body, ok)
	}

	_, ok, err = bus.GetNode(context.Background(), hashing.Sum256(hashing.TagLedgerHead, []byte("missing")))
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("want not-found for unseen hash")
	}
}

func TestLoopbackGetLedgerWithNoChainReturnsNotFound(t *testing.T) {
	bus := NewLoopback(nil, nil)
	_, ok, err := bus.GetLedger(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("want not-found when no chain is attached")
	}
}
