package admission

import (
	"testing"
	"time"

	"github.com/holiman/uint256"

	"ledgerd/amendment"
	"ledgerd/applyengine"
	"ledgerd/events"
	"ledgerd/feemetrics"
	"ledgerd/hashing"
	"ledgerd/ledger"
	"ledgerd/openview"
	"ledgerd/store"
	"ledgerd/types"
)

// fakeTx is a minimal applyengine.Tx for exercising the queue without a real
// signed transaction type.
type fakeTx struct {
	signer types.AccountID
	seq    uint64
	level  uint64
}

func (f *fakeTx) Hash() hashing.Hash256 {
	return hashing.Sum256(hashing.TagTransaction, append(f.signer[:], byte(f.seq), byte(f.level)))
}
func (f *fakeTx) TypeTag() byte              { return 0xFF }
func (f *fakeTx) Signer() types.AccountID    { return f.signer }
func (f *fakeTx) Sequence() uint64           { return f.seq }
func (f *fakeTx) FeeLevel() uint64           { return f.level }
func (f *fakeTx) Encode() []byte             { return f.signer[:] }

// fakeTransactor always classifies fakeTx as retryable, so Admit's
// apply-directly path falls through to queuing instead of committing —
// fakeTx has no real sequence/balance state for Preclaim to judge against.
type fakeTransactor struct{}

func (fakeTransactor) Preflight(tx applyengine.Tx, amendments amendment.Switch, ledgerSeq uint32) error {
	return nil
}

func (fakeTransactor) Preclaim(view *openview.View, tx applyengine.Tx) (applyengine.Classification, error) {
	return applyengine.ClassRetry, nil
}

func (fakeTransactor) Apply(view *openview.View, tx applyengine.Tx) (applyengine.ResultCode, []byte, *uint256.Int, error) {
	return applyengine.ResultRetry, nil, nil, nil
}

func accountA() types.AccountID {
	var a types.AccountID
	a[0] = 0xA
	return a
}

func newFixture(t *testing.T) (*Queue, *openview.View) {
	t.Helper()
	backing := store.NewMemNodeStore()
	g, err := ledger.NewGenesis(backing, map[types.AccountID]*types.AccountRoot{
		accountA(): {Balance: uint256.NewInt(1_000_000)},
	}, 0, 30)
	if err != nil {
		t.Fatal(err)
	}
	view, err := openview.New(g, backing, 30, 30)
	if err != nil {
		t.Fatal(err)
	}
	engine := applyengine.New(amendment.NewStaticRegistry(nil))
	engine.Register(0xFF, fakeTransactor{})
	metrics := feemetrics.New(feemetrics.Tunables{MinTxns: 5, TargetTxns: 50, MinMultiplier: 1})
	q := New(Margins{RetrySequencePercent: 25, MultiTxnPercent: 25, LedgersInQueue: 20}, metrics, engine)
	return q, view
}

// TestQueueReplacementMargin exercises spec.md §8's literal scenario:
// retrySequencePercent=25, so a queued (A,7,1000) needs level >= 1250 to be
// replaced; 1249 is rejected, 1250 replaces.
func TestQueueReplacementMargin(t *testing.T) {
	q, view := newFixture(t)

	res, err := q.Admit(&fakeTx{signer: accountA(), seq: 7, level: 1000}, view, 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if res != AdmitQueued {
		t.Fatalf("want queued, got %v", res)
	}

	res, err = q.Admit(&fakeTx{signer: accountA(), seq: 7, level: 1249}, view, 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if res != AdmitRejected {
		t.Fatalf("want rejected at 1249, got %v", res)
	}
	if e, ok := q.Lookup(accountA(), 7); !ok || e.Level != 1000 {
		t.Fatalf("want original entry untouched, got %+v ok=%v", e, ok)
	}

	res, err = q.Admit(&fakeTx{signer: accountA(), seq: 7, level: 1250}, view, 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if res != AdmitReplaced {
		t.Fatalf("want replaced at 1250, got %v", res)
	}
	if e, ok := q.Lookup(accountA(), 7); !ok || e.Level != 1250 {
		t.Fatalf("want replaced entry at 1250, got %+v ok=%v", e, ok)
	}
	if q.Len() != 1 {
		t.Fatalf("want exactly one queued entry after replace, got %d", q.Len())
	}
}

func TestAdmitPublishesTxQueued(t *testing.T) {
	q, view := newFixture(t)
	bus := events.NewBus()
	q.SetEventBus(bus)
	_, ch := bus.Subscribe()

	if _, err := q.Admit(&fakeTx{signer: accountA(), seq: 7, level: 1000}, view, 1, 0); err != nil {
		t.Fatal(err)
	}

	select {
	case ev := <-ch:
		if _, ok := ev.(events.TxQueued); !ok {
			t.Fatalf("want TxQueued, got %T", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for TxQueued event")
	}
}

func TestSweepExpiresStaleEntries(t *testing.T) {
	q, view := newFixture(t)

	if _, err := q.Admit(&fakeTx{signer: accountA(), seq: 7, level: 1000}, view, 1, 3); err != nil {
		t.Fatal(err)
	}
	q.Sweep(4)
	if q.Len() != 0 {
		t.Fatalf("want entry expired after its last valid ledger, got len=%d", q.Len())
	}
}

func TestSweepKeepsEntriesStillValid(t *testing.T) {
	q, view := newFixture(t)

	if _, err := q.Admit(&fakeTx{signer: accountA(), seq: 7, level: 1000}, view, 1, 10); err != nil {
		t.Fatal(err)
	}
	q.Sweep(4)
	if q.Len() != 1 {
		t.Fatalf("want entry to survive sweep before its expiry, got len=%d", q.Len())
	}
}
