package txn

import (
	"crypto/ed25519"
	"testing"

	"github.com/holiman/uint256"

	"ledgerd/amendment"
	"ledgerd/applyengine"
	"ledgerd/ledger"
	"ledgerd/openview"
	"ledgerd/store"
	"ledgerd/types"
)

func newTestLedger(t *testing.T, senderBalance uint64) (*ledger.Ledger, ed25519.PublicKey, ed25519.PrivateKey, store.NodeStore) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatal(err)
	}
	senderID := types.AccountIDFromPubKey(pub)
	backing := store.NewMemNodeStore()
	g, err := ledger.NewGenesis(backing, map[types.AccountID]*types.AccountRoot{
		senderID: {Balance: uint256.NewInt(senderBalance)},
	}, 0, 30)
	if err != nil {
		t.Fatal(err)
	}
	return g, pub, priv, backing
}

func TestPaymentAppliesSuccessfully(t *testing.T) {
	g, pub, priv, backing := newTestLedger(t, 1_000_000)
	view, err := openview.New(g, backing, 30, 30)
	if err != nil {
		t.Fatal(err)
	}

	dest := types.AccountIDFromPubKey([]byte("destination-key-material-000000"))
	p := &Payment{SenderPubKey: pub, Seq: 0, FeeLvl: 256, Dest: dest, Amount: uint256.NewInt(500)}
	p.Sign(priv)

	engine := applyengine.New(amendment.NewStaticRegistry(nil))
	engine.Register(PaymentTag, PaymentTransactor{})

	code, _, err := engine.ApplyTx(view, p, g.Header.Seq+1)
	if err != nil {
		t.Fatal(err)
	}
	if code != applyengine.ResultSuccess {
		t.Fatalf("want success, got %v", code)
	}

	destEntry, err := view.Get(dest.StateKey())
	if err != nil {
		t.Fatal(err)
	}
	destRoot, err := types.DecodeAccountRoot(destEntry.Body)
	if err != nil {
		t.Fatal(err)
	}
	if destRoot.Balance.Uint64() != 500 {
		t.Fatalf("want dest balance 500, got %v", destRoot.Balance)
	}
}

func TestPaymentApplyConservesCoinsMinusFee(t *testing.T) {
	g, pub, priv, backing := newTestLedger(t, 1_000_000)
	view, err := openview.New(g, backing, 30, 30)
	if err != nil {
		t.Fatal(err)
	}
	before := view.TotalBalance()

	dest := types.AccountIDFromPubKey([]byte("destination-key-material-000000"))
	p := &Payment{SenderPubKey: pub, Seq: 0, FeeLvl: 256, Dest: dest, Amount: uint256.NewInt(500)}
	p.Sign(priv)

	engine := applyengine.New(amendment.NewStaticRegistry(nil))
	engine.Register(PaymentTag, PaymentTransactor{})

	code, _, err := engine.ApplyTx(view, p, g.Header.Seq+1)
	if err != nil {
		t.Fatal(err)
	}
	if code != applyengine.ResultSuccess {
		t.Fatalf("want success, got %v", code)
	}

	after := view.TotalBalance()
	want := new(uint256.Int).Sub(before, p.FeeDrops())
	if !after.Eq(want) {
		t.Fatalf("want total balance %v after fee burn, got %v", want, after)
	}
}

func TestPaymentRejectsBadSignature(t *testing.T) {
	g, pub, _, backing := newTestLedger(t, 1_000_000)
	view, err := openview.New(g, backing, 30, 30)
	if err != nil {
		t.Fatal(err)
	}

	dest := types.AccountIDFromPubKey([]byte("destination-key-material-000000"))
	p := &Payment{SenderPubKey: pub, Seq: 0, FeeLvl: 256, Dest: dest, Amount: uint256.NewInt(500)}
	// Sig left zeroed: not a valid signature over the payload.

	engine := applyengine.New(amendment.NewStaticRegistry(nil))
	engine.Register(PaymentTag, PaymentTransactor{})

	code, _, err := engine.ApplyTx(view, p, g.Header.Seq+1)
	if err != nil {
		t.Fatal(err)
	}
	if code != applyengine.ResultMalformed {
		t.Fatalf("want malformed, got %v", code)
	}
}

func TestPaymentSequenceGapRetries(t *testing.T) {
	g, pub, priv, backing := newTestLedger(t, 1_000_000)
	view, err := openview.New(g, backing, 30, 30)
	if err != nil {
		t.Fatal(err)
	}

	dest := types.AccountIDFromPubKey([]byte("destination-key-material-000000"))
	p := &Payment{SenderPubKey: pub, Seq: 5, FeeLvl: 256, Dest: dest, Amount: uint256.NewInt(1)}
	p.Sign(priv)

	engine := applyengine.New(amendment.NewStaticRegistry(nil))
	engine.Register(PaymentTag, PaymentTransactor{})

	code, _, err := engine.ApplyTx(view, p, g.Header.Seq+1)
	if err != nil {
		t.Fatal(err)
	}
	if code != applyengine.ResultRetry {
		t.Fatalf("want retry, got %v", code)
	}
}

func TestPaymentEncodeDecodeRoundTrip(t *testing.T) {
	_, pub, priv, _ := newTestLedger(t, 1)
	dest := types.AccountIDFromPubKey([]byte("destination-key-material-000000"))
	p := &Payment{SenderPubKey: pub, Seq: 3, FeeLvl: 256, Dest: dest, Amount: uint256.NewInt(42)}
	p.Sign(priv)

	decoded, err := DecodePayment(p.Encode())
	if err != nil {
		t.Fatal(err)
	}
	if decoded.Hash() != p.Hash() {
		t.Fatalf("round trip hash mismatch")
	}
}
