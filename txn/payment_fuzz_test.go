package txn

import (
	"crypto/ed25519"
	"testing"

	"github.com/google/gofuzz"
	"github.com/holiman/uint256"

	"ledgerd/types"
)

// TestPaymentEncodeDecodeRoundTripFuzz fuzzes the mutable fields of a signed
// Payment and checks Encode/DecodePayment round-trip exactly, including the
// signature bytes (Decode never re-verifies, only Preflight does).
func TestPaymentEncodeDecodeRoundTripFuzz(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatal(err)
	}

	f := fuzz.New().NilChance(0)
	for i := 0; i < 200; i++ {
		var seq, feeLvl uint64
		var dest [20]byte
		var amountBytes [32]byte
		f.Fuzz(&seq)
		f.Fuzz(&feeLvl)
		f.Fuzz(&dest)
		f.Fuzz(&amountBytes)

		want := &Payment{
			SenderPubKey: pub,
			Seq:          seq,
			FeeLvl:       feeLvl,
			Dest:         types.AccountID(dest),
			Amount:       new(uint256.Int).SetBytes(amountBytes[:]),
		}
		want.Sign(priv)

		got, err := DecodePayment(want.Encode())
		if err != nil {
			t.Fatalf("decode failed for iteration %d: %v", i, err)
		}
		if got.Seq != want.Seq || got.FeeLvl != want.FeeLvl || got.Dest != want.Dest {
			t.Fatalf("scalar mismatch: got %+v, want %+v", got, want)
		}
		if got.Amount.Cmp(want.Amount) != 0 {
			t.Fatalf("amount mismatch: got %s, want %s", got.Amount, want.Amount)
		}
		if got.Sig != want.Sig {
			t.Fatalf("signature mismatch for iteration %d", i)
		}
		if !ed25519.Verify(pub, got.signingPayload(), got.Sig[:]) {
			t.Fatalf("decoded payment failed signature verification at iteration %d", i)
		}
	}
}
