package consensus

import (
	"testing"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"ledgerd/hashing"
)

func genKey(t *testing.T) (*secp256k1.PrivateKey, *secp256k1.PublicKey) {
	t.Helper()
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		t.Fatal(err)
	}
	return priv, priv.PubKey()
}

func TestValidationSignAndVerify(t *testing.T) {
	priv, pub := genKey(t)
	v := &Validation{Validator: "v1", Seq: 5, Hash: hashing.Sum256(hashing.TagLedgerHead, []byte("l5")), CloseTime: 100}
	v.Sign(priv)
	if !v.Verify(pub) {
		t.Fatal("want valid signature to verify")
	}
	v.CloseTime = 200
	if v.Verify(pub) {
		t.Fatal("want tampered payload to fail verification")
	}
}

func TestTrackerFullyValidatedRequiresQuorum(t *testing.T) {
	priv1, pub1 := genKey(t)
	priv2, pub2 := genKey(t)
	_, pub3 := genKey(t)

	trusted := map[ValidatorID]*secp256k1.PublicKey{"v1": pub1, "v2": pub2, "v3": pub3}
	tr := NewTracker(trusted, 67)

	hash := hashing.Sum256(hashing.TagLedgerHead, []byte("l5"))
	now := time.Unix(1000, 0)

	v1 := &Validation{Validator: "v1", Seq: 5, Hash: hash}
	v1.Sign(priv1)
	v1.MarkReceived(fixedClock{now})
	tr.Record(v1)

	if tr.FullyValidated(5, hash) {
		t.Fatal("want not fully validated with only 1/3 trusted validators")
	}

	v2 := &Validation{Validator: "v2", Seq: 5, Hash: hash}
	v2.Sign(priv2)
	v2.MarkReceived(fixedClock{now})
	tr.Record(v2)

	if !tr.FullyValidated(5, hash) {
		t.Fatal("want fully validated with 2/3 trusted validators at 67%% quorum")
	}
}

type fixedClock struct{ t time.Time }

func (f fixedClock) Now() time.Time            { return f.t }
func (f fixedClock) Monotonic() time.Duration  { return 0 }
func (f fixedClock) CloseTimeNow() uint32      { return 0 }
