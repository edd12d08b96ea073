package config

import (
	"os"
	"path/filepath"
	"testing"

	"ledgerd/consensus"
)

const genesisYAML = `
config:
  self_node:
    validator_id: v1
    privkey_path: ./v1.key
  close_time: 1000
  close_resolution: 30
  accounts:
    - address: "0101010101010101010101010101010101010101"
      balance: "1000000"
      sequence: 0
      owner_count: 0
  amendments:
    - feature_id: fast_admission
      activation_seq: 5
`

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadGenesisConfig(t *testing.T) {
	path := writeTemp(t, "genesis.yml", genesisYAML)
	cfg, err := LoadGenesisConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.SelfNode.ValidatorID != "v1" {
		t.Fatalf("want validator_id v1, got %q", cfg.SelfNode.ValidatorID)
	}
	if len(cfg.Accounts) != 1 || cfg.Accounts[0].Balance != "1000000" {
		t.Fatalf("want one account with balance 1000000, got %+v", cfg.Accounts)
	}
	if got := AmendmentActivations(cfg.Amendments)["fast_admission"]; got != 5 {
		t.Fatalf("want fast_admission activation 5, got %d", got)
	}
}

func TestBuildGenesisAccountsRejectsBadAddress(t *testing.T) {
	_, err := BuildGenesisAccounts([]GenesisAccount{{Address: "not-hex", Balance: "1"}})
	if err == nil {
		t.Fatal("want error for non-hex address")
	}
}

func TestBuildGenesisAccountsRejectsBadBalance(t *testing.T) {
	_, err := BuildGenesisAccounts([]GenesisAccount{{Address: "0101010101010101010101010101010101010101", Balance: "not-a-number"}})
	if err == nil {
		t.Fatal("want error for non-decimal balance")
	}
}

const runtimeINI = `
[fee_metrics]
min_txns = 10
target_txns = 40

[admission]
retry_sequence_percent = 30

[consensus]
ledger_min_close_ms = 2500
trusted_validator_quorum_percent = 90
`

func TestLoadRuntimeConfigAppliesDefaultsForUnsetFields(t *testing.T) {
	path := writeTemp(t, "runtime.ini", runtimeINI)
	rc, err := LoadRuntimeConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if rc.FeeMetrics.MinTxns != 10 || rc.FeeMetrics.TargetTxns != 40 {
		t.Fatalf("want configured fee metrics values preserved, got %+v", rc.FeeMetrics)
	}
	if rc.FeeMetrics.MaxTxns != DefaultFeeMetricsMaxTxns {
		t.Fatalf("want default max_txns applied, got %d", rc.FeeMetrics.MaxTxns)
	}
	if rc.Admission.MultiTxnPercent != DefaultAdmissionMultiTxnPercent {
		t.Fatalf("want default multi_txn_percent applied, got %d", rc.Admission.MultiTxnPercent)
	}

	tun := rc.ToConsensusTunables()
	if tun.LedgerMinClose.Milliseconds() != 2500 {
		t.Fatalf("want configured ledger_min_close_ms honored, got %v", tun.LedgerMinClose)
	}
	if tun.TrustedValidatorQuorumPercent != 90 {
		t.Fatalf("want configured quorum percent honored, got %d", tun.TrustedValidatorQuorumPercent)
	}
	d := consensus.DefaultTunables()
	if tun.IdleTimeout != d.IdleTimeout {
		t.Fatalf("want unset idle_timeout_ms to fall back to default, got %v", tun.IdleTimeout)
	}
}
