// Package config loads the genesis chain state (YAML) and runtime tunables
// (INI) that wire together every other package's constructor, adapted from
// the teacher's genesis.yml/.ini split in mmn/config.
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/holiman/uint256"
	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"

	"ledgerd/admission"
	"ledgerd/consensus"
	"ledgerd/feemetrics"
	"ledgerd/ledger"
	"ledgerd/logx"
	"ledgerd/store"
	"ledgerd/types"
)

// LoadGenesisConfig reads and parses a genesis.yml file.
func LoadGenesisConfig(path string) (*GenesisConfig, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open genesis file: %w", err)
	}
	defer file.Close()

	var cfgFile ConfigFile
	if err := yaml.NewDecoder(file).Decode(&cfgFile); err != nil {
		return nil, fmt.Errorf("config: decode genesis yaml: %w", err)
	}
	logx.Info("CONFIG", fmt.Sprintf("loaded genesis config | validator=%s | accounts=%d | amendments=%d",
		cfgFile.Config.SelfNode.ValidatorID, len(cfgFile.Config.Accounts), len(cfgFile.Config.Amendments)))
	return &cfgFile.Config, nil
}

// LoadValidatorPrivKey loads this node's secp256k1 signing key (hex-encoded
// 32 bytes), used to sign Proposal and Validation messages.
func LoadValidatorPrivKey(path string) (*secp256k1.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read privkey file: %w", err)
	}
	keyBytes, err := hex.DecodeString(string(bytesTrimSpace(data)))
	if err != nil {
		return nil, fmt.Errorf("config: decode privkey hex: %w", err)
	}
	if len(keyBytes) != 32 {
		return nil, fmt.Errorf("config: privkey length %d, want 32", len(keyBytes))
	}
	return secp256k1.PrivKeyFromBytes(keyBytes), nil
}

func bytesTrimSpace(b []byte) []byte {
	start, end := 0, len(b)
	for start < end && isSpace(b[start]) {
		start++
	}
	for end > start && isSpace(b[end-1]) {
		end--
	}
	return b[start:end]
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\r' || c == '\t'
}

// BuildGenesisAccounts converts the YAML account list into the map
// ledger.NewGenesis expects, parsing each decimal balance string into a
// uint256.
func BuildGenesisAccounts(accounts []GenesisAccount) (map[types.AccountID]*types.AccountRoot, error) {
	out := make(map[types.AccountID]*types.AccountRoot, len(accounts))
	for _, a := range accounts {
		addrBytes, err := hex.DecodeString(a.Address)
		if err != nil || len(addrBytes) != 20 {
			return nil, fmt.Errorf("config: account address %q is not 20 bytes of hex", a.Address)
		}
		var id types.AccountID
		copy(id[:], addrBytes)

		balance, err := uint256.FromDecimal(a.Balance)
		if err != nil {
			return nil, fmt.Errorf("config: account %q balance %q is not a valid decimal: %w", a.Address, a.Balance, err)
		}
		out[id] = &types.AccountRoot{
			Balance:    balance,
			Sequence:   a.Sequence,
			OwnerCount: a.OwnerCount,
		}
	}
	return out, nil
}

// BuildGenesisLedger loads accounts from cfg and constructs the genesis
// ledger against the given node store.
func BuildGenesisLedger(cfg *GenesisConfig, backing store.NodeStore) (*ledger.Ledger, error) {
	accounts, err := BuildGenesisAccounts(cfg.Accounts)
	if err != nil {
		return nil, err
	}
	return ledger.NewGenesis(backing, accounts, cfg.CloseTime, cfg.CloseResolution)
}

// AmendmentActivations converts the YAML amendment list into the
// featureID->sequence map amendment.NewStaticRegistry expects.
func AmendmentActivations(entries []AmendmentActivation) map[string]uint32 {
	out := make(map[string]uint32, len(entries))
	for _, e := range entries {
		out[e.FeatureID] = e.ActivationSeq
	}
	return out
}

// RuntimeConfig is the .ini-loaded set of per-process tunables: fee
// escalation, admission queue margins, consensus timing, and logging,
// matching the teacher's split of one .ini section per concern.
type RuntimeConfig struct {
	FeeMetrics FeeMetricsSection `ini:"fee_metrics"`
	Admission  AdmissionSection  `ini:"admission"`
	Consensus  ConsensusSection  `ini:"consensus"`
	Logging    LoggingSection    `ini:"logging"`
	WorkerPool WorkerPoolSection `ini:"workerpool"`
}

type FeeMetricsSection struct {
	MinTxns       uint64 `ini:"min_txns"`
	TargetTxns    uint64 `ini:"target_txns"`
	MaxTxns       uint64 `ini:"max_txns"`
	MinMultiplier uint64 `ini:"min_multiplier"`
}

type AdmissionSection struct {
	RetrySequencePercent uint64 `ini:"retry_sequence_percent"`
	MultiTxnPercent      uint64 `ini:"multi_txn_percent"`
	LedgersInQueue       uint64 `ini:"ledgers_in_queue"`
}

type ConsensusSection struct {
	LedgerMinCloseMs               int `ini:"ledger_min_close_ms"`
	ProposeFreshnessMs             int `ini:"propose_freshness_ms"`
	IdleTimeoutMs                  int `ini:"idle_timeout_ms"`
	StuckTimeoutMs                 int `ini:"stuck_timeout_ms"`
	AVCloseTimeConsensusPercent    int `ini:"av_close_time_consensus_percent"`
	MinimumConsensusPercent        int `ini:"minimum_consensus_percent"`
	DecreaseResolutionEveryRounds  int `ini:"decrease_resolution_every_rounds"`
	IncreaseResolutionEveryRounds  int `ini:"increase_resolution_every_rounds"`
	ValidationValidWallSec         int `ini:"validation_valid_wall_sec"`
	ValidationValidLocalSec        int `ini:"validation_valid_local_sec"`
	ValidationValidEarlySec        int `ini:"validation_valid_early_sec"`
	TrustedValidatorQuorumPercent  int `ini:"trusted_validator_quorum_percent"`
	TimeLeapMultiplier             uint64 `ini:"time_leap_multiplier"`
	TimeLeapAbsoluteCapSec         int    `ini:"time_leap_absolute_cap_sec"`
}

type LoggingSection struct {
	Filename   string `ini:"filename"`
	MaxSizeMB  int    `ini:"max_size_mb"`
	MaxAgeDays int    `ini:"max_age_days"`
}

type WorkerPoolSection struct {
	Workers int `ini:"workers"`
}

// LoadRuntimeConfig reads per-process tunables from an .ini file, applying
// the package defaults to any zero-valued fee-metrics, admission or
// worker-pool field. Zero consensus fields fall back in ToConsensusTunables;
// logging fields are kept as loaded (logx.Configure fills its own defaults).
func LoadRuntimeConfig(path string) (*RuntimeConfig, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("config: load runtime ini: %w", err)
	}
	rc := &RuntimeConfig{}
	for _, section := range []struct {
		name string
		dest interface{}
	}{
		{"fee_metrics", &rc.FeeMetrics},
		{"admission", &rc.Admission},
		{"consensus", &rc.Consensus},
		{"logging", &rc.Logging},
		{"workerpool", &rc.WorkerPool},
	} {
		if err := cfg.Section(section.name).MapTo(section.dest); err != nil {
			return nil, fmt.Errorf("config: map ini section %q: %w", section.name, err)
		}
	}
	applyDefaults(rc)
	return rc, nil
}

func applyDefaults(rc *RuntimeConfig) {
	if rc.FeeMetrics.MinTxns == 0 {
		rc.FeeMetrics.MinTxns = DefaultFeeMetricsMinTxns
	}
	if rc.FeeMetrics.TargetTxns == 0 {
		rc.FeeMetrics.TargetTxns = DefaultFeeMetricsTargetTxns
	}
	if rc.FeeMetrics.MaxTxns == 0 {
		rc.FeeMetrics.MaxTxns = DefaultFeeMetricsMaxTxns
	}
	if rc.FeeMetrics.MinMultiplier == 0 {
		rc.FeeMetrics.MinMultiplier = DefaultFeeMetricsMinMultiplier
	}
	if rc.Admission.RetrySequencePercent == 0 {
		rc.Admission.RetrySequencePercent = DefaultAdmissionRetrySequencePercent
	}
	if rc.Admission.MultiTxnPercent == 0 {
		rc.Admission.MultiTxnPercent = DefaultAdmissionMultiTxnPercent
	}
	if rc.Admission.LedgersInQueue == 0 {
		rc.Admission.LedgersInQueue = DefaultAdmissionLedgersInQueue
	}
	if rc.WorkerPool.Workers == 0 {
		rc.WorkerPool.Workers = DefaultWorkerPoolWorkers
	}
}

// ToFeeMetricsTunables converts the loaded section into feemetrics.Tunables.
func (rc *RuntimeConfig) ToFeeMetricsTunables() feemetrics.Tunables {
	return feemetrics.Tunables{
		MinTxns:       rc.FeeMetrics.MinTxns,
		TargetTxns:    rc.FeeMetrics.TargetTxns,
		MaxTxns:       rc.FeeMetrics.MaxTxns,
		MinMultiplier: rc.FeeMetrics.MinMultiplier,
	}
}

// ToAdmissionMargins converts the loaded section into admission.Margins.
func (rc *RuntimeConfig) ToAdmissionMargins() admission.Margins {
	return admission.Margins{
		RetrySequencePercent: rc.Admission.RetrySequencePercent,
		MultiTxnPercent:      rc.Admission.MultiTxnPercent,
		LedgersInQueue:       rc.Admission.LedgersInQueue,
	}
}

// ToConsensusTunables converts the loaded section into consensus.Tunables,
// falling back to consensus.DefaultTunables for any zero-valued duration so
// an empty [consensus] section still yields sane timing.
func (rc *RuntimeConfig) ToConsensusTunables() consensus.Tunables {
	d := consensus.DefaultTunables()
	c := rc.Consensus
	t := consensus.Tunables{
		LedgerMinClose:                 millisOr(c.LedgerMinCloseMs, d.LedgerMinClose),
		ProposeFreshness:               millisOr(c.ProposeFreshnessMs, d.ProposeFreshness),
		IdleTimeout:                    millisOr(c.IdleTimeoutMs, d.IdleTimeout),
		StuckTimeout:                   millisOr(c.StuckTimeoutMs, d.StuckTimeout),
		AVCloseTimeConsensusPercent:    intOr(c.AVCloseTimeConsensusPercent, d.AVCloseTimeConsensusPercent),
		MinimumConsensusPercent:        intOr(c.MinimumConsensusPercent, d.MinimumConsensusPercent),
		DecreaseResolutionEveryRounds:  intOr(c.DecreaseResolutionEveryRounds, d.DecreaseResolutionEveryRounds),
		IncreaseResolutionEveryRounds:  intOr(c.IncreaseResolutionEveryRounds, d.IncreaseResolutionEveryRounds),
		ValidationValidWall:            secondsOr(c.ValidationValidWallSec, d.ValidationValidWall),
		ValidationValidLocal:           secondsOr(c.ValidationValidLocalSec, d.ValidationValidLocal),
		ValidationValidEarly:           secondsOr(c.ValidationValidEarlySec, d.ValidationValidEarly),
		TrustedValidatorQuorumPercent:  intOr(c.TrustedValidatorQuorumPercent, d.TrustedValidatorQuorumPercent),
		TimeLeap: consensus.TimeLeapTunables{
			Multiplier:  uint64Or(c.TimeLeapMultiplier, d.TimeLeap.Multiplier),
			AbsoluteCap: secondsOr(c.TimeLeapAbsoluteCapSec, d.TimeLeap.AbsoluteCap),
		},
	}
	return t
}

func millisOr(ms int, fallback time.Duration) time.Duration {
	if ms == 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}

func secondsOr(sec int, fallback time.Duration) time.Duration {
	if sec == 0 {
		return fallback
	}
	return time.Duration(sec) * time.Second
}

func intOr(v int, fallback int) int {
	if v == 0 {
		return fallback
	}
	return v
}

func uint64Or(v uint64, fallback uint64) uint64 {
	if v == 0 {
		return fallback
	}
	return v
}
