package config

// NodeIdentity names this process's validator key and how to find its
// private key, replacing the teacher's NodeConfig (which additionally
// carried libp2p/gRPC listen addresses out of scope for this core).
type NodeIdentity struct {
	ValidatorID string `yaml:"validator_id"`
	PrivKeyPath string `yaml:"privkey_path"`
}

// GenesisAccount seeds one account root at genesis.
type GenesisAccount struct {
	Address    string `yaml:"address"` // hex-encoded 20-byte AccountID
	Balance    string `yaml:"balance"` // decimal string, parsed into uint256
	Sequence   uint64 `yaml:"sequence"`
	OwnerCount uint32 `yaml:"owner_count"`
}

// AmendmentActivation schedules a feature-flag activation sequence,
// replacing the teacher's leader-schedule entries (not applicable to this
// core, which has no leader rotation) with the core's own genesis-configured
// concept of scheduled state.
type AmendmentActivation struct {
	FeatureID     string `yaml:"feature_id"`
	ActivationSeq uint32 `yaml:"activation_seq"`
}

// GenesisConfig holds the YAML-loaded chain-state bootstrap, matching the
// teacher's split of "genesis.yml carries chain state" vs ".ini carries
// runtime tunables".
type GenesisConfig struct {
	SelfNode        NodeIdentity          `yaml:"self_node"`
	CloseTime       uint32                `yaml:"close_time"`
	CloseResolution uint8                 `yaml:"close_resolution"`
	Accounts        []GenesisAccount      `yaml:"accounts"`
	Amendments      []AmendmentActivation `yaml:"amendments"`
}

// ConfigFile is the top-level structure for genesis.yml.
type ConfigFile struct {
	Config GenesisConfig `yaml:"config"`
}
