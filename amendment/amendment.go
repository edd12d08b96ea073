// Package amendment provides the feature-flag switch consulted by preflight
// and apply, per SPEC_FULL.md §6. The core never votes on amendments itself;
// it only observes the flag set attached to the previous ledger.
package amendment

// Switch answers whether a feature is enabled as of a given ledger sequence.
type Switch interface {
	IsEnabled(featureID string, ledgerSeq uint32) bool
}

// StaticRegistry is a fixed, config-loaded amendment table: each feature
// turns on at (and stays on from) a configured activation sequence. A zero
// or absent activation sequence means "never enabled", matching the
// teacher's pattern of an explicit opt-in set rather than an implicit
// everything-on default.
type StaticRegistry struct {
	activation map[string]uint32
}

// NewStaticRegistry builds a registry from featureID -> activation sequence.
func NewStaticRegistry(activation map[string]uint32) *StaticRegistry {
	cp := make(map[string]uint32, len(activation))
	for k, v := range activation {
		cp[k] = v
	}
	return &StaticRegistry{activation: cp}
}

func (r *StaticRegistry) IsEnabled(featureID string, ledgerSeq uint32) bool {
	seq, ok := r.activation[featureID]
	if !ok || seq == 0 {
		return false
	}
	return ledgerSeq >= seq
}
