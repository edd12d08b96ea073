// Package consensus implements the round-based agreement engine of
// SPEC_FULL.md §4.6-§4.8: a single-instance round state machine that
// combines local candidate transactions with peer proposals and validation
// messages to converge on one transaction set and close time per round.
// Grounded on the teacher's consensus.Collector (a vote-counting quorum
// tracker keyed by slot) and consensus.Vote (a signed, typed ballot),
// generalized from one static quorum fraction over block-slot votes to the
// time-phased per-transaction threshold table and close-time binning this
// spec requires.
package consensus

import "time"

// ValidatorID identifies a peer by its hex-encoded public key, matching the
// teacher's Vote.PubKey string identity convention.
type ValidatorID string

// Tunables bounds the timing and quorum constants spec.md §4.6-§4.7 name but
// leaves as magic numbers; SPEC_FULL.md §9 asks that these be made explicit.
type Tunables struct {
	LedgerMinClose      time.Duration
	ProposeFreshness    time.Duration
	IdleTimeout         time.Duration
	StuckTimeout        time.Duration
	AVCloseTimeConsensusPercent int // AV_CT_CONSENSUS_PCT
	MinimumConsensusPercent    int // convergence quorum, 80%

	DecreaseResolutionEveryRounds int
	IncreaseResolutionEveryRounds int

	ValidationValidWall  time.Duration
	ValidationValidLocal time.Duration
	ValidationValidEarly time.Duration

	TrustedValidatorQuorumPercent int

	TimeLeap TimeLeapTunables
}

// DefaultTunables mirrors the magnitudes spec.md's prose implies without
// pinning them down; a deployment overrides these from config.
func DefaultTunables() Tunables {
	return Tunables{
		LedgerMinClose:              2 * time.Second,
		ProposeFreshness:            4 * time.Second,
		IdleTimeout:                 10 * time.Second,
		StuckTimeout:                20 * time.Second,
		AVCloseTimeConsensusPercent: 80,
		MinimumConsensusPercent:     80,
		DecreaseResolutionEveryRounds: 8,
		IncreaseResolutionEveryRounds: 2,
		ValidationValidWall:         5 * time.Minute,
		ValidationValidLocal:        10 * time.Minute,
		ValidationValidEarly:        30 * time.Second,
		TrustedValidatorQuorumPercent: 80,
		TimeLeap: TimeLeapTunables{Multiplier: 3, AbsoluteCap: 60 * time.Second},
	}
}

// TimeLeapTunables resolves spec.md §9's "time leap" ambiguity: the source
// infers the signal from a wall-clock gap versus expected round time, but
// leaves the magnitudes unspecified. This implementation fires when the
// round's actual duration exceeds either a multiple of the prior round's
// duration, or an absolute cap, whichever is reached first.
type TimeLeapTunables struct {
	Multiplier  uint64
	AbsoluteCap time.Duration
}

// DetectTimeLeap decides whether a just-closed round's duration constitutes
// a "time leap" per TimeLeapTunables.
func DetectTimeLeap(actual, prior time.Duration, t TimeLeapTunables) bool {
	if actual >= t.AbsoluteCap {
		return true
	}
	if prior <= 0 {
		return false
	}
	return uint64(actual) >= t.Multiplier*uint64(prior)
}
