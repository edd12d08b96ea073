package consensus

import (
	"sort"
	"sync"
	"time"

	"ledgerd/clock"
	"ledgerd/events"
	"ledgerd/hashing"
)

// Phase is one of the three round states of spec.md §4.6's table.
type Phase int

const (
	PhaseOpen Phase = iota
	PhaseEstablish
	PhaseAccepted
)

func (p Phase) String() string {
	switch p {
	case PhaseOpen:
		return "open"
	case PhaseEstablish:
		return "establish"
	case PhaseAccepted:
		return "accepted"
	default:
		return "unknown"
	}
}

// thresholdTable is spec.md §4.6's escalating per-transaction vote
// threshold, expressed as a percentage-of-prior-round-duration breakpoint
// to a required yes percentage. Phases are checked in descending elapsed
// order so the highest breakpoint met wins.
type thresholdStep struct {
	elapsedFraction float64 // fraction of prior round's duration
	percent         int
}

var thresholdTable = []thresholdStep{
	{elapsedFraction: 2.00, percent: 95},
	{elapsedFraction: 0.85, percent: 70},
	{elapsedFraction: 0.50, percent: 65},
	{elapsedFraction: 0.00, percent: 50},
}

// Round drives one instance of the agreement protocol, combining the local
// candidate set with peer proposals and validation messages to converge on
// one transaction set and close time. Grounded on the teacher's
// consensus.Collector, generalized from a single static quorum fraction
// over block-slot votes to the time-phased table above and to close-time
// binning.
type Round struct {
	mu sync.Mutex

	clock clock.Clock
	tun   Tunables

	self        ValidatorID
	roundSeq    uint64
	prevHash    hashing.Hash256
	startedAt   time.Time
	priorRoundDuration time.Duration

	phase Phase

	peerCount int // total known validators including self, for quorum math

	localTxs map[hashing.Hash256]bool

	// latest proposal received per validator; also holds our own once issued.
	latest map[ValidatorID]*Proposal

	selfProposalSeq uint64
	lastIssuedSet   map[hashing.Hash256]bool
	unchangedStreak int

	closeResolution uint8

	bus *events.Bus
}

// SetEventBus attaches the bus phase transitions publish ConsensusRoundAdvanced
// to. Optional: a round with no bus attached advances phases exactly the same.
func (r *Round) SetEventBus(bus *events.Bus) {
	r.bus = bus
}

func (r *Round) publishPhase(phase Phase) {
	if r.bus != nil {
		r.bus.Publish(events.ConsensusRoundAdvanced{Round: r.roundSeq, Phase: phase.String()})
	}
}

// NewRound starts a fresh round on top of prevHash.
func NewRound(c clock.Clock, tun Tunables, self ValidatorID, roundSeq uint64, prevHash hashing.Hash256, peerCount int, priorRoundDuration time.Duration, closeResolution uint8) *Round {
	return &Round{
		clock:              c,
		tun:                tun,
		self:               self,
		roundSeq:           roundSeq,
		prevHash:           prevHash,
		startedAt:          c.Now(),
		priorRoundDuration: priorRoundDuration,
		phase:              PhaseOpen,
		peerCount:          peerCount,
		localTxs:           make(map[hashing.Hash256]bool),
		latest:             make(map[ValidatorID]*Proposal),
		closeResolution:    closeResolution,
	}
}

func (r *Round) Phase() Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase
}

// AddLocalTx admits a transaction hash into the local candidate set.
func (r *Round) AddLocalTx(h hashing.Hash256) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.localTxs[h] = true
}

func (r *Round) elapsed() time.Duration {
	return r.clock.Now().Sub(r.startedAt)
}

// currentThresholdPercent is the time-phased table of spec.md §4.6,
// evaluated against elapsed time relative to the prior round's duration.
func (r *Round) currentThresholdPercent() int {
	elapsed := r.elapsed()
	for _, step := range thresholdTable {
		if r.priorRoundDuration <= 0 {
			if step.elapsedFraction == 0 {
				return step.percent
			}
			continue
		}
		breakpoint := time.Duration(float64(r.priorRoundDuration) * step.elapsedFraction)
		if elapsed >= breakpoint {
			return step.percent
		}
	}
	return 50
}

// MaybeAdvanceToEstablish transitions Open to Establish once LEDGER_MIN_CLOSE
// has elapsed and at least one proposal has been seen, or on idle timeout.
func (r *Round) MaybeAdvanceToEstablish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.phase != PhaseOpen {
		return
	}
	elapsed := r.elapsed()
	if elapsed >= r.tun.LedgerMinClose && len(r.latest) > 0 {
		r.phase = PhaseEstablish
		r.publishPhase(PhaseEstablish)
		return
	}
	if elapsed >= r.tun.IdleTimeout {
		r.phase = PhaseEstablish
		r.publishPhase(PhaseEstablish)
	}
}

// ReceiveProposal records p as the latest proposal from its validator, if
// fresh, and returns whether it was accepted.
func (r *Round) ReceiveProposal(p *Proposal) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p.Round != r.roundSeq || p.PrevHash != r.prevHash {
		return false
	}
	existing, hasExisting := r.latest[p.Validator]
	var lastSeenSeq uint64
	if hasExisting {
		lastSeenSeq = existing.Seq
	}
	if !p.IsFresh(r.clock.Now(), r.tun.ProposeFreshness, lastSeenSeq, hasExisting) {
		return false
	}
	r.latest[p.Validator] = p
	return true
}

// ComputeWorkingSet tallies, for each candidate tx, the fraction of peers
// (including self) whose latest proposal includes it, per spec.md §4.6.
// includes must report whether proposal p includes tx h; callers supply
// it because a Proposal here carries only a single set_hash commitment, not
// the enumerated set — real set membership is resolved against whatever
// candidate-set store the caller maintains alongside proposals.
func (r *Round) ComputeWorkingSet(candidates []hashing.Hash256, includes func(p *Proposal, h hashing.Hash256) bool) (set map[hashing.Hash256]bool, changed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	threshold := r.currentThresholdPercent()
	newSet := make(map[hashing.Hash256]bool)

	for _, h := range candidates {
		yes, no := 0, 0
		if r.localTxs[h] {
			yes++
		} else {
			no++
		}
		for _, p := range r.latest {
			if includes(p, h) {
				yes++
			} else {
				no++
			}
		}
		total := yes + no
		if total == 0 {
			continue
		}
		// Strictly greater than threshold, per spec.md §8 scenario 4
		// ("50% is not strict majority at threshold 50%").
		if yes*100 > threshold*total {
			newSet[h] = true
		}
	}

	changed = !setsEqual(newSet, r.lastIssuedSet)
	if changed {
		r.unchangedStreak = 0
	} else {
		r.unchangedStreak++
	}
	return newSet, changed
}

func setsEqual(a, b map[hashing.Hash256]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for h := range a {
		if !b[h] {
			return false
		}
	}
	return true
}

// IssueProposal builds and records this node's next proposal if the working
// set differs from the last one issued.
func (r *Round) IssueProposal(workingSet map[hashing.Hash256]bool, setHash hashing.Hash256, closeTime uint32) *Proposal {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.selfProposalSeq++
	r.lastIssuedSet = workingSet
	p := &Proposal{
		Validator: r.self,
		Round:     r.roundSeq,
		PrevHash:  r.prevHash,
		SetHash:   setHash,
		CloseTime: closeTime,
		Seq:       r.selfProposalSeq,
	}
	r.latest[r.self] = p
	return p
}

// VoteCloseTime bins latest proposals' close times by the round's current
// resolution and reports the winning bin if it holds AV_CT_CONSENSUS_PCT of
// peers, per spec.md §4.6's close-time vote.
func (r *Round) VoteCloseTime() (bin uint32, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.latest) == 0 {
		return 0, false
	}
	res := uint32(r.closeResolution)
	counts := make(map[uint32]int)
	for _, p := range r.latest {
		b := (p.CloseTime / res) * res
		counts[b]++
	}
	var bins []uint32
	for b := range counts {
		bins = append(bins, b)
	}
	sort.Slice(bins, func(i, j int) bool { return bins[i] < bins[j] })

	best, bestCount := uint32(0), 0
	for _, b := range bins {
		if counts[b] > bestCount {
			best, bestCount = b, counts[b]
		}
	}
	if bestCount*100 >= r.tun.AVCloseTimeConsensusPercent*r.quorumDenominatorLocked() {
		return best, true
	}
	return 0, false
}

// quorumDenominatorLocked is the population a quorum percentage is taken
// over: the round's known validator count when set, else the number of
// peers observed so far. Caller must hold r.mu.
func (r *Round) quorumDenominatorLocked() int {
	if r.peerCount > 0 {
		return r.peerCount
	}
	return len(r.latest)
}

// matchingSetHashFraction reports how many latest proposals have a SetHash
// equal to setHash, as a percentage of quorumDenominatorLocked (the known
// validator count when set), used by CheckConvergence's peer-agreement clause.
func (r *Round) matchingSetHashFraction(setHash hashing.Hash256) int {
	r.mu.Lock()
	denom := r.quorumDenominatorLocked()
	match := 0
	for _, p := range r.latest {
		if p.SetHash == setHash {
			match++
		}
	}
	r.mu.Unlock()
	if denom == 0 {
		return 0
	}
	return match * 100 / denom
}

// CheckConvergence implements spec.md §4.6's convergence rule: two
// consecutive unchanged local proposals, a majority close-time bin, and at
// least MinimumConsensusPercent of recent peers proposing a matching set
// hash.
func (r *Round) CheckConvergence(setHash hashing.Hash256) bool {
	r.mu.Lock()
	unchanged := r.unchangedStreak >= 2
	r.mu.Unlock()

	_, closeOK := r.VoteCloseTime()
	return unchanged && closeOK && r.matchingSetHashFraction(setHash) >= r.tun.MinimumConsensusPercent
}

// AbortOnForeignMajority reports whether a prior-ledger hash other than the
// one this round started on has gained peer majority, per spec.md §4.6's
// failure clause; callers that see true should abandon this round and start
// a fresh one on foreignHash.
func (r *Round) AbortOnForeignMajority(proposalsByPrevHash map[hashing.Hash256]int) (foreignHash hashing.Hash256, abort bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	total := 0
	for _, n := range proposalsByPrevHash {
		total += n
	}
	if total == 0 {
		return hashing.Hash256{}, false
	}
	for h, n := range proposalsByPrevHash {
		if h == r.prevHash {
			continue
		}
		if n*100 >= r.tun.MinimumConsensusPercent*total {
			return h, true
		}
	}
	return hashing.Hash256{}, false
}

// Accept transitions the round to Accepted and computes the final close
// time per spec.md §4.8.
func (r *Round) Accept(parentCloseTime uint32) (closeTime uint32, noConsensusTime bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.phase = PhaseAccepted
	r.publishPhase(PhaseAccepted)
	bin, ok := r.voteCloseTimeLocked()
	if ok {
		res := uint32(r.closeResolution)
		return roundUp(bin, res), false
	}
	return parentCloseTime + uint32(r.closeResolution), true
}

func (r *Round) voteCloseTimeLocked() (uint32, bool) {
	if len(r.latest) == 0 {
		return 0, false
	}
	res := uint32(r.closeResolution)
	counts := make(map[uint32]int)
	for _, p := range r.latest {
		b := (p.CloseTime / res) * res
		counts[b]++
	}
	best, bestCount := uint32(0), 0
	for b, n := range counts {
		if n > bestCount {
			best, bestCount = b, n
		}
	}
	if bestCount*100 >= r.tun.AVCloseTimeConsensusPercent*r.quorumDenominatorLocked() {
		return best, true
	}
	return 0, false
}

func roundUp(t, resolution uint32) uint32 {
	if resolution == 0 {
		return t
	}
	if t%resolution == 0 {
		return t
	}
	return (t/resolution + 1) * resolution
}

var allowedResolutions = [...]uint8{10, 20, 30, 60, 90, 120}

// AdaptResolution evolves close_resolution per spec.md §4.6: decrement on
// broad, fast agreement every DecreaseResolutionEveryRounds rounds,
// increment on slow or disagreeing rounds every IncreaseResolutionEveryRounds,
// clamped to the allowed table.
func AdaptResolution(current uint8, roundsSinceLastAdapt int, fastAndAgreed bool, tun Tunables) uint8 {
	idx := resolutionIndex(current)
	switch {
	case fastAndAgreed && tun.DecreaseResolutionEveryRounds > 0 && roundsSinceLastAdapt%tun.DecreaseResolutionEveryRounds == 0:
		if idx > 0 {
			idx--
		}
	case !fastAndAgreed && tun.IncreaseResolutionEveryRounds > 0 && roundsSinceLastAdapt%tun.IncreaseResolutionEveryRounds == 0:
		if idx < len(allowedResolutions)-1 {
			idx++
		}
	}
	return allowedResolutions[idx]
}

func resolutionIndex(r uint8) int {
	for i, v := range allowedResolutions {
		if v == r {
			return i
		}
	}
	return 2 // default to 30s if not found
}
