// Package admission implements the fee-escalating admission queue of
// SPEC_FULL.md §4.5: a two-index structure (fee-descending, and per-account
// by sequence) gating transaction entry into the Open View. Adapted from the
// teacher's mempool.Mempool (a single-mutex FIFO queue) by replacing the
// single queue with the fee/account index pair the spec requires, while
// keeping the teacher's one-lock-serializes-admit-and-drain discipline.
package admission

import (
	"sort"
	"sync"

	"ledgerd/applyengine"
	"ledgerd/events"
	"ledgerd/feemetrics"
	"ledgerd/openview"
	"ledgerd/types"
)

// Margins bounds the percentage surcharges spec.md §4.5 requires for
// queue-replacement and multi-transaction-per-account admission.
type Margins struct {
	RetrySequencePercent uint64 // replacement margin for same (signer,seq)
	MultiTxnPercent      uint64 // drain margin when signer has other queued entries
	LedgersInQueue       uint64 // queue capacity = LedgersInQueue * txnsExpected
}

// Entry is one queued transaction.
type Entry struct {
	Tx       applyengine.Tx
	Level    uint64
	Inserted uint64 // monotonic insertion counter, breaks fee ties by arrival order
	LastValidLedgerSeq uint32 // 0 means no expiry
}

type accountSeqKey struct {
	signer types.AccountID
	seq    uint64
}

// Queue is the admission queue. Safe for concurrent use; admit and drain are
// mutually exclusive under a single mutex, matching the teacher's Mempool.
type Queue struct {
	mu sync.Mutex

	margins Margins
	metrics *feemetrics.Collector
	engine  *applyengine.Engine

	byAccount map[accountSeqKey]*Entry
	feeOrder  []*Entry // kept sorted descending by (Level, insertion order) on every mutation
	nextSeq   uint64

	bus *events.Bus
}

func New(margins Margins, metrics *feemetrics.Collector, engine *applyengine.Engine) *Queue {
	return &Queue{
		margins:   margins,
		metrics:   metrics,
		engine:    engine,
		byAccount: make(map[accountSeqKey]*Entry),
	}
}

// SetEventBus attaches the bus Admit publishes TxQueued/TxRejected to.
// Optional: a queue with no bus attached admits transactions exactly the
// same, just without the observability side channel.
func (q *Queue) SetEventBus(bus *events.Bus) {
	q.bus = bus
}

func (q *Queue) publish(ev events.Event) {
	if q.bus != nil {
		q.bus.Publish(ev)
	}
}

func (q *Queue) capacity() uint64 {
	expected := q.metrics.Snapshot().TxnsExpected
	return q.margins.LedgersInQueue * expected
}

func (q *Queue) sortFeeOrder() {
	sort.SliceStable(q.feeOrder, func(i, j int) bool {
		if q.feeOrder[i].Level != q.feeOrder[j].Level {
			return q.feeOrder[i].Level > q.feeOrder[j].Level
		}
		return q.feeOrder[i].Inserted < q.feeOrder[j].Inserted
	})
}

// AdmitResult reports what Admit did with a submitted transaction.
type AdmitResult int

const (
	AdmitRejected AdmitResult = iota
	AdmitApplied
	AdmitQueued
	AdmitReplaced
)

// Admit runs spec.md §4.5's Admit(tx) steps against view.
func (q *Queue) Admit(tx applyengine.Tx, view *openview.View, ledgerSeq uint32, lastValidLedgerSeq uint32) (AdmitResult, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	key := accountSeqKey{signer: tx.Signer(), seq: tx.Sequence()}
	level := tx.FeeLevel()

	existing, isReplace := q.byAccount[key]
	if isReplace {
		threshold := existing.Level + existing.Level*q.margins.RetrySequencePercent/100
		if level < threshold {
			q.publish(events.TxRejected{TxHash: tx.Hash(), Reason: "below replacement margin"})
			return AdmitRejected, nil
		}
		q.removeLocked(key)
	}

	required := q.metrics.RequiredLevel(uint64(len(view.Outcomes())) + 1)
	if level >= required {
		code, _, err := q.engine.ApplyTx(view, tx, ledgerSeq)
		if err != nil {
			return AdmitRejected, err
		}
		if code.CommittedToLedger() {
			return AdmitApplied, nil
		}
		if code != applyengine.ResultRetry {
			q.publish(events.TxRejected{TxHash: tx.Hash(), Reason: "apply failed"})
			return AdmitRejected, nil
		}
		// ResultRetry falls through to queuing below.
	}

	entry := &Entry{Tx: tx, Level: level, Inserted: q.nextSeq, LastValidLedgerSeq: lastValidLedgerSeq}
	q.nextSeq++

	limit := q.capacity()
	if limit > 0 && uint64(len(q.feeOrder)) >= limit {
		q.sortFeeOrder()
		tail := q.feeOrder[len(q.feeOrder)-1]
		if entry.Level <= tail.Level {
			q.publish(events.TxRejected{TxHash: tx.Hash(), Reason: "queue at capacity"})
			return AdmitRejected, nil
		}
		q.removeLocked(accountSeqKey{signer: tail.Tx.Signer(), seq: tail.Tx.Sequence()})
	}

	q.byAccount[key] = entry
	q.feeOrder = append(q.feeOrder, entry)
	q.sortFeeOrder()
	q.publish(events.TxQueued{TxHash: tx.Hash(), Level: level})

	if isReplace {
		return AdmitReplaced, nil
	}
	return AdmitQueued, nil
}

func (q *Queue) removeLocked(key accountSeqKey) {
	entry, ok := q.byAccount[key]
	if !ok {
		return
	}
	delete(q.byAccount, key)
	for i, e := range q.feeOrder {
		if e == entry {
			q.feeOrder = append(q.feeOrder[:i], q.feeOrder[i+1:]...)
			break
		}
	}
}

// queuedCountForSigner reports how many other entries besides seq are queued
// for signer, used by Drain's multi-txn-per-account margin.
func (q *Queue) queuedCountForSigner(signer types.AccountID, exceptSeq uint64) int {
	n := 0
	for k := range q.byAccount {
		if k.signer == signer && k.seq != exceptSeq {
			n++
		}
	}
	return n
}

// Drain runs spec.md §4.5's Drain(open_view): walk the fee index descending,
// applying everything whose level clears the current required level.
func (q *Queue) Drain(view *openview.View, ledgerSeq uint32) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.sortFeeOrder()
	skipSigners := make(map[types.AccountID]bool)

	for i := 0; i < len(q.feeOrder); i++ {
		entry := q.feeOrder[i]
		signer := entry.Tx.Signer()
		if skipSigners[signer] {
			continue
		}

		required := q.metrics.RequiredLevel(uint64(len(view.Outcomes())) + 1)
		if entry.Level < required {
			break // fee index is sorted descending; nothing past here clears the bar
		}

		if q.queuedCountForSigner(signer, entry.Tx.Sequence()) > 0 {
			margin := required + required*q.margins.MultiTxnPercent/100
			if entry.Level < margin {
				skipSigners[signer] = true
				continue
			}
		}

		code, _, err := q.engine.ApplyTx(view, entry.Tx, ledgerSeq)
		if err != nil {
			return err
		}
		key := accountSeqKey{signer: signer, seq: entry.Tx.Sequence()}
		switch {
		case code.CommittedToLedger():
			q.removeLocked(key)
			i--
		case code == applyengine.ResultRetry:
			skipSigners[signer] = true
		default:
			q.removeLocked(key)
			i--
		}
	}
	return nil
}

// Sweep runs spec.md §4.5's new-ledger sweep: drop expired entries and
// shrink the fee index to the current capacity if it has contracted.
func (q *Queue) Sweep(currentLedgerSeq uint32) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for key, entry := range q.byAccount {
		if entry.LastValidLedgerSeq != 0 && entry.LastValidLedgerSeq < currentLedgerSeq {
			q.removeLocked(key)
		}
	}

	limit := q.capacity()
	if limit == 0 {
		return
	}
	q.sortFeeOrder()
	for uint64(len(q.feeOrder)) > limit {
		tail := q.feeOrder[len(q.feeOrder)-1]
		q.removeLocked(accountSeqKey{signer: tail.Tx.Signer(), seq: tail.Tx.Sequence()})
	}
}

// Len reports the number of queued entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.feeOrder)
}

// Lookup returns the queued entry for (signer, seq), if any.
func (q *Queue) Lookup(signer types.AccountID, seq uint64) (*Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.byAccount[accountSeqKey{signer: signer, seq: seq}]
	return e, ok
}
