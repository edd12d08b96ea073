// Package events is the core's observability collaborator: an in-process
// publish/subscribe bus that downstream RPC and metrics layers consume,
// adapted from the teacher's events.EventBus (a mutex-guarded subscriber map
// of buffered channels, uuid-keyed) generalized from one BlockchainEvent
// interface to the ledger core's own event set.
package events

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"ledgerd/hashing"
	"ledgerd/logx"
)

// Kind identifies one of the core's published event types.
type Kind string

const (
	KindLedgerAccepted        Kind = "ledger_accepted"
	KindTxApplied             Kind = "tx_applied"
	KindTxQueued              Kind = "tx_queued"
	KindTxRejected            Kind = "tx_rejected"
	KindConsensusRoundAdvanced Kind = "consensus_round_advanced"
	KindAmendmentBlocked      Kind = "amendment_blocked"
)

// Event is the common envelope every published event satisfies.
type Event interface {
	Kind() Kind
}

// LedgerAccepted fires once a round's agreed transaction set has been
// committed into a new ledger.
type LedgerAccepted struct {
	Seq       uint32
	Hash      hashing.Hash256
	CloseTime uint32
	TxCount   int
}

func (LedgerAccepted) Kind() Kind { return KindLedgerAccepted }

// TxApplied fires once per transaction that reached a committed outcome.
type TxApplied struct {
	TxHash     hashing.Hash256
	LedgerSeq  uint32
	ResultCode int
}

func (TxApplied) Kind() Kind { return KindTxApplied }

// TxQueued fires when a transaction is admitted into the admission queue
// rather than applied immediately.
type TxQueued struct {
	TxHash hashing.Hash256
	Level  uint64
}

func (TxQueued) Kind() Kind { return KindTxQueued }

// TxRejected fires when a transaction is rejected at preflight or admission.
type TxRejected struct {
	TxHash hashing.Hash256
	Reason string
}

func (TxRejected) Kind() Kind { return KindTxRejected }

// ConsensusRoundAdvanced fires on every round phase transition.
type ConsensusRoundAdvanced struct {
	Round uint64
	Phase string
}

func (ConsensusRoundAdvanced) Kind() Kind { return KindConsensusRoundAdvanced }

// AmendmentBlocked fires when an enabled amendment is one this node can't
// evaluate. Publishing it does not by itself stop the node from taking part
// in consensus or applying transactions.
type AmendmentBlocked struct {
	FeatureID string
	LedgerSeq uint32
}

func (AmendmentBlocked) Kind() Kind { return KindAmendmentBlocked }

// SubscriberID is a uuid-keyed handle returned by Subscribe.
type SubscriberID string

type subscriber struct {
	id      SubscriberID
	channel chan Event
}

// Bus is the mutex-guarded subscriber registry, grounded on the teacher's
// EventBus: Publish never blocks on a slow subscriber, dropping the event
// for that subscriber instead.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[SubscriberID]*subscriber
}

func NewBus() *Bus {
	return &Bus{subscribers: make(map[SubscriberID]*subscriber)}
}

// Subscribe registers a new listener with a buffered channel.
func (b *Bus) Subscribe() (SubscriberID, <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := SubscriberID(uuid.Must(uuid.NewV7()).String())
	ch := make(chan Event, 50)
	b.subscribers[id] = &subscriber{id: id, channel: ch}
	logx.Info("EVENTS", fmt.Sprintf("subscribed | id=%s | total=%d", id, len(b.subscribers)))
	return id, ch
}

// Unsubscribe removes and closes a subscriber's channel.
func (b *Bus) Unsubscribe(id SubscriberID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.subscribers[id]
	if !ok {
		return false
	}
	delete(b.subscribers, id)
	close(sub.channel)
	logx.Info("EVENTS", fmt.Sprintf("unsubscribed | id=%s | remaining=%d", id, len(b.subscribers)))
	return true
}

// Publish fans out event to every subscriber, dropping it for any whose
// buffer is full rather than blocking.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, sub := range b.subscribers {
		select {
		case sub.channel <- event:
		default:
			logx.Warn("EVENTS", fmt.Sprintf("subscriber channel full, dropping event | id=%s | kind=%s", id, event.Kind()))
		}
	}
}

// SubscriberCount reports how many listeners are currently registered.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
