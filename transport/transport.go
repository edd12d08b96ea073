// Package transport defines the peer-bus boundary the core talks to:
// Proposal/Validation/transaction gossip plus node/ledger fetch by hash or
// sequence. Per SPEC_FULL.md §6 this is interface-only — no network
// implementation — with a Loopback in-memory implementation that exists
// only to drive tests, adapted from the teacher's events.EventBus fanout
// discipline (buffered per-subscriber channels, non-blocking publish).
package transport

import (
	"context"
	"fmt"
	"sync"

	"ledgerd/applyengine"
	"ledgerd/consensus"
	"ledgerd/hashing"
	"ledgerd/ledger"
	"ledgerd/logx"
	"ledgerd/store"
)

// Bus is the peer-transport boundary a consensus engine and admission queue
// are driven through. Implementations own delivery semantics (gossip,
// direct dial, retry); the core only publishes and subscribes.
type Bus interface {
	PublishProposal(p *consensus.Proposal)
	SubscribeProposals() <-chan *consensus.Proposal

	PublishValidation(v *consensus.Validation)
	SubscribeValidations() <-chan *consensus.Validation

	SubmitTx(tx applyengine.Tx)
	SubscribeTxSubmissions() <-chan applyengine.Tx

	// GetNode fetches a single trie node by hash from a peer, for state-trie
	// sync. Returns (body, true, nil) on success, (nil, false, nil) if no
	// peer has it.
	GetNode(ctx context.Context, hash hashing.Hash256) ([]byte, bool, error)

	// GetLedger fetches a full accepted ledger by sequence from a peer.
	GetLedger(ctx context.Context, seq uint32) (*ledger.Ledger, bool, error)
}

// Loopback is an in-process Bus: publishes fan out to local subscribers
// immediately, and GetNode/GetLedger answer from a locally attached store
// and chain rather than a real peer. It exists to let admission/consensus
// wiring be exercised in tests without a network.
type Loopback struct {
	mu sync.RWMutex

	proposalSubs  []chan *consensus.Proposal
	validationSubs []chan *consensus.Validation
	txSubs        []chan applyengine.Tx

	nodeStore store.NodeStore
	chain     *ledger.LedgerChain
}

// NewLoopback builds a Loopback bus backed by the given node store and
// ledger chain for GetNode/GetLedger answers. Either may be nil if this
// bus instance is only used for proposal/validation/tx fanout in a test.
func NewLoopback(nodeStore store.NodeStore, chain *ledger.LedgerChain) *Loopback {
	return &Loopback{nodeStore: nodeStore, chain: chain}
}

func (l *Loopback) PublishProposal(p *consensus.Proposal) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, ch := range l.proposalSubs {
		select {
		case ch <- p:
		default:
			logx.Warn("TRANSPORT", fmt.Sprintf("proposal subscriber channel full, dropping | validator=%s round=%d", p.Validator, p.Round))
		}
	}
}

func (l *Loopback) SubscribeProposals() <-chan *consensus.Proposal {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch := make(chan *consensus.Proposal, 64)
	l.proposalSubs = append(l.proposalSubs, ch)
	return ch
}

func (l *Loopback) PublishValidation(v *consensus.Validation) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, ch := range l.validationSubs {
		select {
		case ch <- v:
		default:
			logx.Warn("TRANSPORT", fmt.Sprintf("validation subscriber channel full, dropping | validator=%s seq=%d", v.Validator, v.Seq))
		}
	}
}

func (l *Loopback) SubscribeValidations() <-chan *consensus.Validation {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch := make(chan *consensus.Validation, 64)
	l.validationSubs = append(l.validationSubs, ch)
	return ch
}

func (l *Loopback) SubmitTx(tx applyengine.Tx) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, ch := range l.txSubs {
		select {
		case ch <- tx:
		default:
			logx.Warn("TRANSPORT", fmt.Sprintf("tx submission subscriber channel full, dropping | hash=%x", tx.Hash()))
		}
	}
}

func (l *Loopback) SubscribeTxSubmissions() <-chan applyengine.Tx {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch := make(chan applyengine.Tx, 256)
	l.txSubs = append(l.txSubs, ch)
	return ch
}

func (l *Loopback) GetNode(ctx context.Context, hash hashing.Hash256) ([]byte, bool, error) {
	if l.nodeStore == nil {
		return nil, false, nil
	}
	body, ok, err := l.nodeStore.Get(hash)
	if err != nil {
		return nil, false, err
	}
	return body, ok, nil
}

func (l *Loopback) GetLedger(ctx context.Context, seq uint32) (*ledger.Ledger, bool, error) {
	if l.chain == nil {
		return nil, false, nil
	}
	led, ok := l.chain.BySeq(seq)
	return led, ok, nil
}
