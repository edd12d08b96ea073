// Package workerpool is a bounded, priority-classed task scheduler used for
// background work that sits outside the synchronous Apply Engine path: trie
// flushes, ledger persistence, and snapshot writes. It is adapted from the
// teacher's ledger.ParallelExecutor, which bounds concurrency with a worker
// semaphore and orders work deterministically; here the semaphore becomes a
// fixed worker count and "deterministic order" becomes "highest priority
// class first, FIFO within a class" rather than an account dependency graph,
// since background tasks carry no cross-task ordering constraint.
package workerpool

import (
	"fmt"
	"sync"

	"ledgerd/logx"
)

// Priority classes, highest first. The Apply Engine itself never submits
// here: it runs synchronously against its Open View. These classes exist for
// everything downstream of a committed ledger.
type Priority int

const (
	PriorityInteractive Priority = iota // RPC-driven queries, e.g. account lookups
	PriorityConsensus                   // proposal/validation gossip fanout
	PriorityPersistence                 // ledger save, skip list update
	PriorityBackground                  // trie compaction, snapshotting
	priorityCount
)

func (p Priority) String() string {
	switch p {
	case PriorityInteractive:
		return "interactive"
	case PriorityConsensus:
		return "consensus"
	case PriorityPersistence:
		return "persistence"
	case PriorityBackground:
		return "background"
	default:
		return "unknown"
	}
}

type task struct {
	fn func()
}

// Pool runs a fixed number of worker goroutines against per-priority FIFO
// queues, always draining the highest-priority non-empty queue first.
type Pool struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queues  [priorityCount][]task
	workers int
	started bool
	closed  bool
	wg      sync.WaitGroup
}

// New builds a Pool with the given worker count. Call Start to launch the
// workers; Submit before Start is safe and simply queues the task.
func New(workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	p := &Pool{workers: workers}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Start launches the worker goroutines. Calling Start twice is a no-op.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run()
	}
}

// Submit enqueues fn under the given priority class. Safe to call
// concurrently with Start and with other Submit calls.
func (p *Pool) Submit(priority Priority, fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		logx.Warn("WORKERPOOL", fmt.Sprintf("submit after close dropped | priority=%s", priority))
		return
	}
	p.queues[priority] = append(p.queues[priority], task{fn: fn})
	p.cond.Signal()
}

// Stop signals workers to drain remaining queued tasks and then exit, and
// blocks until they do.
func (p *Pool) Stop() {
	p.mu.Lock()
	p.closed = true
	p.cond.Broadcast()
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Pool) run() {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		t, ok := p.popHighestLocked()
		for !ok && !p.closed {
			p.cond.Wait()
			t, ok = p.popHighestLocked()
		}
		if !ok {
			p.mu.Unlock()
			return
		}
		p.mu.Unlock()
		t.fn()
	}
}

// popHighestLocked must be called with mu held.
func (p *Pool) popHighestLocked() (task, bool) {
	for level := Priority(0); level < priorityCount; level++ {
		q := p.queues[level]
		if len(q) == 0 {
			continue
		}
		t := q[0]
		p.queues[level] = q[1:]
		return t, true
	}
	return task{}, false
}

// Pending reports the number of queued-but-not-yet-run tasks across all
// priority classes, for tests and diagnostics.
func (p *Pool) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for level := Priority(0); level < priorityCount; level++ {
		n += len(p.queues[level])
	}
	return n
}
