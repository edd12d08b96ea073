// Command ledgerd wires together one node's collaborators: genesis and
// runtime config, node store, ledger chain, apply engine, admission queue,
// event bus, worker pool, and the first consensus round. Grounded on the
// teacher's cmd/node.go: a sequence of initializeX helpers feeding a single
// runNode, adapted from cobra subcommands (not part of this module's
// dependency set) to the standard flag package, since a single-binary node
// entry point needs no subcommand tree.
package main

import (
	"flag"
	"fmt"
	"os"

	"ledgerd/admission"
	"ledgerd/amendment"
	"ledgerd/applyengine"
	"ledgerd/clock"
	"ledgerd/config"
	"ledgerd/consensus"
	"ledgerd/events"
	"ledgerd/feemetrics"
	"ledgerd/ledger"
	"ledgerd/logx"
	"ledgerd/store"
	"ledgerd/transport"
	"ledgerd/txn"
	"ledgerd/workerpool"
)

func main() {
	genesisPath := flag.String("genesis", "config/genesis.yml", "path to genesis.yml")
	runtimePath := flag.String("runtime", "config/runtime.ini", "path to runtime.ini")
	dbPath := flag.String("db", "./data/ledgerd.db", "path to the node's bbolt database")
	flag.Parse()

	if err := run(*genesisPath, *runtimePath, *dbPath); err != nil {
		logx.Fatal("MAIN", err.Error())
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// node holds every collaborator run wires together, so the pieces built in
// one initialize step are reachable from the next without a growing
// parameter list.
type node struct {
	genesis *config.GenesisConfig
	runtime *config.RuntimeConfig

	backing store.NodeStore
	chain   *ledger.LedgerChain

	amendments *amendment.StaticRegistry
	metrics    *feemetrics.Collector
	engine     *applyengine.Engine
	queue      *admission.Queue

	bus  *events.Bus
	pool *workerpool.Pool
	peer transport.Bus

	round *consensus.Round
}

func run(genesisPath, runtimePath, dbPath string) error {
	n := &node{}

	if err := n.loadConfig(genesisPath, runtimePath); err != nil {
		return err
	}
	logx.Configure(logx.Options{
		Filename:   n.runtime.Logging.Filename,
		MaxSizeMB:  n.runtime.Logging.MaxSizeMB,
		MaxAgeDays: n.runtime.Logging.MaxAgeDays,
	})

	if err := n.openStore(dbPath); err != nil {
		return err
	}
	if err := n.buildGenesis(); err != nil {
		return err
	}
	n.buildAmendments()
	n.buildEngineAndQueue()
	n.buildEventsAndWorkerPool()
	n.buildTransport()
	n.buildFirstRound()

	logx.Info("MAIN", fmt.Sprintf("node %s ready at ledger seq %d", n.genesis.SelfNode.ValidatorID, n.chain.LatestSeq()))
	return nil
}

func (n *node) loadConfig(genesisPath, runtimePath string) error {
	genesis, err := config.LoadGenesisConfig(genesisPath)
	if err != nil {
		return fmt.Errorf("main: load genesis config: %w", err)
	}
	runtime, err := config.LoadRuntimeConfig(runtimePath)
	if err != nil {
		return fmt.Errorf("main: load runtime config: %w", err)
	}
	n.genesis, n.runtime = genesis, runtime
	return nil
}

func (n *node) openStore(dbPath string) error {
	backing, err := store.OpenBoltNodeStore(dbPath)
	if err != nil {
		return fmt.Errorf("main: open node store: %w", err)
	}
	n.backing = backing
	return nil
}

func (n *node) buildGenesis() error {
	genesisLedger, err := config.BuildGenesisLedger(n.genesis, n.backing)
	if err != nil {
		return fmt.Errorf("main: build genesis ledger: %w", err)
	}
	n.chain = ledger.NewLedgerChain(genesisLedger)
	return nil
}

// knownFeatures lists the amendment feature IDs this build understands.
// Extend it as new Transactors/apply-path branches are added.
var knownFeatures = map[string]bool{}

// buildAmendments builds the activation table from genesis and checks it
// against knownFeatures. An activated feature this build doesn't recognize
// is reported through AmendmentBlocked once the event bus exists; buildGenesis
// runs first so the chain is already available to callers that want the
// current ledger seq for that check.
func (n *node) buildAmendments() {
	n.amendments = amendment.NewStaticRegistry(config.AmendmentActivations(n.genesis.Amendments))
}

// checkAmendments reports every activated-but-unrecognized feature as of
// ledgerSeq, publishing AmendmentBlocked for each. Call after the event bus
// is wired; a node that can't evaluate an enabled amendment stops being
// useful for apply/consensus, but main logs and continues rather than
// exiting, leaving the operator to decide whether to upgrade or shut down.
func (n *node) checkAmendments(ledgerSeq uint32) {
	for _, a := range n.genesis.Amendments {
		if knownFeatures[a.FeatureID] {
			continue
		}
		if !n.amendments.IsEnabled(a.FeatureID, ledgerSeq) {
			continue
		}
		logx.Warn("MAIN", fmt.Sprintf("activated amendment %q is unrecognized by this build", a.FeatureID))
		if n.bus != nil {
			n.bus.Publish(events.AmendmentBlocked{FeatureID: a.FeatureID, LedgerSeq: ledgerSeq})
		}
	}
}

func (n *node) buildEngineAndQueue() {
	n.engine = applyengine.New(n.amendments)
	n.engine.Register(txn.PaymentTag, txn.PaymentTransactor{})

	n.metrics = feemetrics.New(n.runtime.ToFeeMetricsTunables())
	n.queue = admission.New(n.runtime.ToAdmissionMargins(), n.metrics, n.engine)
}

func (n *node) buildEventsAndWorkerPool() {
	n.bus = events.NewBus()
	n.engine.SetEventBus(n.bus)
	n.chain.SetEventBus(n.bus)
	n.queue.SetEventBus(n.bus)

	n.pool = workerpool.New(n.runtime.WorkerPool.Workers)
	n.pool.Start()

	// Every accepted ledger schedules a background task at persistence
	// priority rather than doing work in the caller that published it. The
	// ledger's tries were already written to the node store when it was
	// sealed, so the task only logs the ledger. Priority is below consensus
	// and interactive work so a burst of ledgers never starves round
	// processing.
	_, ch := n.bus.Subscribe()
	go func() {
		for ev := range ch {
			accepted, ok := ev.(events.LedgerAccepted)
			if !ok {
				continue
			}
			n.pool.Submit(workerpool.PriorityPersistence, func() {
				logx.Info("MAIN", fmt.Sprintf("flushed ledger seq=%d hash=%x", accepted.Seq, accepted.Hash))
			})
		}
	}()

	n.checkAmendments(n.chain.LatestSeq())
}

func (n *node) buildTransport() {
	n.peer = transport.NewLoopback(n.backing, n.chain)
}

func (n *node) buildFirstRound() {
	tun := n.runtime.ToConsensusTunables()
	self := consensus.ValidatorID(n.genesis.SelfNode.ValidatorID)
	genesisLedger := n.chain.Latest()

	r := consensus.NewRound(clock.NewReal(), tun, self, uint64(n.chain.LatestSeq())+1, genesisLedger.Hash, len(n.genesis.Accounts), 0, genesisLedger.Header.CloseResolution)
	r.SetEventBus(n.bus)
	n.round = r
}
