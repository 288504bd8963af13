// Package worker implements the block production loop for the node.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/ardanlabs/p2pledger/foundation/blockchain/database"
	"go.uber.org/atomic"
)

// EventHandler defines a function that is called when events
// occur in the processing of the worker.
type EventHandler func(v string, args ...any)

// State represents the behavior the worker needs from the node.
type State interface {
	IsMiningAllowed() bool
	QueryMempoolLength() int
	MineNewBlock(ctx context.Context) (database.Block, error)
	NetSendBlockToPeers(blk database.Block)
}

// Config represents the configuration required to run a worker.
type Config struct {
	State     State
	Interval  time.Duration
	EvHandler EventHandler
}

// =============================================================================

// Worker manages the POW workflows for the node.
type Worker struct {
	state        State
	interval     time.Duration
	wg           sync.WaitGroup
	shut         chan struct{}
	startMining  chan bool
	cancelMining chan chan struct{}
	mining       atomic.Bool
	blocks       atomic.Uint64
	evHandler    EventHandler
}

// Run creates a worker and starts up all the background processes. The
// caller registers the worker with the node before the node starts.
func Run(cfg Config) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}

	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	w := Worker{
		state:        cfg.State,
		interval:     cfg.Interval,
		shut:         make(chan struct{}),
		startMining:  make(chan bool, 1),
		cancelMining: make(chan chan struct{}, 1),
		evHandler:    ev,
	}

	// Load the set of operations we need to run.
	operations := []func(){
		w.miningOperations,
	}

	// Set waitgroup to match the number of G's we need for the set
	// of operations we have.
	g := len(operations)
	w.wg.Add(g)

	// We don't want to return until we know all the G's are up and running.
	hasStarted := make(chan bool)

	// Start all the operational G's.
	for _, op := range operations {
		go func(op func()) {
			defer w.wg.Done()
			hasStarted <- true
			op()
		}(op)
	}

	// Wait for the G's to report they are running.
	for i := 0; i < g; i++ {
		<-hasStarted
	}

	return &w
}

// =============================================================================
// These methods implement the state.Worker interface.

// Shutdown terminates the goroutine performing work.
func (w *Worker) Shutdown() {
	w.evHandler("worker: shutdown: started")
	defer w.evHandler("worker: shutdown: completed")

	w.evHandler("worker: shutdown: signal cancel mining")
	done := w.SignalCancelMining()
	done()

	w.evHandler("worker: shutdown: terminate goroutines")
	close(w.shut)
	w.wg.Wait()
}

// SignalStartMining starts a mining operation without waiting for the next
// tick. If there is already a signal pending in the channel, just return
// since a mining operation will start.
func (w *Worker) SignalStartMining() {
	select {
	case w.startMining <- true:
	default:
	}
	w.evHandler("worker: SignalStartMining: mining signaled")
}

// SignalCancelMining signals the G executing the runMiningOperation function
// to stop immediately. That G will not return from the function until done
// is called. This allows the caller to complete any state changes before a
// new mining operation takes place.
func (w *Worker) SignalCancelMining() (done func()) {
	wait := make(chan struct{})

	select {
	case w.cancelMining <- wait:
	default:
	}
	w.evHandler("worker: SignalCancelMining: MINING: CANCEL: signaled")

	return func() { close(wait) }
}

// =============================================================================

// IsMining reports whether a block is being built right now.
func (w *Worker) IsMining() bool {
	return w.mining.Load()
}

// BlocksMined returns the number of blocks this worker built that made it
// into the chain.
func (w *Worker) BlocksMined() uint64 {
	return w.blocks.Load()
}

// isShutdown is used to test if a shutdown has been signaled.
func (w *Worker) isShutdown() bool {
	select {
	case <-w.shut:
		return true
	default:
		return false
	}
}
