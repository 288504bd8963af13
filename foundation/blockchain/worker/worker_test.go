package worker_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ardanlabs/p2pledger/foundation/blockchain/database"
	"github.com/ardanlabs/p2pledger/foundation/blockchain/worker"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

// node stands in for the state of a node. When block is set, building a
// block runs until the operation is cancelled.
type node struct {
	mu        sync.Mutex
	pending   int
	block     bool
	started   chan struct{}
	cancelled chan struct{}
	announced []database.Block
}

func newNode(pending int, block bool) *node {
	return &node{
		pending:   pending,
		block:     block,
		started:   make(chan struct{}, 1),
		cancelled: make(chan struct{}, 1),
	}
}

func (n *node) IsMiningAllowed() bool { return true }

func (n *node) QueryMempoolLength() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.pending
}

func (n *node) MineNewBlock(ctx context.Context) (database.Block, error) {
	select {
	case n.started <- struct{}{}:
	default:
	}

	if n.block {
		<-ctx.Done()
		n.cancelled <- struct{}{}
		return database.Block{}, ctx.Err()
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	n.pending = 0
	return database.Block{Index: 1, Hash: "0x01"}, nil
}

func (n *node) NetSendBlockToPeers(blk database.Block) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.announced = append(n.announced, blk)
}

func (n *node) countAnnounced() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.announced)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Fatalf("Timed out waiting for %s.", what)
}

// =============================================================================

func Test_MineOnTick(t *testing.T) {
	t.Log("Given the need to build blocks on a timer.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen the pool has transactions.", testID)
		{
			n := newNode(1, false)
			w := worker.Run(worker.Config{State: n, Interval: 20 * time.Millisecond})
			defer w.Shutdown()

			waitFor(t, "a block to be announced", func() bool { return n.countAnnounced() == 1 })
			t.Logf("\t%s\tTest %d:\tShould build and announce a block.", success, testID)

			if got := w.BlocksMined(); got != 1 {
				t.Fatalf("\t%s\tTest %d:\tShould count the block, got %d.", failed, testID, got)
			}
			t.Logf("\t%s\tTest %d:\tShould count the block.", success, testID)

			time.Sleep(100 * time.Millisecond)
			if got := n.countAnnounced(); got != 1 {
				t.Fatalf("\t%s\tTest %d:\tShould not build with an empty pool, got %d blocks.", failed, testID, got)
			}
			t.Logf("\t%s\tTest %d:\tShould not build with an empty pool.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen a build is signaled before the tick.", testID)
		{
			n := newNode(1, false)
			w := worker.Run(worker.Config{State: n, Interval: time.Hour})
			defer w.Shutdown()

			w.SignalStartMining()

			waitFor(t, "a block to be announced", func() bool { return n.countAnnounced() == 1 })
			t.Logf("\t%s\tTest %d:\tShould build without waiting for the tick.", success, testID)
		}
	}
}

func Test_CancelMining(t *testing.T) {
	t.Log("Given the need to abandon a build when a competing block arrives.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen a build is in flight.", testID)
		{
			n := newNode(1, true)
			w := worker.Run(worker.Config{State: n, Interval: time.Hour})

			w.SignalStartMining()

			select {
			case <-n.started:
			case <-time.After(5 * time.Second):
				t.Fatalf("\t%s\tTest %d:\tShould start building.", failed, testID)
			}

			if !w.IsMining() {
				t.Fatalf("\t%s\tTest %d:\tShould report the build in flight.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould report the build in flight.", success, testID)

			done := w.SignalCancelMining()

			select {
			case <-n.cancelled:
			case <-time.After(5 * time.Second):
				t.Fatalf("\t%s\tTest %d:\tShould cancel the build.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould cancel the build.", success, testID)

			time.Sleep(50 * time.Millisecond)
			if !w.IsMining() {
				t.Fatalf("\t%s\tTest %d:\tShould hold the operation until the caller is done.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould hold the operation until the caller is done.", success, testID)

			done()

			waitFor(t, "the operation to finish", func() bool { return !w.IsMining() })
			t.Logf("\t%s\tTest %d:\tShould finish once the caller is done.", success, testID)

			if got := n.countAnnounced(); got != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould not announce a cancelled build, got %d.", failed, testID, got)
			}
			t.Logf("\t%s\tTest %d:\tShould not announce a cancelled build.", success, testID)

			w.Shutdown()
			t.Logf("\t%s\tTest %d:\tShould shutdown.", success, testID)
		}
	}
}
