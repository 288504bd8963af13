// Package public maintains the group of handlers for public access.
package public

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ardanlabs/p2pledger/business/sys/validate"
	"github.com/ardanlabs/p2pledger/business/web/errs"
	"github.com/ardanlabs/p2pledger/foundation/blockchain/database"
	"github.com/ardanlabs/p2pledger/foundation/blockchain/signature"
	"github.com/ardanlabs/p2pledger/foundation/blockchain/state"
	"github.com/ardanlabs/p2pledger/foundation/blockchain/utxo"
	"github.com/ardanlabs/p2pledger/foundation/events"
	"github.com/ardanlabs/p2pledger/foundation/nameservice"
	"github.com/ardanlabs/p2pledger/foundation/web"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// classes maps the errors of the node to the status the client sees.
var classes = map[int][]error{
	http.StatusConflict: {
		state.ErrDuplicate,
	},
	http.StatusBadRequest: {
		state.ErrDoubleSpend,
		state.ErrUnknownOutput,
		state.ErrCoinbaseMisplaced,
		database.ErrMalformedTx,
		database.ErrNegativeFee,
		database.ErrUnsignedTx,
		database.ErrInvalidOwner,
		signature.ErrInvalidSignature,
		signature.ErrSignerMismatch,
	},
	http.StatusNotFound: {
		state.ErrTxNotFound,
	},
	http.StatusServiceUnavailable: {
		state.ErrNotRunning,
	},
}

// Handlers manages the set of node endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
	NS    *nameservice.NameService
	WS    websocket.Upgrader
	Evts  *events.Events
}

// Events handles a web socket to provide events to a client.
func (h Handlers) Events(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	h.WS.CheckOrigin = func(r *http.Request) bool { return true }

	c, err := h.WS.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	ch := h.Evts.Acquire(v.TraceID)
	defer h.Evts.Release(v.TraceID)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, wd := <-ch:
			if !wd {
				return nil
			}

			if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
				return err
			}

		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return nil
			}
		}
	}
}

// Status returns the summary of the node.
func (h Handlers) Status(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	st := h.State.QueryStatus()

	resp := status{
		Status:          st,
		BeneficiaryName: h.NS.Lookup(st.Beneficiary),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Peers returns the known core peers and the registered edges.
func (h Handlers) Peers(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	cores, edges := h.State.Peers()

	resp := peers{
		Cores: cores,
		Edges: edges,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Chain returns the current chain.
func (h Handlers) Chain(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.State.CurrentChain(), http.StatusOK)
}

// ResolveChain asks the core peers for their chains. Longer valid chains
// replace the local chain as the replies arrive.
func (h Handlers) ResolveChain(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	h.State.RequestFullChain()

	return web.Respond(ctx, w, submitted{Status: "full chain requested"}, http.StatusAccepted)
}

// Mempool returns the set of pending transactions.
func (h Handlers) Mempool(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	pool := h.State.PendingTransactions()

	trans := make([]pendingTx, len(pool))
	for i, tx := range pool {
		fee, _ := tx.Fee()
		trans[i] = pendingTx{
			ID:   tx.ID(),
			Kind: utxo.Classify(tx).String(),
			Fee:  fee,
			Tx:   tx,
		}
	}

	return web.Respond(ctx, w, trans, http.StatusOK)
}

// SubmitTransaction adds a signed transaction to the pool and shares it
// with the network.
func (h Handlers) SubmitTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var tx database.Tx
	if err := web.Decode(r, &tx); err != nil {
		return errs.NewTrusted(fmt.Errorf("unable to decode payload: %w", err), http.StatusBadRequest)
	}

	h.Log.Infow("submit tx", "traceid", v.TraceID, "tx", tx.String())

	if err := h.State.SubmitTransaction(tx); err != nil {
		return errs.Classify(err, classes)
	}

	return web.Respond(ctx, w, submitted{Status: "transaction added to pool", ID: tx.ID()}, http.StatusOK)
}

// Proof returns the merkle inclusion proof of a transaction in the chain.
func (h Handlers) Proof(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	proof, err := h.State.QueryProof(web.Param(r, "txid"))
	if err != nil {
		return errs.Classify(err, classes)
	}

	return web.Respond(ctx, w, proof, http.StatusOK)
}

// UTXOs returns the spendable outputs and the balance of an address.
func (h Handlers) UTXOs(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	addr := utxoAddress{
		Address: web.Param(r, "address"),
	}
	if err := validate.Check(addr); err != nil {
		return err
	}

	utxos, value, err := h.State.QueryUTXOs(addr.Address)
	if err != nil {
		return errs.Classify(err, classes)
	}

	resp := balance{
		Address: addr.Address,
		Name:    h.NS.Lookup(addr.Address),
		Balance: value,
		UTXOs:   utxos,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Messages returns the enhanced messages received recently.
func (h Handlers) Messages(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.State.PendingMessages(), http.StatusOK)
}

// SendMessage relays an application message through the network. The body
// is relayed as is.
func (h Handlers) SendMessage(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return errs.NewTrusted(fmt.Errorf("unable to read payload: %w", err), http.StatusBadRequest)
	}

	if err := h.State.SendEnhanced(json.RawMessage(payload)); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	return web.Respond(ctx, w, submitted{Status: "message relayed"}, http.StatusAccepted)
}
