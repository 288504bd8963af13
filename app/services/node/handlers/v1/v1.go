// Package v1 contains the full set of handler functions and routes
// supported by the v1 web api.
package v1

import (
	"net/http"

	"github.com/ardanlabs/p2pledger/app/services/node/handlers/v1/public"
	"github.com/ardanlabs/p2pledger/foundation/blockchain/state"
	"github.com/ardanlabs/p2pledger/foundation/events"
	"github.com/ardanlabs/p2pledger/foundation/nameservice"
	"github.com/ardanlabs/p2pledger/foundation/web"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const version = "v1"

// Config contains all the mandatory systems required by handlers.
type Config struct {
	Log   *zap.SugaredLogger
	State *state.State
	NS    *nameservice.NameService
	Evts  *events.Events
}

// PublicRoutes binds all the version 1 public routes.
func PublicRoutes(app *web.App, cfg Config) {
	pbl := public.Handlers{
		Log:   cfg.Log,
		State: cfg.State,
		NS:    cfg.NS,
		WS:    websocket.Upgrader{},
		Evts:  cfg.Evts,
	}

	app.Handle(http.MethodGet, version, "/events", pbl.Events)
	app.Handle(http.MethodGet, version, "/node/status", pbl.Status)
	app.Handle(http.MethodGet, version, "/peers", pbl.Peers)
	app.Handle(http.MethodGet, version, "/chain", pbl.Chain)
	app.Handle(http.MethodPost, version, "/chain/resolve", pbl.ResolveChain)
	app.Handle(http.MethodGet, version, "/tx/pending", pbl.Mempool)
	app.Handle(http.MethodPost, version, "/tx/submit", pbl.SubmitTransaction)
	app.Handle(http.MethodGet, version, "/tx/proof/:txid", pbl.Proof)
	app.Handle(http.MethodGet, version, "/utxo/:address", pbl.UTXOs)
	app.Handle(http.MethodGet, version, "/messages", pbl.Messages)
	app.Handle(http.MethodPost, version, "/messages", pbl.SendMessage)
}
