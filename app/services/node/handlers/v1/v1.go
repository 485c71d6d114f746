// Package v1 contains the full set of handler functions and routes
// supported by the v1 web api.
package v1

import (
	"net/http"

	"github.com/coinforge/node/app/services/node/handlers/v1/private"
	"github.com/coinforge/node/app/services/node/handlers/v1/public"
	"github.com/coinforge/node/foundation/chain/node"
	"github.com/coinforge/node/foundation/events"
	"github.com/coinforge/node/foundation/nameservice"
	"github.com/coinforge/node/foundation/web"
	"go.uber.org/zap"
)

const version = "v1"

// Config contains all the mandatory systems required by handlers.
type Config struct {
	Log  *zap.SugaredLogger
	Node *node.Node
	NS   *nameservice.NameService
	Evts *events.Events
}

// PublicRoutes binds all the version 1 public routes.
func PublicRoutes(app *web.App, cfg Config) {
	pbl := public.Handlers{
		Log:  cfg.Log,
		Node: cfg.Node,
		NS:   cfg.NS,
		Evts: cfg.Evts,
	}

	app.Handle(http.MethodGet, version, "/events", pbl.Events)
	app.Handle(http.MethodGet, version, "/genesis", pbl.Genesis)
	app.Handle(http.MethodGet, version, "/chain", pbl.Chain)
	app.Handle(http.MethodGet, version, "/latest", pbl.Latest)
	app.Handle(http.MethodGet, version, "/block/:hash", pbl.BlockByHash)
	app.Handle(http.MethodGet, version, "/unspent/:address", pbl.Unspent)
	app.Handle(http.MethodGet, version, "/balance/:address", pbl.Balance)
	app.Handle(http.MethodGet, version, "/tx/uncommitted/list", pbl.Mempool)
	app.Handle(http.MethodPost, version, "/transactions", pbl.SubmitTransaction)
	app.Handle(http.MethodPost, version, "/mining/start", pbl.StartMining)
	app.Handle(http.MethodPost, version, "/mining/stop", pbl.StopMining)
	app.Handle(http.MethodPost, version, "/mining/restart", pbl.RestartMining)
}

// PrivateRoutes binds all the version 1 private routes.
func PrivateRoutes(app *web.App, cfg Config) {
	prv := private.Handlers{
		Log:  cfg.Log,
		Node: cfg.Node,
	}

	app.Handle(http.MethodPost, version, "/node/peers/register", prv.RegisterPeers)
	app.Handle(http.MethodPost, version, "/node/peers/deregister", prv.DeregisterPeers)
	app.Handle(http.MethodGet, version, "/node/peers", prv.Peers)
	app.Handle(http.MethodGet, version, "/node/ping", prv.Ping)
	app.Handle(http.MethodGet, version, "/node/chain", prv.Chain)
	app.Handle(http.MethodGet, version, "/node/latest", prv.Latest)
	app.Handle(http.MethodGet, version, "/node/block/:hash", prv.BlockByHash)
	app.Handle(http.MethodPost, version, "/node/block", prv.ProcessBlock)
}
