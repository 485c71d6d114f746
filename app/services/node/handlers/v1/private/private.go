// Package private maintains the group of handlers for node to node access.
package private

import (
	"context"
	"errors"
	"net/http"

	"github.com/coinforge/node/business/web/errs"
	"github.com/coinforge/node/foundation/chain/block"
	"github.com/coinforge/node/foundation/chain/node"
	"github.com/coinforge/node/foundation/web"
	"go.uber.org/zap"
)

// Handlers manages the set of node to node endpoints.
type Handlers struct {
	Log  *zap.SugaredLogger
	Node *node.Node
}

// peersPayload is a register or deregister body carrying one or many
// peer URLs.
type peersPayload struct {
	URL  string   `json:"url,omitempty"`
	URLs []string `json:"urls,omitempty"`
}

// all returns every URL carried by the payload.
func (p peersPayload) all() []string {
	if p.URL != "" {
		return append([]string{p.URL}, p.URLs...)
	}
	return p.URLs
}

// blockPush is the wire body of a node to node block delivery.
type blockPush struct {
	Block         block.Block `json:"block"`
	Sender        string      `json:"sender,omitempty"`
	PreviousPeers []string    `json:"previousPeers,omitempty"`
}

// RegisterPeers merges the caller's URLs into the peer set and reveals
// this node's current peer list so the registrant can discover the rest
// of the network.
func (h Handlers) RegisterPeers(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var payload peersPayload
	if err := web.Decode(r, &payload); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	urls := payload.all()
	if len(urls) == 0 {
		return errs.NewTrusted(errors.New("no peer urls provided"), http.StatusBadRequest)
	}

	peers := h.Node.AddPeers(urls)

	resp := struct {
		OK        bool     `json:"ok"`
		URLs      []string `json:"urls"`
		Responder string   `json:"responder"`
		Peers     []string `json:"peers"`
	}{
		OK:        true,
		URLs:      urls,
		Responder: h.Node.SelfURL(),
		Peers:     peers,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// DeregisterPeers removes the caller's URLs from this node's peer set.
func (h Handlers) DeregisterPeers(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var payload peersPayload
	if err := web.Decode(r, &payload); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	urls := payload.all()
	if len(urls) == 0 {
		return errs.NewTrusted(errors.New("no peer urls provided"), http.StatusBadRequest)
	}

	h.Node.RemovePeers(urls)

	resp := struct {
		OK        bool     `json:"ok"`
		URLs      []string `json:"urls"`
		Responder string   `json:"responder"`
	}{
		OK:        true,
		URLs:      urls,
		Responder: h.Node.SelfURL(),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Peers returns the current peer list.
func (h Handlers) Peers(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	resp := struct {
		Peers []string `json:"peers"`
	}{
		Peers: h.Node.KnownPeers(),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Ping answers a liveness probe.
func (h Handlers) Ping(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	if from := r.URL.Query().Get("from"); from != "" {
		h.Log.Infow("ping", "traceid", web.GetTraceID(ctx), "from", from)
	}

	resp := struct {
		OK   bool   `json:"ok"`
		Pong string `json:"pong"`
	}{
		OK:   true,
		Pong: h.Node.SelfURL(),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Chain returns the full canonical chain, genesis first, for peer
// catch-up.
func (h Handlers) Chain(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	resp := struct {
		Chain []block.Block `json:"chain"`
	}{
		Chain: h.Node.Chain(),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Latest returns the canonical tip summary.
func (h Handlers) Latest(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	latest := h.Node.LatestBlock()

	resp := struct {
		Latest     string `json:"latest"`
		Height     uint64 `json:"height"`
		Difficulty int    `json:"difficulty"`
	}{
		Latest:     latest.Hash,
		Height:     latest.Height,
		Difficulty: h.Node.Difficulty(),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// BlockByHash performs the point lookup peers use to resolve an orphan's
// missing parent.
func (h Handlers) BlockByHash(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	hash := web.Param(r, "hash")

	b, ok := h.Node.GetBlock(hash)
	if !ok {
		return errs.NewTrusted(errors.New("block not found"), http.StatusNotFound)
	}

	resp := struct {
		OK    bool        `json:"ok"`
		Block block.Block `json:"block"`
	}{
		OK:    true,
		Block: b,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// ProcessBlock takes a block received from a peer and runs it through the
// node's ingest path.
func (h Handlers) ProcessBlock(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var push blockPush
	if err := web.Decode(r, &push); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	disposition, err := h.Node.ProcessBlock(node.BlockMsg{
		Block:         push.Block,
		Sender:        push.Sender,
		PreviousPeers: push.PreviousPeers,
	})
	if err != nil {
		return errs.NewTrusted(err, http.StatusNotAcceptable)
	}

	resp := struct {
		Status string `json:"status"`
	}{
		Status: string(disposition),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}
