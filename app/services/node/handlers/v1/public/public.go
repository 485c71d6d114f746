// Package public maintains the group of handlers for wallet and browser
// access.
package public

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coinforge/node/business/web/errs"
	"github.com/coinforge/node/foundation/chain/block"
	"github.com/coinforge/node/foundation/chain/node"
	"github.com/coinforge/node/foundation/chain/txn"
	"github.com/coinforge/node/foundation/events"
	"github.com/coinforge/node/foundation/nameservice"
	"github.com/coinforge/node/foundation/web"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Handlers manages the set of public endpoints.
type Handlers struct {
	Log  *zap.SugaredLogger
	Node *node.Node
	NS   *nameservice.NameService
	WS   websocket.Upgrader
	Evts *events.Events
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

			if err := c.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return err
			}

		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return nil
			}
		}
	}
}

// Genesis returns the hardcoded genesis block.
func (h Handlers) Genesis(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, block.Genesis(), http.StatusOK)
}

// Chain returns the full canonical chain, genesis first.
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

	resp := latestInfo{
		Latest:     latest.Hash,
		Height:     latest.Height,
		Difficulty: h.Node.Difficulty(),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// BlockByHash performs a point lookup of one block.
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

// Unspent returns the UTXOs an address can still spend: canonical outputs
// minus anything a pending pool transaction already consumes.
func (h Handlers) Unspent(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	address := web.Param(r, "address")
	return web.Respond(ctx, w, h.Node.Unspent(address), http.StatusOK)
}

// Balance sums the spendable UTXOs owned by an address.
func (h Handlers) Balance(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	address := web.Param(r, "address")

	resp := balanceInfo{
		Address: address,
		Name:    h.NS.Lookup(address),
		Balance: h.Node.Balance(address),
	}
	if resp.Name == address {
		resp.Name = ""
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Mempool returns the set of uncommitted transactions.
func (h Handlers) Mempool(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	pool := h.Node.MempoolCopy()

	trans := make([]txInfo, len(pool))
	for i, tx := range pool {
		info := txInfo{
			ID:   tx.ID,
			Ins:  tx.Ins,
			Outs: tx.Outs,
		}
		for _, out := range tx.Outs {
			info.OutTotal += out.Amount
			if name := h.NS.Lookup(out.Address); name != out.Address {
				info.ToNames = append(info.ToNames, name)
			}
		}
		trans[i] = info
	}

	return web.Respond(ctx, w, trans, http.StatusOK)
}

// SubmitTransaction adds a new wallet transaction to the mempool.
func (h Handlers) SubmitTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var payload submitTx
	if err := web.Decode(r, &payload); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	tx := txn.Tx{ID: payload.ID, Ins: payload.Ins, Outs: payload.Outs}

	h.Log.Infow("submit tran", "traceid", v.TraceID, "tx", tx.ID, "ins", len(tx.Ins), "outs", len(tx.Outs))
	if err := h.Node.SubmitTx(tx); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	resp := struct {
		OK   bool   `json:"ok"`
		TxID string `json:"txId"`
	}{
		OK:   true,
		TxID: tx.ID,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// StartMining enables the background miner.
func (h Handlers) StartMining(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	old, new := h.Node.StartMining()
	return web.Respond(ctx, w, miningStatus{Old: old, New: new}, http.StatusOK)
}

// StopMining disables the background miner.
func (h Handlers) StopMining(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	old, new := h.Node.StopMining()
	return web.Respond(ctx, w, miningStatus{Old: old, New: new}, http.StatusOK)
}

// RestartMining cancels the in-flight job and schedules a fresh one.
func (h Handlers) RestartMining(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	old, new := h.Node.RestartMining()
	return web.Respond(ctx, w, miningStatus{Old: old, New: new}, http.StatusOK)
}
