package node

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/coinforge/node/foundation/chain/block"
	"github.com/coinforge/node/foundation/chain/peer"
	"github.com/coinforge/node/foundation/chain/tree"
)

const baseURL = "%s/v1/node"

// blockPush is the wire body of a node-to-node block delivery.
type blockPush struct {
	Block         block.Block `json:"block"`
	Sender        string      `json:"sender,omitempty"`
	PreviousPeers []string    `json:"previousPeers,omitempty"`
}

// registerRequest is the wire body of a peer registration or
// deregistration, accepting one or many URLs.
type registerRequest struct {
	URLs []string `json:"urls"`
}

// registerResponse is what a peer answers a registration with: its own
// URL and its current peer list, which the registrant merges.
type registerResponse struct {
	OK        bool     `json:"ok"`
	Responder string   `json:"responder"`
	Peers     []string `json:"peers"`
}

// chainResponse carries a full canonical chain, genesis first.
type chainResponse struct {
	Chain []block.Block `json:"chain"`
}

// blockResponse carries one block looked up by hash.
type blockResponse struct {
	OK    bool        `json:"ok"`
	Block block.Block `json:"block"`
}

// pingResponse answers a liveness probe.
type pingResponse struct {
	OK   bool   `json:"ok"`
	Pong string `json:"pong"`
}

// =============================================================================
// Inbound membership operations, called by the node-to-node handlers.

// AddPeers merges urls into the peer set and returns the node's current
// peer list so the registrant can discover the rest of the network.
func (n *Node) AddPeers(urls []string) []string {
	var peers []peer.Peer
	for _, url := range urls {
		if url == "" || url == n.selfURL {
			continue
		}
		peers = append(peers, peer.New(url))
	}

	if n.peers.Add(peers...) {
		n.ev("node: AddPeers: merged %d url(s)", len(peers))
	}

	return n.KnownPeers()
}

// RemovePeers drops urls from this node's own peer set. Nothing is sent
// to the removed peers; their view of this node is unchanged.
func (n *Node) RemovePeers(urls []string) {
	var peers []peer.Peer
	for _, url := range urls {
		peers = append(peers, peer.New(url))
	}
	n.peers.Remove(peers...)
}

// =============================================================================
// Outbound operations.

// RegisterWithKnownPeers introduces this node to every peer it was
// configured with, merges the peer lists each responder reveals, and
// catches up by pulling the chain of each answering peer in turn until
// one sync succeeds.
// Called once at startup; safe to call again at any time.
func (n *Node) RegisterWithKnownPeers() {
	var synced bool
	for _, url := range n.KnownPeers() {
		resp, err := n.registerAt(url)
		if err != nil {
			n.ev("node: RegisterWithKnownPeers: %s: %s", url, err)
			continue
		}

		n.AddPeers(resp.Peers)

		if !synced {
			if err := n.Sync(url); err != nil {
				n.ev("node: RegisterWithKnownPeers: sync with %s: %s", url, err)
				continue
			}
			synced = true
		}
	}
}

// registerAt sends this node's URL to the peer at url and returns the
// peer's registration response.
func (n *Node) registerAt(url string) (registerResponse, error) {
	req := registerRequest{URLs: []string{n.selfURL}}
	var resp registerResponse
	if err := n.send(http.MethodPost, fmt.Sprintf(baseURL+"/peers/register", url), req, &resp); err != nil {
		return registerResponse{}, err
	}
	return resp, nil
}

// DeregisterFromPeers tells every known peer to forget this node's URL.
// Best effort; failures are logged and skipped.
func (n *Node) DeregisterFromPeers() {
	req := registerRequest{URLs: []string{n.selfURL}}
	for _, url := range n.KnownPeers() {
		if err := n.send(http.MethodPost, fmt.Sprintf(baseURL+"/peers/deregister", url), req, nil); err != nil {
			n.ev("node: DeregisterFromPeers: %s: %s", url, err)
		}
	}
}

// PingPeers probes every known peer for liveness. Unreachable peers are
// logged but stay in the set; the next ping or broadcast simply retries.
func (n *Node) PingPeers() {
	for _, url := range n.KnownPeers() {
		var resp pingResponse
		err := n.send(http.MethodGet, fmt.Sprintf(baseURL+"/ping?from=%s", url, n.selfURL), nil, &resp)
		if err != nil {
			n.ev("node: PingPeers: %s: unreachable: %s", url, err)
			continue
		}
	}
}

// broadcastBlockAsync re-gossips an accepted block to every known peer
// that is not the sender and has not already seen this push, appending
// this node's own URL to the trail. If this node's URL was already on the
// inbound trail the caller never gets here; ProcessBlock answers Ignored
// instead.
func (n *Node) broadcastBlockAsync(msg BlockMsg) {
	trail := make([]string, 0, len(msg.PreviousPeers)+1)
	trail = append(trail, msg.PreviousPeers...)
	trail = append(trail, n.selfURL)

	visited := make(map[string]struct{}, len(trail)+1)
	for _, url := range trail {
		visited[url] = struct{}{}
	}
	if msg.Sender != "" {
		visited[msg.Sender] = struct{}{}
	}

	var targets []string
	for _, url := range n.KnownPeers() {
		if _, seen := visited[url]; seen {
			continue
		}
		targets = append(targets, url)
	}
	if len(targets) == 0 {
		return
	}

	push := blockPush{Block: msg.Block, Sender: n.selfURL, PreviousPeers: trail}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		for _, url := range targets {
			if err := n.send(http.MethodPost, fmt.Sprintf(baseURL+"/block", url), push, nil); err != nil {
				n.ev("node: broadcastBlock: %s: %s", url, err)
				continue
			}
			n.ev("node: broadcastBlock: sent block[%s] to peer[%s]", msg.Block.Hash, url)
		}
	}()
}

// fetchMissingParent asks each known peer in turn for the block with the
// given hash and re-ingests the first copy found, which in turn drains
// the waiting orphan(s).
func (n *Node) fetchMissingParent(hash string) {
	for _, url := range n.KnownPeers() {
		var resp blockResponse
		err := n.send(http.MethodGet, fmt.Sprintf(baseURL+"/block/%s", url, hash), nil, &resp)
		if err != nil || !resp.OK {
			continue
		}

		n.ev("node: fetchMissingParent: got block[%s] from peer[%s]", hash, url)
		if _, err := n.ProcessBlock(BlockMsg{Block: resp.Block, Sender: url}); err != nil {
			n.ev("node: fetchMissingParent: ingest block[%s]: %s", hash, err)
		}
		return
	}

	n.ev("node: fetchMissingParent: block[%s] not found at any peer", hash)
}

// =============================================================================
// Full-chain sync.

// ErrNotBetter is returned by Sync when the peer's chain does not carry
// strictly more cumulative difficulty than the local canonical chain.
var ErrNotBetter = errors.New("peer chain is not better than local chain")

// Sync pulls the full chain from the peer at url, validates it end to end
// by replaying every transaction from an empty UTXO set, and replaces the
// local canonical state if the remote cumulative difficulty strictly
// exceeds the local one. Side branches are discarded by this operation;
// transactions only present on the abandoned local chain are offered back
// to the mempool.
func (n *Node) Sync(url string) error {
	n.ev("node: Sync: started: peer[%s]", url)
	defer n.ev("node: Sync: completed: peer[%s]", url)

	var resp chainResponse
	if err := n.send(http.MethodGet, fmt.Sprintf(baseURL+"/chain", url), nil, &resp); err != nil {
		return fmt.Errorf("fetching chain: %w", err)
	}

	remote := tree.New(n.difficulty)
	if err := remote.ReplaceWithChain(resp.Chain, timeNow()); err != nil {
		return fmt.Errorf("validating peer chain: %w", err)
	}
	remoteDiff := remote.CumulativeDifficulty(remote.CanonicalTipHash())

	n.mu.Lock()
	localDiff := n.tree.CumulativeDifficulty(n.tree.CanonicalTipHash())
	if remoteDiff.Cmp(localDiff) <= 0 {
		n.mu.Unlock()
		return ErrNotBetter
	}

	oldChain := n.tree.PathFromGenesis(n.tree.CanonicalTipHash())
	n.tree = remote

	inNew := make(map[string]struct{}, len(resp.Chain))
	for _, b := range resp.Chain {
		inNew[b.Hash] = struct{}{}
	}
	var detached []block.Block
	for _, b := range oldChain {
		if _, ok := inNew[b.Hash]; !ok {
			detached = append(detached, b)
		}
	}

	n.pool.RemoveIncluded(tree.CoinbaseTxIDs(resp.Chain))
	n.pool.Reconcile(n.tree.CanonicalUTXOs(), tree.NonCoinbaseTxs(detached))
	newTip := n.tree.CanonicalTip()
	n.mu.Unlock()

	n.ev("node: Sync: adopted chain: tip[%s] height[%d] detached[%d]", newTip.Hash, newTip.Height, len(detached))
	n.miner.RequestRestart()

	return nil
}

// =============================================================================

// send issues an HTTP request to a peer, JSON-encoding dataSend when
// present and decoding the response into dataRecv when asked for.
func (n *Node) send(method string, url string, dataSend any, dataRecv any) error {
	var req *http.Request

	switch {
	case dataSend != nil:
		data, err := json.Marshal(dataSend)
		if err != nil {
			return err
		}
		req, err = http.NewRequest(method, url, bytes.NewReader(data))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

	default:
		var err error
		req, err = http.NewRequest(method, url, nil)
		if err != nil {
			return err
		}
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	if resp.StatusCode != http.StatusOK {
		msg, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		return errors.New(string(msg))
	}

	if dataRecv != nil {
		if err := json.NewDecoder(resp.Body).Decode(dataRecv); err != nil {
			return err
		}
	}

	return nil
}
