// Package node is the core API of the blockchain: it owns the block tree,
// the canonical UTXO snapshot, the mempool, the peer set and the miner
// driver, and implements gossip ingress, fork-choice reorg repair, and
// full-chain sync. Every mutation happens inside a method holding n.mu, so
// HTTP handlers calling into a Node observe and change state atomically
// between suspension points.
package node

import (
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"

	"github.com/coinforge/node/foundation/chain/block"
	"github.com/coinforge/node/foundation/chain/mempool"
	"github.com/coinforge/node/foundation/chain/miner"
	"github.com/coinforge/node/foundation/chain/peer"
	"github.com/coinforge/node/foundation/chain/tree"
	"github.com/coinforge/node/foundation/chain/txn"
	"github.com/coinforge/node/foundation/chain/utxo"
)

// DefaultTxCap is the default number of non-coinbase transactions a
// candidate block carries.
const DefaultTxCap = 2

// EventHandler is called for every notable event in the node's
// processing. The application decides where the messages go; the node
// only formats them.
type EventHandler func(v string, args ...any)

// Config is the set of values required to start a Node.
type Config struct {
	SelfURL       string
	MinerTag      string
	MiningAddress string
	Difficulty    int
	TxCap         int
	MineEnabled   bool
	KnownPeers    []string
	EvHandler     EventHandler
}

// Node manages the blockchain's consensus, mempool and gossip state.
type Node struct {
	mu sync.Mutex

	selfURL       string
	minerTag      string
	miningAddress string
	difficulty    int
	txCap         int
	ev            EventHandler

	tree  *tree.Tree
	pool  *mempool.Pool
	peers *peer.Set
	miner *miner.Driver

	client *http.Client
	wg     sync.WaitGroup
}

// New constructs a Node and starts its miner driver (disabled unless
// cfg.MineEnabled).
func New(cfg Config) (*Node, error) {
	if cfg.Difficulty < 0 || cfg.Difficulty > 64 {
		return nil, fmt.Errorf("difficulty %d out of range [0,64]", cfg.Difficulty)
	}

	ev := cfg.EvHandler
	if ev == nil {
		ev = func(string, ...any) {}
	}

	txCap := cfg.TxCap
	if txCap <= 0 {
		txCap = DefaultTxCap
	}

	n := &Node{
		selfURL:       cfg.SelfURL,
		minerTag:      cfg.MinerTag,
		miningAddress: cfg.MiningAddress,
		difficulty:    cfg.Difficulty,
		txCap:         txCap,
		ev:            ev,
		tree:          tree.New(cfg.Difficulty),
		pool:          mempool.New(),
		peers:         peer.NewSet(),
		client:        &http.Client{},
	}

	var peers []peer.Peer
	for _, url := range cfg.KnownPeers {
		if url == "" || url == cfg.SelfURL {
			continue
		}
		peers = append(peers, peer.New(url))
	}
	n.peers.Add(peers...)

	n.miner = miner.New(n.buildMiningJob, n.acceptMinedBlock, miner.EventHandler(ev))
	n.miner.Start(cfg.MineEnabled)

	return n, nil
}

// Shutdown stops the miner driver and waits for any in-flight background
// network work. The tree, mempool and peer set need no explicit teardown;
// they hold no external resources.
func (n *Node) Shutdown() {
	n.miner.Shutdown()
	n.wg.Wait()
}

// =============================================================================
// Queries. These all take the lock briefly and return copies so callers
// never observe state mid-mutation.

// Difficulty returns the node's configured mining difficulty.
func (n *Node) Difficulty() int {
	return n.difficulty
}

// SelfURL returns this node's own advertised URL.
func (n *Node) SelfURL() string {
	return n.selfURL
}

// LatestBlock returns the current canonical tip.
func (n *Node) LatestBlock() block.Block {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.tree.CanonicalTip()
}

// GetBlock returns the block with the given hash, if known.
func (n *Node) GetBlock(hash string) (block.Block, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.tree.Get(hash)
}

// Chain returns the canonical chain from genesis to tip.
func (n *Node) Chain() []block.Block {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.tree.PathFromGenesis(n.tree.CanonicalTipHash())
}

// CumulativeDifficulty returns the canonical tip's cumulative difficulty.
func (n *Node) CumulativeDifficulty() *big.Int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.tree.CumulativeDifficulty(n.tree.CanonicalTipHash())
}

// Unspent returns the UTXOs owned by address in the canonical set, minus
// any UTXO currently consumed by a pool transaction, so a wallet never
// attempts to reuse a pending input.
func (n *Node) Unspent(address string) []utxo.Output {
	n.mu.Lock()
	utxos := n.tree.CanonicalUTXOs()
	consumed := n.pool.ConsumedUTXOs()
	n.mu.Unlock()

	all := utxos.ForAddress(address)
	out := make([]utxo.Output, 0, len(all))
	for _, o := range all {
		if _, used := consumed[utxo.Key{TxID: o.TxID, OutIndex: o.OutIndex}]; !used {
			out = append(out, o)
		}
	}
	return out
}

// Balance sums the available (non mempool-consumed) UTXOs owned by address.
func (n *Node) Balance(address string) float64 {
	var total float64
	for _, o := range n.Unspent(address) {
		total += o.Amount
	}
	return total
}

// MempoolCopy returns every pending transaction in submission order.
func (n *Node) MempoolCopy() []txn.Tx {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.pool.Copy()
}

// MempoolLen returns the number of pending transactions.
func (n *Node) MempoolLen() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.pool.Count()
}

// KnownPeers returns every known peer URL except self.
func (n *Node) KnownPeers() []string {
	ps := n.peers.Copy(n.selfURL)
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.URL
	}
	return out
}

// =============================================================================
// Mining control.

// StartMining enables the miner driver, returning the previous and new
// status strings ("running"/"stopped").
func (n *Node) StartMining() (old, new string) {
	was := n.miner.SetEnabled(true)
	return statusString(was), statusString(true)
}

// StopMining disables the miner driver.
func (n *Node) StopMining() (old, new string) {
	was := n.miner.SetEnabled(false)
	return statusString(was), statusString(false)
}

// RestartMining cancels and re-debounces the current job without
// flipping the enabled flag.
func (n *Node) RestartMining() (old, new string) {
	enabled := n.miner.Enabled()
	n.miner.RequestRestart()
	return statusString(enabled), statusString(enabled)
}

// MiningStatus reports "running" or "stopped".
func (n *Node) MiningStatus() string {
	return statusString(n.miner.Enabled())
}

func statusString(enabled bool) string {
	if enabled {
		return "running"
	}
	return "stopped"
}

// =============================================================================

// ErrTxSubmit wraps every rejection reported by SubmitTx.
var ErrTxSubmit = errors.New("transaction rejected")

// SubmitTx validates tx against the canonical UTXO snapshot and, if it
// does not conflict with the pool, admits it. On success it schedules a
// debounced mining restart.
func (n *Node) SubmitTx(tx txn.Tx) error {
	n.mu.Lock()
	utxos := n.tree.CanonicalUTXOs()
	err := n.pool.Submit(tx, utxos)
	n.mu.Unlock()

	if err != nil {
		n.ev("node: SubmitTx: rejected: tx[%s]: %s", tx.ID, err)
		return fmt.Errorf("%w: %s", ErrTxSubmit, err)
	}

	n.ev("node: SubmitTx: accepted: tx[%s]", tx.ID)
	n.miner.RequestRestart()
	return nil
}
