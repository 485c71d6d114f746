package node

import (
	"time"

	"github.com/coinforge/node/foundation/chain/block"
	"github.com/coinforge/node/foundation/chain/miner"
	"github.com/coinforge/node/foundation/chain/txn"
)

// buildMiningJob snapshots the canonical tip and assembles the next
// candidate block: a coinbase paying the node's mining address at
// tip.height+1, followed by up to txCap pool transactions in submission
// order that are still valid against the canonical UTXO snapshot.
func (n *Node) buildMiningJob() (miner.Job, bool) {
	n.mu.Lock()
	tip := n.tree.CanonicalTip()
	utxos := n.tree.CanonicalUTXOs()
	picked := n.pool.PickUpTo(n.txCap, utxos)
	n.mu.Unlock()

	height := tip.Height + 1
	txs := make([]txn.Tx, 0, len(picked)+1)
	txs = append(txs, txn.NewCoinbase(n.miningAddress, height))
	txs = append(txs, picked...)

	job := miner.Job{
		Header: block.Header{
			Height:     height,
			Timestamp:  time.Now().UnixMilli(),
			PrevHash:   tip.Hash,
			Data:       block.Data{MinerTag: n.minerTag, Txs: txs},
			Nonce:      0,
			Difficulty: n.difficulty,
		},
	}

	n.ev("node: buildMiningJob: height[%d] prev[%s] txs[%d]", height, tip.Hash, len(picked))

	return job, true
}

// acceptMinedBlock feeds a block the local engine solved through the same
// ingest path external blocks take, so validation, fork-choice and
// rebroadcast all happen exactly as they would for a peer's block.
func (n *Node) acceptMinedBlock(b block.Block) {
	disposition, err := n.ProcessBlock(BlockMsg{Block: b})
	if err != nil {
		n.ev("node: acceptMinedBlock: %s: block[%s]: %s", disposition, b.Hash, err)
		return
	}
	n.ev("node: acceptMinedBlock: %s: block[%s] height[%d]", disposition, b.Hash, b.Height)
}
