package node

import (
	"time"

	"github.com/coinforge/node/foundation/chain/block"
	"github.com/coinforge/node/foundation/chain/tree"
)

// timeNow is swapped by tests that need a fixed clock.
var timeNow = time.Now

// Disposition classifies how the node answered a block push.
type Disposition string

const (
	// Accepted means the block (and possibly drained orphans) entered the
	// tree.
	Accepted Disposition = "accepted"
	// Ignored means the block was already known, or the gossip trail shows
	// this node has already seen the push.
	Ignored Disposition = "ignored"
	// Gap means the block's parent is unknown; it was stored as an orphan
	// and a background fetch/sync was started. The sender may also react
	// by offering its full chain.
	Gap Disposition = "gap"
	// Invalid means the block failed validation and was discarded.
	Invalid Disposition = "invalid"
)

// BlockMsg is a block push as it arrives from a peer: the block itself,
// the URL of the peer that delivered it, and the gossip trail of every
// node the push has already visited.
type BlockMsg struct {
	Block         block.Block
	Sender        string
	PreviousPeers []string
}

// ProcessBlock runs a received block through validation, fork-choice and
// mempool repair, then re-gossips it. Mined blocks come through the same
// path with an empty trail, so acceptance logic exists exactly once.
func (n *Node) ProcessBlock(msg BlockMsg) (Disposition, error) {
	for _, visited := range msg.PreviousPeers {
		if visited == n.selfURL {
			n.ev("node: ProcessBlock: already visited: block[%s]", msg.Block.Hash)
			return Ignored, nil
		}
	}

	n.mu.Lock()
	tipBefore := n.tree.CanonicalTipHash()
	report := n.tree.Ingest(msg.Block, timeNow())
	tipAfter := n.tree.CanonicalTipHash()

	if report.Outcome == tree.Stored && tipAfter != tipBefore {
		n.repairMempoolLocked(tipBefore, tipAfter)
	}
	n.mu.Unlock()

	switch report.Outcome {
	case tree.AlreadyKnown:
		return Ignored, nil

	case tree.Rejected:
		n.ev("node: ProcessBlock: rejected: block[%s]: %s", msg.Block.Hash, report.Err)
		return Invalid, report.Err

	case tree.Orphan:
		n.ev("node: ProcessBlock: orphaned: block[%s] missing parent[%s]", msg.Block.Hash, report.MissingParent)
		n.resolveGapAsync(report.MissingParent, msg)
		return Gap, nil
	}

	n.ev("node: ProcessBlock: stored: block[%s] height[%d] drained[%d]", msg.Block.Hash, msg.Block.Height, len(report.Stored)-1)

	if tipAfter != tipBefore {
		n.miner.RequestRestart()
	}

	n.broadcastBlockAsync(msg)

	return Accepted, nil
}

// repairMempoolLocked reconciles the pool after the canonical tip moved
// from oldTip to newTip: every transaction now included in the canonical
// chain leaves the pool, every transaction detached by the switch is
// offered re-admission, and anything no longer valid against the new
// snapshot is dropped. Callers must hold n.mu.
func (n *Node) repairMempoolLocked(oldTip, newTip string) {
	detached, attached := n.tree.Diff(oldTip, newTip)

	n.pool.RemoveIncluded(tree.CoinbaseTxIDs(attached))
	n.pool.Reconcile(n.tree.CanonicalUTXOs(), tree.NonCoinbaseTxs(detached))

	if len(detached) > 0 {
		n.ev("node: reorg: old[%s] new[%s] detached[%d] attached[%d]", oldTip, newTip, len(detached), len(attached))
	}
}

// resolveGapAsync reacts to an orphaned block in the background. When the
// orphan sits more than one block above the local tip and the push names a
// sender, it pulls the sender's full chain instead of fetching the parent.
// Otherwise it asks every known peer for the missing parent.
func (n *Node) resolveGapAsync(missingParent string, msg BlockMsg) {
	n.mu.Lock()
	tipHeight := n.tree.CanonicalTip().Height
	n.mu.Unlock()

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()

		if msg.Block.Height > tipHeight+1 && msg.Sender != "" {
			if err := n.Sync(msg.Sender); err != nil {
				n.ev("node: resolveGap: sync with %s: %s", msg.Sender, err)
			}
			return
		}

		n.fetchMissingParent(missingParent)
	}()
}
