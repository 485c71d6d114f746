// Package tree stores every known block keyed by hash, tracks orphans
// awaiting a missing parent, and implements fork-choice over cumulative
// difficulty. It owns no UTXO state beyond a per-block cache of the
// replayed snapshot needed to adopt a branch as canonical quickly.
package tree

import (
	"errors"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/coinforge/node/foundation/chain/block"
	"github.com/coinforge/node/foundation/chain/txn"
	"github.com/coinforge/node/foundation/chain/utxo"
)

// Outcome classifies the result of a single Ingest call for one block.
type Outcome int

const (
	// Rejected means the block failed validation and was not stored.
	Rejected Outcome = iota
	// AlreadyKnown means the block's hash was already in the tree.
	AlreadyKnown
	// Orphan means the block's parent is not yet known; it was recorded in
	// the orphan index and not inserted into the tree.
	Orphan
	// Stored means the block passed validation and was inserted, whether
	// or not it became (or stayed) the canonical tip.
	Stored
)

var (
	// ErrGenesisMismatch is returned when a received block claims height 0
	// (genesis is hardcoded, never received).
	ErrGenesisMismatch = errors.New("received block claims genesis height")
	// ErrUnknownRoot is returned if a candidate chain's root does not
	// equal the hardcoded genesis block.
	ErrUnknownRoot = errors.New("candidate chain root is not genesis")
)

// node is the runtime record for one stored block.
type node struct {
	block      block.Block
	cumDiff    *big.Int
	utxosAfter utxo.Set
}

// Tree holds every known block and the orphan index.
type Tree struct {
	difficulty int
	genesis    block.Block

	nodes        map[string]*node
	orphans      map[string][]block.Block // missingParentHash -> dependents
	canonicalTip string
}

// New constructs a Tree seeded with the hardcoded genesis block.
func New(difficulty int) *Tree {
	g := block.Genesis()
	t := &Tree{
		difficulty:   difficulty,
		genesis:      g,
		nodes:        make(map[string]*node),
		orphans:      make(map[string][]block.Block),
		canonicalTip: g.Hash,
	}
	t.nodes[g.Hash] = &node{block: g, cumDiff: big.NewInt(0), utxosAfter: utxo.NewSet()}
	return t
}

// Has reports whether hash is already stored in the tree (not counting
// orphans).
func (t *Tree) Has(hash string) bool {
	_, ok := t.nodes[hash]
	return ok
}

// Get returns the stored block for hash.
func (t *Tree) Get(hash string) (block.Block, bool) {
	n, ok := t.nodes[hash]
	if !ok {
		return block.Block{}, false
	}
	return n.block, true
}

// CanonicalTipHash returns the hash of the current canonical tip.
func (t *Tree) CanonicalTipHash() string {
	return t.canonicalTip
}

// CanonicalTip returns the current canonical tip block.
func (t *Tree) CanonicalTip() block.Block {
	return t.nodes[t.canonicalTip].block
}

// CumulativeDifficulty returns the cumulative difficulty of the block at
// hash, or nil if unknown.
func (t *Tree) CumulativeDifficulty(hash string) *big.Int {
	n, ok := t.nodes[hash]
	if !ok {
		return nil
	}
	return n.cumDiff
}

// UTXOAt returns the cached UTXO snapshot resulting from applying the
// chain from genesis through hash, if hash is a known block.
func (t *Tree) UTXOAt(hash string) (utxo.Set, bool) {
	n, ok := t.nodes[hash]
	if !ok {
		return utxo.Set{}, false
	}
	return n.utxosAfter, true
}

// CanonicalUTXOs returns the UTXO snapshot for the current canonical tip.
func (t *Tree) CanonicalUTXOs() utxo.Set {
	return t.nodes[t.canonicalTip].utxosAfter
}

// PathFromGenesis walks parent pointers from hash back to genesis and
// returns the blocks in genesis-to-hash order.
func (t *Tree) PathFromGenesis(hash string) []block.Block {
	var rev []block.Block
	cur := hash
	for {
		n, ok := t.nodes[cur]
		if !ok {
			return nil
		}
		rev = append(rev, n.block)
		if n.block.Height == 0 {
			break
		}
		cur = n.block.PrevHash
	}

	out := make([]block.Block, len(rev))
	for i, b := range rev {
		out[len(rev)-1-i] = b
	}
	return out
}

// Diff walks the paths from genesis to oldTip and newTip and returns the
// blocks unique to each side of their common ancestor: detached (only on
// the old path) and attached (only on the new path), both ordered from
// the fork point toward the respective tip.
func (t *Tree) Diff(oldTip, newTip string) (detached, attached []block.Block) {
	oldPath := t.PathFromGenesis(oldTip)
	newPath := t.PathFromGenesis(newTip)

	common := 0
	for common < len(oldPath) && common < len(newPath) && oldPath[common].Hash == newPath[common].Hash {
		common++
	}

	return oldPath[common:], newPath[common:]
}

// Report is the outcome of ingesting a single wire block, including any
// orphans that were drained as a direct or indirect consequence.
type Report struct {
	Outcome       Outcome
	Err           error
	MissingParent string
	Stored        []block.Block // every block newly inserted this call, insertion order
}

// Ingest validates and inserts b, recomputes fork-choice, and iteratively
// drains any orphans now unblocked. now is the receiving node's clock.
// Ingest does not itself repair the mempool or restart mining — callers
// compare CanonicalTipHash before and after and use Diff plus
// CanonicalUTXOs to do that once for the whole call.
func (t *Tree) Ingest(b block.Block, now time.Time) Report {
	outcome, err, missing := t.ingestOne(b, now)

	report := Report{Outcome: outcome, Err: err, MissingParent: missing}
	if outcome != Stored {
		return report
	}
	report.Stored = append(report.Stored, b)

	// Drain orphans iteratively (not recursively, so a long dependent
	// chain can't blow the stack).
	queue := []string{b.Hash}
	for len(queue) > 0 {
		parentHash := queue[0]
		queue = queue[1:]

		waiting := t.orphans[parentHash]
		if len(waiting) == 0 {
			continue
		}
		delete(t.orphans, parentHash)

		for _, dep := range waiting {
			o, derr, _ := t.ingestOne(dep, now)
			if o == Stored {
				report.Stored = append(report.Stored, dep)
				queue = append(queue, dep.Hash)
			}
			_ = derr
		}
	}

	return report
}

// ingestOne validates and stores a single block and recomputes
// fork-choice, without draining orphans.
func (t *Tree) ingestOne(b block.Block, now time.Time) (Outcome, error, string) {
	if t.Has(b.Hash) {
		return AlreadyKnown, nil, ""
	}

	if b.Height == 0 {
		return Rejected, ErrGenesisMismatch, ""
	}

	parentNode, ok := t.nodes[b.PrevHash]
	if !ok {
		t.orphans[b.PrevHash] = append(t.orphans[b.PrevHash], b)
		return Orphan, nil, b.PrevHash
	}
	parent := parentNode.block

	if err := block.ValidateHeader(b, parent, t.difficulty, now); err != nil {
		return Rejected, err, ""
	}

	candidatePath := t.PathFromGenesis(b.PrevHash)
	candidatePath = append(candidatePath, b)
	if candidatePath[0].Hash != t.genesis.Hash {
		return Rejected, ErrUnknownRoot, ""
	}

	replayed, err := block.ApplyTransactions(b, parentNode.utxosAfter)
	if err != nil {
		return Rejected, fmt.Errorf("replaying transactions: %w", err), ""
	}

	cumDiff := new(big.Int).Add(parentNode.cumDiff, big.NewInt(int64(b.Difficulty)))

	t.nodes[b.Hash] = &node{block: b, cumDiff: cumDiff, utxosAfter: replayed}

	if cumDiff.Cmp(t.nodes[t.canonicalTip].cumDiff) > 0 {
		t.canonicalTip = b.Hash
	}

	return Stored, nil, ""
}

// Tips returns every known block hash that is not the parent of any other
// known block, i.e. every branch tip in the tree. Used by tests asserting
// the max-cumulative-difficulty invariant.
func (t *Tree) Tips() []string {
	isParent := make(map[string]bool, len(t.nodes))
	for _, n := range t.nodes {
		isParent[n.block.PrevHash] = true
	}

	var tips []string
	for hash := range t.nodes {
		if !isParent[hash] {
			tips = append(tips, hash)
		}
	}
	sort.Strings(tips)
	return tips
}

// CoinbaseTxIDs returns the set of transaction ids newly canonical in
// blocks, used by callers to decide what to purge from the mempool. The
// set holds the id of every transaction in blocks, not only the coinbases.
func CoinbaseTxIDs(blocks []block.Block) map[string]struct{} {
	ids := make(map[string]struct{})
	for _, b := range blocks {
		for _, tx := range b.Data.Txs {
			ids[tx.ID] = struct{}{}
		}
	}
	return ids
}

// NonCoinbaseTxs returns every non-coinbase transaction across blocks, in
// block then in-block order, for mempool re-admission after detachment.
func NonCoinbaseTxs(blocks []block.Block) []txn.Tx {
	var out []txn.Tx
	for _, b := range blocks {
		for i, tx := range b.Data.Txs {
			if i == 0 {
				continue
			}
			out = append(out, tx)
		}
	}
	return out
}

// ReplaceWithChain discards every side branch and rebuilds the tree from a
// validated, linear chain (genesis..tip) received wholesale from a peer
// during a full sync. The caller is responsible for first checking that
// chain's cumulative difficulty exceeds the current canonical tip's.
func (t *Tree) ReplaceWithChain(chain []block.Block, now time.Time) error {
	if len(chain) == 0 || chain[0].Hash != t.genesis.Hash {
		return ErrUnknownRoot
	}

	fresh := New(t.difficulty)
	for i := 1; i < len(chain); i++ {
		outcome, err, missing := fresh.ingestOne(chain[i], now)
		if outcome != Stored {
			if err != nil {
				return fmt.Errorf("block %d: %w", chain[i].Height, err)
			}
			return fmt.Errorf("block %d: unexpected outcome %v (missing %s)", chain[i].Height, outcome, missing)
		}
	}

	*t = *fresh
	return nil
}
