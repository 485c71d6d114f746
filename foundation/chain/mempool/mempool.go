// Package mempool holds pending transactions that have not yet been mined
// into a canonical block. It enforces the invariant that pool transactions
// are pairwise disjoint in the UTXOs they consume and each remains valid
// against the current canonical UTXO snapshot.
package mempool

import (
	"errors"
	"strconv"
	"sync"

	"github.com/coinforge/node/foundation/chain/txn"
	"github.com/coinforge/node/foundation/chain/utxo"
)

// ErrAlreadyInPool is returned when a transaction with the same id is
// already pending.
var ErrAlreadyInPool = errors.New("transaction already in mempool")

// ErrConflict is returned when a transaction consumes a UTXO already
// consumed by a transaction currently in the pool.
var ErrConflict = errors.New("transaction conflicts with a pending transaction")

// Pool is the set of pending transactions, kept in submission order so the
// miner driver can select a deterministic prefix for a candidate block.
type Pool struct {
	mu    sync.Mutex
	order []string
	byID  map[string]txn.Tx
}

// New constructs an empty Pool.
func New() *Pool {
	return &Pool{byID: make(map[string]txn.Tx)}
}

// Submit validates tx against utxos and, if it does not conflict with any
// transaction already pending, inserts it. Returns nil on acceptance.
func (p *Pool) Submit(tx txn.Tx, utxos utxo.Set) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := txn.Validate(tx, utxos); err != nil {
		return err
	}

	if _, exists := p.byID[tx.ID]; exists {
		return ErrAlreadyInPool
	}

	if p.conflictsLocked(tx) {
		return ErrConflict
	}

	p.byID[tx.ID] = tx
	p.order = append(p.order, tx.ID)

	return nil
}

// conflictsLocked reports whether tx spends a UTXO already consumed by a
// pool transaction. Callers must hold p.mu.
func (p *Pool) conflictsLocked(tx txn.Tx) bool {
	consumed := make(map[string]struct{})
	for _, id := range p.order {
		for _, in := range p.byID[id].Ins {
			consumed[key(in.PrevTxID, in.PrevOutIndex)] = struct{}{}
		}
	}
	for _, in := range tx.Ins {
		if _, ok := consumed[key(in.PrevTxID, in.PrevOutIndex)]; ok {
			return true
		}
	}
	return false
}

func key(txID string, outIndex uint64) string {
	return txID + ":" + strconv.FormatUint(outIndex, 10)
}

// Has reports whether a transaction with id is currently pending.
func (p *Pool) Has(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	_, ok := p.byID[id]
	return ok
}

// Remove drops the transaction with id from the pool, if present. Used
// when a transaction is included in a canonical block or becomes invalid
// after a reorg.
func (p *Pool) Remove(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.removeLocked(id)
}

func (p *Pool) removeLocked(id string) {
	if _, ok := p.byID[id]; !ok {
		return
	}
	delete(p.byID, id)
	for i, oid := range p.order {
		if oid == id {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
}

// RemoveIncluded drops every pool transaction whose id appears in ids,
// e.g. every transaction now part of the new canonical chain.
func (p *Pool) RemoveIncluded(ids map[string]struct{}) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for id := range ids {
		p.removeLocked(id)
	}
}

// Reconcile is called by the node after the canonical chain changes. It drops every
// transaction still pending that is no longer valid against the new
// canonical utxos, then offers every detached non-coinbase transaction
// re-admission if it is valid against the new snapshot and does not
// conflict with what remains in the pool. Detached transactions that fail
// either check are dropped silently.
func (p *Pool) Reconcile(utxos utxo.Set, detached []txn.Tx) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, id := range append([]string{}, p.order...) {
		tx := p.byID[id]
		if err := txn.Validate(tx, utxos); err != nil {
			p.removeLocked(id)
		}
	}

	for _, tx := range detached {
		if _, already := p.byID[tx.ID]; already {
			continue
		}
		if err := txn.Validate(tx, utxos); err != nil {
			continue
		}
		if p.conflictsLocked(tx) {
			continue
		}
		p.byID[tx.ID] = tx
		p.order = append(p.order, tx.ID)
	}
}

// PickUpTo returns, in submission order, at most k pending transactions
// that are still valid against utxos. Invalid transactions encountered
// along the way are skipped, not removed from the pool.
func (p *Pool) PickUpTo(k int, utxos utxo.Set) []txn.Tx {
	p.mu.Lock()
	defer p.mu.Unlock()

	var picked []txn.Tx
	for _, id := range p.order {
		if len(picked) >= k {
			break
		}
		tx := p.byID[id]
		if err := txn.Validate(tx, utxos); err != nil {
			continue
		}
		picked = append(picked, tx)
	}
	return picked
}

// Count returns the number of pending transactions.
func (p *Pool) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.order)
}

// Copy returns every pending transaction in submission order.
func (p *Pool) Copy() []txn.Tx {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]txn.Tx, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, p.byID[id])
	}
	return out
}

// ConsumedUTXOs returns the set of (txID, outIndex) keys consumed by any
// transaction currently in the pool, used by the node's Unspent query to
// hide UTXOs a wallet should not attempt to reuse.
func (p *Pool) ConsumedUTXOs() map[utxo.Key]struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make(map[utxo.Key]struct{})
	for _, id := range p.order {
		for _, in := range p.byID[id].Ins {
			out[utxo.Key{TxID: in.PrevTxID, OutIndex: in.PrevOutIndex}] = struct{}{}
		}
	}
	return out
}
