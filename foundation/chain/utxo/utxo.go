// Package utxo maintains the unspent-output set and applies a block's
// transactions against it, enforcing intra-block no-double-spend. Coinbase
// validation is left to the caller.
package utxo

import "fmt"

// Key uniquely identifies a UTXO by the id of the transaction that
// produced it and the index of that transaction's output.
type Key struct {
	TxID     string
	OutIndex uint64
}

// Output is an unspent transaction output.
type Output struct {
	TxID     string  `json:"txId"`
	OutIndex uint64  `json:"outIndex"`
	Address  string  `json:"address"`
	Amount   float64 `json:"amount"`
}

// Set is an immutable-by-convention snapshot of unspent outputs. Callers
// always receive a fresh Set from ApplyBlock rather than mutating one in
// place, so a Set handed to a validator can never be observed mid-update.
type Set struct {
	m map[Key]Output
}

// NewSet constructs an empty UTXO set.
func NewSet() Set {
	return Set{m: make(map[Key]Output)}
}

// Get looks up the UTXO produced by txID at outIndex.
func (s Set) Get(txID string, outIndex uint64) (Output, bool) {
	o, ok := s.m[Key{txID, outIndex}]
	return o, ok
}

// ForAddress returns every UTXO owned by address, in no particular order.
func (s Set) ForAddress(address string) []Output {
	var out []Output
	for _, o := range s.m {
		if o.Address == address {
			out = append(out, o)
		}
	}
	return out
}

// Sum totals the amount of every UTXO in the set. Used by the coinbase-
// conservation invariant: sum over all UTXOs equals 100 times canonical
// height.
func (s Set) Sum() float64 {
	var total float64
	for _, o := range s.m {
		total += o.Amount
	}
	return total
}

// Len reports the number of UTXOs in the set.
func (s Set) Len() int {
	return len(s.m)
}

// clone returns a shallow copy of s safe to mutate independently.
func (s Set) clone() Set {
	cp := make(map[Key]Output, len(s.m))
	for k, v := range s.m {
		cp[k] = v
	}
	return Set{m: cp}
}

// put inserts or replaces o in place; only used while building a clone.
func (s Set) put(o Output) {
	s.m[Key{o.TxID, o.OutIndex}] = o
}

// remove deletes the UTXO at key in place; only used while building a clone.
func (s Set) remove(k Key) {
	delete(s.m, k)
}

// ErrDoubleSpend is returned when a block spends the same UTXO more than
// once across all of its transactions.
var ErrDoubleSpend = fmt.Errorf("utxo spent more than once in block")

// ApplyBlock applies the transactions of a block to utxos, returning the
// resulting set. txs[0] must already have been validated as the
// coinbase for height by the caller (package block / package tree); this
// function only enforces the cross-transaction double-spend rule and the
// per-tx validity check. At height 0 txs must be empty and utxos is
// returned unchanged.
//
// validate is called once per non-coinbase transaction against utxos (not
// a running snapshot), so a UTXO produced earlier in the same block can
// never be spent later in that same block — intra-block chaining is
// disallowed by construction.
func ApplyBlock(height uint64, txs []Tx, utxos Set, validate func(tx Tx, utxos Set) error) (Set, error) {
	if height == 0 {
		if len(txs) != 0 {
			return Set{}, fmt.Errorf("genesis block must have no transactions")
		}
		return utxos, nil
	}

	seen := make(map[Key]struct{})
	for i, tx := range txs {
		if i == 0 {
			// The coinbase's synthetic input does not spend a real UTXO.
			continue
		}
		for _, in := range tx.Ins {
			k := Key{in.PrevTxID, in.PrevOutIndex}
			if _, dup := seen[k]; dup {
				return Set{}, ErrDoubleSpend
			}
			seen[k] = struct{}{}
		}
	}

	for i, tx := range txs {
		if i == 0 {
			continue
		}
		if err := validate(tx, utxos); err != nil {
			return Set{}, fmt.Errorf("tx %s: %w", tx.ID, err)
		}
	}

	next := utxos.clone()
	for i, tx := range txs {
		if i != 0 {
			for _, in := range tx.Ins {
				next.remove(Key{in.PrevTxID, in.PrevOutIndex})
			}
		}
		for idx, out := range tx.Outs {
			next.put(Output{TxID: tx.ID, OutIndex: uint64(idx), Address: out.Address, Amount: out.Amount})
		}
	}

	return next, nil
}

// Tx is the shape ApplyBlock consumes. Defined here (rather than importing
// package txn) to keep utxo free of a dependency on the transaction
// package; package block adapts txn.Tx to this shape.
type Tx struct {
	ID   string
	Ins  []In
	Outs []Out
}

// In is one spent input, as seen by the UTXO engine.
type In struct {
	PrevTxID     string
	PrevOutIndex uint64
}

// Out is one produced output, as seen by the UTXO engine.
type Out struct {
	Address string
	Amount  float64
}
