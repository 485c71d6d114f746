package utxo_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/coinforge/node/foundation/chain/utxo"
)

// noValidate accepts every transaction; these tests exercise the set
// mechanics, not the signature checks.
func noValidate(utxo.Tx, utxo.Set) error { return nil }

func coinbaseTx(id string, address string, height uint64) utxo.Tx {
	return utxo.Tx{
		ID:   id,
		Ins:  []utxo.In{{PrevTxID: "", PrevOutIndex: height}},
		Outs: []utxo.Out{{Address: address, Amount: 100}},
	}
}

func Test_ApplyBlockGenesis(t *testing.T) {
	set, err := utxo.ApplyBlock(0, nil, utxo.NewSet(), noValidate)
	if err != nil {
		t.Fatalf("Should accept an empty genesis: %s", err)
	}
	if set.Len() != 0 {
		t.Fatalf("Should leave the set empty, got %d entries.", set.Len())
	}

	txs := []utxo.Tx{coinbaseTx("cb", "miner", 0)}
	if _, err := utxo.ApplyBlock(0, txs, utxo.NewSet(), noValidate); err == nil {
		t.Fatal("Should reject a genesis carrying transactions.")
	}
}

func Test_ApplyBlockAddsAndRemoves(t *testing.T) {
	// Height 1: coinbase only.
	set, err := utxo.ApplyBlock(1, []utxo.Tx{coinbaseTx("cb1", "alice", 1)}, utxo.NewSet(), noValidate)
	if err != nil {
		t.Fatalf("Should apply the first block: %s", err)
	}

	got, ok := set.Get("cb1", 0)
	if !ok {
		t.Fatal("Should hold the coinbase output.")
	}
	if got.Address != "alice" || got.Amount != 100 {
		t.Fatalf("Should credit alice 100, got %s %v.", got.Address, got.Amount)
	}

	// Height 2: coinbase plus a transfer spending cb1.
	transfer := utxo.Tx{
		ID:   "t1",
		Ins:  []utxo.In{{PrevTxID: "cb1", PrevOutIndex: 0}},
		Outs: []utxo.Out{{Address: "bob", Amount: 30}, {Address: "alice", Amount: 70}},
	}
	set2, err := utxo.ApplyBlock(2, []utxo.Tx{coinbaseTx("cb2", "alice", 2), transfer}, set, noValidate)
	if err != nil {
		t.Fatalf("Should apply the second block: %s", err)
	}

	if _, ok := set2.Get("cb1", 0); ok {
		t.Fatal("Should have consumed the spent output.")
	}
	if _, ok := set2.Get("t1", 0); !ok {
		t.Fatal("Should hold the transfer's first output.")
	}
	if _, ok := set2.Get("t1", 1); !ok {
		t.Fatal("Should hold the change output.")
	}
	if set2.Sum() != 200 {
		t.Fatalf("Should total 200 after two coinbases, got %v.", set2.Sum())
	}

	// The input set must be untouched.
	if _, ok := set.Get("cb1", 0); !ok {
		t.Fatal("Should not mutate the snapshot passed in.")
	}
}

func Test_ApplyBlockDoubleSpend(t *testing.T) {
	set, err := utxo.ApplyBlock(1, []utxo.Tx{coinbaseTx("cb1", "alice", 1)}, utxo.NewSet(), noValidate)
	if err != nil {
		t.Fatalf("Should apply the first block: %s", err)
	}

	spendA := utxo.Tx{
		ID:   "t1",
		Ins:  []utxo.In{{PrevTxID: "cb1", PrevOutIndex: 0}},
		Outs: []utxo.Out{{Address: "bob", Amount: 100}},
	}
	spendB := utxo.Tx{
		ID:   "t2",
		Ins:  []utxo.In{{PrevTxID: "cb1", PrevOutIndex: 0}},
		Outs: []utxo.Out{{Address: "carol", Amount: 100}},
	}

	_, err = utxo.ApplyBlock(2, []utxo.Tx{coinbaseTx("cb2", "alice", 2), spendA, spendB}, set, noValidate)
	if !errors.Is(err, utxo.ErrDoubleSpend) {
		t.Fatalf("Should reject a block spending one utxo twice, got: %v", err)
	}
}

func Test_ApplyBlockNoIntraBlockChaining(t *testing.T) {
	set, err := utxo.ApplyBlock(1, []utxo.Tx{coinbaseTx("cb1", "alice", 1)}, utxo.NewSet(), noValidate)
	if err != nil {
		t.Fatalf("Should apply the first block: %s", err)
	}

	// The validator sees the pre-block snapshot, so t2 spending t1's
	// output inside the same block must fail the lookup.
	validate := func(tx utxo.Tx, snapshot utxo.Set) error {
		for _, in := range tx.Ins {
			if _, ok := snapshot.Get(in.PrevTxID, in.PrevOutIndex); !ok {
				return fmt.Errorf("unknown utxo %s:%d", in.PrevTxID, in.PrevOutIndex)
			}
		}
		return nil
	}

	t1 := utxo.Tx{
		ID:   "t1",
		Ins:  []utxo.In{{PrevTxID: "cb1", PrevOutIndex: 0}},
		Outs: []utxo.Out{{Address: "bob", Amount: 100}},
	}
	t2 := utxo.Tx{
		ID:   "t2",
		Ins:  []utxo.In{{PrevTxID: "t1", PrevOutIndex: 0}},
		Outs: []utxo.Out{{Address: "carol", Amount: 100}},
	}

	if _, err := utxo.ApplyBlock(2, []utxo.Tx{coinbaseTx("cb2", "alice", 2), t1, t2}, set, validate); err == nil {
		t.Fatal("Should reject a chain of transactions within one block.")
	}
}
