package mempool_test

import (
	"crypto/ed25519"
	"errors"
	"testing"

	"github.com/coinforge/node/foundation/chain/mempool"
	"github.com/coinforge/node/foundation/chain/txn"
	"github.com/coinforge/node/foundation/chain/utxo"
)

// account bundles a keypair with its derived address.
type account struct {
	priv    ed25519.PrivateKey
	pub     ed25519.PublicKey
	address string
}

func newAccount(t *testing.T) account {
	t.Helper()

	pub, priv, err := txn.GenerateKey()
	if err != nil {
		t.Fatalf("Should generate a keypair: %s", err)
	}
	return account{
		priv:    priv,
		pub:     pub,
		address: txn.AddressFromPEM(txn.EncodePublicKeyPEM(pub)),
	}
}

// fund returns a UTXO set crediting acct with n coinbase outputs of 100,
// and the ids of the funding transactions.
func fund(t *testing.T, acct account, n int) (utxo.Set, []string) {
	t.Helper()

	set := utxo.NewSet()
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		cb := txn.NewCoinbase(acct.address, uint64(i+1))
		next, err := utxo.ApplyBlock(uint64(i+1), []utxo.Tx{
			{ID: cb.ID, Ins: []utxo.In{{PrevTxID: "", PrevOutIndex: uint64(i + 1)}}, Outs: []utxo.Out{{Address: acct.address, Amount: txn.CoinbaseReward}}},
		}, set, func(utxo.Tx, utxo.Set) error { return nil })
		if err != nil {
			t.Fatalf("Should fund the account: %s", err)
		}
		set = next
		ids = append(ids, cb.ID)
	}
	return set, ids
}

// transfer builds and signs a tx spending fundingID entirely to dest.
func transfer(t *testing.T, acct account, fundingID string, dest string) txn.Tx {
	t.Helper()

	tx := txn.NewTx(
		[]txn.TxIn{{PrevTxID: fundingID, PrevOutIndex: 0}},
		[]txn.TxOut{{Address: dest, Amount: txn.CoinbaseReward}},
	)
	sig, err := txn.Sign(tx.ID, acct.priv)
	if err != nil {
		t.Fatalf("Should sign the transaction: %s", err)
	}
	tx.Ins[0].Signature = sig
	tx.Ins[0].PublicKey = txn.EncodePublicKeyPEM(acct.pub)
	return tx
}

func Test_SubmitAndConflicts(t *testing.T) {
	acct := newAccount(t)
	utxos, ids := fund(t, acct, 1)

	pool := mempool.New()

	tx1 := transfer(t, acct, ids[0], "addr-b")
	if err := pool.Submit(tx1, utxos); err != nil {
		t.Fatalf("Should accept the first spend: %s", err)
	}

	// Same id again.
	if err := pool.Submit(tx1, utxos); !errors.Is(err, mempool.ErrAlreadyInPool) {
		t.Fatalf("Should reject a duplicate id, got: %v", err)
	}

	// A second spend of the same utxo to a different destination.
	tx2 := transfer(t, acct, ids[0], "addr-c")
	if err := pool.Submit(tx2, utxos); !errors.Is(err, mempool.ErrConflict) {
		t.Fatalf("Should reject a within-pool double spend, got: %v", err)
	}

	if pool.Count() != 1 {
		t.Fatalf("Should hold exactly one transaction, got %d.", pool.Count())
	}
}

func Test_SubmitRejectsInvalid(t *testing.T) {
	acct := newAccount(t)
	utxos, ids := fund(t, acct, 1)

	pool := mempool.New()

	tx := transfer(t, acct, ids[0], "addr-b")
	tx.Outs[0].Amount = 50 // id no longer matches

	if err := pool.Submit(tx, utxos); err == nil {
		t.Fatal("Should reject an invalid transaction.")
	}
	if pool.Count() != 0 {
		t.Fatal("Should keep the pool empty after a rejection.")
	}
}

func Test_PickUpToOrder(t *testing.T) {
	acct := newAccount(t)
	utxos, ids := fund(t, acct, 3)

	pool := mempool.New()
	var submitted []txn.Tx
	for _, id := range ids {
		tx := transfer(t, acct, id, "addr-b")
		if err := pool.Submit(tx, utxos); err != nil {
			t.Fatalf("Should accept the spend: %s", err)
		}
		submitted = append(submitted, tx)
	}

	picked := pool.PickUpTo(2, utxos)
	if len(picked) != 2 {
		t.Fatalf("Should pick two transactions, got %d.", len(picked))
	}
	if picked[0].ID != submitted[0].ID || picked[1].ID != submitted[1].ID {
		t.Fatal("Should pick in submission order.")
	}
}

func Test_Reconcile(t *testing.T) {
	acct := newAccount(t)
	utxos, ids := fund(t, acct, 2)

	pool := mempool.New()
	tx1 := transfer(t, acct, ids[0], "addr-b")
	tx2 := transfer(t, acct, ids[1], "addr-c")
	if err := pool.Submit(tx1, utxos); err != nil {
		t.Fatalf("Should accept tx1: %s", err)
	}
	if err := pool.Submit(tx2, utxos); err != nil {
		t.Fatalf("Should accept tx2: %s", err)
	}

	// A reorg lands on a chain where only the first funding output
	// exists: tx2's input is gone, tx1 stays valid. A detached
	// transaction spending the survivor's utxo is refused re-admission
	// because it conflicts with tx1.
	newUtxos, _ := fund(t, acct, 1)
	detachedConflict := transfer(t, acct, ids[0], "addr-d")

	pool.Reconcile(newUtxos, []txn.Tx{detachedConflict})

	if !pool.Has(tx1.ID) {
		t.Fatal("Should keep the still-valid transaction.")
	}
	if pool.Has(tx2.ID) {
		t.Fatal("Should drop the transaction invalidated by the reorg.")
	}
	if pool.Has(detachedConflict.ID) {
		t.Fatal("Should refuse a detached transaction that conflicts with the pool.")
	}
	if pool.Count() != 1 {
		t.Fatalf("Should hold exactly one transaction, got %d.", pool.Count())
	}
}

func Test_ReconcileReadmitsDetached(t *testing.T) {
	acct := newAccount(t)
	utxos, ids := fund(t, acct, 1)

	pool := mempool.New()

	// The pool is empty; a detached transaction that is still valid
	// against the new snapshot comes back.
	detached := transfer(t, acct, ids[0], "addr-b")
	pool.Reconcile(utxos, []txn.Tx{detached})

	if !pool.Has(detached.ID) {
		t.Fatal("Should re-admit a still-valid detached transaction.")
	}
}

func Test_ConsumedUTXOs(t *testing.T) {
	acct := newAccount(t)
	utxos, ids := fund(t, acct, 2)

	pool := mempool.New()
	tx := transfer(t, acct, ids[0], "addr-b")
	if err := pool.Submit(tx, utxos); err != nil {
		t.Fatalf("Should accept the spend: %s", err)
	}

	consumed := pool.ConsumedUTXOs()
	if _, ok := consumed[utxo.Key{TxID: ids[0], OutIndex: 0}]; !ok {
		t.Fatal("Should report the consumed utxo.")
	}
	if _, ok := consumed[utxo.Key{TxID: ids[1], OutIndex: 0}]; ok {
		t.Fatal("Should not report an untouched utxo.")
	}
}
