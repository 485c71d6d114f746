package block_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/coinforge/node/foundation/chain/block"
	"github.com/coinforge/node/foundation/chain/hash"
	"github.com/coinforge/node/foundation/chain/txn"
	"github.com/coinforge/node/foundation/chain/utxo"
)

// mineChild solves a child of parent at the given difficulty by brute
// force. Tests keep difficulty at 1 so this is instant.
func mineChild(parent block.Block, difficulty int, txs []txn.Tx, ts int64) block.Block {
	h := block.Header{
		Height:     parent.Height + 1,
		Timestamp:  ts,
		PrevHash:   parent.Hash,
		Data:       block.Data{MinerTag: "test", Txs: txs},
		Nonce:      0,
		Difficulty: difficulty,
	}
	for {
		b := block.New(h)
		if hash.MeetsDifficulty(b.Hash, difficulty) {
			return b
		}
		h.Nonce++
	}
}

func Test_GenesisIsDeterministic(t *testing.T) {
	g1 := block.Genesis()
	g2 := block.Genesis()

	if g1.Hash != g2.Hash {
		t.Fatalf("Should produce the same genesis hash every time: %s vs %s", g1.Hash, g2.Hash)
	}
	if g1.Height != 0 || g1.Timestamp != 0 || g1.Nonce != 0 || g1.Difficulty != 0 {
		t.Fatal("Should produce the fixed genesis header fields.")
	}
	if g1.PrevHash != strings.Repeat("0", 64) {
		t.Fatalf("Should use the all-zero prev hash, got %s.", g1.PrevHash)
	}
	if len(g1.Data.Txs) != 0 {
		t.Fatal("Should carry no transactions.")
	}
	if g1.RecomputedHash() != g1.Hash {
		t.Fatal("Should carry a hash matching its own header.")
	}
}

func Test_ValidateHeader(t *testing.T) {
	genesis := block.Genesis()
	now := time.Now()
	coinbase := txn.NewCoinbase("miner", 1)
	good := mineChild(genesis, 1, []txn.Tx{coinbase}, now.UnixMilli())

	type table struct {
		name   string
		mutate func(b block.Block) block.Block
		expect error
	}

	tt := []table{
		{
			name:   "valid child",
			mutate: func(b block.Block) block.Block { return b },
			expect: nil,
		},
		{
			name:   "wrong height",
			mutate: func(b block.Block) block.Block { b.Height = 3; return b },
			expect: block.ErrBadHeight,
		},
		{
			name:   "wrong prev hash",
			mutate: func(b block.Block) block.Block { b.PrevHash = strings.Repeat("1", 64); return b },
			expect: block.ErrBadPrevHash,
		},
		{
			name:   "wrong difficulty",
			mutate: func(b block.Block) block.Block { b.Difficulty = 2; return b },
			expect: block.ErrBadDifficulty,
		},
		{
			name:   "tampered hash",
			mutate: func(b block.Block) block.Block { b.Nonce++; return b },
			expect: block.ErrHashMismatch,
		},
		{
			name: "timestamp too far in the future",
			mutate: func(b block.Block) block.Block {
				return mineChild(genesis, 1, []txn.Tx{coinbase}, now.Add(2*time.Minute).UnixMilli())
			},
			expect: block.ErrTimestampFuture,
		},
	}

	for _, tst := range tt {
		f := func(t *testing.T) {
			err := block.ValidateHeader(tst.mutate(good), genesis, 1, now)
			if tst.expect == nil {
				if err != nil {
					t.Fatalf("Test %s:\tShould accept the block: %s", tst.name, err)
				}
				return
			}
			if !errors.Is(err, tst.expect) {
				t.Logf("Test %s:\tgot: %v", tst.name, err)
				t.Logf("Test %s:\texp: %v", tst.name, tst.expect)
				t.Fatalf("Test %s:\tShould reject with the right reason.", tst.name)
			}
		}

		t.Run(tst.name, f)
	}
}

func Test_ApplyTransactionsRequiresCoinbase(t *testing.T) {
	genesis := block.Genesis()
	child := mineChild(genesis, 1, nil, time.Now().UnixMilli())

	if _, err := block.ApplyTransactions(child, utxo.NewSet()); !errors.Is(err, block.ErrMissingCoinbase) {
		t.Fatalf("Should reject a non-genesis block without a coinbase, got: %v", err)
	}
}
