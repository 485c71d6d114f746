package tree_test

import (
	"testing"
	"time"

	"github.com/coinforge/node/foundation/chain/block"
	"github.com/coinforge/node/foundation/chain/hash"
	"github.com/coinforge/node/foundation/chain/tree"
	"github.com/coinforge/node/foundation/chain/txn"
)

const difficulty = 1

// mineChild solves a valid child of parent carrying a coinbase for the
// child height. tag varies the miner tag so two children of the same
// parent get distinct hashes.
func mineChild(parent block.Block, tag string) block.Block {
	h := block.Header{
		Height:     parent.Height + 1,
		Timestamp:  parent.Timestamp + 1,
		PrevHash:   parent.Hash,
		Data:       block.Data{MinerTag: tag, Txs: []txn.Tx{txn.NewCoinbase("miner-"+tag, parent.Height+1)}},
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

// mineChain extends parent with n blocks and returns them in order.
func mineChain(parent block.Block, tag string, n int) []block.Block {
	out := make([]block.Block, 0, n)
	for i := 0; i < n; i++ {
		parent = mineChild(parent, tag)
		out = append(out, parent)
	}
	return out
}

func ingest(t *testing.T, tr *tree.Tree, b block.Block) tree.Report {
	t.Helper()
	return tr.Ingest(b, time.Now())
}

func Test_LinearGrowth(t *testing.T) {
	tr := tree.New(difficulty)
	chain := mineChain(block.Genesis(), "a", 3)

	for _, b := range chain {
		report := ingest(t, tr, b)
		if report.Outcome != tree.Stored {
			t.Fatalf("Should store block %d, got outcome %v err %v.", b.Height, report.Outcome, report.Err)
		}
	}

	tip := tr.CanonicalTip()
	if tip.Hash != chain[2].Hash {
		t.Fatalf("Should end on the last block, got %s.", tip.Hash)
	}
	if tr.CumulativeDifficulty(tip.Hash).Int64() != 3*difficulty {
		t.Fatalf("Should accumulate difficulty 3, got %v.", tr.CumulativeDifficulty(tip.Hash))
	}
	if tr.CanonicalUTXOs().Sum() != 3*txn.CoinbaseReward {
		t.Fatalf("Should mint one reward per block, got %v.", tr.CanonicalUTXOs().Sum())
	}
}

func Test_Idempotence(t *testing.T) {
	tr := tree.New(difficulty)
	b := mineChild(block.Genesis(), "a")

	if report := ingest(t, tr, b); report.Outcome != tree.Stored {
		t.Fatalf("Should store the block first time, got %v.", report.Outcome)
	}
	if report := ingest(t, tr, b); report.Outcome != tree.AlreadyKnown {
		t.Fatalf("Should ignore a re-delivered block, got %v.", report.Outcome)
	}

	// A structurally broken block is rejected the same way every time.
	bad := b
	bad.Hash = "not-a-hash"
	first := ingest(t, tr, bad)
	second := ingest(t, tr, bad)
	if first.Outcome != tree.Rejected || second.Outcome != tree.Rejected {
		t.Fatalf("Should reject the broken block both times, got %v then %v.", first.Outcome, second.Outcome)
	}
}

func Test_RejectsClaimedGenesis(t *testing.T) {
	tr := tree.New(difficulty)

	fake := block.New(block.Header{Height: 0, PrevHash: block.Genesis().PrevHash, Nonce: 7})
	if report := ingest(t, tr, fake); report.Outcome != tree.Rejected {
		t.Fatalf("Should reject a received genesis-height block, got %v.", report.Outcome)
	}
}

func Test_ForkChoice(t *testing.T) {
	tr := tree.New(difficulty)

	// Two blocks on branch a, then three on branch b from genesis.
	branchA := mineChain(block.Genesis(), "a", 2)
	for _, b := range branchA {
		ingest(t, tr, b)
	}
	if tr.CanonicalTipHash() != branchA[1].Hash {
		t.Fatal("Should sit on branch a before the longer branch arrives.")
	}

	branchB := mineChain(block.Genesis(), "b", 3)
	for i, b := range branchB {
		report := ingest(t, tr, b)
		if report.Outcome != tree.Stored {
			t.Fatalf("Should store branch b block %d, got %v err %v.", i, report.Outcome, report.Err)
		}
	}

	if tr.CanonicalTipHash() != branchB[2].Hash {
		t.Fatalf("Should switch to the heavier branch, got %s.", tr.CanonicalTipHash())
	}

	// UTXO state follows the new canonical chain.
	if got := tr.CanonicalUTXOs().Sum(); got != 3*txn.CoinbaseReward {
		t.Fatalf("Should reflect three coinbases, got %v.", got)
	}
}

func Test_ForkChoiceTieKeepsFirstTip(t *testing.T) {
	tr := tree.New(difficulty)

	first := mineChild(block.Genesis(), "a")
	second := mineChild(block.Genesis(), "b")

	ingest(t, tr, first)
	ingest(t, tr, second)

	if tr.CanonicalTipHash() != first.Hash {
		t.Fatal("Should keep the first-observed tip on an equal-difficulty tie.")
	}
}

func Test_OrphanDraining(t *testing.T) {
	// Ingesting {B2, B3} before B1 must converge to the same tip as the
	// in-order delivery.
	chain := mineChain(block.Genesis(), "a", 3)
	b1, b2, b3 := chain[0], chain[1], chain[2]

	outOfOrder := tree.New(difficulty)
	if report := ingest(t, outOfOrder, b2); report.Outcome != tree.Orphan {
		t.Fatalf("Should orphan b2, got %v.", report.Outcome)
	}
	if report := ingest(t, outOfOrder, b3); report.Outcome != tree.Orphan {
		t.Fatalf("Should orphan b3, got %v.", report.Outcome)
	}

	report := ingest(t, outOfOrder, b1)
	if report.Outcome != tree.Stored {
		t.Fatalf("Should store b1, got %v.", report.Outcome)
	}
	if len(report.Stored) != 3 {
		t.Fatalf("Should drain both orphans in one call, stored %d.", len(report.Stored))
	}

	inOrder := tree.New(difficulty)
	for _, b := range chain {
		ingest(t, inOrder, b)
	}

	if outOfOrder.CanonicalTipHash() != inOrder.CanonicalTipHash() {
		t.Fatal("Should converge to the same tip regardless of delivery order.")
	}
}

func Test_Diff(t *testing.T) {
	tr := tree.New(difficulty)

	branchA := mineChain(block.Genesis(), "a", 2)
	branchB := mineChain(block.Genesis(), "b", 3)
	for _, b := range append(append([]block.Block{}, branchA...), branchB...) {
		ingest(t, tr, b)
	}

	detached, attached := tr.Diff(branchA[1].Hash, branchB[2].Hash)

	if len(detached) != 2 || detached[0].Hash != branchA[0].Hash {
		t.Fatalf("Should detach branch a in fork order, got %d blocks.", len(detached))
	}
	if len(attached) != 3 || attached[2].Hash != branchB[2].Hash {
		t.Fatalf("Should attach branch b in fork order, got %d blocks.", len(attached))
	}
}

func Test_MaxDifficultyInvariant(t *testing.T) {
	tr := tree.New(difficulty)

	for _, b := range mineChain(block.Genesis(), "a", 2) {
		ingest(t, tr, b)
	}
	for _, b := range mineChain(block.Genesis(), "b", 4) {
		ingest(t, tr, b)
	}

	tipDiff := tr.CumulativeDifficulty(tr.CanonicalTipHash())
	for _, tip := range tr.Tips() {
		if tr.CumulativeDifficulty(tip).Cmp(tipDiff) > 0 {
			t.Fatalf("Should have no tip heavier than the canonical one: %s.", tip)
		}
	}
}

func Test_ReplaceWithChain(t *testing.T) {
	tr := tree.New(difficulty)
	for _, b := range mineChain(block.Genesis(), "a", 2) {
		ingest(t, tr, b)
	}

	remote := append([]block.Block{block.Genesis()}, mineChain(block.Genesis(), "b", 4)...)
	if err := tr.ReplaceWithChain(remote, time.Now()); err != nil {
		t.Fatalf("Should adopt the received chain: %s", err)
	}

	if tr.CanonicalTip().Hash != remote[4].Hash {
		t.Fatal("Should end on the received tip.")
	}
	if len(tr.Tips()) != 1 {
		t.Fatalf("Should discard side branches, got %d tips.", len(tr.Tips()))
	}

	// A chain with a foreign root is refused.
	bogus := mineChain(block.Genesis(), "c", 1)
	if err := tr.ReplaceWithChain(bogus, time.Now()); err == nil {
		t.Fatal("Should refuse a chain that does not start at genesis.")
	}
}
