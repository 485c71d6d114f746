package hash_test

import (
	"strings"
	"testing"

	"github.com/coinforge/node/foundation/chain/hash"
)

func Test_MeetsDifficulty(t *testing.T) {
	type table struct {
		name       string
		hash       string
		difficulty int
		expect     bool
	}

	tt := []table{
		{name: "zero difficulty always passes", hash: "ffff", difficulty: 0, expect: true},
		{name: "one leading zero", hash: "0abc" + strings.Repeat("0", 60), difficulty: 1, expect: true},
		{name: "missing leading zero", hash: "a" + strings.Repeat("0", 63), difficulty: 1, expect: false},
		{name: "three leading zeros", hash: "000a" + strings.Repeat("f", 60), difficulty: 3, expect: true},
		{name: "three needed two present", hash: "00a0" + strings.Repeat("f", 60), difficulty: 3, expect: false},
		{name: "full zero hash at max difficulty", hash: strings.Repeat("0", 64), difficulty: 64, expect: true},
		{name: "difficulty out of range", hash: strings.Repeat("0", 64), difficulty: 65, expect: false},
		{name: "negative difficulty", hash: strings.Repeat("0", 64), difficulty: -1, expect: false},
	}

	for _, tst := range tt {
		f := func(t *testing.T) {
			got := hash.MeetsDifficulty(tst.hash, tst.difficulty)
			if got != tst.expect {
				t.Logf("Test %s:\tgot: %v", tst.name, got)
				t.Logf("Test %s:\texp: %v", tst.name, tst.expect)
				t.Fatalf("Test %s:\tShould report the right difficulty match.", tst.name)
			}
		}

		t.Run(tst.name, f)
	}
}

func Test_BlockHash(t *testing.T) {
	f := hash.BlockHeaderFields{
		Height:     1,
		Timestamp:  1000,
		PrevHash:   strings.Repeat("0", 64),
		DataJSON:   []byte(`{"minerTag":"","txs":null}`),
		Nonce:      42,
		Difficulty: 2,
	}

	h1 := hash.Block(f)
	h2 := hash.Block(f)

	if h1 != h2 {
		t.Fatalf("Should produce the same hash for the same header: %s vs %s", h1, h2)
	}
	if len(h1) != 64 || strings.ToLower(h1) != h1 {
		t.Fatalf("Should produce 64 lowercase hex characters: %q", h1)
	}

	f.Nonce = 43
	if hash.Block(f) == h1 {
		t.Fatal("Should produce a different hash when the nonce changes.")
	}
}

func Test_TxHash(t *testing.T) {
	f := hash.TxFields{
		Ins:  []hash.TxInFields{{PrevTxID: "aa", PrevOutIndex: 0}, {PrevTxID: "bb", PrevOutIndex: 1}},
		Outs: []hash.TxOutFields{{Address: "addr1", Amount: 30}, {Address: "addr2", Amount: 70}},
	}

	id := hash.Tx(f)
	if len(id) != 64 {
		t.Fatalf("Should produce 64 hex characters: %q", id)
	}

	// Swapping input order must change the id.
	swapped := hash.TxFields{
		Ins:  []hash.TxInFields{f.Ins[1], f.Ins[0]},
		Outs: f.Outs,
	}
	if hash.Tx(swapped) == id {
		t.Fatal("Should produce a different id when the input order changes.")
	}

	// Changing an amount must change the id.
	bumped := hash.TxFields{
		Ins:  f.Ins,
		Outs: []hash.TxOutFields{{Address: "addr1", Amount: 31}, {Address: "addr2", Amount: 70}},
	}
	if hash.Tx(bumped) == id {
		t.Fatal("Should produce a different id when an amount changes.")
	}
}
