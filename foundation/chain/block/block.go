// Package block defines the wire block type, genesis construction, header
// hashing, and the glue that runs a block's transactions through the UTXO
// engine.
package block

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/coinforge/node/foundation/chain/hash"
	"github.com/coinforge/node/foundation/chain/txn"
	"github.com/coinforge/node/foundation/chain/utxo"
)

// FutureTolerance is how far into the future a block's timestamp may sit
// relative to the receiving node's clock before it is rejected.
const FutureTolerance = 60 * time.Second

// Data is the payload of a block: the miner's free-form tag and the list
// of transactions, coinbase first.
type Data struct {
	MinerTag string   `json:"minerTag"`
	Txs      []txn.Tx `json:"txs"`
}

// Header is a block's fields excluding the hash, i.e. exactly what gets
// hashed to produce it.
type Header struct {
	Height     uint64 `json:"height"`
	Timestamp  int64  `json:"timestamp"`
	PrevHash   string `json:"prevHash"`
	Data       Data   `json:"data"`
	Nonce      uint64 `json:"nonce"`
	Difficulty int    `json:"difficulty"`
}

// Block is a mined or received block, immutable once constructed.
type Block struct {
	Header
	Hash string `json:"hash"`
}

// dataJSON renders Data the same way on every node so the header hash is
// reproducible; json.Marshal's field order follows struct declaration
// order and is therefore deterministic across implementations that share
// this Go type.
func dataJSON(d Data) []byte {
	b, err := json.Marshal(d)
	if err != nil {
		// Data only ever holds JSON-safe primitives produced by this
		// package; a marshal failure here means memory corruption.
		panic(fmt.Sprintf("block: marshal data: %v", err))
	}
	return b
}

// HeaderHash computes the header hash for h: SHA-256 over the textual
// concatenation height|timestamp|prevHash|JSON(data)|nonce|difficulty.
func HeaderHash(h Header) string {
	return hash.Block(hash.BlockHeaderFields{
		Height:     h.Height,
		Timestamp:  h.Timestamp,
		PrevHash:   h.PrevHash,
		DataJSON:   dataJSON(h.Data),
		Nonce:      h.Nonce,
		Difficulty: h.Difficulty,
	})
}

// New assembles a Block from a header, computing its hash.
func New(h Header) Block {
	return Block{Header: h, Hash: HeaderHash(h)}
}

// Genesis is the deterministic, hardcoded first block of every chain:
// height 0, timestamp 0, an all-zero prevHash, no transactions, difficulty
// 0, nonce 0. Its hash is identical on every node because every field
// that feeds the hash is fixed.
func Genesis() Block {
	h := Header{
		Height:     0,
		Timestamp:  0,
		PrevHash:   hash.ZeroHash,
		Data:       Data{MinerTag: "", Txs: nil},
		Nonce:      0,
		Difficulty: 0,
	}
	return New(h)
}

// MeetsDifficulty reports whether b's hash satisfies its own difficulty
// target.
func (b Block) MeetsDifficulty() bool {
	return hash.MeetsDifficulty(b.Hash, b.Difficulty)
}

// RecomputedHash returns the hash HeaderHash would produce for b's header,
// independent of whatever value is currently stored in b.Hash.
func (b Block) RecomputedHash() string {
	return HeaderHash(b.Header)
}

// =============================================================================
// Errors surfaced while validating a block's header shape against its
// parent. Transaction/UTXO replay errors are returned directly from
// ApplyTransactions / package utxo.

var (
	// ErrHashMismatch is returned when a block's declared hash does not
	// match its recomputed header hash.
	ErrHashMismatch = errors.New("block hash does not match header")
	// ErrDifficultyNotMet is returned when a block's hash does not satisfy
	// its declared difficulty.
	ErrDifficultyNotMet = errors.New("block hash does not meet difficulty")
	// ErrBadHeight is returned when a block's height is not parent height + 1.
	ErrBadHeight = errors.New("block height is not parent height + 1")
	// ErrBadPrevHash is returned when a block's prevHash does not match its
	// parent's hash.
	ErrBadPrevHash = errors.New("block prevHash does not match parent")
	// ErrBadDifficulty is returned when a block's difficulty does not match
	// the node's configured difficulty.
	ErrBadDifficulty = errors.New("block difficulty does not match configured difficulty")
	// ErrTimestampRegression is returned when a block's timestamp is
	// earlier than its parent's.
	ErrTimestampRegression = errors.New("block timestamp precedes parent")
	// ErrTimestampFuture is returned when a block's timestamp is too far
	// ahead of the receiving node's clock.
	ErrTimestampFuture = errors.New("block timestamp too far in the future")
	// ErrMissingCoinbase is returned when a non-genesis block's first
	// transaction is absent or not a valid coinbase.
	ErrMissingCoinbase = errors.New("block is missing a valid coinbase")
)

// ValidateHeader checks b's header against parent and the node's
// configured difficulty. now is the receiving node's clock, passed in
// rather than read internally so validation stays deterministic in tests.
func ValidateHeader(b Block, parent Block, difficulty int, now time.Time) error {
	if b.Height != parent.Height+1 {
		return fmt.Errorf("%w: got %d want %d", ErrBadHeight, b.Height, parent.Height+1)
	}
	if b.PrevHash != parent.Hash {
		return fmt.Errorf("%w: got %s want %s", ErrBadPrevHash, b.PrevHash, parent.Hash)
	}
	if b.Difficulty != difficulty {
		return fmt.Errorf("%w: got %d want %d", ErrBadDifficulty, b.Difficulty, difficulty)
	}
	if b.RecomputedHash() != b.Hash {
		return fmt.Errorf("%w: got %s want %s", ErrHashMismatch, b.Hash, b.RecomputedHash())
	}
	if !b.MeetsDifficulty() {
		return fmt.Errorf("%w: hash %s difficulty %d", ErrDifficultyNotMet, b.Hash, b.Difficulty)
	}
	if b.Timestamp < parent.Timestamp {
		return fmt.Errorf("%w: %d < %d", ErrTimestampRegression, b.Timestamp, parent.Timestamp)
	}
	if b.Timestamp > now.Add(FutureTolerance).UnixMilli() {
		return fmt.Errorf("%w: %d > %d", ErrTimestampFuture, b.Timestamp, now.Add(FutureTolerance).UnixMilli())
	}
	return nil
}

// toUTXOTx adapts a txn.Tx to the shape package utxo consumes.
func toUTXOTx(t txn.Tx) utxo.Tx {
	ins := make([]utxo.In, len(t.Ins))
	for i, in := range t.Ins {
		ins[i] = utxo.In{PrevTxID: in.PrevTxID, PrevOutIndex: in.PrevOutIndex}
	}
	outs := make([]utxo.Out, len(t.Outs))
	for i, out := range t.Outs {
		outs[i] = utxo.Out{Address: out.Address, Amount: out.Amount}
	}
	return utxo.Tx{ID: t.ID, Ins: ins, Outs: outs}
}

// ApplyTransactions runs b's transactions (coinbase validated against
// b.Height, remaining transactions validated against utxos) and returns
// the resulting UTXO set.
func ApplyTransactions(b Block, utxos utxo.Set) (utxo.Set, error) {
	if b.Height > 0 {
		if len(b.Data.Txs) == 0 {
			return utxo.Set{}, ErrMissingCoinbase
		}
		if err := txn.ValidateCoinbase(b.Data.Txs[0], b.Height); err != nil {
			return utxo.Set{}, fmt.Errorf("%w: %s", ErrMissingCoinbase, err)
		}
	}

	uTxs := make([]utxo.Tx, len(b.Data.Txs))
	byID := make(map[string]txn.Tx, len(b.Data.Txs))
	for i, t := range b.Data.Txs {
		uTxs[i] = toUTXOTx(t)
		byID[t.ID] = t
	}

	validate := func(ut utxo.Tx, snapshot utxo.Set) error {
		return txn.Validate(byID[ut.ID], snapshot)
	}

	return utxo.ApplyBlock(b.Height, uTxs, utxos, validate)
}
