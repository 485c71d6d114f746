// Package hash provides the deterministic hashing primitives shared by the
// block header and transaction id calculations. Every hash in the system is
// a SHA-256 digest rendered as 64 lowercase hex characters.
package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// ZeroHash is the hardcoded previous-hash field of the genesis block: 64
// hex zero digits.
var ZeroHash = strings.Repeat("0", 64)

// Sum hashes the given byte slices concatenated in order and returns the
// lowercase hex digest.
func Sum(parts ...[]byte) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// SumString is a convenience wrapper for Sum over string parts.
func SumString(parts ...string) string {
	b := make([][]byte, len(parts))
	for i, p := range parts {
		b[i] = []byte(p)
	}
	return Sum(b...)
}

// BlockHeaderFields is the textual material that is hashed to produce a
// block's hash: height | timestamp | prevHash | JSON(data) | nonce | difficulty.
type BlockHeaderFields struct {
	Height     uint64
	Timestamp  int64
	PrevHash   string
	DataJSON   []byte
	Nonce      uint64
	Difficulty int
}

// Block computes the block header hash per the wire format: the textual
// concatenation of height, timestamp, prevHash, the JSON-encoded block data,
// nonce and difficulty.
func Block(f BlockHeaderFields) string {
	text := fmt.Sprintf("%d|%d|%s|%s|%d|%d", f.Height, f.Timestamp, f.PrevHash, f.DataJSON, f.Nonce, f.Difficulty)
	return SumString(text)
}

// TxFields is the ordered material that is hashed to produce a
// transaction's id: every input's (prevTxId || prevOutIndex), in order,
// followed by every output's (address || amount), in order.
type TxFields struct {
	Ins  []TxInFields
	Outs []TxOutFields
}

// TxInFields is the subset of a TxIn that participates in the id hash.
type TxInFields struct {
	PrevTxID     string
	PrevOutIndex uint64
}

// TxOutFields is the subset of a TxOut that participates in the id hash.
type TxOutFields struct {
	Address string
	Amount  float64
}

// Tx computes the transaction id per the wire format.
func Tx(f TxFields) string {
	text := ""
	for _, in := range f.Ins {
		text += fmt.Sprintf("%s%d", in.PrevTxID, in.PrevOutIndex)
	}
	for _, out := range f.Outs {
		text += fmt.Sprintf("%s%s", out.Address, formatAmount(out.Amount))
	}
	return SumString(text)
}

// formatAmount renders an amount deterministically, matching the number
// formatting a JSON encoder would produce for a non-negative float.
func formatAmount(amount float64) string {
	if amount == float64(int64(amount)) {
		return fmt.Sprintf("%d", int64(amount))
	}
	return fmt.Sprintf("%g", amount)
}

// MeetsDifficulty reports whether hexHash satisfies the proof-of-work
// target for difficulty: difficulty 0 always passes, otherwise the first
// difficulty hex digits of hexHash must be '0'. difficulty must be in
// [0, 64]; any other value never matches.
func MeetsDifficulty(hexHash string, difficulty int) bool {
	if difficulty == 0 {
		return true
	}
	if difficulty < 0 || difficulty > 64 {
		return false
	}
	if len(hexHash) < difficulty {
		return false
	}
	for i := 0; i < difficulty; i++ {
		if hexHash[i] != '0' {
			return false
		}
	}
	return true
}
