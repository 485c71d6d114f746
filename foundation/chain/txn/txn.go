// Package txn implements the transaction type, its deterministic id, Ed25519
// signing/verification, and the structural, signature and conservation
// checks a transaction must pass before it can enter the mempool or a block.
package txn

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"math"

	"github.com/coinforge/node/foundation/chain/hash"
	"github.com/coinforge/node/foundation/chain/utxo"
)

// CoinbaseReward is the fixed amount minted to the miner's address by the
// first transaction of every non-genesis block. Difficulty retargeting and
// fees are both out of scope, so this value never changes at runtime.
const CoinbaseReward = 100

// TxIn spends one previously unspent output. For a coinbase input,
// PrevTxID is empty, PrevOutIndex carries the block height being mined,
// and Signature/PublicKey are both empty.
type TxIn struct {
	PrevTxID     string `json:"prevTxId"`
	PrevOutIndex uint64 `json:"prevOutIndex"`
	Signature    string `json:"signature"`
	PublicKey    string `json:"publicKey"`
}

// TxOut credits Amount to Address. Address is the lowercase hex SHA-256 of
// the PEM-encoded Ed25519 public key that owns the output.
type TxOut struct {
	Address string  `json:"address"`
	Amount  float64 `json:"amount"`
}

// Tx is an immutable value transfer: ID is the hash of Ins and Outs as
// described by NewTx, and a Tx is never mutated once constructed.
type Tx struct {
	ID   string  `json:"id"`
	Ins  []TxIn  `json:"ins"`
	Outs []TxOut `json:"outs"`
}

// AddressFromPEM returns the lowercase hex SHA-256 of a PEM-encoded Ed25519
// public key, which is the address convention used throughout the system.
func AddressFromPEM(pemKey string) string {
	sum := sha256.Sum256([]byte(pemKey))
	return hex.EncodeToString(sum[:])
}

// EncodePublicKeyPEM renders an Ed25519 public key as a PEM block, the
// representation addresses are derived from and transactions carry on the
// wire.
func EncodePublicKeyPEM(pub ed25519.PublicKey) string {
	block := &pem.Block{Type: "PUBLIC KEY", Bytes: pub}
	return string(pem.EncodeToMemory(block))
}

// computeID recomputes the transaction id from Ins and Outs per the wire
// format: (in.prevTxId || in.prevOutIndex)* then (out.address || out.amount)*,
// in input then output order.
func computeID(ins []TxIn, outs []TxOut) string {
	f := hash.TxFields{
		Ins:  make([]hash.TxInFields, len(ins)),
		Outs: make([]hash.TxOutFields, len(outs)),
	}
	for i, in := range ins {
		f.Ins[i] = hash.TxInFields{PrevTxID: in.PrevTxID, PrevOutIndex: in.PrevOutIndex}
	}
	for i, out := range outs {
		f.Outs[i] = hash.TxOutFields{Address: out.Address, Amount: out.Amount}
	}
	return hash.Tx(f)
}

// NewTx constructs a Tx with its id computed from ins and outs.
func NewTx(ins []TxIn, outs []TxOut) Tx {
	return Tx{
		ID:   computeID(ins, outs),
		Ins:  ins,
		Outs: outs,
	}
}

// NewCoinbase constructs the reward-minting first transaction of a
// non-genesis block mined at the given height, paying address the reward.
func NewCoinbase(address string, height uint64) Tx {
	ins := []TxIn{{PrevTxID: "", PrevOutIndex: height, Signature: "", PublicKey: ""}}
	outs := []TxOut{{Address: address, Amount: CoinbaseReward}}
	return NewTx(ins, outs)
}

// Sign signs the hex-decoded bytes of txID with priv, returning the hex
// signature to place on a TxIn. The message signed is the hex id
// interpreted as hex-decoded bytes, not the id's ASCII text; both ends of
// the wire must agree on this.
func Sign(txID string, priv ed25519.PrivateKey) (string, error) {
	msg, err := hex.DecodeString(txID)
	if err != nil {
		return "", fmt.Errorf("decoding tx id: %w", err)
	}
	sig := ed25519.Sign(priv, msg)
	return hex.EncodeToString(sig), nil
}

// =============================================================================
// Validation errors.

var (
	// ErrMalformed reports a structurally invalid transaction.
	ErrMalformed = errors.New("malformed transaction")
	// ErrBadID reports a transaction whose id does not match its contents.
	ErrBadID = errors.New("transaction id mismatch")
	// ErrUnknownUTXO reports an input that spends a UTXO that does not exist.
	ErrUnknownUTXO = errors.New("input spends unknown utxo")
	// ErrAddressMismatch reports an input whose public key does not match
	// the address recorded on the UTXO it spends.
	ErrAddressMismatch = errors.New("input public key does not match utxo address")
	// ErrBadSignature reports an input whose signature fails to verify.
	ErrBadSignature = errors.New("invalid signature")
	// ErrNotConserved reports a transaction whose inputs and outputs do not
	// balance.
	ErrNotConserved = errors.New("inputs do not equal outputs")
	// ErrBadCoinbase reports a coinbase that does not have the expected
	// shape for its block height.
	ErrBadCoinbase = errors.New("invalid coinbase transaction")
)

// structurallyValid checks the basic shape of a transaction: a non-empty
// id, non-empty ins and outs, and every amount finite and non-negative.
func structurallyValid(tx Tx) error {
	if tx.ID == "" {
		return fmt.Errorf("%w: empty id", ErrMalformed)
	}
	if len(tx.Ins) == 0 || len(tx.Outs) == 0 {
		return fmt.Errorf("%w: empty ins or outs", ErrMalformed)
	}
	for _, out := range tx.Outs {
		if math.IsNaN(out.Amount) || math.IsInf(out.Amount, 0) || out.Amount < 0 {
			return fmt.Errorf("%w: bad amount %v", ErrMalformed, out.Amount)
		}
	}
	return nil
}

// Validate runs the structural, id, signature and conservation checks
// against utxos. It never consults any other mempool or block state, only
// the snapshot it is given.
func Validate(tx Tx, utxos utxo.Set) error {
	if err := structurallyValid(tx); err != nil {
		return err
	}

	if computeID(tx.Ins, tx.Outs) != tx.ID {
		return ErrBadID
	}

	var inTotal float64
	for _, in := range tx.Ins {
		u, ok := utxos.Get(in.PrevTxID, in.PrevOutIndex)
		if !ok {
			return fmt.Errorf("%w: %s:%d", ErrUnknownUTXO, in.PrevTxID, in.PrevOutIndex)
		}

		pubKeyAddr := AddressFromPEM(in.PublicKey)
		if pubKeyAddr != u.Address {
			return fmt.Errorf("%w: have %s want %s", ErrAddressMismatch, pubKeyAddr, u.Address)
		}

		if err := verify(tx.ID, in); err != nil {
			return err
		}

		inTotal += u.Amount
	}

	var outTotal float64
	for _, out := range tx.Outs {
		outTotal += out.Amount
	}

	if inTotal != outTotal {
		return fmt.Errorf("%w: in=%v out=%v", ErrNotConserved, inTotal, outTotal)
	}

	return nil
}

// verify checks that in.Signature is a valid Ed25519 signature over the
// hex-decoded bytes of txID under in.PublicKey.
func verify(txID string, in TxIn) error {
	block, _ := pem.Decode([]byte(in.PublicKey))
	if block == nil {
		return fmt.Errorf("%w: malformed public key", ErrBadSignature)
	}
	pub := ed25519.PublicKey(block.Bytes)

	sig, err := hex.DecodeString(in.Signature)
	if err != nil {
		return fmt.Errorf("%w: malformed signature", ErrBadSignature)
	}

	msg, err := hex.DecodeString(txID)
	if err != nil {
		return fmt.Errorf("%w: malformed id", ErrBadSignature)
	}

	if !ed25519.Verify(pub, msg, sig) {
		return ErrBadSignature
	}

	return nil
}

// ValidateCoinbase checks that tx is a well-formed coinbase for
// blockHeight: exactly one synthetic input carrying the height, exactly
// one output paying CoinbaseReward, and a correctly recomputed id.
func ValidateCoinbase(tx Tx, blockHeight uint64) error {
	if len(tx.Ins) != 1 || len(tx.Outs) != 1 {
		return fmt.Errorf("%w: wrong in/out count", ErrBadCoinbase)
	}

	in := tx.Ins[0]
	if in.PrevTxID != "" || in.PrevOutIndex != blockHeight || in.Signature != "" || in.PublicKey != "" {
		return fmt.Errorf("%w: bad synthetic input", ErrBadCoinbase)
	}

	if tx.Outs[0].Amount != CoinbaseReward {
		return fmt.Errorf("%w: reward is %v want %v", ErrBadCoinbase, tx.Outs[0].Amount, float64(CoinbaseReward))
	}

	if computeID(tx.Ins, tx.Outs) != tx.ID {
		return ErrBadID
	}

	return nil
}
