package txn

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
)

// GenerateKey creates a fresh Ed25519 keypair for a wallet account.
func GenerateKey() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	return ed25519.GenerateKey(rand.Reader)
}

// EncodePrivateKeyPEM renders an Ed25519 private key as a PEM block. The
// block carries the raw 64-byte private key, matching the raw-key
// convention EncodePublicKeyPEM uses for the public half.
func EncodePrivateKeyPEM(priv ed25519.PrivateKey) string {
	block := &pem.Block{Type: "PRIVATE KEY", Bytes: priv}
	return string(pem.EncodeToMemory(block))
}

// DecodePrivateKeyPEM parses a PEM block produced by EncodePrivateKeyPEM.
func DecodePrivateKeyPEM(data []byte) (ed25519.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("no PEM block found")
	}
	if len(block.Bytes) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("private key is %d bytes, want %d", len(block.Bytes), ed25519.PrivateKeySize)
	}
	return ed25519.PrivateKey(block.Bytes), nil
}

// DecodePublicKeyPEM parses a PEM block produced by EncodePublicKeyPEM.
func DecodePublicKeyPEM(data []byte) (ed25519.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("no PEM block found")
	}
	if len(block.Bytes) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("public key is %d bytes, want %d", len(block.Bytes), ed25519.PublicKeySize)
	}
	return ed25519.PublicKey(block.Bytes), nil
}

// LoadPrivateKey reads an Ed25519 private key PEM file from disk.
func LoadPrivateKey(path string) (ed25519.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return DecodePrivateKeyPEM(data)
}

// SavePrivateKey writes an Ed25519 private key PEM file to disk with
// owner-only permissions.
func SavePrivateKey(path string, priv ed25519.PrivateKey) error {
	return os.WriteFile(path, []byte(EncodePrivateKeyPEM(priv)), 0600)
}

// AddressFromPrivateKey derives the wallet address for the public half of
// priv.
func AddressFromPrivateKey(priv ed25519.PrivateKey) string {
	pub := priv.Public().(ed25519.PublicKey)
	return AddressFromPEM(EncodePublicKeyPEM(pub))
}
