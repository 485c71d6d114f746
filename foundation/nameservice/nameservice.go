// Package nameservice reads a folder of Ed25519 key PEM files and creates
// a name service lookup so addresses can be displayed by a human name.
package nameservice

import (
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"strings"

	"github.com/coinforge/node/foundation/chain/txn"
)

// NameService maintains a map of addresses for name lookup.
type NameService struct {
	addresses map[string]string
}

// New constructs a name service from the key files in the given folder.
// Each <name>.pem private key file maps its derived address to <name>.
func New(root string) (*NameService, error) {
	ns := NameService{
		addresses: make(map[string]string),
	}

	fn := func(fileName string, info fs.FileInfo, err error) error {
		if err != nil {
			return fmt.Errorf("walkdir failure: %w", err)
		}

		if path.Ext(fileName) != ".pem" {
			return nil
		}

		privateKey, err := txn.LoadPrivateKey(fileName)
		if err != nil {
			return err
		}

		address := txn.AddressFromPrivateKey(privateKey)
		ns.addresses[address] = strings.TrimSuffix(path.Base(fileName), ".pem")

		return nil
	}

	if err := filepath.Walk(root, fn); err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}

	return &ns, nil
}

// Lookup returns the name for the specified address.
func (ns *NameService) Lookup(address string) string {
	name, exists := ns.addresses[address]
	if !exists {
		return address
	}
	return name
}

// Copy returns a copy of the map of names and addresses.
func (ns *NameService) Copy() map[string]string {
	cpy := make(map[string]string, len(ns.addresses))
	for address, name := range ns.addresses {
		cpy[address] = name
	}
	return cpy
}
