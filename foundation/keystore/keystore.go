// Package keystore loads and creates the ECDSA key files used by nodes
// and wallets.
package keystore

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/crypto"
)

// Load reads the hex encoded private key stored in the file.
func Load(path string) (*ecdsa.PrivateKey, error) {
	privateKey, err := crypto.LoadECDSA(path)
	if err != nil {
		return nil, fmt.Errorf("loading key %s: %w", path, err)
	}

	return privateKey, nil
}

// Generate creates a new private key and stores it in the file. An existing
// file is never overwritten.
func Generate(path string) (*ecdsa.PrivateKey, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("key %s already exists", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating key folder: %w", err)
	}

	privateKey, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generating key: %w", err)
	}

	if err := crypto.SaveECDSA(path, privateKey); err != nil {
		return nil, fmt.Errorf("saving key %s: %w", path, err)
	}

	return privateKey, nil
}

// LoadOrGenerate reads the key stored in the file, creating it first when
// the file does not exist. It reports whether the key was created.
func LoadOrGenerate(path string) (*ecdsa.PrivateKey, bool, error) {
	privateKey, err := crypto.LoadECDSA(path)
	switch {
	case err == nil:
		return privateKey, false, nil

	case errors.Is(err, fs.ErrNotExist):
		privateKey, err := Generate(path)
		if err != nil {
			return nil, false, err
		}
		return privateKey, true, nil

	default:
		return nil, false, fmt.Errorf("loading key %s: %w", path, err)
	}
}
