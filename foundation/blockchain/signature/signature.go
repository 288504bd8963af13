// Package signature provides helper functions for handling the ledger
// signature needs.
package signature

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// ZeroHash represents a hash code of zeros.
const ZeroHash string = "0x0000000000000000000000000000000000000000000000000000000000000000"

// ledgerID is an arbitrary number added to the recovery id so signatures
// produced here are recognisable as ours.
const ledgerID = 29

// Set of error variables for signature handling.
var (
	ErrInvalidSignature = errors.New("invalid signature")
	ErrSignerMismatch   = errors.New("signature does not belong to the expected address")
)

// =============================================================================

// Hash returns a unique string for the value.
func Hash(value any) string {
	data, err := json.Marshal(value)
	if err != nil {
		return ZeroHash
	}

	hash := sha256.Sum256(data)
	return hexutil.Encode(hash[:])
}

// Canonical returns the key-sorted JSON encoding of the value with any top
// level signature field removed. This is the form that gets signed.
func Canonical(value any) ([]byte, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("value is not an object: %w", err)
	}
	delete(m, "signature")

	// Go encodes map keys in sorted order at every depth.
	return json.Marshal(m)
}

// Sign uses the specified private key to sign the canonical form of the
// value. The signature is returned hex encoded in the [R|S|V] format.
func Sign(value any, privateKey *ecdsa.PrivateKey) (string, error) {
	data, err := stamp(value)
	if err != nil {
		return "", err
	}

	sig, err := crypto.Sign(data, privateKey)
	if err != nil {
		return "", err
	}

	publicKey, err := crypto.SigToPub(data, sig)
	if err != nil {
		return "", err
	}

	rs := sig[:crypto.RecoveryIDOffset]
	if !crypto.VerifySignature(crypto.FromECDSAPub(publicKey), data, rs) {
		return "", ErrInvalidSignature
	}

	sig[crypto.RecoveryIDOffset] += ledgerID

	return hexutil.Encode(sig), nil
}

// VerifySignature checks the signature values conform to our standards.
func VerifySignature(sigStr string) error {
	sig, err := toSignatureBytes(sigStr)
	if err != nil {
		return err
	}

	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:64])
	if !crypto.ValidateSignatureValues(sig[64], r, s, false) {
		return fmt.Errorf("%w: values out of range", ErrInvalidSignature)
	}

	return nil
}

// FromAddress extracts the address for the account that signed the value.
func FromAddress(value any, sigStr string) (string, error) {

	// NOTE: If the exact same value is not provided we recover the wrong
	// address. There is no public key to compare against, the key is
	// extracted from the value and the signature.

	sig, err := toSignatureBytes(sigStr)
	if err != nil {
		return "", err
	}

	data, err := stamp(value)
	if err != nil {
		return "", err
	}

	publicKey, err := crypto.SigToPub(data, sig)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}

	return crypto.PubkeyToAddress(*publicKey).String(), nil
}

// Verify checks the value was signed by the owner of the specified address.
func Verify(value any, sigStr string, address string) error {
	if err := VerifySignature(sigStr); err != nil {
		return err
	}

	from, err := FromAddress(value, sigStr)
	if err != nil {
		return err
	}

	if from != address {
		return fmt.Errorf("%w: got %s, exp %s", ErrSignerMismatch, from, address)
	}

	return nil
}

// PublicKeyToAddress derives the address for the specified public key.
func PublicKeyToAddress(pk ecdsa.PublicKey) string {
	return crypto.PubkeyToAddress(pk).String()
}

// =============================================================================

// stamp returns a hash of 32 bytes that represents the canonical form of
// the value with the ledger stamp embedded into the final hash.
func stamp(value any) ([]byte, error) {
	v, err := Canonical(value)
	if err != nil {
		return nil, err
	}

	txHash := sha256.Sum256(v)

	stamp := []byte("\x19Ledger Signed Message:\n32")

	return crypto.Keccak256(stamp, txHash[:]), nil
}

// toSignatureBytes decodes a hex signature and removes the ledger id from
// the recovery byte.
func toSignatureBytes(sigStr string) ([]byte, error) {
	sig, err := hexutil.Decode(sigStr)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}

	if len(sig) != crypto.SignatureLength {
		return nil, fmt.Errorf("%w: length %d", ErrInvalidSignature, len(sig))
	}

	v := sig[crypto.RecoveryIDOffset] - ledgerID
	if v != 0 && v != 1 {
		return nil, fmt.Errorf("%w: invalid recovery id", ErrInvalidSignature)
	}
	sig[crypto.RecoveryIDOffset] = v

	return sig, nil
}
