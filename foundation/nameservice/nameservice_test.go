package nameservice_test

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/ardanlabs/p2pledger/foundation/blockchain/signature"
	"github.com/ardanlabs/p2pledger/foundation/nameservice"
	"github.com/ethereum/go-ethereum/crypto"
)

func Test_Lookup(t *testing.T) {
	dir := t.TempDir()

	pk, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("Should be able to generate a key: %s", err)
	}
	if err := crypto.SaveECDSA(filepath.Join(dir, "kennedy.ecdsa"), pk); err != nil {
		t.Fatalf("Should be able to save the key: %s", err)
	}

	ns, err := nameservice.New(dir)
	if err != nil {
		t.Fatalf("Should be able to load the name service: %s", err)
	}

	address := signature.PublicKeyToAddress(pk.PublicKey)

	if got := ns.Lookup(address); got != "kennedy" {
		t.Fatalf("Should find the name for the address, got %q.", got)
	}

	if got := ns.Lookup(strings.ToLower(address)); got != "kennedy" {
		t.Fatalf("Should ignore the checksum casing, got %q.", got)
	}

	unknown := "0xdd6B972ffcc631a62CAE1BB9d80b7ff429c8ebA4"
	if got := ns.Lookup(unknown); got != unknown {
		t.Fatalf("Should return unknown addresses as is, got %q.", got)
	}
}
