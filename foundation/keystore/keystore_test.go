package keystore_test

import (
	"path/filepath"
	"testing"

	"github.com/ardanlabs/p2pledger/foundation/keystore"
)

func Test_LoadOrGenerate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accounts", "node.ecdsa")

	first, created, err := keystore.LoadOrGenerate(path)
	if err != nil || !created {
		t.Fatalf("Should create the key on first use: created[%t] err[%v]", created, err)
	}

	second, created, err := keystore.LoadOrGenerate(path)
	if err != nil || created {
		t.Fatalf("Should load the existing key: created[%t] err[%v]", created, err)
	}

	if !first.Equal(second) {
		t.Fatalf("Should load the same key that was created.")
	}

	if _, err := keystore.Generate(path); err == nil {
		t.Fatalf("Should not overwrite an existing key.")
	}
}
