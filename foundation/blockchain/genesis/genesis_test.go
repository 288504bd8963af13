package genesis_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ardanlabs/p2pledger/foundation/blockchain/genesis"
)

func Test_Load(t *testing.T) {
	g, err := genesis.Load("")
	if err != nil {
		t.Fatalf("Should be able to get the default genesis: %s", err)
	}

	if g != genesis.Default() {
		t.Fatalf("Should get the default genesis for an empty path.")
	}

	path := filepath.Join(t.TempDir(), "genesis.json")
	data := `{"date":"2026-01-01T00:00:00Z","difficulty":2,"subsidy":50,"bootstrap_height":3}`
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatalf("Should be able to write the genesis file: %s", err)
	}

	g, err = genesis.Load(path)
	if err != nil {
		t.Fatalf("Should be able to load the genesis file: %s", err)
	}

	if g.Difficulty != 2 || g.Subsidy != 50 || g.BootstrapHeight != 3 {
		t.Logf("got: %+v", g)
		t.Fatalf("Should get back the values from the file.")
	}

	bad := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(bad, []byte(`{"date":"2026-01-01T00:00:00Z","difficulty":0}`), 0600); err != nil {
		t.Fatalf("Should be able to write the genesis file: %s", err)
	}

	if _, err := genesis.Load(bad); err == nil {
		t.Fatalf("Should reject a zero difficulty.")
	}
}
