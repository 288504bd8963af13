// Package genesis maintains access to the genesis file that carries the
// chain parameters every node on the network must agree on.
package genesis

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

// Genesis represents the genesis file.
type Genesis struct {
	Date            time.Time `json:"date"`             // Timestamp stamped into the genesis block.
	Difficulty      uint16    `json:"difficulty"`       // Number of leading hex zeros a block hash needs.
	Subsidy         uint64    `json:"subsidy"`          // Base reward added to the fees of every block.
	BootstrapHeight uint64    `json:"bootstrap_height"` // Chain length up to which spend checks are skipped.
}

// Default returns the parameters used when no genesis file is provided.
func Default() Genesis {
	return Genesis{
		Date:            time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC),
		Difficulty:      4,
		Subsidy:         30,
		BootstrapHeight: 1,
	}
}

// Load opens and consumes the genesis file. An empty path returns the
// default parameters.
func Load(path string) (Genesis, error) {
	if path == "" {
		return Default(), nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return Genesis{}, err
	}

	var genesis Genesis
	if err := json.Unmarshal(content, &genesis); err != nil {
		return Genesis{}, fmt.Errorf("decoding genesis file: %w", err)
	}

	if err := genesis.Validate(); err != nil {
		return Genesis{}, err
	}

	return genesis, nil
}

// Validate checks the parameters are usable.
func (g Genesis) Validate() error {
	if g.Difficulty == 0 || g.Difficulty > 64 {
		return errors.New("difficulty must be between 1 and 64")
	}

	if g.Date.IsZero() {
		return errors.New("date is required")
	}

	return nil
}
