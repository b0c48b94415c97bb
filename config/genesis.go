package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/Klingon-tech/klingnet-ledger/pkg/block"
	"github.com/Klingon-tech/klingnet-ledger/pkg/crypto"
	"github.com/Klingon-tech/klingnet-ledger/pkg/types"
)

// =============================================================================
// Genesis parameters (immutable, identical on every node of a network)
// =============================================================================

// Genesis describes a network's root block. Two nodes with the same Genesis
// build byte-identical root blocks.
type Genesis struct {
	ChainID    string `json:"chain_id"`
	Timestamp  int64  `json:"timestamp"` // Unix milliseconds.
	Comment    string `json:"comment,omitempty"`
	Miner      string `json:"miner"`  // Receives the genesis coinbase.
	Reward     int64  `json:"reward"` // Genesis coinbase amount.
	TargetBits uint   `json:"target_bits"`
}

// MainnetGenesis returns the mainnet genesis configuration.
func MainnetGenesis() *Genesis {
	return &Genesis{
		ChainID:    "klingnet-ledger-mainnet-1",
		Timestamp:  1770734103000, // 2026-02-10
		Comment:    "Klingnet Ledger Genesis",
		Miner:      "genesis",
		Reward:     block.CoinbaseAllowance,
		TargetBits: block.BaseTargetBits,
	}
}

// TestnetGenesis returns the testnet genesis configuration.
func TestnetGenesis() *Genesis {
	g := MainnetGenesis()
	g.ChainID = "klingnet-ledger-testnet-1"
	g.Comment = "Klingnet Ledger Testnet Genesis"
	g.TargetBits = block.BaseTargetBits - 4
	return g
}

// GenesisFor returns the genesis config for the given network.
func GenesisFor(network NetworkType) *Genesis {
	switch network {
	case Testnet:
		return TestnetGenesis()
	default:
		return MainnetGenesis()
	}
}

// =============================================================================
// Genesis file I/O
// =============================================================================

// LoadGenesis loads genesis configuration from a JSON file.
func LoadGenesis(path string) (*Genesis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading genesis file: %w", err)
	}

	var g Genesis
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parsing genesis file: %w", err)
	}
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("invalid genesis: %w", err)
	}
	return &g, nil
}

// Save writes the genesis configuration to a file.
func (g *Genesis) Save(path string) error {
	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding genesis: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing genesis file: %w", err)
	}
	return nil
}

// Validate checks that the genesis configuration is usable.
func (g *Genesis) Validate() error {
	if g.ChainID == "" {
		return fmt.Errorf("chain_id is required")
	}
	if g.Miner == "" {
		return fmt.Errorf("miner is required")
	}
	if g.Reward <= 0 || g.Reward > block.CoinbaseAllowance {
		return fmt.Errorf("reward must be in range [1, %d]", block.CoinbaseAllowance)
	}
	if g.TargetBits > 255 {
		return fmt.Errorf("target_bits must be in range [0, 255]")
	}
	if g.Timestamp < 0 {
		return fmt.Errorf("timestamp must not be negative")
	}
	return nil
}

// Hash returns a BLAKE3 hash of the genesis configuration.
// Used to identify the chain and detect genesis mismatches.
func (g *Genesis) Hash() (types.Hash, error) {
	data, err := json.Marshal(g)
	if err != nil {
		return types.Hash{}, err
	}
	return crypto.Hash(data), nil
}
