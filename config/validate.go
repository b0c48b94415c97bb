package config

import (
	"fmt"

	"github.com/Klingon-tech/klingnet-ledger/internal/log"
	"github.com/Klingon-tech/klingnet-ledger/internal/storage"
	"github.com/Klingon-tech/klingnet-ledger/pkg/block"
)

// Validate checks runtime node config for obvious operator mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.Network != Mainnet && cfg.Network != Testnet {
		return fmt.Errorf("network must be %q or %q", Mainnet, Testnet)
	}
	if cfg.DataDir == "" && cfg.Storage.Backend != storage.BackendMemory {
		return fmt.Errorf("datadir is required for storage.backend=%s", cfg.Storage.Backend)
	}

	switch cfg.Storage.Backend {
	case storage.BackendMemory, storage.BackendBadger, storage.BackendLevelDB:
	default:
		return fmt.Errorf("storage.backend must be memory, badger, or leveldb")
	}

	if cfg.Mining.MinerID == "" {
		return fmt.Errorf("mining.minerid is required")
	}
	if cfg.Mining.Threads < 0 {
		return fmt.Errorf("mining.threads must be >= 0")
	}
	if cfg.Mining.TargetBits > 255 {
		return fmt.Errorf("mining.targetbits must be in range [0, 255]")
	}
	if cfg.Mining.Reward < 0 || cfg.Mining.Reward > block.CoinbaseAllowance {
		return fmt.Errorf("mining.reward must be in range [0, %d]", block.CoinbaseAllowance)
	}

	mode, err := block.ParseSettlement(cfg.Ledger.Settlement)
	if err != nil {
		return fmt.Errorf("ledger.settlement: %w", err)
	}
	cfg.Ledger.Settlement = mode.String()

	if cfg.Cache.MaxCost < 0 {
		return fmt.Errorf("cache.maxcost must be >= 0")
	}
	if cfg.RPC.Enabled && cfg.RPC.Addr == "" {
		return fmt.Errorf("rpc.addr is required when rpc.enabled=true")
	}
	if !log.ValidLevel(cfg.Log.Level) {
		return fmt.Errorf("log.level must be trace, debug, info, warn, error, or off")
	}
	return nil
}

// Settlement returns the parsed settlement mode. Call after Validate.
func (c *Config) Settlement() block.SettlementMode {
	mode, _ := block.ParseSettlement(c.Ledger.Settlement)
	return mode
}
