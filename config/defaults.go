package config

import "github.com/Klingon-tech/klingnet-ledger/pkg/block"

// DefaultMainnet returns the default node configuration for mainnet.
func DefaultMainnet() *Config {
	return &Config{
		Network: Mainnet,
		DataDir: DefaultDataDir(),
		Storage: StorageConfig{
			Backend: "badger",
		},
		Mining: MiningConfig{
			MinerID:    "miner",
			Threads:    1,
			TargetBits: block.BaseTargetBits,
			Reward:     block.CoinbaseAllowance,
		},
		Ledger: LedgerConfig{
			Settlement: block.SettleLegacy.String(),
		},
		Cache: CacheConfig{
			MaxCost: 64 << 20,
		},
		RPC: RPCConfig{
			Enabled: false,
			Addr:    "127.0.0.1:8645",
		},
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
	}
}

// DefaultTestnet returns the default node configuration for testnet.
// Testnet blocks are about 16 times cheaper to seal.
func DefaultTestnet() *Config {
	cfg := DefaultMainnet()
	cfg.Network = Testnet
	cfg.Mining.TargetBits = block.BaseTargetBits - 4
	cfg.RPC.Addr = "127.0.0.1:18645"
	return cfg
}

// Default returns the default node configuration for the given network.
func Default(network NetworkType) *Config {
	switch network {
	case Testnet:
		return DefaultTestnet()
	default:
		return DefaultMainnet()
	}
}
