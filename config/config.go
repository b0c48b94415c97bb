// Package config handles application configuration.
//
// Configuration is split into two categories:
//   - Genesis parameters: fixed per network, must match across all nodes
//   - Node settings: runtime configuration, can vary per node
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// NetworkType identifies mainnet or testnet.
type NetworkType string

const (
	Mainnet NetworkType = "mainnet"
	Testnet NetworkType = "testnet"
)

// =============================================================================
// Node Configuration (runtime, per-node settings)
// =============================================================================

// Config holds node-specific runtime configuration.
type Config struct {
	Network NetworkType `mapstructure:"network"`
	DataDir string      `mapstructure:"datadir"`

	Storage StorageConfig `mapstructure:"storage"`
	Mining  MiningConfig  `mapstructure:"mining"`
	Ledger  LedgerConfig  `mapstructure:"ledger"`
	Cache   CacheConfig   `mapstructure:"cache"`
	RPC     RPCConfig     `mapstructure:"rpc"`
	Log     LogConfig     `mapstructure:"log"`
}

// StorageConfig selects the key-value backend.
type StorageConfig struct {
	Backend string `mapstructure:"backend"` // memory, badger or leveldb
}

// MiningConfig holds block production settings.
type MiningConfig struct {
	MinerID    string `mapstructure:"minerid"`    // Account credited with coinbase and change.
	Threads    int    `mapstructure:"threads"`    // Sealing goroutines.
	TargetBits uint   `mapstructure:"targetbits"` // Target is (2^256-1) >> TargetBits.
	Reward     int64  `mapstructure:"reward"`     // Coinbase per block.
}

// LedgerConfig holds balance-settlement settings.
type LedgerConfig struct {
	Settlement string `mapstructure:"settlement"` // legacy or double-entry
}

// CacheConfig bounds in-memory caches.
type CacheConfig struct {
	MaxCost int64 `mapstructure:"maxcost"` // Block cache size in bytes; 0 disables.
}

// RPCConfig holds JSON-RPC server settings.
type RPCConfig struct {
	Enabled     bool     `mapstructure:"enabled"`
	Addr        string   `mapstructure:"addr"`    // host:port
	AllowedIPs  []string `mapstructure:"allowed"` // IPs or CIDRs; empty allows all.
	CORSOrigins []string `mapstructure:"cors"`    // Allowed CORS origins ("*" = all).
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
	JSON  bool   `mapstructure:"json"`
}

// =============================================================================
// Directory helpers
// =============================================================================

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.klingnet-ledger
//	macOS:   ~/Library/Application Support/KlingnetLedger
//	Windows: %APPDATA%\KlingnetLedger
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".klingnet-ledger"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "KlingnetLedger")
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "KlingnetLedger")
		}
		return filepath.Join(home, "AppData", "Roaming", "KlingnetLedger")
	default:
		return filepath.Join(home, ".klingnet-ledger")
	}
}

// DBDir returns the database directory. Networks share it under distinct
// key prefixes.
func (c *Config) DBDir() string {
	return filepath.Join(c.DataDir, "chaindata")
}

// DBPrefix returns the key prefix that isolates this network's data.
func (c *Config) DBPrefix() []byte {
	return []byte(string(c.Network) + "/")
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "klingnet-ledger.toml")
}

// EnsureDataDirs creates the data directories if they do not exist.
func EnsureDataDirs(cfg *Config) error {
	dirs := []string{cfg.DataDir, cfg.LogsDir()}
	if cfg.Storage.Backend != "memory" {
		dirs = append(dirs, cfg.DBDir())
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}
