package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides: mining.minerid is read from
// KLEDGER_MINING_MINERID.
const EnvPrefix = "KLEDGER"

// NewViper returns a viper instance that reads KLEDGER_* environment
// variables and TOML config files.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetConfigType("toml")
	return v
}

// SetDefaults registers cfg's values as the lowest-priority layer of v.
// Every key must have a default for environment overrides to reach Unmarshal.
func SetDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("network", string(cfg.Network))
	v.SetDefault("datadir", cfg.DataDir)
	v.SetDefault("storage.backend", cfg.Storage.Backend)
	v.SetDefault("mining.minerid", cfg.Mining.MinerID)
	v.SetDefault("mining.threads", cfg.Mining.Threads)
	v.SetDefault("mining.targetbits", cfg.Mining.TargetBits)
	v.SetDefault("mining.reward", cfg.Mining.Reward)
	v.SetDefault("ledger.settlement", cfg.Ledger.Settlement)
	v.SetDefault("cache.maxcost", cfg.Cache.MaxCost)
	v.SetDefault("rpc.enabled", cfg.RPC.Enabled)
	v.SetDefault("rpc.addr", cfg.RPC.Addr)
	v.SetDefault("rpc.allowed", cfg.RPC.AllowedIPs)
	v.SetDefault("rpc.cors", cfg.RPC.CORSOrigins)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.file", cfg.Log.File)
	v.SetDefault("log.json", cfg.Log.JSON)
}

// ReadFile merges the TOML file at path into v. A missing file is not an error.
func ReadFile(v *viper.Viper, path string) error {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	return nil
}

// Load resolves the configuration from v, layering network defaults below
// whatever the config file, environment and bound flags provide, and
// validates the result.
func Load(v *viper.Viper) (*Config, error) {
	network := NetworkType(v.GetString("network"))
	if network == "" {
		network = Mainnet
	}
	SetDefaults(v, Default(network))

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// WriteDefaultConfig writes a commented default configuration file for
// network. An existing file is left untouched.
func WriteDefaultConfig(path string, network NetworkType) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	d := Default(network)
	content := `# Klingnet ledger node configuration (TOML)
#
# Every key can be overridden with an environment variable, for example
# KLEDGER_MINING_MINERID=alice, and by command line flags.

# Network: mainnet or testnet
network = "` + string(network) + `"

# Data directory
# datadir = "` + d.DataDir + `"

[storage]
# memory, badger or leveldb
backend = "` + d.Storage.Backend + `"

[mining]
# Account credited with block rewards and transaction change
minerid = "` + d.Mining.MinerID + `"
threads = ` + strconv.Itoa(d.Mining.Threads) + `
# Target is (2^256-1) >> targetbits
targetbits = ` + strconv.FormatUint(uint64(d.Mining.TargetBits), 10) + `
reward = ` + strconv.FormatInt(d.Mining.Reward, 10) + `

[ledger]
# legacy or double-entry
settlement = "` + d.Ledger.Settlement + `"

[cache]
# Block cache size in bytes (0 disables)
maxcost = ` + strconv.FormatInt(d.Cache.MaxCost, 10) + `

[rpc]
enabled = false
addr = "` + d.RPC.Addr + `"
# allowed = ["127.0.0.1", "10.0.0.0/8"]
# cors = ["*"]

[log]
level = "` + d.Log.Level + `"
# file = ""
json = false
`
	return os.WriteFile(path, []byte(content), 0644)
}
