package main

import (
	"context"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Klingon-tech/klingnet-ledger/config"
	"github.com/Klingon-tech/klingnet-ledger/internal/node"
)

// app carries the resolved configuration from the root command to its
// subcommands.
type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{v: config.NewViper()}

	root := &cobra.Command{
		Use:           "klingnet-ledger",
		Short:         "Proof-of-work balance ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.loadConfig()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default <datadir>/klingnet-ledger.toml)")
	pf.String("datadir", "", "data directory (default "+config.DefaultDataDir()+")")
	pf.String("network", "", "network: mainnet or testnet")
	pf.String("backend", "", "storage backend: memory, badger or leveldb")
	pf.String("miner", "", "account credited with block rewards and change")
	pf.Int("threads", 0, "sealing goroutines")
	pf.Uint("target-bits", 0, "difficulty: target is (2^256-1) >> bits")
	pf.String("settlement", "", "settlement mode: legacy or double-entry")
	pf.String("rpc-addr", "", "JSON-RPC listen address (serve) or target (rpc)")
	pf.String("log-level", "", "log level: trace, debug, info, warn, error or off")

	bind := map[string]string{
		"datadir":           "datadir",
		"network":           "network",
		"storage.backend":   "backend",
		"mining.minerid":    "miner",
		"mining.threads":    "threads",
		"mining.targetbits": "target-bits",
		"ledger.settlement": "settlement",
		"rpc.addr":          "rpc-addr",
		"log.level":         "log-level",
	}
	for key, flag := range bind {
		a.v.BindPFlag(key, pf.Lookup(flag))
	}

	root.AddCommand(
		newInitCmd(a),
		newMineCmd(a),
		newTxCmd(a),
		newBalanceCmd(a),
		newBlockCmd(a),
		newVerifyCmd(a),
		newStatusCmd(a),
		newServeCmd(a),
		newRPCCmd(a),
	)
	return root
}

// loadConfig reads the config file and resolves the layered configuration.
func (a *app) loadConfig() error {
	path := a.cfgFile
	if path == "" {
		dataDir := a.v.GetString("datadir")
		if dataDir == "" {
			dataDir = config.DefaultDataDir()
		}
		path = filepath.Join(dataDir, "klingnet-ledger.toml")
	}
	if err := config.ReadFile(a.v, path); err != nil {
		return err
	}

	cfg, err := config.Load(a.v)
	if err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}

// openNode starts a node on the resolved config. The caller must Stop it.
func (a *app) openNode(ctx context.Context) (*node.Node, error) {
	if err := config.EnsureDataDirs(a.cfg); err != nil {
		return nil, err
	}
	return node.New(ctx, a.cfg)
}
