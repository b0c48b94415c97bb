// Package node wires storage, consensus, chain, mempool and miner into a
// single ledger node that can be embedded in any binary.
package node

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/klingnet-ledger/config"
	"github.com/Klingon-tech/klingnet-ledger/internal/chain"
	"github.com/Klingon-tech/klingnet-ledger/internal/consensus"
	klog "github.com/Klingon-tech/klingnet-ledger/internal/log"
	"github.com/Klingon-tech/klingnet-ledger/internal/mempool"
	"github.com/Klingon-tech/klingnet-ledger/internal/miner"
	"github.com/Klingon-tech/klingnet-ledger/internal/rpc"
	"github.com/Klingon-tech/klingnet-ledger/internal/storage"
	"github.com/Klingon-tech/klingnet-ledger/pkg/block"
	"github.com/Klingon-tech/klingnet-ledger/pkg/tx"
	"github.com/Klingon-tech/klingnet-ledger/pkg/types"
)

// Node errors.
var (
	ErrRunning     = errors.New("node is already mining")
	ErrRPCDisabled = errors.New("rpc is disabled (set rpc.enabled)")
)

// Node is a fully-initialized ledger node.
type Node struct {
	cfg     *config.Config
	genesis *config.Genesis
	logger  zerolog.Logger

	// Core
	db     storage.DB
	engine *consensus.PoW
	ch     *chain.Chain
	pool   *mempool.Pool
	miner  *miner.Miner

	// RPC
	rpcServer  *rpc.Server
	rpcStarted bool

	// Lifecycle
	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	stopped bool
}

// New creates and initializes a Node. It opens storage, loads the chain and
// seals the network's genesis block on first run, but does NOT start block
// production. Call Start or MineBlocks for that.
func New(ctx context.Context, cfg *config.Config) (*Node, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	// ── 1. Init logger ──────────────────────────────────────────────
	logFile := expandHome(cfg.Log.File)
	if logFile == "" && cfg.Storage.Backend != storage.BackendMemory {
		logsDir := cfg.LogsDir()
		if err := os.MkdirAll(logsDir, 0755); err != nil {
			return nil, fmt.Errorf("creating logs dir: %w", err)
		}
		logFile = filepath.Join(logsDir, "klingnet-ledger.log")
	}
	if err := klog.Init(cfg.Log.Level, cfg.Log.JSON, logFile); err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	logger := klog.WithComponent("node")

	// ── 2. Genesis ──────────────────────────────────────────────────
	genesis := config.GenesisFor(cfg.Network)
	if cfg.Mining.TargetBits < genesis.TargetBits {
		return nil, fmt.Errorf("mining.targetbits %d is easier than the network minimum %d",
			cfg.Mining.TargetBits, genesis.TargetBits)
	}

	logger.Info().
		Str("chain_id", genesis.ChainID).
		Str("network", string(cfg.Network)).
		Str("settlement", cfg.Ledger.Settlement).
		Uint("target_bits", cfg.Mining.TargetBits).
		Msg("Starting Klingnet Ledger Node")

	// ── 3. Open storage ─────────────────────────────────────────────
	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}
	logger.Info().Str("backend", cfg.Storage.Backend).Str("path", cfg.DBDir()).Msg("Database opened")

	// ── 4. Consensus engine ─────────────────────────────────────────
	engine := newEngine(cfg, genesis)

	// ── 5. Chain ────────────────────────────────────────────────────
	ch, err := chain.New(storage.NewPrefixDB(db, cfg.DBPrefix()),
		chain.WithEngine(engine),
		chain.WithCacheMaxCost(cfg.Cache.MaxCost),
	)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create chain: %w", err)
	}

	if st := ch.State(); st.IsEmpty() {
		if err := initFromGenesis(ctx, ch, engine, genesis); err != nil {
			ch.Close()
			db.Close()
			return nil, fmt.Errorf("init from genesis: %w", err)
		}
		logger.Info().Str("tip", shortHash(ch.TipHash())).Msg("Chain initialized from genesis")
	} else {
		logger.Info().
			Uint64("length", ch.Height()).
			Str("tip", shortHash(ch.TipHash())).
			Msg("Chain resumed from database")
	}

	// ── 6. Mempool ──────────────────────────────────────────────────
	pool := mempool.New(mempool.DefaultMaxSize)

	// ── 7. Miner ────────────────────────────────────────────────────
	m, err := miner.New(ch, engine, miner.Config{
		MinerID:    cfg.Mining.MinerID,
		Reward:     cfg.Mining.Reward,
		Target:     block.TargetFromBits(cfg.Mining.TargetBits),
		Settlement: cfg.Settlement(),
	})
	if err != nil {
		ch.Close()
		db.Close()
		return nil, fmt.Errorf("create miner: %w", err)
	}

	n := &Node{
		cfg:     cfg,
		genesis: genesis,
		logger:  logger,
		db:      db,
		engine:  engine,
		ch:      ch,
		pool:    pool,
		miner:   m,
	}

	// ── 8. RPC server (started by StartRPC) ─────────────────────────
	if cfg.RPC.Enabled {
		n.rpcServer = rpc.New(cfg.RPC.Addr, ch, pool, genesis, engine, cfg.RPC)
	}
	return n, nil
}

// initFromGenesis seals the configured root block and appends it.
func initFromGenesis(ctx context.Context, ch *chain.Chain, engine *consensus.PoW, g *config.Genesis) error {
	blk, err := chain.GenesisFromConfig(g)
	if err != nil {
		return err
	}
	if err := engine.SealWithCancel(ctx, blk); err != nil {
		return fmt.Errorf("seal genesis: %w", err)
	}
	return ch.Append(blk)
}

// Chain returns the node's chain.
func (n *Node) Chain() *chain.Chain { return n.ch }

// Pool returns the node's mempool.
func (n *Node) Pool() *mempool.Pool { return n.pool }

// Genesis returns the network genesis parameters.
func (n *Node) Genesis() *config.Genesis { return n.genesis }

// Height returns the current chain length.
func (n *Node) Height() uint64 {
	return n.ch.Height()
}

// VerifyBlock checks blk's proof of work against the network's bounds.
func (n *Node) VerifyBlock(blk *block.Block) error {
	return n.engine.VerifyBlock(blk)
}

// SubmitTx queues a transfer for the next block.
func (n *Node) SubmitTx(t *tx.Transaction) (types.Hash, error) {
	id, err := n.pool.Add(t)
	if err != nil {
		return types.Hash{}, err
	}
	n.logger.Debug().Str("tx", shortHash(id)).Int("pool", n.pool.Count()).Msg("Transaction queued")
	return id, nil
}

// MineBlock mines one block from the pooled transactions and appends it.
func (n *Node) MineBlock(ctx context.Context) (*block.Block, []miner.Rejected, error) {
	blk, rejected, err := n.miner.MineFromPool(ctx, n.pool, 0)
	if err != nil {
		return nil, rejected, err
	}
	n.logger.Info().
		Uint64("length", blk.ChainLength()).
		Str("hash", shortHash(blk.Hash(true))).
		Int("txs", blk.TxCount()).
		Int("rejected", len(rejected)).
		Msg("Block appended")
	return blk, rejected, nil
}

// MineBlocks mines count blocks, or until ctx is done when count is zero.
// It returns the number of blocks appended.
func (n *Node) MineBlocks(ctx context.Context, count int) (int, error) {
	mined := 0
	for count <= 0 || mined < count {
		if _, _, err := n.MineBlock(ctx); err != nil {
			if ctx.Err() != nil && count <= 0 {
				return mined, nil
			}
			return mined, err
		}
		mined++
	}
	return mined, nil
}

// StartRPC begins serving JSON-RPC on the configured address.
func (n *Node) StartRPC() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.rpcServer == nil {
		return ErrRPCDisabled
	}
	if n.rpcStarted {
		return nil
	}
	if err := n.rpcServer.Start(); err != nil {
		return err
	}
	n.rpcStarted = true
	n.logger.Info().Str("addr", n.rpcServer.Addr()).Msg("RPC server listening")
	return nil
}

// RPCAddr returns the address the RPC server is listening on.
func (n *Node) RPCAddr() string {
	if n.rpcServer == nil {
		return ""
	}
	return n.rpcServer.Addr()
}

// Start launches continuous block production in the background.
func (n *Node) Start() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.cancel != nil {
		return ErrRunning
	}

	ctx, cancel := context.WithCancel(context.Background())
	n.cancel = cancel
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.runMiner(ctx)
	}()

	n.logger.Info().
		Uint64("length", n.ch.Height()).
		Str("tip", shortHash(n.ch.TipHash())).
		Str("miner", n.cfg.Mining.MinerID).
		Int("threads", n.cfg.Mining.Threads).
		Msg("Block production enabled")
	return nil
}

func (n *Node) runMiner(ctx context.Context) {
	mined, err := n.MineBlocks(ctx, 0)
	if err != nil {
		n.logger.Error().Err(err).Int("mined", mined).Msg("Block production failed")
		return
	}
	n.logger.Info().Int("mined", mined).Msg("Block production stopped")
}

// Stop stops block production and closes storage. It is safe to call twice.
func (n *Node) Stop() {
	n.mu.Lock()
	if n.stopped {
		n.mu.Unlock()
		return
	}
	n.stopped = true
	cancel := n.cancel
	rpcStarted := n.rpcStarted
	n.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	n.wg.Wait()

	if rpcStarted {
		n.rpcServer.Stop()
	}

	n.ch.Close()
	if n.db != nil {
		n.db.Close()
	}
	n.logger.Info().Msg("Goodbye!")
}
