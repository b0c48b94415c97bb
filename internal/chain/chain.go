// Package chain keeps the linear sequence of accepted blocks.
package chain

import (
	"fmt"
	"sync"

	"github.com/Klingon-tech/klingnet-ledger/internal/consensus"
	"github.com/Klingon-tech/klingnet-ledger/internal/log"
	"github.com/Klingon-tech/klingnet-ledger/internal/storage"
	"github.com/Klingon-tech/klingnet-ledger/internal/utxo"
	"github.com/Klingon-tech/klingnet-ledger/pkg/block"
	"github.com/Klingon-tech/klingnet-ledger/pkg/types"
)

// Append errors, shared with the consensus validator.
var (
	ErrBadParent        = consensus.ErrBadParent
	ErrBadLength        = consensus.ErrBadLength
	ErrGenesisExists    = consensus.ErrGenesisExists
	ErrInsufficientWork = consensus.ErrInsufficientWork
)

// Chain is a linear chain of proven blocks with a balance snapshot per block.
// There is no fork choice: a block is accepted only on top of the tip.
type Chain struct {
	mu        sync.RWMutex // Protects tip and state.
	state     State
	tip       *block.Block
	blocks    *BlockStore
	balances  *utxo.Store
	validator *consensus.Validator
}

type options struct {
	engine       consensus.Engine
	cacheMaxCost int64
}

// Option configures a Chain.
type Option func(*options)

// WithEngine sets the engine used to verify appended blocks.
// The default is a single-threaded PoW with no target bound.
func WithEngine(e consensus.Engine) Option {
	return func(o *options) { o.engine = e }
}

// WithCacheMaxCost bounds the block cache in bytes; zero disables it.
func WithCacheMaxCost(n int64) Option {
	return func(o *options) { o.cacheMaxCost = n }
}

// New opens the chain stored in db and loads its tip.
func New(db storage.DB, opts ...Option) (*Chain, error) {
	if db == nil {
		return nil, fmt.Errorf("storage db is nil")
	}
	o := options{engine: consensus.NewPoW(1), cacheMaxCost: DefaultCacheMaxCost}
	for _, opt := range opts {
		opt(&o)
	}

	blocks, err := NewBlockStore(db, o.cacheMaxCost)
	if err != nil {
		return nil, err
	}
	ch := &Chain{
		blocks:    blocks,
		balances:  utxo.NewStore(db),
		validator: consensus.NewValidator(o.engine),
	}

	tipHash, ok, err := blocks.GetTip()
	if err != nil {
		return nil, fmt.Errorf("recover tip: %w", err)
	}
	if ok {
		tip, err := blocks.GetBlock(tipHash)
		if err != nil {
			return nil, fmt.Errorf("load tip: %w", err)
		}
		ch.setTip(tipHash, tip)
		log.Chain.Info().
			Str("tip", tipHash.String()).
			Uint64("length", tip.ChainLength()).
			Msg("Chain loaded")
	}
	return ch, nil
}

// Close releases cached data. The database is owned by the caller.
func (c *Chain) Close() {
	c.blocks.Close()
}

func (c *Chain) setTip(hash types.Hash, blk *block.Block) {
	c.tip = blk
	c.state = State{Length: blk.ChainLength(), TipHash: hash, TipTimestamp: blk.Timestamp()}
}

// State returns a copy of the current chain state.
func (c *Chain) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Tip returns the last accepted block, or nil for an empty chain.
// The returned block is a private decoded copy.
func (c *Chain) Tip() *block.Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.tip == nil {
		return nil
	}
	blk, err := c.blocks.GetBlock(c.state.TipHash)
	if err != nil {
		log.Chain.Error().Err(err).Msg("Reload tip")
		return nil
	}
	return blk
}

// Height returns the chain length of the tip, 0 when empty.
func (c *Chain) Height() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.Length
}

// TipHash returns the hash of the current tip.
func (c *Chain) TipHash() types.Hash {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.TipHash
}

// Append validates blk against the tip and stores it as the new tip.
func (c *Chain) Append(blk *block.Block) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.validator.ValidateBlock(c.tip, blk); err != nil {
		log.Chain.Debug().Err(err).Uint64("length", blk.ChainLength()).Msg("Block rejected")
		return err
	}

	// Persist the snapshot first: an orphaned snapshot is harmless, a tip
	// without one is not.
	hash := blk.Hash(true)
	if err := c.balances.PutSnapshot(hash, blk.Ledger()); err != nil {
		return fmt.Errorf("store snapshot: %w", err)
	}
	if _, err := c.blocks.PutBlock(blk); err != nil {
		return fmt.Errorf("store block: %w", err)
	}

	// Keep a decoded copy so later changes to blk do not leak in.
	stored, err := c.blocks.GetBlock(hash)
	if err != nil {
		return fmt.Errorf("reload block: %w", err)
	}
	c.setTip(hash, stored)

	log.Chain.Info().
		Str("hash", hash.String()).
		Uint64("length", blk.ChainLength()).
		Int("txs", blk.TxCount()).
		Msg("Block appended")
	return nil
}

// Block retrieves a block by its hash.
func (c *Chain) Block(hash types.Hash) (*block.Block, error) {
	return c.blocks.GetBlock(hash)
}

// BlockAt retrieves the block with the given chain length.
func (c *Chain) BlockAt(length uint64) (*block.Block, error) {
	return c.blocks.GetBlockAt(length)
}

// Balance returns account's balance at the tip. An empty chain has no
// balances.
func (c *Chain) Balance(account string) (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.tip == nil {
		return 0, nil
	}
	return c.balances.Balance(c.state.TipHash, account)
}

// BalanceAt returns account's balance as of the block with the given hash.
func (c *Chain) BalanceAt(hash types.Hash, account string) (int64, error) {
	return c.balances.Balance(hash, account)
}

// TxBlock returns the most recent block containing the transaction id.
func (c *Chain) TxBlock(id types.Hash) (*block.Block, error) {
	hash, err := c.blocks.GetTxBlock(id)
	if err != nil {
		return nil, err
	}
	return c.blocks.GetBlock(hash)
}
