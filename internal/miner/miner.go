// Package miner builds, fills and seals new blocks on top of the chain tip.
package miner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/holiman/uint256"

	"github.com/Klingon-tech/klingnet-ledger/internal/log"
	"github.com/Klingon-tech/klingnet-ledger/pkg/block"
	"github.com/Klingon-tech/klingnet-ledger/pkg/tx"
	"github.com/Klingon-tech/klingnet-ledger/pkg/types"
)

// ChainState is the part of the chain the miner builds on.
type ChainState interface {
	// Tip returns the last accepted block, or nil for an empty chain.
	Tip() *block.Block
	Append(blk *block.Block) error
}

// Sealer finds a proof for a block.
type Sealer interface {
	SealWithCancel(ctx context.Context, blk *block.Block) error
}

// Rejected records a pending transaction the new block did not accept.
type Rejected struct {
	ID  types.Hash
	Tx  *tx.Transaction
	Err error
}

// Config holds block production parameters.
type Config struct {
	MinerID    string
	Reward     int64        // Coinbase paid to MinerID; 0 skips the coinbase.
	Target     *uint256.Int // Nil means block.BaseTarget().
	Settlement block.SettlementMode
	Comment    string
	Now        func() time.Time // Nil means time.Now.
}

// Miner produces new blocks.
type Miner struct {
	chain  ChainState
	engine Sealer
	cfg    Config
}

// New creates a block producer.
func New(chain ChainState, engine Sealer, cfg Config) (*Miner, error) {
	if chain == nil || engine == nil {
		return nil, errors.New("miner needs a chain and a sealer")
	}
	if cfg.MinerID == "" {
		return nil, errors.New("miner id is empty")
	}
	if cfg.Reward < 0 || cfg.Reward > block.CoinbaseAllowance {
		return nil, fmt.Errorf("reward %d outside [0, %d]", cfg.Reward, block.CoinbaseAllowance)
	}
	if cfg.Target == nil {
		cfg.Target = block.BaseTarget()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Miner{chain: chain, engine: engine, cfg: cfg}, nil
}

// ProduceBlock builds a child of the tip (a root block on an empty chain),
// pays the coinbase, adds pending transactions with change going to the
// miner, and seals the result. Transactions the block refuses are returned
// as Rejected; they never abort production. The block is NOT appended.
func (m *Miner) ProduceBlock(ctx context.Context, pending []*tx.Transaction) (*block.Block, []Rejected, error) {
	parent := m.chain.Tip()

	timestamp := m.cfg.Now().UnixMilli()
	// Block timestamps are strictly increasing along the chain.
	if parent != nil && timestamp <= parent.Timestamp() {
		timestamp = parent.Timestamp() + 1
	}

	blk, err := block.New(parent,
		block.WithTarget(m.cfg.Target),
		block.WithTimestamp(timestamp),
		block.WithSettlement(m.cfg.Settlement),
		block.WithComment(m.cfg.Comment),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("new block: %w", err)
	}

	if m.cfg.Reward > 0 {
		coinbase := tx.NewCoinbase(map[string]int64{m.cfg.MinerID: m.cfg.Reward})
		if err := blk.AddTransaction(coinbase, m.cfg.Comment, m.cfg.MinerID); err != nil {
			return nil, nil, fmt.Errorf("coinbase: %w", err)
		}
	}

	var rejected []Rejected
	for _, t := range pending {
		if err := blk.AddTransaction(t, m.cfg.Comment, m.cfg.MinerID); err != nil {
			r := Rejected{Tx: t, Err: err}
			if t != nil {
				r.ID = t.ID()
			}
			rejected = append(rejected, r)
			log.Miner.Debug().Err(err).Str("tx", r.ID.String()).Msg("Transaction rejected")
		}
	}

	if err := m.engine.SealWithCancel(ctx, blk); err != nil {
		return nil, rejected, fmt.Errorf("seal block: %w", err)
	}

	log.Miner.Info().
		Uint64("length", blk.ChainLength()).
		Int("txs", blk.TxCount()).
		Int("rejected", len(rejected)).
		Uint64("proof", blk.Proof()).
		Msg("Block produced")
	return blk, rejected, nil
}

// Mine produces a block and appends it to the chain.
func (m *Miner) Mine(ctx context.Context, pending []*tx.Transaction) (*block.Block, []Rejected, error) {
	blk, rejected, err := m.ProduceBlock(ctx, pending)
	if err != nil {
		return nil, rejected, err
	}
	if err := m.chain.Append(blk); err != nil {
		return nil, rejected, fmt.Errorf("append block: %w", err)
	}
	return blk, rejected, nil
}

// Pool is the part of the mempool the miner drains.
type Pool interface {
	SelectForBlock(limit int) []*tx.Transaction
	RemoveBatch(ids []types.Hash)
}

// MineFromPool mines up to limit pooled transactions and removes both the
// included and the rejected ones from the pool once the block is appended.
// A transfer rejected for insufficient funds at the current tip is dropped
// too; the sender has to resubmit it once funded.
func (m *Miner) MineFromPool(ctx context.Context, pool Pool, limit int) (*block.Block, []Rejected, error) {
	pending := pool.SelectForBlock(limit)
	blk, rejected, err := m.Mine(ctx, pending)
	if err != nil {
		return nil, rejected, err
	}

	done := make([]types.Hash, 0, len(pending))
	for _, t := range pending {
		done = append(done, t.ID())
	}
	pool.RemoveBatch(done)
	if len(rejected) > 0 {
		log.Miner.Info().
			Uint64("length", blk.ChainLength()).
			Int("dropped", len(rejected)).
			Msg("Dropped rejected transactions from pool")
	}
	return blk, rejected, nil
}
