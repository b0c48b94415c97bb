package chain

import (
	"fmt"

	"github.com/Klingon-tech/klingnet-ledger/config"
	"github.com/Klingon-tech/klingnet-ledger/pkg/block"
	"github.com/Klingon-tech/klingnet-ledger/pkg/tx"
)

// CreateGenesisBlock builds an unsealed root block whose only transaction is a
// coinbase paying reward to minerID. opts are applied before the coinbase.
func CreateGenesisBlock(minerID string, reward int64, opts ...block.Option) (*block.Block, error) {
	if minerID == "" {
		return nil, fmt.Errorf("genesis miner id is empty")
	}

	blk, err := block.New(nil, opts...)
	if err != nil {
		return nil, fmt.Errorf("create genesis: %w", err)
	}
	coinbase := tx.NewCoinbase(map[string]int64{minerID: reward})
	if err := blk.AddTransaction(coinbase, blk.Comment(), ""); err != nil {
		return nil, fmt.Errorf("genesis coinbase: %w", err)
	}
	return blk, nil
}

// GenesisFromConfig builds the network's unsealed root block. The result is
// identical for identical configs.
func GenesisFromConfig(g *config.Genesis) (*block.Block, error) {
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("genesis config: %w", err)
	}
	return CreateGenesisBlock(g.Miner, g.Reward,
		block.WithTarget(block.TargetFromBits(g.TargetBits)),
		block.WithTimestamp(g.Timestamp),
		block.WithComment(g.Comment),
	)
}
