package consensus

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-ledger/pkg/block"
)

// Linkage errors.
var (
	ErrBadParent     = errors.New("block does not extend the tip")
	ErrBadLength     = errors.New("block chain length is not tip + 1")
	ErrGenesisExists = errors.New("chain already has a genesis block")
)

// Validator checks a block against the tip it is meant to extend.
type Validator struct {
	engine Engine
}

// NewValidator creates a block validator with the given consensus engine.
func NewValidator(engine Engine) *Validator {
	return &Validator{engine: engine}
}

// ValidateBlock checks linkage to tip (nil for an empty chain) and then the
// proof. Linkage comes first so a cheap mismatch is reported without hashing.
func (v *Validator) ValidateBlock(tip, blk *block.Block) error {
	if blk == nil {
		return ErrNilBlock
	}

	if tip == nil {
		if !blk.IsGenesis() {
			return fmt.Errorf("%w: empty chain needs a genesis block, got length %d",
				ErrBadParent, blk.ChainLength())
		}
	} else {
		if blk.IsGenesis() {
			return ErrGenesisExists
		}
		prev, _ := blk.PrevBlockHash()
		if tipHash := tip.Hash(true); prev != tipHash {
			return fmt.Errorf("%w: prev %s, tip %s", ErrBadParent, prev, tipHash)
		}
		if blk.ChainLength() != tip.ChainLength()+1 {
			return fmt.Errorf("%w: got %d, tip %d", ErrBadLength, blk.ChainLength(), tip.ChainLength())
		}
	}

	if err := v.engine.VerifyBlock(blk); err != nil {
		return fmt.Errorf("consensus: %w", err)
	}
	return nil
}
