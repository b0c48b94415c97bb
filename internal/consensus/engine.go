// Package consensus seals blocks with proof of work and checks the result.
package consensus

import "github.com/Klingon-tech/klingnet-ledger/pkg/block"

// Engine is the interface for consensus implementations.
type Engine interface {
	// VerifyBlock checks the block's proof against consensus rules.
	VerifyBlock(blk *block.Block) error
	// Seal searches for a proof and stores it in the block.
	Seal(blk *block.Block) error
}
