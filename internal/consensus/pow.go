package consensus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/holiman/uint256"

	"github.com/Klingon-tech/klingnet-ledger/internal/log"
	"github.com/Klingon-tech/klingnet-ledger/pkg/block"
	"github.com/Klingon-tech/klingnet-ledger/pkg/crypto"
)

// PoW errors.
var (
	ErrInsufficientWork    = errors.New("hash does not meet target")
	ErrTargetTooEasy       = errors.New("block target is easier than allowed")
	ErrNonceSpaceExhausted = errors.New("proof space exhausted")
	ErrNilBlock            = errors.New("nil block")
)

// checkEvery is how many attempts pass between cancellation checks.
const checkEvery = 0xFFFF

// PoW implements proof-of-work sealing over the block's canonical hash.
// The target travels inside each block; the engine only bounds how easy
// that target may be.
type PoW struct {
	// MaxTarget is the easiest target VerifyBlock accepts. Nil accepts any.
	MaxTarget *uint256.Int

	// Threads controls the number of parallel sealing goroutines.
	// 0 or 1 = single-threaded (default). Each goroutine searches a
	// strided partition of the proof space.
	Threads int
}

// NewPoW creates a PoW engine that seals with the given number of threads.
func NewPoW(threads int) *PoW {
	return &PoW{Threads: threads}
}

// VerifyBlock checks that the block's hash is below its target and that the
// target is no easier than MaxTarget.
func (p *PoW) VerifyBlock(blk *block.Block) error {
	if blk == nil {
		return ErrNilBlock
	}
	if p.MaxTarget != nil && blk.Target().Gt(p.MaxTarget) {
		return fmt.Errorf("%w: %s > %s", ErrTargetTooEasy, blk.Target().Dec(), p.MaxTarget.Dec())
	}
	if !blk.VerifyProof() {
		return ErrInsufficientWork
	}
	return nil
}

// Seal searches for a proof meeting the block's target.
// If Threads > 1, the search runs in parallel goroutines.
func (p *PoW) Seal(blk *block.Block) error {
	return p.SealWithCancel(context.Background(), blk)
}

// SealWithCancel seals with cancellation support. When ctx is cancelled the
// search stops, ctx.Err() is returned and the block's proof is left as it was.
func (p *PoW) SealWithCancel(ctx context.Context, blk *block.Block) error {
	if blk == nil {
		return ErrNilBlock
	}
	if blk.Target().IsZero() {
		return fmt.Errorf("%w: zero target can never be met", ErrNonceSpaceExhausted)
	}

	start := time.Now()
	var (
		proof uint64
		err   error
	)
	if p.Threads <= 1 {
		proof, err = sealSingle(ctx, blk)
	} else {
		proof, err = sealParallel(ctx, blk, p.Threads)
	}
	if err != nil {
		return err
	}

	blk.SetProof(proof)
	log.Consensus.Debug().
		Uint64("proof", proof).
		Uint64("length", blk.ChainLength()).
		Dur("elapsed", time.Since(start)).
		Msg("Block sealed")
	return nil
}

// sealSingle searches proofs 0, 1, 2, ... on the calling goroutine.
func sealSingle(ctx context.Context, blk *block.Block) (uint64, error) {
	target := blk.Target()
	prefix, suffix := blk.ProofTemplate()
	var buf []byte

	for proof := uint64(0); ; proof++ {
		if proof&checkEvery == 0 {
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			default:
			}
		}

		buf = block.AppendProof(buf, prefix, proof, suffix)
		if block.MeetsTarget(crypto.Hash(buf), target) {
			return proof, nil
		}
		if proof == ^uint64(0) {
			return 0, ErrNonceSpaceExhausted
		}
	}
}

// sealParallel runs threads goroutines; goroutine i tries i, i+threads, ...
func sealParallel(ctx context.Context, blk *block.Block, threads int) (uint64, error) {
	target := blk.Target()
	prefix, suffix := blk.ProofTemplate()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		proof uint64
		err   error
	}
	found := make(chan result, 1)

	var wg sync.WaitGroup
	for i := 0; i < threads; i++ {
		wg.Add(1)
		start := uint64(i)
		stride := uint64(threads)
		go func() {
			defer wg.Done()
			var buf []byte

			for proof := start; ; proof += stride {
				if (proof/stride)&checkEvery == 0 && proof >= stride {
					select {
					case <-ctx.Done():
						return
					default:
					}
				}

				buf = block.AppendProof(buf, prefix, proof, suffix)
				if block.MeetsTarget(crypto.Hash(buf), target) {
					select {
					case found <- result{proof: proof}:
					default:
					}
					cancel()
					return
				}

				// Next step would wrap past max uint64.
				if proof > ^uint64(0)-stride {
					select {
					case found <- result{err: ErrNonceSpaceExhausted}:
					default:
					}
					return
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(found)
	}()

	select {
	case r, ok := <-found:
		if !ok {
			return 0, ErrNonceSpaceExhausted
		}
		return r.proof, r.err
	case <-ctx.Done():
		// A winner cancels ctx after sending, so prefer a pending result.
		select {
		case r, ok := <-found:
			if ok && r.err == nil {
				return r.proof, nil
			}
		default:
		}
		return 0, ctx.Err()
	}
}
