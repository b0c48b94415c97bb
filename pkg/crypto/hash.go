// Package crypto provides the hash primitive used for block and transaction IDs.
package crypto

import (
	"github.com/Klingon-tech/klingnet-ledger/pkg/types"
	"github.com/zeebo/blake3"
)

// Hash computes a BLAKE3-256 hash of the input data.
func Hash(data []byte) types.Hash {
	return blake3.Sum256(data)
}

// HexDigest returns the hex-encoded BLAKE3-256 digest of data.
func HexDigest(data []byte) string {
	return Hash(data).String()
}
