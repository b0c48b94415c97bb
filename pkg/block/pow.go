package block

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/holiman/uint256"

	"github.com/Klingon-tech/klingnet-ledger/pkg/crypto"
	"github.com/Klingon-tech/klingnet-ledger/pkg/types"
)

// BaseTargetBits is the right shift applied to 2^256-1 to get the default
// target: a random hash meets it with probability about 2^-20.
const BaseTargetBits = 20

// maxUint256 is 2^256 - 1.
var maxUint256 = new(uint256.Int).SetAllOne()

// TargetFromBits returns (2^256 - 1) >> bits. Larger bits means harder work.
func TargetFromBits(bits uint) *uint256.Int {
	if bits >= 256 {
		return new(uint256.Int)
	}
	return new(uint256.Int).Rsh(maxUint256, bits)
}

// BaseTarget returns the default proof-of-work target.
func BaseTarget() *uint256.Int {
	return TargetFromBits(BaseTargetBits)
}

// MeetsTarget reports whether h, read as a big-endian unsigned integer, is
// strictly less than target.
func MeetsTarget(h types.Hash, target *uint256.Int) bool {
	return new(uint256.Int).SetBytes32(h[:]).Lt(target)
}

// Hash computes the BLAKE3-256 digest of the block's canonical encoding.
// Hash(true).String() is the hex form used for chaining.
func (b *Block) Hash(includeUTXO bool) types.Hash {
	return crypto.Hash(b.Serialize(includeUTXO))
}

// HashWithProof returns the hash the block would have with the given proof,
// without modifying the block. The balance table is always included.
func (b *Block) HashWithProof(proof uint64) types.Hash {
	return crypto.Hash(encode(b.wire(true, proof)))
}

// VerifyProof reports whether the block's hash is below its target.
// A false result is an expected outcome during proof search, not an error.
func (b *Block) VerifyProof() bool {
	return MeetsTarget(b.Hash(true), b.target)
}

// proofField is how the proof field starts in the canonical encoding. Quotes
// inside JSON strings are escaped, so this sequence only occurs once.
var proofField = []byte(`"proof":"`)

// ProofTemplate splits the canonical encoding (with balances) around the
// proof digits. For any proof p,
//
//	crypto.Hash(prefix + strconv.AppendUint(nil, p, 10) + suffix) == b.HashWithProof(p)
//
// so a search loop formats only the proof on each attempt.
func (b *Block) ProofTemplate() (prefix, suffix []byte) {
	enc := encode(b.wire(true, 0))
	i := bytes.LastIndex(enc, proofField)
	if i < 0 {
		panic(fmt.Sprintf("block: proof field missing from encoding %q", enc))
	}
	start := i + len(proofField)
	// Skip the placeholder "0".
	return enc[:start:start], enc[start+1:]
}

// AppendProof appends the encoding of proof to a template prefix, followed by
// suffix, reusing dst.
func AppendProof(dst, prefix []byte, proof uint64, suffix []byte) []byte {
	dst = append(dst[:0], prefix...)
	dst = strconv.AppendUint(dst, proof, 10)
	return append(dst, suffix...)
}
