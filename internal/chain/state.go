package chain

import "github.com/Klingon-tech/klingnet-ledger/pkg/types"

// State holds the current chain tip state.
type State struct {
	Length       uint64 // Chain length of the tip, 0 when empty.
	TipHash      types.Hash
	TipTimestamp int64 // Milliseconds since the Unix epoch.
}

// IsEmpty returns true if no block has been appended yet.
func (s *State) IsEmpty() bool {
	return s.Length == 0 && s.TipHash.IsZero()
}
