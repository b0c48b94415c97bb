package mempool

import (
	"fmt"

	"github.com/Klingon-tech/klingnet-ledger/pkg/tx"
)

// Policy defaults.
const (
	DefaultMaxTxSize  = 100_000
	DefaultMaxOutputs = 1000
)

// Policy defines transaction admission rules. These are node-local limits,
// separate from the processor's validity rules.
type Policy struct {
	MaxTxSize  int // Maximum canonical encoding size in bytes.
	MaxOutputs int // Maximum number of recipients.
}

// DefaultPolicy returns a policy with sensible defaults.
func DefaultPolicy() *Policy {
	return &Policy{
		MaxTxSize:  DefaultMaxTxSize,
		MaxOutputs: DefaultMaxOutputs,
	}
}

// Check validates a transaction against policy rules.
func (p *Policy) Check(t *tx.Transaction) error {
	if size := len(t.Bytes()); p.MaxTxSize > 0 && size > p.MaxTxSize {
		return fmt.Errorf("transaction too large: %d bytes, max %d", size, p.MaxTxSize)
	}
	if n := len(t.TxDetails.Output); p.MaxOutputs > 0 && n > p.MaxOutputs {
		return fmt.Errorf("too many outputs: %d, max %d", n, p.MaxOutputs)
	}
	return nil
}
