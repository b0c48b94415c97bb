// Package tx defines the transaction record consumed by the block core.
package tx

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/Klingon-tech/klingnet-ledger/pkg/crypto"
	"github.com/Klingon-tech/klingnet-ledger/pkg/types"
)

// Transaction is a value transfer proposed for inclusion in a block.
type Transaction struct {
	TxDetails Details `json:"txDetails"`
}

// Details carries the sender and the payments of a transaction.
// An empty Input marks a coinbase (reward-creation) transaction.
type Details struct {
	Input  string           `json:"input,omitempty"`
	Output map[string]int64 `json:"output"`
}

// NewCoinbase creates a transaction with no sender.
func NewCoinbase(outputs map[string]int64) *Transaction {
	return &Transaction{TxDetails: Details{Output: copyOutputs(outputs)}}
}

// NewTransfer creates a transaction spending from input.
func NewTransfer(input string, outputs map[string]int64) *Transaction {
	return &Transaction{TxDetails: Details{Input: input, Output: copyOutputs(outputs)}}
}

// IsCoinbase returns true if the transaction has no sender.
func (tx *Transaction) IsCoinbase() bool {
	return tx.TxDetails.Input == ""
}

// Input returns the sending account, or "" for a coinbase.
func (tx *Transaction) Input() string {
	return tx.TxDetails.Input
}

// Recipients returns the output account ids in sorted order.
func (tx *Transaction) Recipients() []string {
	ids := make([]string, 0, len(tx.TxDetails.Output))
	for id := range tx.TxDetails.Output {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Amount returns the payment to id, or 0 if id is not a recipient.
func (tx *Transaction) Amount(id string) int64 {
	return tx.TxDetails.Output[id]
}

// Bytes returns the canonical JSON encoding of the record.
// Output keys are sorted by encoding/json, so equal records encode equally.
func (tx *Transaction) Bytes() []byte {
	data, err := json.Marshal(tx)
	if err != nil {
		// Only strings and integers are encoded.
		panic(fmt.Sprintf("tx: encode: %v", err))
	}
	return data
}

// ID computes the content-derived transaction identifier.
func (tx *Transaction) ID() types.Hash {
	return crypto.Hash(tx.Bytes())
}

// Clone returns a deep copy of the transaction.
func (tx *Transaction) Clone() *Transaction {
	return &Transaction{TxDetails: Details{
		Input:  tx.TxDetails.Input,
		Output: copyOutputs(tx.TxDetails.Output),
	}}
}

func copyOutputs(outputs map[string]int64) map[string]int64 {
	cp := make(map[string]int64, len(outputs))
	for id, amt := range outputs {
		cp[id] = amt
	}
	return cp
}
