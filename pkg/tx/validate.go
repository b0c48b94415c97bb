package tx

import (
	"errors"
	"fmt"
	"math"
	"unicode/utf8"
)

// Validation errors.
var (
	ErrNoOutputs         = errors.New("transaction has no outputs")
	ErrNonPositiveOutput = errors.New("output amount is not positive")
	ErrOutputOverflow    = errors.New("output amounts overflow")
	ErrEmptyRecipient    = errors.New("output has empty recipient id")
	ErrInvalidUTF8       = errors.New("account id is not valid UTF-8")
)

// TotalOutput returns the sum of all output amounts.
// Every amount must be strictly positive; zero and negative payments are invalid.
func (tx *Transaction) TotalOutput() (int64, error) {
	var total int64
	for _, id := range tx.Recipients() {
		amt := tx.TxDetails.Output[id]
		if amt <= 0 {
			return 0, fmt.Errorf("output %q: %w: %d", id, ErrNonPositiveOutput, amt)
		}
		if total > math.MaxInt64-amt {
			return 0, fmt.Errorf("output %q: %w", id, ErrOutputOverflow)
		}
		total += amt
	}
	return total, nil
}

// CheckEncoding reports whether every account id survives a JSON round trip.
// Invalid UTF-8 would be rewritten to U+FFFD, so distinct ids could share an
// encoding and the transaction id would no longer identify the record.
func (tx *Transaction) CheckEncoding() error {
	if !utf8.ValidString(tx.TxDetails.Input) {
		return fmt.Errorf("input %q: %w", tx.TxDetails.Input, ErrInvalidUTF8)
	}
	for id := range tx.TxDetails.Output {
		if !utf8.ValidString(id) {
			return fmt.Errorf("output %q: %w", id, ErrInvalidUTF8)
		}
	}
	return nil
}

// Validate checks transaction structure for admission to the mempool. It is
// stricter than block acceptance: empty outputs and empty recipient ids are
// refused here. Balances are not checked.
func (tx *Transaction) Validate() error {
	if err := tx.CheckEncoding(); err != nil {
		return err
	}
	if len(tx.TxDetails.Output) == 0 {
		return ErrNoOutputs
	}
	if _, ok := tx.TxDetails.Output[""]; ok {
		return ErrEmptyRecipient
	}
	_, err := tx.TotalOutput()
	return err
}
