package block

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/Klingon-tech/klingnet-ledger/pkg/ledger"
	"github.com/Klingon-tech/klingnet-ledger/pkg/tx"
)

// CoinbaseAllowance caps the total output of a block's coinbase transaction.
const CoinbaseAllowance int64 = 1

// Transaction acceptance errors. Every rejection wraps ErrInvalidTransaction.
var (
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrNilTransaction     = errors.New("nil transaction")
	ErrInvalidComment     = errors.New("comment is not valid UTF-8")
	ErrDuplicateCoinbase  = errors.New("block already has a coinbase transaction")
	ErrCoinbaseTooLarge   = errors.New("coinbase output exceeds allowance")
	ErrInsufficientFunds  = errors.New("sender balance below total output")
)

// ChangeFunc receives the unspent change computed while a transaction is
// applied to the balance table.
type ChangeFunc func(change int64)

// CheckTransaction validates t against the current balances without
// changing anything. Rules, in order: at most one coinbase per block, every
// output strictly positive, a coinbase pays at most CoinbaseAllowance and a
// transfer pays at most the sender's balance. Account ids must be valid
// UTF-8 so the record encodes without loss.
func (b *Block) CheckTransaction(t *tx.Transaction) error {
	if err := b.checkTransaction(t); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidTransaction, err)
	}
	return nil
}

func (b *Block) checkTransaction(t *tx.Transaction) error {
	if t == nil {
		return ErrNilTransaction
	}
	if err := t.CheckEncoding(); err != nil {
		return err
	}
	coinbase := t.IsCoinbase()
	if coinbase && b.coinbase != nil {
		return ErrDuplicateCoinbase
	}

	var totalIn int64
	if !coinbase {
		totalIn = b.utxo.Balance(t.Input())
	}

	totalOut, err := t.TotalOutput()
	if err != nil {
		return err
	}

	if coinbase {
		if totalOut > CoinbaseAllowance {
			return fmt.Errorf("%w: %d > %d", ErrCoinbaseTooLarge, totalOut, CoinbaseAllowance)
		}
		return nil
	}
	if totalIn < totalOut {
		return fmt.Errorf("%w: %q has %d, pays %d", ErrInsufficientFunds, t.Input(), totalIn, totalOut)
	}
	return nil
}

// LegitTransaction reports whether t would be accepted. It never mutates the block.
func (b *Block) LegitTransaction(t *tx.Transaction) bool {
	return b.CheckTransaction(t) == nil
}

// AddTransaction validates t and, if legitimate, records it, sets the block
// comment and applies it to the balance table. When minerID is non-empty the
// transaction's unspent change is credited to minerID. Adding a transaction
// that is already recorded applies it again under the same id. On error the
// block is left exactly as it was.
func (b *Block) AddTransaction(t *tx.Transaction, comment, minerID string) error {
	if err := b.CheckTransaction(t); err != nil {
		if t == nil {
			return err
		}
		return fmt.Errorf("transaction %s: %w", t.ID(), err)
	}
	if !utf8.ValidString(comment) {
		return fmt.Errorf("transaction %s: %w: %w", t.ID(), ErrInvalidTransaction, ErrInvalidComment)
	}

	id := t.ID()
	rec := t.Clone()

	// Apply to a copy so an overflow part-way through leaves nothing behind.
	next := b.utxo.Clone()
	var onChange ChangeFunc
	var creditErr error
	if minerID != "" {
		onChange = func(change int64) {
			if err := next.Credit(minerID, change); err != nil && creditErr == nil {
				creditErr = err
			}
		}
	}
	if err := applyTransaction(next, rec.TxDetails, b.settlement, onChange); err != nil {
		return fmt.Errorf("transaction %s: %w: %w", id, ErrInvalidTransaction, err)
	}
	if creditErr != nil {
		return fmt.Errorf("transaction %s: %w: miner credit: %w", id, ErrInvalidTransaction, creditErr)
	}

	b.utxo = next
	b.transactions[id] = rec
	b.comment = comment
	if rec.IsCoinbase() {
		b.coinbase = rec
	}
	return nil
}

// applyTransaction moves balances for a validated transaction.
func applyTransaction(l *ledger.Ledger, d tx.Details, mode SettlementMode, onChange ChangeFunc) error {
	t := tx.Transaction{TxDetails: d}
	sum, err := t.TotalOutput()
	if err != nil {
		return err
	}
	if mode == SettleDoubleEntry {
		return applyDoubleEntry(l, &t, sum, onChange)
	}
	return applyLegacy(l, &t, sum, onChange)
}

// applyLegacy credits every recipient. When the sender is one of the
// recipients its change (balance minus total output) is reported and its
// entry is dropped before the self-payment is credited back. A sender that
// does not pay itself keeps its balance.
func applyLegacy(l *ledger.Ledger, t *tx.Transaction, sum int64, onChange ChangeFunc) error {
	input := t.Input()
	for _, id := range t.Recipients() {
		l.Ensure(id)
		if input != "" && id == input {
			change := l.Balance(input) - sum
			if onChange != nil {
				onChange(change)
			}
			l.Remove(input)
		}
		l.Ensure(id)
		if err := l.Credit(id, t.Amount(id)); err != nil {
			return err
		}
	}
	return nil
}

// applyDoubleEntry spends the sender's whole balance: recipients are
// credited and the remainder goes to onChange. Without a callback the
// remainder is burned.
func applyDoubleEntry(l *ledger.Ledger, t *tx.Transaction, sum int64, onChange ChangeFunc) error {
	var totalIn int64
	if !t.IsCoinbase() {
		totalIn = l.Balance(t.Input())
		l.Remove(t.Input())
	}
	for _, id := range t.Recipients() {
		if err := l.Credit(id, t.Amount(id)); err != nil {
			return err
		}
	}
	if !t.IsCoinbase() && onChange != nil {
		onChange(totalIn - sum)
	}
	return nil
}
