// Package block implements a single unit of the proof-of-work ledger: a block
// that records validated transactions, carries a balance snapshot and can
// check its own proof of work.
//
// A Block is not safe for concurrent use. Each instance must be confined to
// one goroutine at a time; read-only methods may run concurrently only while
// nothing mutates the block.
package block

import (
	"bytes"
	"fmt"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/holiman/uint256"

	"github.com/Klingon-tech/klingnet-ledger/pkg/ledger"
	"github.com/Klingon-tech/klingnet-ledger/pkg/tx"
	"github.com/Klingon-tech/klingnet-ledger/pkg/types"
)

// SettlementMode selects how an accepted transaction moves balances.
type SettlementMode int

const (
	// SettleLegacy credits recipients and only touches the sender's entry when
	// the sender is also a recipient, in which case the entry is removed and
	// rebuilt from the self-payment. A sender that does not pay itself is NOT
	// debited. This is the historical rule and the default.
	SettleLegacy SettlementMode = iota
	// SettleDoubleEntry consumes the sender's whole balance, credits the
	// recipients and hands the remainder to the change callback.
	SettleDoubleEntry
)

// String returns the config name of the mode.
func (m SettlementMode) String() string {
	switch m {
	case SettleLegacy:
		return "legacy"
	case SettleDoubleEntry:
		return "double-entry"
	default:
		return fmt.Sprintf("settlement(%d)", int(m))
	}
}

// ParseSettlement converts a config name into a SettlementMode.
func ParseSettlement(s string) (SettlementMode, error) {
	switch s {
	case "", "legacy":
		return SettleLegacy, nil
	case "double-entry", "doubleentry":
		return SettleDoubleEntry, nil
	default:
		return SettleLegacy, fmt.Errorf("unknown settlement mode %q (want legacy or double-entry)", s)
	}
}

// Block bundles transactions with the balance table they produce.
type Block struct {
	prevHash    types.Hash
	hasPrev     bool
	chainLength uint64
	target      *uint256.Int
	timestamp   int64 // Unix milliseconds
	proof       uint64
	comment     string

	transactions map[types.Hash]*tx.Transaction
	coinbase     *tx.Transaction
	utxo         *ledger.Ledger

	settlement SettlementMode
}

type options struct {
	target     *uint256.Int
	txs        []*tx.Transaction
	comment    string
	timestamp  *int64
	settlement *SettlementMode
}

// Option configures a block at construction.
type Option func(*options)

// WithTarget sets the proof-of-work target. Without it the block uses BaseTarget.
func WithTarget(target *uint256.Int) Option {
	return func(o *options) {
		if target != nil {
			o.target = new(uint256.Int).Set(target)
		}
	}
}

// WithTransactions adds transactions at construction. Each goes through
// AddTransaction with the block comment and no miner.
func WithTransactions(txs ...*tx.Transaction) Option {
	return func(o *options) { o.txs = append(o.txs, txs...) }
}

// WithComment sets the initial block comment.
func WithComment(comment string) Option {
	return func(o *options) { o.comment = comment }
}

// WithTimestamp fixes the creation time in Unix milliseconds.
func WithTimestamp(ms int64) Option {
	return func(o *options) { o.timestamp = &ms }
}

// WithSettlement overrides the settlement mode inherited from the parent.
func WithSettlement(mode SettlementMode) Option {
	return func(o *options) { o.settlement = &mode }
}

// New creates a block on top of parent, or a root block when parent is nil.
// The parent's hash and balance table are captured once, here; later changes
// to either block do not affect the other.
func New(parent *Block, opts ...Option) (*Block, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if !utf8.ValidString(o.comment) {
		return nil, ErrInvalidComment
	}

	b := &Block{
		chainLength:  1,
		target:       BaseTarget(),
		comment:      o.comment,
		transactions: make(map[types.Hash]*tx.Transaction),
		utxo:         ledger.New(),
	}
	if o.target != nil {
		b.target = o.target
	}
	if o.timestamp != nil {
		b.timestamp = *o.timestamp
	} else {
		b.timestamp = time.Now().UnixMilli()
	}

	if parent != nil {
		b.prevHash = parent.Hash(true)
		b.hasPrev = true
		b.chainLength = parent.chainLength + 1
		b.utxo = parent.utxo.Clone()
		b.settlement = parent.settlement
	}
	if o.settlement != nil {
		b.settlement = *o.settlement
	}

	for i, t := range o.txs {
		if err := b.AddTransaction(t, o.comment, ""); err != nil {
			return nil, fmt.Errorf("initial tx %d: %w", i, err)
		}
	}
	return b, nil
}

// PrevBlockHash returns the parent's hash and false for a root block.
func (b *Block) PrevBlockHash() (types.Hash, bool) {
	return b.prevHash, b.hasPrev
}

// IsGenesis returns true for a root block.
func (b *Block) IsGenesis() bool {
	return !b.hasPrev
}

// ChainLength returns the depth of the block, 1 for a root block.
func (b *Block) ChainLength() uint64 {
	return b.chainLength
}

// Target returns a copy of the proof-of-work target.
func (b *Block) Target() *uint256.Int {
	return new(uint256.Int).Set(b.target)
}

// Timestamp returns the creation time in Unix milliseconds.
func (b *Block) Timestamp() int64 {
	return b.timestamp
}

// Comment returns the comment left by the last accepted transaction.
func (b *Block) Comment() string {
	return b.comment
}

// Proof returns the externally supplied proof value.
func (b *Block) Proof() uint64 {
	return b.proof
}

// SetProof records a proof found by a sealer.
func (b *Block) SetProof(proof uint64) {
	b.proof = proof
}

// Settlement returns the block's settlement mode.
func (b *Block) Settlement() SettlementMode {
	return b.settlement
}

// Balance returns the balance of id in this block, 0 for unknown ids.
func (b *Block) Balance(id string) int64 {
	return b.utxo.Balance(id)
}

// UTXO returns a copy of the block's balance table.
func (b *Block) UTXO() map[string]int64 {
	return b.utxo.Map()
}

// Ledger returns a copy of the block's balance table as a Ledger.
func (b *Block) Ledger() *ledger.Ledger {
	return b.utxo.Clone()
}

// HasCoinbaseTransaction reports whether a coinbase has been accepted.
func (b *Block) HasCoinbaseTransaction() bool {
	return b.coinbase != nil
}

// CoinbaseTransaction returns a copy of the coinbase, or nil.
func (b *Block) CoinbaseTransaction() *tx.Transaction {
	if b.coinbase == nil {
		return nil
	}
	return b.coinbase.Clone()
}

// TxCount returns the number of recorded transactions.
func (b *Block) TxCount() int {
	return len(b.transactions)
}

// Transaction returns a copy of the transaction recorded under id.
func (b *Block) Transaction(id types.Hash) (*tx.Transaction, bool) {
	t, ok := b.transactions[id]
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

// TransactionIDs returns the recorded transaction ids in ascending order.
func (b *Block) TransactionIDs() []types.Hash {
	ids := make([]types.Hash, 0, len(b.transactions))
	for id := range b.transactions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i][:], ids[j][:]) < 0
	})
	return ids
}

// Transactions returns copies of the recorded transactions ordered by id.
func (b *Block) Transactions() []*tx.Transaction {
	ids := b.TransactionIDs()
	txs := make([]*tx.Transaction, len(ids))
	for i, id := range ids {
		txs[i] = b.transactions[id].Clone()
	}
	return txs
}
