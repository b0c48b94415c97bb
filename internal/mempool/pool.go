// Package mempool holds pending transactions waiting for block inclusion.
package mempool

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/Klingon-tech/klingnet-ledger/pkg/tx"
	"github.com/Klingon-tech/klingnet-ledger/pkg/types"
)

// Mempool errors.
var (
	ErrAlreadyExists = errors.New("transaction already in mempool")
	ErrPoolFull      = errors.New("mempool is full")
	ErrValidation    = errors.New("transaction failed validation")
	ErrCoinbase      = errors.New("coinbase transactions are built by the miner")
)

// DefaultMaxSize is used when New is given a non-positive size.
const DefaultMaxSize = 5000

// entry wraps a transaction with its arrival sequence number.
type entry struct {
	tx  *tx.Transaction
	id  types.Hash
	seq uint64
}

// Pool holds unconfirmed transfers in arrival order. Balance checks happen
// when the miner applies them to a block, not on admission.
type Pool struct {
	mu      sync.RWMutex
	txs     map[types.Hash]*entry
	nextSeq uint64
	maxSize int
	policy  *Policy
}

// New creates a new mempool holding at most maxSize transactions.
func New(maxSize int) *Pool {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Pool{
		txs:     make(map[types.Hash]*entry),
		maxSize: maxSize,
		policy:  DefaultPolicy(),
	}
}

// SetPolicy replaces the admission policy.
func (p *Pool) SetPolicy(policy *Policy) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.policy = policy
}

// Add checks and queues a transfer, returning its id.
func (p *Pool) Add(t *tx.Transaction) (types.Hash, error) {
	if t == nil {
		return types.Hash{}, fmt.Errorf("%w: nil transaction", ErrValidation)
	}
	if t.IsCoinbase() {
		return types.Hash{}, ErrCoinbase
	}
	if err := t.Validate(); err != nil {
		return types.Hash{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.policy != nil {
		if err := p.policy.Check(t); err != nil {
			return types.Hash{}, fmt.Errorf("%w: %w", ErrValidation, err)
		}
	}

	id := t.ID()
	if _, ok := p.txs[id]; ok {
		return id, ErrAlreadyExists
	}
	if len(p.txs) >= p.maxSize {
		return id, ErrPoolFull
	}

	p.txs[id] = &entry{tx: t.Clone(), id: id, seq: p.nextSeq}
	p.nextSeq++
	return id, nil
}

// Remove drops a transaction from the pool.
func (p *Pool) Remove(id types.Hash) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.txs, id)
}

// RemoveBatch drops every listed transaction.
func (p *Pool) RemoveBatch(ids []types.Hash) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, id := range ids {
		delete(p.txs, id)
	}
}

// Has reports whether the pool holds the transaction.
func (p *Pool) Has(id types.Hash) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.txs[id]
	return ok
}

// Get returns a copy of a pooled transaction.
func (p *Pool) Get(id types.Hash) (*tx.Transaction, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.txs[id]
	if !ok {
		return nil, false
	}
	return e.tx.Clone(), true
}

// Count returns the number of pooled transactions.
func (p *Pool) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.txs)
}

// SelectForBlock returns up to limit transactions, oldest first.
// A limit of zero or less returns all of them.
func (p *Pool) SelectForBlock(limit int) []*tx.Transaction {
	p.mu.RLock()
	defer p.mu.RUnlock()

	entries := p.sortedLocked()
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	out := make([]*tx.Transaction, len(entries))
	for i, e := range entries {
		out[i] = e.tx.Clone()
	}
	return out
}

// sortedLocked returns entries by arrival order. Caller holds p.mu.
func (p *Pool) sortedLocked() []*entry {
	entries := make([]*entry, 0, len(p.txs))
	for _, e := range p.txs {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].seq < entries[j].seq
	})
	return entries
}
