// Package ledger implements the per-block balance table (the UTXO table):
// a mapping from account id to a non-negative balance.
package ledger

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// Ledger errors.
var (
	ErrNegativeAmount  = errors.New("negative amount")
	ErrBalanceOverflow = errors.New("balance overflow")
)

// Ledger maps account ids to balances. The zero value is not usable; use New.
// A Ledger is not safe for concurrent mutation.
type Ledger struct {
	balances map[string]int64
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{balances: make(map[string]int64)}
}

// FromMap builds a ledger from a balance map, rejecting negative balances.
func FromMap(m map[string]int64) (*Ledger, error) {
	l := &Ledger{balances: make(map[string]int64, len(m))}
	for id, bal := range m {
		if bal < 0 {
			return nil, fmt.Errorf("account %q: %w: %d", id, ErrNegativeAmount, bal)
		}
		l.balances[id] = bal
	}
	return l, nil
}

// Clone returns an independent copy of the ledger.
func (l *Ledger) Clone() *Ledger {
	cp := &Ledger{balances: make(map[string]int64, len(l.balances))}
	for id, bal := range l.balances {
		cp.balances[id] = bal
	}
	return cp
}

// Balance returns the balance of id, or 0 for unknown ids.
func (l *Ledger) Balance(id string) int64 {
	return l.balances[id]
}

// Has reports whether id has an entry, even a zero one.
func (l *Ledger) Has(id string) bool {
	_, ok := l.balances[id]
	return ok
}

// Len returns the number of entries.
func (l *Ledger) Len() int {
	return len(l.balances)
}

// Accounts returns all account ids in sorted order.
func (l *Ledger) Accounts() []string {
	ids := make([]string, 0, len(l.balances))
	for id := range l.balances {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Map returns a copy of the underlying balances.
func (l *Ledger) Map() map[string]int64 {
	m := make(map[string]int64, len(l.balances))
	for id, bal := range l.balances {
		m[id] = bal
	}
	return m
}

// Ensure creates a zero entry for id if none exists.
func (l *Ledger) Ensure(id string) {
	if _, ok := l.balances[id]; !ok {
		l.balances[id] = 0
	}
}

// Credit adds amt to the balance of id, creating the entry if needed.
func (l *Ledger) Credit(id string, amt int64) error {
	if amt < 0 {
		return fmt.Errorf("credit %q: %w: %d", id, ErrNegativeAmount, amt)
	}
	cur := l.balances[id]
	if cur > math.MaxInt64-amt {
		return fmt.Errorf("credit %q: %w", id, ErrBalanceOverflow)
	}
	l.balances[id] = cur + amt
	return nil
}

// Remove deletes the entry for id entirely.
func (l *Ledger) Remove(id string) {
	delete(l.balances, id)
}
