// Package utxo persists per-block balance snapshots.
package utxo

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"

	"github.com/Klingon-tech/klingnet-ledger/internal/storage"
	"github.com/Klingon-tech/klingnet-ledger/pkg/ledger"
	"github.com/Klingon-tech/klingnet-ledger/pkg/types"
)

// prefixSnapshot keys: u/<blockhash hex>/<account> -> decimal balance.
var prefixSnapshot = []byte("u/")

// ErrNoSnapshot is returned when no snapshot exists for a block.
var ErrNoSnapshot = errors.New("no balance snapshot for block")

// Store keeps one ledger snapshot per accepted block.
type Store struct {
	db storage.DB
}

// NewStore creates a snapshot store backed by the given database.
func NewStore(db storage.DB) *Store {
	return &Store{db: db}
}

func snapshotPrefix(blockHash types.Hash) []byte {
	p := make([]byte, 0, len(prefixSnapshot)+2*types.HashSize+1)
	p = append(p, prefixSnapshot...)
	p = append(p, blockHash.String()...)
	return append(p, '/')
}

func balanceKey(blockHash types.Hash, account string) []byte {
	return append(snapshotPrefix(blockHash), account...)
}

// markerKey records that a snapshot exists even when the ledger is empty.
func markerKey(blockHash types.Hash) []byte {
	p := snapshotPrefix(blockHash)
	return p[:len(p)-1]
}

// PutSnapshot writes every balance of l under blockHash in one batch.
func (s *Store) PutSnapshot(blockHash types.Hash, l *ledger.Ledger) error {
	batch := storage.NewBatch(s.db)
	if err := batch.Put(markerKey(blockHash), []byte{}); err != nil {
		return fmt.Errorf("snapshot marker: %w", err)
	}
	for _, account := range l.Accounts() {
		v := strconv.FormatInt(l.Balance(account), 10)
		if err := batch.Put(balanceKey(blockHash, account), []byte(v)); err != nil {
			return fmt.Errorf("snapshot put %s: %w", account, err)
		}
	}
	if err := batch.Commit(); err != nil {
		return fmt.Errorf("snapshot commit: %w", err)
	}
	return nil
}

// HasSnapshot reports whether a snapshot was stored for blockHash.
func (s *Store) HasSnapshot(blockHash types.Hash) (bool, error) {
	return s.db.Has(markerKey(blockHash))
}

// Balance returns account's balance in the snapshot of blockHash.
// Accounts without an entry have a zero balance.
func (s *Store) Balance(blockHash types.Hash, account string) (int64, error) {
	data, err := s.db.Get(balanceKey(blockHash, account))
	if errors.Is(err, storage.ErrNotFound) {
		ok, herr := s.HasSnapshot(blockHash)
		if herr != nil {
			return 0, fmt.Errorf("snapshot lookup: %w", herr)
		}
		if !ok {
			return 0, fmt.Errorf("%w %s", ErrNoSnapshot, blockHash)
		}
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("balance get: %w", err)
	}
	return parseBalance(data)
}

// ForEach calls fn for every entry of the snapshot in account order.
func (s *Store) ForEach(blockHash types.Hash, fn func(account string, balance int64) error) error {
	prefix := snapshotPrefix(blockHash)
	return s.db.ForEach(prefix, func(key, value []byte) error {
		bal, err := parseBalance(value)
		if err != nil {
			return err
		}
		return fn(string(bytes.TrimPrefix(key, prefix)), bal)
	})
}

// Snapshot rebuilds the ledger stored for blockHash.
func (s *Store) Snapshot(blockHash types.Hash) (*ledger.Ledger, error) {
	ok, err := s.HasSnapshot(blockHash)
	if err != nil {
		return nil, fmt.Errorf("snapshot lookup: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w %s", ErrNoSnapshot, blockHash)
	}

	balances := make(map[string]int64)
	err = s.ForEach(blockHash, func(account string, balance int64) error {
		balances[account] = balance
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("snapshot read: %w", err)
	}
	return ledger.FromMap(balances)
}

// DeleteSnapshot removes every entry stored for blockHash.
func (s *Store) DeleteSnapshot(blockHash types.Hash) error {
	var keys [][]byte
	err := s.db.ForEach(snapshotPrefix(blockHash), func(key, _ []byte) error {
		keys = append(keys, key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("snapshot scan: %w", err)
	}

	batch := storage.NewBatch(s.db)
	for _, k := range keys {
		if err := batch.Delete(k); err != nil {
			return err
		}
	}
	if err := batch.Delete(markerKey(blockHash)); err != nil {
		return err
	}
	return batch.Commit()
}

func parseBalance(data []byte) (int64, error) {
	v, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt balance %q: %w", data, err)
	}
	return v, nil
}
