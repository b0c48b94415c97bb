package node

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Klingon-tech/klingnet-ledger/config"
	"github.com/Klingon-tech/klingnet-ledger/internal/consensus"
	"github.com/Klingon-tech/klingnet-ledger/internal/storage"
	"github.com/Klingon-tech/klingnet-ledger/pkg/block"
	"github.com/Klingon-tech/klingnet-ledger/pkg/tx"
	"github.com/Klingon-tech/klingnet-ledger/pkg/types"
)

// expandHome replaces a leading ~ with the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

// openDB opens the configured backend. The memory backend ignores the path.
func openDB(cfg *config.Config) (storage.DB, error) {
	path := ""
	if cfg.Storage.Backend != storage.BackendMemory {
		path = expandHome(cfg.DBDir())
		if err := os.MkdirAll(path, 0700); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := storage.Open(cfg.Storage.Backend, path)
	if err != nil {
		return nil, fmt.Errorf("open database at %s: %w", path, err)
	}
	return db, nil
}

// newEngine builds the PoW engine. Blocks easier than the genesis target are
// rejected.
func newEngine(cfg *config.Config, genesis *config.Genesis) *consensus.PoW {
	engine := consensus.NewPoW(cfg.Mining.Threads)
	engine.MaxTarget = block.TargetFromBits(genesis.TargetBits)
	return engine
}

// LoadTransactions reads transfers from a JSON file holding either a single
// transaction or an array of them.
func LoadTransactions(path string) ([]*tx.Transaction, error) {
	data, err := os.ReadFile(expandHome(path))
	if err != nil {
		return nil, fmt.Errorf("read transactions: %w", err)
	}
	return ParseTransactions(data)
}

// ParseTransactions decodes one transaction or an array of transactions.
func ParseTransactions(data []byte) ([]*tx.Transaction, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}
	if data[0] == '[' {
		var txs []*tx.Transaction
		if err := json.Unmarshal(data, &txs); err != nil {
			return nil, fmt.Errorf("parse transactions: %w", err)
		}
		for i, t := range txs {
			if t == nil {
				return nil, fmt.Errorf("parse transactions: entry %d is null", i)
			}
		}
		return txs, nil
	}
	var t tx.Transaction
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse transaction: %w", err)
	}
	return []*tx.Transaction{&t}, nil
}

// shortHash abbreviates a hash for log lines.
func shortHash(h types.Hash) string {
	return h.String()[:16] + "..."
}
