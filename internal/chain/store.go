package chain

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/Klingon-tech/klingnet-ledger/internal/log"
	"github.com/Klingon-tech/klingnet-ledger/internal/storage"
	"github.com/Klingon-tech/klingnet-ledger/pkg/block"
	"github.com/Klingon-tech/klingnet-ledger/pkg/types"
)

// Key prefixes and state keys for the block store.
var (
	prefixBlock  = []byte("b/") // b/<hash(32)> -> canonical block JSON
	prefixLength = []byte("h/") // h/<length(8)> -> hash(32)
	prefixTx     = []byte("x/") // x/<txid(32)> -> blockHash(32)
	keyTipHash   = []byte("s/tip")
)

// ErrBlockNotFound is returned when a block lookup misses.
var ErrBlockNotFound = errors.New("block not found")

// DefaultCacheMaxCost bounds the raw block cache in bytes.
const DefaultCacheMaxCost = 64 << 20

// BlockStore persists blocks and chain metadata to a storage.DB.
// Encoded blocks are cached by hash; the cache only ever holds bytes that
// were read from or written to the database.
type BlockStore struct {
	db    storage.DB
	cache *ristretto.Cache[string, []byte]
}

// NewBlockStore creates a block store backed by db. maxCost bounds the block
// cache in bytes; zero or less disables caching.
func NewBlockStore(db storage.DB, maxCost int64) (*BlockStore, error) {
	bs := &BlockStore{db: db}
	if maxCost <= 0 {
		return bs, nil
	}

	cache, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: 1e5,
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("block cache: %w", err)
	}
	bs.cache = cache
	return bs, nil
}

// Close releases the cache. The database is owned by the caller.
func (bs *BlockStore) Close() {
	if bs.cache != nil {
		bs.cache.Close()
	}
}

// PutBlock stores a block and indexes it by hash, chain length and
// transaction ids, then moves the tip to it, all in one batch.
func (bs *BlockStore) PutBlock(blk *block.Block) (types.Hash, error) {
	data := blk.Serialize(true)
	hash := blk.Hash(true)

	batch := storage.NewBatch(bs.db)
	if err := batch.Put(blockKey(hash), data); err != nil {
		return types.Hash{}, fmt.Errorf("block put: %w", err)
	}
	if err := batch.Put(lengthKey(blk.ChainLength()), hash[:]); err != nil {
		return types.Hash{}, fmt.Errorf("length index put: %w", err)
	}
	for _, id := range blk.TransactionIDs() {
		if err := batch.Put(txKey(id), hash[:]); err != nil {
			return types.Hash{}, fmt.Errorf("tx index put %s: %w", id, err)
		}
	}
	if err := batch.Put(keyTipHash, hash[:]); err != nil {
		return types.Hash{}, fmt.Errorf("set tip: %w", err)
	}
	if err := batch.Commit(); err != nil {
		return types.Hash{}, fmt.Errorf("block commit: %w", err)
	}

	bs.remember(hash, data)
	return hash, nil
}

// GetRaw returns the canonical encoding of the block with the given hash.
// The returned slice must not be modified.
func (bs *BlockStore) GetRaw(hash types.Hash) ([]byte, error) {
	if bs.cache != nil {
		if data, ok := bs.cache.Get(hash.String()); ok {
			return data, nil
		}
	}

	data, err := bs.db.Get(blockKey(hash))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrBlockNotFound, hash)
	}
	if err != nil {
		return nil, fmt.Errorf("block get: %w", err)
	}
	bs.remember(hash, data)
	return data, nil
}

// GetBlock retrieves a block by its hash.
func (bs *BlockStore) GetBlock(hash types.Hash) (*block.Block, error) {
	data, err := bs.GetRaw(hash)
	if err != nil {
		return nil, err
	}
	blk, err := block.Deserialize(data)
	if err != nil {
		return nil, fmt.Errorf("block %s: %w", hash, err)
	}
	return blk, nil
}

// HashAt returns the hash of the block with the given chain length.
func (bs *BlockStore) HashAt(length uint64) (types.Hash, error) {
	hashBytes, err := bs.db.Get(lengthKey(length))
	if errors.Is(err, storage.ErrNotFound) {
		return types.Hash{}, fmt.Errorf("%w: length %d", ErrBlockNotFound, length)
	}
	if err != nil {
		return types.Hash{}, fmt.Errorf("length index get: %w", err)
	}
	return hashFromBytes(hashBytes, "length index")
}

// GetBlockAt retrieves a block by its chain length.
func (bs *BlockStore) GetBlockAt(length uint64) (*block.Block, error) {
	hash, err := bs.HashAt(length)
	if err != nil {
		return nil, err
	}
	return bs.GetBlock(hash)
}

// HasBlock checks if a block exists by hash.
func (bs *BlockStore) HasBlock(hash types.Hash) (bool, error) {
	return bs.db.Has(blockKey(hash))
}

// GetTip returns the tip hash and false if no block was stored yet.
func (bs *BlockStore) GetTip() (types.Hash, bool, error) {
	hashBytes, err := bs.db.Get(keyTipHash)
	if errors.Is(err, storage.ErrNotFound) {
		return types.Hash{}, false, nil
	}
	if err != nil {
		return types.Hash{}, false, fmt.Errorf("get tip: %w", err)
	}
	hash, err := hashFromBytes(hashBytes, "tip hash")
	if err != nil {
		return types.Hash{}, false, err
	}
	return hash, true, nil
}

// GetTxBlock returns the hash of the block that contains the transaction.
func (bs *BlockStore) GetTxBlock(txID types.Hash) (types.Hash, error) {
	data, err := bs.db.Get(txKey(txID))
	if errors.Is(err, storage.ErrNotFound) {
		return types.Hash{}, fmt.Errorf("%w: no block holds tx %s", ErrBlockNotFound, txID)
	}
	if err != nil {
		return types.Hash{}, fmt.Errorf("tx index get: %w", err)
	}
	return hashFromBytes(data, "tx index")
}

func (bs *BlockStore) remember(hash types.Hash, data []byte) {
	if bs.cache == nil {
		return
	}
	if !bs.cache.Set(hash.String(), data, int64(len(data))) {
		log.Storage.Trace().Str("hash", hash.String()).Msg("Block cache dropped entry")
	}
}

func hashFromBytes(b []byte, what string) (types.Hash, error) {
	if len(b) != types.HashSize {
		return types.Hash{}, fmt.Errorf("corrupt %s: got %d bytes, want %d", what, len(b), types.HashSize)
	}
	var h types.Hash
	copy(h[:], b)
	return h, nil
}

func blockKey(hash types.Hash) []byte {
	key := make([]byte, len(prefixBlock)+types.HashSize)
	copy(key, prefixBlock)
	copy(key[len(prefixBlock):], hash[:])
	return key
}

func lengthKey(length uint64) []byte {
	key := make([]byte, len(prefixLength)+8)
	copy(key, prefixLength)
	binary.BigEndian.PutUint64(key[len(prefixLength):], length)
	return key
}

func txKey(id types.Hash) []byte {
	key := make([]byte, len(prefixTx)+types.HashSize)
	copy(key, prefixTx)
	copy(key[len(prefixTx):], id[:])
	return key
}
